package funnelreferences

import (
	"context"
	"crm/source/database"
	"crm/source/schemas"
	"crm/source/utils"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection(database.COLLECTION_FUNNEL_REFERENCES)}
}

func (s *MongoStore) InsertOne(ctx context.Context, reference *schemas.FunnelReference) error {
	if reference.ID.IsZero() {
		reference.ID = bson.NewObjectID()
	}

	_, err := s.collection.InsertOne(ctx, reference)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return utils.Conflict(utils.FUNNEL_REFERENCE_ALREADY_EXISTS, "Oportunidade já está neste funil")
		}
		return database.ClassifyMongoError(err, utils.CANNOT_INSERT_FUNNEL_REFERENCE_TO_MONGODB)
	}
	return nil
}

func (s *MongoStore) FindOne(ctx context.Context, id bson.ObjectID) (schemas.FunnelReference, error) {
	reference := schemas.FunnelReference{}
	err := s.collection.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&reference)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return reference, utils.NotFound(utils.CANNOT_FIND_FUNNEL_REFERENCE_IN_MONGODB, "Referência de funil não encontrada")
		}
		return reference, database.ClassifyMongoError(err, utils.CANNOT_FIND_FUNNEL_REFERENCE_IN_MONGODB)
	}
	return reference, nil
}

// SwapStage issues a single conditional update keyed on current_stage_id
// and on the entry instant of the expected stage, so a reference that left
// and re-entered expected after at was computed is not matched. Exit, entry
// and current stage are written by the same document update.
func (s *MongoStore) SwapStage(ctx context.Context, id bson.ObjectID, expected, next string, at time.Time) (schemas.FunnelReference, bool, error) {
	filter := bson.D{
		{Key: "_id", Value: id},
		{Key: "current_stage_id", Value: expected},
		{Key: "stages." + expected + ".entered_at", Value: bson.D{{Key: "$lte", Value: at}}},
	}
	update := bson.D{{Key: "$set", Value: stageTransitionUpdate(expected, next, at)}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	reference := schemas.FunnelReference{}
	err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&reference)
	if err == nil {
		return reference, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return reference, false, database.ClassifyMongoError(err, utils.CANNOT_UPDATE_FUNNEL_REFERENCE_STAGE)
	}

	current, err := s.FindOne(ctx, id)
	if err != nil {
		return current, false, err
	}
	if current.CurrentStageID == next {
		return current, false, nil
	}
	return schemas.FunnelReference{}, false, utils.Conflict(utils.FUNNEL_REFERENCE_STAGE_CONFLICT, "A oportunidade já foi movida para outro estágio")
}

func stageTransitionUpdate(expected, next string, at time.Time) bson.D {
	return bson.D{
		{Key: "stages." + expected + ".exited_at", Value: at},
		{Key: "stages." + next + ".entered_at", Value: at},
		{Key: "stages." + next + ".exited_at", Value: nil},
		{Key: "current_stage_id", Value: next},
		{Key: "updated_at", Value: at},
	}
}

func (s *MongoStore) FindInStage(ctx context.Context, query StageQuery) ([]schemas.FunnelReference, error) {
	if query.Skip < 0 || query.Limit < 0 {
		return nil, utils.Validation(utils.KANBAN_INVALID_REQUEST_DATA, "skip e limit não podem ser negativos")
	}

	findOptions := options.Find().
		SetSkip(query.Skip).
		SetSort(bson.D{{Key: "_id", Value: -1}})
	if query.Limit > 0 {
		findOptions.SetLimit(query.Limit)
	}

	cursor, err := s.collection.Find(ctx, stageFilter(query), findOptions)
	if err != nil {
		return nil, database.ClassifyMongoError(err, utils.CANNOT_FIND_KANBAN_STAGE_PAGE)
	}
	defer cursor.Close(ctx)

	references := []schemas.FunnelReference{}
	if err := cursor.All(ctx, &references); err != nil {
		return nil, database.ClassifyMongoError(err, utils.CANNOT_FIND_KANBAN_STAGE_PAGE)
	}
	return references, nil
}

func (s *MongoStore) CountInStage(ctx context.Context, query StageQuery) (int64, error) {
	count, err := s.collection.CountDocuments(ctx, stageFilter(query))
	if err != nil {
		return 0, database.ClassifyMongoError(err, utils.CANNOT_FIND_KANBAN_STAGE_PAGE)
	}
	return count, nil
}

func stageFilter(query StageQuery) bson.D {
	filter := bson.D{
		{Key: "funnel_id", Value: query.FunnelID},
		{Key: "current_stage_id", Value: query.StageID},
	}
	if query.OpportunityIDs != nil {
		filter = append(filter, bson.E{Key: "opportunity_id", Value: bson.D{{Key: "$in", Value: query.OpportunityIDs}}})
	}
	return filter
}

func (s *MongoStore) DeleteByOpportunity(ctx context.Context, opportunityID bson.ObjectID) ([]schemas.FunnelReference, error) {
	filter := bson.D{{Key: "opportunity_id", Value: opportunityID}}

	cursor, err := s.collection.Find(ctx, filter)
	if err != nil {
		return nil, database.ClassifyMongoError(err, utils.CANNOT_DELETE_FUNNEL_REFERENCES_FROM_MONGODB)
	}
	defer cursor.Close(ctx)

	references := []schemas.FunnelReference{}
	if err := cursor.All(ctx, &references); err != nil {
		return nil, database.ClassifyMongoError(err, utils.CANNOT_DELETE_FUNNEL_REFERENCES_FROM_MONGODB)
	}
	if len(references) == 0 {
		return references, nil
	}

	ids := make([]bson.ObjectID, 0, len(references))
	for _, reference := range references {
		ids = append(ids, reference.ID)
	}

	_, err = s.collection.DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return nil, database.ClassifyMongoError(err, utils.CANNOT_DELETE_FUNNEL_REFERENCES_FROM_MONGODB)
	}
	return references, nil
}
