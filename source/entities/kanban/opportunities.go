package kanban

import (
	"context"
	"crm/source/database"
	"crm/source/schemas"
	"crm/source/utils"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// OpportunityReader is the opportunity lookup the kanban joins references
// against.
type OpportunityReader interface {
	// MatchingIDs returns the ids of the opportunities matching filters, or
	// nil when filters do not restrict opportunities.
	MatchingIDs(ctx context.Context, filters schemas.StageFilters, period *periodRange) ([]bson.ObjectID, error)
	GetMany(ctx context.Context, ids []bson.ObjectID) (map[bson.ObjectID]schemas.Opportunity, error)
}

type MongoOpportunities struct {
	collection *mongo.Collection
}

func NewMongoOpportunities(db *mongo.Database) *MongoOpportunities {
	return &MongoOpportunities{collection: db.Collection(database.COLLECTION_OPPORTUNITIES)}
}

func (o *MongoOpportunities) MatchingIDs(ctx context.Context, filters schemas.StageFilters, period *periodRange) ([]bson.ObjectID, error) {
	if !hasOpportunityFilters(filters, period) {
		return nil, nil
	}

	findOptions := options.Find().SetProjection(bson.D{{Key: "_id", Value: 1}})
	cursor, err := o.collection.Find(ctx, opportunityFilter(filters, period), findOptions)
	if err != nil {
		return nil, database.ClassifyMongoError(err, utils.CANNOT_FIND_OPPORTUNITIES_IN_MONGODB)
	}
	defer cursor.Close(ctx)

	ids := []bson.ObjectID{}
	for cursor.Next(ctx) {
		row := struct {
			ID bson.ObjectID `bson:"_id"`
		}{}
		if err := cursor.Decode(&row); err != nil {
			return nil, database.ClassifyMongoError(err, utils.CANNOT_FIND_OPPORTUNITIES_IN_MONGODB)
		}
		ids = append(ids, row.ID)
	}
	if err := cursor.Err(); err != nil {
		return nil, database.ClassifyMongoError(err, utils.CANNOT_FIND_OPPORTUNITIES_IN_MONGODB)
	}
	return ids, nil
}

func (o *MongoOpportunities) GetMany(ctx context.Context, ids []bson.ObjectID) (map[bson.ObjectID]schemas.Opportunity, error) {
	opportunities := make(map[bson.ObjectID]schemas.Opportunity, len(ids))
	if len(ids) == 0 {
		return opportunities, nil
	}

	cursor, err := o.collection.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return nil, database.ClassifyMongoError(err, utils.CANNOT_FIND_OPPORTUNITIES_IN_MONGODB)
	}
	defer cursor.Close(ctx)

	found := []schemas.Opportunity{}
	if err := cursor.All(ctx, &found); err != nil {
		return nil, database.ClassifyMongoError(err, utils.CANNOT_FIND_OPPORTUNITIES_IN_MONGODB)
	}
	for _, opportunity := range found {
		opportunities[opportunity.ID] = opportunity
	}
	return opportunities, nil
}

// GetNames labels funnel events with the opportunity name.
func (o *MongoOpportunities) GetNames(ctx context.Context, ids []bson.ObjectID) (map[bson.ObjectID]string, error) {
	return namesOf(o.GetMany(ctx, ids))
}

type MemoryOpportunities struct {
	mu            sync.RWMutex
	opportunities map[bson.ObjectID]schemas.Opportunity
}

func NewMemoryOpportunities(opportunities ...schemas.Opportunity) *MemoryOpportunities {
	m := &MemoryOpportunities{opportunities: make(map[bson.ObjectID]schemas.Opportunity)}
	for _, opportunity := range opportunities {
		m.Put(opportunity)
	}
	return m
}

func (m *MemoryOpportunities) Put(opportunity schemas.Opportunity) bson.ObjectID {
	m.mu.Lock()
	defer m.mu.Unlock()

	if opportunity.ID.IsZero() {
		opportunity.ID = bson.NewObjectID()
	}
	m.opportunities[opportunity.ID] = opportunity
	return opportunity.ID
}

func (m *MemoryOpportunities) MatchingIDs(ctx context.Context, filters schemas.StageFilters, period *periodRange) ([]bson.ObjectID, error) {
	if !hasOpportunityFilters(filters, period) {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := []bson.ObjectID{}
	for id, opportunity := range m.opportunities {
		if matchesFilters(opportunity, filters, period) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *MemoryOpportunities) GetMany(ctx context.Context, ids []bson.ObjectID) (map[bson.ObjectID]schemas.Opportunity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opportunities := make(map[bson.ObjectID]schemas.Opportunity, len(ids))
	for _, id := range ids {
		if opportunity, ok := m.opportunities[id]; ok {
			opportunities[id] = opportunity
		}
	}
	return opportunities, nil
}

func (m *MemoryOpportunities) GetNames(ctx context.Context, ids []bson.ObjectID) (map[bson.ObjectID]string, error) {
	return namesOf(m.GetMany(ctx, ids))
}

func namesOf(opportunities map[bson.ObjectID]schemas.Opportunity, err error) (map[bson.ObjectID]string, error) {
	if err != nil {
		return nil, err
	}
	names := make(map[bson.ObjectID]string, len(opportunities))
	for id, opportunity := range opportunities {
		names[id] = opportunity.Name
	}
	return names, nil
}
