package funnels

import (
	"context"
	"crm/source/database"
	"crm/source/schemas"
	"crm/source/utils"
	"errors"
	"slices"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Store persists funnel definitions. Funnels are read far more often than
// they are written; the transition engine reads them on every move.
type Store interface {
	InsertOne(ctx context.Context, funnel *schemas.Funnel) error
	FindOne(ctx context.Context, id bson.ObjectID) (schemas.Funnel, error)
	FindAll(ctx context.Context, funnelType string) ([]schemas.Funnel, error)
}

type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection(database.COLLECTION_FUNNELS)}
}

func (s *MongoStore) InsertOne(ctx context.Context, funnel *schemas.Funnel) error {
	if funnel.ID.IsZero() {
		funnel.ID = bson.NewObjectID()
	}
	if _, err := s.collection.InsertOne(ctx, funnel); err != nil {
		return database.ClassifyMongoError(err, utils.CANNOT_INSERT_FUNNEL_TO_MONGODB)
	}
	return nil
}

func (s *MongoStore) FindOne(ctx context.Context, id bson.ObjectID) (schemas.Funnel, error) {
	funnel := schemas.Funnel{}
	err := s.collection.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&funnel)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return funnel, utils.NotFound(utils.CANNOT_FIND_FUNNEL_BY_ID_IN_MONGODB, "Funil não encontrado")
		}
		return funnel, database.ClassifyMongoError(err, utils.CANNOT_FIND_FUNNEL_BY_ID_IN_MONGODB)
	}
	return funnel, nil
}

func (s *MongoStore) FindAll(ctx context.Context, funnelType string) ([]schemas.Funnel, error) {
	filter := bson.D{}
	if funnelType != "" {
		filter = append(filter, bson.E{Key: "type", Value: funnelType})
	}

	cursor, err := s.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, database.ClassifyMongoError(err, utils.CANNOT_FIND_FUNNELS_IN_MONGODB)
	}
	defer cursor.Close(ctx)

	funnels := []schemas.Funnel{}
	if err := cursor.All(ctx, &funnels); err != nil {
		return nil, database.ClassifyMongoError(err, utils.CANNOT_FIND_FUNNELS_IN_MONGODB)
	}
	return funnels, nil
}

type MemoryStore struct {
	mu      sync.RWMutex
	funnels []schemas.Funnel
}

func NewMemoryStore(funnels ...schemas.Funnel) *MemoryStore {
	return &MemoryStore{funnels: slices.Clone(funnels)}
}

func (s *MemoryStore) InsertOne(ctx context.Context, funnel *schemas.Funnel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if funnel.ID.IsZero() {
		funnel.ID = bson.NewObjectID()
	}
	stored := *funnel
	stored.Stages = slices.Clone(funnel.Stages)
	s.funnels = append(s.funnels, stored)
	return nil
}

func (s *MemoryStore) FindOne(ctx context.Context, id bson.ObjectID) (schemas.Funnel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, funnel := range s.funnels {
		if funnel.ID == id {
			funnel.Stages = slices.Clone(funnel.Stages)
			return funnel, nil
		}
	}
	return schemas.Funnel{}, utils.NotFound(utils.CANNOT_FIND_FUNNEL_BY_ID_IN_MONGODB, "Funil não encontrado")
}

func (s *MemoryStore) FindAll(ctx context.Context, funnelType string) ([]schemas.Funnel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	funnels := []schemas.Funnel{}
	for _, funnel := range s.funnels {
		if funnelType != "" && funnel.Type != funnelType {
			continue
		}
		funnel.Stages = slices.Clone(funnel.Stages)
		funnels = append(funnels, funnel)
	}
	return funnels, nil
}
