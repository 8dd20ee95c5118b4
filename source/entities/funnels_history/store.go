package funnelshistory

import (
	"context"
	"crm/source/database"
	"crm/source/schemas"
	"crm/source/utils"
	"slices"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type Store interface {
	InsertOne(ctx context.Context, event *schemas.FunnelEvent) error
	FindByReference(ctx context.Context, referenceID bson.ObjectID) ([]schemas.FunnelEvent, error)
}

type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection(database.COLLECTION_FUNNELS_HISTORY)}
}

func (s *MongoStore) InsertOne(ctx context.Context, event *schemas.FunnelEvent) error {
	if event.ID.IsZero() {
		event.ID = bson.NewObjectID()
	}
	if _, err := s.collection.InsertOne(ctx, event); err != nil {
		return database.ClassifyMongoError(err, utils.CANNOT_INSERT_FUNNEL_TO_MONGODB)
	}
	return nil
}

func (s *MongoStore) FindByReference(ctx context.Context, referenceID bson.ObjectID) ([]schemas.FunnelEvent, error) {
	filter := bson.D{{Key: "reference_id", Value: referenceID}}
	findOptions := options.Find().SetSort(bson.D{{Key: "at", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := s.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, database.ClassifyMongoError(err, utils.CANNOT_FIND_FUNNELS_HISTORY_IN_MONGODB)
	}
	defer cursor.Close(ctx)

	events := []schemas.FunnelEvent{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, database.ClassifyMongoError(err, utils.CANNOT_FIND_FUNNELS_HISTORY_IN_MONGODB)
	}
	return events, nil
}

type MemoryStore struct {
	mu     sync.RWMutex
	events []schemas.FunnelEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) InsertOne(ctx context.Context, event *schemas.FunnelEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID.IsZero() {
		event.ID = bson.NewObjectID()
	}
	s.events = append(s.events, *event)
	return nil
}

func (s *MemoryStore) FindByReference(ctx context.Context, referenceID bson.ObjectID) ([]schemas.FunnelEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := []schemas.FunnelEvent{}
	for _, event := range s.events {
		if event.ReferenceID == referenceID {
			events = append(events, event)
		}
	}
	slices.SortStableFunc(events, func(a, b schemas.FunnelEvent) int {
		return a.At.Compare(b.At)
	})
	return events, nil
}
