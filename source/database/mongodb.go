package database

import (
	"context"
	"crm/source/utils"
	"errors"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	MONGO_TIMEOUT                = 20 * time.Second
	COLLECTION_FUNNELS           = "funnels"
	COLLECTION_FUNNEL_REFERENCES = "funnel_references"
	COLLECTION_FUNNELS_HISTORY   = "funnels_history"
	COLLECTION_OPPORTUNITIES     = "opportunities"
)

func GetDB() string {
	environment := os.Getenv(utils.ENV)

	if environment == utils.ENV_RELEASE {
		return "production"
	}

	if environment == utils.ENV_HOMOLOG {
		return "homolog"
	}

	if environment == utils.ENV_DEVELOPMENT {
		return "development"
	}

	panic("[MongoDB] Invalid DB name")
}

// ConnectMongo opens the client shared by every collection of the service.
func ConnectMongo(ctx context.Context, mongoURI string) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(mongoURI).SetTimeout(MONGO_TIMEOUT)
	mongoClient, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("[MongoDB] connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		mongoClient.Disconnect(ctx)
		return nil, fmt.Errorf("[MongoDB] ping: %w", err)
	}

	return mongoClient, nil
}

// EnsureIndexes creates the indexes the kanban queries and the one
// reference per (funnel, opportunity) rule rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	references := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "funnel_id", Value: 1}, {Key: "opportunity_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("funnel_opportunity_unique"),
		},
		{
			Keys:    bson.D{{Key: "funnel_id", Value: 1}, {Key: "current_stage_id", Value: 1}, {Key: "_id", Value: -1}},
			Options: options.Index().SetName("funnel_stage_recent"),
		},
		{
			Keys:    bson.D{{Key: "opportunity_id", Value: 1}},
			Options: options.Index().SetName("opportunity"),
		},
	}
	if _, err := db.Collection(COLLECTION_FUNNEL_REFERENCES).Indexes().CreateMany(ctx, references); err != nil {
		return fmt.Errorf("[MongoDB] indexes %s: %w", COLLECTION_FUNNEL_REFERENCES, err)
	}

	history := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "reference_id", Value: 1}, {Key: "at", Value: 1}},
			Options: options.Index().SetName("reference_at"),
		},
	}
	if _, err := db.Collection(COLLECTION_FUNNELS_HISTORY).Indexes().CreateMany(ctx, history); err != nil {
		return fmt.Errorf("[MongoDB] indexes %s: %w", COLLECTION_FUNNELS_HISTORY, err)
	}

	opportunities := []mongo.IndexModel{
		{Keys: bson.D{{Key: "partner_id", Value: 1}, {Key: "responsibles", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	}
	if _, err := db.Collection(COLLECTION_OPPORTUNITIES).Indexes().CreateMany(ctx, opportunities); err != nil {
		return fmt.Errorf("[MongoDB] indexes %s: %w", COLLECTION_OPPORTUNITIES, err)
	}

	return nil
}

// ClassifyMongoError maps driver errors onto the service error kinds.
// Unknown errors are returned unchanged.
func ClassifyMongoError(err error, code int) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return utils.NotFound(code, "")
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) || errors.Is(err, context.DeadlineExceeded) {
		return utils.Transient(code, err)
	}
	if mongo.IsDuplicateKeyError(err) {
		return utils.Conflict(code, "")
	}
	return err
}
