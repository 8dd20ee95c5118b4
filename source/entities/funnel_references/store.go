package funnelreferences

import (
	"context"
	"crm/source/schemas"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// StageQuery selects the references sitting in one (funnel, stage) pair.
// A nil OpportunityIDs does not restrict; an empty non-nil one matches nothing.
type StageQuery struct {
	FunnelID       bson.ObjectID
	StageID        string
	OpportunityIDs []bson.ObjectID
	Skip           int64
	Limit          int64
}

// Store persists funnel references. SwapStage is the only way a stored
// current stage changes: it applies the move only while the stored current
// stage still equals expected and was entered no later than at, and fails
// with utils.ErrConflict otherwise. When the reference already sits on next
// it is returned unchanged with swapped false.
type Store interface {
	InsertOne(ctx context.Context, reference *schemas.FunnelReference) error
	FindOne(ctx context.Context, id bson.ObjectID) (schemas.FunnelReference, error)
	SwapStage(ctx context.Context, id bson.ObjectID, expected, next string, at time.Time) (reference schemas.FunnelReference, swapped bool, err error)
	FindInStage(ctx context.Context, query StageQuery) ([]schemas.FunnelReference, error)
	CountInStage(ctx context.Context, query StageQuery) (int64, error)
	DeleteByOpportunity(ctx context.Context, opportunityID bson.ObjectID) ([]schemas.FunnelReference, error)
}
