package funnelshistory

import (
	"context"
	"crm/source/schemas"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Recorder keeps every funnel event in the funnels_history collection, which
// is the audit trail shown next to an opportunity.
type Recorder struct {
	store Store
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

func (r *Recorder) Notify(ctx context.Context, event schemas.FunnelEvent) error {
	event.ID = bson.NilObjectID
	if err := r.store.InsertOne(ctx, &event); err != nil {
		return fmt.Errorf("record funnel event: %w", err)
	}
	return nil
}
