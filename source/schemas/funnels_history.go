package schemas

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	FUNNEL_EVENT_CREATE = "create"
	FUNNEL_EVENT_MOVE   = "move"
	FUNNEL_EVENT_DELETE = "delete"
)

// FunnelEvent is emitted after every durable change of a funnel reference
// and is also the record kept in the funnels_history collection.
type FunnelEvent struct {
	ID              bson.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Action          string        `json:"action" bson:"action"`
	ReferenceID     bson.ObjectID `json:"reference_id" bson:"reference_id"`
	OpportunityID   bson.ObjectID `json:"opportunity_id" bson:"opportunity_id"`
	OpportunityName string        `json:"opportunity_name,omitempty" bson:"opportunity_name,omitempty"`
	FunnelID        bson.ObjectID `json:"funnel_id" bson:"funnel_id"`
	FromStageID     string        `json:"from_stage_id,omitempty" bson:"from_stage_id,omitempty"`
	ToStageID       string        `json:"to_stage_id,omitempty" bson:"to_stage_id,omitempty"`
	UserID          int           `json:"user_id,omitempty" bson:"user_id,omitempty"`
	At              time.Time     `json:"at" bson:"at"`
}

// AffectedStages lists the stages whose contents changed with the event.
func (e FunnelEvent) AffectedStages() []string {
	stages := []string{}
	if e.FromStageID != "" {
		stages = append(stages, e.FromStageID)
	}
	if e.ToStageID != "" && e.ToStageID != e.FromStageID {
		stages = append(stages, e.ToStageID)
	}
	return stages
}
