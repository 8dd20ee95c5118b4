package schemas

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type FunnelStage struct {
	ID   string `json:"id" bson:"id" validate:"required"`
	Name string `json:"name,omitempty" bson:"name,omitempty"`
}

type Funnel struct {
	ID        bson.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Name      string        `json:"name,omitempty" bson:"name,omitempty" validate:"required"`
	Type      string        `json:"type,omitempty" bson:"type,omitempty"`
	Stages    []FunnelStage `json:"stages,omitempty" bson:"stages,omitempty" validate:"required,min=1,dive"`
	CreatedAt time.Time     `json:"created_at" bson:"created_at,omitempty"`
	UpdatedAt time.Time     `json:"updated_at" bson:"updated_at,omitempty"`
}

func (f Funnel) HasStage(stageID string) bool {
	for _, stage := range f.Stages {
		if stage.ID == stageID {
			return true
		}
	}
	return false
}

// EntryStage is the stage an opportunity lands on when it enters the funnel.
func (f Funnel) EntryStage() (string, bool) {
	if len(f.Stages) == 0 {
		return "", false
	}
	return f.Stages[0].ID, true
}

// ValidateStages checks that every stage id is usable as a document key and
// appears only once.
func (f Funnel) ValidateStages() error {
	seen := make(map[string]bool, len(f.Stages))
	for _, stage := range f.Stages {
		if err := ValidateStageID(stage.ID); err != nil {
			return err
		}
		if seen[stage.ID] {
			return fmt.Errorf("duplicated stage id %q", stage.ID)
		}
		seen[stage.ID] = true
	}
	return nil
}

// ValidateStageID rejects ids that cannot be stored as keys of the stages map.
func ValidateStageID(stageID string) error {
	if stageID == "" {
		return fmt.Errorf("empty stage id")
	}
	if len(stageID) > 128 {
		return fmt.Errorf("stage id %q is too long", stageID)
	}
	if strings.HasPrefix(stageID, "$") || strings.ContainsAny(stageID, ".\x00") {
		return fmt.Errorf("stage id %q contains reserved characters", stageID)
	}
	return nil
}
