package schemas

import (
	"fmt"
	"maps"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// StageEntry is one visit of a reference to a stage. ExitedAt stays nil while
// the reference sits in the stage.
type StageEntry struct {
	EnteredAt *time.Time `json:"entered_at" bson:"entered_at"`
	ExitedAt  *time.Time `json:"exited_at" bson:"exited_at"`
}

// StagePatch describes the fields SetStageEntry changes. Nil fields are kept,
// except that ClearExit resets ExitedAt to nil.
type StagePatch struct {
	EnteredAt *time.Time
	ExitedAt  *time.Time
	ClearExit bool
}

type StageHistory map[string]StageEntry

type FunnelReference struct {
	ID             bson.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	OpportunityID  bson.ObjectID `json:"opportunity_id" bson:"opportunity_id"`
	FunnelID       bson.ObjectID `json:"funnel_id" bson:"funnel_id"`
	CurrentStageID string        `json:"current_stage_id" bson:"current_stage_id"`
	Stages         StageHistory  `json:"stages" bson:"stages"`
	PartnerID      bson.ObjectID `json:"partner_id" bson:"partner_id"`
	CreatedAt      time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" bson:"updated_at,omitempty"`
}

// SetStageEntry returns a copy of stages with patch applied to stageID,
// creating the entry when the stage was never visited. The input map is left
// untouched.
func SetStageEntry(stages StageHistory, stageID string, patch StagePatch) (StageHistory, error) {
	if err := ValidateStageID(stageID); err != nil {
		return nil, err
	}

	entry := stages[stageID]
	if patch.EnteredAt != nil {
		entry.EnteredAt = timePtr(*patch.EnteredAt)
	}
	if patch.ClearExit {
		entry.ExitedAt = nil
	} else if patch.ExitedAt != nil {
		entry.ExitedAt = timePtr(*patch.ExitedAt)
	}

	if entry.EnteredAt == nil && entry.ExitedAt != nil {
		return nil, fmt.Errorf("stage %q has an exit without an entry", stageID)
	}
	if entry.EnteredAt != nil && entry.ExitedAt != nil && entry.ExitedAt.Before(*entry.EnteredAt) {
		return nil, fmt.Errorf("stage %q would exit before it was entered", stageID)
	}

	next := make(StageHistory, len(stages)+1)
	maps.Copy(next, stages)
	next[stageID] = entry
	return next, nil
}

// NewFunnelReference places an opportunity on the entry stage of a funnel.
func NewFunnelReference(opportunityID, funnelID, partnerID bson.ObjectID, stageID string, at time.Time) (FunnelReference, error) {
	stages, err := SetStageEntry(StageHistory{}, stageID, StagePatch{EnteredAt: &at})
	if err != nil {
		return FunnelReference{}, err
	}

	return FunnelReference{
		OpportunityID:  opportunityID,
		FunnelID:       funnelID,
		CurrentStageID: stageID,
		Stages:         stages,
		PartnerID:      partnerID,
		CreatedAt:      at,
		UpdatedAt:      at,
	}, nil
}

// ApplyTransition returns the reference moved from its current stage to
// next at the instant at. The exit of the current stage and the entry of
// the next one share the same instant.
func (f FunnelReference) ApplyTransition(next string, at time.Time) (FunnelReference, error) {
	if next == f.CurrentStageID {
		return f, nil
	}

	stages, err := SetStageEntry(f.Stages, f.CurrentStageID, StagePatch{ExitedAt: &at})
	if err != nil {
		return FunnelReference{}, err
	}
	stages, err = SetStageEntry(stages, next, StagePatch{EnteredAt: &at, ClearExit: true})
	if err != nil {
		return FunnelReference{}, err
	}

	moved := f
	moved.Stages = stages
	moved.CurrentStageID = next
	moved.UpdatedAt = at
	return moved, nil
}

// TransitionInstant is the instant a move leaving the current stage at now
// is recorded with: truncated to the store's millisecond precision and never
// earlier than the entry into the current stage.
func (f FunnelReference) TransitionInstant(now time.Time) time.Time {
	at := now.UTC().Truncate(time.Millisecond)
	if current, ok := f.Stages[f.CurrentStageID]; ok && current.EnteredAt != nil && at.Before(*current.EnteredAt) {
		return *current.EnteredAt
	}
	return at
}

// DwellTime is how long the reference stayed in stageID. ok is false while
// the stage is still occupied or was never visited.
func (f FunnelReference) DwellTime(stageID string) (time.Duration, bool) {
	entry, exists := f.Stages[stageID]
	if !exists || entry.EnteredAt == nil || entry.ExitedAt == nil {
		return 0, false
	}
	return entry.ExitedAt.Sub(*entry.EnteredAt), true
}

// CheckInvariants reports the first broken rule of the stage history.
func (f FunnelReference) CheckInvariants() error {
	current, ok := f.Stages[f.CurrentStageID]
	if !ok {
		return fmt.Errorf("current stage %q missing from stages", f.CurrentStageID)
	}
	if current.EnteredAt == nil {
		return fmt.Errorf("current stage %q has no entry time", f.CurrentStageID)
	}
	if current.ExitedAt != nil {
		return fmt.Errorf("current stage %q has an exit time", f.CurrentStageID)
	}

	for stageID, entry := range f.Stages {
		if stageID == f.CurrentStageID {
			continue
		}
		if entry.EnteredAt == nil || entry.ExitedAt == nil {
			return fmt.Errorf("past stage %q is not closed", stageID)
		}
		if entry.ExitedAt.Before(*entry.EnteredAt) {
			return fmt.Errorf("past stage %q exits before it was entered", stageID)
		}
	}
	return nil
}

// Clone returns a deep copy; stage entries are never shared between copies.
func (f FunnelReference) Clone() FunnelReference {
	clone := f
	clone.Stages = make(StageHistory, len(f.Stages))
	for stageID, entry := range f.Stages {
		copied := StageEntry{}
		if entry.EnteredAt != nil {
			copied.EnteredAt = timePtr(*entry.EnteredAt)
		}
		if entry.ExitedAt != nil {
			copied.ExitedAt = timePtr(*entry.ExitedAt)
		}
		clone.Stages[stageID] = copied
	}
	return clone
}

func timePtr(t time.Time) *time.Time {
	return &t
}
