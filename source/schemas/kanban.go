package schemas

import (
	"encoding/json"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	PERIOD_FIELD_CREATED_AT = "created_at"
	PERIOD_FIELD_WON_AT     = "won_at"
	PERIOD_FIELD_LOST_AT    = "lost_at"
)

type PeriodFilter struct {
	Field  string `json:"field,omitempty" validate:"omitempty,oneof=created_at won_at lost_at"`
	After  string `json:"after,omitempty"`
	Before string `json:"before,omitempty"`
}

// StageFilters is the conjunction applied to the opportunities shown in a
// kanban column. Zero values do not filter.
type StageFilters struct {
	Responsibles     []bson.ObjectID `json:"responsibles,omitempty"`
	Partners         []bson.ObjectID `json:"partners,omitempty"`
	OpportunityTypes []string        `json:"opportunity_types,omitempty" validate:"dive,required"`
	Status           string          `json:"status,omitempty" validate:"omitempty,oneof=ongoing won lost"`
	Segments         []string        `json:"segments,omitempty" validate:"dive,required"`
	Period           *PeriodFilter   `json:"period,omitempty"`
	IsFromMarketing  bool            `json:"is_from_marketing,omitempty"`
	IsFromReferral   bool            `json:"is_from_referral,omitempty"`
}

// CanonicalKey identifies the filter set independently of the order the
// caller listed the values in.
func (f StageFilters) CanonicalKey() string {
	normalized := f
	normalized.Responsibles = sortedIDs(f.Responsibles)
	normalized.Partners = sortedIDs(f.Partners)
	normalized.OpportunityTypes = sortedStrings(f.OpportunityTypes)
	normalized.Segments = sortedStrings(f.Segments)

	encoded, _ := json.Marshal(normalized)
	return string(encoded)
}

type StagePageRequest struct {
	FunnelID bson.ObjectID `json:"funnel_id" validate:"required"`
	StageID  string        `json:"stage_id" validate:"required"`
	Page     int           `json:"page,omitempty" validate:"omitempty,min=1"`
	PageSize int           `json:"page_size,omitempty" validate:"omitempty,min=1,max=100"`
	Filters  StageFilters  `json:"filters"`
}

type KanbanItem struct {
	ReferenceID    bson.ObjectID   `json:"reference_id"`
	OpportunityID  bson.ObjectID   `json:"opportunity_id"`
	FunnelID       bson.ObjectID   `json:"funnel_id"`
	StageID        string          `json:"stage_id"`
	StageEnteredAt *time.Time      `json:"stage_entered_at,omitempty"`
	Name           string          `json:"name,omitempty"`
	Identifier     string          `json:"identifier,omitempty"`
	Type           string          `json:"type,omitempty"`
	Segment        string          `json:"segment,omitempty"`
	Status         string          `json:"status,omitempty"`
	Responsibles   []bson.ObjectID `json:"responsibles,omitempty"`
	PartnerID      bson.ObjectID   `json:"partner_id"`
	CreatedAt      time.Time       `json:"created_at"`
}

type StagePage struct {
	Items           []KanbanItem `json:"items"`
	ItemsMatched    int64        `json:"items_matched"`
	HasNextPage     bool         `json:"has_next_page"`
	HasPreviousPage bool         `json:"has_previous_page"`
	PreviousCursor  *int         `json:"previous_cursor"`
	NextCursor      *int         `json:"next_cursor"`
}

type BatchRequest struct {
	Requests []StagePageRequest `json:"requests" validate:"required,min=1,dive"`
}

// BatchItem holds either the page of one batch request or the reason it
// failed; requests of the same batch fail independently.
type BatchItem struct {
	Data    *StagePage `json:"data,omitempty"`
	Error   string     `json:"error,omitempty"`
	Message string     `json:"message,omitempty"`
	Err     error      `json:"-"`
}

type TransitionRequest struct {
	FunnelReferenceID bson.ObjectID `json:"funnel_reference_id"`
	FunnelID          bson.ObjectID `json:"funnel_id"`
	NewStageID        string        `json:"new_stage_id" validate:"required"`
	PreviousStageID   string        `json:"previous_stage_id" validate:"required"`
}

type TransitionResult struct {
	ID        bson.ObjectID   `json:"id"`
	Reference FunnelReference `json:"reference"`
}

func sortedIDs(ids []bson.ObjectID) []bson.ObjectID {
	if len(ids) == 0 {
		return nil
	}
	sorted := slices.Clone(ids)
	slices.SortFunc(sorted, func(a, b bson.ObjectID) int {
		return slices.Compare(a[:], b[:])
	})
	return sorted
}

func sortedStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return sorted
}
