package schemas

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	OPPORTUNITY_STATUS_ONGOING = "ongoing"
	OPPORTUNITY_STATUS_WON     = "won"
	OPPORTUNITY_STATUS_LOST    = "lost"
)

type Opportunity struct {
	ID              bson.ObjectID   `json:"id,omitempty" bson:"_id,omitempty"`
	Name            string          `json:"name,omitempty" bson:"name,omitempty"`
	Identifier      string          `json:"identifier,omitempty" bson:"identifier,omitempty"`
	Type            string          `json:"type,omitempty" bson:"type,omitempty"`
	Segment         string          `json:"segment,omitempty" bson:"segment,omitempty"`
	Responsibles    []bson.ObjectID `json:"responsibles,omitempty" bson:"responsibles,omitempty"`
	PartnerID       bson.ObjectID   `json:"partner_id,omitempty" bson:"partner_id,omitempty"`
	WonAt           *time.Time      `json:"won_at,omitempty" bson:"won_at,omitempty"`
	LostAt          *time.Time      `json:"lost_at,omitempty" bson:"lost_at,omitempty"`
	IsFromMarketing bool            `json:"is_from_marketing,omitempty" bson:"is_from_marketing,omitempty"`
	IsFromReferral  bool            `json:"is_from_referral,omitempty" bson:"is_from_referral,omitempty"`
	CreatedAt       time.Time       `json:"created_at" bson:"created_at,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at" bson:"updated_at,omitempty"`
}

// Status derives the status class from the won/lost markers; a won marker
// takes precedence over a lost one.
func (o Opportunity) Status() string {
	if o.WonAt != nil {
		return OPPORTUNITY_STATUS_WON
	}
	if o.LostAt != nil {
		return OPPORTUNITY_STATUS_LOST
	}
	return OPPORTUNITY_STATUS_ONGOING
}
