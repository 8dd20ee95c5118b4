package kanban

import (
	"crm/source/schemas"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestOpportunityFilter(t *testing.T) {
	responsible := bson.NewObjectID()
	filters := schemas.StageFilters{
		Responsibles:     []bson.ObjectID{responsible},
		OpportunityTypes: []string{"b2c"},
		Status:           schemas.OPPORTUNITY_STATUS_LOST,
		Period:           &schemas.PeriodFilter{Field: schemas.PERIOD_FIELD_LOST_AT, After: "2024-01-01", Before: "2024-01-31"},
		IsFromReferral:   true,
	}
	period, err := validateFilters(filters)
	require.NoError(t, err)

	filter := opportunityFilter(filters, period)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	expected := bson.D{
		{Key: "responsibles", Value: bson.D{{Key: "$in", Value: []bson.ObjectID{responsible}}}},
		{Key: "type", Value: bson.D{{Key: "$in", Value: []string{"b2c"}}}},
		{Key: "won_at", Value: nil},
		{Key: "lost_at", Value: bson.D{{Key: "$ne", Value: nil}}},
		{Key: "lost_at", Value: bson.D{{Key: "$gte", Value: from}, {Key: "$lt", Value: to}}},
		{Key: "is_from_referral", Value: true},
	}
	assert.Equal(t, expected, filter)
}

func TestValidateFiltersPeriod(t *testing.T) {
	period, err := validateFilters(schemas.StageFilters{Period: &schemas.PeriodFilter{Before: "2024-03-01T10:00:00Z"}})
	require.NoError(t, err)
	require.NotNil(t, period)
	assert.Equal(t, schemas.PERIOD_FIELD_CREATED_AT, period.field)
	assert.False(t, period.toIsExclusive)
	assert.Nil(t, period.from)

	period, err = validateFilters(schemas.StageFilters{Period: &schemas.PeriodFilter{Field: schemas.PERIOD_FIELD_WON_AT}})
	require.NoError(t, err)
	assert.Nil(t, period)

	_, err = validateFilters(schemas.StageFilters{Period: &schemas.PeriodFilter{After: "2024-03-01", Before: "2024-03-01"}})
	assert.NoError(t, err)
}

func TestMatchesFiltersStatus(t *testing.T) {
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	wonAndLost := schemas.Opportunity{WonAt: &at, LostAt: &at}

	assert.True(t, matchesFilters(wonAndLost, schemas.StageFilters{Status: schemas.OPPORTUNITY_STATUS_WON}, nil))
	assert.False(t, matchesFilters(wonAndLost, schemas.StageFilters{Status: schemas.OPPORTUNITY_STATUS_LOST}, nil))
	assert.True(t, matchesFilters(schemas.Opportunity{}, schemas.StageFilters{Status: schemas.OPPORTUNITY_STATUS_ONGOING}, nil))
}
