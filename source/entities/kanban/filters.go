package kanban

import (
	"crm/source/schemas"
	"crm/source/utils"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// periodRange is a resolved period filter. A plain date as upper bound
// covers the whole day, so to is then exclusive.
type periodRange struct {
	field         string
	from          *time.Time
	to            *time.Time
	toIsExclusive bool
}

func validateFilters(filters schemas.StageFilters) (*periodRange, error) {
	if err := utils.ValidateStruct(filters, utils.KANBAN_INVALID_REQUEST_DATA); err != nil {
		return nil, err
	}
	if filters.Period == nil {
		return nil, nil
	}

	period := &periodRange{field: filters.Period.Field}
	if period.field == "" {
		period.field = schemas.PERIOD_FIELD_CREATED_AT
	}

	if filters.Period.After != "" {
		from, err := utils.ParseDate(filters.Period.After)
		if err != nil {
			return nil, utils.Validation(utils.KANBAN_INVALID_REQUEST_DATA, "Data inicial do período inválida")
		}
		period.from = &from
	}
	if filters.Period.Before != "" {
		to, err := utils.ParseDate(filters.Period.Before)
		if err != nil {
			return nil, utils.Validation(utils.KANBAN_INVALID_REQUEST_DATA, "Data final do período inválida")
		}
		if len(filters.Period.Before) == len("2006-01-02") {
			to = to.AddDate(0, 0, 1)
			period.toIsExclusive = true
		}
		period.to = &to
	}

	if period.from != nil && period.to != nil {
		if period.from.After(*period.to) || (period.toIsExclusive && period.from.Equal(*period.to)) {
			return nil, utils.Validation(utils.KANBAN_INVALID_REQUEST_DATA, "Data inicial do período deve ser anterior à data final")
		}
	}
	if period.from == nil && period.to == nil {
		return nil, nil
	}
	return period, nil
}

// hasOpportunityFilters reports whether filters restrict opportunities at all;
// without restrictions the kanban query skips the opportunity lookup.
func hasOpportunityFilters(filters schemas.StageFilters, period *periodRange) bool {
	return len(filters.Responsibles) > 0 ||
		len(filters.Partners) > 0 ||
		len(filters.OpportunityTypes) > 0 ||
		len(filters.Segments) > 0 ||
		filters.Status != "" ||
		period != nil ||
		filters.IsFromMarketing ||
		filters.IsFromReferral
}

func opportunityFilter(filters schemas.StageFilters, period *periodRange) bson.D {
	filter := bson.D{}

	if len(filters.Responsibles) > 0 {
		filter = append(filter, bson.E{Key: "responsibles", Value: bson.D{{Key: "$in", Value: filters.Responsibles}}})
	}
	if len(filters.Partners) > 0 {
		filter = append(filter, bson.E{Key: "partner_id", Value: bson.D{{Key: "$in", Value: filters.Partners}}})
	}
	if len(filters.OpportunityTypes) > 0 {
		filter = append(filter, bson.E{Key: "type", Value: bson.D{{Key: "$in", Value: filters.OpportunityTypes}}})
	}
	if len(filters.Segments) > 0 {
		filter = append(filter, bson.E{Key: "segment", Value: bson.D{{Key: "$in", Value: filters.Segments}}})
	}

	switch filters.Status {
	case schemas.OPPORTUNITY_STATUS_ONGOING:
		filter = append(filter,
			bson.E{Key: "won_at", Value: nil},
			bson.E{Key: "lost_at", Value: nil},
		)
	case schemas.OPPORTUNITY_STATUS_WON:
		filter = append(filter, bson.E{Key: "won_at", Value: bson.D{{Key: "$ne", Value: nil}}})
	case schemas.OPPORTUNITY_STATUS_LOST:
		filter = append(filter,
			bson.E{Key: "won_at", Value: nil},
			bson.E{Key: "lost_at", Value: bson.D{{Key: "$ne", Value: nil}}},
		)
	}

	if period != nil {
		bounds := bson.D{}
		if period.from != nil {
			bounds = append(bounds, bson.E{Key: "$gte", Value: *period.from})
		}
		if period.to != nil {
			operator := "$lte"
			if period.toIsExclusive {
				operator = "$lt"
			}
			bounds = append(bounds, bson.E{Key: operator, Value: *period.to})
		}
		filter = append(filter, bson.E{Key: period.field, Value: bounds})
	}

	if filters.IsFromMarketing {
		filter = append(filter, bson.E{Key: "is_from_marketing", Value: true})
	}
	if filters.IsFromReferral {
		filter = append(filter, bson.E{Key: "is_from_referral", Value: true})
	}

	return filter
}

// matchesFilters evaluates the same conjunction as opportunityFilter in memory.
func matchesFilters(opportunity schemas.Opportunity, filters schemas.StageFilters, period *periodRange) bool {
	if len(filters.Responsibles) > 0 && !slices.ContainsFunc(opportunity.Responsibles, func(id bson.ObjectID) bool {
		return slices.Contains(filters.Responsibles, id)
	}) {
		return false
	}
	if len(filters.Partners) > 0 && !slices.Contains(filters.Partners, opportunity.PartnerID) {
		return false
	}
	if len(filters.OpportunityTypes) > 0 && !slices.Contains(filters.OpportunityTypes, opportunity.Type) {
		return false
	}
	if len(filters.Segments) > 0 && !slices.Contains(filters.Segments, opportunity.Segment) {
		return false
	}
	if filters.Status != "" && opportunity.Status() != filters.Status {
		return false
	}
	if filters.IsFromMarketing && !opportunity.IsFromMarketing {
		return false
	}
	if filters.IsFromReferral && !opportunity.IsFromReferral {
		return false
	}

	if period != nil {
		value := periodValue(opportunity, period.field)
		if value == nil {
			return false
		}
		if period.from != nil && value.Before(*period.from) {
			return false
		}
		if period.to != nil {
			if period.toIsExclusive && !value.Before(*period.to) {
				return false
			}
			if !period.toIsExclusive && value.After(*period.to) {
				return false
			}
		}
	}

	return true
}

func periodValue(opportunity schemas.Opportunity, field string) *time.Time {
	switch field {
	case schemas.PERIOD_FIELD_WON_AT:
		return opportunity.WonAt
	case schemas.PERIOD_FIELD_LOST_AT:
		return opportunity.LostAt
	}
	return &opportunity.CreatedAt
}
