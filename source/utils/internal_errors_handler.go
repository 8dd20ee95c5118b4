package utils

import "fmt"

const (
	FUNNELS_INVALID_REQUEST_DATA = iota + 1
	INVALID_FUNNEL_ID_FORMAT
	CANNOT_CONNECT_TO_MONGODB
	CANNOT_INSERT_FUNNEL_TO_MONGODB
	CANNOT_FIND_FUNNELS_IN_MONGODB
	CANNOT_FIND_FUNNEL_BY_ID_IN_MONGODB
	FUNNEL_REFERENCES_INVALID_REQUEST_DATA
	INVALID_FUNNEL_REFERENCE_ID_FORMAT
	INVALID_OPPORTUNITY_ID_FORMAT
	CANNOT_INSERT_FUNNEL_REFERENCE_TO_MONGODB
	CANNOT_FIND_FUNNEL_REFERENCE_IN_MONGODB
	CANNOT_UPDATE_FUNNEL_REFERENCE_STAGE
	CANNOT_DELETE_FUNNEL_REFERENCES_FROM_MONGODB
	FUNNEL_REFERENCE_STAGE_CONFLICT
	FUNNEL_REFERENCE_ALREADY_EXISTS
	FUNNEL_STAGE_NOT_IN_FUNNEL
	CANNOT_FIND_FUNNELS_HISTORY_IN_MONGODB
	KANBAN_INVALID_REQUEST_DATA
	KANBAN_FORBIDDEN_SCOPE
	CANNOT_FIND_OPPORTUNITIES_IN_MONGODB
	CANNOT_RESOLVE_PERMISSION_SCOPE
	CANNOT_FIND_KANBAN_STAGE_PAGE
	STORAGE_TEMPORARILY_UNAVAILABLE
)

func SendInternalError(internalErrorCode int) string {
	return fmt.Sprintf("Ocorreu um erro interno no servidor. Por favor, tente novamente mais tarde (Cod: %d)", internalErrorCode)
}
