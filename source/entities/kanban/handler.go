package kanban

import (
	"context"
	"crm/source/database"
	"crm/source/middlewares"
	"crm/source/schemas"
	"crm/source/utils"
	"encoding/json"
	"net/http"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) GetStagePage(w http.ResponseWriter, r *http.Request) {
	request := schemas.StagePageRequest{}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		utils.SendResponse(w, http.StatusBadRequest, "", nil, utils.KANBAN_INVALID_REQUEST_DATA)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), database.MONGO_TIMEOUT)
	defer cancel()

	user, _ := middlewares.UserFromContext(r.Context())
	page, err := h.service.GetStagePage(ctx, user.ID, request)
	if err != nil {
		utils.SendError(w, err, utils.CANNOT_FIND_KANBAN_STAGE_PAGE)
		return
	}

	utils.SendResponse(w, http.StatusOK, "", page, 0)
}

// GetBatch answers {data: [...]} in request order; failed stages carry
// {error, message} in their slot instead of a page.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	request := schemas.BatchRequest{}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		utils.SendResponse(w, http.StatusBadRequest, "", nil, utils.KANBAN_INVALID_REQUEST_DATA)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), database.MONGO_TIMEOUT)
	defer cancel()

	user, _ := middlewares.UserFromContext(r.Context())
	results, err := h.service.GetBatch(ctx, user.ID, request.Requests)
	if err != nil {
		utils.SendError(w, err, utils.CANNOT_FIND_KANBAN_STAGE_PAGE)
		return
	}

	utils.SendResponse(w, http.StatusOK, "", results, 0)
}
