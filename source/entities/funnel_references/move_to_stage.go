package funnelreferences

import (
	"context"
	"crm/source/database"
	"crm/source/schemas"
	"crm/source/utils"
	"encoding/json"
	"net/http"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// MoveToStage answers a drag of a kanban card. The body names the stage the
// client saw the card in; a stale view answers 409.
func (h *Handler) MoveToStage(w http.ResponseWriter, r *http.Request) {
	id, err := bson.ObjectIDFromHex(r.PathValue("id"))
	if err != nil {
		utils.SendResponse(w, http.StatusBadRequest, "", nil, utils.INVALID_FUNNEL_REFERENCE_ID_FORMAT)
		return
	}

	request := schemas.TransitionRequest{}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		utils.SendResponse(w, http.StatusBadRequest, "", nil, utils.FUNNEL_REFERENCES_INVALID_REQUEST_DATA)
		return
	}
	if !request.FunnelReferenceID.IsZero() && request.FunnelReferenceID != id {
		utils.SendResponse(w, http.StatusBadRequest, "", nil, utils.FUNNEL_REFERENCES_INVALID_REQUEST_DATA)
		return
	}
	if err := utils.ValidateStruct(request, utils.FUNNEL_REFERENCES_INVALID_REQUEST_DATA); err != nil {
		utils.SendError(w, err, utils.FUNNEL_REFERENCES_INVALID_REQUEST_DATA)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), database.MONGO_TIMEOUT)
	defer cancel()

	// funnel_id is immutable
	if !request.FunnelID.IsZero() {
		current, err := h.service.GetOne(ctx, id)
		if err != nil {
			utils.SendError(w, err, utils.CANNOT_FIND_FUNNEL_REFERENCE_IN_MONGODB)
			return
		}
		if current.FunnelID != request.FunnelID {
			utils.SendError(w, utils.Validation(utils.FUNNEL_REFERENCES_INVALID_REQUEST_DATA, "Referência não pertence ao funil informado"), utils.FUNNEL_REFERENCES_INVALID_REQUEST_DATA)
			return
		}
	}

	reference, err := h.service.MoveToStage(ctx, id, request.PreviousStageID, request.NewStageID, userID(r))
	if err != nil {
		utils.SendError(w, err, utils.CANNOT_UPDATE_FUNNEL_REFERENCE_STAGE)
		return
	}

	utils.SendResponse(w, http.StatusOK, "", schemas.TransitionResult{ID: reference.ID, Reference: reference}, 0)
}
