package funnelreferences

import (
	"context"
	"crm/source/database"
	"crm/source/utils"
	"encoding/json"
	"net/http"
)

func (h *Handler) CreateOne(w http.ResponseWriter, r *http.Request) {
	input := EnterFunnelInput{}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.SendResponse(w, http.StatusBadRequest, "", nil, utils.FUNNEL_REFERENCES_INVALID_REQUEST_DATA)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), database.MONGO_TIMEOUT)
	defer cancel()

	reference, err := h.service.EnterFunnel(ctx, input, userID(r))
	if err != nil {
		utils.SendError(w, err, utils.CANNOT_INSERT_FUNNEL_REFERENCE_TO_MONGODB)
		return
	}

	utils.SendResponse(w, http.StatusCreated, "", reference, 0)
}
