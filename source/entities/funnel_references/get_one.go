package funnelreferences

import (
	"context"
	"crm/source/database"
	"crm/source/utils"
	"net/http"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func (h *Handler) GetOne(w http.ResponseWriter, r *http.Request) {
	id, err := bson.ObjectIDFromHex(r.PathValue("id"))
	if err != nil {
		utils.SendResponse(w, http.StatusBadRequest, "", nil, utils.INVALID_FUNNEL_REFERENCE_ID_FORMAT)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), database.MONGO_TIMEOUT)
	defer cancel()

	reference, err := h.service.GetOne(ctx, id)
	if err != nil {
		utils.SendError(w, err, utils.CANNOT_FIND_FUNNEL_REFERENCE_IN_MONGODB)
		return
	}

	utils.SendResponse(w, http.StatusOK, "", reference, 0)
}
