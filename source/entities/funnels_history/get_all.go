package funnelshistory

import (
	"context"
	"crm/source/database"
	"crm/source/utils"
	"net/http"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// GetAll lists the events of one funnel reference, oldest first.
func (h *Handler) GetAll(w http.ResponseWriter, r *http.Request) {
	referenceID, err := bson.ObjectIDFromHex(r.PathValue("id"))
	if err != nil {
		utils.SendResponse(w, http.StatusBadRequest, "", nil, utils.INVALID_FUNNEL_REFERENCE_ID_FORMAT)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), database.MONGO_TIMEOUT)
	defer cancel()

	events, err := h.store.FindByReference(ctx, referenceID)
	if err != nil {
		utils.SendError(w, err, utils.CANNOT_FIND_FUNNELS_HISTORY_IN_MONGODB)
		return
	}

	utils.SendResponse(w, http.StatusOK, "", events, 0)
}
