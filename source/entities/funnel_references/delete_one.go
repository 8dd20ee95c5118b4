package funnelreferences

import (
	"context"
	"crm/source/database"
	"crm/source/utils"
	"net/http"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// DeleteByOpportunity removes an opportunity from every funnel it was placed in.
func (h *Handler) DeleteByOpportunity(w http.ResponseWriter, r *http.Request) {
	opportunityID, err := bson.ObjectIDFromHex(r.PathValue("id"))
	if err != nil {
		utils.SendResponse(w, http.StatusBadRequest, "", nil, utils.INVALID_OPPORTUNITY_ID_FORMAT)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), database.MONGO_TIMEOUT)
	defer cancel()

	deleted, err := h.service.RemoveOpportunity(ctx, opportunityID, userID(r))
	if err != nil {
		utils.SendError(w, err, utils.CANNOT_DELETE_FUNNEL_REFERENCES_FROM_MONGODB)
		return
	}

	utils.SendResponse(w, http.StatusOK, "", map[string]int{"deleted": deleted}, 0)
}
