package funnels

import (
	"context"
	"crm/source/database"
	"crm/source/schemas"
	"crm/source/utils"
	"encoding/json"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) CreateOne(w http.ResponseWriter, r *http.Request) {
	funnel := schemas.Funnel{}
	if err := json.NewDecoder(r.Body).Decode(&funnel); err != nil {
		utils.SendResponse(w, http.StatusBadRequest, "", nil, utils.FUNNELS_INVALID_REQUEST_DATA)
		return
	}
	if err := utils.ValidateStruct(funnel, utils.FUNNELS_INVALID_REQUEST_DATA); err != nil {
		utils.SendError(w, err, utils.FUNNELS_INVALID_REQUEST_DATA)
		return
	}
	if err := funnel.ValidateStages(); err != nil {
		utils.SendError(w, utils.Validation(utils.FUNNELS_INVALID_REQUEST_DATA, err.Error()), utils.FUNNELS_INVALID_REQUEST_DATA)
		return
	}

	funnel.ID = bson.NilObjectID
	funnel.CreatedAt = time.Now().UTC()
	funnel.UpdatedAt = funnel.CreatedAt

	ctx, cancel := context.WithTimeout(r.Context(), database.MONGO_TIMEOUT)
	defer cancel()

	if err := h.store.InsertOne(ctx, &funnel); err != nil {
		utils.SendError(w, err, utils.CANNOT_INSERT_FUNNEL_TO_MONGODB)
		return
	}

	utils.SendResponse(w, http.StatusCreated, "", funnel, 0)
}

func (h *Handler) GetOne(w http.ResponseWriter, r *http.Request) {
	id, err := bson.ObjectIDFromHex(r.PathValue("id"))
	if err != nil {
		utils.SendResponse(w, http.StatusBadRequest, "", nil, utils.INVALID_FUNNEL_ID_FORMAT)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), database.MONGO_TIMEOUT)
	defer cancel()

	funnel, err := h.store.FindOne(ctx, id)
	if err != nil {
		utils.SendError(w, err, utils.CANNOT_FIND_FUNNEL_BY_ID_IN_MONGODB)
		return
	}

	utils.SendResponse(w, http.StatusOK, "", funnel, 0)
}

func (h *Handler) GetAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), database.MONGO_TIMEOUT)
	defer cancel()

	funnels, err := h.store.FindAll(ctx, r.URL.Query().Get("type"))
	if err != nil {
		utils.SendError(w, err, utils.CANNOT_FIND_FUNNELS_IN_MONGODB)
		return
	}

	utils.SendResponse(w, http.StatusOK, "", funnels, 0)
}
