package funnelreferences

import (
	"crm/source/middlewares"
	"net/http"
)

// Handler exposes the transition engine over HTTP.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func userID(r *http.Request) int {
	user, _ := middlewares.UserFromContext(r.Context())
	return user.ID
}
