package controllers

import (
	"net/http"

	"hoyn/internal/models"
	"hoyn/internal/providers"
	"hoyn/internal/services"
)

type ProfileController struct {
	logger  providers.Logger
	service services.ProfileServiceInterface
}

func NewProfileController(logger providers.Logger, service services.ProfileServiceInterface) *ProfileController {
	return &ProfileController{logger: logger, service: service}
}

func (pc *ProfileController) Upsert(w http.ResponseWriter, r *http.Request) {
	var profile models.Profile
	if err := decodeBody(w, r, &profile); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}
	if err := pc.service.Upsert(r.Context(), &profile); err != nil {
		writeServiceError(w, pc.logger, providers.TypeApp, err)
		return
	}
	writeJSON(w, http.StatusOK, &profile)
}
