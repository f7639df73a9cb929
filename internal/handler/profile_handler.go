package handler

import (
	"net/http"

	"cdr.dev/slog/v3"

	"ecoleafdrive/internal/domain"
	"ecoleafdrive/internal/service"
)

type ProfileHandler struct {
	profileService *service.ProfileService
	logger         slog.Logger
}

type userResponse struct {
	User *domain.UserProfile `json:"user"`
}

func NewProfileHandler(profileService *service.ProfileService, logger slog.Logger) *ProfileHandler {
	return &ProfileHandler{
		profileService: profileService,
		logger:         logger.Named("http.profile"),
	}
}

func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r)
	if !ok {
		return
	}

	profile, err := h.profileService.GetProfile(r.Context(), userID)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: profile})
}

func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r)
	if !ok {
		return
	}
	var update domain.ProfileUpdate
	if !decodeJSON(w, r, &update) {
		return
	}

	profile, err := h.profileService.UpdateProfile(r.Context(), userID, update)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: profile})
}

// UpdateSettings меняет только переданные поля настроек
func (h *ProfileHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r)
	if !ok {
		return
	}
	var update domain.SettingsUpdate
	if !decodeJSON(w, r, &update) {
		return
	}

	profile, err := h.profileService.UpdateSettings(r.Context(), userID, update)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: profile})
}
