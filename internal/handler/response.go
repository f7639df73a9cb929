package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"cdr.dev/slog/v3"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"ecoleafdrive/internal/auth"
	"ecoleafdrive/internal/domain"
)

// maxJSONBody ограничение тела JSON запросов
const maxJSONBody = 1 << 20

type errorResponse struct {
	Detail string `json:"detail"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor переводит ошибки домена в HTTP статусы
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrQuotaExceeded), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrEntryExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidSize),
		errors.Is(err, domain.ErrInvalidCategory),
		errors.Is(err, domain.ErrInvalidKind):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError отвечает статусом по ошибке. Текст внутренних ошибок клиенту
// не отдается, только в лог.
func writeError(ctx context.Context, w http.ResponseWriter, logger slog.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(ctx, "request failed", slog.Error(err))
		writeJSON(w, status, errorResponse{Detail: "internal server error"})
		return
	}
	if status == http.StatusRequestEntityTooLarge && errors.Is(err, domain.ErrQuotaExceeded) {
		writeJSON(w, status, errorResponse{Detail: "Storage limit exceeded (10GB)"})
		return
	}
	writeJSON(w, status, errorResponse{Detail: err.Error()})
}

// authorize проверяет токен и возвращает id пользователя
func authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Detail: "Unauthorized"})
		return "", false
	}
	return userID, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "Invalid request body"})
		return false
	}
	return true
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "Invalid id"})
		return uuid.Nil, false
	}
	return id, true
}
