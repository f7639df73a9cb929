package handler

import (
	"net/http"
	"strconv"

	"cdr.dev/slog/v3"

	"ecoleafdrive/internal/service"
)

type StorageQuotaHandler struct {
	quotaService *service.StorageQuotaService
	logger       slog.Logger
}

func NewStorageQuotaHandler(quotaService *service.StorageQuotaService, logger slog.Logger) *StorageQuotaHandler {
	return &StorageQuotaHandler{
		quotaService: quotaService,
		logger:       logger.Named("http.storage"),
	}
}

func (h *StorageQuotaHandler) GetStorageStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r)
	if !ok {
		return
	}

	stats, err := h.quotaService.GetStorageStats(r.Context(), userID)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *StorageQuotaHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r)
	if !ok {
		return
	}

	analytics, err := h.quotaService.GetAnalytics(r.Context(), userID)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

type spaceCheckResponse struct {
	Available bool  `json:"available"`
	Required  int64 `json:"required"`
}

// CheckSpace предварительная проверка перед загрузкой, ?size=<байты>
func (h *StorageQuotaHandler) CheckSpace(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorize(w, r)
	if !ok {
		return
	}
	size, err := strconv.ParseInt(r.URL.Query().Get("size"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "Invalid size"})
		return
	}

	available, err := h.quotaService.CheckSpaceAvailable(r.Context(), userID, size)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, spaceCheckResponse{Available: available, Required: size})
}

func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "Ecoleaf Drive API"})
}
