package handler

import (
	"encoding/json"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/service"

	"github.com/rs/zerolog"
)

type UsageHandler struct {
	usageService service.UsageService
	logger       zerolog.Logger
}

func NewUsageHandler(usageService service.UsageService, logger zerolog.Logger) *UsageHandler {
	return &UsageHandler{
		usageService: usageService,
		logger:       logger,
	}
}

func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/usage", authMw(http.HandlerFunc(h.handleUsage)))
}

func (h *UsageHandler) handleUsage(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getUsage(w, r)
	case http.MethodPost:
		h.initializeUsage(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// getUsage returns the caller's consumption ledger, applying the monthly
// rollover first if a new month has started.
func (h *UsageHandler) getUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}

	usage, err := h.usageService.GetUsage(r.Context(), userID)
	if err != nil {
		http.Error(w, "Failed to get usage: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if usage == nil {
		http.Error(w, "Usage not found", http.StatusNotFound)
		return
	}

	resp := dto.UsageResponseDTO{
		UserID:                usage.UserID,
		ReportsUploaded:       usage.ReportsUploaded,
		ReportsLimit:          usage.ReportsLimit,
		TotalStorageMB:        usage.TotalStorageMB,
		StorageLimitMB:        usage.StorageLimitMB,
		ChatMessagesThisMonth: usage.ChatMessagesThisMonth,
		ChatMessageLimit:      usage.ChatMessageLimit,
		Tier:                  usage.Tier,
		LastResetDate:         usage.LastResetDate,
		AccountCreatedAt:      usage.AccountCreatedAt,
		TrialEndsAt:           usage.TrialEndsAt,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// initializeUsage provisions a zeroed free-tier ledger for the caller.
// Idempotent; an existing ledger is left untouched.
func (h *UsageHandler) initializeUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}

	if err := h.usageService.Initialize(r.Context(), userID); err != nil {
		http.Error(w, "Failed to initialize usage: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
