package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wellspring-care/teletherapy-platform/internal/providers"
	"github.com/wellspring-care/teletherapy-platform/pkg/logging"
)

// CalendarSettingsStore persists provider calendar settings.
type CalendarSettingsStore interface {
	UpdateCalendarSettings(ctx context.Context, providerID, calendarID, delegatedEmail string, configured bool) error
}

// CacheInvalidator drops cached calendar identities after settings change.
type CacheInvalidator interface {
	InvalidateProviderCache(ctx context.Context, providerID string)
}

// AdminProvidersHandler serves the admin endpoints for provider calendar
// configuration.
type AdminProvidersHandler struct {
	store       CalendarSettingsStore
	invalidator CacheInvalidator
	logger      *logging.Logger
}

func NewAdminProvidersHandler(store CalendarSettingsStore, invalidator CacheInvalidator, logger *logging.Logger) *AdminProvidersHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminProvidersHandler{store: store, invalidator: invalidator, logger: logger}
}

type calendarSettingsRequest struct {
	CalendarID            string `json:"calendar_id"`
	DelegatedEmail        string `json:"delegated_email"`
	PermissionsConfigured bool   `json:"permissions_configured"`
}

// UpdateCalendarSettings stores a provider's calendar identity and drops the
// stale cache entry so the next booking sees the new target.
func (h *AdminProvidersHandler) UpdateCalendarSettings(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerID")

	var req calendarSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.store.UpdateCalendarSettings(r.Context(), providerID, req.CalendarID, req.DelegatedEmail, req.PermissionsConfigured)
	if errors.Is(err, providers.ErrNotFound) {
		writeError(w, http.StatusNotFound, "provider not found")
		return
	}
	if err != nil {
		h.logger.Error("calendar settings update failed", "provider_id", providerID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update calendar settings")
		return
	}
	if h.invalidator != nil {
		h.invalidator.InvalidateProviderCache(r.Context(), providerID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}
