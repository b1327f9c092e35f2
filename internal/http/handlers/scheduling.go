// Package handlers contains the HTTP handlers for the scheduling API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wellspring-care/teletherapy-platform/internal/gcal"
	"github.com/wellspring-care/teletherapy-platform/internal/scheduling"
	"github.com/wellspring-care/teletherapy-platform/pkg/logging"
)

// SessionService is the scheduling facade the handlers call.
type SessionService interface {
	BookSession(ctx context.Context, req scheduling.CreateEventRequest) (*scheduling.BookingResult, error)
	RescheduleSession(ctx context.Context, calendarID, eventID string, start, end time.Time, timezone string) (bool, error)
	CancelSession(ctx context.Context, calendarID, eventID string) error
	GetSession(ctx context.Context, calendarID, eventID string) (*scheduling.SessionEvent, error)
	GetAvailability(ctx context.Context, providerID string, day time.Time) scheduling.Availability
	InvalidateProviderCache(ctx context.Context, providerID string)
	InvalidateAllCaches(ctx context.Context)
}

// SchedulingHandler serves the session booking endpoints.
type SchedulingHandler struct {
	service SessionService
	logger  *logging.Logger
}

func NewSchedulingHandler(service SessionService, logger *logging.Logger) *SchedulingHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SchedulingHandler{service: service, logger: logger}
}

type attendeePayload struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

type createSessionRequest struct {
	AppointmentID      string            `json:"appointment_id"`
	ProviderID         string            `json:"provider_id"`
	SessionType        string            `json:"session_type"`
	Category           string            `json:"category"`
	ForceAdminCalendar bool              `json:"force_admin_calendar"`
	Title              string            `json:"title"`
	Notes              string            `json:"notes"`
	Start              time.Time         `json:"start"`
	End                time.Time         `json:"end"`
	Timezone           string            `json:"timezone"`
	Attendees          []attendeePayload `json:"attendees"`
}

type rescheduleRequest struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Timezone string    `json:"timezone"`
}

// CreateSession books a session: calendar event, conference link, booking
// record, confirmation email. An already-elapsed session responds 200 with
// created=false rather than an error.
func (h *SchedulingHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" || req.Start.IsZero() || req.End.IsZero() {
		writeError(w, http.StatusBadRequest, "title, start and end are required")
		return
	}
	if !req.Start.Before(req.End) {
		writeError(w, http.StatusBadRequest, "start must be before end")
		return
	}

	attendees := make([]scheduling.Attendee, 0, len(req.Attendees))
	for _, a := range req.Attendees {
		attendees = append(attendees, scheduling.Attendee{
			Email:       a.Email,
			DisplayName: a.DisplayName,
			Role:        scheduling.AttendeeRole(a.Role),
		})
	}

	result, err := h.service.BookSession(r.Context(), scheduling.CreateEventRequest{
		AppointmentID:      req.AppointmentID,
		ProviderID:         req.ProviderID,
		Category:           scheduling.SessionCategory(req.Category),
		SessionType:        req.SessionType,
		ForceAdminCalendar: req.ForceAdminCalendar,
		Title:              req.Title,
		Notes:              req.Notes,
		Start:              req.Start,
		End:                req.End,
		Timezone:           req.Timezone,
		Attendees:          attendees,
	})
	if err != nil {
		h.logger.Error("session booking failed", "appointment_id", req.AppointmentID, "error", err)
		switch {
		case errors.Is(err, scheduling.ErrNoConference):
			writeError(w, http.StatusBadGateway, "session created without a working video link")
		case errors.Is(err, gcal.ErrNotReady):
			writeError(w, http.StatusServiceUnavailable, "calendar service unavailable")
		default:
			writeError(w, http.StatusBadGateway, "failed to book session")
		}
		return
	}
	if !result.Created {
		writeJSON(w, http.StatusOK, result)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// RescheduleSession moves a session to new times.
func (h *SchedulingHandler) RescheduleSession(w http.ResponseWriter, r *http.Request) {
	calendarID := chi.URLParam(r, "calendarID")
	eventID := chi.URLParam(r, "eventID")

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Start.IsZero() || req.End.IsZero() || !req.Start.Before(req.End) {
		writeError(w, http.StatusBadRequest, "start must be before end")
		return
	}

	found, err := h.service.RescheduleSession(r.Context(), calendarID, eventID, req.Start, req.End, req.Timezone)
	if err != nil {
		h.logger.Error("reschedule failed", "event_id", eventID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to reschedule session")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "session event not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rescheduled": true})
}

// CancelSession removes a session. Cancelling an already-gone session still
// responds 200.
func (h *SchedulingHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	calendarID := chi.URLParam(r, "calendarID")
	eventID := chi.URLParam(r, "eventID")

	if err := h.service.CancelSession(r.Context(), calendarID, eventID); err != nil {
		h.logger.Error("cancellation failed", "event_id", eventID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to cancel session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
}

// GetSession fetches a session event.
func (h *SchedulingHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	calendarID := chi.URLParam(r, "calendarID")
	eventID := chi.URLParam(r, "eventID")

	ev, err := h.service.GetSession(r.Context(), calendarID, eventID)
	if err != nil {
		h.logger.Error("session fetch failed", "event_id", eventID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to fetch session")
		return
	}
	if ev == nil {
		writeError(w, http.StatusNotFound, "session event not found")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// GetAvailability reports a provider's busy intervals for one day. The date
// query parameter is yyyy-mm-dd; today when absent.
func (h *SchedulingHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerID")

	day := time.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be yyyy-mm-dd")
			return
		}
		day = parsed
	}

	avail := h.service.GetAvailability(r.Context(), providerID, day)
	writeJSON(w, http.StatusOK, avail)
}

// InvalidateProviderCache drops a provider's cached calendar identity (admin).
func (h *SchedulingHandler) InvalidateProviderCache(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerID")
	h.service.InvalidateProviderCache(r.Context(), providerID)
	w.WriteHeader(http.StatusNoContent)
}

// InvalidateAllCaches drops every cached calendar identity (admin).
func (h *SchedulingHandler) InvalidateAllCaches(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateAllCaches(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
