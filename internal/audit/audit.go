// Package audit records scheduling decisions for later compliance review.
// Records are immutable; the trail answers "why did this session land on that
// calendar".
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType classifies an audit record.
type EventType string

const (
	// EventRoutingDecision is logged whenever the router picks a target calendar.
	EventRoutingDecision EventType = "scheduling.routing_decision"
	// EventCalendarFallback is logged when a delegated calendar failed and the
	// operation moved to the administrative calendar.
	EventCalendarFallback EventType = "scheduling.calendar_fallback"
	// EventBookingCreated is logged when a session booking is confirmed.
	EventBookingCreated EventType = "scheduling.booking_created"
	// EventBookingCancelled is logged when a session booking is cancelled.
	EventBookingCancelled EventType = "scheduling.booking_cancelled"
)

// Event is an immutable scheduling audit record.
type Event struct {
	ID            string          `json:"id"`
	EventType     EventType       `json:"event_type"`
	ProviderID    string          `json:"provider_id,omitempty"`
	AppointmentID string          `json:"appointment_id,omitempty"`
	CalendarID    string          `json:"calendar_id,omitempty"`
	Details       json.RawMessage `json:"details,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Details carries event-specific fields.
type Details struct {
	// For routing decisions
	UsedFallback bool   `json:"used_fallback,omitempty"`
	Reason       string `json:"reason,omitempty"`

	// For calendar fallbacks
	DelegatedCalendarID string `json:"delegated_calendar_id,omitempty"`
	UpstreamError       string `json:"upstream_error,omitempty"`

	// For bookings
	EventID string `json:"event_id,omitempty"`
}

// Service writes the audit trail.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// LogEvent records an audit event.
func (s *Service) LogEvent(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO scheduling_audit_events (
			id, event_type, provider_id, appointment_id, calendar_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		nullString(event.ProviderID),
		nullString(event.AppointmentID),
		nullString(event.CalendarID),
		event.Details,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to log event: %w", err)
	}
	return nil
}

// LogRoutingDecision records which calendar an operation targeted and why.
func (s *Service) LogRoutingDecision(ctx context.Context, providerID, calendarID string, usedFallback bool, reason string) error {
	detailsJSON, _ := json.Marshal(Details{UsedFallback: usedFallback, Reason: reason})
	return s.LogEvent(ctx, Event{
		EventType:  EventRoutingDecision,
		ProviderID: providerID,
		CalendarID: calendarID,
		Details:    detailsJSON,
	})
}

// LogCalendarFallback records a delegated-calendar failure that fell back to
// the administrative calendar.
func (s *Service) LogCalendarFallback(ctx context.Context, providerID, delegatedCalendarID, adminCalendarID, upstreamErr string) error {
	detailsJSON, _ := json.Marshal(Details{
		DelegatedCalendarID: delegatedCalendarID,
		UpstreamError:       upstreamErr,
	})
	return s.LogEvent(ctx, Event{
		EventType:  EventCalendarFallback,
		ProviderID: providerID,
		CalendarID: adminCalendarID,
		Details:    detailsJSON,
	})
}

// LogBookingCreated records a confirmed booking.
func (s *Service) LogBookingCreated(ctx context.Context, providerID, appointmentID, calendarID, eventID string) error {
	detailsJSON, _ := json.Marshal(Details{EventID: eventID})
	return s.LogEvent(ctx, Event{
		EventType:     EventBookingCreated,
		ProviderID:    providerID,
		AppointmentID: appointmentID,
		CalendarID:    calendarID,
		Details:       detailsJSON,
	})
}

// LogBookingCancelled records a cancellation.
func (s *Service) LogBookingCancelled(ctx context.Context, calendarID, eventID string) error {
	detailsJSON, _ := json.Marshal(Details{EventID: eventID})
	return s.LogEvent(ctx, Event{
		EventType:  EventBookingCancelled,
		CalendarID: calendarID,
		Details:    detailsJSON,
	})
}

// Filter specifies criteria for querying the trail.
type Filter struct {
	ProviderID string
	EventType  EventType
	StartTime  time.Time
	EndTime    time.Time
	Limit      int
}

// QueryEvents retrieves audit events, newest first.
func (s *Service) QueryEvents(ctx context.Context, filter Filter) ([]Event, error) {
	query := `
		SELECT id, event_type, provider_id, appointment_id, calendar_id, details, created_at
		FROM scheduling_audit_events
		WHERE 1=1
	`
	var args []interface{}
	argIdx := 1

	if filter.ProviderID != "" {
		query += fmt.Sprintf(" AND provider_id = $%d", argIdx)
		args = append(args, filter.ProviderID)
		argIdx++
	}
	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
		argIdx++
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var providerID, appointmentID, calendarID sql.NullString
		if err := rows.Scan(&e.ID, &e.EventType, &providerID, &appointmentID, &calendarID, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		e.ProviderID = providerID.String
		e.AppointmentID = appointmentID.String
		e.CalendarID = calendarID.String
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
