// Package bookings persists session bookings: the durable link between an
// appointment and the calendar event that represents it. EventID and
// CalendarID are stored together since neither alone can address an event
// later.
package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when no booking exists for the given id.
var ErrNotFound = errors.New("bookings: booking not found")

// Booking statuses.
const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Record is a persisted session booking.
type Record struct {
	ID            string
	AppointmentID string
	ProviderID    string
	EventID       string
	CalendarID    string
	ConferenceURL string
	StartTime     time.Time
	EndTime       time.Time
	Status        string
}

// Querier is the subset of pgx used by the repository. pgxmock satisfies it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides persistence helpers for session bookings.
type Repository struct {
	db Querier
}

func NewRepository(db Querier) *Repository {
	if db == nil {
		panic("bookings: querier required")
	}
	return &Repository{db: db}
}

// Insert stores a new confirmed booking and returns its generated id.
func (r *Repository) Insert(ctx context.Context, rec Record) (string, error) {
	const query = `
		INSERT INTO session_bookings
			(appointment_id, provider_id, event_id, calendar_id, conference_url,
			 start_time, end_time, status)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	status := rec.Status
	if status == "" {
		status = StatusConfirmed
	}
	var id string
	err := r.db.QueryRow(ctx, query,
		rec.AppointmentID, rec.ProviderID, rec.EventID, rec.CalendarID,
		rec.ConferenceURL, rec.StartTime, rec.EndTime, status,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("bookings: insert booking: %w", err)
	}
	return id, nil
}

// GetByID loads a booking.
func (r *Repository) GetByID(ctx context.Context, id string) (*Record, error) {
	const query = `
		SELECT id, appointment_id, COALESCE(provider_id::text, ''), event_id,
		       calendar_id, COALESCE(conference_url, ''), start_time, end_time, status
		FROM session_bookings
		WHERE id = $1
	`
	var rec Record
	err := r.db.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.AppointmentID, &rec.ProviderID, &rec.EventID,
		&rec.CalendarID, &rec.ConferenceURL, &rec.StartTime, &rec.EndTime, &rec.Status,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bookings: load booking: %w", err)
	}
	return &rec, nil
}

// GetByEvent loads a booking by its calendar coordinates.
func (r *Repository) GetByEvent(ctx context.Context, calendarID, eventID string) (*Record, error) {
	const query = `
		SELECT id, appointment_id, COALESCE(provider_id::text, ''), event_id,
		       calendar_id, COALESCE(conference_url, ''), start_time, end_time, status
		FROM session_bookings
		WHERE calendar_id = $1 AND event_id = $2
	`
	var rec Record
	err := r.db.QueryRow(ctx, query, calendarID, eventID).Scan(
		&rec.ID, &rec.AppointmentID, &rec.ProviderID, &rec.EventID,
		&rec.CalendarID, &rec.ConferenceURL, &rec.StartTime, &rec.EndTime, &rec.Status,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bookings: load booking by event: %w", err)
	}
	return &rec, nil
}

// UpdateSchedule moves a booking to new times after a reschedule.
func (r *Repository) UpdateSchedule(ctx context.Context, calendarID, eventID string, start, end time.Time) error {
	const query = `
		UPDATE session_bookings
		SET start_time = $3, end_time = $4, updated_at = now()
		WHERE calendar_id = $1 AND event_id = $2
	`
	tag, err := r.db.Exec(ctx, query, calendarID, eventID, start, end)
	if err != nil {
		return fmt.Errorf("bookings: update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCancelled flips a booking to cancelled. Cancelling an unknown booking
// is not an error; the calendar event is the source of truth.
func (r *Repository) MarkCancelled(ctx context.Context, calendarID, eventID string) error {
	const query = `
		UPDATE session_bookings
		SET status = $3, updated_at = now()
		WHERE calendar_id = $1 AND event_id = $2
	`
	if _, err := r.db.Exec(ctx, query, calendarID, eventID, StatusCancelled); err != nil {
		return fmt.Errorf("bookings: mark cancelled: %w", err)
	}
	return nil
}
