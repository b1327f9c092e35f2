// Package providers persists therapist profile records, including the
// calendar identity the scheduling layer resolves against.
package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when no profile exists for a provider id.
var ErrNotFound = errors.New("providers: profile not found")

// CalendarProfile is the calendar-identity slice of a provider profile.
// CalendarID and DelegatedEmail are optional; PermissionsConfigured records
// whether domain delegation has been verified for this provider.
type CalendarProfile struct {
	ProviderID            string
	DisplayName           string
	CalendarID            string
	DelegatedEmail        string
	PermissionsConfigured bool
	Timezone              string
}

// Querier is the subset of pgx used by the repository. pgxmock satisfies it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides persistence helpers for provider profiles.
type Repository struct {
	db Querier
}

// NewRepository creates a repository backed by a pgx pool (or a mock).
func NewRepository(db Querier) *Repository {
	if db == nil {
		panic("providers: querier required")
	}
	return &Repository{db: db}
}

// GetCalendarProfile loads the calendar identity for a provider.
func (r *Repository) GetCalendarProfile(ctx context.Context, providerID string) (*CalendarProfile, error) {
	const query = `
		SELECT id, display_name,
		       COALESCE(calendar_id, ''),
		       COALESCE(delegated_email, ''),
		       calendar_permissions_configured,
		       COALESCE(timezone, 'UTC')
		FROM providers
		WHERE id = $1
	`
	var p CalendarProfile
	err := r.db.QueryRow(ctx, query, providerID).Scan(
		&p.ProviderID,
		&p.DisplayName,
		&p.CalendarID,
		&p.DelegatedEmail,
		&p.PermissionsConfigured,
		&p.Timezone,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("providers: load calendar profile: %w", err)
	}
	return &p, nil
}

// UpdateCalendarSettings stores a provider's calendar identity. Callers are
// expected to invalidate the directory cache afterwards.
func (r *Repository) UpdateCalendarSettings(ctx context.Context, providerID, calendarID, delegatedEmail string, configured bool) error {
	const query = `
		UPDATE providers
		SET calendar_id = NULLIF($2, ''),
		    delegated_email = NULLIF($3, ''),
		    calendar_permissions_configured = $4,
		    updated_at = now()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, providerID, calendarID, delegatedEmail, configured)
	if err != nil {
		return fmt.Errorf("providers: update calendar settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
