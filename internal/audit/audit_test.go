package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceLogRoutingDecision(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewService(db)

	mock.ExpectExec("INSERT INTO scheduling_audit_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = service.LogRoutingDecision(context.Background(), "prov-1", "cal-1", false, "provider session")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceLogCalendarFallback(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewService(db)

	mock.ExpectExec("INSERT INTO scheduling_audit_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = service.LogCalendarFallback(
		context.Background(),
		"prov-1",
		"dr.reyes@wellspring.example",
		"admin@wellspring.example",
		"delegation denied",
	)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceLogBookingLifecycle(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewService(db)

	mock.ExpectExec("INSERT INTO scheduling_audit_events").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO scheduling_audit_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, service.LogBookingCreated(context.Background(), "prov-1", "appt-77", "cal-1", "evt-1"))
	require.NoError(t, service.LogBookingCancelled(context.Background(), "cal-1", "evt-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceQueryEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewService(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "event_type", "provider_id", "appointment_id", "calendar_id", "details", "created_at",
	}).AddRow(
		uuid.New(), EventRoutingDecision, "prov-1", nil, "cal-1", []byte(`{"reason":"provider session"}`), now,
	)
	mock.ExpectQuery("SELECT (.+) FROM scheduling_audit_events").
		WillReturnRows(rows)

	events, err := service.QueryEvents(context.Background(), Filter{
		ProviderID: "prov-1",
		StartTime:  now.Add(-24 * time.Hour),
		Limit:      50,
	})
	assert.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventRoutingDecision, events[0].EventType)
	assert.Equal(t, "prov-1", events[0].ProviderID)
}
