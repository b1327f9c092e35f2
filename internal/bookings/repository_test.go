package bookings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestInsert(t *testing.T) {
	mock := newMock(t)
	start := time.Date(2026, 3, 12, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	mock.ExpectQuery("INSERT INTO session_bookings").
		WithArgs("appt-77", "prov-1", "evt-1", "cal-1", "https://meet.google.com/abc", start, end, StatusConfirmed).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("bk-1"))

	repo := NewRepository(mock)
	id, err := repo.Insert(context.Background(), Record{
		AppointmentID: "appt-77",
		ProviderID:    "prov-1",
		EventID:       "evt-1",
		CalendarID:    "cal-1",
		ConferenceURL: "https://meet.google.com/abc",
		StartTime:     start,
		EndTime:       end,
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id != "bk-1" {
		t.Fatalf("id = %q", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetByEvent(t *testing.T) {
	mock := newMock(t)
	start := time.Date(2026, 3, 12, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	rows := pgxmock.NewRows([]string{
		"id", "appointment_id", "provider_id", "event_id", "calendar_id",
		"conference_url", "start_time", "end_time", "status",
	}).AddRow("bk-1", "appt-77", "prov-1", "evt-1", "cal-1", "https://meet.google.com/abc", start, end, StatusConfirmed)
	mock.ExpectQuery("SELECT id, appointment_id").WithArgs("cal-1", "evt-1").WillReturnRows(rows)

	repo := NewRepository(mock)
	rec, err := repo.GetByEvent(context.Background(), "cal-1", "evt-1")
	if err != nil {
		t.Fatalf("GetByEvent: %v", err)
	}
	if rec.AppointmentID != "appt-77" || rec.Status != StatusConfirmed {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("SELECT id, appointment_id").WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "appointment_id", "provider_id", "event_id", "calendar_id",
			"conference_url", "start_time", "end_time", "status",
		}))

	repo := NewRepository(mock)
	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateSchedule(t *testing.T) {
	mock := newMock(t)
	start := time.Date(2026, 3, 13, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	mock.ExpectExec("UPDATE session_bookings").
		WithArgs("cal-1", "evt-1", start, end).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewRepository(mock)
	if err := repo.UpdateSchedule(context.Background(), "cal-1", "evt-1", start, end); err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}
}

func TestUpdateScheduleUnknownBooking(t *testing.T) {
	mock := newMock(t)
	start := time.Now()
	end := start.Add(time.Hour)

	mock.ExpectExec("UPDATE session_bookings").
		WithArgs("cal-1", "evt-gone", start, end).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewRepository(mock)
	err := repo.UpdateSchedule(context.Background(), "cal-1", "evt-gone", start, end)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMarkCancelledIdempotent(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec("UPDATE session_bookings").
		WithArgs("cal-1", "evt-gone", StatusCancelled).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewRepository(mock)
	if err := repo.MarkCancelled(context.Background(), "cal-1", "evt-gone"); err != nil {
		t.Fatalf("MarkCancelled: %v", err)
	}
}
