package scheduling

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/wellspring-care/teletherapy-platform/internal/gcal"
	"github.com/wellspring-care/teletherapy-platform/internal/providers"
)

type insertCall struct {
	calendarID string
	draft      gcal.EventDraft
}

type fakeCalendar struct {
	inserts     []insertCall
	deletes     []string
	insertErrBy map[string]error // per calendar id
	insertEvent *gcal.Event
	patchErr    error
	patchEvent  *gcal.Event
	deleteErr   error
	getErr      error
	getEvent    *gcal.Event
	listErr     error
	listEvents  []gcal.Event

	listCalendarID string
	listFrom       time.Time
	listTo         time.Time
}

func (f *fakeCalendar) EnsureReady(context.Context) {}

func (f *fakeCalendar) InsertEvent(_ context.Context, calendarID string, draft gcal.EventDraft) (*gcal.Event, error) {
	f.inserts = append(f.inserts, insertCall{calendarID: calendarID, draft: draft})
	if err, ok := f.insertErrBy[calendarID]; ok && err != nil {
		return nil, err
	}
	ev := f.insertEvent
	if ev == nil {
		ev = &gcal.Event{ID: "evt-1", ConferenceURL: "https://meet.google.com/abc-defg-hij"}
	}
	return ev, nil
}

func (f *fakeCalendar) PatchEvent(_ context.Context, _, _ string, _ gcal.EventChanges) (*gcal.Event, error) {
	if f.patchErr != nil {
		return nil, f.patchErr
	}
	if f.patchEvent != nil {
		return f.patchEvent, nil
	}
	return &gcal.Event{ID: "evt-1"}, nil
}

func (f *fakeCalendar) DeleteEvent(_ context.Context, _, eventID string) error {
	f.deletes = append(f.deletes, eventID)
	return f.deleteErr
}

func (f *fakeCalendar) GetEvent(_ context.Context, _, _ string) (*gcal.Event, error) {
	return f.getEvent, f.getErr
}

func (f *fakeCalendar) ListEvents(_ context.Context, calendarID string, from, to time.Time) ([]gcal.Event, error) {
	f.listCalendarID = calendarID
	f.listFrom = from
	f.listTo = to
	return f.listEvents, f.listErr
}

func notFoundErr() error {
	return &googleapi.Error{Code: 404, Message: "Not Found"}
}

func authErr() error {
	return &googleapi.Error{Code: 403, Message: "Delegation denied for svc@project.iam"}
}

func newTestEventManager(cal Calendar, store ProfileStore, now func() time.Time) *EventManager {
	return NewEventManager(EventManagerOptions{
		Calendar: cal,
		Router:   newTestRouter(store, nil),
		Now:      now,
	})
}

func configuredStore() *stubProfileStore {
	return &stubProfileStore{profiles: map[string]providers.CalendarProfile{
		"prov-1": {ProviderID: "prov-1", CalendarID: "cal-1", PermissionsConfigured: true},
	}}
}

func TestCreateEventHappyPath(t *testing.T) {
	cal := &fakeCalendar{}
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	m := newTestEventManager(cal, configuredStore(), func() time.Time { return now })

	ev, decision, err := m.CreateEvent(context.Background(), CreateEventRequest{
		AppointmentID: "appt-77",
		ProviderID:    "prov-1",
		Category:      CategoryTherapy,
		Title:         "Therapy Session",
		Start:         now.Add(24 * time.Hour),
		End:           now.Add(25 * time.Hour),
		Timezone:      "America/New_York",
		Attendees: []Attendee{
			{Email: "client@example.com", DisplayName: "Jordan Hale", Role: RoleClient},
			{Email: "dr.reyes@wellspring.example", DisplayName: "Dr. Reyes", Role: RoleProvider},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "evt-1", ev.EventID)
	assert.Equal(t, "cal-1", ev.CalendarID)
	assert.Equal(t, "https://meet.google.com/abc-defg-hij", ev.ConferenceURL)
	assert.False(t, decision.UsedFallback)

	require.Len(t, cal.inserts, 1)
	draft := cal.inserts[0].draft
	assert.Equal(t, "appt-77", draft.ConferenceRequestID)
	assert.Contains(t, draft.Description, "Client: Jordan Hale")
	assert.Contains(t, draft.Description, "Provider: Dr. Reyes")
	assert.Contains(t, draft.Description, "video link")
}

func TestCreateEventElapsedSessionSkipped(t *testing.T) {
	cal := &fakeCalendar{}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m := newTestEventManager(cal, configuredStore(), func() time.Time { return now })

	// ended 30 minutes ago, past the 10 minute grace
	ev, _, err := m.CreateEvent(context.Background(), CreateEventRequest{
		ProviderID: "prov-1",
		Title:      "Therapy Session",
		Start:      now.Add(-90 * time.Minute),
		End:        now.Add(-30 * time.Minute),
	})
	require.NoError(t, err)
	assert.Nil(t, ev)
	assert.Empty(t, cal.inserts, "elapsed session must not reach the upstream")
}

func TestCreateEventWithinGraceStillCreated(t *testing.T) {
	cal := &fakeCalendar{}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m := newTestEventManager(cal, configuredStore(), func() time.Time { return now })

	ev, _, err := m.CreateEvent(context.Background(), CreateEventRequest{
		ProviderID: "prov-1",
		Title:      "Therapy Session",
		Start:      now.Add(-55 * time.Minute),
		End:        now.Add(-5 * time.Minute),
	})
	require.NoError(t, err)
	assert.NotNil(t, ev)
}

func TestCreateEventRejectsInvertedTimes(t *testing.T) {
	cal := &fakeCalendar{}
	now := time.Now()
	m := newTestEventManager(cal, configuredStore(), time.Now)

	_, _, err := m.CreateEvent(context.Background(), CreateEventRequest{
		Title: "Therapy Session",
		Start: now.Add(2 * time.Hour),
		End:   now.Add(1 * time.Hour),
	})
	require.Error(t, err)
	assert.Empty(t, cal.inserts)
}

func TestCreateEventGeneratesAppointmentID(t *testing.T) {
	cal := &fakeCalendar{}
	m := newTestEventManager(cal, configuredStore(), time.Now)

	_, _, err := m.CreateEvent(context.Background(), CreateEventRequest{
		ProviderID: "prov-1",
		Title:      "Therapy Session",
		Start:      time.Now().Add(time.Hour),
		End:        time.Now().Add(2 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, cal.inserts, 1)
	assert.NotEmpty(t, cal.inserts[0].draft.ConferenceRequestID)
}

func TestCreateEventSanitizesAttendees(t *testing.T) {
	cal := &fakeCalendar{}
	m := newTestEventManager(cal, configuredStore(), time.Now)

	_, _, err := m.CreateEvent(context.Background(), CreateEventRequest{
		ProviderID: "prov-1",
		Title:      "Therapy Session",
		Start:      time.Now().Add(time.Hour),
		End:        time.Now().Add(2 * time.Hour),
		Attendees: []Attendee{
			{Email: "client@example.com", Role: RoleClient},
			{Email: "Client@Example.com", Role: RoleClient}, // duplicate
			{Email: "not-an-email", Role: RoleClient},
			{Email: "  ", Role: RoleProvider},
		},
	})
	require.NoError(t, err)
	require.Len(t, cal.inserts, 1)
	got := cal.inserts[0].draft.Attendees
	require.Len(t, got, 1)
	assert.Equal(t, "client@example.com", got[0].Email)
}

func TestCreateEventAuthFallbackToAdminCalendar(t *testing.T) {
	cal := &fakeCalendar{insertErrBy: map[string]error{"cal-1": authErr()}}
	m := newTestEventManager(cal, configuredStore(), time.Now)

	ev, decision, err := m.CreateEvent(context.Background(), CreateEventRequest{
		ProviderID: "prov-1",
		Category:   CategoryTherapy,
		Title:      "Therapy Session",
		Start:      time.Now().Add(time.Hour),
		End:        time.Now().Add(2 * time.Hour),
	})
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "admin@wellspring.example", ev.CalendarID)
	assert.True(t, decision.UsedFallback)
	assert.Equal(t, "cal-1", decision.FallbackFrom)
	assert.Equal(t, "admin@wellspring.example", decision.TargetCalendarID)

	require.Len(t, cal.inserts, 2)
	assert.Equal(t, "cal-1", cal.inserts[0].calendarID)
	assert.Equal(t, "admin@wellspring.example", cal.inserts[1].calendarID)
}

func TestCreateEventAuthFailureOnAdminCalendarNotRetried(t *testing.T) {
	cal := &fakeCalendar{insertErrBy: map[string]error{"admin@wellspring.example": authErr()}}
	m := newTestEventManager(cal, &stubProfileStore{}, time.Now)

	_, _, err := m.CreateEvent(context.Background(), CreateEventRequest{
		Category: CategoryOnboarding,
		Title:    "Onboarding Call",
		Start:    time.Now().Add(time.Hour),
		End:      time.Now().Add(2 * time.Hour),
	})
	require.Error(t, err)
	assert.Len(t, cal.inserts, 1, "auth failure on the admin calendar has no further fallback")
}

func TestCreateEventNonAuthErrorNoFallback(t *testing.T) {
	cal := &fakeCalendar{insertErrBy: map[string]error{
		"cal-1": &googleapi.Error{Code: 500, Message: "backend error"},
	}}
	m := newTestEventManager(cal, configuredStore(), time.Now)

	_, _, err := m.CreateEvent(context.Background(), CreateEventRequest{
		ProviderID: "prov-1",
		Title:      "Therapy Session",
		Start:      time.Now().Add(time.Hour),
		End:        time.Now().Add(2 * time.Hour),
	})
	require.Error(t, err)
	assert.Len(t, cal.inserts, 1)
}

func TestCreateEventMissingConferenceLinkFailsHard(t *testing.T) {
	cal := &fakeCalendar{insertEvent: &gcal.Event{ID: "evt-9"}}
	m := newTestEventManager(cal, configuredStore(), time.Now)

	ev, _, err := m.CreateEvent(context.Background(), CreateEventRequest{
		ProviderID: "prov-1",
		Title:      "Therapy Session",
		Start:      time.Now().Add(time.Hour),
		End:        time.Now().Add(2 * time.Hour),
	})
	require.ErrorIs(t, err, ErrNoConference)
	assert.Nil(t, ev)
	assert.Equal(t, []string{"evt-9"}, cal.deletes, "half-made event must be cleaned up")
}

func TestUpdateEventNotFound(t *testing.T) {
	cal := &fakeCalendar{patchErr: notFoundErr()}
	m := newTestEventManager(cal, configuredStore(), time.Now)

	ev, found, err := m.UpdateEvent(context.Background(), "cal-1", "evt-gone", EventUpdate{})
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, ev)
}

func TestUpdateEventRejectsInvertedTimes(t *testing.T) {
	cal := &fakeCalendar{}
	m := newTestEventManager(cal, configuredStore(), time.Now)

	start := time.Now().Add(2 * time.Hour)
	end := time.Now().Add(time.Hour)
	_, _, err := m.UpdateEvent(context.Background(), "cal-1", "evt-1", EventUpdate{Start: &start, End: &end})
	require.Error(t, err)
}

func TestUpdateEventSuccess(t *testing.T) {
	cal := &fakeCalendar{patchEvent: &gcal.Event{ID: "evt-1", Title: "Rescheduled Session"}}
	m := newTestEventManager(cal, configuredStore(), time.Now)

	title := "Rescheduled Session"
	ev, found, err := m.UpdateEvent(context.Background(), "cal-1", "evt-1", EventUpdate{Title: &title})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Rescheduled Session", ev.Title)
}

func TestDeleteEventIdempotent(t *testing.T) {
	cal := &fakeCalendar{deleteErr: notFoundErr()}
	m := newTestEventManager(cal, configuredStore(), time.Now)

	err := m.DeleteEvent(context.Background(), "cal-1", "evt-gone")
	assert.NoError(t, err)
}

func TestDeleteEventPropagatesOtherErrors(t *testing.T) {
	cal := &fakeCalendar{deleteErr: errors.New("upstream down")}
	m := newTestEventManager(cal, configuredStore(), time.Now)

	err := m.DeleteEvent(context.Background(), "cal-1", "evt-1")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "upstream down"))
}

func TestGetEventNotFound(t *testing.T) {
	cal := &fakeCalendar{getErr: notFoundErr()}
	m := newTestEventManager(cal, configuredStore(), time.Now)

	ev, err := m.GetEvent(context.Background(), "cal-1", "evt-gone")
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestGetEventSuccess(t *testing.T) {
	cal := &fakeCalendar{getEvent: &gcal.Event{
		ID:            "evt-1",
		Title:         "Therapy Session",
		ConferenceURL: "https://meet.google.com/abc-defg-hij",
	}}
	m := newTestEventManager(cal, configuredStore(), time.Now)

	ev, err := m.GetEvent(context.Background(), "cal-1", "evt-1")
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "cal-1", ev.CalendarID)
	assert.Equal(t, "https://meet.google.com/abc-defg-hij", ev.ConferenceURL)
}
