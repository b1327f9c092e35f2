package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellspring-care/teletherapy-platform/internal/gcal"
	"github.com/wellspring-care/teletherapy-platform/internal/providers"
)

func newTestConflictChecker(cal Calendar, store ProfileStore) *ConflictChecker {
	return NewConflictChecker(cal, newTestDirectory(store, nil), nil, nil)
}

func TestBusyIntervalsFiltersAndConverts(t *testing.T) {
	day := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	cal := &fakeCalendar{listEvents: []gcal.Event{
		{Title: "Therapy Session", Start: day.Add(14 * time.Hour), End: day.Add(16 * time.Hour)},
		{Title: "Cancelled Session", Status: "cancelled", Start: day.Add(10 * time.Hour), End: day.Add(11 * time.Hour)},
		{Title: "Focus Time", Transparent: true, Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)},
		{Title: "Out of Office", AllDay: true, AllDayDate: "2026-03-13"},
	}}
	store := &stubProfileStore{profiles: map[string]providers.CalendarProfile{
		"prov-1": {ProviderID: "prov-1", CalendarID: "cal-1", PermissionsConfigured: true, Timezone: "America/Chicago"},
	}}
	checker := newTestConflictChecker(cal, store)

	res := checker.BusyIntervals(context.Background(), "prov-1", day, day.AddDate(0, 0, 2))
	require.True(t, res.CalendarChecked)
	require.Len(t, res.Intervals, 2)

	assert.Equal(t, "Therapy Session", res.Intervals[0].Label)
	assert.Equal(t, day.Add(14*time.Hour), res.Intervals[0].Start)
	assert.Equal(t, day.Add(16*time.Hour), res.Intervals[0].End)

	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	assert.Equal(t, "Out of Office", res.Intervals[1].Label)
	assert.Equal(t, time.Date(2026, 3, 13, 0, 0, 0, 0, chicago), res.Intervals[1].Start)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, chicago), res.Intervals[1].End)
}

func TestBusyIntervalsUpstreamFailure(t *testing.T) {
	cal := &fakeCalendar{listErr: errors.New("listing failed")}
	checker := newTestConflictChecker(cal, configuredStore())

	res := checker.BusyIntervals(context.Background(), "prov-1", time.Now(), time.Now().Add(24*time.Hour))
	assert.False(t, res.CalendarChecked)
	assert.Empty(t, res.Intervals)
}

func TestBusyIntervalsEmptyCalendar(t *testing.T) {
	cal := &fakeCalendar{}
	checker := newTestConflictChecker(cal, configuredStore())

	res := checker.BusyIntervals(context.Background(), "prov-1", time.Now(), time.Now().Add(24*time.Hour))
	assert.True(t, res.CalendarChecked)
	assert.Empty(t, res.Intervals)
}

func TestBusyIntervalsUnknownTimezoneFallsBackToUTC(t *testing.T) {
	cal := &fakeCalendar{listEvents: []gcal.Event{
		{Title: "Out of Office", AllDay: true, AllDayDate: "2026-03-13"},
	}}
	store := &stubProfileStore{profiles: map[string]providers.CalendarProfile{
		"prov-1": {ProviderID: "prov-1", CalendarID: "cal-1", PermissionsConfigured: true, Timezone: "Mars/Olympus"},
	}}
	checker := newTestConflictChecker(cal, store)

	res := checker.BusyIntervals(context.Background(), "prov-1", time.Now(), time.Now().Add(48*time.Hour))
	require.True(t, res.CalendarChecked)
	require.Len(t, res.Intervals, 1)
	assert.Equal(t, time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC), res.Intervals[0].Start)
}

func TestBusyIntervalsSkipsZeroTimes(t *testing.T) {
	cal := &fakeCalendar{listEvents: []gcal.Event{
		{Title: "Broken Event"}, // neither timed nor all-day
	}}
	checker := newTestConflictChecker(cal, configuredStore())

	res := checker.BusyIntervals(context.Background(), "prov-1", time.Now(), time.Now().Add(24*time.Hour))
	require.True(t, res.CalendarChecked)
	assert.Empty(t, res.Intervals)
}
