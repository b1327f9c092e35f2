package scheduling

import (
	"context"
	"time"

	"github.com/wellspring-care/teletherapy-platform/internal/observability/metrics"
	"github.com/wellspring-care/teletherapy-platform/pkg/logging"
)

// ConflictChecker answers "when is this provider busy" from upstream calendar
// state. It never fails: an unreachable calendar yields an empty result with
// CalendarChecked false so callers can distinguish "clear" from "unknown".
type ConflictChecker struct {
	calendar  Calendar
	directory *Directory
	logger    *logging.Logger
	metrics   *metrics.SchedulingMetrics
}

func NewConflictChecker(calendar Calendar, directory *Directory, logger *logging.Logger, m *metrics.SchedulingMetrics) *ConflictChecker {
	if logger == nil {
		logger = logging.Default()
	}
	return &ConflictChecker{
		calendar:  calendar,
		directory: directory,
		logger:    logger.Component("conflicts"),
		metrics:   m,
	}
}

// BusyIntervals returns the provider's busy time within [from, to). Cancelled
// events and free/transparent blocks do not occupy time. All-day events
// block the whole day in the provider's timezone.
func (c *ConflictChecker) BusyIntervals(ctx context.Context, providerID string, from, to time.Time) BusyResult {
	info := c.directory.Resolve(ctx, providerID)
	loc := c.location(info.Timezone)

	c.calendar.EnsureReady(ctx)
	events, err := c.calendar.ListEvents(ctx, info.CalendarID, from, to)
	if err != nil {
		c.logger.Error("busy interval query failed",
			"provider_id", providerID, "calendar_id", info.CalendarID, "error", err)
		c.metrics.ObserveConflictQuery(false)
		return BusyResult{CalendarChecked: false}
	}

	intervals := make([]BusyInterval, 0, len(events))
	for _, ev := range events {
		if ev.Status == "cancelled" || ev.Transparent {
			continue
		}
		if ev.AllDay {
			if iv, ok := allDayInterval(ev.AllDayDate, ev.Title, loc); ok {
				intervals = append(intervals, iv)
			}
			continue
		}
		if ev.Start.IsZero() || ev.End.IsZero() {
			continue
		}
		intervals = append(intervals, BusyInterval{Start: ev.Start, End: ev.End, Label: ev.Title})
	}
	c.metrics.ObserveConflictQuery(true)
	return BusyResult{Intervals: intervals, CalendarChecked: true}
}

func (c *ConflictChecker) location(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		c.logger.Warn("unknown provider timezone, using UTC", "timezone", tz)
		return time.UTC
	}
	return loc
}

func allDayInterval(date, label string, loc *time.Location) (BusyInterval, bool) {
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return BusyInterval{}, false
	}
	return BusyInterval{Start: day, End: day.AddDate(0, 0, 1), Label: label}, true
}
