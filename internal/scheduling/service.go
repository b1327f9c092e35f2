package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wellspring-care/teletherapy-platform/internal/bookings"
	"github.com/wellspring-care/teletherapy-platform/internal/notify"
	"github.com/wellspring-care/teletherapy-platform/internal/observability/metrics"
	"github.com/wellspring-care/teletherapy-platform/pkg/logging"
)

var schedulingTracer = otel.Tracer("internal/scheduling")

// BookingStore persists the appointment-to-event link.
type BookingStore interface {
	Insert(ctx context.Context, rec bookings.Record) (string, error)
	UpdateSchedule(ctx context.Context, calendarID, eventID string, start, end time.Time) error
	MarkCancelled(ctx context.Context, calendarID, eventID string) error
}

// Auditor writes the scheduling compliance trail. All methods are best
// effort from the caller's perspective; an unavailable trail never blocks a
// booking.
type Auditor interface {
	LogRoutingDecision(ctx context.Context, providerID, calendarID string, usedFallback bool, reason string) error
	LogCalendarFallback(ctx context.Context, providerID, delegatedCalendarID, adminCalendarID, upstreamErr string) error
	LogBookingCreated(ctx context.Context, providerID, appointmentID, calendarID, eventID string) error
	LogBookingCancelled(ctx context.Context, calendarID, eventID string) error
}

// NewRoutingAuditor adapts an Auditor to the router's callback.
func NewRoutingAuditor(a Auditor) RoutingAuditor {
	return routingAuditor{a: a}
}

type routingAuditor struct{ a Auditor }

func (r routingAuditor) RecordRoutingDecision(ctx context.Context, providerID string, d RoutingDecision) {
	_ = r.a.LogRoutingDecision(ctx, providerID, d.TargetCalendarID, d.UsedFallback, d.Reason)
}

// BookingResult is the outcome of BookSession. Created is false when the
// session had already elapsed and no event was made.
type BookingResult struct {
	Created      bool          `json:"created"`
	BookingID    string        `json:"booking_id,omitempty"`
	Event        *SessionEvent `json:"event,omitempty"`
	UsedFallback bool          `json:"used_fallback"`
}

// Availability is a provider's busy time for one day. Busy intervals plus the
// working-hours window are what callers need to derive open slots.
type Availability struct {
	ProviderID        string         `json:"provider_id"`
	Date              string         `json:"date"`
	Timezone          string         `json:"timezone"`
	WorkingHoursStart string         `json:"working_hours_start,omitempty"`
	WorkingHoursEnd   string         `json:"working_hours_end,omitempty"`
	Busy              []BusyInterval `json:"busy"`
	CalendarChecked   bool           `json:"calendar_checked"`
}

// Service is the scheduling facade the HTTP layer talks to.
type Service struct {
	events            *EventManager
	conflicts         *ConflictChecker
	directory         *Directory
	store             BookingStore
	emails            notify.EmailSender
	auditor           Auditor
	logger            *logging.Logger
	metrics           *metrics.SchedulingMetrics
	now               func() time.Time
	defaultTimezone   string
	workingHoursStart string
	workingHoursEnd   string
}

// ServiceOptions configures the facade. Events, Conflicts and Directory are
// required; Store, Emails and Auditor degrade gracefully when nil.
type ServiceOptions struct {
	Events    *EventManager
	Conflicts *ConflictChecker
	Directory *Directory
	Store     BookingStore
	Emails    notify.EmailSender
	Auditor   Auditor
	Logger    *logging.Logger
	Metrics   *metrics.SchedulingMetrics
	Now       func() time.Time
	// DefaultTimezone applies when a provider profile has none.
	DefaultTimezone string
	// Working hours (HH:MM) reported alongside availability.
	WorkingHoursStart string
	WorkingHoursEnd   string
}

func NewService(opts ServiceOptions) *Service {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		events:            opts.Events,
		conflicts:         opts.Conflicts,
		directory:         opts.Directory,
		store:             opts.Store,
		emails:            opts.Emails,
		auditor:           opts.Auditor,
		logger:            opts.Logger.Component("scheduling"),
		metrics:           opts.Metrics,
		now:               opts.Now,
		defaultTimezone:   opts.DefaultTimezone,
		workingHoursStart: opts.WorkingHoursStart,
		workingHoursEnd:   opts.WorkingHoursEnd,
	}
}

// BookSession creates the calendar event for a session and persists the
// booking. The calendar event is the source of truth: if persistence fails
// the event is removed again so the two never diverge.
func (s *Service) BookSession(ctx context.Context, req CreateEventRequest) (*BookingResult, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.BookSession",
		trace.WithAttributes(attribute.String("provider_id", req.ProviderID)))
	defer span.End()
	started := s.now()
	defer func() { s.metrics.ObserveOperationDuration("book_session", s.now().Sub(started).Seconds()) }()

	ev, decision, err := s.events.CreateEvent(ctx, req)
	if err != nil {
		s.metrics.ObserveBooking("failed", decision.UsedFallback)
		return nil, err
	}
	if ev == nil {
		// session already elapsed, nothing to book
		s.metrics.ObserveBooking("skipped_elapsed", false)
		return &BookingResult{Created: false}, nil
	}

	if decision.FallbackFrom != "" && s.auditor != nil {
		if aerr := s.auditor.LogCalendarFallback(ctx, req.ProviderID, decision.FallbackFrom, decision.TargetCalendarID, "delegated calendar rejected insert"); aerr != nil {
			s.logger.Warn("audit write failed", "error", aerr)
		}
	}

	var bookingID string
	if s.store != nil {
		bookingID, err = s.store.Insert(ctx, bookings.Record{
			AppointmentID: req.AppointmentID,
			ProviderID:    req.ProviderID,
			EventID:       ev.EventID,
			CalendarID:    ev.CalendarID,
			ConferenceURL: ev.ConferenceURL,
			StartTime:     ev.Start,
			EndTime:       ev.End,
		})
		if err != nil {
			// roll the event back so no session exists without its booking
			if delErr := s.events.DeleteEvent(ctx, ev.CalendarID, ev.EventID); delErr != nil {
				s.logger.Error("failed to remove event after booking persistence failure",
					"calendar_id", ev.CalendarID, "event_id", ev.EventID, "error", delErr)
			}
			s.metrics.ObserveBooking("failed", decision.UsedFallback)
			return nil, fmt.Errorf("scheduling: persist booking: %w", err)
		}
	}

	if s.auditor != nil {
		if aerr := s.auditor.LogBookingCreated(ctx, req.ProviderID, req.AppointmentID, ev.CalendarID, ev.EventID); aerr != nil {
			s.logger.Warn("audit write failed", "error", aerr)
		}
	}
	s.sendConfirmation(ctx, req, ev)

	s.metrics.ObserveBooking("created", decision.UsedFallback)
	return &BookingResult{
		Created:      true,
		BookingID:    bookingID,
		Event:        ev,
		UsedFallback: decision.UsedFallback,
	}, nil
}

func (s *Service) sendConfirmation(ctx context.Context, req CreateEventRequest, ev *SessionEvent) {
	if s.emails == nil {
		return
	}
	var client, provider Attendee
	for _, a := range req.Attendees {
		switch a.Role {
		case RoleClient:
			client = a
		case RoleProvider:
			provider = a
		}
	}
	if client.Email == "" {
		return
	}
	info := s.directory.Resolve(ctx, req.ProviderID)
	msg := notify.BookingConfirmationEmail(notify.SessionConfirmation{
		ClientEmail:   client.Email,
		ClientName:    client.DisplayName,
		ProviderName:  provider.DisplayName,
		SessionTitle:  ev.Title,
		Start:         ev.Start,
		Timezone:      info.Timezone,
		ConferenceURL: ev.ConferenceURL,
	})
	if err := s.emails.Send(ctx, msg); err != nil {
		// the booking stands even when the confirmation does not go out
		s.logger.Error("confirmation email failed", "to", client.Email, "error", err)
	}
}

// RescheduleSession moves a session to new times. Returns false when the
// event no longer exists upstream.
func (s *Service) RescheduleSession(ctx context.Context, calendarID, eventID string, start, end time.Time, timezone string) (bool, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.RescheduleSession",
		trace.WithAttributes(attribute.String("event_id", eventID)))
	defer span.End()
	started := s.now()
	defer func() { s.metrics.ObserveOperationDuration("reschedule_session", s.now().Sub(started).Seconds()) }()

	_, found, err := s.events.UpdateEvent(ctx, calendarID, eventID, EventUpdate{
		Start:    &start,
		End:      &end,
		Timezone: timezone,
	})
	if err != nil || !found {
		return found, err
	}
	if s.store != nil {
		if err := s.store.UpdateSchedule(ctx, calendarID, eventID, start, end); err != nil {
			if errors.Is(err, bookings.ErrNotFound) {
				s.logger.Warn("rescheduled event has no booking record",
					"calendar_id", calendarID, "event_id", eventID)
			} else {
				return true, fmt.Errorf("scheduling: persist reschedule: %w", err)
			}
		}
	}
	return true, nil
}

// CancelSession removes the session event and marks the booking cancelled.
// Idempotent: cancelling an already-gone session succeeds.
func (s *Service) CancelSession(ctx context.Context, calendarID, eventID string) error {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.CancelSession",
		trace.WithAttributes(attribute.String("event_id", eventID)))
	defer span.End()
	started := s.now()
	defer func() { s.metrics.ObserveOperationDuration("cancel_session", s.now().Sub(started).Seconds()) }()

	if err := s.events.DeleteEvent(ctx, calendarID, eventID); err != nil {
		return err
	}
	if s.store != nil {
		if err := s.store.MarkCancelled(ctx, calendarID, eventID); err != nil {
			return fmt.Errorf("scheduling: persist cancellation: %w", err)
		}
	}
	if s.auditor != nil {
		if aerr := s.auditor.LogBookingCancelled(ctx, calendarID, eventID); aerr != nil {
			s.logger.Warn("audit write failed", "error", aerr)
		}
	}
	return nil
}

// GetSession fetches a session event. A missing event returns (nil, nil).
func (s *Service) GetSession(ctx context.Context, calendarID, eventID string) (*SessionEvent, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.GetSession")
	defer span.End()
	return s.events.GetEvent(ctx, calendarID, eventID)
}

// GetAvailability reports the provider's busy time for one calendar day in
// the provider's timezone. Never fails; an unreachable calendar yields an
// empty list with CalendarChecked false.
func (s *Service) GetAvailability(ctx context.Context, providerID string, day time.Time) Availability {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.GetAvailability",
		trace.WithAttributes(attribute.String("provider_id", providerID)))
	defer span.End()
	started := s.now()
	defer func() { s.metrics.ObserveOperationDuration("get_availability", s.now().Sub(started).Seconds()) }()

	info := s.directory.Resolve(ctx, providerID)
	tz := info.Timezone
	if tz == "" {
		tz = s.defaultTimezone
	}
	loc := time.UTC
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	y, m, d := day.In(loc).Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 0, 1)

	res := s.conflicts.BusyIntervals(ctx, providerID, from, to)
	return Availability{
		ProviderID:        providerID,
		Date:              from.Format("2006-01-02"),
		Timezone:          loc.String(),
		WorkingHoursStart: s.workingHoursStart,
		WorkingHoursEnd:   s.workingHoursEnd,
		Busy:              res.Intervals,
		CalendarChecked:   res.CalendarChecked,
	}
}

// InvalidateProviderCache drops a provider's cached calendar identity.
func (s *Service) InvalidateProviderCache(ctx context.Context, providerID string) {
	s.directory.Invalidate(ctx, providerID)
}

// InvalidateAllCaches drops every cached calendar identity.
func (s *Service) InvalidateAllCaches(ctx context.Context) {
	s.directory.InvalidateAll(ctx)
}
