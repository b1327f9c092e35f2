package scheduling

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wellspring-care/teletherapy-platform/internal/gcal"
	"github.com/wellspring-care/teletherapy-platform/internal/observability/metrics"
	"github.com/wellspring-care/teletherapy-platform/pkg/logging"
)

// ErrNoConference means the upstream created the event but attached no video
// entry point. Sessions without a working join link must not be handed to
// clients, so event creation fails hard on it.
var ErrNoConference = errors.New("scheduling: event created without conference link")

const (
	defaultElapsedGrace = 10 * time.Minute
	joinInstructions    = "Join the session using the video link attached to this invitation."
)

// Calendar is the slice of the upstream gateway the event manager needs.
type Calendar interface {
	EnsureReady(ctx context.Context)
	InsertEvent(ctx context.Context, calendarID string, draft gcal.EventDraft) (*gcal.Event, error)
	PatchEvent(ctx context.Context, calendarID, eventID string, changes gcal.EventChanges) (*gcal.Event, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
	GetEvent(ctx context.Context, calendarID, eventID string) (*gcal.Event, error)
	ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]gcal.Event, error)
}

// CreateEventRequest describes a session to place on a calendar.
type CreateEventRequest struct {
	// AppointmentID keys the conference request so retried creates do not
	// mint duplicate meeting links. Generated when empty.
	AppointmentID      string
	ProviderID         string
	Category           SessionCategory
	SessionType        string
	ForceAdminCalendar bool
	Title              string
	Notes              string
	Start              time.Time
	End                time.Time
	Timezone           string
	Attendees          []Attendee
}

// EventUpdate is a partial session update. Nil fields are left untouched.
type EventUpdate struct {
	Title       *string
	Description *string
	Start       *time.Time
	End         *time.Time
	Timezone    string
	Attendees   []Attendee
}

// EventManager creates and maintains session events on the calendars the
// router selects.
type EventManager struct {
	calendar     Calendar
	router       *Router
	elapsedGrace time.Duration
	now          func() time.Time
	logger       *logging.Logger
	metrics      *metrics.SchedulingMetrics
}

// EventManagerOptions configures an EventManager. Calendar and Router are
// required.
type EventManagerOptions struct {
	Calendar Calendar
	Router   *Router
	// ElapsedGrace is how far past its scheduled end a session may be and
	// still get an event created (late bookings racing the clock).
	ElapsedGrace time.Duration
	Now          func() time.Time
	Logger       *logging.Logger
	Metrics      *metrics.SchedulingMetrics
}

func NewEventManager(opts EventManagerOptions) *EventManager {
	if opts.ElapsedGrace <= 0 {
		opts.ElapsedGrace = defaultElapsedGrace
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &EventManager{
		calendar:     opts.Calendar,
		router:       opts.Router,
		elapsedGrace: opts.ElapsedGrace,
		now:          opts.Now,
		logger:       opts.Logger.Component("session-events"),
		metrics:      opts.Metrics,
	}
}

// CreateEvent routes the session to a calendar and creates the event with a
// generated video conference. A session already past its end plus the grace
// window returns (nil, decision, nil) without touching the upstream. When the
// routed calendar is a provider's delegated calendar and the upstream rejects
// it as an auth problem, creation is retried exactly once on the
// administrative calendar.
func (m *EventManager) CreateEvent(ctx context.Context, req CreateEventRequest) (*SessionEvent, RoutingDecision, error) {
	if !req.Start.Before(req.End) {
		return nil, RoutingDecision{}, fmt.Errorf("scheduling: session start %s is not before end %s", req.Start, req.End)
	}
	if m.now().After(req.End.Add(m.elapsedGrace)) {
		m.logger.Info("skipping event for elapsed session",
			"appointment_id", req.AppointmentID, "end", req.End)
		return nil, RoutingDecision{}, nil
	}

	decision := m.router.DecideTarget(ctx, RouteRequest{
		Category:           req.Category,
		SessionType:        req.SessionType,
		ProviderID:         req.ProviderID,
		ForceAdminCalendar: req.ForceAdminCalendar,
	})

	appointmentID := req.AppointmentID
	if appointmentID == "" {
		appointmentID = uuid.NewString()
	}
	attendees := sanitizeAttendees(req.Attendees)
	draft := gcal.EventDraft{
		Title:               req.Title,
		Description:         buildDescription(req.Notes, attendees),
		Start:               req.Start,
		End:                 req.End,
		Timezone:            req.Timezone,
		Attendees:           toGcalAttendees(attendees),
		ConferenceRequestID: appointmentID,
	}

	m.calendar.EnsureReady(ctx)
	created, err := m.calendar.InsertEvent(ctx, decision.TargetCalendarID, draft)
	if err != nil && gcal.IsAuthError(err) && decision.TargetCalendarID != m.router.AdminCalendarID() {
		m.logger.Warn("delegated calendar rejected event, falling back to admin calendar",
			"provider_id", req.ProviderID,
			"delegated_calendar_id", decision.TargetCalendarID,
			"admin_calendar_id", m.router.AdminCalendarID(),
			"error", err)
		m.metrics.ObserveCalendarFallback()
		decision.FallbackFrom = decision.TargetCalendarID
		decision.TargetCalendarID = m.router.AdminCalendarID()
		decision.UsedFallback = true
		decision.Reason = "delegated auth failure"
		created, err = m.calendar.InsertEvent(ctx, decision.TargetCalendarID, draft)
	}
	if err != nil {
		return nil, decision, fmt.Errorf("scheduling: create session event: %w", err)
	}

	if created.ConferenceURL == "" {
		// no placeholder links: remove the half-made event and fail
		if delErr := m.calendar.DeleteEvent(ctx, decision.TargetCalendarID, created.ID); delErr != nil && !gcal.IsNotFound(delErr) {
			m.logger.Error("failed to clean up event without conference link",
				"calendar_id", decision.TargetCalendarID, "event_id", created.ID, "error", delErr)
		}
		return nil, decision, ErrNoConference
	}

	m.logger.Info("session event created",
		"appointment_id", appointmentID,
		"event_id", created.ID,
		"calendar_id", decision.TargetCalendarID,
		"used_fallback", decision.UsedFallback)
	return sessionEventFrom(created, decision.TargetCalendarID), decision, nil
}

// UpdateEvent patches a session event. Returns false when the event no longer
// exists upstream; the caller maps that to its own not-found handling.
func (m *EventManager) UpdateEvent(ctx context.Context, calendarID, eventID string, update EventUpdate) (*SessionEvent, bool, error) {
	if update.Start != nil && update.End != nil && !update.Start.Before(*update.End) {
		return nil, false, fmt.Errorf("scheduling: session start %s is not before end %s", update.Start, update.End)
	}
	m.calendar.EnsureReady(ctx)
	changes := gcal.EventChanges{
		Title:       update.Title,
		Description: update.Description,
		Start:       update.Start,
		End:         update.End,
		Timezone:    update.Timezone,
		Attendees:   toGcalAttendees(sanitizeAttendees(update.Attendees)),
	}
	updated, err := m.calendar.PatchEvent(ctx, calendarID, eventID, changes)
	if gcal.IsNotFound(err) {
		m.logger.Warn("session event vanished upstream", "calendar_id", calendarID, "event_id", eventID)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("scheduling: update session event: %w", err)
	}
	return sessionEventFrom(updated, calendarID), true, nil
}

// DeleteEvent removes a session event. Already-gone events are success:
// cancellation is idempotent.
func (m *EventManager) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	m.calendar.EnsureReady(ctx)
	err := m.calendar.DeleteEvent(ctx, calendarID, eventID)
	if gcal.IsNotFound(err) {
		m.logger.Info("session event already removed", "calendar_id", calendarID, "event_id", eventID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("scheduling: delete session event: %w", err)
	}
	return nil
}

// GetEvent fetches a session event. A missing event returns (nil, nil).
func (m *EventManager) GetEvent(ctx context.Context, calendarID, eventID string) (*SessionEvent, error) {
	m.calendar.EnsureReady(ctx)
	found, err := m.calendar.GetEvent(ctx, calendarID, eventID)
	if gcal.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scheduling: get session event: %w", err)
	}
	return sessionEventFrom(found, calendarID), nil
}

// sanitizeAttendees drops invalid addresses and deduplicates by address,
// keeping first occurrence. Upstream rejects whole inserts over one bad
// attendee, so filtering here keeps the booking alive.
func sanitizeAttendees(in []Attendee) []Attendee {
	seen := make(map[string]struct{}, len(in))
	out := make([]Attendee, 0, len(in))
	for _, a := range in {
		addr := strings.TrimSpace(a.Email)
		if addr == "" {
			continue
		}
		if _, err := mail.ParseAddress(addr); err != nil {
			continue
		}
		key := strings.ToLower(addr)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		a.Email = addr
		out = append(out, a)
	}
	return out
}

func toGcalAttendees(in []Attendee) []gcal.Attendee {
	if len(in) == 0 {
		return nil
	}
	out := make([]gcal.Attendee, 0, len(in))
	for _, a := range in {
		out = append(out, gcal.Attendee{Email: a.Email, DisplayName: a.DisplayName})
	}
	return out
}

func buildDescription(notes string, attendees []Attendee) string {
	var b strings.Builder
	if notes != "" {
		b.WriteString(notes)
		b.WriteString("\n\n")
	}
	for _, a := range attendees {
		name := a.DisplayName
		if name == "" {
			name = a.Email
		}
		switch a.Role {
		case RoleClient:
			fmt.Fprintf(&b, "Client: %s\n", name)
		case RoleProvider:
			fmt.Fprintf(&b, "Provider: %s\n", name)
		}
	}
	b.WriteString("\n")
	b.WriteString(joinInstructions)
	return b.String()
}

func sessionEventFrom(ev *gcal.Event, calendarID string) *SessionEvent {
	out := &SessionEvent{
		EventID:       ev.ID,
		CalendarID:    calendarID,
		Title:         ev.Title,
		Description:   ev.Description,
		Start:         ev.Start,
		End:           ev.End,
		ConferenceURL: ev.ConferenceURL,
		ConferenceID:  ev.ConferenceID,
	}
	for _, a := range ev.Attendees {
		out.Attendees = append(out.Attendees, Attendee{Email: a.Email, DisplayName: a.DisplayName})
	}
	return out
}
