// Package gcal is the gateway to the upstream Google Calendar / Meet service.
// It owns authentication (domain-wide delegation through a service account),
// the readiness gate, and the retry/backoff policy every upstream call runs
// under.
package gcal

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/wellspring-care/teletherapy-platform/pkg/logging"
)

const defaultSetupTimeout = 5 * time.Second

// ServiceFactory builds the authenticated calendar service. Swappable so
// tests can point the client at an httptest server.
type ServiceFactory func(ctx context.Context) (*calendar.Service, error)

// Options configures a Client.
type Options struct {
	// CredentialsFile is a service-account JSON key with domain-wide
	// delegation to the calendar scope.
	CredentialsFile string
	// ImpersonateSubject is the workspace account the service acts as.
	ImpersonateSubject string
	SetupTimeout       time.Duration
	Retry              RetryConfig
	Logger             *logging.Logger
	// Factory overrides credential-based construction (tests).
	Factory ServiceFactory
}

// Client is the upstream calendar gateway. Construction is synchronous and
// does no I/O; authentication happens on the first EnsureReady call.
type Client struct {
	logger       *logging.Logger
	factory      ServiceFactory
	setupTimeout time.Duration
	retry        RetryConfig

	mu    sync.Mutex
	svc   *calendar.Service
	setup chan struct{} // non-nil while an auth attempt is in flight
}

// NewClient builds an unready client. Call EnsureReady (directly or via any
// operation) to establish upstream authentication.
func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	setupTimeout := opts.SetupTimeout
	if setupTimeout <= 0 {
		setupTimeout = defaultSetupTimeout
	}
	factory := opts.Factory
	if factory == nil {
		factory = credentialFactory(opts.CredentialsFile, opts.ImpersonateSubject)
	}
	return &Client{
		logger:       logger.Component("gcal"),
		factory:      factory,
		setupTimeout: setupTimeout,
		retry:        opts.Retry,
	}
}

func credentialFactory(credentialsFile, subject string) ServiceFactory {
	return func(ctx context.Context) (*calendar.Service, error) {
		if credentialsFile == "" {
			return nil, fmt.Errorf("gcal: credentials file not configured")
		}
		data, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("gcal: read credentials: %w", err)
		}
		jwtCfg, err := google.JWTConfigFromJSON(data, calendar.CalendarScope)
		if err != nil {
			return nil, fmt.Errorf("gcal: parse credentials: %w", err)
		}
		if subject != "" {
			jwtCfg.Subject = subject
		}
		svc, err := calendar.NewService(ctx, option.WithHTTPClient(jwtCfg.Client(ctx)))
		if err != nil {
			return nil, fmt.Errorf("gcal: build calendar service: %w", err)
		}
		return svc, nil
	}
}

// EnsureReady establishes upstream authentication, at most once concurrently.
// Callers arriving while setup is in flight share the same attempt. The wait
// is bounded by the setup timeout: whether the attempt succeeded, failed or
// is still pending afterwards, EnsureReady returns so the caller can proceed
// and let the per-operation error handling take over. A failed attempt clears
// the memo so a later call starts a fresh one.
func (c *Client) EnsureReady(ctx context.Context) {
	c.mu.Lock()
	if c.svc != nil {
		c.mu.Unlock()
		return
	}
	if c.setup == nil {
		done := make(chan struct{})
		c.setup = done
		go c.runSetup(done)
	}
	done := c.setup
	c.mu.Unlock()

	timer := time.NewTimer(c.setupTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		c.logger.Warn("calendar auth setup still pending after timeout", "timeout", c.setupTimeout)
	case <-ctx.Done():
	}
}

func (c *Client) runSetup(done chan struct{}) {
	defer close(done)

	ctx, cancel := context.WithTimeout(context.Background(), c.setupTimeout)
	defer cancel()
	svc, err := c.factory(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.setup = nil
	if err != nil {
		c.logger.Error("calendar auth setup failed", "error", err)
		return
	}
	c.svc = svc
	c.logger.Info("calendar service ready")
}

// Ready reports whether authentication has been established.
func (c *Client) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.svc != nil
}

func (c *Client) service(ctx context.Context) (*calendar.Service, error) {
	c.EnsureReady(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.svc == nil {
		return nil, ErrNotReady
	}
	return c.svc, nil
}

// InsertEvent creates an event on the given calendar and returns the created
// event including any conference data the upstream attached. The join URL is
// never synthesized: if the upstream returned no video entry point the
// returned Event has an empty ConferenceURL and the caller decides.
func (c *Client) InsertEvent(ctx context.Context, calendarID string, draft EventDraft) (*Event, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return nil, err
	}
	payload := draftToCalendarEvent(draft)
	return WithRetry(ctx, c.logger, c.retry, "events.insert", func(ctx context.Context) (*Event, error) {
		call := svc.Events.Insert(calendarID, payload).SendUpdates("all").Context(ctx)
		if draft.ConferenceRequestID != "" {
			call = call.ConferenceDataVersion(1)
		}
		created, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("gcal: insert event on %s: %w", calendarID, err)
		}
		return fromCalendarEvent(created), nil
	})
}

// PatchEvent applies a partial update. The caller maps not-found to its own
// semantics; everything else went through the retry policy already.
func (c *Client) PatchEvent(ctx context.Context, calendarID, eventID string, changes EventChanges) (*Event, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return nil, err
	}
	payload := changesToCalendarEvent(changes)
	return WithRetry(ctx, c.logger, c.retry, "events.patch", func(ctx context.Context) (*Event, error) {
		updated, err := svc.Events.Patch(calendarID, eventID, payload).SendUpdates("all").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("gcal: patch event %s on %s: %w", eventID, calendarID, err)
		}
		return fromCalendarEvent(updated), nil
	})
}

// DeleteEvent removes an event. Not-found is returned as-is (classified by
// IsNotFound) so callers can treat double-deletes as success.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	svc, err := c.service(ctx)
	if err != nil {
		return err
	}
	_, err = WithRetry(ctx, c.logger, c.retry, "events.delete", func(ctx context.Context) (struct{}, error) {
		if err := svc.Events.Delete(calendarID, eventID).SendUpdates("all").Context(ctx).Do(); err != nil {
			return struct{}{}, fmt.Errorf("gcal: delete event %s on %s: %w", eventID, calendarID, err)
		}
		return struct{}{}, nil
	})
	return err
}

// GetEvent fetches a single event.
func (c *Client) GetEvent(ctx context.Context, calendarID, eventID string) (*Event, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return nil, err
	}
	return WithRetry(ctx, c.logger, c.retry, "events.get", func(ctx context.Context) (*Event, error) {
		found, err := svc.Events.Get(calendarID, eventID).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("gcal: get event %s on %s: %w", eventID, calendarID, err)
		}
		return fromCalendarEvent(found), nil
	})
}

// ListEvents returns the events overlapping [from, to) on a calendar,
// expanded to single instances.
func (c *Client) ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]Event, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return nil, err
	}
	return WithRetry(ctx, c.logger, c.retry, "events.list", func(ctx context.Context) ([]Event, error) {
		var out []Event
		call := svc.Events.List(calendarID).
			TimeMin(from.Format(time.RFC3339)).
			TimeMax(to.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			MaxResults(2500).
			Context(ctx)
		if err := call.Pages(ctx, func(page *calendar.Events) error {
			for _, item := range page.Items {
				out = append(out, *fromCalendarEvent(item))
			}
			return nil
		}); err != nil {
			return nil, fmt.Errorf("gcal: list events on %s: %w", calendarID, err)
		}
		return out, nil
	})
}

func draftToCalendarEvent(draft EventDraft) *calendar.Event {
	ev := &calendar.Event{
		Summary:     draft.Title,
		Description: draft.Description,
		Start: &calendar.EventDateTime{
			DateTime: draft.Start.Format(time.RFC3339),
			TimeZone: draft.Timezone,
		},
		End: &calendar.EventDateTime{
			DateTime: draft.End.Format(time.RFC3339),
			TimeZone: draft.Timezone,
		},
	}
	for _, a := range draft.Attendees {
		ev.Attendees = append(ev.Attendees, &calendar.EventAttendee{
			Email:       a.Email,
			DisplayName: a.DisplayName,
		})
	}
	if draft.ConferenceRequestID != "" {
		ev.ConferenceData = &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId: draft.ConferenceRequestID,
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{
					Type: "hangoutsMeet",
				},
			},
		}
	}
	return ev
}

func changesToCalendarEvent(changes EventChanges) *calendar.Event {
	ev := &calendar.Event{}
	if changes.Title != nil {
		ev.Summary = *changes.Title
	}
	if changes.Description != nil {
		ev.Description = *changes.Description
	}
	if changes.Start != nil {
		ev.Start = &calendar.EventDateTime{
			DateTime: changes.Start.Format(time.RFC3339),
			TimeZone: changes.Timezone,
		}
	}
	if changes.End != nil {
		ev.End = &calendar.EventDateTime{
			DateTime: changes.End.Format(time.RFC3339),
			TimeZone: changes.Timezone,
		}
	}
	for _, a := range changes.Attendees {
		ev.Attendees = append(ev.Attendees, &calendar.EventAttendee{
			Email:       a.Email,
			DisplayName: a.DisplayName,
		})
	}
	return ev
}

func fromCalendarEvent(src *calendar.Event) *Event {
	ev := &Event{
		ID:          src.Id,
		Title:       src.Summary,
		Description: src.Description,
		Status:      src.Status,
		Transparent: src.Transparency == "transparent",
	}
	if src.Start != nil {
		if src.Start.Date != "" {
			ev.AllDay = true
			ev.AllDayDate = src.Start.Date
		} else if t, err := time.Parse(time.RFC3339, src.Start.DateTime); err == nil {
			ev.Start = t
		}
	}
	if src.End != nil && src.End.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, src.End.DateTime); err == nil {
			ev.End = t
		}
	}
	for _, a := range src.Attendees {
		if a == nil {
			continue
		}
		ev.Attendees = append(ev.Attendees, Attendee{Email: a.Email, DisplayName: a.DisplayName})
	}
	if src.ConferenceData != nil {
		ev.ConferenceID = src.ConferenceData.ConferenceId
		for _, ep := range src.ConferenceData.EntryPoints {
			if ep != nil && ep.EntryPointType == "video" && ep.Uri != "" {
				ev.ConferenceURL = ep.Uri
				break
			}
		}
	}
	return ev
}
