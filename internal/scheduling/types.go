// Package scheduling maps therapy sessions onto provider calendars: it
// resolves which calendar a booking belongs to, creates and maintains the
// session events, checks busy intervals for availability, and degrades to the
// administrative calendar when a provider's delegated account is unusable.
package scheduling

import "time"

// AttendeeRole distinguishes the two parties on a session invite.
type AttendeeRole string

const (
	RoleClient   AttendeeRole = "client"
	RoleProvider AttendeeRole = "provider"
)

// Attendee is a session participant.
type Attendee struct {
	Email       string       `json:"email"`
	DisplayName string       `json:"display_name"`
	Role        AttendeeRole `json:"role"`
}

// ProviderCalendarInfo is the resolved calendar identity for a provider.
// Invariant: when IsConfigured is false, CalendarID is the administrative
// calendar id, a target that always works.
type ProviderCalendarInfo struct {
	ProviderID     string `json:"provider_id"`
	CalendarID     string `json:"calendar_id"`
	DelegatedEmail string `json:"delegated_email,omitempty"`
	IsConfigured   bool   `json:"is_configured"`
	DisplayName    string `json:"display_name,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
}

// SessionEvent is a calendar event representing a therapy session. Callers
// must persist EventID and CalendarID together: events live on different
// calendars per provider and neither id alone can address one later.
type SessionEvent struct {
	EventID       string     `json:"event_id"`
	CalendarID    string     `json:"calendar_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Start         time.Time  `json:"start"`
	End           time.Time  `json:"end"`
	Attendees     []Attendee `json:"attendees,omitempty"`
	ConferenceURL string     `json:"conference_url,omitempty"`
	ConferenceID  string     `json:"conference_id,omitempty"`
}

// BusyInterval is a time range during which a calendar is occupied. Derived
// fresh from upstream state per query, never persisted.
type BusyInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label,omitempty"`
}

// BusyResult carries busy intervals together with whether the upstream
// calendar was actually consulted. An empty interval list only means "no
// conflicts" when CalendarChecked is true; when false the upstream call
// failed and callers must not treat the calendar as confirmed clear.
type BusyResult struct {
	Intervals       []BusyInterval `json:"intervals"`
	CalendarChecked bool           `json:"calendar_checked"`
}

// RoutingDecision records which calendar an operation targeted and why.
// Ephemeral; logged for audit but not persisted as an entity. FallbackFrom is
// set only when a delegated calendar rejected the operation at runtime and it
// was retried on TargetCalendarID; it holds the calendar id originally decided.
type RoutingDecision struct {
	TargetCalendarID string `json:"target_calendar_id"`
	UsedFallback     bool   `json:"used_fallback"`
	Reason           string `json:"reason"`
	FallbackFrom     string `json:"fallback_from,omitempty"`
}
