package gcal

import "time"

// Attendee is an invitee on an upstream calendar event.
type Attendee struct {
	Email       string
	DisplayName string
}

// EventDraft is the payload for creating an upstream event. When
// ConferenceRequestID is non-empty the upstream service is asked to attach a
// generated video conference; reusing the same id across retried create
// attempts keeps the conference idempotent.
type EventDraft struct {
	Title               string
	Description         string
	Start               time.Time
	End                 time.Time
	Timezone            string
	Attendees           []Attendee
	ConferenceRequestID string
}

// EventChanges is a partial update. Nil pointer fields are left untouched;
// a nil Attendees slice keeps the existing invitees.
type EventChanges struct {
	Title       *string
	Description *string
	Start       *time.Time
	End         *time.Time
	Timezone    string
	Attendees   []Attendee
}

// Event mirrors the slice of an upstream event this layer cares about.
type Event struct {
	ID            string
	Title         string
	Description   string
	Start         time.Time
	End           time.Time
	AllDay        bool
	AllDayDate    string // yyyy-mm-dd, set only when AllDay
	Status        string
	Transparent   bool
	Attendees     []Attendee
	ConferenceURL string
	ConferenceID  string
}
