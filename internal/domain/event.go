package domain

import (
	"strings"
	"time"
)

type EventStatus string

const (
	EventStatusUpcoming EventStatus = "upcoming"
	EventStatusActive   EventStatus = "active"
	EventStatusPast     EventStatus = "past"
)

// Event is an attendance-counted event owned by one association.
// Version counts the taps appended so far and guards ledger writes.
type Event struct {
	ID        string
	OwnerID   string
	Name      string
	StartsAt  time.Time
	EndsAt    time.Time
	Total     int
	Version   int64
	CreatedAt time.Time
}

// Status reports where now falls relative to the event window. Both
// window edges count as active.
func (e Event) Status(now time.Time) EventStatus {
	switch {
	case now.Before(e.StartsAt):
		return EventStatusUpcoming
	case now.After(e.EndsAt):
		return EventStatusPast
	default:
		return EventStatusActive
	}
}

// Covers reports whether t lies within [StartsAt, EndsAt].
func (e Event) Covers(t time.Time) bool {
	return !t.Before(e.StartsAt) && !t.After(e.EndsAt)
}

// ValidateEventFields checks the user-editable fields of an event.
func ValidateEventFields(name string, startsAt, endsAt time.Time) error {
	if strings.TrimSpace(name) == "" {
		return ErrEventNameRequired
	}
	if endsAt.Before(startsAt) {
		return ErrInvalidRange
	}
	return nil
}

// Summary aggregates an association's events for the dashboard.
type Summary struct {
	Events    int
	Upcoming  int
	Active    int
	Past      int
	Attendees int
}
