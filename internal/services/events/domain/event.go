package domain

import "time"

// Event is the read model the lifecycle rules evaluate against: the
// registration window, the start time, and the per-pool limits.
type Event struct {
	ID                string
	CommunityID       string
	Title             string
	RegistrationLimit *int
	VolunteerLimit    *int
	RegistrationEnd   time.Time
	StartTime         time.Time
	EndTime           time.Time
	UpdatedAt         time.Time
}

// RegistrationOpen reports whether new signups are accepted at the given
// moment. The window closes exactly at RegistrationEnd.
func (e Event) RegistrationOpen(at time.Time) bool {
	return at.Before(e.RegistrationEnd)
}

// Started reports whether the event has begun at the given moment.
// Attendance can be verified from the start time onward.
func (e Event) Started(at time.Time) bool {
	return !at.Before(e.StartTime)
}

// LimitFor returns the capacity limit for the given pool, nil meaning
// unlimited.
func (e Event) LimitFor(kind SignupKind) *int {
	if kind == SignupKindVolunteer {
		return e.VolunteerLimit
	}
	return e.RegistrationLimit
}
