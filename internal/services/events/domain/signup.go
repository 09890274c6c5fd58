package domain

import "time"

// SignupKind distinguishes the two independent capacity pools.
type SignupKind string

const (
	SignupKindRegistration SignupKind = "registration"
	SignupKindVolunteer    SignupKind = "volunteer"
)

// SignupStatus is the lifecycle state of a signup. Pending is the only
// non-terminal state.
type SignupStatus string

const (
	SignupStatusPending  SignupStatus = "pending"
	SignupStatusApproved SignupStatus = "approved"
	SignupStatusRejected SignupStatus = "rejected"
)

// Signup is one user's entry in one event pool.
type Signup struct {
	EventID   string
	UserID    string
	Kind      SignupKind
	Status    SignupStatus
	Message   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SignupPage is one page of an event's signups, newest first.
type SignupPage struct {
	Signups       []Signup
	NextPageToken string
}

// Attendance is the per-user presence fact for an event. It is written at
// most once.
type Attendance struct {
	EventID       string
	UserID        string
	VerifiedAt    time.Time
	TokenConsumed bool
}
