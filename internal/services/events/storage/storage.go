package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a requested write conflicts with uniqueness constraints.
	ErrConflict = errors.New("record conflict")
	// ErrCapacityExceeded indicates a signup was refused because the event limit is reached.
	ErrCapacityExceeded = errors.New("signup capacity exceeded")
	// ErrInvalidState indicates a status update targeted a row outside the expected state.
	ErrInvalidState = errors.New("record state disallows update")
)

// SignupKind identifies which capacity pool a signup draws from.
type SignupKind string

const (
	// SignupKindRegistration represents an attendee seat request.
	SignupKindRegistration SignupKind = "registration"
	// SignupKindVolunteer represents a volunteer slot request.
	SignupKindVolunteer SignupKind = "volunteer"
)

// SignupStatus identifies one signup lifecycle state.
type SignupStatus string

const (
	// SignupStatusPending means the signup awaits an administrator decision.
	SignupStatusPending SignupStatus = "pending"
	// SignupStatusApproved means an administrator accepted the signup.
	SignupStatusApproved SignupStatus = "approved"
	// SignupStatusRejected means an administrator declined the signup.
	SignupStatusRejected SignupStatus = "rejected"
)

// EventRecord stores the engine's read-only view of one community event.
// Rows are maintained by the external event-management service.
type EventRecord struct {
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

// SignupRecord stores one registration or volunteer application row.
type SignupRecord struct {
	EventID   string
	UserID    string
	Kind      SignupKind
	Status    SignupStatus
	Message   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SignupPage stores a paged signup listing result.
type SignupPage struct {
	Signups       []SignupRecord
	NextPageToken string
}

// AttendanceRecord stores one verified attendance fact.
type AttendanceRecord struct {
	EventID       string
	UserID        string
	VerifiedAt    time.Time
	TokenConsumed bool
}

// ChangeRecord stores one durable change_log row. Seq is assigned on insert.
type ChangeRecord struct {
	Seq          int64
	EventID      string
	CommunityID  string
	ResourceType string
	ChangeType   string
	UserID       string
	OccurredAt   time.Time
}

// EventStore persists the event read model.
type EventStore interface {
	UpsertEvent(ctx context.Context, record EventRecord) error
	GetEvent(ctx context.Context, eventID string) (EventRecord, error)
}

// SignupStore persists registration and volunteer lifecycle state.
//
// InsertSignupWithinLimit performs the capacity check and the insert as one
// atomic unit: when limit is non-nil and the event already holds limit
// pending-or-approved rows of the same kind, the insert fails with
// ErrCapacityExceeded and no row is written. A duplicate (event,user) pair
// fails with ErrConflict. The change row is written in the same transaction
// and returned with its assigned seq.
type SignupStore interface {
	InsertSignupWithinLimit(ctx context.Context, record SignupRecord, limit *int, change ChangeRecord) (ChangeRecord, error)
	UpdateSignupStatus(ctx context.Context, kind SignupKind, eventID, userID string, to SignupStatus, at time.Time, change ChangeRecord) (SignupRecord, ChangeRecord, error)
	GetSignup(ctx context.Context, kind SignupKind, eventID, userID string) (SignupRecord, error)
	ListSignupsByEvent(ctx context.Context, kind SignupKind, eventID string, pageSize int, pageToken string) (SignupPage, error)
	CountSignups(ctx context.Context, kind SignupKind, eventID string, statuses ...SignupStatus) (int, error)
}

// AttendanceStore persists attendance verification facts.
//
// InsertAttendance writes the attendance row and its change row atomically;
// an existing (event,user) row fails with ErrConflict and leaves the original
// verified_at untouched.
type AttendanceStore interface {
	InsertAttendance(ctx context.Context, record AttendanceRecord, change ChangeRecord) (ChangeRecord, error)
	GetAttendance(ctx context.Context, eventID, userID string) (AttendanceRecord, error)
}

// ChangeLogStore reads back the durable fan-out source.
type ChangeLogStore interface {
	ListChangesByEventAfter(ctx context.Context, eventID string, afterSeq int64, limit int) ([]ChangeRecord, error)
	ListChangesByCommunityAfter(ctx context.Context, communityID string, afterSeq int64, limit int) ([]ChangeRecord, error)
}

// Store is the full persistence surface the events service runs on.
type Store interface {
	EventStore
	SignupStore
	AttendanceStore
	ChangeLogStore
}
