package domain

import "errors"

var (
	// ErrNotFound indicates the requested event, signup, or attendance record
	// does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateSignup indicates the user already holds a signup of that
	// kind for the event, whatever its status.
	ErrDuplicateSignup = errors.New("duplicate signup")
	// ErrRegistrationClosed indicates the event registration window has ended.
	ErrRegistrationClosed = errors.New("registration closed")
	// ErrCapacityExceeded indicates the event pool is full.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrInvalidTransition indicates the signup is not pending, so it cannot
	// be approved or rejected.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNotAuthorized indicates the actor lacks the capability for the
	// operation.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrInvalidQrPayload indicates the scanned payload is not a usable
	// attendance credential.
	ErrInvalidQrPayload = errors.New("invalid qr payload")
	// ErrRegistrationNotApproved indicates attendance was attempted without
	// an approved registration.
	ErrRegistrationNotApproved = errors.New("registration not approved")
	// ErrEventNotStarted indicates attendance was attempted before the event
	// start time.
	ErrEventNotStarted = errors.New("event not started")
	// ErrAttendanceAlreadyMarked indicates the attendance fact already exists.
	ErrAttendanceAlreadyMarked = errors.New("attendance already marked")
)
