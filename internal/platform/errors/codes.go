package errors

import (
	"errors"

	"google.golang.org/grpc/codes"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Registration ledger errors
	CodeDuplicateRegistration Code = "DUPLICATE_REGISTRATION"
	CodeRegistrationClosed    Code = "REGISTRATION_CLOSED"
	CodeCapacityExceeded      Code = "CAPACITY_EXCEEDED"
	CodeInvalidTransition     Code = "INVALID_TRANSITION"

	// Actor errors
	CodeNotAuthorized Code = "NOT_AUTHORIZED"

	// Attendance errors
	CodeInvalidQrPayload        Code = "INVALID_QR_PAYLOAD"
	CodeRegistrationNotApproved Code = "REGISTRATION_NOT_APPROVED"
	CodeEventNotStarted         Code = "EVENT_NOT_STARTED"
	CodeAttendanceAlreadyMarked Code = "ATTENDANCE_ALREADY_MARKED"

	// Storage errors
	CodeNotFound           Code = "NOT_FOUND"
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - bad input
	case CodeInvalidQrPayload:
		return codes.InvalidArgument

	// AlreadyExists - uniqueness violations
	case CodeDuplicateRegistration,
		CodeAttendanceAlreadyMarked:
		return codes.AlreadyExists

	// FailedPrecondition - state doesn't allow operation
	case CodeRegistrationClosed,
		CodeInvalidTransition,
		CodeRegistrationNotApproved,
		CodeEventNotStarted:
		return codes.FailedPrecondition

	// ResourceExhausted - capacity admission refusals
	case CodeCapacityExceeded:
		return codes.ResourceExhausted

	case CodeNotAuthorized:
		return codes.PermissionDenied

	case CodeNotFound:
		return codes.NotFound

	// Unavailable - transient infrastructure faults, retryable
	case CodeStorageUnavailable:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// GetMetadata extracts metadata from an error if present.
func GetMetadata(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Metadata
	}
	return nil
}
