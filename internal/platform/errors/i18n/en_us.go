package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeUnknown                 = "UNKNOWN"
	CodeDuplicateRegistration   = "DUPLICATE_REGISTRATION"
	CodeRegistrationClosed      = "REGISTRATION_CLOSED"
	CodeCapacityExceeded        = "CAPACITY_EXCEEDED"
	CodeInvalidTransition       = "INVALID_TRANSITION"
	CodeNotAuthorized           = "NOT_AUTHORIZED"
	CodeInvalidQrPayload        = "INVALID_QR_PAYLOAD"
	CodeRegistrationNotApproved = "REGISTRATION_NOT_APPROVED"
	CodeEventNotStarted         = "EVENT_NOT_STARTED"
	CodeAttendanceAlreadyMarked = "ATTENDANCE_ALREADY_MARKED"
	CodeNotFound                = "NOT_FOUND"
	CodeStorageUnavailable      = "STORAGE_UNAVAILABLE"
)

var enUSMessages = map[Code]string{
	CodeUnknown:                 "Something went wrong. Please try again.",
	CodeDuplicateRegistration:   "You have already signed up for this event.",
	CodeRegistrationClosed:      "Registration for this event has closed.",
	CodeCapacityExceeded:        "This event is full.",
	CodeInvalidTransition:       "This signup has already been decided.",
	CodeNotAuthorized:           "You are not allowed to do that.",
	CodeInvalidQrPayload:        "That QR code could not be read{{if .Field}} ({{.Field}} mismatch){{end}}.",
	CodeRegistrationNotApproved: "This attendee does not have an approved registration.",
	CodeEventNotStarted:         "This event has not started yet.",
	CodeAttendanceAlreadyMarked: "This attendee has already been checked in.",
	CodeNotFound:                "Not found.",
	CodeStorageUnavailable:      "The service is temporarily unavailable. Please retry.",
}
