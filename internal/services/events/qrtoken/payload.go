package qrtoken

import (
	"encoding/json"
	"strings"

	apperrors "github.com/gatherpoint/gatherpoint/internal/platform/errors"
)

// Payload is the raw QR payload presented at the door. Unknown fields are
// ignored so older codes keep scanning after the payload grows.
type Payload struct {
	EventID string `json:"eventId"`
}

// ParsePayload decodes a scanned QR payload. Anything that is not a JSON
// object naming an event is rejected.
func ParsePayload(data []byte) (Payload, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return Payload{}, apperrors.New(apperrors.CodeInvalidQrPayload, "qr payload is empty")
	}

	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Payload{}, apperrors.New(apperrors.CodeInvalidQrPayload, "qr payload is not valid json")
	}
	payload.EventID = strings.TrimSpace(payload.EventID)
	if payload.EventID == "" {
		return Payload{}, apperrors.New(apperrors.CodeInvalidQrPayload, "qr payload is missing the event id")
	}
	return payload, nil
}
