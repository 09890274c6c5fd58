package domain

import "time"

// ResourceType names the record a change describes.
type ResourceType string

const (
	ResourceRegistration ResourceType = "registration"
	ResourceVolunteer    ResourceType = "volunteer"
	ResourceAttendance   ResourceType = "attendance"
)

// ChangeType names the transition a change describes.
type ChangeType string

const (
	ChangeCreated  ChangeType = "created"
	ChangeApproved ChangeType = "approved"
	ChangeRejected ChangeType = "rejected"
	ChangeVerified ChangeType = "verified"
)

// ChangeEvent is one durable lifecycle transition, sequenced per store.
// Subscribers replay the log after Seq to catch up.
type ChangeEvent struct {
	Seq          int64
	EventID      string
	CommunityID  string
	ResourceType ResourceType
	ChangeType   ChangeType
	UserID       string
	OccurredAt   time.Time
}

// EventScope returns the subscription scope key for one event.
func EventScope(eventID string) string {
	return "event:" + eventID
}

// CommunityScope returns the subscription scope key for one community.
func CommunityScope(communityID string) string {
	return "community:" + communityID
}

// ScopeKeys lists the scopes a change fans out to.
func (c ChangeEvent) ScopeKeys() []string {
	return []string{EventScope(c.EventID), CommunityScope(c.CommunityID)}
}
