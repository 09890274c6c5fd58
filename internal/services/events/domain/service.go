package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store is the persistence port for the registration engine. Implementations
// must make InsertSignupWithinLimit atomic with respect to the capacity
// check, and must append the change record in the same transaction as the
// mutation it describes.
type Store interface {
	UpsertEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, eventID string) (Event, error)
	InsertSignupWithinLimit(ctx context.Context, signup Signup, limit *int, change ChangeEvent) (ChangeEvent, error)
	UpdateSignupStatus(ctx context.Context, kind SignupKind, eventID, userID string, to SignupStatus, at time.Time, change ChangeEvent) (Signup, ChangeEvent, error)
	GetSignup(ctx context.Context, kind SignupKind, eventID, userID string) (Signup, error)
	ListSignupsByEvent(ctx context.Context, kind SignupKind, eventID string, pageSize int, pageToken string) (SignupPage, error)
	CountSignups(ctx context.Context, kind SignupKind, eventID string, statuses ...SignupStatus) (int, error)
	InsertAttendance(ctx context.Context, attendance Attendance, change ChangeEvent) (ChangeEvent, error)
	GetAttendance(ctx context.Context, eventID, userID string) (Attendance, error)
	ListChangesByEventAfter(ctx context.Context, eventID string, afterSeq int64, limit int) ([]ChangeEvent, error)
	ListChangesByCommunityAfter(ctx context.Context, communityID string, afterSeq int64, limit int) ([]ChangeEvent, error)
}

// Publisher fans a committed change out to live subscribers. Publish is
// called only after the change is durable.
type Publisher interface {
	Publish(change ChangeEvent)
}

// Service applies the registration lifecycle rules on top of a Store.
type Service struct {
	store     Store
	publisher Publisher
	clock     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the service clock.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService creates a registration lifecycle service. The publisher may be
// nil, in which case committed changes are durable but not fanned out.
func NewService(store Store, publisher Publisher, opts ...Option) *Service {
	service := &Service{
		store:     store,
		publisher: publisher,
		clock:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) publish(change ChangeEvent) {
	if s.publisher != nil {
		s.publisher.Publish(change)
	}
}

// UpsertEvent writes the event read model the lifecycle rules consult.
func (s *Service) UpsertEvent(ctx context.Context, event Event) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("service is not configured")
	}
	event.ID = strings.TrimSpace(event.ID)
	event.CommunityID = strings.TrimSpace(event.CommunityID)
	event.Title = strings.TrimSpace(event.Title)
	if event.ID == "" {
		return fmt.Errorf("event id is required")
	}
	if event.CommunityID == "" {
		return fmt.Errorf("community id is required")
	}
	if event.RegistrationEnd.IsZero() || event.StartTime.IsZero() || event.EndTime.IsZero() {
		return fmt.Errorf("event times are required")
	}
	if event.EndTime.Before(event.StartTime) {
		return fmt.Errorf("event end must not precede start")
	}
	event.UpdatedAt = s.now()
	return s.store.UpsertEvent(ctx, event)
}

// GetEvent loads one event.
func (s *Service) GetEvent(ctx context.Context, eventID string) (Event, error) {
	if s == nil || s.store == nil {
		return Event{}, fmt.Errorf("service is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return Event{}, fmt.Errorf("event id is required")
	}
	return s.store.GetEvent(ctx, eventID)
}

// SubmitRegistration admits the actor into the event registration pool as a
// pending signup.
func (s *Service) SubmitRegistration(ctx context.Context, actor Actor, eventID string) (Signup, error) {
	return s.submitSignup(ctx, actor, eventID, SignupKindRegistration, "")
}

// SubmitVolunteer admits the actor into the event volunteer pool as a
// pending application, with an optional message for the organizers.
func (s *Service) SubmitVolunteer(ctx context.Context, actor Actor, eventID, message string) (Signup, error) {
	return s.submitSignup(ctx, actor, eventID, SignupKindVolunteer, message)
}

func (s *Service) submitSignup(ctx context.Context, actor Actor, eventID string, kind SignupKind, message string) (Signup, error) {
	if s == nil || s.store == nil {
		return Signup{}, fmt.Errorf("service is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	userID := strings.TrimSpace(actor.UserID)
	if eventID == "" {
		return Signup{}, fmt.Errorf("event id is required")
	}
	if userID == "" {
		return Signup{}, fmt.Errorf("user id is required")
	}

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return Signup{}, err
	}
	now := s.now()
	if !event.RegistrationOpen(now) {
		return Signup{}, ErrRegistrationClosed
	}

	signup := Signup{
		EventID:   eventID,
		UserID:    userID,
		Kind:      kind,
		Status:    SignupStatusPending,
		Message:   strings.TrimSpace(message),
		CreatedAt: now,
		UpdatedAt: now,
	}
	change := ChangeEvent{
		EventID:      eventID,
		CommunityID:  event.CommunityID,
		ResourceType: resourceFor(kind),
		ChangeType:   ChangeCreated,
		UserID:       userID,
		OccurredAt:   now,
	}
	appended, err := s.store.InsertSignupWithinLimit(ctx, signup, event.LimitFor(kind), change)
	if err != nil {
		return Signup{}, err
	}
	s.publish(appended)
	return signup, nil
}

// ApproveRegistration moves a pending registration to approved.
func (s *Service) ApproveRegistration(ctx context.Context, actor Actor, eventID, userID string) (Signup, error) {
	return s.decideSignup(ctx, actor, SignupKindRegistration, eventID, userID, SignupStatusApproved)
}

// RejectRegistration moves a pending registration to rejected, releasing its
// capacity slot.
func (s *Service) RejectRegistration(ctx context.Context, actor Actor, eventID, userID string) (Signup, error) {
	return s.decideSignup(ctx, actor, SignupKindRegistration, eventID, userID, SignupStatusRejected)
}

// ApproveVolunteer moves a pending volunteer application to approved.
func (s *Service) ApproveVolunteer(ctx context.Context, actor Actor, eventID, userID string) (Signup, error) {
	return s.decideSignup(ctx, actor, SignupKindVolunteer, eventID, userID, SignupStatusApproved)
}

// RejectVolunteer moves a pending volunteer application to rejected,
// releasing its capacity slot.
func (s *Service) RejectVolunteer(ctx context.Context, actor Actor, eventID, userID string) (Signup, error) {
	return s.decideSignup(ctx, actor, SignupKindVolunteer, eventID, userID, SignupStatusRejected)
}

func (s *Service) decideSignup(ctx context.Context, actor Actor, kind SignupKind, eventID, userID string, to SignupStatus) (Signup, error) {
	if s == nil || s.store == nil {
		return Signup{}, fmt.Errorf("service is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	userID = strings.TrimSpace(userID)
	if eventID == "" {
		return Signup{}, fmt.Errorf("event id is required")
	}
	if userID == "" {
		return Signup{}, fmt.Errorf("user id is required")
	}
	if !actor.CanModerate() {
		return Signup{}, ErrNotAuthorized
	}

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return Signup{}, err
	}
	now := s.now()
	changeType := ChangeApproved
	if to == SignupStatusRejected {
		changeType = ChangeRejected
	}
	change := ChangeEvent{
		EventID:      eventID,
		CommunityID:  event.CommunityID,
		ResourceType: resourceFor(kind),
		ChangeType:   changeType,
		UserID:       userID,
		OccurredAt:   now,
	}
	updated, appended, err := s.store.UpdateSignupStatus(ctx, kind, eventID, userID, to, now, change)
	if err != nil {
		return Signup{}, err
	}
	s.publish(appended)
	return updated, nil
}

// GetRegistration loads one user's registration for an event.
func (s *Service) GetRegistration(ctx context.Context, eventID, userID string) (Signup, error) {
	return s.getSignup(ctx, SignupKindRegistration, eventID, userID)
}

// GetVolunteer loads one user's volunteer application for an event.
func (s *Service) GetVolunteer(ctx context.Context, eventID, userID string) (Signup, error) {
	return s.getSignup(ctx, SignupKindVolunteer, eventID, userID)
}

func (s *Service) getSignup(ctx context.Context, kind SignupKind, eventID, userID string) (Signup, error) {
	if s == nil || s.store == nil {
		return Signup{}, fmt.Errorf("service is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	userID = strings.TrimSpace(userID)
	if eventID == "" {
		return Signup{}, fmt.Errorf("event id is required")
	}
	if userID == "" {
		return Signup{}, fmt.Errorf("user id is required")
	}
	return s.store.GetSignup(ctx, kind, eventID, userID)
}

// ListSignups lists one event's signups of the given kind, newest first.
// Moderators only.
func (s *Service) ListSignups(ctx context.Context, actor Actor, kind SignupKind, eventID string, pageSize int, pageToken string) (SignupPage, error) {
	if s == nil || s.store == nil {
		return SignupPage{}, fmt.Errorf("service is not configured")
	}
	if !actor.CanModerate() {
		return SignupPage{}, ErrNotAuthorized
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return SignupPage{}, fmt.Errorf("event id is required")
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return s.store.ListSignupsByEvent(ctx, kind, eventID, pageSize, pageToken)
}

// CountActive returns how many signups currently occupy slots in the pool,
// that is pending plus approved.
func (s *Service) CountActive(ctx context.Context, kind SignupKind, eventID string) (int, error) {
	if s == nil || s.store == nil {
		return 0, fmt.Errorf("service is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return 0, fmt.Errorf("event id is required")
	}
	return s.store.CountSignups(ctx, kind, eventID, SignupStatusPending, SignupStatusApproved)
}

// CountApproved returns how many signups in the pool are approved.
func (s *Service) CountApproved(ctx context.Context, kind SignupKind, eventID string) (int, error) {
	if s == nil || s.store == nil {
		return 0, fmt.Errorf("service is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return 0, fmt.Errorf("event id is required")
	}
	return s.store.CountSignups(ctx, kind, eventID, SignupStatusApproved)
}

// MarkAttendance verifies a scanned attendee against the event and records
// the presence fact at most once. The attendee must hold an approved
// registration and the event must have started. Attendees mark themselves
// after scanning the event code; moderators can mark anyone.
func (s *Service) MarkAttendance(ctx context.Context, actor Actor, eventID, userID string) (Attendance, error) {
	if s == nil || s.store == nil {
		return Attendance{}, fmt.Errorf("service is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	userID = strings.TrimSpace(userID)
	if eventID == "" {
		return Attendance{}, fmt.Errorf("event id is required")
	}
	if userID == "" {
		return Attendance{}, fmt.Errorf("user id is required")
	}
	if !actor.CanModerate() && actor.UserID != userID {
		return Attendance{}, ErrNotAuthorized
	}

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return Attendance{}, err
	}
	registration, err := s.store.GetSignup(ctx, SignupKindRegistration, eventID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Attendance{}, ErrRegistrationNotApproved
		}
		return Attendance{}, err
	}
	if registration.Status != SignupStatusApproved {
		return Attendance{}, ErrRegistrationNotApproved
	}

	now := s.now()
	if !event.Started(now) {
		return Attendance{}, ErrEventNotStarted
	}

	attendance := Attendance{
		EventID:       eventID,
		UserID:        userID,
		VerifiedAt:    now,
		TokenConsumed: true,
	}
	change := ChangeEvent{
		EventID:      eventID,
		CommunityID:  event.CommunityID,
		ResourceType: ResourceAttendance,
		ChangeType:   ChangeVerified,
		UserID:       userID,
		OccurredAt:   now,
	}
	appended, err := s.store.InsertAttendance(ctx, attendance, change)
	if err != nil {
		return Attendance{}, err
	}
	s.publish(appended)
	return attendance, nil
}

// GetAttendance loads one attendance fact.
func (s *Service) GetAttendance(ctx context.Context, eventID, userID string) (Attendance, error) {
	if s == nil || s.store == nil {
		return Attendance{}, fmt.Errorf("service is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	userID = strings.TrimSpace(userID)
	if eventID == "" {
		return Attendance{}, fmt.Errorf("event id is required")
	}
	if userID == "" {
		return Attendance{}, fmt.Errorf("user id is required")
	}
	return s.store.GetAttendance(ctx, eventID, userID)
}

// ListEventChangesAfter replays the durable change log for one event,
// strictly after the given sequence number.
func (s *Service) ListEventChangesAfter(ctx context.Context, eventID string, afterSeq int64, limit int) ([]ChangeEvent, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("service is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, fmt.Errorf("event id is required")
	}
	if limit <= 0 {
		limit = 100
	}
	return s.store.ListChangesByEventAfter(ctx, eventID, afterSeq, limit)
}

// ListCommunityChangesAfter replays the durable change log for one
// community, strictly after the given sequence number.
func (s *Service) ListCommunityChangesAfter(ctx context.Context, communityID string, afterSeq int64, limit int) ([]ChangeEvent, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("service is not configured")
	}
	communityID = strings.TrimSpace(communityID)
	if communityID == "" {
		return nil, fmt.Errorf("community id is required")
	}
	if limit <= 0 {
		limit = 100
	}
	return s.store.ListChangesByCommunityAfter(ctx, communityID, afterSeq, limit)
}

func resourceFor(kind SignupKind) ResourceType {
	if kind == SignupKindVolunteer {
		return ResourceVolunteer
	}
	return ResourceRegistration
}
