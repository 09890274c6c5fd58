package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gatherpoint/gatherpoint/internal/services/events/domain"
	"github.com/gatherpoint/gatherpoint/internal/services/events/storage"
)

type domainStoreAdapter struct {
	store storage.Store
}

func newDomainStoreAdapter(store storage.Store) *domainStoreAdapter {
	return &domainStoreAdapter{store: store}
}

func (a *domainStoreAdapter) UpsertEvent(ctx context.Context, event domain.Event) error {
	if a == nil || a.store == nil {
		return fmt.Errorf("store is not configured")
	}
	return mapStorageError(a.store.UpsertEvent(ctx, toStorageEvent(event)))
}

func (a *domainStoreAdapter) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
	if a == nil || a.store == nil {
		return domain.Event{}, fmt.Errorf("store is not configured")
	}
	record, err := a.store.GetEvent(ctx, eventID)
	if err != nil {
		return domain.Event{}, mapStorageError(err)
	}
	return toDomainEvent(record), nil
}

func (a *domainStoreAdapter) InsertSignupWithinLimit(ctx context.Context, signup domain.Signup, limit *int, change domain.ChangeEvent) (domain.ChangeEvent, error) {
	if a == nil || a.store == nil {
		return domain.ChangeEvent{}, fmt.Errorf("store is not configured")
	}
	appended, err := a.store.InsertSignupWithinLimit(ctx, toStorageSignup(signup), limit, toStorageChange(change))
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return domain.ChangeEvent{}, domain.ErrDuplicateSignup
		}
		if errors.Is(err, storage.ErrCapacityExceeded) {
			return domain.ChangeEvent{}, domain.ErrCapacityExceeded
		}
		return domain.ChangeEvent{}, mapStorageError(err)
	}
	return toDomainChange(appended), nil
}

func (a *domainStoreAdapter) UpdateSignupStatus(ctx context.Context, kind domain.SignupKind, eventID, userID string, to domain.SignupStatus, at time.Time, change domain.ChangeEvent) (domain.Signup, domain.ChangeEvent, error) {
	if a == nil || a.store == nil {
		return domain.Signup{}, domain.ChangeEvent{}, fmt.Errorf("store is not configured")
	}
	updated, appended, err := a.store.UpdateSignupStatus(ctx, storage.SignupKind(kind), eventID, userID, storage.SignupStatus(to), at, toStorageChange(change))
	if err != nil {
		if errors.Is(err, storage.ErrInvalidState) {
			return domain.Signup{}, domain.ChangeEvent{}, domain.ErrInvalidTransition
		}
		return domain.Signup{}, domain.ChangeEvent{}, mapStorageError(err)
	}
	return toDomainSignup(updated), toDomainChange(appended), nil
}

func (a *domainStoreAdapter) GetSignup(ctx context.Context, kind domain.SignupKind, eventID, userID string) (domain.Signup, error) {
	if a == nil || a.store == nil {
		return domain.Signup{}, fmt.Errorf("store is not configured")
	}
	record, err := a.store.GetSignup(ctx, storage.SignupKind(kind), eventID, userID)
	if err != nil {
		return domain.Signup{}, mapStorageError(err)
	}
	return toDomainSignup(record), nil
}

func (a *domainStoreAdapter) ListSignupsByEvent(ctx context.Context, kind domain.SignupKind, eventID string, pageSize int, pageToken string) (domain.SignupPage, error) {
	if a == nil || a.store == nil {
		return domain.SignupPage{}, fmt.Errorf("store is not configured")
	}
	page, err := a.store.ListSignupsByEvent(ctx, storage.SignupKind(kind), eventID, pageSize, pageToken)
	if err != nil {
		return domain.SignupPage{}, mapStorageError(err)
	}
	result := domain.SignupPage{
		Signups:       make([]domain.Signup, 0, len(page.Signups)),
		NextPageToken: page.NextPageToken,
	}
	for _, record := range page.Signups {
		result.Signups = append(result.Signups, toDomainSignup(record))
	}
	return result, nil
}

func (a *domainStoreAdapter) CountSignups(ctx context.Context, kind domain.SignupKind, eventID string, statuses ...domain.SignupStatus) (int, error) {
	if a == nil || a.store == nil {
		return 0, fmt.Errorf("store is not configured")
	}
	converted := make([]storage.SignupStatus, 0, len(statuses))
	for _, status := range statuses {
		converted = append(converted, storage.SignupStatus(status))
	}
	counted, err := a.store.CountSignups(ctx, storage.SignupKind(kind), eventID, converted...)
	if err != nil {
		return 0, mapStorageError(err)
	}
	return counted, nil
}

func (a *domainStoreAdapter) InsertAttendance(ctx context.Context, attendance domain.Attendance, change domain.ChangeEvent) (domain.ChangeEvent, error) {
	if a == nil || a.store == nil {
		return domain.ChangeEvent{}, fmt.Errorf("store is not configured")
	}
	record := storage.AttendanceRecord{
		EventID:       attendance.EventID,
		UserID:        attendance.UserID,
		VerifiedAt:    attendance.VerifiedAt,
		TokenConsumed: attendance.TokenConsumed,
	}
	appended, err := a.store.InsertAttendance(ctx, record, toStorageChange(change))
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return domain.ChangeEvent{}, domain.ErrAttendanceAlreadyMarked
		}
		return domain.ChangeEvent{}, mapStorageError(err)
	}
	return toDomainChange(appended), nil
}

func (a *domainStoreAdapter) GetAttendance(ctx context.Context, eventID, userID string) (domain.Attendance, error) {
	if a == nil || a.store == nil {
		return domain.Attendance{}, fmt.Errorf("store is not configured")
	}
	record, err := a.store.GetAttendance(ctx, eventID, userID)
	if err != nil {
		return domain.Attendance{}, mapStorageError(err)
	}
	return domain.Attendance{
		EventID:       record.EventID,
		UserID:        record.UserID,
		VerifiedAt:    record.VerifiedAt,
		TokenConsumed: record.TokenConsumed,
	}, nil
}

func (a *domainStoreAdapter) ListChangesByEventAfter(ctx context.Context, eventID string, afterSeq int64, limit int) ([]domain.ChangeEvent, error) {
	if a == nil || a.store == nil {
		return nil, fmt.Errorf("store is not configured")
	}
	records, err := a.store.ListChangesByEventAfter(ctx, eventID, afterSeq, limit)
	if err != nil {
		return nil, mapStorageError(err)
	}
	return toDomainChanges(records), nil
}

func (a *domainStoreAdapter) ListChangesByCommunityAfter(ctx context.Context, communityID string, afterSeq int64, limit int) ([]domain.ChangeEvent, error) {
	if a == nil || a.store == nil {
		return nil, fmt.Errorf("store is not configured")
	}
	records, err := a.store.ListChangesByCommunityAfter(ctx, communityID, afterSeq, limit)
	if err != nil {
		return nil, mapStorageError(err)
	}
	return toDomainChanges(records), nil
}

func mapStorageError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return domain.ErrNotFound
	}
	return err
}

func toStorageEvent(event domain.Event) storage.EventRecord {
	return storage.EventRecord{
		ID:                event.ID,
		CommunityID:       event.CommunityID,
		Title:             event.Title,
		RegistrationLimit: event.RegistrationLimit,
		VolunteerLimit:    event.VolunteerLimit,
		RegistrationEnd:   event.RegistrationEnd,
		StartTime:         event.StartTime,
		EndTime:           event.EndTime,
		UpdatedAt:         event.UpdatedAt,
	}
}

func toDomainEvent(record storage.EventRecord) domain.Event {
	return domain.Event{
		ID:                record.ID,
		CommunityID:       record.CommunityID,
		Title:             record.Title,
		RegistrationLimit: record.RegistrationLimit,
		VolunteerLimit:    record.VolunteerLimit,
		RegistrationEnd:   record.RegistrationEnd,
		StartTime:         record.StartTime,
		EndTime:           record.EndTime,
		UpdatedAt:         record.UpdatedAt,
	}
}

func toStorageSignup(signup domain.Signup) storage.SignupRecord {
	return storage.SignupRecord{
		EventID:   signup.EventID,
		UserID:    signup.UserID,
		Kind:      storage.SignupKind(signup.Kind),
		Status:    storage.SignupStatus(signup.Status),
		Message:   signup.Message,
		CreatedAt: signup.CreatedAt,
		UpdatedAt: signup.UpdatedAt,
	}
}

func toDomainSignup(record storage.SignupRecord) domain.Signup {
	return domain.Signup{
		EventID:   record.EventID,
		UserID:    record.UserID,
		Kind:      domain.SignupKind(record.Kind),
		Status:    domain.SignupStatus(record.Status),
		Message:   record.Message,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

func toStorageChange(change domain.ChangeEvent) storage.ChangeRecord {
	return storage.ChangeRecord{
		Seq:          change.Seq,
		EventID:      change.EventID,
		CommunityID:  change.CommunityID,
		ResourceType: string(change.ResourceType),
		ChangeType:   string(change.ChangeType),
		UserID:       change.UserID,
		OccurredAt:   change.OccurredAt,
	}
}

func toDomainChange(record storage.ChangeRecord) domain.ChangeEvent {
	return domain.ChangeEvent{
		Seq:          record.Seq,
		EventID:      record.EventID,
		CommunityID:  record.CommunityID,
		ResourceType: domain.ResourceType(record.ResourceType),
		ChangeType:   domain.ChangeType(record.ChangeType),
		UserID:       record.UserID,
		OccurredAt:   record.OccurredAt,
	}
}

func toDomainChanges(records []storage.ChangeRecord) []domain.ChangeEvent {
	changes := make([]domain.ChangeEvent, 0, len(records))
	for _, record := range records {
		changes = append(changes, toDomainChange(record))
	}
	return changes
}
