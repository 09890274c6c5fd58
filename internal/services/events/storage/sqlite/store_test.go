package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gatherpoint/gatherpoint/internal/services/events/storage"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return store
}

func pendingSignup(eventID, userID string, at time.Time) storage.SignupRecord {
	return storage.SignupRecord{
		EventID:   eventID,
		UserID:    userID,
		Kind:      storage.SignupKindRegistration,
		Status:    storage.SignupStatusPending,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func signupChange(eventID, userID string, at time.Time) storage.ChangeRecord {
	return storage.ChangeRecord{
		EventID:      eventID,
		CommunityID:  "community-1",
		ResourceType: "registration",
		ChangeType:   "created",
		UserID:       userID,
		OccurredAt:   at,
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open("  "); err == nil {
		t.Fatal("Open() error = nil, want error")
	}
}

func TestInsertRegistrationRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	limit := 5

	record := pendingSignup("event-1", "user-1", now)
	if _, err := store.InsertSignupWithinLimit(ctx, record, &limit, signupChange("event-1", "user-1", now)); err != nil {
		t.Fatalf("InsertSignupWithinLimit() error = %v", err)
	}

	loaded, err := store.GetSignup(ctx, storage.SignupKindRegistration, "event-1", "user-1")
	if err != nil {
		t.Fatalf("GetSignup() error = %v", err)
	}
	if loaded.Status != storage.SignupStatusPending {
		t.Fatalf("GetSignup() status = %q, want pending", loaded.Status)
	}
	if loaded.Message != "" {
		t.Fatalf("GetSignup() message = %q, want empty", loaded.Message)
	}
	if !loaded.CreatedAt.Equal(now) {
		t.Fatalf("GetSignup() created_at = %v, want %v", loaded.CreatedAt, now)
	}
}

func TestUpsertEventRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	limit := 25

	record := storage.EventRecord{
		ID:                "event-1",
		CommunityID:       "community-1",
		Title:             "Harvest Festival",
		RegistrationLimit: &limit,
		RegistrationEnd:   now.Add(24 * time.Hour),
		StartTime:         now.Add(48 * time.Hour),
		EndTime:           now.Add(52 * time.Hour),
		UpdatedAt:         now,
	}
	if err := store.UpsertEvent(ctx, record); err != nil {
		t.Fatalf("UpsertEvent() error = %v", err)
	}

	loaded, err := store.GetEvent(ctx, "event-1")
	if err != nil {
		t.Fatalf("GetEvent() error = %v", err)
	}
	if loaded.Title != "Harvest Festival" {
		t.Fatalf("GetEvent() title = %q, want %q", loaded.Title, "Harvest Festival")
	}
	if loaded.RegistrationLimit == nil || *loaded.RegistrationLimit != 25 {
		t.Fatalf("GetEvent() registration limit = %v, want 25", loaded.RegistrationLimit)
	}
	if loaded.VolunteerLimit != nil {
		t.Fatalf("GetEvent() volunteer limit = %v, want nil", loaded.VolunteerLimit)
	}
	if !loaded.StartTime.Equal(record.StartTime) {
		t.Fatalf("GetEvent() start time = %v, want %v", loaded.StartTime, record.StartTime)
	}

	record.Title = "Harvest Festival (Moved)"
	record.RegistrationLimit = nil
	if err := store.UpsertEvent(ctx, record); err != nil {
		t.Fatalf("UpsertEvent() second write error = %v", err)
	}
	loaded, err = store.GetEvent(ctx, "event-1")
	if err != nil {
		t.Fatalf("GetEvent() after update error = %v", err)
	}
	if loaded.Title != "Harvest Festival (Moved)" {
		t.Fatalf("GetEvent() updated title = %q", loaded.Title)
	}
	if loaded.RegistrationLimit != nil {
		t.Fatalf("GetEvent() registration limit = %v, want nil after update", loaded.RegistrationLimit)
	}
}

func TestGetEventNotFound(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if _, err := store.GetEvent(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetEvent() error = %v, want ErrNotFound", err)
	}
}

func TestInsertSignupWithinLimit(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	limit := 2

	for _, userID := range []string{"user-1", "user-2"} {
		change, err := store.InsertSignupWithinLimit(ctx, pendingSignup("event-1", userID, now), &limit, signupChange("event-1", userID, now))
		if err != nil {
			t.Fatalf("InsertSignupWithinLimit(%s) error = %v", userID, err)
		}
		if change.Seq <= 0 {
			t.Fatalf("InsertSignupWithinLimit(%s) seq = %d, want positive", userID, change.Seq)
		}
	}

	if _, err := store.InsertSignupWithinLimit(ctx, pendingSignup("event-1", "user-3", now), &limit, signupChange("event-1", "user-3", now)); !errors.Is(err, storage.ErrCapacityExceeded) {
		t.Fatalf("InsertSignupWithinLimit() over limit error = %v, want ErrCapacityExceeded", err)
	}

	if _, err := store.InsertSignupWithinLimit(ctx, pendingSignup("event-1", "user-1", now), &limit, signupChange("event-1", "user-1", now)); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("InsertSignupWithinLimit() duplicate error = %v, want ErrConflict", err)
	}
}

func TestInsertSignupDuplicateBeforeCapacity(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	limit := 1

	if _, err := store.InsertSignupWithinLimit(ctx, pendingSignup("event-1", "user-1", now), &limit, signupChange("event-1", "user-1", now)); err != nil {
		t.Fatalf("InsertSignupWithinLimit() error = %v", err)
	}

	// A full event still reports the duplicate, not the capacity failure.
	if _, err := store.InsertSignupWithinLimit(ctx, pendingSignup("event-1", "user-1", now), &limit, signupChange("event-1", "user-1", now)); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("InsertSignupWithinLimit() error = %v, want ErrConflict", err)
	}
}

func TestInsertSignupUnlimited(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	for index := range 40 {
		userID := fmt.Sprintf("user-%03d", index)
		if _, err := store.InsertSignupWithinLimit(ctx, pendingSignup("event-1", userID, now), nil, signupChange("event-1", userID, now)); err != nil {
			t.Fatalf("InsertSignupWithinLimit(%s) error = %v", userID, err)
		}
	}

	counted, err := store.CountSignups(ctx, storage.SignupKindRegistration, "event-1", storage.SignupStatusPending)
	if err != nil {
		t.Fatalf("CountSignups() error = %v", err)
	}
	if counted != 40 {
		t.Fatalf("CountSignups() = %d, want 40", counted)
	}
}

func TestInsertSignupConcurrentCapacity(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	limit := 10
	attempts := 100

	var admitted, rejected, failed atomic.Int64
	var group sync.WaitGroup
	for index := range attempts {
		group.Add(1)
		go func() {
			defer group.Done()
			userID := fmt.Sprintf("user-%03d", index)
			_, err := store.InsertSignupWithinLimit(ctx, pendingSignup("event-1", userID, now), &limit, signupChange("event-1", userID, now))
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, storage.ErrCapacityExceeded):
				rejected.Add(1)
			default:
				failed.Add(1)
				t.Errorf("InsertSignupWithinLimit(%s) error = %v", userID, err)
			}
		}()
	}
	group.Wait()

	if failed.Load() != 0 {
		t.Fatalf("unexpected failures = %d", failed.Load())
	}
	if admitted.Load() != int64(limit) {
		t.Fatalf("admitted = %d, want %d", admitted.Load(), limit)
	}
	if rejected.Load() != int64(attempts-limit) {
		t.Fatalf("rejected = %d, want %d", rejected.Load(), attempts-limit)
	}

	counted, err := store.CountSignups(ctx, storage.SignupKindRegistration, "event-1", storage.SignupStatusPending, storage.SignupStatusApproved)
	if err != nil {
		t.Fatalf("CountSignups() error = %v", err)
	}
	if counted != limit {
		t.Fatalf("CountSignups() = %d, want %d", counted, limit)
	}
}

func TestSignupPoolsAreIndependent(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	limit := 1

	registration := pendingSignup("event-1", "user-1", now)
	if _, err := store.InsertSignupWithinLimit(ctx, registration, &limit, signupChange("event-1", "user-1", now)); err != nil {
		t.Fatalf("InsertSignupWithinLimit(registration) error = %v", err)
	}

	volunteer := pendingSignup("event-1", "user-1", now)
	volunteer.Kind = storage.SignupKindVolunteer
	volunteer.Message = "I can run the door."
	if _, err := store.InsertSignupWithinLimit(ctx, volunteer, &limit, signupChange("event-1", "user-1", now)); err != nil {
		t.Fatalf("InsertSignupWithinLimit(volunteer) error = %v", err)
	}

	loaded, err := store.GetSignup(ctx, storage.SignupKindVolunteer, "event-1", "user-1")
	if err != nil {
		t.Fatalf("GetSignup(volunteer) error = %v", err)
	}
	if loaded.Message != "I can run the door." {
		t.Fatalf("GetSignup(volunteer) message = %q", loaded.Message)
	}
}

func TestUpdateSignupStatus(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	if _, err := store.InsertSignupWithinLimit(ctx, pendingSignup("event-1", "user-1", now), nil, signupChange("event-1", "user-1", now)); err != nil {
		t.Fatalf("InsertSignupWithinLimit() error = %v", err)
	}

	decidedAt := now.Add(time.Minute)
	change := signupChange("event-1", "user-1", decidedAt)
	change.ChangeType = "approved"
	updated, appended, err := store.UpdateSignupStatus(ctx, storage.SignupKindRegistration, "event-1", "user-1", storage.SignupStatusApproved, decidedAt, change)
	if err != nil {
		t.Fatalf("UpdateSignupStatus() error = %v", err)
	}
	if updated.Status != storage.SignupStatusApproved {
		t.Fatalf("UpdateSignupStatus() status = %q, want approved", updated.Status)
	}
	if !updated.UpdatedAt.Equal(decidedAt) {
		t.Fatalf("UpdateSignupStatus() updated_at = %v, want %v", updated.UpdatedAt, decidedAt)
	}
	if appended.Seq <= 0 {
		t.Fatalf("UpdateSignupStatus() change seq = %d, want positive", appended.Seq)
	}

	loaded, err := store.GetSignup(ctx, storage.SignupKindRegistration, "event-1", "user-1")
	if err != nil {
		t.Fatalf("GetSignup() error = %v", err)
	}
	if loaded.Status != storage.SignupStatusApproved {
		t.Fatalf("GetSignup() status = %q, want approved", loaded.Status)
	}

	if _, _, err := store.UpdateSignupStatus(ctx, storage.SignupKindRegistration, "event-1", "user-1", storage.SignupStatusRejected, decidedAt, change); !errors.Is(err, storage.ErrInvalidState) {
		t.Fatalf("UpdateSignupStatus() on decided signup error = %v, want ErrInvalidState", err)
	}
	if _, _, err := store.UpdateSignupStatus(ctx, storage.SignupKindRegistration, "event-1", "missing", storage.SignupStatusApproved, decidedAt, change); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("UpdateSignupStatus() missing signup error = %v, want ErrNotFound", err)
	}
}

func TestListSignupsByEventPagination(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for index := range 5 {
		userID := fmt.Sprintf("user-%d", index)
		at := base.Add(time.Duration(index) * time.Second)
		if _, err := store.InsertSignupWithinLimit(ctx, pendingSignup("event-1", userID, at), nil, signupChange("event-1", userID, at)); err != nil {
			t.Fatalf("InsertSignupWithinLimit(%s) error = %v", userID, err)
		}
	}

	first, err := store.ListSignupsByEvent(ctx, storage.SignupKindRegistration, "event-1", 2, "")
	if err != nil {
		t.Fatalf("ListSignupsByEvent() error = %v", err)
	}
	if len(first.Signups) != 2 {
		t.Fatalf("ListSignupsByEvent() first page size = %d, want 2", len(first.Signups))
	}
	if first.Signups[0].UserID != "user-4" || first.Signups[1].UserID != "user-3" {
		t.Fatalf("ListSignupsByEvent() first page = %q, %q", first.Signups[0].UserID, first.Signups[1].UserID)
	}
	if first.NextPageToken == "" {
		t.Fatal("ListSignupsByEvent() first page token is empty")
	}

	second, err := store.ListSignupsByEvent(ctx, storage.SignupKindRegistration, "event-1", 2, first.NextPageToken)
	if err != nil {
		t.Fatalf("ListSignupsByEvent() second page error = %v", err)
	}
	if len(second.Signups) != 2 {
		t.Fatalf("ListSignupsByEvent() second page size = %d, want 2", len(second.Signups))
	}
	if second.Signups[0].UserID != "user-2" || second.Signups[1].UserID != "user-1" {
		t.Fatalf("ListSignupsByEvent() second page = %q, %q", second.Signups[0].UserID, second.Signups[1].UserID)
	}

	last, err := store.ListSignupsByEvent(ctx, storage.SignupKindRegistration, "event-1", 2, second.NextPageToken)
	if err != nil {
		t.Fatalf("ListSignupsByEvent() last page error = %v", err)
	}
	if len(last.Signups) != 1 || last.Signups[0].UserID != "user-0" {
		t.Fatalf("ListSignupsByEvent() last page = %+v", last.Signups)
	}
	if last.NextPageToken != "" {
		t.Fatalf("ListSignupsByEvent() last page token = %q, want empty", last.NextPageToken)
	}
}

func TestInsertAttendanceIdempotenceGuard(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	record := storage.AttendanceRecord{
		EventID:       "event-1",
		UserID:        "user-1",
		VerifiedAt:    now,
		TokenConsumed: true,
	}
	change := signupChange("event-1", "user-1", now)
	change.ResourceType = "attendance"
	change.ChangeType = "verified"

	if _, err := store.InsertAttendance(ctx, record, change); err != nil {
		t.Fatalf("InsertAttendance() error = %v", err)
	}
	if _, err := store.InsertAttendance(ctx, record, change); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("InsertAttendance() duplicate error = %v, want ErrConflict", err)
	}

	loaded, err := store.GetAttendance(ctx, "event-1", "user-1")
	if err != nil {
		t.Fatalf("GetAttendance() error = %v", err)
	}
	if !loaded.VerifiedAt.Equal(now) {
		t.Fatalf("GetAttendance() verified_at = %v, want %v", loaded.VerifiedAt, now)
	}
	if !loaded.TokenConsumed {
		t.Fatal("GetAttendance() token_consumed = false, want true")
	}

	if _, err := store.GetAttendance(ctx, "event-1", "user-2"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetAttendance() missing error = %v, want ErrNotFound", err)
	}
}

func TestListChangesAfter(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	var seqs []int64
	for index := range 3 {
		userID := fmt.Sprintf("user-%d", index)
		change, err := store.InsertSignupWithinLimit(ctx, pendingSignup("event-1", userID, now), nil, signupChange("event-1", userID, now))
		if err != nil {
			t.Fatalf("InsertSignupWithinLimit(%s) error = %v", userID, err)
		}
		seqs = append(seqs, change.Seq)
	}
	otherChange := signupChange("event-2", "user-9", now)
	if _, err := store.InsertSignupWithinLimit(ctx, pendingSignup("event-2", "user-9", now), nil, otherChange); err != nil {
		t.Fatalf("InsertSignupWithinLimit(other event) error = %v", err)
	}

	byEvent, err := store.ListChangesByEventAfter(ctx, "event-1", seqs[0], 10)
	if err != nil {
		t.Fatalf("ListChangesByEventAfter() error = %v", err)
	}
	if len(byEvent) != 2 {
		t.Fatalf("ListChangesByEventAfter() len = %d, want 2", len(byEvent))
	}
	if byEvent[0].Seq != seqs[1] || byEvent[1].Seq != seqs[2] {
		t.Fatalf("ListChangesByEventAfter() seqs = %d, %d, want %d, %d", byEvent[0].Seq, byEvent[1].Seq, seqs[1], seqs[2])
	}
	if byEvent[0].UserID != "user-1" {
		t.Fatalf("ListChangesByEventAfter() user = %q, want user-1", byEvent[0].UserID)
	}

	byCommunity, err := store.ListChangesByCommunityAfter(ctx, "community-1", 0, 10)
	if err != nil {
		t.Fatalf("ListChangesByCommunityAfter() error = %v", err)
	}
	if len(byCommunity) != 4 {
		t.Fatalf("ListChangesByCommunityAfter() len = %d, want 4", len(byCommunity))
	}
	for index := 1; index < len(byCommunity); index++ {
		if byCommunity[index].Seq <= byCommunity[index-1].Seq {
			t.Fatalf("ListChangesByCommunityAfter() seq order violated at %d", index)
		}
	}
}
