package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/gatherpoint/gatherpoint/internal/platform/storage/sqlitemigrate"
	"github.com/gatherpoint/gatherpoint/internal/services/events/storage"
	"github.com/gatherpoint/gatherpoint/internal/services/events/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for the registration engine.
//
// Write transactions start immediate, so a capacity read and its dependent
// insert commit as one unit: concurrent submissions for the last slot
// serialize on the database write lock and the losing writer observes the
// winner's committed row.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens an events SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows one writer at a time; a single pooled connection keeps
	// concurrent admissions queued instead of failing busy.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) runMigrations() error {
	return sqlitemigrate.ApplyMigrations(s.sqlDB, migrations.FS, "")
}

// UpsertEvent writes one event read-model row.
func (s *Store) UpsertEvent(ctx context.Context, record storage.EventRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeEventRecord(record)
	if err != nil {
		return err
	}

	var registrationLimit, volunteerLimit sql.NullInt64
	if normalized.RegistrationLimit != nil {
		registrationLimit = sql.NullInt64{Int64: int64(*normalized.RegistrationLimit), Valid: true}
	}
	if normalized.VolunteerLimit != nil {
		volunteerLimit = sql.NullInt64{Int64: int64(*normalized.VolunteerLimit), Valid: true}
	}

	_, err = s.sqlDB.ExecContext(ctx, `
	INSERT INTO events (
		id, community_id, title, registration_limit, volunteer_limit, registration_end, start_time, end_time, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		community_id = excluded.community_id,
		title = excluded.title,
		registration_limit = excluded.registration_limit,
		volunteer_limit = excluded.volunteer_limit,
		registration_end = excluded.registration_end,
		start_time = excluded.start_time,
		end_time = excluded.end_time,
		updated_at = excluded.updated_at
	`,
		normalized.ID,
		normalized.CommunityID,
		normalized.Title,
		registrationLimit,
		volunteerLimit,
		toMillis(normalized.RegistrationEnd),
		toMillis(normalized.StartTime),
		toMillis(normalized.EndTime),
		toMillis(normalized.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert event: %w", err)
	}
	return nil
}

// GetEvent loads one event read-model row.
func (s *Store) GetEvent(ctx context.Context, eventID string) (storage.EventRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.EventRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.EventRecord{}, fmt.Errorf("storage is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return storage.EventRecord{}, fmt.Errorf("event id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, community_id, title, registration_limit, volunteer_limit, registration_end, start_time, end_time, updated_at
FROM events
WHERE id = ?
`, eventID)
	record, err := scanEvent(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.EventRecord{}, storage.ErrNotFound
		}
		return storage.EventRecord{}, fmt.Errorf("get event: %w", err)
	}
	return record, nil
}

// InsertSignupWithinLimit atomically admits one signup against the event limit.
func (s *Store) InsertSignupWithinLimit(ctx context.Context, record storage.SignupRecord, limit *int, change storage.ChangeRecord) (storage.ChangeRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ChangeRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ChangeRecord{}, fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeSignupRecord(record)
	if err != nil {
		return storage.ChangeRecord{}, err
	}
	normalizedChange, err := normalizeChangeRecord(change)
	if err != nil {
		return storage.ChangeRecord{}, err
	}
	table, err := signupTable(normalized.Kind)
	if err != nil {
		return storage.ChangeRecord{}, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.ChangeRecord{}, fmt.Errorf("begin signup write: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback signup write: %v", cause, rollbackErr)
		}
		return cause
	}

	var exists int
	err = tx.QueryRowContext(ctx,
		"SELECT 1 FROM "+table+" WHERE event_id = ? AND user_id = ?",
		normalized.EventID, normalized.UserID,
	).Scan(&exists)
	if err == nil {
		return storage.ChangeRecord{}, rollbackWith(storage.ErrConflict)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return storage.ChangeRecord{}, rollbackWith(fmt.Errorf("check existing signup: %w", err))
	}

	if limit != nil {
		var counted int
		err = tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM "+table+" WHERE event_id = ? AND status IN (?, ?)",
			normalized.EventID, storage.SignupStatusPending, storage.SignupStatusApproved,
		).Scan(&counted)
		if err != nil {
			return storage.ChangeRecord{}, rollbackWith(fmt.Errorf("count counted signups: %w", err))
		}
		if counted >= *limit {
			return storage.ChangeRecord{}, rollbackWith(storage.ErrCapacityExceeded)
		}
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO "+table+" (event_id, user_id, status, message, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		normalized.EventID,
		normalized.UserID,
		normalized.Status,
		normalized.Message,
		toMillis(normalized.CreatedAt),
		toMillis(normalized.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ChangeRecord{}, rollbackWith(storage.ErrConflict)
		}
		return storage.ChangeRecord{}, rollbackWith(fmt.Errorf("insert signup: %w", err))
	}

	appended, err := appendChangeExec(ctx, tx, normalizedChange)
	if err != nil {
		return storage.ChangeRecord{}, rollbackWith(err)
	}

	if err := tx.Commit(); err != nil {
		return storage.ChangeRecord{}, fmt.Errorf("commit signup write: %w", err)
	}
	return appended, nil
}

// UpdateSignupStatus transitions one pending signup to a terminal status.
func (s *Store) UpdateSignupStatus(ctx context.Context, kind storage.SignupKind, eventID, userID string, to storage.SignupStatus, at time.Time, change storage.ChangeRecord) (storage.SignupRecord, storage.ChangeRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.SignupRecord{}, storage.ChangeRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.SignupRecord{}, storage.ChangeRecord{}, fmt.Errorf("storage is not configured")
	}
	table, err := signupTable(kind)
	if err != nil {
		return storage.SignupRecord{}, storage.ChangeRecord{}, err
	}
	eventID = strings.TrimSpace(eventID)
	userID = strings.TrimSpace(userID)
	if eventID == "" {
		return storage.SignupRecord{}, storage.ChangeRecord{}, fmt.Errorf("event id is required")
	}
	if userID == "" {
		return storage.SignupRecord{}, storage.ChangeRecord{}, fmt.Errorf("user id is required")
	}
	if to != storage.SignupStatusApproved && to != storage.SignupStatusRejected {
		return storage.SignupRecord{}, storage.ChangeRecord{}, fmt.Errorf("target status %q is not terminal", to)
	}
	if at.IsZero() {
		return storage.SignupRecord{}, storage.ChangeRecord{}, fmt.Errorf("transition time is required")
	}
	normalizedChange, err := normalizeChangeRecord(change)
	if err != nil {
		return storage.SignupRecord{}, storage.ChangeRecord{}, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.SignupRecord{}, storage.ChangeRecord{}, fmt.Errorf("begin status write: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback status write: %v", cause, rollbackErr)
		}
		return cause
	}

	row := tx.QueryRowContext(ctx,
		"SELECT event_id, user_id, status, message, created_at, updated_at FROM "+table+" WHERE event_id = ? AND user_id = ?",
		eventID, userID,
	)
	current, err := scanSignup(row.Scan, kind)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.SignupRecord{}, storage.ChangeRecord{}, rollbackWith(storage.ErrNotFound)
		}
		return storage.SignupRecord{}, storage.ChangeRecord{}, rollbackWith(fmt.Errorf("load signup: %w", err))
	}
	if current.Status != storage.SignupStatusPending {
		return storage.SignupRecord{}, storage.ChangeRecord{}, rollbackWith(storage.ErrInvalidState)
	}

	result, err := tx.ExecContext(ctx,
		"UPDATE "+table+" SET status = ?, updated_at = ? WHERE event_id = ? AND user_id = ? AND status = ?",
		to, toMillis(at), eventID, userID, storage.SignupStatusPending,
	)
	if err != nil {
		return storage.SignupRecord{}, storage.ChangeRecord{}, rollbackWith(fmt.Errorf("update signup status: %w", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.SignupRecord{}, storage.ChangeRecord{}, rollbackWith(fmt.Errorf("update signup status rows affected: %w", err))
	}
	if affected == 0 {
		return storage.SignupRecord{}, storage.ChangeRecord{}, rollbackWith(storage.ErrInvalidState)
	}

	appended, err := appendChangeExec(ctx, tx, normalizedChange)
	if err != nil {
		return storage.SignupRecord{}, storage.ChangeRecord{}, rollbackWith(err)
	}

	if err := tx.Commit(); err != nil {
		return storage.SignupRecord{}, storage.ChangeRecord{}, fmt.Errorf("commit status write: %w", err)
	}

	current.Status = to
	current.UpdatedAt = at.UTC()
	return current, appended, nil
}

// GetSignup loads one signup row.
func (s *Store) GetSignup(ctx context.Context, kind storage.SignupKind, eventID, userID string) (storage.SignupRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.SignupRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.SignupRecord{}, fmt.Errorf("storage is not configured")
	}
	table, err := signupTable(kind)
	if err != nil {
		return storage.SignupRecord{}, err
	}
	eventID = strings.TrimSpace(eventID)
	userID = strings.TrimSpace(userID)
	if eventID == "" {
		return storage.SignupRecord{}, fmt.Errorf("event id is required")
	}
	if userID == "" {
		return storage.SignupRecord{}, fmt.Errorf("user id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT event_id, user_id, status, message, created_at, updated_at FROM "+table+" WHERE event_id = ? AND user_id = ?",
		eventID, userID,
	)
	record, err := scanSignup(row.Scan, kind)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.SignupRecord{}, storage.ErrNotFound
		}
		return storage.SignupRecord{}, fmt.Errorf("get signup: %w", err)
	}
	return record, nil
}

// ListSignupsByEvent lists one event's signups newest-first with cursor pagination.
func (s *Store) ListSignupsByEvent(ctx context.Context, kind storage.SignupKind, eventID string, pageSize int, pageToken string) (storage.SignupPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.SignupPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.SignupPage{}, fmt.Errorf("storage is not configured")
	}
	table, err := signupTable(kind)
	if err != nil {
		return storage.SignupPage{}, err
	}
	eventID = strings.TrimSpace(eventID)
	pageToken = strings.TrimSpace(pageToken)
	if eventID == "" {
		return storage.SignupPage{}, fmt.Errorf("event id is required")
	}
	if pageSize <= 0 {
		return storage.SignupPage{}, fmt.Errorf("page size must be greater than zero")
	}

	limit := pageSize + 1
	if pageToken == "" {
		rows, err := s.sqlDB.QueryContext(ctx,
			"SELECT event_id, user_id, status, message, created_at, updated_at FROM "+table+
				" WHERE event_id = ? ORDER BY created_at DESC, user_id DESC LIMIT ?",
			eventID, limit,
		)
		if err != nil {
			return storage.SignupPage{}, fmt.Errorf("list signups: %w", err)
		}
		defer rows.Close()
		return collectSignupPage(rows, kind, pageSize)
	}

	var tokenCreatedAt int64
	err = s.sqlDB.QueryRowContext(ctx,
		"SELECT created_at FROM "+table+" WHERE event_id = ? AND user_id = ?",
		eventID, pageToken,
	).Scan(&tokenCreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.SignupPage{}, nil
		}
		return storage.SignupPage{}, fmt.Errorf("lookup signup cursor: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT event_id, user_id, status, message, created_at, updated_at FROM "+table+
			" WHERE event_id = ? AND (created_at < ? OR (created_at = ? AND user_id < ?))"+
			" ORDER BY created_at DESC, user_id DESC LIMIT ?",
		eventID, tokenCreatedAt, tokenCreatedAt, pageToken, limit,
	)
	if err != nil {
		return storage.SignupPage{}, fmt.Errorf("list signups with token: %w", err)
	}
	defer rows.Close()
	return collectSignupPage(rows, kind, pageSize)
}

// CountSignups returns the number of signups for an event in the given statuses.
func (s *Store) CountSignups(ctx context.Context, kind storage.SignupKind, eventID string, statuses ...storage.SignupStatus) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	table, err := signupTable(kind)
	if err != nil {
		return 0, err
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return 0, fmt.Errorf("event id is required")
	}
	if len(statuses) == 0 {
		return 0, fmt.Errorf("at least one status is required")
	}

	placeholders := strings.Repeat("?, ", len(statuses)-1) + "?"
	args := make([]any, 0, len(statuses)+1)
	args = append(args, eventID)
	for _, status := range statuses {
		args = append(args, status)
	}

	var counted int
	err = s.sqlDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+table+" WHERE event_id = ? AND status IN ("+placeholders+")",
		args...,
	).Scan(&counted)
	if err != nil {
		return 0, fmt.Errorf("count signups: %w", err)
	}
	return counted, nil
}

// InsertAttendance writes one attendance fact at most once per (event,user).
func (s *Store) InsertAttendance(ctx context.Context, record storage.AttendanceRecord, change storage.ChangeRecord) (storage.ChangeRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ChangeRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ChangeRecord{}, fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeAttendanceRecord(record)
	if err != nil {
		return storage.ChangeRecord{}, err
	}
	normalizedChange, err := normalizeChangeRecord(change)
	if err != nil {
		return storage.ChangeRecord{}, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.ChangeRecord{}, fmt.Errorf("begin attendance write: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback attendance write: %v", cause, rollbackErr)
		}
		return cause
	}

	tokenConsumed := 0
	if normalized.TokenConsumed {
		tokenConsumed = 1
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO attendance (event_id, user_id, verified_at, token_consumed) VALUES (?, ?, ?, ?)",
		normalized.EventID, normalized.UserID, toMillis(normalized.VerifiedAt), tokenConsumed,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ChangeRecord{}, rollbackWith(storage.ErrConflict)
		}
		return storage.ChangeRecord{}, rollbackWith(fmt.Errorf("insert attendance: %w", err))
	}

	appended, err := appendChangeExec(ctx, tx, normalizedChange)
	if err != nil {
		return storage.ChangeRecord{}, rollbackWith(err)
	}

	if err := tx.Commit(); err != nil {
		return storage.ChangeRecord{}, fmt.Errorf("commit attendance write: %w", err)
	}
	return appended, nil
}

// GetAttendance loads one attendance fact.
func (s *Store) GetAttendance(ctx context.Context, eventID, userID string) (storage.AttendanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.AttendanceRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.AttendanceRecord{}, fmt.Errorf("storage is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	userID = strings.TrimSpace(userID)
	if eventID == "" {
		return storage.AttendanceRecord{}, fmt.Errorf("event id is required")
	}
	if userID == "" {
		return storage.AttendanceRecord{}, fmt.Errorf("user id is required")
	}

	var record storage.AttendanceRecord
	var verifiedAt int64
	var tokenConsumed int
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT event_id, user_id, verified_at, token_consumed FROM attendance WHERE event_id = ? AND user_id = ?",
		eventID, userID,
	).Scan(&record.EventID, &record.UserID, &verifiedAt, &tokenConsumed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.AttendanceRecord{}, storage.ErrNotFound
		}
		return storage.AttendanceRecord{}, fmt.Errorf("get attendance: %w", err)
	}
	record.VerifiedAt = fromMillis(verifiedAt)
	record.TokenConsumed = tokenConsumed != 0
	return record, nil
}

// ListChangesByEventAfter lists durable changes for one event after a sequence number.
func (s *Store) ListChangesByEventAfter(ctx context.Context, eventID string, afterSeq int64, limit int) ([]storage.ChangeRecord, error) {
	return s.listChangesAfter(ctx, "event_id", eventID, afterSeq, limit)
}

// ListChangesByCommunityAfter lists durable changes for one community after a sequence number.
func (s *Store) ListChangesByCommunityAfter(ctx context.Context, communityID string, afterSeq int64, limit int) ([]storage.ChangeRecord, error) {
	return s.listChangesAfter(ctx, "community_id", communityID, afterSeq, limit)
}

func (s *Store) listChangesAfter(ctx context.Context, column, scopeID string, afterSeq int64, limit int) ([]storage.ChangeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	scopeID = strings.TrimSpace(scopeID)
	if scopeID == "" {
		return nil, fmt.Errorf("scope id is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT seq, event_id, community_id, resource_type, change_type, user_id, occurred_at FROM change_log WHERE "+column+" = ? AND seq > ? ORDER BY seq ASC LIMIT ?",
		scopeID, afterSeq, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	defer rows.Close()

	results := make([]storage.ChangeRecord, 0, limit)
	for rows.Next() {
		var record storage.ChangeRecord
		var occurredAt int64
		if err := rows.Scan(
			&record.Seq,
			&record.EventID,
			&record.CommunityID,
			&record.ResourceType,
			&record.ChangeType,
			&record.UserID,
			&occurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan change row: %w", err)
		}
		record.OccurredAt = fromMillis(occurredAt)
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate change rows: %w", err)
	}
	return results, nil
}

type scanner func(dest ...any) error

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func signupTable(kind storage.SignupKind) (string, error) {
	switch kind {
	case storage.SignupKindRegistration:
		return "registrations", nil
	case storage.SignupKindVolunteer:
		return "volunteer_applications", nil
	default:
		return "", fmt.Errorf("unknown signup kind %q", kind)
	}
}

func normalizeEventRecord(record storage.EventRecord) (storage.EventRecord, error) {
	record.ID = strings.TrimSpace(record.ID)
	record.CommunityID = strings.TrimSpace(record.CommunityID)
	record.Title = strings.TrimSpace(record.Title)
	if record.ID == "" {
		return storage.EventRecord{}, fmt.Errorf("event id is required")
	}
	if record.CommunityID == "" {
		return storage.EventRecord{}, fmt.Errorf("community id is required")
	}
	if record.RegistrationEnd.IsZero() {
		return storage.EventRecord{}, fmt.Errorf("registration end is required")
	}
	if record.StartTime.IsZero() {
		return storage.EventRecord{}, fmt.Errorf("start time is required")
	}
	if record.EndTime.IsZero() {
		return storage.EventRecord{}, fmt.Errorf("end time is required")
	}
	if record.UpdatedAt.IsZero() {
		return storage.EventRecord{}, fmt.Errorf("updated_at is required")
	}
	if record.RegistrationLimit != nil && *record.RegistrationLimit < 0 {
		return storage.EventRecord{}, fmt.Errorf("registration limit must be non-negative")
	}
	if record.VolunteerLimit != nil && *record.VolunteerLimit < 0 {
		return storage.EventRecord{}, fmt.Errorf("volunteer limit must be non-negative")
	}
	record.RegistrationEnd = record.RegistrationEnd.UTC()
	record.StartTime = record.StartTime.UTC()
	record.EndTime = record.EndTime.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

func normalizeSignupRecord(record storage.SignupRecord) (storage.SignupRecord, error) {
	record.EventID = strings.TrimSpace(record.EventID)
	record.UserID = strings.TrimSpace(record.UserID)
	record.Message = strings.TrimSpace(record.Message)
	if record.EventID == "" {
		return storage.SignupRecord{}, fmt.Errorf("event id is required")
	}
	if record.UserID == "" {
		return storage.SignupRecord{}, fmt.Errorf("user id is required")
	}
	if record.Status == "" {
		record.Status = storage.SignupStatusPending
	}
	if record.Status != storage.SignupStatusPending {
		return storage.SignupRecord{}, fmt.Errorf("new signups must be pending")
	}
	if record.CreatedAt.IsZero() {
		return storage.SignupRecord{}, fmt.Errorf("created_at is required")
	}
	if record.UpdatedAt.IsZero() {
		return storage.SignupRecord{}, fmt.Errorf("updated_at is required")
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

func normalizeAttendanceRecord(record storage.AttendanceRecord) (storage.AttendanceRecord, error) {
	record.EventID = strings.TrimSpace(record.EventID)
	record.UserID = strings.TrimSpace(record.UserID)
	if record.EventID == "" {
		return storage.AttendanceRecord{}, fmt.Errorf("event id is required")
	}
	if record.UserID == "" {
		return storage.AttendanceRecord{}, fmt.Errorf("user id is required")
	}
	if record.VerifiedAt.IsZero() {
		return storage.AttendanceRecord{}, fmt.Errorf("verified_at is required")
	}
	record.VerifiedAt = record.VerifiedAt.UTC()
	return record, nil
}

func normalizeChangeRecord(record storage.ChangeRecord) (storage.ChangeRecord, error) {
	record.EventID = strings.TrimSpace(record.EventID)
	record.CommunityID = strings.TrimSpace(record.CommunityID)
	record.ResourceType = strings.TrimSpace(record.ResourceType)
	record.ChangeType = strings.TrimSpace(record.ChangeType)
	record.UserID = strings.TrimSpace(record.UserID)
	if record.EventID == "" {
		return storage.ChangeRecord{}, fmt.Errorf("change event id is required")
	}
	if record.CommunityID == "" {
		return storage.ChangeRecord{}, fmt.Errorf("change community id is required")
	}
	if record.ResourceType == "" {
		return storage.ChangeRecord{}, fmt.Errorf("change resource type is required")
	}
	if record.ChangeType == "" {
		return storage.ChangeRecord{}, fmt.Errorf("change type is required")
	}
	if record.OccurredAt.IsZero() {
		return storage.ChangeRecord{}, fmt.Errorf("change occurred_at is required")
	}
	record.OccurredAt = record.OccurredAt.UTC()
	return record, nil
}

func appendChangeExec(ctx context.Context, execer sqlExecer, record storage.ChangeRecord) (storage.ChangeRecord, error) {
	result, err := execer.ExecContext(ctx,
		"INSERT INTO change_log (event_id, community_id, resource_type, change_type, user_id, occurred_at) VALUES (?, ?, ?, ?, ?, ?)",
		record.EventID,
		record.CommunityID,
		record.ResourceType,
		record.ChangeType,
		record.UserID,
		toMillis(record.OccurredAt),
	)
	if err != nil {
		return storage.ChangeRecord{}, fmt.Errorf("append change: %w", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return storage.ChangeRecord{}, fmt.Errorf("read change seq: %w", err)
	}
	record.Seq = seq
	return record, nil
}

func scanEvent(scan scanner) (storage.EventRecord, error) {
	var record storage.EventRecord
	var registrationLimit, volunteerLimit sql.NullInt64
	var registrationEnd, startTime, endTime, updatedAt int64
	if err := scan(
		&record.ID,
		&record.CommunityID,
		&record.Title,
		&registrationLimit,
		&volunteerLimit,
		&registrationEnd,
		&startTime,
		&endTime,
		&updatedAt,
	); err != nil {
		return storage.EventRecord{}, err
	}
	if registrationLimit.Valid {
		value := int(registrationLimit.Int64)
		record.RegistrationLimit = &value
	}
	if volunteerLimit.Valid {
		value := int(volunteerLimit.Int64)
		record.VolunteerLimit = &value
	}
	record.RegistrationEnd = fromMillis(registrationEnd)
	record.StartTime = fromMillis(startTime)
	record.EndTime = fromMillis(endTime)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func scanSignup(scan scanner, kind storage.SignupKind) (storage.SignupRecord, error) {
	var record storage.SignupRecord
	var createdAt, updatedAt int64
	if err := scan(
		&record.EventID,
		&record.UserID,
		&record.Status,
		&record.Message,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.SignupRecord{}, err
	}
	record.Kind = kind
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func collectSignupPage(rows *sql.Rows, kind storage.SignupKind, pageSize int) (storage.SignupPage, error) {
	page := storage.SignupPage{
		Signups: make([]storage.SignupRecord, 0, pageSize),
	}
	for rows.Next() {
		record, err := scanSignup(rows.Scan, kind)
		if err != nil {
			return storage.SignupPage{}, fmt.Errorf("scan signup row: %w", err)
		}
		page.Signups = append(page.Signups, record)
	}
	if err := rows.Err(); err != nil {
		return storage.SignupPage{}, fmt.Errorf("iterate signup rows: %w", err)
	}
	if len(page.Signups) > pageSize {
		page.NextPageToken = page.Signups[pageSize-1].UserID
		page.Signups = page.Signups[:pageSize]
	}
	return page, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "unique constraint failed")
}
