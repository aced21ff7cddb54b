// Package store implements SyncStore: the single source of truth for
// per-message sync state on this host. It wraps the shared SQLite
// connection the way the teacher's settings/draft stores wrap
// *database.DB, but the schema and transitions are mailsyncd's own.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chenyqthu/mailagent/internal/database"
	"github.com/chenyqthu/mailagent/internal/logging"
	"github.com/chenyqthu/mailagent/internal/retry"
	"github.com/rs/zerolog"
)

// SyncStatus is the lifecycle state of a Message within SyncStore.
type SyncStatus string

const (
	StatusPending     SyncStatus = "pending"
	StatusSynced      SyncStatus = "synced"
	StatusFailed      SyncStatus = "failed"
	StatusFetchFailed SyncStatus = "fetch_failed"
	StatusSkipped     SyncStatus = "skipped"
	StatusDeadLetter  SyncStatus = "dead_letter"
)

// MaxRetries is the default retry budget before a Message becomes
// dead_letter; callers may override per-store via WithMaxRetries.
const MaxRetries = 5

var (
	// ErrUnavailable is returned when the store's backing file cannot be
	// opened or is corrupt.
	ErrUnavailable = errors.New("store: unavailable")

	// ErrSchemaMismatch is returned when db_version in sync_state does not
	// match what this build expects and the migration path could not
	// reconcile it.
	ErrSchemaMismatch = errors.New("store: schema mismatch")

	// ErrNotFound is returned by lookups that find no matching row.
	ErrNotFound = errors.New("store: not found")
)

// CurrentSchemaVersion is the db_version SyncStore expects after Open's
// migration step.
const CurrentSchemaVersion = 1

// Message mirrors the data model's Message entity.
type Message struct {
	InternalID   int64
	MessageID    sql.NullString
	ThreadID     sql.NullString
	Subject      sql.NullString
	Sender       sql.NullString
	SenderName   sql.NullString
	ToAddr       sql.NullString
	CcAddr       sql.NullString
	DateReceived sql.NullTime
	Mailbox      string
	IsRead       bool
	IsFlagged    bool

	SyncStatus   SyncStatus
	NotionPageID sql.NullString
	SyncError    sql.NullString
	RetryCount   int
	NextRetryAt  sql.NullTime

	CreatedAt time.Time
	UpdatedAt time.Time
}

// InsertMeta is the metadata Radar provides for a newly discovered message.
type InsertMeta struct {
	InternalID   int64
	Mailbox      string
	DateReceived time.Time
	IsRead       bool
	IsFlagged    bool
}

// FetchMeta is the metadata Arm fills in once the full message is fetched.
type FetchMeta struct {
	MessageID  string
	ThreadID   string
	Subject    string
	Sender     string
	SenderName string
	ToAddr     string
	CcAddr     string
}

// Store is SyncStore: the single-writer, concurrent-reader, crash-safe
// per-message state machine backing the Reconciler.
type Store struct {
	db         *database.DB
	log        zerolog.Logger
	backoff    retry.Backoff
	maxRetries int
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithMaxRetries overrides the default retry budget (5).
func WithMaxRetries(n int) Option {
	return func(s *Store) { s.maxRetries = n }
}

// WithBackoff overrides the default fixed-table backoff schedule.
func WithBackoff(b retry.Backoff) Option {
	return func(s *Store) { s.backoff = b }
}

// Open opens (creating if needed) the SyncStore database at path and runs
// any pending migrations, then reconciles db_version in sync_state.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := database.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migration failed: %v", ErrUnavailable, err)
	}

	s := &Store{
		db:         db,
		log:        logging.WithComponent("syncstore"),
		backoff:    retry.MessageRetrySchedule,
		maxRetries: MaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.reconcileSchemaVersion(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// reconcileSchemaVersion advances the stored db_version to
// CurrentSchemaVersion in one transaction, or fails with ErrSchemaMismatch
// if the stored version is newer than this build understands.
func (s *Store) reconcileSchemaVersion() error {
	raw, err := s.GetState("db_version")
	if err != nil {
		return fmt.Errorf("%w: reading db_version: %v", ErrUnavailable, err)
	}

	var stored int
	if raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &stored); err != nil {
			return fmt.Errorf("%w: malformed db_version %q", ErrSchemaMismatch, raw)
		}
	}

	if stored > CurrentSchemaVersion {
		return fmt.Errorf("%w: stored db_version %d newer than supported %d", ErrSchemaMismatch, stored, CurrentSchemaVersion)
	}
	if stored == CurrentSchemaVersion {
		return nil
	}

	return s.SetState("db_version", fmt.Sprintf("%d", CurrentSchemaVersion))
}

// Insert records a newly discovered message as pending. Idempotent by
// internal_id: inserting an id already present is a no-op and returns
// false.
func (s *Store) Insert(meta InsertMeta) (bool, error) {
	res, err := s.db.Exec(`
		INSERT INTO messages (internal_id, mailbox, date_received, is_read, is_flagged, sync_status, retry_count, next_retry_at)
		VALUES (?, ?, ?, ?, ?, 'pending', 0, NULL)
		ON CONFLICT(internal_id) DO NOTHING
	`, meta.InternalID, meta.Mailbox, meta.DateReceived, boolToInt(meta.IsRead), boolToInt(meta.IsFlagged))
	if err != nil {
		return false, fmt.Errorf("store: insert %d: %w", meta.InternalID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: insert %d: rows affected: %w", meta.InternalID, err)
	}
	return n > 0, nil
}

// UpdateAfterFetch sets the metadata learned from Arm.fetch_by_id, keeping
// sync_status unchanged.
func (s *Store) UpdateAfterFetch(internalID int64, meta FetchMeta) error {
	_, err := s.db.Exec(`
		UPDATE messages
		SET message_id = ?, thread_id = ?, subject = ?, sender = ?, sender_name = ?, to_addr = ?, cc_addr = ?, updated_at = CURRENT_TIMESTAMP
		WHERE internal_id = ?
	`, meta.MessageID, meta.ThreadID, meta.Subject, meta.Sender, meta.SenderName, meta.ToAddr, meta.CcAddr, internalID)
	if err != nil {
		return fmt.Errorf("store: update_after_fetch %d: %w", internalID, err)
	}
	return nil
}

// MarkSynced transitions a Message to synced. retry_count is left as-is
// for observability; next_retry_at and sync_error are cleared.
func (s *Store) MarkSynced(internalID int64, notionPageID string) error {
	_, err := s.db.Exec(`
		UPDATE messages
		SET sync_status = 'synced', notion_page_id = ?, sync_error = NULL, next_retry_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE internal_id = ?
	`, notionPageID, internalID)
	if err != nil {
		return fmt.Errorf("store: mark_synced %d: %w", internalID, err)
	}
	return nil
}

// MarkSkipped terminally skips a message (e.g. date-window filter). It
// remains in SyncStore so later replies can still locate it as a thread
// ancestor, but is never pushed to the remote unless explicitly reset.
func (s *Store) MarkSkipped(internalID int64) error {
	_, err := s.db.Exec(`
		UPDATE messages
		SET sync_status = 'skipped', next_retry_at = NULL, sync_error = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE internal_id = ?
	`, internalID)
	if err != nil {
		return fmt.Errorf("store: mark_skipped %d: %w", internalID, err)
	}
	return nil
}

// MarkFetchFailed records an Arm fetch failure.
func (s *Store) MarkFetchFailed(internalID int64, cause error) error {
	return s.markFailure(internalID, StatusFetchFailed, cause)
}

// MarkFailed records a remote (Notion) failure after a successful fetch.
func (s *Store) MarkFailed(internalID int64, cause error) error {
	return s.markFailure(internalID, StatusFailed, cause)
}

// markFailure increments retry_count and either schedules the next retry
// or, once the budget is exhausted, moves the message to dead_letter. Runs
// as one transaction so the increment and status transition are atomic.
func (s *Store) markFailure(internalID int64, status SyncStatus, cause error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: mark_failure %d: %w", internalID, err)
	}
	defer tx.Rollback()

	var retryCount int
	if err := tx.QueryRow(`SELECT retry_count FROM messages WHERE internal_id = ?`, internalID).Scan(&retryCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("store: mark_failure %d: %w", internalID, ErrNotFound)
		}
		return fmt.Errorf("store: mark_failure %d: %w", internalID, err)
	}

	retryCount++

	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}

	if retryCount >= s.maxRetries {
		if _, err := tx.Exec(`
			UPDATE messages
			SET sync_status = 'dead_letter', retry_count = ?, next_retry_at = NULL, sync_error = ?, updated_at = CURRENT_TIMESTAMP
			WHERE internal_id = ?
		`, retryCount, errMsg, internalID); err != nil {
			return fmt.Errorf("store: mark_failure %d: %w", internalID, err)
		}
		return tx.Commit()
	}

	nextRetryAt := time.Now().Add(s.backoff.Duration(retryCount - 1))
	if _, err := tx.Exec(`
		UPDATE messages
		SET sync_status = ?, retry_count = ?, next_retry_at = ?, sync_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE internal_id = ?
	`, string(status), retryCount, nextRetryAt, errMsg, internalID); err != nil {
		return fmt.Errorf("store: mark_failure %d: %w", internalID, err)
	}

	return tx.Commit()
}

// RetryDeadLetter resets a dead_letter Message back to pending, clearing
// its retry fields. Requires explicit operator intervention per the
// terminal-state invariant.
func (s *Store) RetryDeadLetter(internalID int64) error {
	res, err := s.db.Exec(`
		UPDATE messages
		SET sync_status = 'pending', next_retry_at = NULL, sync_error = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE internal_id = ? AND sync_status = 'dead_letter'
	`, internalID)
	if err != nil {
		return fmt.Errorf("store: retry_dead_letter %d: %w", internalID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: retry_dead_letter %d: %w", internalID, err)
	}
	if n == 0 {
		return fmt.Errorf("store: retry_dead_letter %d: %w", internalID, ErrNotFound)
	}
	return nil
}

// Delete removes a Message's row entirely. Used for the "data absent"
// error kind: Arm reports the message no longer exists in the mail
// store, so there is nothing left to retry and the row is dropped rather
// than cycling through the retry queue forever.
func (s *Store) Delete(internalID int64) error {
	if _, err := s.db.Exec(`DELETE FROM messages WHERE internal_id = ?`, internalID); err != nil {
		return fmt.Errorf("store: delete %d: %w", internalID, err)
	}
	return nil
}

// Ping verifies the backing database connection is still usable, for the
// health-check probe.
func (s *Store) Ping() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// StartCheckpointRoutine runs the backing database's periodic WAL
// checkpoint until ctx is cancelled. Callers should run this in its own
// goroutine at startup.
func (s *Store) StartCheckpointRoutine(ctx context.Context) {
	s.db.StartCheckpointRoutine(ctx)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
