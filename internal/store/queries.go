package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const messageColumns = `
	internal_id, message_id, thread_id, subject, sender, sender_name,
	to_addr, cc_addr, date_received, mailbox, is_read, is_flagged,
	sync_status, notion_page_id, sync_error, retry_count, next_retry_at,
	created_at, updated_at
`

func scanMessage(row interface {
	Scan(dest ...any) error
}) (Message, error) {
	var m Message
	var isRead, isFlagged int
	var status string
	err := row.Scan(
		&m.InternalID, &m.MessageID, &m.ThreadID, &m.Subject, &m.Sender, &m.SenderName,
		&m.ToAddr, &m.CcAddr, &m.DateReceived, &m.Mailbox, &isRead, &isFlagged,
		&status, &m.NotionPageID, &m.SyncError, &m.RetryCount, &m.NextRetryAt,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return Message{}, err
	}
	m.IsRead = isRead != 0
	m.IsFlagged = isFlagged != 0
	m.SyncStatus = SyncStatus(status)
	return m, nil
}

// Get looks up a Message by internal_id.
func (s *Store) Get(internalID int64) (Message, error) {
	row := s.db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE internal_id = ?`, internalID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("store: get %d: %w", internalID, err)
	}
	return m, nil
}

// GetByMessageID looks up a Message by its RFC 822 Message-ID.
func (s *Store) GetByMessageID(messageID string) (Message, error) {
	row := s.db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE message_id = ?`, messageID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("store: get_by_message_id: %w", err)
	}
	return m, nil
}

// GetPending returns pending messages, newest date_received first.
func (s *Store) GetPending(limit int) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT `+messageColumns+` FROM messages
		WHERE sync_status = 'pending'
		ORDER BY date_received DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: get_pending: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// GetReadyForRetry returns failed/fetch_failed messages whose next_retry_at
// has elapsed, ordered so the longest-overdue retry runs first.
func (s *Store) GetReadyForRetry(limit int) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT `+messageColumns+` FROM messages
		WHERE sync_status IN ('failed', 'fetch_failed') AND next_retry_at <= ?
		ORDER BY next_retry_at ASC
		LIMIT ?
	`, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("store: get_ready_for_retry: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// GetAllByThread returns every message sharing thread_id, ordered by
// date_received descending — the hot path for thread reconciliation.
// excludeInternalID, when non-zero, omits that row (the message currently
// being reconciled). When syncedOnly is true, only synced messages are
// returned (the Thread Manager only re-parents messages already in Notion).
func (s *Store) GetAllByThread(threadID string, excludeInternalID int64, syncedOnly bool) ([]Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE thread_id = ?`
	args := []any{threadID}

	if excludeInternalID != 0 {
		query += ` AND internal_id != ?`
		args = append(args, excludeInternalID)
	}
	if syncedOnly {
		query += ` AND sync_status = 'synced'`
	}
	query += ` ORDER BY date_received DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: get_all_by_thread %s: %w", threadID, err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// GetDeadLetters enumerates dead_letter messages for operator diagnostics.
func (s *Store) GetDeadLetters(limit int) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT `+messageColumns+` FROM messages
		WHERE sync_status = 'dead_letter'
		ORDER BY updated_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: get_dead_letters: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating rows: %w", err)
	}
	return out, nil
}

// GetState reads a sync_state value; returns "" if the key is unset.
func (s *Store) GetState(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get_state %s: %w", key, err)
	}
	return value, nil
}

// SetState upserts a sync_state value.
func (s *Store) SetState(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("store: set_state %s: %w", key, err)
	}
	return nil
}

// LastMaxRowID returns the checkpointed last_max_row_id.
func (s *Store) LastMaxRowID() (int64, error) {
	raw, err := s.GetState("last_max_row_id")
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, nil
	}
	var id int64
	if _, err := fmt.Sscanf(raw, "%d", &id); err != nil {
		return 0, fmt.Errorf("store: malformed last_max_row_id %q: %w", raw, err)
	}
	return id, nil
}

// SetLastMaxRowID checkpoints last_max_row_id and last_sync_time together.
// Checkpoint monotonicity is the caller's responsibility (the Reconciler
// only advances it after every row in a batch has been inserted).
func (s *Store) SetLastMaxRowID(rowID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: set_last_max_row_id: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO sync_state (key, value) VALUES ('last_max_row_id', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, fmt.Sprintf("%d", rowID)); err != nil {
		return fmt.Errorf("store: set_last_max_row_id: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO sync_state (key, value) VALUES ('last_sync_time', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("store: set_last_sync_time: %w", err)
	}

	return tx.Commit()
}

// MarkThreadHeadNotFound records that Arm could not locate a thread root,
// so future reconciliation passes skip re-asking for it.
func (s *Store) MarkThreadHeadNotFound(threadID, note string) error {
	_, err := s.db.Exec(`
		INSERT INTO thread_head_cache (thread_id, status, checked_at, note)
		VALUES (?, 'not_found', CURRENT_TIMESTAMP, ?)
		ON CONFLICT(thread_id) DO UPDATE SET checked_at = CURRENT_TIMESTAMP, note = excluded.note
	`, threadID, note)
	if err != nil {
		return fmt.Errorf("store: mark_thread_head_not_found %s: %w", threadID, err)
	}
	return nil
}

// IsThreadHeadNotFound reports whether threadID is in the negative cache.
func (s *Store) IsThreadHeadNotFound(threadID string) (bool, error) {
	var status string
	err := s.db.QueryRow(`SELECT status FROM thread_head_cache WHERE thread_id = ?`, threadID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: is_thread_head_not_found %s: %w", threadID, err)
	}
	return status == "not_found", nil
}

// ClearThreadHeadNotFound removes a thread from the negative cache, used
// when a previously-missing thread root reappears.
func (s *Store) ClearThreadHeadNotFound(threadID string) error {
	_, err := s.db.Exec(`DELETE FROM thread_head_cache WHERE thread_id = ?`, threadID)
	if err != nil {
		return fmt.Errorf("store: clear_thread_head_not_found %s: %w", threadID, err)
	}
	return nil
}
