// Package radar provides read-only, short-lived access to Mail.app's own
// SQLite index (the Envelope Index) to detect new or changed messages with
// minimum cost. Radar never writes to the mail store.
package radar

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chenyqthu/mailagent/internal/logging"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// MessageMeta is the metadata Radar can read directly from the local index
// without invoking Arm.
type MessageMeta struct {
	InternalID   int64
	Subject      string
	SenderEmail  string
	DateReceived time.Time
	Mailbox      string
	IsRead       bool
	IsFlagged    bool
}

// Radar reads Mail.app's Envelope Index. Each call opens a fresh read-only
// connection rather than holding one open, since the index file is only
// consulted briefly once per poll tick.
type Radar struct {
	dbPath    string
	mailboxes []string
	log       zerolog.Logger
}

// New locates the newest Mail.app data version under ~/Library/Mail and
// returns a Radar scoped to the given mailbox names.
func New(mailboxes []string) (*Radar, error) {
	path, err := findEnvelopeIndex()
	if err != nil {
		return nil, err
	}
	return &Radar{
		dbPath:    path,
		mailboxes: mailboxes,
		log:       logging.WithComponent("radar"),
	}, nil
}

// findEnvelopeIndex finds the highest-numbered V*/MailData/Envelope Index
// under the user's Mail.app data directory.
func findEnvelopeIndex() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("radar: home directory: %w", err)
	}

	mailBase := filepath.Join(home, "Library", "Mail")
	entries, err := os.ReadDir(mailBase)
	if err != nil {
		return "", fmt.Errorf("radar: reading %s: %w", mailBase, err)
	}

	var versions []int
	byVersion := map[int]string{}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "V") {
			continue
		}
		n, err := strconv.Atoi(e.Name()[1:])
		if err != nil {
			continue
		}
		versions = append(versions, n)
		byVersion[n] = e.Name()
	}
	if len(versions) == 0 {
		return "", fmt.Errorf("radar: no Mail version directories found under %s", mailBase)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(versions)))

	dbPath := filepath.Join(mailBase, byVersion[versions[0]], "MailData", "Envelope Index")
	if _, err := os.Stat(dbPath); err != nil {
		return "", fmt.Errorf("radar: Envelope Index not found at %s: %w", dbPath, err)
	}
	return dbPath, nil
}

// open returns a fresh read-only connection to the Envelope Index.
func (r *Radar) open() (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro", r.dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("radar: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("radar: ping: %w", err)
	}
	return db, nil
}

// mailboxFilter builds a parameterized WHERE fragment matching mb.url
// against every compiled-in pattern for the configured mailboxes.
func (r *Radar) mailboxFilter() (string, []any) {
	var clauses []string
	var args []any
	for _, mailbox := range r.mailboxes {
		for _, pattern := range patternsFor(mailbox) {
			if !isValidPattern(pattern) {
				r.log.Warn().Str("pattern", pattern).Msg("Skipping invalid mailbox pattern")
				continue
			}
			clauses = append(clauses, "mb.url LIKE '%' || ? || '%'")
			args = append(args, pattern)
		}
	}
	if len(clauses) == 0 {
		return "1=1", nil
	}
	return "(" + strings.Join(clauses, " OR ") + ")", args
}

// CurrentMaxRowID returns MAX(ROWID) over non-deleted messages in the
// configured mailbox set, or 0 if the store is empty or unreachable.
func (r *Radar) CurrentMaxRowID() (int64, error) {
	db, err := r.open()
	if err != nil {
		return 0, err
	}
	defer db.Close()

	filter, args := r.mailboxFilter()
	query := fmt.Sprintf(`
		SELECT COALESCE(MAX(m.ROWID), 0)
		FROM messages m
		LEFT JOIN mailboxes mb ON m.mailbox = mb.ROWID
		WHERE m.deleted = 0 AND %s
	`, filter)

	var maxID int64
	if err := db.QueryRow(query, args...).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("radar: current_max_row_id: %w", err)
	}
	return maxID, nil
}

// EmailCountByMailbox is a diagnostic: message count per configured
// mailbox.
func (r *Radar) EmailCountByMailbox() (map[string]int, error) {
	db, err := r.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	result := make(map[string]int, len(r.mailboxes))
	for _, mailbox := range r.mailboxes {
		var clauses []string
		var args []any
		for _, pattern := range patternsFor(mailbox) {
			if !isValidPattern(pattern) {
				continue
			}
			clauses = append(clauses, "mb.url LIKE '%' || ? || '%'")
			args = append(args, pattern)
		}
		if len(clauses) == 0 {
			result[mailbox] = 0
			continue
		}

		query := fmt.Sprintf(`
			SELECT COUNT(*)
			FROM messages m
			LEFT JOIN mailboxes mb ON m.mailbox = mb.ROWID
			WHERE m.deleted = 0 AND (%s)
		`, strings.Join(clauses, " OR "))

		var count int
		if err := db.QueryRow(query, args...).Scan(&count); err != nil {
			return nil, fmt.Errorf("radar: email_count_by_mailbox %s: %w", mailbox, err)
		}
		result[mailbox] = count
	}
	return result, nil
}

// CheckForChanges reports whether new rows exist since lastMaxRowID. The
// caller owns lastMaxRowID — Radar keeps no state across calls.
func (r *Radar) CheckForChanges(lastMaxRowID int64) (hasNew bool, currentMax int64, estimatedNew int64, err error) {
	currentMax, err = r.CurrentMaxRowID()
	if err != nil {
		return false, 0, 0, err
	}
	if currentMax > lastMaxRowID {
		return true, currentMax, currentMax - lastMaxRowID, nil
	}
	return false, currentMax, 0, nil
}

// GetNewEmails enumerates messages with ROWID > sinceRowID, sorted
// ascending so the caller sees the oldest unsynced id first and can
// checkpoint last_max_row_id as the max of those it has handled. Rows
// with no message_id in the local index are still returned — Arm fills
// that in on fetch.
func (r *Radar) GetNewEmails(sinceRowID int64) ([]MessageMeta, error) {
	db, err := r.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	filter, args := r.mailboxFilter()
	query := fmt.Sprintf(`
		SELECT m.ROWID, COALESCE(m.subject, ''), COALESCE(m.sender, ''), m.date_received,
		       COALESCE(mb.url, ''), m.read, m.flagged
		FROM messages m
		LEFT JOIN mailboxes mb ON m.mailbox = mb.ROWID
		WHERE m.deleted = 0 AND m.ROWID > ? AND %s
		ORDER BY m.ROWID ASC
	`, filter)

	rows, err := db.Query(query, append([]any{sinceRowID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("radar: get_new_emails: %w", err)
	}
	defer rows.Close()

	var out []MessageMeta
	for rows.Next() {
		var m MessageMeta
		var epoch int64
		var read, flagged int
		var url string
		if err := rows.Scan(&m.InternalID, &m.Subject, &m.SenderEmail, &epoch, &url, &read, &flagged); err != nil {
			return nil, fmt.Errorf("radar: scanning row: %w", err)
		}
		m.DateReceived = mailEpochToTime(epoch)
		m.Mailbox = mailboxNameFromURL(url, r.mailboxes)
		m.IsRead = read != 0
		m.IsFlagged = flagged != 0
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("radar: iterating rows: %w", err)
	}
	return out, nil
}

// mailEpochToTime converts Mail.app's date_received, stored as a Core Data
// / Cocoa reference-date epoch (seconds since 2001-01-01 UTC), to time.Time.
func mailEpochToTime(epoch int64) time.Time {
	const appleEpochOffset = 978307200 // seconds between 1970-01-01 and 2001-01-01
	return time.Unix(epoch+appleEpochOffset, 0).UTC()
}

// mailboxNameFromURL maps a mailbox's stored URL back to the configured
// mailbox name it matched, for display/metadata purposes.
func mailboxNameFromURL(url string, mailboxes []string) string {
	for _, mailbox := range mailboxes {
		for _, pattern := range patternsFor(mailbox) {
			if strings.Contains(url, pattern) {
				return mailbox
			}
		}
	}
	return url
}
