package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sync.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsert_IdempotentByInternalID(t *testing.T) {
	s := newTestStore(t)

	meta := InsertMeta{InternalID: 1001, Mailbox: "INBOX", DateReceived: time.Now()}
	inserted, err := s.Insert(meta)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if !inserted {
		t.Fatal("expected first insert to report inserted=true")
	}

	inserted, err = s.Insert(meta)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if inserted {
		t.Fatal("expected duplicate insert to be a no-op")
	}

	msg, err := s.Get(1001)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if msg.SyncStatus != StatusPending {
		t.Errorf("expected pending status, got %s", msg.SyncStatus)
	}
	if msg.RetryCount != 0 {
		t.Errorf("expected retry_count=0, got %d", msg.RetryCount)
	}
}

func TestMarkSynced_ClearsRetryFieldsKeepsCount(t *testing.T) {
	s := newTestStore(t)
	s.Insert(InsertMeta{InternalID: 1, Mailbox: "INBOX", DateReceived: time.Now()})

	// Drive one failure first so retry_count is nonzero.
	if err := s.MarkFetchFailed(1, errors.New("timeout")); err != nil {
		t.Fatalf("MarkFetchFailed() error = %v", err)
	}

	if err := s.MarkSynced(1, "page-abc"); err != nil {
		t.Fatalf("MarkSynced() error = %v", err)
	}

	msg, err := s.Get(1)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if msg.SyncStatus != StatusSynced {
		t.Errorf("expected synced, got %s", msg.SyncStatus)
	}
	if !msg.NotionPageID.Valid || msg.NotionPageID.String != "page-abc" {
		t.Errorf("expected notion_page_id=page-abc, got %+v", msg.NotionPageID)
	}
	if msg.NextRetryAt.Valid {
		t.Error("expected next_retry_at cleared on mark_synced")
	}
	if msg.RetryCount != 1 {
		t.Errorf("expected retry_count to be kept at 1 for observability, got %d", msg.RetryCount)
	}
}

func TestMarkFailed_EscalatesToDeadLetterAtMaxRetries(t *testing.T) {
	s := newTestStore(t)
	s.maxRetries = 2
	s.Insert(InsertMeta{InternalID: 1, Mailbox: "INBOX", DateReceived: time.Now()})

	if err := s.MarkFailed(1, errors.New("first failure")); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	msg, _ := s.Get(1)
	if msg.SyncStatus != StatusFailed {
		t.Errorf("expected failed after 1st failure, got %s", msg.SyncStatus)
	}
	if !msg.NextRetryAt.Valid {
		t.Error("expected next_retry_at set after 1st failure")
	}

	if err := s.MarkFailed(1, errors.New("second failure")); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	msg, _ = s.Get(1)
	if msg.SyncStatus != StatusDeadLetter {
		t.Errorf("expected dead_letter after reaching max retries, got %s", msg.SyncStatus)
	}
	if msg.NextRetryAt.Valid {
		t.Error("expected next_retry_at cleared once dead_letter")
	}
	if msg.RetryCount != 2 {
		t.Errorf("expected retry_count=2, got %d", msg.RetryCount)
	}
}

func TestRetryDeadLetter_RequiresDeadLetterState(t *testing.T) {
	s := newTestStore(t)
	s.maxRetries = 1
	s.Insert(InsertMeta{InternalID: 1, Mailbox: "INBOX", DateReceived: time.Now()})

	if err := s.RetryDeadLetter(1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound retrying a non-dead_letter message, got %v", err)
	}

	s.MarkFailed(1, errors.New("boom"))
	msg, _ := s.Get(1)
	if msg.SyncStatus != StatusDeadLetter {
		t.Fatalf("setup failed: expected dead_letter, got %s", msg.SyncStatus)
	}

	if err := s.RetryDeadLetter(1); err != nil {
		t.Fatalf("RetryDeadLetter() error = %v", err)
	}
	msg, _ = s.Get(1)
	if msg.SyncStatus != StatusPending {
		t.Errorf("expected pending after retry_dead_letter, got %s", msg.SyncStatus)
	}
}

func TestGetAllByThread_OrdersByDateReceivedDescAndExcludes(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().Truncate(time.Second)

	msgIDs := map[int64]string{100: "a@example.com", 101: "b@example.com", 102: "c@example.com"}
	for i, offset := range []time.Duration{0, time.Hour, 2 * time.Hour} {
		id := int64(100 + i)
		s.Insert(InsertMeta{InternalID: id, Mailbox: "INBOX", DateReceived: base.Add(offset)})
		s.UpdateAfterFetch(id, FetchMeta{MessageID: msgIDs[id], ThreadID: "root@example.com"})
	}

	msgs, err := s.GetAllByThread("root@example.com", 101, false)
	if err != nil {
		t.Fatalf("GetAllByThread() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages (excluding 101), got %d", len(msgs))
	}
	if msgs[0].InternalID != 102 || msgs[1].InternalID != 100 {
		t.Errorf("expected descending date order [102,100], got [%d,%d]", msgs[0].InternalID, msgs[1].InternalID)
	}
}

func TestThreadHeadCache_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	found, err := s.IsThreadHeadNotFound("missing@example.com")
	if err != nil {
		t.Fatalf("IsThreadHeadNotFound() error = %v", err)
	}
	if found {
		t.Error("expected not cached initially")
	}

	if err := s.MarkThreadHeadNotFound("missing@example.com", "arm returned not found"); err != nil {
		t.Fatalf("MarkThreadHeadNotFound() error = %v", err)
	}

	found, err = s.IsThreadHeadNotFound("missing@example.com")
	if err != nil {
		t.Fatalf("IsThreadHeadNotFound() error = %v", err)
	}
	if !found {
		t.Error("expected cached after mark_thread_head_not_found")
	}
}

func TestSetLastMaxRowID_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetLastMaxRowID(1005); err != nil {
		t.Fatalf("SetLastMaxRowID() error = %v", err)
	}
	id, err := s.LastMaxRowID()
	if err != nil {
		t.Fatalf("LastMaxRowID() error = %v", err)
	}
	if id != 1005 {
		t.Errorf("expected 1005, got %d", id)
	}
}
