package radar

import (
	"testing"
	"time"
)

func TestIsValidPattern(t *testing.T) {
	cases := map[string]bool{
		"INBOX":    true,
		"E6%94":    true,
		"Sent-Box": true,
		"a b":                     true,
		"":                        false,
		"DROP TABLE messages; --": false,
		"'; --":                  false,
	}
	for pattern, want := range cases {
		if got := isValidPattern(pattern); got != want {
			t.Errorf("isValidPattern(%q) = %v, want %v", pattern, got, want)
		}
	}
}

func TestPatternsFor_UnknownMailboxFallsBackToLiteral(t *testing.T) {
	got := patternsFor("CustomFolder")
	if len(got) != 1 || got[0] != "CustomFolder" {
		t.Errorf("expected fallback to literal name, got %v", got)
	}
}

func TestMailboxFilter_BuildsParameterizedClause(t *testing.T) {
	r := &Radar{mailboxes: []string{"INBOX", "Sent"}}
	clause, args := r.mailboxFilter()
	if clause == "1=1" {
		t.Fatal("expected a real filter clause for configured mailboxes")
	}
	if len(args) == 0 {
		t.Fatal("expected placeholder args for patterns")
	}
	for _, a := range args {
		if _, ok := a.(string); !ok {
			t.Errorf("expected all filter args to be strings, got %T", a)
		}
	}
}

func TestMailEpochToTime(t *testing.T) {
	// 2001-01-01 00:00:00 UTC is Mail.app's epoch zero.
	got := mailEpochToTime(0)
	want := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("mailEpochToTime(0) = %v, want %v", got, want)
	}
}

func TestMailboxNameFromURL(t *testing.T) {
	mailboxes := []string{"INBOX", "Sent"}
	got := mailboxNameFromURL("imap://user@host/INBOX", mailboxes)
	if got != "INBOX" {
		t.Errorf("expected INBOX, got %q", got)
	}
}
