package arm

import (
	"testing"
	"time"
)

func TestEscapeAppleScript(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "hello world", "hello world"},
		{"quote", `say "hi"`, `say \"hi\"`},
		{"backslash", `C:\path`, `C:\\path`},
		{"backslash before quote", `\"`, `\\\"`},
		{"newline", "line1\nline2", "line1 line2"},
		{"crlf", "line1\r\nline2", "line1  line2"},
		{"tab", "a\tb", "a b"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := escapeAppleScript(c.in)
			if got != c.want {
				t.Errorf("escapeAppleScript(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}

func TestDeriveThreadID(t *testing.T) {
	cases := []struct {
		name                   string
		references, inReplyTo string
		own                    string
		want                   string
	}{
		{"uses first reference", "<root@x> <mid@x>", "", "self@x", "root@x"},
		{"falls back to in-reply-to", "", "<parent@x>", "self@x", "parent@x"},
		{"falls back to self when thread root", "", "", "self@x", "self@x"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := deriveThreadID(c.references, c.inReplyTo, c.own)
			if got != c.want {
				t.Errorf("deriveThreadID(%q, %q, %q) = %q, want %q", c.references, c.inReplyTo, c.own, got, c.want)
			}
		})
	}
}

func TestParseAppleScriptDate(t *testing.T) {
	got, err := parseAppleScriptDate("2026-03-15T09:30:05")
	if err != nil {
		t.Fatalf("parseAppleScriptDate() error = %v", err)
	}
	want := time.Date(2026, 3, 15, 9, 30, 5, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("parseAppleScriptDate() = %v, want %v", got, want)
	}
}

func TestParseAppleScriptDate_Empty(t *testing.T) {
	if _, err := parseAppleScriptDate(""); err == nil {
		t.Error("expected error for empty date string")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 3); got != "hel" {
		t.Errorf("truncate() = %q, want %q", got, "hel")
	}
	if got := truncate("hi", 10); got != "hi" {
		t.Errorf("truncate() = %q, want %q", got, "hi")
	}
}
