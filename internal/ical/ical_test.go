package ical

import (
	"testing"
	"time"
)

const sampleInvite = "BEGIN:VCALENDAR\r\n" +
	"METHOD:REQUEST\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:event-123@example.com\r\n" +
	"SUMMARY:Quarterly Review\r\n" +
	"DTSTART:20260315T140000\r\n" +
	"DTEND:20260315T150000\r\n" +
	"LOCATION:Conference Room A\r\n" +
	"ORGANIZER;CN=Jane Doe:MAILTO:jane@example.com\r\n" +
	"ATTENDEE;ROLE=REQ-PARTICIPANT;PARTSTAT=ACCEPTED;CN=John Smith:MAILTO:john@example.com\r\n" +
	"DESCRIPTION:Join Teams meeting\\nhttps://teams.microsoft.com/l/meetup-join/abc123\\nMeeting ID: 123 456 789\\nPasscode: xyz123\r\n" +
	"SEQUENCE:0\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParse_BasicInvite(t *testing.T) {
	invite, err := Parse([]byte(sampleInvite))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if invite == nil {
		t.Fatal("expected non-nil invite")
	}
	if invite.UID != "event-123@example.com" {
		t.Errorf("UID = %q, want event-123@example.com", invite.UID)
	}
	if invite.Summary != "Quarterly Review" {
		t.Errorf("Summary = %q", invite.Summary)
	}
	wantStart := time.Date(2026, 3, 15, 14, 0, 0, 0, time.Local)
	if !invite.Start.Equal(wantStart) {
		t.Errorf("Start = %v, want %v", invite.Start, wantStart)
	}
	if invite.OrganizerEmail != "jane@example.com" {
		t.Errorf("OrganizerEmail = %q", invite.OrganizerEmail)
	}
	if len(invite.Attendees) != 1 || invite.Attendees[0].Email != "john@example.com" {
		t.Errorf("Attendees = %+v", invite.Attendees)
	}
	if invite.Attendees[0].Status != "accepted" {
		t.Errorf("Attendee status = %q, want accepted", invite.Attendees[0].Status)
	}
	if invite.TeamsURL == "" {
		t.Error("expected Teams URL to be extracted")
	}
	if invite.MeetingID != "123 456 789" {
		t.Errorf("MeetingID = %q", invite.MeetingID)
	}
	if invite.Passcode != "xyz123" {
		t.Errorf("Passcode = %q", invite.Passcode)
	}
	if invite.Status != StatusTentative {
		t.Errorf("Status = %q, want tentative", invite.Status)
	}
}

func TestParse_CancelSetsCancelledStatus(t *testing.T) {
	content := "METHOD:CANCEL\r\nUID:c1@example.com\r\nDTSTART:20260101T100000\r\n"
	invite, err := Parse([]byte(content))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if invite.Status != StatusCancelled {
		t.Errorf("Status = %q, want cancelled", invite.Status)
	}
}

func TestParse_MissingUIDReturnsNil(t *testing.T) {
	invite, err := Parse([]byte("DTSTART:20260101T100000\r\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if invite != nil {
		t.Errorf("expected nil invite when UID missing, got %+v", invite)
	}
}

func TestParse_AllDayEvent(t *testing.T) {
	content := "UID:allday@example.com\r\nDTSTART;VALUE=DATE:20260401\r\nSUMMARY:Holiday\r\n"
	invite, err := Parse([]byte(content))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !invite.IsAllDay {
		t.Error("expected IsAllDay=true")
	}
	if invite.End.Sub(invite.Start) != time.Hour {
		t.Errorf("expected default 1h duration when DTEND absent, got %v", invite.End.Sub(invite.Start))
	}
}

func TestParse_FoldedLines(t *testing.T) {
	content := "UID:fold@example.com\r\nDTSTART:20260101T100000\r\nSUMMARY:Long title that wraps\r\n  over two lines\r\n"
	invite, err := Parse([]byte(content))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if invite.Summary != "Long title that wraps over two lines" {
		t.Errorf("Summary = %q, want unfolded continuation", invite.Summary)
	}
}

func TestDecodeEscapes(t *testing.T) {
	got := decodeEscapes(`line one\nline two\, with comma`)
	want := "line one\nline two, with comma"
	if got != want {
		t.Errorf("decodeEscapes() = %q, want %q", got, want)
	}
}
