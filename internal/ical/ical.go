// Package ical parses the text/calendar MIME part of a meeting invite
// email and upserts a calendar page keyed by the event's UID, so a
// reschedule updates the same page instead of creating a duplicate.
package ical

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// EventStatus mirrors the three states a VEVENT's METHOD/STATUS pair maps
// to for display purposes.
type EventStatus string

const (
	StatusTentative EventStatus = "tentative"
	StatusConfirmed EventStatus = "confirmed"
	StatusCancelled EventStatus = "cancelled"
)

// Attendee is one ATTENDEE line of a VEVENT.
type Attendee struct {
	Email  string
	Name   string
	Status string // accepted, declined, tentative, pending, unknown
}

// Invite is the parsed content of one VEVENT, ready to upsert as a page.
type Invite struct {
	UID            string
	Method         string
	Summary        string
	Start          time.Time
	End            time.Time
	IsAllDay       bool
	Location       string
	Description    string
	Organizer      string
	OrganizerEmail string
	Attendees      []Attendee
	Status         EventStatus
	Sequence       int
	TeamsURL       string
	MeetingID      string
	Passcode       string
}

var (
	teamsURLPatterns = []*regexp.Regexp{
		regexp.MustCompile(`https://teams\.microsoft\.com/l/meetup-join/[^\s<>"']+`),
		regexp.MustCompile(`https://teams\.microsoft\.com/meet/\d+\?p=[A-Za-z0-9]+`),
	}
	meetingIDPattern  = regexp.MustCompile(`(?i)(?:Meeting\s*ID|会议\s*ID|会议ID)\s*[:：]\s*([\d\s]{10,25})`)
	passcodePattern   = regexp.MustCompile(`(?i)(?:Passcode|Password|Pass code|密码)\s*[:：]\s*(\S{4,20})`)
	organizerCNRe     = regexp.MustCompile(`CN=([^:;]+)`)
	organizerMailtoRe = regexp.MustCompile(`(?i)MAILTO:([^\s;]+)`)
)

// Parse extracts one Invite from a raw VCALENDAR blob. It returns nil,
// nil if the content has no UID or DTSTART — the two fields an invite
// cannot be usefully represented without.
func Parse(raw []byte) (*Invite, error) {
	content := unfold(string(raw))
	lines := splitLines(content)

	fields := map[string]fieldValue{}
	var attendeeLines []string

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, ":") {
			continue
		}
		keyPart, value, _ := strings.Cut(line, ":")

		if strings.HasPrefix(keyPart, "ATTENDEE") {
			attendeeLines = append(attendeeLines, line)
			continue
		}

		if strings.Contains(keyPart, ";") {
			parts := strings.Split(keyPart, ";")
			fields[parts[0]] = fieldValue{value: value, params: parts[1:]}
		} else {
			fields[keyPart] = fieldValue{value: value}
		}
	}

	uid := fields["UID"].value
	if uid == "" {
		return nil, nil
	}

	start := parseDateTime(fields["DTSTART"])
	if start.IsZero() {
		return nil, nil
	}
	end := parseDateTime(fields["DTEND"])
	if end.IsZero() {
		end = start.Add(time.Hour)
	}

	method := fields["METHOD"].value
	if method == "" {
		method = "REQUEST"
	}

	status := StatusTentative
	if method == "CANCEL" || strings.EqualFold(fields["STATUS"].value, "CANCELLED") {
		status = StatusCancelled
	}

	organizerName, organizerEmail := parseOrganizer(fields["ORGANIZER"])
	description := decodeEscapes(fields["DESCRIPTION"].value)
	teamsURL, meetingID, passcode := extractTeamsInfo(description)

	sequence, _ := strconv.Atoi(fields["SEQUENCE"].value)

	return &Invite{
		UID:            uid,
		Method:         method,
		Summary:        orDefault(decodeEscapes(fields["SUMMARY"].value), "(no subject)"),
		Start:          start,
		End:            end,
		IsAllDay:       isAllDay(fields["DTSTART"]),
		Location:       decodeEscapes(fields["LOCATION"].value),
		Description:    description,
		Organizer:      organizerName,
		OrganizerEmail: organizerEmail,
		Attendees:      parseAttendees(attendeeLines),
		Status:         status,
		Sequence:       sequence,
		TeamsURL:       teamsURL,
		MeetingID:      meetingID,
		Passcode:       passcode,
	}, nil
}

type fieldValue struct {
	value  string
	params []string
}

// unfold collapses RFC 5545 line folding: a CRLF (or LF) followed by a
// space or tab continues the previous line.
func unfold(s string) string {
	s = strings.ReplaceAll(s, "\r\n ", "")
	s = strings.ReplaceAll(s, "\r\n\t", "")
	s = strings.ReplaceAll(s, "\n ", "")
	s = strings.ReplaceAll(s, "\n\t", "")
	return s
}

func splitLines(s string) []string {
	if strings.Contains(s, "\r\n") {
		return strings.Split(s, "\r\n")
	}
	return strings.Split(s, "\n")
}

func isAllDay(f fieldValue) bool {
	for _, p := range f.params {
		if p == "VALUE=DATE" {
			return true
		}
	}
	return len(f.value) == 8
}

// parseDateTime handles the two iCalendar date forms this parser
// supports: YYYYMMDD (all-day, returned as UTC midnight) and
// YYYYMMDDTHHMMSS[Z]. A trailing Z yields UTC; otherwise the time is read
// in time.Local. Any TZID parameter is ignored.
func parseDateTime(f fieldValue) time.Time {
	value := f.value
	if value == "" {
		return time.Time{}
	}

	if len(value) == 8 {
		t, err := time.Parse("20060102", value)
		if err != nil {
			return time.Time{}
		}
		return t
	}

	if strings.Contains(value, "T") {
		if strings.HasSuffix(value, "Z") {
			t, err := time.Parse("20060102T150405Z", value)
			if err != nil {
				return time.Time{}
			}
			return t
		}
		t, err := time.ParseInLocation("20060102T150405", value, time.Local)
		if err != nil {
			return time.Time{}
		}
		return t
	}

	return time.Time{}
}

func parseOrganizer(f fieldValue) (name, email string) {
	raw := f.value
	if len(f.params) > 0 {
		raw = strings.Join(f.params, ";") + ":" + raw
	}
	if raw == "" {
		return "", ""
	}

	if m := organizerCNRe.FindStringSubmatch(raw); len(m) > 1 {
		name = strings.Trim(m[1], `"'`)
	}
	if m := organizerMailtoRe.FindStringSubmatch(raw); len(m) > 1 {
		email = m[1]
	}
	return name, email
}

func parseAttendees(lines []string) []Attendee {
	var out []Attendee
	for _, line := range lines {
		m := organizerMailtoRe.FindStringSubmatch(line)
		if len(m) < 2 {
			continue
		}
		email := m[1]
		var name string
		if cn := organizerCNRe.FindStringSubmatch(line); len(cn) > 1 {
			name = strings.Trim(cn[1], `"'`)
		}

		status := "unknown"
		switch {
		case strings.Contains(line, "PARTSTAT=ACCEPTED"):
			status = "accepted"
		case strings.Contains(line, "PARTSTAT=DECLINED"):
			status = "declined"
		case strings.Contains(line, "PARTSTAT=TENTATIVE"):
			status = "tentative"
		case strings.Contains(line, "PARTSTAT=NEEDS-ACTION"):
			status = "pending"
		}

		out = append(out, Attendee{Email: email, Name: name, Status: status})
	}
	return out
}

func decodeEscapes(s string) string {
	if s == "" {
		return s
	}
	replacer := strings.NewReplacer(
		`\n`, "\n",
		`\r`, "\r",
		`\,`, ",",
		`\;`, ";",
		`\\`, `\`,
	)
	return replacer.Replace(s)
}

func extractTeamsInfo(description string) (teamsURL, meetingID, passcode string) {
	if description == "" {
		return "", "", ""
	}
	for _, re := range teamsURLPatterns {
		if m := re.FindString(description); m != "" {
			teamsURL = strings.TrimRight(m, ">")
			break
		}
	}
	if m := meetingIDPattern.FindStringSubmatch(description); len(m) > 1 {
		meetingID = strings.TrimSpace(m[1])
	}
	if m := passcodePattern.FindStringSubmatch(description); len(m) > 1 {
		passcode = strings.TrimSpace(m[1])
	}
	return teamsURL, meetingID, passcode
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
