// Package arm drives Mail.app through AppleScript (osascript) to fetch
// full message content by internal id and to push local read/flag state
// changes back into the mail store.
package arm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/chenyqthu/mailagent/internal/logging"
	"github.com/rs/zerolog"
)

const (
	fieldSeparator  = "{{SEP}}"
	recordSeparator = "{{REC}}"
)

// Sentinel fetch failure kinds, checked with errors.Is.
var (
	ErrTimeout  = errors.New("arm: applescript timed out")
	ErrNotFound = errors.New("arm: message not found")
	ErrScript   = errors.New("arm: applescript execution failed")
)

// FetchResult is the full content Arm retrieves for a single message.
type FetchResult struct {
	MessageID    string
	Subject      string
	Sender       string
	ToAddr       string
	CcAddr       string
	DateReceived time.Time
	Content      string // decoded message body, as Mail.app renders it
	Source       string // raw MIME bytes as text
	IsRead       bool
	IsFlagged    bool
	ThreadID     string // best-effort; equals MessageID if neither References nor In-Reply-To present
}

// PositionResult is one row of a fetch_by_position backfill batch.
type PositionResult struct {
	MessageID    string
	Subject      string
	Sender       string
	DateReceived time.Time
	IsRead       bool
	IsFlagged    bool
	ThreadID     string // empty if this message is its own thread root
}

// Arm executes AppleScript against one Mail.app account.
type Arm struct {
	accountName string
	timeout     time.Duration
	log         zerolog.Logger
}

// New creates an Arm scoped to the given Mail.app account name.
func New(accountName string, timeout time.Duration) *Arm {
	return &Arm{
		accountName: accountName,
		timeout:     timeout,
		log:         logging.WithComponent("arm"),
	}
}

// FetchByID locates a message by its integer internal id — orders of
// magnitude faster than locating by textual message-id, since "whose id
// is N" can use Mail.app's own index instead of enumerating messages.
func (a *Arm) FetchByID(ctx context.Context, internalID int64, mailbox string) (FetchResult, error) {
	script := fmt.Sprintf(`
	tell application "Mail"
		tell account "%s"
			tell mailbox "%s"
				try
					set theMessage to first message whose id is %d
					set msgId to message id of theMessage
					set msgSubject to subject of theMessage
					set msgSender to sender of theMessage
					set msgDate to date received of theMessage
					set msgContent to content of theMessage
					set msgSource to source of theMessage
					set msgRead to read status of theMessage
					set msgFlagged to flagged status of theMessage
					set msgReferences to ""
					set msgInReplyTo to ""
					set msgTo to ""
					set msgCc to ""
					try
						set msgReferences to content of header "References" of theMessage
					end try
					try
						set msgInReplyTo to content of header "In-Reply-To" of theMessage
					end try
					try
						set msgTo to content of header "To" of theMessage
					end try
					try
						set msgCc to content of header "Cc" of theMessage
					end try
					set dateStr to my formatDate(msgDate)
					return "OK" & "%s" & msgId & "%s" & msgSubject & "%s" & msgSender & "%s" & dateStr & "%s" & msgContent & "%s" & msgSource & "%s" & (msgRead as string) & "%s" & (msgFlagged as string) & "%s" & msgReferences & "%s" & msgInReplyTo & "%s" & msgTo & "%s" & msgCc
				on error errMsg
					return "ERROR" & "%s" & errMsg
				end try
			end tell
		end tell
	end tell

	%s
	`, escapeAppleScript(a.accountName), escapeAppleScript(mailbox), internalID,
		fieldSeparator, fieldSeparator, fieldSeparator, fieldSeparator, fieldSeparator, fieldSeparator, fieldSeparator, fieldSeparator, fieldSeparator, fieldSeparator,
		fieldSeparator,
		dateFormatHandler,
	)

	out, err := a.execute(ctx, script, a.timeout)
	if err != nil {
		return FetchResult{}, err
	}

	fields := strings.Split(out, fieldSeparator)
	if len(fields) == 0 {
		return FetchResult{}, fmt.Errorf("%w: empty result for internal_id %d", ErrScript, internalID)
	}

	if fields[0] == "ERROR" {
		msg := ""
		if len(fields) > 1 {
			msg = fields[1]
		}
		if strings.Contains(strings.ToLower(msg), "can't get") || strings.Contains(strings.ToLower(msg), "not found") {
			return FetchResult{}, fmt.Errorf("%w: internal_id %d: %s", ErrNotFound, internalID, msg)
		}
		return FetchResult{}, fmt.Errorf("%w: internal_id %d: %s", ErrScript, internalID, msg)
	}

	if len(fields) < 9 {
		return FetchResult{}, fmt.Errorf("%w: malformed result for internal_id %d (%d fields)", ErrScript, internalID, len(fields))
	}

	date, err := parseAppleScriptDate(fields[4])
	if err != nil {
		a.log.Warn().Err(err).Str("raw", fields[4]).Msg("Failed to parse date, using zero value")
	}

	result := FetchResult{
		MessageID:    fields[1],
		Subject:      fields[2],
		Sender:       fields[3],
		DateReceived: date,
		Content:      fields[5],
		Source:       fields[6],
		IsRead:       strings.EqualFold(fields[7], "true"),
		IsFlagged:    strings.EqualFold(fields[8], "true"),
	}

	var references, inReplyTo string
	if len(fields) > 9 {
		references = fields[9]
	}
	if len(fields) > 10 {
		inReplyTo = fields[10]
	}
	if len(fields) > 11 {
		result.ToAddr = fields[11]
	}
	if len(fields) > 12 {
		result.CcAddr = fields[12]
	}
	result.ThreadID = deriveThreadID(references, inReplyTo, result.MessageID)

	return result, nil
}

// deriveThreadID extracts the thread root message-id from a References
// header (first whitespace-separated token) or, failing that, In-Reply-To;
// if neither is present the message is its own thread root.
func deriveThreadID(references, inReplyTo, ownMessageID string) string {
	if references != "" {
		tokens := strings.Fields(references)
		if len(tokens) > 0 {
			return strings.Trim(tokens[0], "<>")
		}
	}
	if inReplyTo != "" {
		return strings.Trim(strings.TrimSpace(inReplyTo), "<>")
	}
	return ownMessageID
}

// FetchByPosition returns the count newest messages at offset within
// mailbox, for initial backfill. References/In-Reply-To are read directly
// by header name rather than full header enumeration, which is
// significantly cheaper per message.
func (a *Arm) FetchByPosition(ctx context.Context, count int, mailbox string, offset int) ([]PositionResult, error) {
	if count <= 0 {
		return nil, nil
	}

	startIdx := offset + 1
	endIdx := offset + count

	script := fmt.Sprintf(`
	tell application "Mail"
		set resultList to {}
		tell account "%s"
			tell mailbox "%s"
				set msgCount to count of messages
				set startIdx to %d
				set endIdx to %d
				if startIdx > msgCount then
					return ""
				end if
				if endIdx > msgCount then
					set endIdx to msgCount
				end if
				repeat with i from startIdx to endIdx
					try
						set m to message i
						set msgId to message id of m
						set msgSubject to subject of m
						set msgSender to sender of m
						set msgDate to date received of m
						set msgRead to read status of m
						set msgFlagged to flagged status of m
						set msgReferences to ""
						set msgInReplyTo to ""
						try
							set msgReferences to content of header "References" of m
						end try
						try
							set msgInReplyTo to content of header "In-Reply-To" of m
						end try
						set dateStr to my formatDate(msgDate)
						set info to msgId & "%s" & msgSubject & "%s" & msgSender & "%s" & dateStr & "%s" & (msgRead as string) & "%s" & (msgFlagged as string) & "%s" & msgReferences & "%s" & msgInReplyTo
						set end of resultList to info
					on error errMsg
					end try
				end repeat
			end tell
		end tell
		set AppleScript's text item delimiters to "%s"
		set resultStr to resultList as string
		set AppleScript's text item delimiters to ""
		return resultStr
	end tell

	%s
	`, escapeAppleScript(a.accountName), escapeAppleScript(mailbox), startIdx, endIdx,
		fieldSeparator, fieldSeparator, fieldSeparator, fieldSeparator, fieldSeparator, fieldSeparator,
		recordSeparator,
		dateFormatHandler,
	)

	out, err := a.execute(ctx, script, a.timeout)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}

	var results []PositionResult
	for _, record := range strings.Split(out, recordSeparator) {
		record = strings.TrimSpace(record)
		if record == "" {
			continue
		}
		fields := strings.Split(record, fieldSeparator)
		if len(fields) < 6 {
			a.log.Warn().Str("record", truncate(record, 100)).Msg("Skipping malformed position record")
			continue
		}

		date, err := parseAppleScriptDate(fields[3])
		if err != nil {
			a.log.Warn().Err(err).Str("raw", fields[3]).Msg("Failed to parse date, using zero value")
		}

		var references, inReplyTo string
		if len(fields) > 6 {
			references = fields[6]
		}
		if len(fields) > 7 {
			inReplyTo = fields[7]
		}

		pr := PositionResult{
			MessageID:    fields[0],
			Subject:      fields[1],
			Sender:       fields[2],
			DateReceived: date,
			IsRead:       strings.EqualFold(fields[4], "true"),
			IsFlagged:    strings.EqualFold(fields[5], "true"),
		}
		threadID := deriveThreadID(references, inReplyTo, pr.MessageID)
		if threadID != pr.MessageID {
			pr.ThreadID = threadID
		}
		results = append(results, pr)
	}

	if len(results) > count {
		results = results[:count]
	}
	return results, nil
}

// MarkRead sets a message's read status, located by message-id. Reverse
// sync mutations are rare, so the message-id lookup's relative slowness is
// acceptable here (unlike the fetch hot path, which uses integer ids).
func (a *Arm) MarkRead(ctx context.Context, messageID string, read bool, mailbox string) error {
	return a.setBoolField(ctx, messageID, mailbox, "read status", read)
}

// SetFlag sets a message's flagged status, located by message-id.
func (a *Arm) SetFlag(ctx context.Context, messageID string, flagged bool, mailbox string) error {
	return a.setBoolField(ctx, messageID, mailbox, "flagged status", flagged)
}

func (a *Arm) setBoolField(ctx context.Context, messageID, mailbox, field string, value bool) error {
	valueStr := "false"
	if value {
		valueStr = "true"
	}

	script := fmt.Sprintf(`
	tell application "Mail"
		tell account "%s"
			tell mailbox "%s"
				try
					set theMessage to first message whose message id is "%s"
					set %s of theMessage to %s
					return "OK"
				on error errMsg
					return "ERROR" & "%s" & errMsg
				end try
			end tell
		end tell
	end tell
	`, escapeAppleScript(a.accountName), escapeAppleScript(mailbox), escapeAppleScript(messageID), field, valueStr, fieldSeparator)

	out, err := a.execute(ctx, script, 30*time.Second)
	if err != nil {
		return err
	}
	if out == "OK" {
		return nil
	}

	fields := strings.Split(out, fieldSeparator)
	msg := out
	if len(fields) > 1 {
		msg = fields[1]
	}
	if strings.Contains(strings.ToLower(msg), "can't get") || strings.Contains(strings.ToLower(msg), "not found") {
		return fmt.Errorf("%w: message_id %s: %s", ErrNotFound, messageID, msg)
	}
	return fmt.Errorf("%w: message_id %s: %s", ErrScript, messageID, msg)
}

// execute runs an AppleScript via osascript, bounded by timeout. A process
// timeout is reported as ErrTimeout so callers can distinguish it from a
// script-level error.
func (a *Arm) execute(ctx context.Context, script string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("%w: after %s", ErrTimeout, timeout)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrScript, truncate(stderr.String(), 200), err)
	}

	return strings.TrimSpace(stdout.String()), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// formatDate is a standalone AppleScript handler producing an ISO-ish
// timestamp (YYYY-MM-DDTHH:MM:SS, in the Mail.app client's local time)
// without relying on the OS's localized date formatting.
const dateFormatHandler = `
on formatDate(d)
	set y to year of d as string
	set mo to month of d as integer
	set da to day of d as integer
	set h to hours of d
	set mi to minutes of d
	set s to seconds of d
	set dateStr to y & "-" & my pad(mo) & "-" & my pad(da) & "T" & my pad(h) & ":" & my pad(mi) & ":" & my pad(s)
	return dateStr
end formatDate

on pad(n)
	if n < 10 then
		return "0" & (n as string)
	else
		return n as string
	end if
end pad
`

// parseAppleScriptDate parses the YYYY-MM-DDTHH:MM:SS string formatDate
// produces, interpreting it as local time (Mail.app dates are naïve,
// timezone-less client-local timestamps).
func parseAppleScriptDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date string")
	}
	return time.ParseInLocation("2006-01-02T15:04:05", s, time.Local)
}

// escapeAppleScript escapes a string for safe interpolation inside an
// AppleScript double-quoted literal. Order matters: backslashes first (so
// later substitutions don't double-escape), then quotes, then
// CR/LF/TAB collapsed to a single space since they would otherwise break
// AppleScript's line-oriented syntax. This is the only string-interpolation
// path into generated scripts; integer ids are formatted with %d and are
// never run through this escaper.
func escapeAppleScript(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, `\`, `\\`)
	text = strings.ReplaceAll(text, `"`, `\"`)
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\r", " ")
	text = strings.ReplaceAll(text, "\t", " ")
	return text
}
