package reconcile

import (
	"net/mail"
	"strings"
	"time"

	"github.com/chenyqthu/mailagent/internal/arm"
	"github.com/chenyqthu/mailagent/internal/notion"
)

// Exact remote page property names. These are a fixed contract with the
// target database schema, not a naming choice this package gets to make.
const (
	subjectProperty          = "Subject"
	fromProperty             = "From"
	fromNameProperty         = "From Name"
	toProperty               = "To"
	ccProperty               = "CC"
	dateProperty             = "Date"
	messageIDPropertyName    = "Message ID"
	threadIDProperty         = "Thread ID"
	mailboxProperty          = "Mailbox"
	processingStatusProperty = "Processing Status"
	isReadProperty           = "Is Read"
	isFlaggedProperty        = "Is Flagged"
	hasAttachmentsProperty   = "Has Attachments"
	originalEMLProperty      = "Original EML"
	calendarEventsProperty   = "Calendar Events"
)

// processingStatusUnreviewed is the initial value of Processing Status: a
// separate, AI-review facing field this package only initializes. No part
// of this daemon writes it afterwards; reverse sync reads AI Review Status
// and AI Action instead.
const processingStatusUnreviewed = "unreviewed"

// buildProperties assembles the create/duplicate-check payload for a
// synced Message, using the exact property names and types the target
// database schema expects.
func buildProperties(f arm.FetchResult, mailbox string, hasAttachments bool, calendarPageIDs []string, originalEML *notion.Upload) notion.Properties {
	senderName, senderEmail := splitAddress(f.Sender)

	props := notion.Properties{
		subjectProperty:          titleValue(f.Subject),
		fromProperty:             emailValue(senderEmail),
		dateProperty:             dateValue(f.DateReceived),
		messageIDPropertyName:    richTextValue(f.MessageID),
		mailboxProperty:          selectValue(mailbox),
		processingStatusProperty: selectValue(processingStatusUnreviewed),
		isReadProperty:           f.IsRead,
		isFlaggedProperty:        f.IsFlagged,
		hasAttachmentsProperty:   hasAttachments,
	}

	if senderName != "" {
		props[fromNameProperty] = richTextValue(senderName)
	}
	if f.ToAddr != "" {
		props[toProperty] = richTextValue(f.ToAddr)
	}
	if f.CcAddr != "" {
		props[ccProperty] = richTextValue(f.CcAddr)
	}
	if f.ThreadID != "" {
		props[threadIDProperty] = richTextValue(f.ThreadID)
	}
	if len(calendarPageIDs) > 0 {
		props[calendarEventsProperty] = relationValue(calendarPageIDs)
	}
	if originalEML != nil {
		props[originalEMLProperty] = fileUploadPropertyValue(originalEML.ID, "original.eml")
	}

	return props
}

func titleValue(text string) map[string]any {
	return map[string]any{"title": []map[string]any{{"text": map[string]any{"content": truncateProperty(text)}}}}
}

func richTextValue(text string) map[string]any {
	return map[string]any{"rich_text": []map[string]any{{"text": map[string]any{"content": truncateProperty(text)}}}}
}

func emailValue(address string) map[string]any {
	return map[string]any{"email": address}
}

func selectValue(name string) map[string]any {
	if name == "" {
		return nil
	}
	return map[string]any{"select": map[string]any{"name": name}}
}

func dateValue(t time.Time) map[string]any {
	return map[string]any{"date": map[string]any{"start": t.Format(time.RFC3339)}}
}

func relationValue(pageIDs []string) map[string]any {
	relations := make([]map[string]any, len(pageIDs))
	for i, id := range pageIDs {
		relations[i] = map[string]any{"id": id}
	}
	return map[string]any{"relation": relations}
}

func fileUploadPropertyValue(uploadID, name string) map[string]any {
	return map[string]any{
		"files": []map[string]any{
			{
				"type":        "file_upload",
				"name":        name,
				"file_upload": map[string]any{"id": uploadID},
			},
		},
	}
}

// truncateProperty bounds rich_text/title content to the remote API's
// 2000-character-per-text-object limit.
func truncateProperty(s string) string {
	const limit = 2000
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

// splitAddress pulls a display name and bare email address out of a
// "Name <addr>" sender/recipient header value. A header that fails to
// parse as an RFC 5322 address (Mail.app occasionally hands back odd
// strings for malformed mail) is returned as the email with no name
// rather than dropped.
func splitAddress(raw string) (name, email string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return "", raw
	}
	return addr.Name, addr.Address
}
