// Package mimeparse parses a raw RFC 5322 message into plain text, HTML,
// attachments (inline and regular), and calendar (text/calendar) parts in
// a single pass, decoding whatever charset each part declares along the
// way.
package mimeparse

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"strings"

	"github.com/chenyqthu/mailagent/internal/logging"
	gomessage "github.com/emersion/go-message"
	"github.com/teamwork/tnef"
)

// maxPartSize bounds how much of any single part is read into memory;
// Mail.app messages are local and small by mail standards, but a
// pathological attachment should not be allowed to exhaust memory.
const maxPartSize = 64 * 1024 * 1024 // 64 MiB

// Attachment is one extracted file, inline image, or TNEF sub-attachment.
type Attachment struct {
	Filename    string
	ContentType string
	ContentID   string // stripped of surrounding angle brackets; empty if none
	IsInline    bool
	Content     []byte
}

// CalendarPart is a raw text/calendar (iCalendar) blob found in the message.
type CalendarPart struct {
	Content []byte
}

// ParsedMessage is the result of parsing one raw message.
type ParsedMessage struct {
	BodyText    string
	BodyHTML    string
	Attachments []Attachment
	Calendar    []CalendarPart
}

// Parse extracts text, HTML, attachments, and calendar parts from raw. A
// message that cannot be parsed as MIME at all is treated as a single
// plain-text body rather than an error — Mail.app's own index can hand
// back malformed messages, and a readable partial result beats a failure.
func Parse(raw []byte) *ParsedMessage {
	result := &ParsedMessage{}
	entity, err := gomessage.Read(bytes.NewReader(raw))
	if err != nil {
		result.BodyText = string(raw)
		return result
	}

	if mr := entity.MultipartReader(); mr != nil {
		parseMultipart(mr, result)
	} else {
		parseSinglePart(entity, result)
	}
	return result
}

func parseMultipart(mr gomessage.MultipartReader, result *ParsedMessage) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			if !errors.Is(err, io.EOF) && !strings.Contains(err.Error(), "EOF") {
				logging.WithComponent("mimeparse").Debug().Err(err).Msg("Error reading multipart")
			}
			return
		}

		contentType, ctParams, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		disposition, dispParams, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		contentID := strings.Trim(part.Header.Get("Content-ID"), "<>")

		switch {
		case strings.HasPrefix(contentType, "multipart/"):
			if nested := part.MultipartReader(); nested != nil {
				parseMultipart(nested, result)
			}

		case contentType == "application/ms-tnef" || contentType == "application/vnd.ms-tnef":
			expandTNEF(part, result)

		case contentType == "text/calendar":
			body := readLimited(part.Body)
			result.Calendar = append(result.Calendar, CalendarPart{Content: body})

		case disposition == "attachment" || (contentID != "" && strings.HasPrefix(contentType, "image/")) ||
			(disposition == "inline" && strings.HasPrefix(contentType, "image/")):
			isInline := contentID != "" || disposition == "inline"
			result.Attachments = append(result.Attachments, extractAttachment(part, contentType, dispParams, ctParams, contentID, isInline))

		case contentType == "text/plain":
			charset := ctParams["charset"]
			decoded := decodeCharset(readLimited(part.Body), charset)
			if result.BodyText == "" {
				result.BodyText = decoded
			}

		case contentType == "text/html":
			body := readLimited(part.Body)
			charset := ctParams["charset"]
			if charset == "" {
				charset = extractCharsetFromHTML(body)
			}
			decoded := decodeCharset(body, charset)
			if result.BodyHTML == "" {
				result.BodyHTML = decoded
			}

		default:
			if contentType != "" && !strings.HasPrefix(contentType, "text/") {
				result.Attachments = append(result.Attachments, extractAttachment(part, contentType, dispParams, ctParams, contentID, false))
			}
		}
	}
}

func parseSinglePart(entity *gomessage.Entity, result *ParsedMessage) {
	contentType, params, _ := mime.ParseMediaType(entity.Header.Get("Content-Type"))
	body := readLimited(entity.Body)

	charset := params["charset"]
	if charset == "" && contentType == "text/html" {
		charset = extractCharsetFromHTML(body)
	}
	decoded := decodeCharset(body, charset)

	if contentType == "text/html" {
		result.BodyHTML = decoded
	} else {
		result.BodyText = decoded
	}
}

func extractAttachment(part *gomessage.Entity, contentType string, dispParams, ctParams map[string]string, contentID string, isInline bool) Attachment {
	filename := dispParams["filename"]
	if filename == "" {
		filename = ctParams["name"]
	}
	filename = decodeMIMEWord(filename)
	if filename == "" {
		filename = "attachment" + extensionForContentType(contentType)
	}

	return Attachment{
		Filename:    filename,
		ContentType: contentType,
		ContentID:   contentID,
		IsInline:    isInline,
		Content:     readLimited(part.Body),
	}
}

func extensionForContentType(contentType string) string {
	if strings.HasPrefix(contentType, "image/") {
		parts := strings.SplitN(contentType, "/", 2)
		if len(parts) == 2 {
			return "." + parts[1]
		}
	}
	return ".bin"
}

// expandTNEF decodes an application/ms-tnef (winmail.dat) part into its
// individual file attachments, since Exchange sometimes ships real
// attachments wrapped inside a single opaque TNEF blob instead of normal
// MIME parts.
func expandTNEF(part *gomessage.Entity, result *ParsedMessage) {
	log := logging.WithComponent("mimeparse")
	raw := readLimited(part.Body)

	data, err := tnef.Decode(raw)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to decode TNEF attachment, skipping")
		return
	}

	for _, att := range data.Attachments {
		name := string(att.Title)
		if name == "" {
			name = "winmail-attachment.bin"
		}
		result.Attachments = append(result.Attachments, Attachment{
			Filename:    name,
			ContentType: "application/octet-stream",
			Content:     att.Data,
		})
	}
}

func readLimited(r io.Reader) []byte {
	data, err := io.ReadAll(io.LimitReader(r, maxPartSize))
	if err != nil && len(data) == 0 {
		return nil
	}
	return data
}
