package reconcile

import (
	"fmt"

	"github.com/chenyqthu/mailagent/internal/htmlblock"
	"github.com/chenyqthu/mailagent/internal/ical"
	"github.com/chenyqthu/mailagent/internal/notion"
)

// convertBlocks adapts htmlblock's block tree to the notion package's
// block type. Both are a bare map[string]any underneath — htmlblock has
// no notion import (it targets the block JSON shape directly, not this
// client), so the conversion is just a type relabel.
func convertBlocks(blocks []htmlblock.Block) []notion.Block {
	out := make([]notion.Block, len(blocks))
	for i, b := range blocks {
		out[i] = notion.Block(b)
	}
	return out
}

// plainTextBlock renders a body with no HTML part as a single paragraph.
func plainTextBlock(text string) notion.Block {
	return notion.Block{
		"object": "block",
		"type":   "paragraph",
		"paragraph": map[string]any{
			"rich_text": []map[string]any{{"type": "text", "text": map[string]any{"content": truncateProperty(text)}}},
		},
	}
}

// meetingCalloutBlock summarizes a detected calendar invite at the top of
// a message's page, before its body content.
func meetingCalloutBlock(invite *ical.Invite) notion.Block {
	summary := invite.Summary
	if summary == "" {
		summary = "Meeting invite"
	}
	text := fmt.Sprintf("%s — %s", summary, invite.Start.Format("Mon Jan 2, 2006 3:04 PM"))
	if invite.Location != "" {
		text += " · " + invite.Location
	}
	if invite.TeamsURL != "" {
		text += "\n" + invite.TeamsURL
	}
	if invite.MeetingID != "" {
		text += fmt.Sprintf("\nMeeting ID: %s", invite.MeetingID)
	}

	return notion.Block{
		"object": "block",
		"type":   "callout",
		"callout": map[string]any{
			"rich_text": []map[string]any{{"type": "text", "text": map[string]any{"content": text}}},
			"icon":      map[string]any{"type": "emoji", "emoji": "📅"},
		},
	}
}

// fileBlock renders a non-inline attachment already uploaded via the
// three-step upload protocol as a page-level file block.
func fileBlock(filename, uploadID string) notion.Block {
	return notion.Block{
		"object": "block",
		"type":   "file",
		"file": map[string]any{
			"type":        "file_upload",
			"file_upload": map[string]any{"id": uploadID},
			"caption":     []map[string]any{{"type": "text", "text": map[string]any{"content": filename}}},
		},
	}
}
