package reconcile

import (
	"testing"
	"time"

	"github.com/chenyqthu/mailagent/internal/htmlblock"
	"github.com/chenyqthu/mailagent/internal/ical"
	"github.com/chenyqthu/mailagent/internal/mimeparse"
	"github.com/chenyqthu/mailagent/internal/notion"
)

func TestConvertBlocks(t *testing.T) {
	in := []htmlblock.Block{{"type": "paragraph"}}
	out := convertBlocks(in)
	if len(out) != 1 || out[0]["type"] != "paragraph" {
		t.Errorf("convertBlocks() = %+v", out)
	}
}

func TestFileBlock(t *testing.T) {
	b := fileBlock("report.pdf", "upload-1")
	if b["type"] != "file" {
		t.Fatalf("expected type file, got %v", b["type"])
	}
	fileVal := b["file"].(map[string]any)
	if fileVal["type"] != "file_upload" {
		t.Errorf("expected file_upload reference, got %+v", fileVal)
	}
}

func TestMeetingCalloutBlock(t *testing.T) {
	invite := &ical.Invite{Summary: "Planning Sync", Start: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC), Location: "Room 2"}
	b := meetingCalloutBlock(invite)
	if b["type"] != "callout" {
		t.Fatalf("expected type callout, got %v", b["type"])
	}
}

func TestBuildPageBlocks_PlainTextFallback(t *testing.T) {
	parsed := &mimeparse.ParsedMessage{BodyText: "hello world"}
	blocks := buildPageBlocks(parsed, nil, nil, nil)
	if len(blocks) != 1 {
		t.Fatalf("expected one paragraph block for plain-text body, got %d", len(blocks))
	}
	if blocks[0]["type"] != "paragraph" {
		t.Errorf("expected paragraph block, got %v", blocks[0]["type"])
	}
}

func TestBuildPageBlocks_MeetingCalloutPrepended(t *testing.T) {
	parsed := &mimeparse.ParsedMessage{BodyText: "see invite"}
	invite := &ical.Invite{Summary: "Standup"}
	blocks := buildPageBlocks(parsed, nil, nil, []*ical.Invite{invite})
	if len(blocks) != 2 {
		t.Fatalf("expected callout + body block, got %d", len(blocks))
	}
	if blocks[0]["type"] != "callout" {
		t.Errorf("expected callout block first, got %v", blocks[0]["type"])
	}
}

func TestBuildPageBlocks_FileBlocksAppended(t *testing.T) {
	parsed := &mimeparse.ParsedMessage{BodyText: "see attached"}
	files := []notion.Block{fileBlock("report.pdf", "upload-1")}
	blocks := buildPageBlocks(parsed, nil, files, nil)
	if len(blocks) != 2 {
		t.Fatalf("expected body + file block, got %d", len(blocks))
	}
	if blocks[1]["type"] != "file" {
		t.Errorf("expected trailing file block, got %v", blocks[1]["type"])
	}
}
