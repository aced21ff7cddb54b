package reconcile

import (
	"testing"
	"time"

	"github.com/chenyqthu/mailagent/internal/arm"
)

func TestSplitAddress(t *testing.T) {
	cases := []struct {
		raw      string
		wantName string
		wantAddr string
	}{
		{`"Jane Doe" <jane@example.com>`, "Jane Doe", "jane@example.com"},
		{"jane@example.com", "", "jane@example.com"},
		{"", "", ""},
		{"not an address at all", "", "not an address at all"},
	}
	for _, c := range cases {
		name, addr := splitAddress(c.raw)
		if name != c.wantName || addr != c.wantAddr {
			t.Errorf("splitAddress(%q) = (%q, %q), want (%q, %q)", c.raw, name, addr, c.wantName, c.wantAddr)
		}
	}
}

func TestBuildProperties_RequiredFields(t *testing.T) {
	f := arm.FetchResult{
		MessageID:    "<abc@example.com>",
		Subject:      "Quarterly Numbers",
		Sender:       `"Jane Doe" <jane@example.com>`,
		ToAddr:       "team@example.com",
		DateReceived: time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC),
		ThreadID:     "<root@example.com>",
		IsRead:       true,
	}

	props := buildProperties(f, "INBOX", true, nil, nil)

	if _, ok := props[subjectProperty]; !ok {
		t.Error("expected Subject property to be set")
	}
	if _, ok := props[fromProperty]; !ok {
		t.Error("expected From property to be set")
	}
	if _, ok := props[fromNameProperty]; !ok {
		t.Error("expected From Name property to be set when sender has a display name")
	}
	if _, ok := props[messageIDPropertyName]; !ok {
		t.Error("expected Message ID property to be set")
	}
	if _, ok := props[threadIDProperty]; !ok {
		t.Error("expected Thread ID property to be set")
	}
	if props[isReadProperty] != true {
		t.Errorf("Is Read = %v, want true", props[isReadProperty])
	}
	if props[hasAttachmentsProperty] != true {
		t.Errorf("Has Attachments = %v, want true", props[hasAttachmentsProperty])
	}
	if _, ok := props[calendarEventsProperty]; ok {
		t.Error("expected no Calendar Events property when no calendar pages were produced")
	}
}

func TestBuildProperties_CalendarRelation(t *testing.T) {
	f := arm.FetchResult{MessageID: "<m@example.com>", Sender: "jane@example.com"}
	props := buildProperties(f, "INBOX", false, []string{"page-1", "page-2"}, nil)

	rel, ok := props[calendarEventsProperty].(map[string]any)
	if !ok {
		t.Fatalf("expected Calendar Events to be a relation map, got %T", props[calendarEventsProperty])
	}
	ids := rel["relation"].([]map[string]any)
	if len(ids) != 2 {
		t.Errorf("expected 2 related pages, got %d", len(ids))
	}
}

func TestTruncateProperty(t *testing.T) {
	long := make([]byte, 2500)
	for i := range long {
		long[i] = 'x'
	}
	got := truncateProperty(string(long))
	if len(got) != 2000 {
		t.Errorf("truncateProperty() length = %d, want 2000", len(got))
	}
}
