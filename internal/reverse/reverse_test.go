package reverse

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/chenyqthu/mailagent/internal/notion"
	"github.com/chenyqthu/mailagent/internal/store"
)

func TestSelectPropertyName(t *testing.T) {
	page := notion.Page{Properties: map[string]json.RawMessage{
		actionProperty: json.RawMessage(`{"id":"x","type":"select","select":{"name":"Mark Read"}}`),
	}}
	got, err := selectPropertyName(page, actionProperty)
	if err != nil {
		t.Fatalf("selectPropertyName() error = %v", err)
	}
	if got != "Mark Read" {
		t.Errorf("selectPropertyName() = %q, want Mark Read", got)
	}
}

func TestSelectPropertyName_Missing(t *testing.T) {
	page := notion.Page{Properties: map[string]json.RawMessage{}}
	if _, err := selectPropertyName(page, actionProperty); err == nil {
		t.Error("expected error for missing property")
	}
}

func TestRichTextPropertyValue(t *testing.T) {
	page := notion.Page{Properties: map[string]json.RawMessage{
		messageIDProperty: json.RawMessage(`{"id":"y","type":"rich_text","rich_text":[{"plain_text":"<abc@example.com>"}]}`),
	}}
	got, err := richTextPropertyValue(page, messageIDProperty)
	if err != nil {
		t.Fatalf("richTextPropertyValue() error = %v", err)
	}
	if got != "<abc@example.com>" {
		t.Errorf("richTextPropertyValue() = %q", got)
	}
}

func TestReviewedUnsyncedFilter(t *testing.T) {
	filter := reviewedUnsyncedFilter()
	clauses, ok := filter["and"].([]map[string]any)
	if !ok || len(clauses) != 2 {
		t.Fatalf("expected a 2-clause and-filter, got %+v", filter)
	}
}

func TestDispatch_UnrecognizedAction(t *testing.T) {
	p := &Poller{}
	err := p.dispatch(context.Background(), Action("Delete Forever"), store.Message{})
	if err == nil {
		t.Error("expected error for unrecognized AI Action")
	}
}
