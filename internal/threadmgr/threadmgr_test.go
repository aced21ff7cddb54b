package threadmgr

import (
	"testing"
)

func TestDedupeExcluding(t *testing.T) {
	got := dedupeExcluding([]string{"a", "b", "a", "c", ""}, "b")
	want := []string{"a", "c"}
	if len(got) != len(want) {
		t.Fatalf("dedupeExcluding() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dedupeExcluding()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRelationValue(t *testing.T) {
	v := relationValue([]string{"p1", "p2"})
	rel, ok := v["relation"].([]map[string]any)
	if !ok {
		t.Fatalf("expected relation key holding a slice, got %T", v["relation"])
	}
	if len(rel) != 2 || rel[0]["id"] != "p1" || rel[1]["id"] != "p2" {
		t.Errorf("relationValue() = %+v", rel)
	}
}

func TestRelationValue_Empty(t *testing.T) {
	v := relationValue(nil)
	rel := v["relation"].([]map[string]any)
	if len(rel) != 0 {
		t.Errorf("expected empty relation slice, got %+v", rel)
	}
}

func TestParseDatePropertyJSON(t *testing.T) {
	raw := []byte(`{"id":"abc","type":"date","date":{"start":"2026-03-15T09:00:00+08:00"}}`)
	got, err := parseDatePropertyJSON(raw)
	if err != nil {
		t.Fatalf("parseDatePropertyJSON() error = %v", err)
	}
	if got.IsZero() {
		t.Error("expected non-zero time")
	}
}

func TestParseDatePropertyJSON_MissingStart(t *testing.T) {
	raw := []byte(`{"type":"date","date":{}}`)
	if _, err := parseDatePropertyJSON(raw); err == nil {
		t.Error("expected error for missing start value")
	}
}
