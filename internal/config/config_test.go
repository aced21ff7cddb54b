package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Mailboxes) != 1 || cfg.Mailboxes[0] != "INBOX" {
		t.Errorf("expected default mailboxes, got %v", cfg.Mailboxes)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("expected default MaxRetries=5, got %d", cfg.MaxRetries)
	}
}

func TestLoad_MergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data, _ := json.Marshal(map[string]any{
		"mailboxes":          []string{"INBOX", "Sent"},
		"notion_database_id": "db-123",
	})
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Mailboxes) != 2 {
		t.Errorf("expected 2 mailboxes, got %v", cfg.Mailboxes)
	}
	if cfg.NotionDatabaseID != "db-123" {
		t.Errorf("expected notion_database_id db-123, got %q", cfg.NotionDatabaseID)
	}
	// Fields not present in the file should retain their defaults.
	if cfg.PollInterval == 0 {
		t.Errorf("expected default poll interval to survive merge")
	}
}

func TestValidate_RequiresMailboxesAndDatabaseID(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing notion_database_id")
	}

	cfg.NotionDatabaseID = "db-1"
	cfg.Mailboxes = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty mailboxes")
	}
}

func TestValidate_RejectsBadTimezone(t *testing.T) {
	cfg := Default()
	cfg.NotionDatabaseID = "db-1"
	cfg.DisplayTimezone = "Not/A_Zone"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}
