// Package config loads mailsyncd's static configuration: which mailboxes
// to track, the Notion database to mirror into, and the tunables for the
// Reconciler's poll loop. Unlike the live-editable settings store this is
// adapted from, mailsyncd has one account and one database target, so
// configuration is a struct loaded once at startup rather than a
// key/value table mutated at runtime.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is mailsyncd's full static configuration.
type Config struct {
	// Mailboxes is the fixed set of mailbox names Radar/Arm track. No
	// attempt is made to discover or follow arbitrary folder moves.
	Mailboxes []string `json:"mailboxes"`

	// AccountName is the Mail.app account Arm's AppleScript addresses.
	AccountName string `json:"account_name"`

	// SyncStartDate filters out messages older than this timestamp in the
	// per-message pipeline, after fetch; zero value disables the filter. Messages older than this are
	// marked skipped rather than synced, but remain in SyncStore so later
	// replies can still link to them as thread roots.
	SyncStartDate time.Time `json:"sync_start_date,omitempty"`

	// PollInterval is how often the Reconciler checks Radar for changes.
	PollInterval time.Duration `json:"poll_interval"`

	// ReverseSyncInterval is how often the reverse-sync poller queries the
	// remote database for reviewed pages and applies their read/flag action
	// in Mail.app.
	ReverseSyncInterval time.Duration `json:"reverse_sync_interval"`

	// HealthCheckInterval is loaded but not read by the daemon: the health
	// check (SyncStore and Radar probes) runs from the Reconciler's Tick
	// after consecutive failing ticks, not on its own timer.
	HealthCheckInterval time.Duration `json:"health_check_interval"`

	// MaxRetries is the retry budget before a Message becomes dead_letter.
	MaxRetries int `json:"max_retries"`

	// ApplescriptTimeout bounds every osascript invocation.
	ApplescriptTimeout time.Duration `json:"applescript_timeout"`

	// DisplayTimezone is the canonical timezone a mail page's Date property
	// is converted to before being written to the remote database. Calendar
	// event times are not converted (internal/ical parses them in time.Local).
	DisplayTimezone string `json:"display_timezone"`

	// DatabasePath is the SyncStore SQLite file path.
	DatabasePath string `json:"database_path"`

	// NotionDatabaseID is the target database page ID for mail entries.
	NotionDatabaseID string `json:"notion_database_id"`

	// NotionCalendarDatabaseID is the target database page ID for mirrored
	// calendar events; empty disables calendar mirroring.
	NotionCalendarDatabaseID string `json:"notion_calendar_database_id,omitempty"`

	// Debug enables verbose logging.
	Debug bool `json:"debug"`
}

// Default returns the built-in defaults, used when no config file exists
// yet and as the base that a loaded file's fields are merged onto.
func Default() Config {
	return Config{
		Mailboxes:           []string{"INBOX"},
		AccountName:         "Exchange",
		PollInterval:        5 * time.Second,
		ReverseSyncInterval: 60 * time.Second,
		HealthCheckInterval: 5 * time.Minute,
		MaxRetries:          5,
		ApplescriptTimeout:  200 * time.Second,
		DisplayTimezone:     "UTC",
		DatabasePath:        defaultDatabasePath(),
	}
}

// Load reads configuration from path, falling back to defaults for any
// field the file omits. A missing file is not an error: Default() is
// returned as-is so a fresh install can run before any config is written.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks the config for internal consistency.
func (c Config) Validate() error {
	if len(c.Mailboxes) == 0 {
		return fmt.Errorf("config: at least one mailbox must be configured")
	}
	if c.NotionDatabaseID == "" {
		return fmt.Errorf("config: notion_database_id is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll_interval must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config: max_retries must be non-negative")
	}
	if _, err := time.LoadLocation(c.DisplayTimezone); err != nil {
		return fmt.Errorf("config: invalid display_timezone %q: %w", c.DisplayTimezone, err)
	}
	return nil
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "mailagent.json"
	}
	return filepath.Join(home, "Library", "Application Support", "MailAgent", "config.json")
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "mailagent.db"
	}
	return filepath.Join(home, "Library", "Application Support", "MailAgent", "mailagent.db")
}
