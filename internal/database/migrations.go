package database

// Migration represents a database migration
type Migration struct {
	Version int
	SQL     string
}

// migrations is the list of all database migrations applied to mailsyncd's
// local SyncStore database.
var migrations = []Migration{
	{
		Version: 1,
		SQL: `
			-- Messages table: one row per local-store message mailsyncd has
			-- ever seen. internal_id is the local mail store's own row id —
			-- stable for the life of the message on this host, never sent
			-- to the remote side.
			CREATE TABLE messages (
				internal_id INTEGER PRIMARY KEY,
				message_id TEXT UNIQUE,
				thread_id TEXT,

				-- Metadata cache, filled in by update_after_fetch
				subject TEXT,
				sender TEXT,
				sender_name TEXT,
				to_addr TEXT,
				cc_addr TEXT,
				date_received DATETIME,
				mailbox TEXT NOT NULL,
				is_read INTEGER NOT NULL DEFAULT 0,
				is_flagged INTEGER NOT NULL DEFAULT 0,

				-- Lifecycle
				sync_status TEXT NOT NULL DEFAULT 'pending',
				notion_page_id TEXT,
				sync_error TEXT,
				retry_count INTEGER NOT NULL DEFAULT 0,
				next_retry_at DATETIME,

				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE INDEX idx_messages_thread ON messages(thread_id);
			CREATE INDEX idx_messages_date_received ON messages(date_received);
			CREATE INDEX idx_messages_status_retry ON messages(sync_status, next_retry_at);
			CREATE INDEX idx_messages_mailbox ON messages(mailbox);
			CREATE INDEX idx_messages_status ON messages(sync_status);

			-- Key/value sync state: last_max_row_id, last_sync_time, db_version.
			CREATE TABLE sync_state (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			);

			INSERT INTO sync_state (key, value) VALUES ('last_max_row_id', '0');
			INSERT INTO sync_state (key, value) VALUES ('last_sync_time', '');
			INSERT INTO sync_state (key, value) VALUES ('db_version', '1');

			-- Negative cache of thread roots Arm could not find, so the
			-- Thread Manager stops re-asking for ones that have vanished
			-- from the local store.
			CREATE TABLE thread_head_cache (
				thread_id TEXT PRIMARY KEY,
				status TEXT NOT NULL DEFAULT 'not_found',
				checked_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				note TEXT
			);
		`,
	},
}
