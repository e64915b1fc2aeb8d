package store

// SchemaVersion is the current schema version. Version 1 introduced the
// events/FTS5/snapshots/hook_state tables; version 2 added the embedding
// column for tier-2 vector search.
const SchemaVersion = 2

const schemaDDL = `
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL DEFAULT '',
	project TEXT NOT NULL DEFAULT '',
	git_branch TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}',
	salience REAL NOT NULL DEFAULT 0.5,
	confidence REAL NOT NULL DEFAULT 1.0,
	created_at TEXT NOT NULL,
	accessed_at TEXT NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0,
	immortal INTEGER NOT NULL DEFAULT 0,
	provenance TEXT NOT NULL DEFAULT '',
	embedding BLOB DEFAULT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
CREATE INDEX IF NOT EXISTS idx_events_immortal ON events(immortal) WHERE immortal = 1;
CREATE INDEX IF NOT EXISTS idx_events_git_branch ON events(git_branch);
CREATE INDEX IF NOT EXISTS idx_events_session_id ON events(session_id);
CREATE INDEX IF NOT EXISTS idx_events_salience ON events(salience DESC);
CREATE INDEX IF NOT EXISTS idx_events_content_hash ON events(type, substr(content, 1, 100), session_id);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL,
	description TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	git_branch TEXT NOT NULL DEFAULT '',
	briefing_markdown TEXT NOT NULL,
	event_ids TEXT NOT NULL,
	last_event_id TEXT NOT NULL,
	created_at TEXT NOT NULL,
	expires_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_branch ON snapshots(git_branch, created_at DESC);

CREATE TABLE IF NOT EXISTS hook_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const fts5DDL = `
CREATE VIRTUAL TABLE events_fts USING fts5(
	content,
	content='events',
	content_rowid='rowid'
);

CREATE TRIGGER events_fts_ai AFTER INSERT ON events BEGIN
	INSERT INTO events_fts(rowid, content) VALUES (new.rowid, new.content);
END;

CREATE TRIGGER events_fts_ad AFTER DELETE ON events BEGIN
	INSERT INTO events_fts(events_fts, rowid, content) VALUES('delete', old.rowid, old.content);
END;

CREATE TRIGGER events_fts_au AFTER UPDATE ON events BEGIN
	INSERT INTO events_fts(events_fts, rowid, content) VALUES('delete', old.rowid, old.content);
	INSERT INTO events_fts(rowid, content) VALUES (new.rowid, new.content);
END;
`
