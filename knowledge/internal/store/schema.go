package store

import (
	"context"
	"database/sql"
)

// Schema is the DDL for the knowledge database. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS sources (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	description        TEXT NOT NULL DEFAULT '',
	content            TEXT NOT NULL DEFAULT '',
	keywords           TEXT NOT NULL DEFAULT '[]',
	category           TEXT NOT NULL DEFAULT '',
	priority           INTEGER NOT NULL DEFAULT 0,
	language           TEXT NOT NULL DEFAULT 'both'
		CHECK (language IN ('sv','en','both')),
	is_active          INTEGER NOT NULL DEFAULT 1,
	last_trained       INTEGER,
	created_at         INTEGER NOT NULL,
	updated_at         INTEGER NOT NULL,
	created_by         TEXT NOT NULL DEFAULT '',
	source_type        TEXT NOT NULL DEFAULT 'internal'
		CHECK (source_type IN ('internal','external','forum','webpage','api')),
	source_url         TEXT NOT NULL DEFAULT '',
	fetch_frequency    TEXT NOT NULL DEFAULT 'manual'
		CHECK (fetch_frequency IN ('manual','daily','weekly','monthly')),
	last_fetched       INTEGER,
	fetch_status       TEXT NOT NULL DEFAULT 'pending'
		CHECK (fetch_status IN ('pending','success','failed','disabled')),
	fetch_error        TEXT,
	auto_fetch         INTEGER NOT NULL DEFAULT 0,
	content_selector   TEXT NOT NULL DEFAULT '',
	max_content_length INTEGER NOT NULL DEFAULT 10000,
	requires_auth      INTEGER NOT NULL DEFAULT 0,
	auth_config        TEXT
);

CREATE INDEX IF NOT EXISTS idx_sources_order ON sources(priority, created_at);
CREATE INDEX IF NOT EXISTS idx_sources_type ON sources(source_type);

CREATE TABLE IF NOT EXISTS fetch_history (
	id                TEXT PRIMARY KEY,
	source_id         TEXT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
	fetched_at        INTEGER NOT NULL,
	status            TEXT NOT NULL CHECK (status IN ('success','failed','partial')),
	content_length    INTEGER,
	error_message     TEXT,
	fetch_duration_ms INTEGER,
	content_hash      TEXT
);

CREATE INDEX IF NOT EXISTS idx_fetch_history_source ON fetch_history(source_id, fetched_at DESC);
`

// ApplySchema creates all tables and indexes.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}
