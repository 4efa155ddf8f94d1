package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 2

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id              TEXT    PRIMARY KEY,
		thread          TEXT    NOT NULL,
		seq             INTEGER NOT NULL,
		role            TEXT    NOT NULL,
		content         TEXT    NOT NULL DEFAULT '',
		model_generated INTEGER NOT NULL DEFAULT 0,
		kind            TEXT    NOT NULL DEFAULT '',
		extra           TEXT    NOT NULL DEFAULT '{}',
		created_at      TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		UNIQUE (thread, seq)
	)`,

	`CREATE TABLE IF NOT EXISTS summaries (
		id         TEXT PRIMARY KEY,
		thread     TEXT NOT NULL,
		filepath   TEXT,
		kind       TEXT NOT NULL DEFAULT '',
		content    TEXT NOT NULL,
		embedding  BLOB NOT NULL,
		created_at TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_summaries_thread ON summaries(thread, created_at)`,

	// v2: the bounded live view of a thread, as of message seq through_seq.
	`CREATE TABLE IF NOT EXISTS checkpoints (
		thread      TEXT    PRIMARY KEY,
		through_seq INTEGER NOT NULL,
		messages    TEXT    NOT NULL,
		updated_at  TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`,
}

// migrate creates or updates the database schema to the latest version.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}
	return tx.Commit()
}
