package postgres

import (
	"context"
	"fmt"
)

// schemaStatements create the tables and indexes. seq is a BIGSERIAL so
// concurrent posts never collide; a checkpoint's through_seq refers to it.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS espionox_messages (
		id              TEXT PRIMARY KEY,
		seq             BIGSERIAL NOT NULL,
		thread          TEXT NOT NULL,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL DEFAULT '',
		model_generated BOOLEAN NOT NULL DEFAULT FALSE,
		kind            TEXT NOT NULL DEFAULT '',
		extra           JSONB,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_espionox_messages_thread_seq
		ON espionox_messages (thread, seq)`,
	`CREATE TABLE IF NOT EXISTS espionox_summaries (
		id         TEXT PRIMARY KEY,
		thread     TEXT NOT NULL,
		filepath   TEXT,
		kind       TEXT NOT NULL DEFAULT '',
		content    TEXT NOT NULL,
		embedding  BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_espionox_summaries_thread
		ON espionox_summaries (thread, created_at)`,
	`CREATE TABLE IF NOT EXISTS espionox_checkpoints (
		thread      TEXT PRIMARY KEY,
		through_seq BIGINT NOT NULL,
		messages    JSONB NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}
	return nil
}
