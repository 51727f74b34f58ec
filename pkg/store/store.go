// Package store persists the anchoring core's keyed state: raw location
// submissions, rule definitions, the dedup ledger, per-subject checkpoint
// state, and the stream of emitted anchor events. SQLite is the primary
// backend; the ledger and checkpoint stores also ship Postgres and Redis
// variants for multi-process deployments.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Open opens (and creates if missing) the SQLite database at path.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// Single writer; avoids SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)
	return db, nil
}

// Migrate creates all tables. Safe to run repeatedly.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS locations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account TEXT NOT NULL,
			chain TEXT NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			recorded_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_locations_subject
			ON locations(account, chain, id)`,
		`CREATE TABLE IF NOT EXISTS rules (
			rule_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			rule_type TEXT NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			radius_m REAL NOT NULL,
			condition TEXT NOT NULL DEFAULT '',
			webhook_url TEXT NOT NULL DEFAULT '',
			webhook_secret TEXT NOT NULL DEFAULT '',
			active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS returned_events (
			account TEXT NOT NULL,
			chain TEXT NOT NULL,
			event_id TEXT NOT NULL,
			returned_at DATETIME NOT NULL,
			PRIMARY KEY (account, chain, event_id)
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			account TEXT NOT NULL,
			chain TEXT NOT NULL,
			checkpointed_at DATETIME NOT NULL,
			cell_id TEXT NOT NULL,
			PRIMARY KEY (account, chain)
		)`,
		`CREATE TABLE IF NOT EXISTS anchor_events (
			event_id TEXT PRIMARY KEY,
			account TEXT NOT NULL,
			chain TEXT NOT NULL,
			event_type TEXT NOT NULL,
			occurred_at DATETIME NOT NULL,
			cell_id TEXT NOT NULL,
			prev_cell_id TEXT NOT NULL DEFAULT '',
			rule_id TEXT NOT NULL DEFAULT '',
			commitment TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_anchor_events_subject
			ON anchor_events(account, chain, occurred_at)`,
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
			key TEXT PRIMARY KEY,
			status_code INTEGER NOT NULL,
			body BLOB NOT NULL,
			cached_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
