package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/meridian-labs/anchorage/pkg/anchor"
)

// PostgresDedupLedger is the Postgres variant of the returned-event
// ledger, for deployments where multiple processes share the decision
// path. Conditional writes go through ON CONFLICT so concurrent updates
// for the same subject collapse to last-writer-wins.
type PostgresDedupLedger struct {
	db *sql.DB
}

func NewPostgresDedupLedger(db *sql.DB) *PostgresDedupLedger {
	return &PostgresDedupLedger{db: db}
}

// MigratePostgres creates the ledger and checkpoint tables on Postgres.
func MigratePostgres(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS returned_events (
			account TEXT NOT NULL,
			chain TEXT NOT NULL,
			event_id TEXT NOT NULL,
			returned_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (account, chain, event_id)
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			account TEXT NOT NULL,
			chain TEXT NOT NULL,
			checkpointed_at TIMESTAMPTZ NOT NULL,
			cell_id TEXT NOT NULL,
			PRIMARY KEY (account, chain)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
	}
	return nil
}

func (l *PostgresDedupLedger) AlreadyReturned(ctx context.Context, subject anchor.Subject, eventID string, window time.Duration) (bool, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT 1 FROM returned_events
		 WHERE account = $1 AND chain = $2 AND event_id = $3 AND returned_at > $4`,
		subject.Account, subject.Chain, eventID, time.Now().Add(-window),
	)
	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("ledger lookup: %w", err)
	}
	return true, nil
}

func (l *PostgresDedupLedger) Record(ctx context.Context, subject anchor.Subject, eventID string, at time.Time) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO returned_events (account, chain, event_id, returned_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (account, chain, event_id) DO UPDATE SET returned_at = EXCLUDED.returned_at`,
		subject.Account, subject.Chain, eventID, at,
	)
	if err != nil {
		return fmt.Errorf("ledger record: %w", err)
	}
	return nil
}

// Prune removes rows older than the window.
func (l *PostgresDedupLedger) Prune(ctx context.Context, window time.Duration) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM returned_events WHERE returned_at <= $1`,
		time.Now().Add(-window),
	)
	if err != nil {
		return 0, fmt.Errorf("ledger prune: %w", err)
	}
	return res.RowsAffected()
}
