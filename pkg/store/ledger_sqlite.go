package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/meridian-labs/anchorage/pkg/anchor"
)

// DedupLedger is the SQLite-backed returned-event ledger. The window is a
// read-time filter; stale rows are ignored and purged opportunistically by
// Prune, never as a correctness requirement.
type DedupLedger struct {
	db *sql.DB
}

func NewDedupLedger(db *sql.DB) *DedupLedger {
	return &DedupLedger{db: db}
}

func (l *DedupLedger) AlreadyReturned(ctx context.Context, subject anchor.Subject, eventID string, window time.Duration) (bool, error) {
	cutoff := formatTime(time.Now().Add(-window))
	row := l.db.QueryRowContext(ctx,
		`SELECT 1 FROM returned_events
		 WHERE account = ? AND chain = ? AND event_id = ? AND returned_at > ?`,
		subject.Account, subject.Chain, eventID, cutoff,
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

// Record upserts the ledger row, refreshing returned_at on conflict.
// Last writer wins.
func (l *DedupLedger) Record(ctx context.Context, subject anchor.Subject, eventID string, at time.Time) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO returned_events (account, chain, event_id, returned_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(account, chain, event_id) DO UPDATE SET returned_at = excluded.returned_at`,
		subject.Account, subject.Chain, eventID, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("ledger record: %w", err)
	}
	return nil
}

// Prune removes rows older than the window. Housekeeping only.
func (l *DedupLedger) Prune(ctx context.Context, window time.Duration) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM returned_events WHERE returned_at <= ?`,
		formatTime(time.Now().Add(-window)),
	)
	if err != nil {
		return 0, fmt.Errorf("ledger prune: %w", err)
	}
	return res.RowsAffected()
}
