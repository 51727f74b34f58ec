package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/meridian-labs/anchorage/pkg/anchor"
)

// CheckpointStore holds one heartbeat row per subject in SQLite.
type CheckpointStore struct {
	db *sql.DB
}

func NewCheckpointStore(db *sql.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

func (s *CheckpointStore) Load(ctx context.Context, subject anchor.Subject) (*anchor.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT checkpointed_at, cell_id FROM checkpoints
		 WHERE account = ? AND chain = ?`,
		subject.Account, subject.Chain,
	)
	var at, cell string
	if err := row.Scan(&at, &cell); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint load: %w", err)
	}
	return &anchor.Checkpoint{At: parseTime(at), CellID: cell}, nil
}

// Save upserts the subject's checkpoint row; last writer wins.
func (s *CheckpointStore) Save(ctx context.Context, subject anchor.Subject, cp anchor.Checkpoint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (account, chain, checkpointed_at, cell_id)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(account, chain) DO UPDATE SET
			checkpointed_at = excluded.checkpointed_at,
			cell_id = excluded.cell_id`,
		subject.Account, subject.Chain, formatTime(cp.At), cp.CellID,
	)
	if err != nil {
		return fmt.Errorf("checkpoint save: %w", err)
	}
	return nil
}
