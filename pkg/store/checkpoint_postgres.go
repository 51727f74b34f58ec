package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/meridian-labs/anchorage/pkg/anchor"
)

// PostgresCheckpointStore is the Postgres variant of the per-subject
// heartbeat store.
type PostgresCheckpointStore struct {
	db *sql.DB
}

func NewPostgresCheckpointStore(db *sql.DB) *PostgresCheckpointStore {
	return &PostgresCheckpointStore{db: db}
}

func (s *PostgresCheckpointStore) Load(ctx context.Context, subject anchor.Subject) (*anchor.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT checkpointed_at, cell_id FROM checkpoints
		 WHERE account = $1 AND chain = $2`,
		subject.Account, subject.Chain,
	)
	var at time.Time
	var cell string
	if err := row.Scan(&at, &cell); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint load: %w", err)
	}
	return &anchor.Checkpoint{At: at, CellID: cell}, nil
}

func (s *PostgresCheckpointStore) Save(ctx context.Context, subject anchor.Subject, cp anchor.Checkpoint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (account, chain, checkpointed_at, cell_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (account, chain) DO UPDATE SET
			checkpointed_at = EXCLUDED.checkpointed_at,
			cell_id = EXCLUDED.cell_id`,
		subject.Account, subject.Chain, cp.At, cp.CellID,
	)
	if err != nil {
		return fmt.Errorf("checkpoint save: %w", err)
	}
	return nil
}
