package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/meridian-labs/anchorage/pkg/anchor"
)

// EventStore persists every anchor event the assembler surfaced. This is
// the stream downstream anchoring consumers, webhook fan-out and the
// archive exporter read from.
type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

// Insert stores an emitted event. A replayed event id (ledger raced and
// missed it) is ignored rather than erroring; cheap re-anchoring is
// non-fatal by contract.
func (s *EventStore) Insert(ctx context.Context, subject anchor.Subject, ev anchor.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO anchor_events (event_id, account, chain, event_type,
			occurred_at, cell_id, prev_cell_id, rule_id, commitment)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(event_id) DO NOTHING`,
		ev.EventID, subject.Account, subject.Chain, string(ev.EventType),
		formatTime(ev.OccurredAt), ev.CellID, ev.PrevCellID, ev.RuleID, ev.Commitment,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListBySubject returns a subject's emitted events, newest first.
func (s *EventStore) ListBySubject(ctx context.Context, subject anchor.Subject, limit int) ([]anchor.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, event_type, occurred_at, cell_id, prev_cell_id, rule_id, commitment
		 FROM anchor_events
		 WHERE account = ? AND chain = ?
		 ORDER BY occurred_at DESC LIMIT ?`,
		subject.Account, subject.Chain, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanEvents(rows)
}

// ListRange returns all events in [from, to), oldest first, for export.
func (s *EventStore) ListRange(ctx context.Context, from, to time.Time) ([]anchor.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, event_type, occurred_at, cell_id, prev_cell_id, rule_id, commitment
		 FROM anchor_events
		 WHERE occurred_at >= ? AND occurred_at < ?
		 ORDER BY occurred_at`,
		formatTime(from), formatTime(to),
	)
	if err != nil {
		return nil, fmt.Errorf("list event range: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]anchor.Event, error) {
	var out []anchor.Event
	for rows.Next() {
		var ev anchor.Event
		var typ, occurred string
		if err := rows.Scan(&ev.EventID, &typ, &occurred, &ev.CellID,
			&ev.PrevCellID, &ev.RuleID, &ev.Commitment); err != nil {
			return nil, err
		}
		ev.EventType = anchor.EventType(typ)
		ev.OccurredAt = parseTime(occurred)
		out = append(out, ev)
	}
	return out, rows.Err()
}
