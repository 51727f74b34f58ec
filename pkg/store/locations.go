package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/meridian-labs/anchorage/pkg/anchor"
)

// LocationStore persists raw coordinate submissions and serves the
// previous-location lookup for the transition detector.
type LocationStore struct {
	db *sql.DB
}

func NewLocationStore(db *sql.DB) *LocationStore {
	return &LocationStore{db: db}
}

// Append records a raw location submission for a subject.
func (s *LocationStore) Append(ctx context.Context, subject anchor.Subject, lat, lon float64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO locations (account, chain, latitude, longitude, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		subject.Account, subject.Chain, lat, lon, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("append location: %w", err)
	}
	return nil
}

// PreviousLocation returns the most recent stored coordinate for a
// subject, or (nil, nil) for a first-time subject. Callers must look up
// before appending the current update.
func (s *LocationStore) PreviousLocation(ctx context.Context, subject anchor.Subject) (*anchor.LatLon, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT latitude, longitude FROM locations
		 WHERE account = ? AND chain = ?
		 ORDER BY id DESC LIMIT 1`,
		subject.Account, subject.Chain,
	)
	var ll anchor.LatLon
	if err := row.Scan(&ll.Latitude, &ll.Longitude); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("previous location: %w", err)
	}
	return &ll, nil
}

// LocationRecord is one raw history row.
type LocationRecord struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RecordedAt time.Time `json:"recorded_at"`
}

// History returns the most recent submissions for a subject, newest first.
func (s *LocationStore) History(ctx context.Context, subject anchor.Subject, limit int) ([]LocationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT latitude, longitude, recorded_at FROM locations
		 WHERE account = ? AND chain = ?
		 ORDER BY id DESC LIMIT ?`,
		subject.Account, subject.Chain, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("location history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []LocationRecord
	for rows.Next() {
		var rec LocationRecord
		var recorded string
		if err := rows.Scan(&rec.Latitude, &rec.Longitude, &recorded); err != nil {
			return nil, err
		}
		rec.RecordedAt = parseTime(recorded)
		out = append(out, rec)
	}
	return out, rows.Err()
}
