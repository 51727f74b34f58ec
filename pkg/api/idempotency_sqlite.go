package api

import (
	"database/sql"
	"log/slog"
	"time"
)

// SQLiteIdempotencyStore persists idempotency entries in the
// idempotency_keys table so replay survives restarts.
type SQLiteIdempotencyStore struct {
	db     *sql.DB
	ttl    time.Duration
	logger *slog.Logger
}

// NewSQLiteIdempotencyStore creates a SQLite-backed idempotency store.
func NewSQLiteIdempotencyStore(db *sql.DB, ttl time.Duration) *SQLiteIdempotencyStore {
	return &SQLiteIdempotencyStore{
		db:     db,
		ttl:    ttl,
		logger: slog.Default().With("component", "idempotency"),
	}
}

// Check returns a cached response if present and inside the TTL.
// Lookup failures are treated as a miss so ingestion keeps working.
func (s *SQLiteIdempotencyStore) Check(key string) (*CachedResponse, bool) {
	var (
		statusCode int
		body       []byte
		cachedAt   string
	)
	err := s.db.QueryRow(
		`SELECT status_code, body, cached_at FROM idempotency_keys WHERE key = ?`,
		key,
	).Scan(&statusCode, &body, &cachedAt)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("idempotency lookup failed", "error", err)
		return nil, false
	}
	at, err := time.Parse(time.RFC3339Nano, cachedAt)
	if err != nil || time.Since(at) > s.ttl {
		return nil, false
	}
	return &CachedResponse{StatusCode: statusCode, Body: body, CachedAt: at}, true
}

// Set stores a response. Write failures are logged and dropped.
func (s *SQLiteIdempotencyStore) Set(key string, statusCode int, body []byte) {
	_, err := s.db.Exec(
		`INSERT INTO idempotency_keys (key, status_code, body, cached_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   status_code = excluded.status_code,
		   body = excluded.body,
		   cached_at = excluded.cached_at`,
		key, statusCode, body, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		s.logger.Warn("idempotency write failed", "error", err)
	}
}

// Prune deletes entries older than the TTL.
func (s *SQLiteIdempotencyStore) Prune() error {
	cutoff := time.Now().UTC().Add(-s.ttl).Format(time.RFC3339Nano)
	_, err := s.db.Exec(`DELETE FROM idempotency_keys WHERE cached_at < ?`, cutoff)
	return err
}
