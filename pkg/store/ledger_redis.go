package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridian-labs/anchorage/pkg/anchor"
)

// redisRecordScript upserts a ledger entry and refreshes its TTL in one
// round trip.
// KEYS[1] = ledger entry key
// ARGV[1] = window in seconds
var redisRecordScript = redis.NewScript(`
redis.call("SET", KEYS[1], "1")
redis.call("EXPIRE", KEYS[1], tonumber(ARGV[1]))
return 1
`)

// RedisDedupLedger keeps the returned-event ledger in Redis. The dedup
// window maps directly onto key TTLs, so expiry does both the read-time
// window filtering and the pruning.
type RedisDedupLedger struct {
	client *redis.Client
	window time.Duration
}

// NewRedisDedupLedger connects a ledger to the Redis instance at addr.
// The window is the TTL applied to recorded entries.
func NewRedisDedupLedger(addr, password string, db int, window time.Duration) *RedisDedupLedger {
	if window <= 0 {
		window = time.Hour
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisDedupLedger{client: rdb, window: window}
}

func ledgerKey(subject anchor.Subject, eventID string) string {
	return fmt.Sprintf("ledger:%s:%s:%s", subject.Chain, subject.Account, eventID)
}

func (l *RedisDedupLedger) AlreadyReturned(ctx context.Context, subject anchor.Subject, eventID string, _ time.Duration) (bool, error) {
	n, err := l.client.Exists(ctx, ledgerKey(subject, eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis ledger lookup: %w", err)
	}
	return n > 0, nil
}

// Record upserts the entry with the window TTL. The emission time is
// implicit: Redis owns expiry.
func (l *RedisDedupLedger) Record(ctx context.Context, subject anchor.Subject, eventID string, _ time.Time) error {
	secs := int64(l.window / time.Second)
	if err := redisRecordScript.Run(ctx, l.client, []string{ledgerKey(subject, eventID)}, secs).Err(); err != nil {
		return fmt.Errorf("redis ledger record: %w", err)
	}
	return nil
}

// Ping verifies connectivity.
func (l *RedisDedupLedger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
