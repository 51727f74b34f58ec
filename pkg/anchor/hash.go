package anchor

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EventID derives the deterministic content hash identifying an event
// occurrence. The occurrence time is truncated to the start of its minute
// before hashing, so duplicate submissions for the same subject, type,
// cell and rule inside one minute collapse to the same identifier without
// any caller-supplied idempotency key. The minute bucket is a hashing
// input only; callers report occurred_at at full precision.
//
// The hash input is the raw concatenation
// account || event_type || bucketISO8601 || cell_id || rule_id
// with no separators, rule_id empty for non-rule events.
func EventID(account string, typ EventType, occurredAt time.Time, cellID, ruleID string) string {
	bucket := occurredAt.UTC().Truncate(time.Minute).Format(time.RFC3339)
	h := sha256.New()
	h.Write([]byte(account))
	h.Write([]byte(typ))
	h.Write([]byte(bucket))
	h.Write([]byte(cellID))
	h.Write([]byte(ruleID))
	return hex.EncodeToString(h.Sum(nil))
}
