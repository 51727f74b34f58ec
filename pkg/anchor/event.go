// Package anchor implements the event-boundary anchoring core: it turns
// noisy, frequent, possibly-duplicated location updates into a small,
// deduplicated, deterministically-identified stream of anchor events
// suitable for low-frequency on-chain commitment.
package anchor

import (
	"encoding/json"
	"time"
)

// EventType is the closed set of anchor event kinds.
type EventType string

const (
	EventCellTransition EventType = "CELL_TRANSITION"
	EventRuleTriggered  EventType = "RULE_TRIGGERED"
	EventCheckpoint     EventType = "CHECKPOINT"
)

// ZeroCommitment is the 32-byte all-zero commitment placeholder, reserved
// for attaching off-chain evidence to an event without altering its id.
const ZeroCommitment = "0000000000000000000000000000000000000000000000000000000000000000"

// Subject identifies the tracked entity: a wallet public key plus its
// chain namespace. All keyed state in this package is scoped to it.
type Subject struct {
	Account string `json:"account"`
	Chain   string `json:"chain"`
}

func (s Subject) String() string {
	return s.Chain + ":" + s.Account
}

// Event is a single anchor event surfaced for downstream commitment.
// PrevCellID is set only for CELL_TRANSITION, RuleID only for
// RULE_TRIGGERED.
type Event struct {
	EventID    string    `json:"event_id"`
	EventType  EventType `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	CellID     string    `json:"cell_id"`
	PrevCellID string    `json:"prev_cell_id,omitempty"`
	RuleID     string    `json:"rule_id,omitempty"`
	Commitment string    `json:"commitment"`
	ZKProof    *string   `json:"zk_proof"`
}

// MatchedRule is the summary of an externally-matched rule, echoed back in
// the decision response.
type MatchedRule struct {
	RuleID   string `json:"rule_id"`
	RuleName string `json:"rule_name"`
	RuleType string `json:"rule_type"`
}

// LatLon is a raw coordinate pair.
type LatLon struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Checkpoint is the per-subject heartbeat state: when the last checkpoint
// was taken and in which cell.
type Checkpoint struct {
	At     time.Time `json:"at"`
	CellID string    `json:"cell_id"`
}

// Decision is the outcome of processing one location update.
// NextSuggestedAnchorAfterSecs is present only when no events were emitted
// and checkpoint state exists for the subject.
type Decision struct {
	CellID                       string        `json:"cell_id"`
	MatchedRules                 []MatchedRule `json:"matched_rules"`
	Events                       []Event       `json:"anchor_events"`
	NextSuggestedAnchorAfterSecs *int64        `json:"next_suggested_anchor_after_secs"`
}

// MarshalJSON ensures matched_rules and anchor_events serialize as empty
// arrays rather than null.
func (d Decision) MarshalJSON() ([]byte, error) {
	type alias Decision
	a := alias(d)
	if a.MatchedRules == nil {
		a.MatchedRules = []MatchedRule{}
	}
	if a.Events == nil {
		a.Events = []Event{}
	}
	return json.Marshal(a)
}
