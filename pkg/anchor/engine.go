package anchor

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/meridian-labs/anchorage/pkg/geocell"
)

// LocationSource serves the most recent prior coordinate for a subject.
// A first-time subject yields (nil, nil), never an error.
type LocationSource interface {
	PreviousLocation(ctx context.Context, subject Subject) (*LatLon, error)
}

// Ledger tracks event ids already surfaced to callers within a trailing
// window. Record is an upsert keyed by (subject, event_id) that refreshes
// the returned-at time; membership and record need not be one transaction.
type Ledger interface {
	AlreadyReturned(ctx context.Context, subject Subject, eventID string, window time.Duration) (bool, error)
	Record(ctx context.Context, subject Subject, eventID string, at time.Time) error
}

// CheckpointStore holds one heartbeat row per subject. Load yields
// (nil, nil) when no checkpoint exists yet. Save is an upsert; last writer
// wins.
type CheckpointStore interface {
	Load(ctx context.Context, subject Subject) (*Checkpoint, error)
	Save(ctx context.Context, subject Subject, cp Checkpoint) error
}

// Config carries the process-wide decision knobs. There are no
// per-request overrides.
type Config struct {
	// Precision is the quantization grid step in degrees.
	Precision float64
	// DedupWindow is the trailing window inside which an already-returned
	// event id is suppressed.
	DedupWindow time.Duration
	// CheckpointInterval is the heartbeat cadence.
	CheckpointInterval time.Duration
}

// DefaultConfig returns the stock knobs: 0.001 degree grid, one hour dedup
// window, five minute checkpoint interval.
func DefaultConfig() Config {
	return Config{
		Precision:          geocell.DefaultPrecision,
		DedupWindow:        time.Hour,
		CheckpointInterval: 5 * time.Minute,
	}
}

// Update is one location submission for a subject, together with the
// externally-evaluated matched rules. The rule list order is treated as
// ground truth; callers must keep it stable.
type Update struct {
	Subject      Subject
	Latitude     float64
	Longitude    float64
	MatchedRules []MatchedRule
}

// Engine is the anchoring decision core. It is pure decision logic over
// caller-supplied collaborators; every collaborator failure degrades to
// its safest default and the update still completes.
type Engine struct {
	cfg         Config
	locations   LocationSource
	ledger      Ledger
	checkpoints CheckpointStore
	logger      *slog.Logger
	clock       func() time.Time
}

// NewEngine wires the decision core to its collaborators.
func NewEngine(cfg Config, locations LocationSource, ledger Ledger, checkpoints CheckpointStore) *Engine {
	if cfg.Precision <= 0 {
		cfg.Precision = geocell.DefaultPrecision
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = time.Hour
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	return &Engine{
		cfg:         cfg,
		locations:   locations,
		ledger:      ledger,
		checkpoints: checkpoints,
		logger:      slog.Default().With("component", "anchor"),
		clock:       time.Now,
	}
}

// WithClock overrides the clock for testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Decide processes one location update and returns the ordered set of
// anchor events to surface: transitions first, then rule triggers in input
// order, then at most one checkpoint, all filtered through the dedup
// ledger. Decide never fails on collaborator errors; in the worst case the
// response still carries the cell id with no events.
func (e *Engine) Decide(ctx context.Context, u Update) Decision {
	now := e.clock()
	cellID := geocell.Quantize(u.Latitude, u.Longitude, e.cfg.Precision)

	var candidates []Event

	// Cell transition: requires a previous cell that differs from the
	// current one. A failed lookup means "no previous cell": fail open
	// toward not emitting a transition.
	prev, err := e.locations.PreviousLocation(ctx, u.Subject)
	if err != nil {
		e.logger.WarnContext(ctx, "previous location lookup failed, treating as first-time subject",
			"subject", u.Subject.String(), "error", err)
		prev = nil
	}
	if prev != nil {
		prevCell := geocell.Quantize(prev.Latitude, prev.Longitude, e.cfg.Precision)
		if prevCell != cellID {
			candidates = append(candidates, Event{
				EventID:    EventID(u.Subject.Account, EventCellTransition, now, cellID, ""),
				EventType:  EventCellTransition,
				OccurredAt: now,
				CellID:     cellID,
				PrevCellID: prevCell,
				Commitment: ZeroCommitment,
			})
		}
	}

	// Rule triggers: one candidate per matched rule, input order kept.
	// Temporal repeats are the ledger's business; same-minute repeats
	// collapse to the same event id by construction.
	for _, mr := range u.MatchedRules {
		candidates = append(candidates, Event{
			EventID:    EventID(u.Subject.Account, EventRuleTriggered, now, cellID, mr.RuleID),
			EventType:  EventRuleTriggered,
			OccurredAt: now,
			CellID:     cellID,
			RuleID:     mr.RuleID,
			Commitment: ZeroCommitment,
		})
	}

	cpState, cpOK := e.checkpointStep(ctx, u.Subject, cellID, now, len(candidates) > 0, &candidates)

	final := e.filter(ctx, u.Subject, now, candidates)

	d := Decision{
		CellID:       cellID,
		MatchedRules: u.MatchedRules,
		Events:       final,
	}
	if len(final) == 0 && cpOK && cpState != nil {
		elapsed := now.Sub(cpState.At)
		secs := int64(math.Ceil((e.cfg.CheckpointInterval - elapsed).Seconds()))
		if secs < 0 {
			secs = 0
		}
		d.NextSuggestedAnchorAfterSecs = &secs
	}
	return d
}

// checkpointStep runs the heartbeat state machine after transition/rule
// candidates are known. It returns the checkpoint state as of the end of
// this update and whether checkpoint storage was usable at all. When
// storage is unavailable the whole step is skipped with no checkpoint
// and no error; the primary write path never depends on heartbeat
// bookkeeping.
func (e *Engine) checkpointStep(ctx context.Context, subject Subject, cellID string, now time.Time, hasActive bool, candidates *[]Event) (*Checkpoint, bool) {
	state, err := e.checkpoints.Load(ctx, subject)
	if err != nil {
		e.logger.WarnContext(ctx, "checkpoint state unavailable, skipping heartbeat logic",
			"subject", subject.String(), "error", err)
		return nil, false
	}

	next := Checkpoint{At: now, CellID: cellID}

	if hasActive {
		// An active event already proves liveness; suppress the
		// checkpoint but reset the clock so one does not fire right
		// after.
		if err := e.checkpoints.Save(ctx, subject, next); err != nil {
			e.logger.WarnContext(ctx, "checkpoint reset failed",
				"subject", subject.String(), "error", err)
			return state, state != nil
		}
		return &next, true
	}

	due := state == nil || now.Sub(state.At) >= e.cfg.CheckpointInterval
	if !due {
		return state, true
	}

	if err := e.checkpoints.Save(ctx, subject, next); err != nil {
		e.logger.WarnContext(ctx, "checkpoint save failed, skipping heartbeat",
			"subject", subject.String(), "error", err)
		return state, state != nil
	}
	*candidates = append(*candidates, Event{
		EventID:    EventID(subject.Account, EventCheckpoint, now, cellID, ""),
		EventType:  EventCheckpoint,
		OccurredAt: now,
		CellID:     cellID,
		Commitment: ZeroCommitment,
	})
	return &next, true
}

// filter drops candidates already surfaced inside the dedup window and
// records the survivors. An unavailable ledger skips filtering entirely:
// a potential duplicate beats a blocked update.
func (e *Engine) filter(ctx context.Context, subject Subject, now time.Time, candidates []Event) []Event {
	final := make([]Event, 0, len(candidates))
	for _, ev := range candidates {
		seen, err := e.ledger.AlreadyReturned(ctx, subject, ev.EventID, e.cfg.DedupWindow)
		if err != nil {
			e.logger.WarnContext(ctx, "dedup ledger lookup failed, emitting unfiltered",
				"subject", subject.String(), "event_id", ev.EventID, "error", err)
			final = append(final, ev)
			continue
		}
		if seen {
			continue
		}
		if err := e.ledger.Record(ctx, subject, ev.EventID, now); err != nil {
			e.logger.WarnContext(ctx, "dedup ledger record failed",
				"subject", subject.String(), "event_id", ev.EventID, "error", err)
		}
		final = append(final, ev)
	}
	return final
}
