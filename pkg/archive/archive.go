// Package archive exports emitted anchor events as content-addressed
// JSON packs for long-term retention outside the serving database.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/meridian-labs/anchorage/pkg/anchor"
)

// EventSource lists emitted events in a half-open time range, oldest
// first.
type EventSource interface {
	ListRange(ctx context.Context, from, to time.Time) ([]anchor.Event, error)
}

// BlobStore persists a pack and returns its content address.
type BlobStore interface {
	Store(ctx context.Context, key string, data []byte) error
}

// Pack is one export unit. PackID is the sha256 of the canonical pack
// bytes with the id field empty, so re-exporting the same range yields
// the same id.
type Pack struct {
	PackID     string         `json:"pack_id"`
	From       time.Time      `json:"from"`
	To         time.Time      `json:"to"`
	EventCount int            `json:"event_count"`
	Events     []anchor.Event `json:"events"`
}

// Exporter bundles event ranges into packs and writes them to a blob
// store.
type Exporter struct {
	source EventSource
	blobs  BlobStore
	logger *slog.Logger
}

// NewExporter wires an exporter.
func NewExporter(source EventSource, blobs BlobStore) *Exporter {
	return &Exporter{
		source: source,
		blobs:  blobs,
		logger: slog.Default().With("component", "archive"),
	}
}

// BuildPack assembles the pack for [from, to) without storing it.
func (e *Exporter) BuildPack(ctx context.Context, from, to time.Time) (*Pack, []byte, error) {
	events, err := e.source.ListRange(ctx, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("list events: %w", err)
	}
	if events == nil {
		events = []anchor.Event{}
	}
	pack := Pack{
		From:       from.UTC(),
		To:         to.UTC(),
		EventCount: len(events),
		Events:     events,
	}

	unaddressed, err := canonicalize(pack)
	if err != nil {
		return nil, nil, err
	}
	sum := sha256.Sum256(unaddressed)
	pack.PackID = hex.EncodeToString(sum[:])

	body, err := canonicalize(pack)
	if err != nil {
		return nil, nil, err
	}
	return &pack, body, nil
}

// Export builds and stores the pack for [from, to), returning the pack
// id. The blob key is "packs/<pack_id>.json".
func (e *Exporter) Export(ctx context.Context, from, to time.Time) (string, error) {
	pack, body, err := e.BuildPack(ctx, from, to)
	if err != nil {
		return "", err
	}
	key := "packs/" + pack.PackID + ".json"
	if err := e.blobs.Store(ctx, key, body); err != nil {
		return "", fmt.Errorf("store pack: %w", err)
	}
	e.logger.InfoContext(ctx, "pack exported",
		"pack_id", pack.PackID, "events", pack.EventCount,
		"from", pack.From, "to", pack.To)
	return pack.PackID, nil
}

func canonicalize(pack Pack) ([]byte, error) {
	raw, err := json.Marshal(pack)
	if err != nil {
		return nil, fmt.Errorf("marshal pack: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize pack: %w", err)
	}
	return canonical, nil
}
