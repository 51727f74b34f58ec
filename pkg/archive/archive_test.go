package archive

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-labs/anchorage/pkg/anchor"
)

type staticSource struct {
	events []anchor.Event
}

func (s *staticSource) ListRange(_ context.Context, _, _ time.Time) ([]anchor.Event, error) {
	return s.events, nil
}

type memBlobs struct {
	stored map[string][]byte
}

func (m *memBlobs) Store(_ context.Context, key string, data []byte) error {
	if m.stored == nil {
		m.stored = map[string][]byte{}
	}
	m.stored[key] = data
	return nil
}

func sampleEvents() []anchor.Event {
	at := time.Date(2026, 3, 14, 15, 9, 0, 0, time.UTC)
	return []anchor.Event{
		{EventID: "e1", EventType: anchor.EventCheckpoint, OccurredAt: at,
			CellID: "34.051000_-118.244000", Commitment: anchor.ZeroCommitment},
		{EventID: "e2", EventType: anchor.EventCellTransition, OccurredAt: at.Add(time.Minute),
			CellID: "34.052000_-118.244000", PrevCellID: "34.051000_-118.244000",
			Commitment: anchor.ZeroCommitment},
	}
}

func TestExportIsContentAddressed(t *testing.T) {
	src := &staticSource{events: sampleEvents()}
	from := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	blobs := &memBlobs{}
	ex := NewExporter(src, blobs)

	id1, err := ex.Export(context.Background(), from, to)
	require.NoError(t, err)
	id2, err := ex.Export(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64)
	require.Len(t, blobs.stored, 1)

	body := blobs.stored["packs/"+id1+".json"]
	require.NotNil(t, body)
	var pack Pack
	require.NoError(t, json.Unmarshal(body, &pack))
	assert.Equal(t, id1, pack.PackID)
	assert.Equal(t, 2, pack.EventCount)
	require.Len(t, pack.Events, 2)
	assert.Equal(t, "e1", pack.Events[0].EventID)
}

func TestDifferentContentDifferentPackID(t *testing.T) {
	from := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	ex1 := NewExporter(&staticSource{events: sampleEvents()}, &memBlobs{})
	ex2 := NewExporter(&staticSource{events: sampleEvents()[:1]}, &memBlobs{})

	id1, err := ex1.Export(context.Background(), from, to)
	require.NoError(t, err)
	id2, err := ex2.Export(context.Background(), from, to)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestEmptyRangeStillPacks(t *testing.T) {
	ex := NewExporter(&staticSource{}, &memBlobs{})
	from := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	pack, body, err := ex.BuildPack(context.Background(), from, from.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, pack.EventCount)
	assert.NotEmpty(t, pack.PackID)
	assert.Contains(t, string(body), `"events":[]`)
}

func TestFileStoreWritesPack(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir)
	require.NoError(t, fs.Store(context.Background(), "packs/abc.json", []byte(`{"x":1}`)))

	data, err := os.ReadFile(filepath.Join(dir, "packs", "abc.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, string(data))
}
