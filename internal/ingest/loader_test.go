package ingest

import (
	"testing"
	"time"

	"github.com/lattice-io/termdex/internal/collection"
	"github.com/lattice-io/termdex/internal/media"
	"github.com/lattice-io/termdex/internal/query/evaluator"
	"github.com/lattice-io/termdex/internal/write"
	"github.com/stretchr/testify/require"
)

func TestSubmitDecodesAndCommitsOnBatchMax(t *testing.T) {
	dir := t.TempDir()
	loader := New(dir, media.Default(), nil, Config{
		BatchMaxDocs:  2,
		FlushInterval: time.Hour,
		SessionConfig: write.Config{WorkerCount: 1, QueueDepth: 16},
	}, nil)

	err := loader.Submit(Event{
		Collection:  "movies",
		ContentType: "application/json",
		Payload:     []byte(`[{"title":"Rambo"},{"title":"Rocky"}]`),
	})
	require.NoError(t, err)

	// The batch-max threshold was reached, so the session committed and a
	// published batch is visible immediately.
	col, err := collection.Open(dir, "movies", collection.Config{})
	require.NoError(t, err)
	defer col.Close()

	ev := evaluator.New(col)
	res, err := ev.Query("title:rambo", 0, 0)
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
}

func TestFlushCommitsUnderThreshold(t *testing.T) {
	dir := t.TempDir()
	loader := New(dir, media.Default(), nil, Config{
		BatchMaxDocs:  1000,
		FlushInterval: time.Hour,
		SessionConfig: write.Config{WorkerCount: 1, QueueDepth: 16},
	}, nil)

	err := loader.Submit(Event{
		Collection:  "movies",
		ContentType: "application/json",
		Payload:     []byte(`[{"title":"Rambo"}]`),
	})
	require.NoError(t, err)
	require.NoError(t, loader.Flush())

	col, err := collection.Open(dir, "movies", collection.Config{})
	require.NoError(t, err)
	defer col.Close()

	ev := evaluator.New(col)
	res, err := ev.Query("title:rambo", 0, 0)
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
}

func TestSubmitUnknownMediaType(t *testing.T) {
	dir := t.TempDir()
	loader := New(dir, media.Default(), nil, Config{}, nil)
	err := loader.Submit(Event{Collection: "movies", ContentType: "application/xml", Payload: []byte("x")})
	require.ErrorIs(t, err, media.ErrNotSupported)
}
