package adminrpc

import (
	"net"
	"testing"
	"time"

	"github.com/lattice-io/termdex/internal/collection"
	"github.com/lattice-io/termdex/internal/ingest"
	"github.com/lattice-io/termdex/internal/media"
	"github.com/lattice-io/termdex/internal/write"
	"github.com/stretchr/testify/require"
)

func TestFlushAndStatsOverTheWire(t *testing.T) {
	dir := t.TempDir()
	loader := ingest.New(dir, media.Default(), nil, ingest.Config{
		BatchMaxDocs:  1000,
		FlushInterval: time.Hour,
		SessionConfig: write.Config{WorkerCount: 1, QueueDepth: 16},
	}, nil)
	require.NoError(t, loader.Submit(ingest.Event{
		Collection:  "movies",
		ContentType: "application/json",
		Payload:     []byte(`[{"title":"Rambo"},{"title":"Rocky"}]`),
	}))

	stats := func(name string) (string, uint64, error) {
		return dir, collection.HashName(name), nil
	}
	srv := New(loader, stats)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.ServeListener(ln)
	defer srv.Stop()

	client, err := Dial(ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	flushResp, err := client.Flush("movies")
	require.NoError(t, err)
	require.True(t, flushResp.Success)

	statsResp, err := client.Stats("movies")
	require.NoError(t, err)
	require.EqualValues(t, 2, statsResp.TotalDocs)
	require.EqualValues(t, 1, statsResp.TotalSegments)
}
