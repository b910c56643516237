package postingsrpc

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/lattice-io/termdex/internal/postings"
	"github.com/stretchr/testify/require"
)

func TestWriteRequestRoundTrip(t *testing.T) {
	req := WriteRequest{Items: []WriteItem{
		{Offset: -1, DocIDs: []uint64{1, 2, 3}},
		{Offset: 128, DocIDs: []uint64{4, 5}},
	}}
	got, err := decodeWriteRequest(encodeWriteRequest(req))
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestReadReduceRequestRoundTrip(t *testing.T) {
	req := ReadReduceRequest{Cursors: []postings.Cursor{
		{HeadOffset: 16, Op: postings.OpOR, Score: 1.5},
		{HeadOffset: 32, Op: postings.OpNOT, Score: 0},
	}}
	got, err := decodeReadReduceRequest(encodeReadReduceRequest(req))
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestReducedResponseRoundTrip(t *testing.T) {
	resp := ReducedResponse{Total: 2, Rows: []postings.Scored{
		{DocID: 1, Score: 0.75},
		{DocID: 9, Score: 3.25},
	}}
	got, err := decodeReducedResponse(encodeReducedResponse(resp))
	require.NoError(t, err)
	require.Equal(t, resp, got)
}

func TestWriteThenReadReduceOverTheWire(t *testing.T) {
	store, err := postings.Open(filepath.Join(t.TempDir(), "c.pos"))
	require.NoError(t, err)
	defer store.Close()

	srv := NewServer(store, 1)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.ServeListener(ln)
	defer srv.Stop()

	client, err := Dial(ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	offsets, err := client.Write([]WriteItem{{Offset: -1, DocIDs: []uint64{1, 2, 3}}})
	require.NoError(t, err)
	require.Len(t, offsets, 1)

	resp, err := client.ReadReduce([]postings.Cursor{{HeadOffset: offsets[0], Op: postings.OpOR, Score: 1}})
	require.NoError(t, err)
	require.EqualValues(t, 3, resp.Total)

	ids := make([]uint64, len(resp.Rows))
	for i, row := range resp.Rows {
		ids[i] = row.DocID
	}
	require.ElementsMatch(t, []uint64{1, 2, 3}, ids)

	offsets2, err := client.Write([]WriteItem{{Offset: offsets[0], DocIDs: []uint64{4}}})
	require.NoError(t, err)
	require.Equal(t, offsets[0], offsets2[0])

	resp2, err := client.ReadReduce([]postings.Cursor{{HeadOffset: offsets[0], Op: postings.OpOR, Score: 1}})
	require.NoError(t, err)
	require.EqualValues(t, 4, resp2.Total)
}
