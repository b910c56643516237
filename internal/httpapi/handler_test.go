package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lattice-io/termdex/internal/ingest"
	"github.com/lattice-io/termdex/internal/media"
	"github.com/lattice-io/termdex/internal/write"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) *Handler {
	dir := t.TempDir()
	registry := media.Default()
	loader := ingest.New(dir, registry, nil, ingest.Config{
		BatchMaxDocs:  1000,
		FlushInterval: time.Hour,
		SessionConfig: write.Config{WorkerCount: 1, QueueDepth: 16},
	}, nil)
	return New(dir, registry, nil, loader, nil, nil)
}

func TestIngestThenFlushThenQuery(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/collections/movies/documents", strings.NewReader(`[{"title":"Rambo"},{"title":"Rocky"}]`))
	req.Header.Set("Content-Type", "application/json")
	req.SetPathValue("name", "movies")
	rec := httptest.NewRecorder()
	h.Ingest(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	flushReq := httptest.NewRequest(http.MethodPost, "/collections/movies/flush", nil)
	flushReq.SetPathValue("name", "movies")
	flushRec := httptest.NewRecorder()
	h.Flush(flushRec, flushReq)
	require.Equal(t, http.StatusOK, flushRec.Code)

	queryReq := httptest.NewRequest(http.MethodGet, "/collections/movies/query?q=title:rambo", nil)
	queryReq.SetPathValue("name", "movies")
	queryRec := httptest.NewRecorder()
	h.Query(queryRec, queryReq)
	require.Equal(t, http.StatusOK, queryRec.Code)

	var body struct {
		Total int64 `json:"total"`
		Hits  []struct {
			DocID int64   `json:"doc_id"`
			Score float32 `json:"score"`
		} `json:"hits"`
	}
	require.NoError(t, json.NewDecoder(queryRec.Body).Decode(&body))
	require.Equal(t, int64(1), body.Total)
	require.Len(t, body.Hits, 1)
}

func TestIngestUnsupportedMediaType(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/collections/movies/documents", strings.NewReader("<x/>"))
	req.Header.Set("Content-Type", "application/xml")
	req.SetPathValue("name", "movies")
	rec := httptest.NewRecorder()
	h.Ingest(rec, req)
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestStatsBeforeAnyBatch(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/collections/movies/stats", nil)
	req.SetPathValue("name", "movies")
	rec := httptest.NewRecorder()
	h.Stats(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		DocCount int64 `json:"doc_count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, int64(0), body.DocCount)
}

func TestIngestWithoutLoaderConfigured(t *testing.T) {
	dir := t.TempDir()
	registry := media.Default()
	h := New(dir, registry, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/collections/movies/documents", strings.NewReader(`{"title":"Rambo"}`))
	req.Header.Set("Content-Type", "application/json")
	req.SetPathValue("name", "movies")
	rec := httptest.NewRecorder()
	h.Ingest(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
