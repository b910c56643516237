// Package httpapi is the HTTP front end over a data directory of
// collections: document ingest, paged queries, batch stats, and a manual
// flush for collections fed by the in-process ingest loader. Grounded on
// internal/gateway/handler's direct-to-store handler shape, generalized
// from gateway's reverse-proxy-plus-Postgres split to a single process
// that talks to the engine's own stores directly.
package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/lattice-io/termdex/internal/collection"
	"github.com/lattice-io/termdex/internal/ingest"
	"github.com/lattice-io/termdex/internal/media"
	"github.com/lattice-io/termdex/internal/query/evaluator"
	"github.com/lattice-io/termdex/internal/querycache"
	"github.com/lattice-io/termdex/internal/version"
	tderrors "github.com/lattice-io/termdex/pkg/errors"
	"github.com/lattice-io/termdex/pkg/metrics"
	pkgmw "github.com/lattice-io/termdex/pkg/middleware"
	"github.com/lattice-io/termdex/pkg/tracing"
)

// ConfigResolver returns the collection.Config to open a named collection
// with, the first time the Handler sees that name.
type ConfigResolver func(name string) collection.Config

// Handler implements the collection-scoped document API: ingest, query,
// stats, and flush.
type Handler struct {
	dataDir  string
	registry *media.Registry
	resolve  ConfigResolver
	loader   *ingest.Loader
	cache    *querycache.QueryCache
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu   sync.Mutex
	cols map[string]*collection.Collection
}

// New returns a Handler serving collections rooted at dataDir. loader may
// be nil, in which case Ingest and Flush report 503; cache may be nil, in
// which case Query always computes directly. m may be nil to disable
// metric recording.
func New(dataDir string, registry *media.Registry, resolve ConfigResolver, loader *ingest.Loader, cache *querycache.QueryCache, m *metrics.Metrics) *Handler {
	if resolve == nil {
		resolve = func(string) collection.Config { return collection.Config{} }
	}
	return &Handler{
		dataDir:  dataDir,
		registry: registry,
		resolve:  resolve,
		loader:   loader,
		cache:    cache,
		metrics:  m,
		logger:   slog.Default().With("component", "httpapi"),
		cols:     make(map[string]*collection.Collection),
	}
}

// collectionFor opens (and caches) the named collection's read-side
// handle. It is a separate handle from any session the ingest loader
// holds open for the same name — both share the same on-disk stores, and
// the store layer is the synchronization point, not this cache.
func (h *Handler) collectionFor(name string) (*collection.Collection, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if col, ok := h.cols[name]; ok {
		return col, nil
	}
	col, err := collection.Open(h.dataDir, name, h.resolve(name))
	if err != nil {
		return nil, err
	}
	h.cols[name] = col
	return col, nil
}

// Ingest decodes the request body via the media registry's plugin for
// Content-Type and submits it to the named collection's ingest loader.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		h.writeError(w, http.StatusServiceUnavailable, "ingest is not configured")
		return
	}
	name := r.PathValue("name")
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "reading request body: "+err.Error())
		return
	}

	err = h.loader.Submit(ingest.Event{Collection: name, ContentType: contentType, Payload: body})
	if err != nil {
		h.logger.Error("ingest submit failed", "collection", name, "error", err)
		h.writeError(w, tderrors.HTTPStatusCode(err), err.Error())
		return
	}
	if h.metrics != nil {
		h.metrics.DocsIngestedTotal.WithLabelValues(name).Inc()
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"status": "accepted"})
}

// Query parses q, resolves it against the named collection's published
// batches (through the query cache when one is configured), and renders
// the page through the media plugin selected by the Accept header.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	q := r.URL.Query().Get("q")
	skip := intParam(r, "skip", 0)
	take := intParam(r, "limit", 20)

	ctx, span := tracing.StartSpan(r.Context(), "httpapi.Query", pkgmw.GetRequestID(r.Context()))
	span.SetAttr("collection", name)
	span.SetAttr("query", q)
	defer func() {
		span.End()
		span.Log()
	}()
	r = r.WithContext(ctx)

	col, err := h.collectionFor(name)
	if err != nil {
		h.writeError(w, tderrors.HTTPStatusCode(err), err.Error())
		return
	}

	compute := func() (*evaluator.Result, error) {
		_, computeSpan := tracing.StartChildSpan(r.Context(), "evaluator.Query")
		defer computeSpan.End()
		res, err := evaluator.New(col).Query(q, skip, take)
		if err != nil {
			return nil, err
		}
		return &res, nil
	}

	started := time.Now()
	var result *evaluator.Result
	cacheStatus := "disabled"
	if h.cache != nil {
		newest, err := version.Newest(col.DataDir, col.ID)
		if err != nil {
			h.writeError(w, tderrors.HTTPStatusCode(err), err.Error())
			return
		}
		var versionID int64
		if len(newest) > 0 {
			versionID = newest[0].VersionID
		}
		var hit bool
		result, hit, err = h.cache.GetOrCompute(r.Context(), col.ID, versionID, q, skip, take, compute)
		if err != nil {
			h.recordQueryMetric("error", cacheStatus, 0, time.Since(started))
			h.writeError(w, tderrors.HTTPStatusCode(err), err.Error())
			return
		}
		if hit {
			cacheStatus = "hit"
		} else {
			cacheStatus = "miss"
		}
	} else {
		result, err = compute()
		if err != nil {
			h.recordQueryMetric("error", cacheStatus, 0, time.Since(started))
			h.writeError(w, tderrors.HTTPStatusCode(err), err.Error())
			return
		}
	}

	resultType := "hit"
	if len(result.Hits) == 0 {
		resultType = "zero_result"
	}
	h.recordQueryMetric(resultType, cacheStatus, len(result.Hits), time.Since(started))
	span.SetAttr("cache_status", cacheStatus)
	span.SetAttr("hits", len(result.Hits))

	accept := r.Header.Get("Accept")
	if accept == "" || accept == "*/*" {
		accept = "application/json"
	}
	enc, err := h.registry.Encoder(accept)
	if err != nil {
		enc, err = h.registry.Encoder("application/json")
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		accept = "application/json"
	}
	w.Header().Set("Content-Type", accept)
	if err := enc.Encode(w, *result); err != nil {
		h.logger.Error("failed to encode query result", "collection", name, "error", err)
	}
}

// Stats returns the named collection's published batches newest-first.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	col, err := h.collectionFor(name)
	if err != nil {
		h.writeError(w, tderrors.HTTPStatusCode(err), err.Error())
		return
	}
	batches, err := version.Newest(col.DataDir, col.ID)
	if err != nil {
		h.writeError(w, tderrors.HTTPStatusCode(err), err.Error())
		return
	}
	var docCount int64
	for _, b := range batches {
		docCount += b.DocCount
	}
	if h.metrics != nil {
		h.metrics.CollectionDocCount.WithLabelValues(name).Set(float64(docCount))
		h.metrics.ActiveBatches.Set(float64(len(batches)))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"collection": name,
		"batches":    batches,
		"doc_count":  docCount,
	})
}

// recordQueryMetric is a no-op when the Handler was built without a
// metrics.Metrics, so callers don't need to guard every call site.
func (h *Handler) recordQueryMetric(resultType, cacheStatus string, hits int, elapsed time.Duration) {
	if h.metrics == nil {
		return
	}
	h.metrics.QueriesTotal.WithLabelValues(resultType).Inc()
	h.metrics.QueryLatency.WithLabelValues(cacheStatus).Observe(elapsed.Seconds())
	h.metrics.QueryResultsCount.WithLabelValues().Observe(float64(hits))
	switch cacheStatus {
	case "hit":
		h.metrics.QueryCacheHits.Inc()
	case "miss":
		h.metrics.QueryCacheMisses.Inc()
	}
}

// Flush commits the named collection's open ingest session, if any,
// regardless of its batch-size or flush-interval threshold.
func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		h.writeError(w, http.StatusServiceUnavailable, "ingest is not configured")
		return
	}
	name := r.PathValue("name")
	if err := h.loader.FlushCollection(name); err != nil {
		h.logger.Error("flush failed", "collection", name, "error", err)
		h.writeError(w, tderrors.HTTPStatusCode(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

func intParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
