// Package httpapi's router wires the document API's routes and applies the
// ambient middleware chain. Grounded on internal/gateway/router.New.
package httpapi

import (
	"net/http"
	"time"

	"github.com/lattice-io/termdex/internal/auth/apikey"
	"github.com/lattice-io/termdex/internal/auth/ratelimit"
	apimw "github.com/lattice-io/termdex/internal/httpapi/middleware"
	"github.com/lattice-io/termdex/pkg/health"
	"github.com/lattice-io/termdex/pkg/metrics"
	pkgmw "github.com/lattice-io/termdex/pkg/middleware"
)

// NewRouter builds the full document-API HTTP handler with all routes and
// middleware.
//
// Route table:
//
//	POST   /collections/{name}/documents   → ingest (media-type dispatch)
//	GET    /collections/{name}/query        → paged query (cached, re-rendered by Accept)
//	GET    /collections/{name}/stats        → published batch info
//	POST   /collections/{name}/flush        → force-commit the open ingest session
//	GET    /health/live                     → liveness probe
//	GET    /health/ready                    → readiness probe
//
// Middleware chain (outermost first):
//
//	RequestID → Metrics → Timeout → CORS → Auth → RateLimit → mux
func NewRouter(h *Handler, checker *health.Checker, m *metrics.Metrics, validator *apikey.Validator, limiter *ratelimit.Limiter, requestTimeout time.Duration) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mux.HandleFunc("POST /collections/{name}/documents", h.Ingest)
	mux.HandleFunc("GET /collections/{name}/query", h.Query)
	mux.HandleFunc("GET /collections/{name}/stats", h.Stats)
	mux.HandleFunc("POST /collections/{name}/flush", h.Flush)

	var chain http.Handler = mux
	chain = apimw.RateLimit(limiter)(chain)
	chain = apimw.Auth(validator)(chain)
	chain = apimw.CORS(apimw.DefaultCORSConfig())(chain)
	chain = pkgmw.Timeout(requestTimeout)(chain)
	chain = pkgmw.Metrics(m)(chain)
	chain = pkgmw.RequestID(chain)

	return chain
}
