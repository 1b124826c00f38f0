// Package api exposes the stats/health query surface over HTTP. Routing and
// serialization only; all monitoring logic lives in the observed components.
package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/loopguard/loopguard/internal/memwatch"
	"github.com/loopguard/loopguard/internal/sampler"
	"github.com/loopguard/loopguard/internal/sandbox"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Guard   *memwatch.Guard
	Sampler *sampler.Sampler
	Sandbox *sandbox.Sandbox // nil when request isolation is not wired
	Logger  *zap.Logger
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/loopguard/stats", deps.handleStats)
	mux.HandleFunc("GET /api/loopguard/leaks", deps.handleContextLeaks)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return requestLogging(mux, deps.Logger)
}
