package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/loopguard/loopguard/internal/memwatch"
)

// StatsResp is the health-check payload.
type StatsResp struct {
	Memory         memwatch.Stats `json:"memory"`
	SamplerEnabled bool           `json:"sampler_enabled"`
	LiveContexts   int            `json:"live_contexts"`
}

// handleStats backs the health-check endpoint with the guard's view of the
// process.
func (d *Dependencies) handleStats(w http.ResponseWriter, _ *http.Request) {
	resp := StatsResp{
		Memory:         d.Guard.Stats(),
		SamplerEnabled: d.Sampler.Enabled(),
	}
	if d.Sandbox != nil {
		resp.LiveContexts = d.Sandbox.LiveContexts()
	}
	writeJSON(w, http.StatusOK, resp)
}

// LeakResp is one over-age context in the leaks payload.
type LeakResp struct {
	ContextID       string  `json:"context_id"`
	Descriptor      string  `json:"descriptor"`
	DurationSeconds float64 `json:"duration_seconds"`
	MemoryGrowth    int64   `json:"memory_growth_bytes"`
}

// handleContextLeaks surfaces contexts that outlived the maximum duration.
func (d *Dependencies) handleContextLeaks(w http.ResponseWriter, _ *http.Request) {
	if d.Sandbox == nil {
		writeJSON(w, http.StatusOK, []LeakResp{})
		return
	}

	leaks := d.Sandbox.CheckLeaks()
	resp := make([]LeakResp, 0, len(leaks))
	for _, l := range leaks {
		resp = append(resp, LeakResp{
			ContextID:       l.ContextID,
			Descriptor:      l.Descriptor,
			DurationSeconds: l.Age.Seconds(),
			MemoryGrowth:    l.MemoryGrowth,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// requestLogging logs each request with its status and latency.
func requestLogging(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
