// Package memwatch tracks process memory over time, detects sustained
// growth, and takes graduated corrective action against registered caches.
// It never terminates the process; the worst it does is request a restart
// from an external supervisor via the alert callbacks.
package memwatch

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/pbnjay/memory"
	"go.uber.org/zap"

	"github.com/loopguard/loopguard/internal/cachemon"
)

// AlertType classifies guard alerts.
type AlertType int

const (
	AlertUnspecified AlertType = iota
	AlertMemoryLeak
	AlertCriticalMemory
	AlertRestartRequested
)

// String returns the snake_case alert name.
func (t AlertType) String() string {
	switch t {
	case AlertMemoryLeak:
		return "memory_leak"
	case AlertCriticalMemory:
		return "critical_memory"
	case AlertRestartRequested:
		return "restart_requested"
	default:
		return "unspecified"
	}
}

// Alert is delivered to registered callbacks. Alerts describe ambient
// conditions, not failed operations; they are never returned as errors.
type Alert struct {
	Type      AlertType
	Current   uint64
	Threshold uint64

	// GrowthRate is bytes/second; set for AlertMemoryLeak only.
	GrowthRate float64

	// Snapshots is the window that triggered a leak alert, oldest first.
	Snapshots []Snapshot
}

// Stats backs a health-check endpoint.
type Stats struct {
	CurrentBytes     uint64                    `json:"current_bytes"`
	PeakBytes        uint64                    `json:"peak_bytes"`
	SystemTotalBytes uint64                    `json:"system_total_bytes"`
	ForcedGC         uint64                    `json:"forced_gc"`
	UptimeSeconds    float64                   `json:"uptime_seconds"`
	TrackedCaches    int                       `json:"tracked_caches"`
	CacheStats       map[string]cachemon.Stats `json:"cache_stats"`
	WindowLen        int                       `json:"window_len"`
	Monitoring       bool                      `json:"monitoring"`
}

type trackedCache struct {
	cache    cachemon.Monitorable
	maxBytes uint64
}

// Guard samples process memory on a coarse interval, maintains a rolling
// snapshot window, and drives cache eviction, forced collection, and
// critical-alert escalation.
type Guard struct {
	mu sync.Mutex

	cfg       Config
	caches    map[string]trackedCache
	callbacks []func(Alert)
	win       *window

	peak             uint64
	forcedGC         uint64
	started          time.Time
	monitoring       bool
	restartRequested bool

	logger *zap.Logger

	// test seams; production uses the runtime and wall clock
	readMem func() uint64
	forceGC func()
	now     func() time.Time
}

// New creates a Guard, failing fast on invalid configuration.
func New(cfg Config, logger *zap.Logger) (*Guard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Guard{
		cfg:     cfg,
		caches:  make(map[string]trackedCache),
		win:     newWindow(cfg.WindowSize),
		started: time.Now(),
		logger:  logger,
		readMem: heapInUse,
		forceGC: runtime.GC,
		now:     time.Now,
	}, nil
}

func heapInUse() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// Start begins periodic sampling until ctx is cancelled. The guard is
// expected to run for the process lifetime; cancellation exists for tests
// and orderly shutdown.
func (g *Guard) Start(ctx context.Context) {
	g.mu.Lock()
	if g.monitoring {
		g.mu.Unlock()
		return
	}
	g.monitoring = true
	g.started = g.now()
	g.mu.Unlock()

	g.logger.Info("memory guard started",
		zap.Uint64("gc_threshold", g.cfg.GCThreshold),
		zap.Uint64("warning_threshold", g.cfg.WarningThreshold),
		zap.Uint64("critical_threshold", g.cfg.CriticalThreshold),
		zap.Duration("check_interval", g.cfg.CheckInterval),
	)

	go func() {
		ticker := time.NewTicker(g.cfg.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.Sample()
			case <-ctx.Done():
				g.mu.Lock()
				g.monitoring = false
				g.mu.Unlock()
				return
			}
		}
	}()
}

// RegisterCache tracks a cache for observation and shrinking. The cache
// must implement cachemon.Monitorable: a bare collection cannot be observed
// or shrunk from outside its owner, and accepting one would give false
// confidence. Re-registration under the same name replaces the entry.
func (g *Guard) RegisterCache(name string, cache any, maxBytes uint64) error {
	m, ok := cache.(cachemon.Monitorable)
	if !ok {
		return fmt.Errorf("cache %q (%T) does not implement the cache monitoring interface (SizeBytes/Clean/Clear/Stats)", name, cache)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.caches[name] = trackedCache{cache: m, maxBytes: maxBytes}

	g.logger.Info("cache registered",
		zap.String("name", name),
		zap.Uint64("max_bytes", maxBytes),
	)
	return nil
}

// OnAlert registers a callback for guard alerts. Callbacks run on the
// sampling goroutine and must return quickly.
func (g *Guard) OnAlert(fn func(Alert)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.callbacks = append(g.callbacks, fn)
}

// Sample takes one memory observation and applies the threshold ladder and
// leak heuristic. Exposed so tests (and manual health probes) can drive the
// guard deterministically.
func (g *Guard) Sample() {
	g.mu.Lock()

	current := g.readMem()
	if current > g.peak {
		g.peak = current
	}
	g.win.append(Snapshot{At: g.now(), Current: current, Peak: g.peak})

	var alerts []Alert

	switch {
	case current > g.cfg.CriticalThreshold:
		for name, tc := range g.caches {
			tc.cache.Clear()
			g.logger.Warn("cache cleared under critical memory pressure", zap.String("name", name))
		}
		g.forceGC()
		g.forcedGC++
		alerts = append(alerts, Alert{
			Type:      AlertCriticalMemory,
			Current:   current,
			Threshold: g.cfg.CriticalThreshold,
		})
		if !g.restartRequested {
			g.restartRequested = true
			alerts = append(alerts, Alert{
				Type:      AlertRestartRequested,
				Current:   current,
				Threshold: g.cfg.CriticalThreshold,
			})
			g.logger.Error("graceful restart requested",
				zap.Uint64("current_bytes", current),
				zap.Uint64("critical_threshold", g.cfg.CriticalThreshold),
			)
		}

	case current > g.cfg.WarningThreshold:
		g.forceGC()
		g.forcedGC++
		for name, tc := range g.caches {
			target := tc.maxBytes / 2
			if tc.maxBytes == 0 {
				target = tc.cache.SizeBytes() / 2
			}
			tc.cache.Clean(target)
			g.logger.Warn("cache shrunk under memory pressure",
				zap.String("name", name),
				zap.Uint64("target_bytes", target),
			)
		}

	case current > g.cfg.GCThreshold:
		g.forceGC()
		g.forcedGC++
	}

	if g.cfg.LeakDetection && g.win.len() >= g.cfg.LeakCheckMinSamples {
		if alert, ok := g.leakCheck(); ok {
			alerts = append(alerts, alert)
		}
	}

	callbacks := make([]func(Alert), len(g.callbacks))
	copy(callbacks, g.callbacks)
	g.mu.Unlock()

	for _, alert := range alerts {
		for _, fn := range callbacks {
			fn(alert)
		}
	}
}

// leakCheck computes the growth rate across the window. Called with the
// lock held. A heuristic: bursty-but-legitimate workloads can trip it, and
// consumers must tolerate false positives.
func (g *Guard) leakCheck() (Alert, bool) {
	first, last := g.win.first(), g.win.last()
	elapsed := last.At.Sub(first.At).Seconds()
	if elapsed <= 0 || last.Current <= first.Current {
		return Alert{}, false
	}

	rate := float64(last.Current-first.Current) / elapsed // bytes/sec
	if rate*60 <= g.cfg.LeakRateBytesPerMin {
		return Alert{}, false
	}

	g.logger.Warn("sustained memory growth detected",
		zap.Float64("growth_bytes_per_min", rate*60),
		zap.Int("window_samples", g.win.len()),
	)
	return Alert{
		Type:       AlertMemoryLeak,
		Current:    last.Current,
		GrowthRate: rate,
		Snapshots:  g.win.snapshots(),
	}, true
}

// Stats returns a point-in-time view for health checks.
func (g *Guard) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	var current uint64
	if g.win.len() > 0 {
		current = g.win.last().Current
	} else {
		current = g.readMem()
	}

	cacheStats := make(map[string]cachemon.Stats, len(g.caches))
	for name, tc := range g.caches {
		cacheStats[name] = tc.cache.Stats()
	}

	return Stats{
		CurrentBytes:     current,
		PeakBytes:        g.peak,
		SystemTotalBytes: memory.TotalMemory(),
		ForcedGC:         g.forcedGC,
		UptimeSeconds:    g.now().Sub(g.started).Seconds(),
		TrackedCaches:    len(g.caches),
		CacheStats:       cacheStats,
		WindowLen:        g.win.len(),
		Monitoring:       g.monitoring,
	}
}
