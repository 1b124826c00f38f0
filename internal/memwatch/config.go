package memwatch

import (
	"fmt"
	"time"
)

// Config holds the memory guard thresholds. The ladder must be strictly
// increasing: GCThreshold < WarningThreshold < CriticalThreshold.
type Config struct {
	// GCThreshold is the heap size above which a forced collection runs.
	GCThreshold uint64

	// WarningThreshold additionally shrinks every registered cache to half
	// its configured limit.
	WarningThreshold uint64

	// CriticalThreshold clears all caches, notifies alert callbacks, and
	// requests a graceful restart from the external supervisor.
	CriticalThreshold uint64

	// CheckInterval is how often the guard samples process memory.
	CheckInterval time.Duration

	// WindowSize bounds the rolling snapshot window (oldest evicted).
	WindowSize int

	// LeakCheckMinSamples is the minimum window length before the growth
	// heuristic runs.
	LeakCheckMinSamples int

	// LeakRateBytesPerMin is the sustained growth rate above which a leak
	// alert fires. A heuristic default, not a law.
	LeakRateBytesPerMin float64

	// LeakDetection toggles the growth heuristic.
	LeakDetection bool
}

// DefaultConfig returns production thresholds: 128/256/512 MiB ladder
// sampled every 10s over a 60-sample window (10 minutes of history), with
// leak alerts above 1 MiB/min sustained growth.
func DefaultConfig() Config {
	return Config{
		GCThreshold:         128 << 20,
		WarningThreshold:    256 << 20,
		CriticalThreshold:   512 << 20,
		CheckInterval:       10 * time.Second,
		WindowSize:          60,
		LeakCheckMinSamples: 6,
		LeakRateBytesPerMin: 1 << 20,
		LeakDetection:       true,
	}
}

// Validate fails fast on a misordered ladder or non-positive intervals.
func (c Config) Validate() error {
	if c.GCThreshold == 0 {
		return fmt.Errorf("gc threshold must be positive")
	}
	if c.GCThreshold >= c.WarningThreshold {
		return fmt.Errorf("gc threshold (%d) must be below warning threshold (%d)", c.GCThreshold, c.WarningThreshold)
	}
	if c.WarningThreshold >= c.CriticalThreshold {
		return fmt.Errorf("warning threshold (%d) must be below critical threshold (%d)", c.WarningThreshold, c.CriticalThreshold)
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("check interval must be positive, got %v", c.CheckInterval)
	}
	if c.WindowSize <= 0 {
		return fmt.Errorf("window size must be positive, got %d", c.WindowSize)
	}
	if c.LeakCheckMinSamples < 2 {
		return fmt.Errorf("leak check needs at least 2 samples, got %d", c.LeakCheckMinSamples)
	}
	return nil
}
