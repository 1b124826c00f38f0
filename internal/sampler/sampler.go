// Package sampler detects actual blocking of an event loop at runtime.
//
// A cooperative scheduler cannot interrupt a long-running synchronous call;
// the only observable signal is elapsed wall-clock time since control last
// returned to the scheduler. The sampler schedules a cheap periodic probe on
// the loop it monitors and compares the gap between probes against a
// threshold, debouncing over consecutive violations to suppress jitter.
package sampler

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// stackBufSize bounds the captured call frame attached to a BlockEvent.
const stackBufSize = 4096

// Config holds sampler thresholds.
type Config struct {
	// Threshold is the maximum tolerated gap between probes before a tick
	// counts as a block observation.
	Threshold time.Duration

	// Interval is how often the probe runs on the monitored scheduler.
	Interval time.Duration

	// MaxConsecutiveBlocks is how many over-threshold ticks must occur in a
	// row before a violation fires. Values below 1 are clamped to 1.
	MaxConsecutiveBlocks int
}

// DefaultConfig returns production thresholds: a 1s gap tolerance probed
// every 500ms, debounced over 3 consecutive observations.
func DefaultConfig() Config {
	return Config{
		Threshold:            1 * time.Second,
		Interval:             500 * time.Millisecond,
		MaxConsecutiveBlocks: 3,
	}
}

// Validate fails fast on non-positive durations.
func (c Config) Validate() error {
	if c.Threshold <= 0 {
		return fmt.Errorf("sampler threshold must be positive, got %v", c.Threshold)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("sampler interval must be positive, got %v", c.Interval)
	}
	return nil
}

// BlockEvent describes one detected blocking episode.
type BlockEvent struct {
	// Duration is the observed gap since the last recorded activity.
	Duration time.Duration

	// Stack is the call frame captured when the violation fired.
	Stack string

	// Interval is the configured probe interval, for context in reports.
	Interval time.Duration

	// ConsecutiveBlocks is how many over-threshold ticks preceded the event.
	ConsecutiveBlocks int
}

// Sampler probes the event loop for blocking. All methods are synchronous
// and non-blocking; only the scheduler provides asynchrony.
type Sampler struct {
	mu sync.Mutex

	cfg          Config
	enabled      bool
	lastActivity time.Time
	consecutive  int
	cancel       CancelFunc
	onViolation  func(BlockEvent)

	logger *zap.Logger
	now    func() time.Time
}

// New creates a Sampler. MaxConsecutiveBlocks below 1 is clamped silently;
// invalid durations return an error.
func New(cfg Config, logger *zap.Logger) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxConsecutiveBlocks < 1 {
		cfg.MaxConsecutiveBlocks = 1
	}
	return &Sampler{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Enable starts probing on the given scheduler, delivering violations to
// onViolation. Enabling an enabled sampler is a no-op.
func (s *Sampler) Enable(onViolation func(BlockEvent), sched Scheduler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enabled {
		return
	}

	s.onViolation = onViolation
	s.lastActivity = s.now()
	s.consecutive = 0
	s.cancel = sched.Every(s.cfg.Interval, s.Sample)
	s.enabled = true

	if s.logger != nil {
		s.logger.Info("blocking sampler enabled",
			zap.Duration("threshold", s.cfg.Threshold),
			zap.Duration("interval", s.cfg.Interval),
			zap.Int("max_consecutive_blocks", s.cfg.MaxConsecutiveBlocks),
		)
	}
}

// Disable cancels the probe and resets the block counter. Idempotent.
func (s *Sampler) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return
	}

	s.cancel()
	s.cancel = nil
	s.consecutive = 0
	s.enabled = false

	if s.logger != nil {
		s.logger.Info("blocking sampler disabled")
	}
}

// Enabled reports whether the sampler is currently probing.
func (s *Sampler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// RecordActivity marks genuine progress on the loop. Cheap enough to call
// from hot paths; resets the debounce counter.
func (s *Sampler) RecordActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = s.now()
	s.consecutive = 0
}

// Wrap decorates fn to record activity before and after it runs.
func (s *Sampler) Wrap(fn func()) func() {
	return func() {
		s.RecordActivity()
		defer s.RecordActivity()
		fn()
	}
}

// Sample is invoked by the scheduler on each tick. An over-threshold gap
// increments the debounce counter; once it reaches the configured maximum,
// one violation fires and the counter resets to avoid violation storms.
// The tick itself proves control returned to the scheduler, so it also
// advances the activity timestamp.
func (s *Sampler) Sample() {
	s.mu.Lock()

	if !s.enabled {
		s.mu.Unlock()
		return
	}

	now := s.now()
	elapsed := now.Sub(s.lastActivity)
	s.lastActivity = now

	if elapsed <= s.cfg.Threshold {
		s.consecutive = 0
		s.mu.Unlock()
		return
	}

	s.consecutive++
	if s.consecutive < s.cfg.MaxConsecutiveBlocks {
		s.mu.Unlock()
		return
	}

	s.consecutive = 0
	event := BlockEvent{
		Duration:          elapsed,
		Stack:             captureStack(),
		Interval:          s.cfg.Interval,
		ConsecutiveBlocks: s.cfg.MaxConsecutiveBlocks,
	}
	onViolation := s.onViolation
	logger := s.logger
	s.mu.Unlock()

	if logger != nil {
		logger.Warn("event loop blocked",
			zap.Duration("duration", event.Duration),
			zap.Int("consecutive_blocks", event.ConsecutiveBlocks),
		)
	}
	if onViolation != nil {
		onViolation(event)
	}
}

func captureStack() string {
	buf := make([]byte, stackBufSize)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
