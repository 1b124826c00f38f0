package sampler

import (
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// manualScheduler records the registered probe so tests can drive ticks
// deterministically.
type manualScheduler struct {
	fn        func()
	cancelled bool
}

func (m *manualScheduler) Every(_ time.Duration, fn func()) CancelFunc {
	m.fn = fn
	return func() { m.cancelled = true }
}

func newTestSampler(t *testing.T, cfg Config) (*Sampler, *time.Time) {
	t.Helper()
	s, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clock := time.Now()
	s.now = func() time.Time { return clock }
	return s, &clock
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"zero threshold", Config{Threshold: 0, Interval: time.Second, MaxConsecutiveBlocks: 1}, true},
		{"negative interval", Config{Threshold: time.Second, Interval: -1, MaxConsecutiveBlocks: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_ClampsMaxConsecutiveBlocks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConsecutiveBlocks = 0

	s, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.cfg.MaxConsecutiveBlocks != 1 {
		t.Errorf("MaxConsecutiveBlocks = %d, want clamped to 1", s.cfg.MaxConsecutiveBlocks)
	}
}

func TestSampler_BelowThresholdNeverFires(t *testing.T) {
	cfg := Config{Threshold: 1 * time.Second, Interval: 500 * time.Millisecond, MaxConsecutiveBlocks: 2}
	s, clock := newTestSampler(t, cfg)

	fired := 0
	sched := &manualScheduler{}
	s.Enable(func(BlockEvent) { fired++ }, sched)

	for i := 0; i < 10; i++ {
		*clock = clock.Add(500 * time.Millisecond) // under threshold
		sched.fn()
	}

	if fired != 0 {
		t.Errorf("violations fired = %d, want 0", fired)
	}
}

func TestSampler_DebouncedViolationFiresOnceAndResets(t *testing.T) {
	cfg := Config{Threshold: 1 * time.Second, Interval: 500 * time.Millisecond, MaxConsecutiveBlocks: 3}
	s, clock := newTestSampler(t, cfg)

	var events []BlockEvent
	sched := &manualScheduler{}
	s.Enable(func(e BlockEvent) { events = append(events, e) }, sched)

	// Two over-threshold ticks: still debouncing.
	*clock = clock.Add(2 * time.Second)
	sched.fn()
	*clock = clock.Add(2 * time.Second)
	sched.fn()
	if len(events) != 0 {
		t.Fatalf("violation fired before debounce completed: %d", len(events))
	}

	// Third consecutive over-threshold tick: exactly one violation.
	*clock = clock.Add(2 * time.Second)
	sched.fn()
	if len(events) != 1 {
		t.Fatalf("violations = %d, want 1", len(events))
	}

	e := events[0]
	if e.Duration != 2*time.Second {
		t.Errorf("duration = %v, want 2s", e.Duration)
	}
	if e.ConsecutiveBlocks != 3 {
		t.Errorf("consecutive blocks = %d, want 3", e.ConsecutiveBlocks)
	}
	if !strings.Contains(e.Stack, "goroutine") {
		t.Error("expected a captured call frame in the event")
	}

	// Counter reset: the next over-threshold tick must not fire.
	*clock = clock.Add(2 * time.Second)
	sched.fn()
	if len(events) != 1 {
		t.Errorf("violations = %d after reset, want still 1", len(events))
	}
}

func TestSampler_RecoveryResetsCounter(t *testing.T) {
	cfg := Config{Threshold: 1 * time.Second, Interval: 500 * time.Millisecond, MaxConsecutiveBlocks: 2}
	s, clock := newTestSampler(t, cfg)

	fired := 0
	sched := &manualScheduler{}
	s.Enable(func(BlockEvent) { fired++ }, sched)

	// One blocked tick, then a healthy tick, then one blocked tick:
	// never two in a row, so never a violation.
	*clock = clock.Add(2 * time.Second)
	sched.fn()
	*clock = clock.Add(100 * time.Millisecond)
	sched.fn()
	*clock = clock.Add(2 * time.Second)
	sched.fn()

	if fired != 0 {
		t.Errorf("violations = %d, want 0 (jitter must be debounced)", fired)
	}
}

func TestSampler_RecordActivityResetsCounter(t *testing.T) {
	cfg := Config{Threshold: 1 * time.Second, Interval: 500 * time.Millisecond, MaxConsecutiveBlocks: 2}
	s, clock := newTestSampler(t, cfg)

	fired := 0
	sched := &manualScheduler{}
	s.Enable(func(BlockEvent) { fired++ }, sched)

	*clock = clock.Add(2 * time.Second)
	sched.fn()

	// Application reports genuine progress right before the next tick.
	s.RecordActivity()
	*clock = clock.Add(500 * time.Millisecond)
	sched.fn()

	*clock = clock.Add(2 * time.Second)
	sched.fn()

	if fired != 0 {
		t.Errorf("violations = %d, want 0", fired)
	}
}

func TestSampler_DisableIsIdempotent(t *testing.T) {
	s, _ := newTestSampler(t, DefaultConfig())

	sched := &manualScheduler{}
	s.Enable(func(BlockEvent) {}, sched)

	s.Disable()
	s.Disable()
	s.Disable()

	if !sched.cancelled {
		t.Error("underlying periodic task should be cancelled")
	}
	if s.Enabled() {
		t.Error("sampler should report disabled")
	}

	// A straggler tick after disable must be a no-op.
	sched.fn()
}

func TestSampler_EnableTwiceIsNoop(t *testing.T) {
	s, _ := newTestSampler(t, DefaultConfig())

	first := &manualScheduler{}
	second := &manualScheduler{}
	s.Enable(func(BlockEvent) {}, first)
	s.Enable(func(BlockEvent) {}, second)

	if second.fn != nil {
		t.Error("second Enable should not register another probe")
	}
}

func TestSampler_Wrap(t *testing.T) {
	cfg := Config{Threshold: 1 * time.Second, Interval: 500 * time.Millisecond, MaxConsecutiveBlocks: 1}
	s, clock := newTestSampler(t, cfg)

	sched := &manualScheduler{}
	fired := 0
	s.Enable(func(BlockEvent) { fired++ }, sched)

	// Simulate a long gap, then run a wrapped function: the trailing
	// RecordActivity moves the activity marker so the next tick is clean.
	*clock = clock.Add(5 * time.Second)
	wrapped := s.Wrap(func() {})
	wrapped()

	*clock = clock.Add(100 * time.Millisecond)
	sched.fn()

	if fired != 0 {
		t.Errorf("violations = %d, want 0 after wrapped activity", fired)
	}
}

func TestTickScheduler_DeliversAndCancels(t *testing.T) {
	sched := NewTickScheduler()

	var mu sync.Mutex
	ticks := 0
	cancel := sched.Every(5*time.Millisecond, func() {
		mu.Lock()
		ticks++
		mu.Unlock()
	})

	time.Sleep(50 * time.Millisecond)
	cancel()
	cancel() // safe to call twice

	mu.Lock()
	got := ticks
	mu.Unlock()
	if got == 0 {
		t.Error("expected at least one tick before cancel")
	}

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	after := ticks
	mu.Unlock()
	if after > got+1 {
		t.Errorf("ticks continued after cancel: %d -> %d", got, after)
	}
}
