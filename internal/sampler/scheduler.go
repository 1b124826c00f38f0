package sampler

import "time"

// CancelFunc stops a scheduled periodic task. Safe to call more than once.
type CancelFunc func()

// Scheduler registers periodic callbacks on the loop being monitored.
// The sampler deliberately runs on the same scheduler it observes: when the
// loop is blocked, the sampler's own tick is delayed, and that delay is the
// detection signal.
type Scheduler interface {
	Every(interval time.Duration, fn func()) CancelFunc
}

// TickScheduler runs periodic tasks on time.Ticker goroutines. It is the
// production Scheduler; tests drive Sample() directly instead.
type TickScheduler struct{}

// NewTickScheduler creates a TickScheduler.
func NewTickScheduler() *TickScheduler {
	return &TickScheduler{}
}

// Every invokes fn every interval until the returned CancelFunc is called.
func (s *TickScheduler) Every(interval time.Duration, fn func()) CancelFunc {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()

	var cancelled bool
	return func() {
		if !cancelled {
			cancelled = true
			close(done)
		}
	}
}
