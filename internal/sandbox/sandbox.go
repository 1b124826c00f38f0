// Package sandbox isolates per-request mutations of shared state. Around
// every request, the owner snapshots the superglobal key space, resets it to
// a minimal default, and restores the exact snapshot afterward — always,
// including on the error path — so one request's mutations cannot leak into
// another.
package sandbox

import (
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxAge is how old a live context may grow before the leak sweep
// flags it.
const DefaultMaxAge = 30 * time.Second

// Info describes a live context.
type Info struct {
	ID            string
	Descriptor    string
	StartedAt     time.Time
	Age           time.Duration
	MemoryAtStart uint64
}

// Leak describes a context that outlived the maximum duration. Surfacing is
// all the sweep does; destruction stays the owner's responsibility.
type Leak struct {
	ContextID    string
	Descriptor   string
	Age          time.Duration
	MemoryGrowth int64
}

type reqContext struct {
	id            string
	descriptor    string
	startedAt     time.Time
	backup        map[string]any
	memoryAtStart uint64
	resets        []func()
}

// Sandbox orchestrates shared-state snapshots around request lifetimes and
// tracks contexts that outlive the maximum duration.
type Sandbox struct {
	mu sync.Mutex

	state    *State
	contexts map[string]*reqContext
	maxAge   time.Duration

	logger *zap.Logger

	// test seams
	readMem func() uint64
	now     func() time.Time
	gc      func()
}

// New creates a Sandbox over the given shared state. A non-positive maxAge
// falls back to DefaultMaxAge.
func New(state *State, maxAge time.Duration, logger *zap.Logger) *Sandbox {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Sandbox{
		state:    state,
		contexts: make(map[string]*reqContext),
		maxAge:   maxAge,
		logger:   logger,
		readMem:  heapInUse,
		now:      time.Now,
		gc:       runtime.GC,
	}
}

func heapInUse() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// CreateContext snapshots the shared state, resets it to the minimal safe
// default for a new request, and returns an opaque context identifier.
func (s *Sandbox) CreateContext(descriptor string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := &reqContext{
		id:            uuid.NewString(),
		descriptor:    descriptor,
		startedAt:     s.now(),
		backup:        s.state.Snapshot(),
		memoryAtStart: s.readMem(),
	}
	s.state.Reset()
	s.contexts[ctx.id] = ctx

	return ctx.id
}

// DestroyContext restores the shared-state snapshot taken at this context's
// own creation (never "whatever is currently shared"), runs tracked
// ephemeral cleanups, and forces a collection pass. Unknown IDs are a
// no-op: double-destroy must never fail, because the caller invokes this
// from a guaranteed-cleanup path.
func (s *Sandbox) DestroyContext(id string) {
	s.mu.Lock()
	ctx, ok := s.contexts[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.contexts, id)
	s.state.Restore(ctx.backup)
	for _, reset := range ctx.resets {
		reset()
	}
	s.mu.Unlock()

	s.gc()
}

// HasContext reports whether id refers to a live context.
func (s *Sandbox) HasContext(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.contexts[id]
	return ok
}

// ContextInfo returns bookkeeping for a live context.
func (s *Sandbox) ContextInfo(id string) (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, ok := s.contexts[id]
	if !ok {
		return Info{}, false
	}
	return Info{
		ID:            ctx.id,
		Descriptor:    ctx.descriptor,
		StartedAt:     ctx.startedAt,
		Age:           s.now().Sub(ctx.startedAt),
		MemoryAtStart: ctx.memoryAtStart,
	}, true
}

// LiveContexts returns the number of open contexts.
func (s *Sandbox) LiveContexts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contexts)
}

// TrackEphemeral registers a cleanup to run when the context is destroyed,
// for mutations the snapshot cannot see (reassigned class-level fields and
// the like). Returns false for unknown contexts.
func (s *Sandbox) TrackEphemeral(id string, reset func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, ok := s.contexts[id]
	if !ok {
		return false
	}
	ctx.resets = append(ctx.resets, reset)
	return true
}

// CheckLeaks returns a descriptor for every live context older than the
// maximum duration, with its memory growth since creation. A point-in-time
// query: nothing is destroyed.
func (s *Sandbox) CheckLeaks() []Leak {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	current := s.readMem()

	var leaks []Leak
	for _, ctx := range s.contexts {
		age := now.Sub(ctx.startedAt)
		if age <= s.maxAge {
			continue
		}
		leaks = append(leaks, Leak{
			ContextID:    ctx.id,
			Descriptor:   ctx.descriptor,
			Age:          age,
			MemoryGrowth: int64(current) - int64(ctx.memoryAtStart),
		})
		if s.logger != nil {
			s.logger.Warn("request context outlived maximum duration",
				zap.String("context_id", ctx.id),
				zap.String("descriptor", ctx.descriptor),
				zap.Duration("age", age),
			)
		}
	}
	return leaks
}
