package sandbox

import "sync"

// State is an explicit, owned container for the "superglobal" key space:
// process-wide mutable values that every request can see unless isolated.
// Keys on the allowlist are read-only environment facts that survive the
// per-request reset.
type State struct {
	mu        sync.RWMutex
	values    map[string]any
	allowlist map[string]struct{}
}

// NewState creates a State whose allowlisted keys survive Reset.
func NewState(allowlist []string) *State {
	al := make(map[string]struct{}, len(allowlist))
	for _, key := range allowlist {
		al[key] = struct{}{}
	}
	return &State{
		values:    make(map[string]any),
		allowlist: al,
	}
}

// Set stores a value.
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Get returns the value stored under key.
func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Delete removes a key.
func (s *State) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Len returns the number of live keys.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Snapshot returns a deep copy of the full key space. The copy shares no
// mutable structure with the live state, so later mutations cannot bleed
// into a snapshot taken earlier.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(map[string]any, len(s.values))
	for key, value := range s.values {
		snap[key] = deepCopy(value)
	}
	return snap
}

// Restore replaces the entire key space with a deep copy of snap.
func (s *State) Restore(snap map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]any, len(snap))
	for key, value := range snap {
		s.values[key] = deepCopy(value)
	}
}

// Reset clears all keys except the allowlisted ones, producing the minimal
// safe default for a new request.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make(map[string]any, len(s.allowlist))
	for key := range s.allowlist {
		if v, ok := s.values[key]; ok {
			kept[key] = v
		}
	}
	s.values = kept
}

// deepCopy copies the structured-data shapes the key space is allowed to
// hold: maps, slices, and scalars. Other values copy by assignment.
func deepCopy(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, inner := range v {
			out[key] = deepCopy(inner)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for key, inner := range v {
			out[key] = inner
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = deepCopy(inner)
		}
		return out
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []byte:
		out := make([]byte, len(v))
		copy(out, v)
		return out
	default:
		return v
	}
}
