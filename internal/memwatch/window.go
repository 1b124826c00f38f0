package memwatch

import "time"

// Snapshot is one observation of process memory.
type Snapshot struct {
	At      time.Time `json:"at"`
	Current uint64    `json:"current_bytes"`
	Peak    uint64    `json:"peak_bytes"`
}

// window is a fixed-capacity rolling buffer of snapshots; appending past
// capacity evicts the oldest.
type window struct {
	buf   []Snapshot
	start int
	count int
}

func newWindow(capacity int) *window {
	return &window{buf: make([]Snapshot, capacity)}
}

func (w *window) append(s Snapshot) {
	if w.count < len(w.buf) {
		w.buf[(w.start+w.count)%len(w.buf)] = s
		w.count++
		return
	}
	w.buf[w.start] = s
	w.start = (w.start + 1) % len(w.buf)
}

func (w *window) len() int { return w.count }

func (w *window) first() Snapshot { return w.buf[w.start] }

func (w *window) last() Snapshot {
	return w.buf[(w.start+w.count-1)%len(w.buf)]
}

// snapshots returns the window contents oldest-first.
func (w *window) snapshots() []Snapshot {
	out := make([]Snapshot, w.count)
	for i := 0; i < w.count; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}
