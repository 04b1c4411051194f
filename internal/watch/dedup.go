package watch

import (
	"sync"

	"git.home.luguber.info/inful/bazelide/internal/util/sets"
)

// DefaultDedupCapacity bounds the dedup window before it is cleared
// wholesale.
const DefaultDedupCapacity = 1000

// Deduplicator suppresses repeated (kind, path) notifications. The window
// is size-bounded, not time-bounded: once it exceeds capacity the whole set
// is cleared, so suppression is best-effort and a true duplicate can slip
// through right after a clear. Safe for concurrent use.
type Deduplicator struct {
	mu       sync.Mutex
	seen     sets.Set[string]
	capacity int
}

// NewDeduplicator creates a Deduplicator. A capacity <= 0 selects
// DefaultDedupCapacity.
func NewDeduplicator(capacity int) *Deduplicator {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &Deduplicator{
		seen:     sets.New[string](),
		capacity: capacity,
	}
}

// Accept reports whether the event should be processed. The first sighting
// of a (kind, path) pair since the last clear returns true and records it;
// repeats return false.
func (d *Deduplicator) Accept(kind EventKind, path string) bool {
	key := string(kind) + ":" + path

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.seen.Has(key) {
		return false
	}
	d.seen.Add(key)
	if d.seen.Len() > d.capacity {
		d.seen.Clear()
	}
	return true
}

// Len returns the current window size.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen.Len()
}

// Reset clears the window.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen.Clear()
}
