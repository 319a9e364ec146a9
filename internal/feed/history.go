package feed

import (
	"sync"
	"time"
)

// History keeps the most recent feed events so that new subscribers can
// catch up on the scene.
//
// It enforces both a maximum entry count and a maximum age. Entries that
// exceed either limit are evicted on every [History.Add] call. A zero maxAge
// disables age eviction.
//
// All methods are safe for concurrent use.
type History struct {
	mu      sync.RWMutex
	entries []Event
	maxSize int
	maxAge  time.Duration
}

// NewHistory creates a history that retains at most maxSize events and
// evicts events older than maxAge.
func NewHistory(maxSize int, maxAge time.Duration) *History {
	if maxSize < 1 {
		maxSize = 1
	}
	return &History{
		entries: make([]Event, 0, maxSize),
		maxSize: maxSize,
		maxAge:  maxAge,
	}
}

// Add appends an event and evicts events that exceed the configured size or
// age.
func (h *History) Add(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, ev)
	h.evict()
}

// Recent returns up to n events within the age window, oldest first.
func (h *History) Recent(n int) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cutoff := h.cutoff()
	result := make([]Event, 0, min(n, len(h.entries)))

	for i := len(h.entries) - 1; i >= 0 && len(result) < n; i-- {
		if h.entries[i].Time.Before(cutoff) {
			continue
		}
		result = append(result, h.entries[i])
	}

	// Reverse to chronological order.
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}

// Len returns the number of retained events.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

func (h *History) cutoff() time.Time {
	if h.maxAge <= 0 {
		return time.Time{}
	}
	return time.Now().Add(-h.maxAge)
}

// evict removes entries that are too old or exceed maxSize.
// Must be called with h.mu held.
//
// Survivors are copied to a fresh backing array so evicted events do not pin
// memory.
func (h *History) evict() {
	cutoff := h.cutoff()

	start := 0
	for start < len(h.entries) && h.entries[start].Time.Before(cutoff) {
		start++
	}

	keep := h.entries[start:]
	if len(keep) > h.maxSize {
		keep = keep[len(keep)-h.maxSize:]
	}

	if start > 0 || len(keep) < len(h.entries) {
		fresh := make([]Event, len(keep), h.maxSize)
		copy(fresh, keep)
		h.entries = fresh
	}
}
