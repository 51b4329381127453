// Package buffer provides a thread-safe bounded ring buffer used by action
// stages to keep a rolling history of recent measurements. When full, the
// oldest entry is dropped.
package buffer

import "sync"

// Ring is a fixed-capacity circular buffer. Writes never block; once the
// buffer is full each write evicts the oldest entry.
type Ring[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // oldest entry
	dropped  uint64
}

// NewRing creates a ring buffer with the given capacity. Capacity below 1
// is raised to 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends an entry, evicting the oldest one if the buffer is full.
func (r *Ring[T]) Push(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == r.capacity {
		r.tail = (r.tail + 1) % r.capacity
		r.size--
		r.dropped++
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % r.capacity
	r.size++
}

// Latest returns the most recently pushed entry.
func (r *Ring[T]) Latest() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	idx := (r.head - 1 + r.capacity) % r.capacity
	return r.items[idx], true
}

// Oldest returns the least recently pushed entry still in the buffer.
func (r *Ring[T]) Oldest() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.items[r.tail], true
}

// Snapshot returns the buffered entries, oldest first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.tail+i)%r.capacity]
	}
	return out
}

// Len returns the number of buffered entries.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Capacity returns the maximum number of entries.
func (r *Ring[T]) Capacity() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.capacity
}

// Dropped returns how many entries were evicted due to overflow.
func (r *Ring[T]) Dropped() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dropped
}

// Resize changes the capacity, keeping the newest entries that fit.
func (r *Ring[T]) Resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	items := make([]T, capacity)
	keep := r.size
	if keep > capacity {
		keep = capacity
	}
	// Copy the newest `keep` entries, oldest first.
	start := r.size - keep
	for i := 0; i < keep; i++ {
		items[i] = r.items[(r.tail+start+i)%r.capacity]
	}

	r.items = items
	r.capacity = capacity
	r.size = keep
	r.tail = 0
	r.head = keep % capacity
}

// Clear removes all entries.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head, r.tail, r.size = 0, 0, 0
}
