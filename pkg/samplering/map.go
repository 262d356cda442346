package samplering

import (
	"sync"
	"sync/atomic"
	"time"
)

// pollInterval is how long a blocked producer sleeps between space checks.
// It bounds abort latency for every decoder worker.
const pollInterval = 100 * time.Millisecond

// Map is a keyed set of bounded sample rings, one per selected track.
// Producers block in Push until space frees up; the mixer drains all rings
// in lock-step through PopN. One mutex guards the whole map; it is never
// held across a sleep.
type Map struct {
	mu       sync.Mutex
	rings    map[int]*Ring
	capacity int
}

// NewMap creates an empty map whose rings hold capacity samples each.
func NewMap(capacity int) *Map {
	return &Map{
		rings:    make(map[int]*Ring),
		capacity: capacity,
	}
}

// Prepare clears the map and inserts a fresh ring for each key.
func (m *Map) Prepare(keys []int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rings = make(map[int]*Ring, len(keys))
	for _, key := range keys {
		m.rings[key] = NewRing(m.capacity)
	}
}

// Remaining returns the free space of the ring for key, or 0 if the key
// has been removed.
func (m *Map) Remaining(key int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	ring, ok := m.rings[key]
	if !ok {
		return 0
	}
	return ring.Remaining()
}

// RingLen returns the queued sample count for key, or -1 if the key is gone.
func (m *Map) RingLen(key int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	ring, ok := m.rings[key]
	if !ok {
		return -1
	}
	return ring.Len()
}

// Push appends samples to the ring for key, polling for space every 100 ms
// until the whole slice fits. Each poll round observes abort, so a blocked
// producer terminates within one interval of the flag being set.
// Returns false if the push was abandoned (abort set or key removed).
func (m *Map) Push(key int, samples []float32, abort *atomic.Bool) bool {
	for {
		if abort != nil && abort.Load() {
			return false
		}

		m.mu.Lock()
		ring, ok := m.rings[key]
		if !ok {
			m.mu.Unlock()
			return false
		}
		if ring.Remaining() >= len(samples) {
			ring.Push(samples)
			m.mu.Unlock()
			return true
		}
		m.mu.Unlock()

		time.Sleep(pollInterval)
	}
}

// PopN removes the oldest n samples from the ring for key.
func (m *Map) PopN(key int, n int) []float32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	ring, ok := m.rings[key]
	if !ok {
		return nil
	}
	return ring.PopN(n)
}

// Remove deletes the ring for key.
func (m *Map) Remove(key int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rings, key)
}

// Len returns the number of rings in the map.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rings)
}

// Snapshot returns the current per-key queued lengths.
func (m *Map) Snapshot() map[int]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	lengths := make(map[int]int, len(m.rings))
	for key, ring := range m.rings {
		lengths[key] = ring.Len()
	}
	return lengths
}

// MinLen returns the smallest queued length across all rings, and false if
// the map is empty.
func (m *Map) MinLen() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.rings) == 0 {
		return 0, false
	}

	first := true
	minLen := 0
	for _, ring := range m.rings {
		if first || ring.Len() < minLen {
			minLen = ring.Len()
			first = false
		}
	}
	return minLen, true
}
