// Package buffer holds the in-progress session's readings in a bounded,
// ordered accumulator. When the buffer is full the oldest entries are
// evicted so live acquisition never stalls; losing old samples is
// preferable to blocking the stream.
package buffer

import (
	"sync"

	"github.com/avetra/sensorlink/internal/domain"
	"github.com/avetra/sensorlink/internal/ports"
)

const minCapacity = 1

// Ring is an append-only ring buffer of readings.
type Ring struct {
	mu      sync.Mutex
	data    []domain.Reading
	start   int
	count   int
	baseCap int
}

func NewRing(capacity int) *Ring {
	if capacity < minCapacity {
		capacity = minCapacity
	}
	return &Ring{
		data:    make([]domain.Reading, capacity),
		baseCap: capacity,
	}
}

// Append adds a reading, evicting the oldest entry when full.
func (r *Ring) Append(reading domain.Reading) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == len(r.data) {
		r.data[r.start] = reading
		r.start = (r.start + 1) % len(r.data)
		return
	}
	r.data[(r.start+r.count)%len(r.data)] = reading
	r.count++
}

// Snapshot returns an immutable ordered copy of the buffered readings.
func (r *Ring) Snapshot() []domain.Reading {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Reading, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.data[(r.start+i)%len(r.data)]
	}
	return out
}

// Clear discards all buffered readings.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.start = 0
	r.count = 0
}

// DrainFirst discards the n oldest readings. Callers that persisted a
// snapshot drain exactly its length, so readings appended while the save
// was in flight stay buffered for the next save.
func (r *Ring) DrainFirst(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 {
		return
	}
	if n >= r.count {
		r.start = 0
		r.count = 0
		return
	}
	r.start = (r.start + n) % len(r.data)
	r.count -= n
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *Ring) Capacity() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

// ApplyPressure resizes the buffer according to the reported memory
// pressure, keeping the newest readings when shrinking. The buffer does
// not care where the signal comes from.
func (r *Ring) ApplyPressure(level ports.PressureLevel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target := r.baseCap
	switch level {
	case ports.PressureModerate:
		target = r.baseCap / 2
	case ports.PressureCritical:
		target = r.baseCap / 4
	}
	if target < minCapacity {
		target = minCapacity
	}
	if target == len(r.data) {
		return
	}

	keep := r.count
	if keep > target {
		keep = target
	}
	next := make([]domain.Reading, target)
	// Keep the newest readings.
	drop := r.count - keep
	for i := 0; i < keep; i++ {
		next[i] = r.data[(r.start+drop+i)%len(r.data)]
	}
	r.data = next
	r.start = 0
	r.count = keep
}
