// Package watch provides a single-writer, multiple-reader broadcast value.
// Observers receive the current value on subscribe and every change after
// that; a slow observer never blocks the writer.
package watch

import "sync"

const subscriberBuffer = 16

// Value holds one broadcastable value of type T.
type Value[T any] struct {
	mu   sync.Mutex
	cur  T
	subs map[int]chan T
	next int
}

// NewValue returns a Value initialized to initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		cur:  initial,
		subs: make(map[int]chan T),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur
}

// Set publishes a new value to all subscribers. When a subscriber's buffer
// is full its oldest pending value is discarded so the writer never blocks.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cur = val
	for _, ch := range v.subs {
		select {
		case ch <- val:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- val:
			default:
			}
		}
	}
}

// Subscribe registers an observer. The returned channel immediately carries
// the current value, then every subsequent change in order. The cancel
// function removes the subscription and closes the channel.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch := make(chan T, subscriberBuffer)
	ch <- v.cur
	id := v.next
	v.next++
	v.subs[id] = ch

	cancel := func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if sub, ok := v.subs[id]; ok {
			delete(v.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}
