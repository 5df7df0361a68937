// Package queue provides the bounded write queues used by the journal
// backends between the event loop and the database writer.
package queue

import (
	"sync"
)

// Queue is a generic thread-safe FIFO. A queue with a limit drops its oldest
// items when a push would exceed it.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	limit   int
	dropped uint64
}

// New creates a new empty queue. limit <= 0 means unbounded.
func New[T any](limit int) *Queue[T] {
	return &Queue[T]{
		items: make([]T, 0),
		limit: limit,
	}
}

// Push appends items to the queue and returns how many old items were dropped.
func (q *Queue[T]) Push(items ...T) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	if q.limit <= 0 || len(q.items) <= q.limit {
		return 0
	}
	over := len(q.items) - q.limit
	q.items = append(q.items[:0:0], q.items[over:]...)
	q.dropped += uint64(over)
	return over
}

// Pop removes and returns the first item.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Empty returns true if the queue has no items.
func (q *Queue[T]) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns the total number of items discarded by the limit.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Clear removes all items from the queue.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = q.items[:0]
}

// GetAndEmpty returns all items and clears the queue.
func (q *Queue[T]) GetAndEmpty() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := q.items
	q.items = make([]T, 0, cap(q.items))
	return result
}

// Requeue puts items back at the front, keeping the newest when over the limit.
func (q *Queue[T]) Requeue(items []T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	merged := append(append(make([]T, 0, len(items)+len(q.items)), items...), q.items...)
	if q.limit > 0 && len(merged) > q.limit {
		over := len(merged) - q.limit
		q.dropped += uint64(over)
		merged = merged[over:]
	}
	q.items = merged
}
