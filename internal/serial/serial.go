// Package serial provides the serialization point shared by event handling
// and timer callbacks.
package serial

import "sync"

// Serializer runs functions one at a time.
type Serializer interface {
	Do(fn func())
}

// Mutex serializes through a mutex. It is not reentrant: fn must not call Do.
type Mutex struct {
	mu sync.Mutex
}

// Do runs fn while holding the lock.
func (m *Mutex) Do(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn()
}

// Inline runs fn directly. Use it where all callers already share a goroutine,
// such as tests driven by a fake clock.
type Inline struct{}

// Do runs fn.
func (Inline) Do(fn func()) { fn() }
