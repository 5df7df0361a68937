// Package clock abstracts wall time and timers so delayed enforcement can be
// driven by simulated time in tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a scheduled callback. Stop is idempotent and reports whether the
// call prevented the callback from running.
type Timer interface {
	Stop() bool
}

// Clock provides the current time and delayed callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Fake is a manually advanced Clock. Callbacks run synchronously inside
// Advance, in deadline order.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*fakeTimer
}

// NewFake creates a Fake clock starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	seq      uint64
	fn       func()
	done     bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.clock.remove(t)
	return true
}

// Now returns the simulated time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// AfterFunc schedules fn to run once the clock has advanced by d.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTimer{clock: f, deadline: f.now.Add(d), seq: f.seq, fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves the clock forward by d, running every timer that falls due.
// Timers scheduled by callbacks run in the same call when their deadline is
// within the advanced window.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		next := f.nextDue(target)
		if next == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		next.done = true
		f.remove(next)
		f.now = next.deadline
		f.mu.Unlock()

		next.fn()
	}
}

// Pending returns the number of timers that have not fired or been stopped.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func (f *Fake) nextDue(target time.Time) *fakeTimer {
	if len(f.timers) == 0 {
		return nil
	}
	sort.SliceStable(f.timers, func(i, j int) bool {
		if f.timers[i].deadline.Equal(f.timers[j].deadline) {
			return f.timers[i].seq < f.timers[j].seq
		}
		return f.timers[i].deadline.Before(f.timers[j].deadline)
	})
	if f.timers[0].deadline.After(target) {
		return nil
	}
	return f.timers[0]
}

func (f *Fake) remove(t *fakeTimer) {
	for i, cur := range f.timers {
		if cur == t {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			return
		}
	}
}
