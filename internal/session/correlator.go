// Package session pairs UNPOSSESS log events with the POSSESS that opened
// the same controller slot.
package session

import (
	"log/slog"
	"time"

	"github.com/squadwarden/warden/pkg/core"
)

type possession struct {
	identity core.IdentitySet
	chain    string
	since    time.Time
}

// Correlator keeps one possession session per controller key. It is not safe
// for concurrent use; callers serialize access.
type Correlator struct {
	sessions map[string]possession
	logger   *slog.Logger
}

// New creates an empty Correlator.
func New(logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{
		sessions: make(map[string]possession),
		logger:   logger,
	}
}

// OnPossess opens a session for the controller key, replacing any stale one.
func (c *Correlator) OnPossess(e *core.PossessEvent) {
	c.sessions[e.ControllerKey] = possession{
		identity: e.Identity,
		chain:    e.Chain,
		since:    e.Time,
	}
}

// OnUnpossess annotates e with SwitchPossess and closes the session. It
// returns false when the event must be dropped.
func (c *Correlator) OnUnpossess(e *core.UnpossessEvent) bool {
	if !e.Identity.Valid() {
		c.logger.Debug("dropping unpossess with unresolved identity", "controller", e.ControllerKey)
		return false
	}

	s, ok := c.sessions[e.ControllerKey]
	if !ok {
		c.logger.Debug("unpossess without session", "controller", e.ControllerKey)
		return true
	}

	e.SwitchPossess = s.chain == e.Chain
	delete(c.sessions, e.ControllerKey)
	return true
}

// Correlate applies session bookkeeping to any event and reports whether the
// event should still be delivered.
func (c *Correlator) Correlate(ev core.Event) (core.Event, bool) {
	switch e := ev.(type) {
	case *core.PossessEvent:
		c.OnPossess(e)
	case *core.UnpossessEvent:
		if !c.OnUnpossess(e) {
			return nil, false
		}
	}
	return ev, true
}

// Holder returns the identity owning the controller key, if any.
func (c *Correlator) Holder(controllerKey string) (core.IdentitySet, bool) {
	s, ok := c.sessions[controllerKey]
	return s.identity, ok
}

// Len returns the number of open sessions.
func (c *Correlator) Len() int {
	return len(c.sessions)
}

// Reset discards every open session. Called at round boundaries.
func (c *Correlator) Reset() {
	if n := len(c.sessions); n > 0 {
		c.logger.Debug("discarding open possession sessions", "count", n)
	}
	clear(c.sessions)
}
