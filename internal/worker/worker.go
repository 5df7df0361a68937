// Package worker holds the bookkeeping handlers that keep round, roster and
// possession state current. They are registered before any enforcement
// plugin so plugins observe up-to-date state.
package worker

import (
	"fmt"
	"log/slog"

	"github.com/squadwarden/warden/internal/cache"
	"github.com/squadwarden/warden/internal/round"
	"github.com/squadwarden/warden/internal/session"
	"github.com/squadwarden/warden/internal/storage"
)

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Round      *round.Context
	Players    *cache.PlayerCache
	Correlator *session.Correlator
	Backend    storage.Backend
	Logger     *slog.Logger
}

// Manager owns the bookkeeping handlers.
type Manager struct {
	deps   Dependencies
	logger *slog.Logger
}

// NewManager creates a new worker manager. A nil Backend discards records.
func NewManager(deps Dependencies) (*Manager, error) {
	if deps.Round == nil || deps.Players == nil || deps.Correlator == nil {
		return nil, fmt.Errorf("worker: round context, player cache and correlator are required")
	}
	if deps.Backend == nil {
		deps.Backend = storage.Discard{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{deps: deps, logger: deps.Logger.With("component", "worker")}, nil
}

// QueueLengths returns the pending writes of the backend, if it reports them.
func (m *Manager) QueueLengths() map[string]int {
	if q, ok := m.deps.Backend.(storage.QueueReporter); ok {
		return q.QueueLengths()
	}
	return nil
}
