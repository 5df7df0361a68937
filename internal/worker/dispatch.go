package worker

import (
	"fmt"
	"time"

	"github.com/squadwarden/warden/internal/dispatcher"
	"github.com/squadwarden/warden/pkg/core"
)

// RegisterHandlers registers the bookkeeping handlers with the dispatcher.
// Call it before registering any plugin.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(core.EventNewRound, m.handleNewRound, dispatcher.Named("worker:new-round"), dispatcher.Logged())
	d.Register(core.EventRoundEnded, m.handleRoundEnded, dispatcher.Named("worker:round-ended"), dispatcher.Logged())
	d.Register(core.EventPlayerList, m.handlePlayerList, dispatcher.Named("worker:player-list"))
	d.Register(core.EventPossess, m.handlePossess, dispatcher.Named("worker:possess"))
}

func (m *Manager) handleNewRound(ev core.Event) error {
	e, ok := ev.(*core.NewRoundEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", ev)
	}

	// A round that never saw ROUND_ENDED is closed at the start of the next.
	var errs error
	if prev := m.deps.Round.Current(); prev.ID != "" && prev.EndedAt.IsZero() {
		errs = m.endRound(e.Time)
	}

	m.deps.Correlator.Reset()
	r := *m.deps.Round.Start(e)
	m.logger.Info("round started", "round", r.ID, "layer", r.LayerID, "teams", len(r.Teams))

	if err := m.deps.Backend.StartRound(&r); err != nil {
		return fmt.Errorf("failed to journal round start: %w", err)
	}
	return errs
}

func (m *Manager) handleRoundEnded(ev core.Event) error {
	if m.deps.Round.ID() == "" {
		m.logger.Debug("round ended before any round started")
		return nil
	}
	return m.endRound(ev.At())
}

func (m *Manager) endRound(at time.Time) error {
	r := *m.deps.Round.End(at)
	m.logger.Info("round ended", "round", r.ID, "layer", r.LayerID, "duration", r.EndedAt.Sub(r.StartedAt))
	if err := m.deps.Backend.EndRound(&r); err != nil {
		return fmt.Errorf("failed to journal round end: %w", err)
	}
	return nil
}

func (m *Manager) handlePlayerList(ev core.Event) error {
	e, ok := ev.(*core.PlayerListSnapshot)
	if !ok {
		return fmt.Errorf("unexpected event %T", ev)
	}
	m.deps.Players.Update(e.Players)
	return nil
}

func (m *Manager) handlePossess(ev core.Event) error {
	e, ok := ev.(*core.PossessEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", ev)
	}
	if !e.Identity.Valid() {
		return nil
	}
	m.deps.Players.SetSuffix(e.Identity, e.ControllerKey)
	return nil
}
