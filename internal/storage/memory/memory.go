// Package memory implements a storage.Backend that keeps the current round's
// journal in memory and exports it to a JSON file when the round ends.
package memory

import (
	"sync"

	"github.com/squadwarden/warden/internal/config"
	"github.com/squadwarden/warden/pkg/core"
)

// Backend stores the round journal in memory and exports to JSON
type Backend struct {
	cfg   config.MemoryConfig
	round *core.Round

	actions     []core.ActionRecord
	escalations []core.EscalationRecord
	claims      []core.ClaimRecord

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close exports a round that was never ended
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.round == nil {
		return nil
	}
	err := b.exportJSON()
	b.round = nil
	return err
}

// StartRound begins recording a new round, dropping anything recorded before
func (b *Backend) StartRound(r *core.Round) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	round := *r
	b.round = &round
	b.actions = nil
	b.escalations = nil
	b.claims = nil
	return nil
}

// EndRound finalizes and exports the round journal
func (b *Backend) EndRound(r *core.Round) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.round == nil || b.round.ID != r.ID {
		return nil
	}
	b.round.EndedAt = r.EndedAt
	err := b.exportJSON()
	b.round = nil
	return err
}

// RecordAction records an issued control request
func (b *Backend) RecordAction(a *core.ActionRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.actions = append(b.actions, *a)
	return nil
}

// RecordEscalation records an escalation case transition
func (b *Backend) RecordEscalation(e *core.EscalationRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.escalations = append(b.escalations, *e)
	return nil
}

// RecordClaim records a claim decision
func (b *Backend) RecordClaim(c *core.ClaimRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.claims = append(b.claims, *c)
	return nil
}

// Round returns the round being recorded
func (b *Backend) Round() (core.Round, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.round == nil {
		return core.Round{}, false
	}
	return *b.round, true
}

// Actions returns a copy of the recorded actions
func (b *Backend) Actions() []core.ActionRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.ActionRecord(nil), b.actions...)
}

// Escalations returns a copy of the recorded escalation transitions
func (b *Backend) Escalations() []core.EscalationRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.EscalationRecord(nil), b.escalations...)
}

// Claims returns a copy of the recorded claim decisions
func (b *Backend) Claims() []core.ClaimRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.ClaimRecord(nil), b.claims...)
}

// LastExportPath returns the path of the last exported file
func (b *Backend) LastExportPath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
