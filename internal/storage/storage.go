// Package storage defines the enforcement journal backends.
package storage

import (
	"errors"

	"github.com/squadwarden/warden/pkg/core"
)

// Backend is the interface all storage implementations must satisfy.
// Records are written for audit only; nothing reads them back to drive
// enforcement.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Round management
	StartRound(r *core.Round) error
	EndRound(r *core.Round) error

	// Journal
	RecordAction(a *core.ActionRecord) error
	RecordEscalation(e *core.EscalationRecord) error
	RecordClaim(c *core.ClaimRecord) error
}

// Exporter is an optional interface for backends that write one file per round.
type Exporter interface {
	LastExportPath() string
}

// QueueReporter is an optional interface for backends with pending writes.
type QueueReporter interface {
	QueueLengths() map[string]int
}

// Fanout writes every record to all its backends. A failing backend does not
// stop the others; errors are joined.
type Fanout []Backend

var _ Backend = Fanout(nil)

func (f Fanout) each(fn func(Backend) error) error {
	var errs []error
	for _, b := range f {
		if err := fn(b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Init() error  { return f.each(Backend.Init) }
func (f Fanout) Close() error { return f.each(Backend.Close) }

func (f Fanout) StartRound(r *core.Round) error {
	return f.each(func(b Backend) error { return b.StartRound(r) })
}

func (f Fanout) EndRound(r *core.Round) error {
	return f.each(func(b Backend) error { return b.EndRound(r) })
}

func (f Fanout) RecordAction(a *core.ActionRecord) error {
	return f.each(func(b Backend) error { return b.RecordAction(a) })
}

func (f Fanout) RecordEscalation(e *core.EscalationRecord) error {
	return f.each(func(b Backend) error { return b.RecordEscalation(e) })
}

func (f Fanout) RecordClaim(c *core.ClaimRecord) error {
	return f.each(func(b Backend) error { return b.RecordClaim(c) })
}

// QueueLengths merges the queue lengths of every backend that reports them.
func (f Fanout) QueueLengths() map[string]int {
	out := make(map[string]int)
	for _, b := range f {
		if qr, ok := b.(QueueReporter); ok {
			for k, v := range qr.QueueLengths() {
				out[k] += v
			}
		}
	}
	return out
}

// Discard is a Backend that drops everything.
type Discard struct{}

func (Discard) Init() error                                   { return nil }
func (Discard) Close() error                                  { return nil }
func (Discard) StartRound(*core.Round) error                  { return nil }
func (Discard) EndRound(*core.Round) error                    { return nil }
func (Discard) RecordAction(*core.ActionRecord) error         { return nil }
func (Discard) RecordEscalation(*core.EscalationRecord) error { return nil }
func (Discard) RecordClaim(*core.ClaimRecord) error           { return nil }
