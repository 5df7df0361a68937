// Package ingest turns server log lines into events on the bus.
package ingest

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/squadwarden/warden/internal/dispatcher"
	"github.com/squadwarden/warden/internal/parser"
	"github.com/squadwarden/warden/internal/session"
	"github.com/squadwarden/warden/pkg/core"
)

// Stats counts what the pipeline has seen.
type Stats struct {
	Lines     int64
	Events    int64
	Dropped   int64
	Failures  int64
	Malformed int64
}

// Pipeline parses lines, correlates possession sessions and dispatches the
// resulting events.
type Pipeline struct {
	parser     *parser.Parser
	correlator *session.Correlator
	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger
	observe    func(core.Event)

	lines, events, dropped, failures, malformed atomic.Int64
}

// NewPipeline creates a Pipeline.
func NewPipeline(p *parser.Parser, c *session.Correlator, d *dispatcher.Dispatcher, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		parser:     p,
		correlator: c,
		dispatcher: d,
		logger:     logger.With("component", "ingest"),
	}
}

// HandleLine processes one raw log line. Lines that carry no event are
// ignored. The returned error is informational; the caller keeps going.
func (p *Pipeline) HandleLine(line string) error {
	p.lines.Add(1)

	ev, err := p.parser.ParseLine(line)
	if err != nil {
		p.malformed.Add(1)
		return fmt.Errorf("failed to parse line: %w", err)
	}
	if ev == nil {
		return nil
	}

	var ok bool
	p.dispatcher.Do(func() {
		ev, ok = p.correlator.Correlate(ev)
	})
	if !ok {
		p.dropped.Add(1)
		return nil
	}
	return p.Publish(ev)
}

// Publish dispatches an event that needs no correlation, such as a polled
// snapshot. Events nobody subscribed to are not an error.
func (p *Pipeline) Publish(ev core.Event) error {
	p.events.Add(1)
	if p.observe != nil {
		p.observe(ev)
	}
	if err := p.dispatcher.Dispatch(ev); err != nil {
		if errors.Is(err, dispatcher.ErrNoHandler) {
			return nil
		}
		p.failures.Add(1)
		return fmt.Errorf("handling %s: %w", ev.Type(), err)
	}
	return nil
}

// Observe registers fn to see every event right before it is dispatched.
// Replays use it to drive a fake clock from log timestamps. Not safe to call
// while lines are being handled.
func (p *Pipeline) Observe(fn func(core.Event)) {
	p.observe = fn
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Lines:     p.lines.Load(),
		Events:    p.events.Load(),
		Dropped:   p.dropped.Load(),
		Failures:  p.failures.Load(),
		Malformed: p.malformed.Load(),
	}
}
