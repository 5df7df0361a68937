package otel

import (
	"context"

	"github.com/squadwarden/warden/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const journalScope = "github.com/squadwarden/warden/internal/otel"

// Journal is a storage backend that turns journal entries into counters.
// It never fails a write; instrument errors fall back to no-op counters.
type Journal struct {
	rounds      metric.Int64Counter
	actions     metric.Int64Counter
	escalations metric.Int64Counter
	claims      metric.Int64Counter
}

// NewJournal creates the counters on meter.
func NewJournal(meter metric.Meter) *Journal {
	return &Journal{
		rounds:      counter(meter, "warden.rounds", "Rounds started and ended"),
		actions:     counter(meter, "warden.actions", "Outbound control actions issued"),
		escalations: counter(meter, "warden.escalations", "Escalation case transitions"),
		claims:      counter(meter, "warden.claims", "Vehicle claim decisions"),
	}
}

// NewJournalFromProvider uses the provider's meter.
func NewJournalFromProvider(p *Provider) *Journal {
	return NewJournal(p.Meter(journalScope))
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil || c == nil {
		c, _ = noop.Meter{}.Int64Counter(name)
	}
	return c
}

func (j *Journal) Init() error  { return nil }
func (j *Journal) Close() error { return nil }

func (j *Journal) StartRound(r *core.Round) error {
	j.rounds.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("phase", "start"),
		attribute.String("layer", r.LayerID),
	))
	return nil
}

func (j *Journal) EndRound(r *core.Round) error {
	j.rounds.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("phase", "end"),
		attribute.String("layer", r.LayerID),
	))
	return nil
}

func (j *Journal) RecordAction(a *core.ActionRecord) error {
	j.actions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("kind", string(a.Kind)),
		attribute.Bool("failed", a.Error != ""),
	))
	return nil
}

func (j *Journal) RecordEscalation(e *core.EscalationRecord) error {
	j.escalations.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("engine", e.Engine),
		attribute.String("transition", e.Transition),
		attribute.Int("stage", e.Stage),
	))
	return nil
}

func (j *Journal) RecordClaim(c *core.ClaimRecord) error {
	j.claims.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("outcome", c.Outcome),
		attribute.String("vehicle", c.Vehicle),
		attribute.Int("team", c.TeamID),
	))
	return nil
}
