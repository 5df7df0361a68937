// Package escalation implements a multi-stage, cancellable, timer-driven
// state machine for "warn, warn again, then punish" workflows.
//
// A case moves NONE -> stage 0 -> stage 1 -> ... and the action of the last
// stage is terminal: the case is deleted when it fires. Clear removes a case
// from any stage and its pending action never runs.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/squadwarden/warden/internal/clock"
	"github.com/squadwarden/warden/internal/serial"
	"github.com/squadwarden/warden/pkg/core"
)

// Stage is one step of an escalation. Action runs when the stage's delay
// elapses without the case being cleared.
type Stage[K comparable, V any] struct {
	Name   string
	Delay  time.Duration
	Action func(key K, value V)
}

// Recorder receives case transitions. storage.Backend satisfies it.
type Recorder interface {
	RecordEscalation(e *core.EscalationRecord) error
}

// Config parameterizes an Engine.
type Config[K comparable, V any] struct {
	Name   string
	Stages []Stage[K, V]

	// ClearOn is the event type Observe evaluates Cancel against.
	ClearOn core.EventType
	// Cancel reports whether ev resolves the case for key.
	Cancel func(ev core.Event, key K, value V) bool

	Clock  clock.Clock
	Serial serial.Serializer
	Logger *slog.Logger

	Recorder Recorder
	// RoundID supplies the round id stamped on journal records.
	RoundID func() string
}

// Case is a snapshot of a live case.
type Case[K comparable, V any] struct {
	Key      K
	Value    V
	Stage    int
	Opened   time.Time
	Deadline time.Time
}

type liveCase[V any] struct {
	value    V
	stage    int
	timer    clock.Timer
	opened   time.Time
	deadline time.Time
}

// Engine tracks at most one live case per key. Detect, Clear, Observe and
// Reset must be called from the serialization point; timer callbacks enter it
// through Config.Serial.
type Engine[K comparable, V any] struct {
	cfg   Config[K, V]
	cases map[K]*liveCase[V]
	attrs metric.MeasurementOption

	opened     metric.Int64Counter
	escalated  metric.Int64Counter
	terminated metric.Int64Counter
	cleared    metric.Int64Counter
}

// New validates cfg and builds an Engine.
func New[K comparable, V any](cfg Config[K, V]) (*Engine[K, V], error) {
	if len(cfg.Stages) == 0 {
		return nil, errors.New("escalation: at least one stage is required")
	}
	for i, st := range cfg.Stages {
		if st.Delay < 0 {
			return nil, fmt.Errorf("escalation: stage %d has negative delay", i)
		}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Serial == nil {
		cfg.Serial = serial.Inline{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger = cfg.Logger.With("engine", cfg.Name)

	e := &Engine[K, V]{
		cfg:   cfg,
		cases: make(map[K]*liveCase[V]),
		attrs: metric.WithAttributes(attribute.String("engine", cfg.Name)),
	}

	m := meter()
	var err error
	if e.opened, err = m.Int64Counter("escalation.cases.opened",
		metric.WithDescription("Escalation cases opened")); err != nil {
		return nil, fmt.Errorf("creating opened counter: %w", err)
	}
	if e.escalated, err = m.Int64Counter("escalation.cases.escalated",
		metric.WithDescription("Non-terminal stage actions fired")); err != nil {
		return nil, fmt.Errorf("creating escalated counter: %w", err)
	}
	if e.terminated, err = m.Int64Counter("escalation.cases.terminated",
		metric.WithDescription("Terminal stage actions fired")); err != nil {
		return nil, fmt.Errorf("creating terminated counter: %w", err)
	}
	if e.cleared, err = m.Int64Counter("escalation.cases.cleared",
		metric.WithDescription("Cases cleared before the terminal stage")); err != nil {
		return nil, fmt.Errorf("creating cleared counter: %w", err)
	}

	return e, nil
}

// Name returns the engine name.
func (e *Engine[K, V]) Name() string {
	return e.cfg.Name
}

// Detect opens a case for key at the first stage. It is a no-op returning
// false when a case for key is already live.
func (e *Engine[K, V]) Detect(key K, value V) bool {
	return e.Resume(key, value, 0)
}

// Resume opens a case for key at the given stage, so a subject that was
// cleared part way can pick up where it left off. The stage is clamped to
// the configured range. It is a no-op returning false when a case for key is
// already live.
func (e *Engine[K, V]) Resume(key K, value V, stage int) bool {
	if _, ok := e.cases[key]; ok {
		return false
	}
	stage = max(0, min(stage, len(e.cfg.Stages)-1))

	c := &liveCase[V]{value: value, opened: e.cfg.Clock.Now()}
	e.cases[key] = c
	e.arm(key, c, stage)

	e.opened.Add(context.Background(), 1, e.attrs)
	e.record(key, stage, core.TransitionOpened)
	e.cfg.Logger.Debug("case opened", "subject", key, "stage", e.cfg.Stages[stage].Name, "delay", e.cfg.Stages[stage].Delay)
	return true
}

// Clear cancels the case for key. Clearing an absent case is a no-op.
func (e *Engine[K, V]) Clear(key K) bool {
	c, ok := e.cases[key]
	if !ok {
		return false
	}
	c.timer.Stop()
	delete(e.cases, key)

	e.cleared.Add(context.Background(), 1, e.attrs)
	e.record(key, c.stage, core.TransitionCleared)
	e.cfg.Logger.Debug("case cleared", "subject", key, "stage", c.stage)
	return true
}

// Observe clears every case whose Cancel predicate accepts ev. Events of a
// type other than ClearOn are ignored. It returns the number of cleared cases.
func (e *Engine[K, V]) Observe(ev core.Event) int {
	if e.cfg.Cancel == nil || ev == nil || ev.Type() != e.cfg.ClearOn {
		return 0
	}

	var keys []K
	for k, c := range e.cases {
		if e.cfg.Cancel(ev, k, c.value) {
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		e.Clear(k)
	}
	return len(keys)
}

// Get returns a snapshot of the case for key.
func (e *Engine[K, V]) Get(key K) (Case[K, V], bool) {
	c, ok := e.cases[key]
	if !ok {
		return Case[K, V]{}, false
	}
	return Case[K, V]{Key: key, Value: c.value, Stage: c.stage, Opened: c.opened, Deadline: c.deadline}, true
}

// Active reports whether a case for key is live.
func (e *Engine[K, V]) Active(key K) bool {
	_, ok := e.cases[key]
	return ok
}

// Len returns the number of live cases.
func (e *Engine[K, V]) Len() int {
	return len(e.cases)
}

// Keys returns the keys of live cases in no particular order.
func (e *Engine[K, V]) Keys() []K {
	keys := make([]K, 0, len(e.cases))
	for k := range e.cases {
		keys = append(keys, k)
	}
	return keys
}

// Remaining returns the total delay left before the terminal action of the
// case for key would fire.
func (e *Engine[K, V]) Remaining(key K) time.Duration {
	c, ok := e.cases[key]
	if !ok {
		return 0
	}
	left := c.deadline.Sub(e.cfg.Clock.Now())
	for _, st := range e.cfg.Stages[c.stage+1:] {
		left += st.Delay
	}
	return left
}

// Reset cancels every live case without running any action.
func (e *Engine[K, V]) Reset() {
	for k, c := range e.cases {
		c.timer.Stop()
		delete(e.cases, k)
	}
}

func (e *Engine[K, V]) arm(key K, c *liveCase[V], stage int) {
	st := e.cfg.Stages[stage]
	c.stage = stage
	c.deadline = e.cfg.Clock.Now().Add(st.Delay)
	c.timer = e.cfg.Clock.AfterFunc(st.Delay, func() {
		e.cfg.Serial.Do(func() { e.expire(key, c, stage) })
	})
}

// expire runs under the serialization point. A callback whose case was
// cleared, replaced or advanced in the meantime is stale and does nothing.
func (e *Engine[K, V]) expire(key K, c *liveCase[V], stage int) {
	cur, ok := e.cases[key]
	if !ok || cur != c || c.stage != stage {
		e.cfg.Logger.Debug("stale stage timer ignored", "subject", key, "stage", stage)
		return
	}

	st := e.cfg.Stages[stage]
	if stage == len(e.cfg.Stages)-1 {
		delete(e.cases, key)
		e.terminated.Add(context.Background(), 1, e.attrs)
		e.record(key, stage, core.TransitionTerminal)
		e.cfg.Logger.Debug("terminal stage fired", "subject", key, "stage", st.Name)
		if st.Action != nil {
			st.Action(key, c.value)
		}
		return
	}

	e.arm(key, c, stage+1)
	e.escalated.Add(context.Background(), 1, e.attrs)
	e.record(key, stage, core.TransitionEscalated)
	e.cfg.Logger.Debug("stage fired", "subject", key, "stage", st.Name)
	if st.Action != nil {
		st.Action(key, c.value)
	}
}

func (e *Engine[K, V]) record(key K, stage int, transition string) {
	if e.cfg.Recorder == nil {
		return
	}
	rec := &core.EscalationRecord{
		ID:         uuid.NewString(),
		Time:       e.cfg.Clock.Now(),
		Engine:     e.cfg.Name,
		Subject:    fmt.Sprint(key),
		Stage:      stage,
		Transition: transition,
	}
	if e.cfg.RoundID != nil {
		rec.RoundID = e.cfg.RoundID()
	}
	if err := e.cfg.Recorder.RecordEscalation(rec); err != nil {
		e.cfg.Logger.Error("failed to record escalation", "subject", key, "error", err)
	}
}
