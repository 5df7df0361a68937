package logging

import (
	"context"
	"errors"
	"log/slog"
)

// Sink is one destination of a MultiHandler. Level, when set, is a floor
// applied on top of the handler's own level, so the OpenTelemetry export can
// skip the per-tick debug records the log file keeps.
type Sink struct {
	Handler slog.Handler
	Level   slog.Leveler
}

func (s Sink) enabled(ctx context.Context, level slog.Level) bool {
	if s.Level != nil && level < s.Level.Level() {
		return false
	}
	return s.Handler.Enabled(ctx, level)
}

// MultiHandler fans records out to several sinks.
type MultiHandler struct {
	sinks []Sink
}

// NewMultiHandler writes to every handler with no extra floor.
// Nil handlers are skipped.
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	sinks := make([]Sink, len(handlers))
	for i, h := range handlers {
		sinks[i] = Sink{Handler: h}
	}
	return NewSinkHandler(sinks...)
}

// NewSinkHandler writes to every sink. Sinks without a handler are skipped.
func NewSinkHandler(sinks ...Sink) *MultiHandler {
	valid := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s.Handler != nil {
			valid = append(valid, s)
		}
	}
	return &MultiHandler{sinks: valid}
}

func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range m.sinks {
		if s.enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle sends the record to every sink that takes its level. A failing
// sink does not stop the others; failures are joined.
func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, s := range m.sinks {
		if !s.enabled(ctx, r.Level) {
			continue
		}
		if err := s.Handler.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return m.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return m
	}
	return m.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (m *MultiHandler) derive(fn func(slog.Handler) slog.Handler) *MultiHandler {
	sinks := make([]Sink, len(m.sinks))
	for i, s := range m.sinks {
		sinks[i] = Sink{Handler: fn(s.Handler), Level: s.Level}
	}
	return &MultiHandler{sinks: sinks}
}
