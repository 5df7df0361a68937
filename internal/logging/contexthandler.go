package logging

import (
	"context"
	"log/slog"
)

// ContextProvider returns attributes attached to every record at handle time,
// such as the active round.
type ContextProvider func() []slog.Attr

// ContextHandler wraps another handler and injects the attributes of one or
// more providers.
type ContextHandler struct {
	inner     slog.Handler
	providers []ContextProvider
}

// NewContextHandler creates a handler that adds dynamic context to each record.
// Nil providers are ignored.
func NewContextHandler(inner slog.Handler, providers ...ContextProvider) *ContextHandler {
	valid := make([]ContextProvider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			valid = append(valid, p)
		}
	}
	return &ContextHandler{inner: inner, providers: valid}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, p := range h.providers {
		r.AddAttrs(p()...)
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), providers: h.providers}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{inner: h.inner.WithGroup(name), providers: h.providers}
}
