package rcon

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/squadwarden/warden/internal/channel"
	"github.com/squadwarden/warden/pkg/core"
)

// Async queues requests for a background worker so callers never block on
// the control channel. It implements suture.Service.
type Async struct {
	ActionFunc

	next   Controller
	queue  channel.Channel[core.Action]
	logger *slog.Logger
}

// NewAsync creates an Async with a queue of the given size.
func NewAsync(next Controller, size int, logger *slog.Logger) *Async {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Async{
		next:   next,
		queue:  channel.New[core.Action](size),
		logger: logger,
	}
	a.ActionFunc = a.enqueue
	return a
}

func (a *Async) enqueue(_ context.Context, act core.Action) error {
	if a.queue.TrySend(act) {
		return nil
	}
	a.logger.Error("control queue full, dropping request", "kind", act.Kind, "player", act.PlayerID)
	return fmt.Errorf("control queue full: %s", act.Kind)
}

// Len returns the number of queued requests.
func (a *Async) Len() int {
	return a.queue.Len()
}

// Serve sends queued requests until ctx is done.
func (a *Async) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case act := <-a.queue.Receive():
			if err := Execute(ctx, a.next, act); err != nil {
				a.logger.Error("control request failed", "command", Command(act), "error", err)
			}
		}
	}
}

// Drain sends every queued request synchronously. Used on shutdown.
func (a *Async) Drain(ctx context.Context) {
	for {
		select {
		case act := <-a.queue.Receive():
			if err := Execute(ctx, a.next, act); err != nil {
				a.logger.Error("control request failed", "command", Command(act), "error", err)
			}
		default:
			return
		}
	}
}

func (a *Async) String() string {
	return "control-queue"
}
