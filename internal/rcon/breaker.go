package rcon

import (
	"context"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/squadwarden/warden/pkg/core"
)

// BreakerConfig configures the circuit breaker in front of the control channel.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// NewBreaker wraps next so that a run of failures opens the circuit and
// further requests fail fast until Timeout has passed.
func NewBreaker(next Controller, cfg BreakerConfig, logger *slog.Logger) Controller {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if logger == nil {
		logger = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("control channel breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return ActionFunc(func(ctx context.Context, a core.Action) error {
		_, err := cb.Execute(func() (struct{}, error) {
			return struct{}{}, Execute(ctx, next, a)
		})
		return err
	})
}
