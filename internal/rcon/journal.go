package rcon

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/squadwarden/warden/internal/clock"
	"github.com/squadwarden/warden/pkg/core"
)

// ActionRecorder stores issued actions. storage.Backend satisfies it.
type ActionRecorder interface {
	RecordAction(a *core.ActionRecord) error
}

// NewJournal forwards every request to next and records it, including the
// error next returned. roundID may be nil.
func NewJournal(next Controller, rec ActionRecorder, clk clock.Clock, roundID func() string, logger *slog.Logger) Controller {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return ActionFunc(func(ctx context.Context, a core.Action) error {
		err := Execute(ctx, next, a)

		entry := &core.ActionRecord{ID: uuid.NewString(), Time: clk.Now(), Action: a}
		if roundID != nil {
			entry.RoundID = roundID()
		}
		if err != nil {
			entry.Error = err.Error()
		}
		if recErr := rec.RecordAction(entry); recErr != nil {
			logger.Error("failed to journal action", "kind", a.Kind, "error", recErr)
		}
		return err
	})
}
