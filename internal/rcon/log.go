package rcon

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/squadwarden/warden/pkg/core"
)

// NewLogController returns a dry-run Controller that only logs the commands
// it would have sent.
func NewLogController(logger zerolog.Logger) Controller {
	return ActionFunc(func(_ context.Context, a core.Action) error {
		logger.Info().
			Str("kind", string(a.Kind)).
			Str("player", a.PlayerID).
			Int("team", a.TeamID).
			Int("squad", a.SquadID).
			Msg(Command(a))
		return nil
	})
}
