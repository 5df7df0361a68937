// Package rcon defines the outbound control channel used to act on players
// and squads, plus decorators that journal, rate-protect and queue requests.
package rcon

import (
	"context"
	"fmt"

	"github.com/squadwarden/warden/pkg/core"
)

// Controller issues control requests to the game server. Requests are
// fire-and-forget from the caller's point of view: local state never waits
// on, or rolls back for, the outcome.
type Controller interface {
	Warn(ctx context.Context, playerID, message string) error
	Broadcast(ctx context.Context, message string) error
	SwitchTeam(ctx context.Context, playerID string) error
	DisbandSquad(ctx context.Context, teamID, squadID int) error
	SetNextLayer(ctx context.Context, layer string) error
}

// Lister reads authoritative server state for the snapshot poller.
type Lister interface {
	ListPlayers(ctx context.Context) ([]core.PlayerInfo, error)
	ListSquads(ctx context.Context) ([]core.SquadInfo, error)
	CurrentRound(ctx context.Context) (*core.NewRoundEvent, error)
}

// ActionFunc adapts a function over core.Action to a Controller.
type ActionFunc func(ctx context.Context, a core.Action) error

func (f ActionFunc) Warn(ctx context.Context, playerID, message string) error {
	return f(ctx, core.Action{Kind: core.ActionWarn, PlayerID: playerID, Message: message})
}

func (f ActionFunc) Broadcast(ctx context.Context, message string) error {
	return f(ctx, core.Action{Kind: core.ActionBroadcast, Message: message})
}

func (f ActionFunc) SwitchTeam(ctx context.Context, playerID string) error {
	return f(ctx, core.Action{Kind: core.ActionSwitchTeam, PlayerID: playerID})
}

func (f ActionFunc) DisbandSquad(ctx context.Context, teamID, squadID int) error {
	return f(ctx, core.Action{Kind: core.ActionDisbandSquad, TeamID: teamID, SquadID: squadID})
}

func (f ActionFunc) SetNextLayer(ctx context.Context, layer string) error {
	return f(ctx, core.Action{Kind: core.ActionSetNextLayer, Layer: layer})
}

// Execute performs a on c.
func Execute(ctx context.Context, c Controller, a core.Action) error {
	switch a.Kind {
	case core.ActionWarn:
		return c.Warn(ctx, a.PlayerID, a.Message)
	case core.ActionBroadcast:
		return c.Broadcast(ctx, a.Message)
	case core.ActionSwitchTeam:
		return c.SwitchTeam(ctx, a.PlayerID)
	case core.ActionDisbandSquad:
		return c.DisbandSquad(ctx, a.TeamID, a.SquadID)
	case core.ActionSetNextLayer:
		return c.SetNextLayer(ctx, a.Layer)
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
}

// Command renders a as the server console command it maps to.
func Command(a core.Action) string {
	switch a.Kind {
	case core.ActionWarn:
		return fmt.Sprintf("AdminWarn %q %s", a.PlayerID, a.Message)
	case core.ActionBroadcast:
		return fmt.Sprintf("AdminBroadcast %s", a.Message)
	case core.ActionSwitchTeam:
		return fmt.Sprintf("AdminForceTeamChange %q", a.PlayerID)
	case core.ActionDisbandSquad:
		return fmt.Sprintf("AdminDisbandSquad %d %d", a.TeamID, a.SquadID)
	case core.ActionSetNextLayer:
		return fmt.Sprintf("AdminSetNextLayer %s", a.Layer)
	default:
		return string(a.Kind)
	}
}
