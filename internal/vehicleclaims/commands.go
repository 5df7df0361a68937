package vehicleclaims

import (
	"fmt"
	"strings"

	"github.com/squadwarden/warden/internal/claims"
	"github.com/squadwarden/warden/internal/util"
	"github.com/squadwarden/warden/pkg/core"
)

func (p *Plugin) handleChatCommand(ev core.Event) error {
	e, ok := ev.(*core.ChatCommandEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", ev)
	}
	if !e.Speaker.Valid() {
		return nil
	}
	switch e.Command {
	case p.cfg.Command:
		p.onClaimsCommand(e)
	case p.cfg.RescueCommand:
		p.onRescueCommand(e)
	}
	return nil
}

// onClaimsCommand toggles enforcement from admin chat.
func (p *Plugin) onClaimsCommand(e *core.ChatCommandEvent) {
	if e.Channel != core.ChatAdmin {
		return
	}
	admin := e.Speaker.Primary()
	word, _ := util.FirstWord(strings.ToLower(e.Message))

	switch {
	case word == "enable" && !p.enabled:
		p.enabled = true
		p.warn(admin, msgEnforcementEnabled)
		p.broadcast(msgEnforcementEnabled)
		p.logger.Info("claim enforcement enabled", "admin", e.SpeakerName)
	case word == "disable" && p.enabled:
		p.enabled = false
		p.theft.Reset()
		p.resetLocks()
		p.warn(admin, msgEnforcementDisabled)
		p.broadcast(msgEnforcementDisabled)
		p.logger.Info("claim enforcement disabled", "admin", e.SpeakerName)
	default:
		p.warn(admin, msgEnforcementStatus(p.enabled, p.cfg.Command))
	}
}

// onRescueCommand opens a rescue window. Squad leaders rescue their own
// claim; admins may name any vehicle of their team.
func (p *Plugin) onRescueCommand(e *core.ChatCommandEvent) {
	playerID := e.Speaker.Primary()
	if e.Channel != core.ChatSquad {
		p.warn(playerID, msgRescueSquadOnly)
		return
	}

	player, known := p.players.Lookup(e.Speaker)
	if !known || player.TeamID == 0 {
		p.logger.Debug("rescue from unknown player", "player", e.SpeakerName)
		return
	}

	var vehicle string
	switch {
	case e.Message != "" && p.isAdmin(e.Speaker):
		res := p.registry.Resolve(player.TeamID, e.Message)
		if res.Outcome != claims.Resolved {
			p.warn(playerID, msgNoVehicleMatch(e.Message))
			return
		}
		vehicle = res.Vehicle
	case player.IsLeader:
		vehicle, _ = p.registry.ClaimOf(player.TeamID, player.SquadID)
	default:
		p.warn(playerID, msgRescueLeaderOnly)
		return
	}

	if vehicle == "" {
		p.warn(playerID, msgRescueNothing)
		return
	}

	if _, err := p.registry.GrantRescue(player.TeamID, vehicle, playerID, p.cfg.RescueTimeout); err != nil {
		p.logger.Error("rescue failed", "vehicle", vehicle, "error", err)
		return
	}
	veh, _ := p.registry.Vehicle(player.TeamID, vehicle)
	p.warn(playerID, msgRescueGranted(veh.DisplayName, util.Minutes(p.cfg.RescueTimeout)))
}

func (p *Plugin) onRescueExpired(x claims.RescueExpiry) {
	msg := msgRescueExpired(x.DisplayName)
	p.warn(x.Granter, msg)
	if x.Rescuer != "" && x.Rescuer != x.Granter {
		p.warn(x.Rescuer, msg)
	}
}
