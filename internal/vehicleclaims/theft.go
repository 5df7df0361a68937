package vehicleclaims

import (
	"fmt"

	"github.com/squadwarden/warden/internal/escalation"
	"github.com/squadwarden/warden/internal/util"
	"github.com/squadwarden/warden/pkg/core"
)

// theftCase is an unauthorised occupant of a claimable vehicle.
type theftCase struct {
	Player      core.IdentitySet
	Name        string
	TeamID      int
	SquadID     int
	Vehicle     string
	DisplayName string
}

func (p *Plugin) newTheftEngine(deps Dependencies) (*escalation.Engine[string, theftCase], error) {
	return escalation.New(escalation.Config[string, theftCase]{
		Name: "vehicle-theft",
		Stages: []escalation.Stage[string, theftCase]{
			{Name: "second-warning", Delay: p.cfg.SecondWarningDelay, Action: p.secondWarning},
			{Name: "kill", Delay: p.cfg.KillDelay, Action: p.killThief},
		},
		ClearOn:  core.EventUnpossess,
		Cancel:   p.theftLeft,
		Clock:    deps.Clock,
		Serial:   deps.Serial,
		Logger:   deps.Logger,
		Recorder: deps.Recorder,
		RoundID:  deps.RoundID,
	})
}

func (p *Plugin) secondWarning(playerID string, c theftCase) {
	p.warn(playerID, msgSecondWarning(util.Seconds(p.cfg.KillDelay)))
	p.logger.Info("second warning over vehicle", "player", c.Name, "squad", c.SquadID, "vehicle", c.DisplayName)
}

// killThief switches the player to the other team and straight back, which
// kills the pawn without moving the player.
func (p *Plugin) killThief(playerID string, c theftCase) {
	p.switchTeam(playerID)
	p.switchTeam(playerID)
	p.logger.Info("player killed over vehicle", "player", c.Name, "squad", c.SquadID, "vehicle", c.DisplayName)
}

// theftLeft accepts an UNPOSSESS of the same player leaving the same
// vehicle type.
func (p *Plugin) theftLeft(ev core.Event, _ string, c theftCase) bool {
	e, ok := ev.(*core.UnpossessEvent)
	if !ok || !e.Identity.Matches(c.Player) {
		return false
	}
	name, ok := p.registry.VehicleByClass(c.TeamID, e.ClassName)
	return ok && name == c.Vehicle
}

func (p *Plugin) handlePossess(ev core.Event) error {
	e, ok := ev.(*core.PossessEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", ev)
	}
	if !p.enabled || !e.Identity.Valid() {
		return nil
	}

	player, ok := p.players.Lookup(e.Identity)
	if !ok || player.TeamID == 0 {
		p.logger.Debug("possess by unknown player", "controller", e.ControllerKey, "class", e.ClassName)
		return nil
	}

	name, ok := p.registry.VehicleByClass(player.TeamID, e.ClassName)
	if !ok {
		return nil
	}
	veh, _ := p.registry.Vehicle(player.TeamID, name)
	for _, sq := range veh.Claimants {
		if player.SquadID != 0 && sq == player.SquadID {
			return nil
		}
	}

	playerID := e.Identity.Primary()
	if p.registry.MarkRescuer(player.TeamID, name, playerID) {
		p.warn(playerID, msgRescueEnter)
		p.logger.Info("vehicle entered under rescue", "player", player.Name, "vehicle", veh.DisplayName)
		return nil
	}

	c := theftCase{
		Player:      e.Identity,
		Name:        player.Name,
		TeamID:      player.TeamID,
		SquadID:     player.SquadID,
		Vehicle:     name,
		DisplayName: veh.DisplayName,
	}
	if !p.theft.Detect(playerID, c) {
		return nil
	}

	msg := msgClaimViolation(veh.Claimants)
	if claimed, ok := p.registry.ClaimOf(player.TeamID, player.SquadID); ok && player.SquadID != 0 {
		own, _ := p.registry.Vehicle(player.TeamID, claimed)
		msg = msgWrongVehicle(own.DisplayName, veh.DisplayName)
	}
	p.warn(playerID, msg)
	p.logger.Info("first warning over vehicle", "player", player.Name, "squad", player.SquadID, "vehicle", veh.DisplayName)
	return nil
}

// handleUnpossess runs even while enforcement is disabled so that no case
// outlives the occupant.
func (p *Plugin) handleUnpossess(ev core.Event) error {
	if n := p.theft.Observe(ev); n > 0 {
		p.logger.Debug("theft case cleared on exit", "cases", n)
	}
	return nil
}
