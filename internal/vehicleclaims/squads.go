package vehicleclaims

import (
	"errors"
	"fmt"

	"github.com/squadwarden/warden/internal/claims"
	"github.com/squadwarden/warden/pkg/core"
)

// teamOf finds the team of a squad creator: from the event, then the player
// roster, then the faction name printed in the log line.
func (p *Plugin) teamOf(e *core.SquadCreatedEvent) int {
	if e.TeamID != 0 {
		return e.TeamID
	}
	if id := p.players.TeamOf(e.Leader); id != 0 {
		return id
	}
	if id, ok := p.faction(e.TeamName); ok {
		return id
	}
	return 0
}

func (p *Plugin) handleSquadCreated(ev core.Event) error {
	e, ok := ev.(*core.SquadCreatedEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", ev)
	}

	teamID := p.teamOf(e)
	if teamID == 0 {
		p.logger.Debug("squad created on unknown team", "squad", e.SquadID, "name", e.SquadName, "faction", e.TeamName)
		return nil
	}

	pruned, err := p.registry.AddSquad(teamID, claims.Squad{
		ID:        e.SquadID,
		Name:      e.SquadName,
		Creator:   e.Leader.Primary(),
		CreatedAt: e.Time,
	})
	if err != nil {
		return fmt.Errorf("adding squad %d: %w", e.SquadID, err)
	}
	for _, pc := range pruned {
		p.logger.Debug("claim released", "team", teamID, "squad", pc.SquadID, "vehicle", pc.Vehicle)
	}
	p.forgetLock(squadKey{TeamID: teamID, SquadID: e.SquadID})

	p.logger.Info("new squad", "faction", p.registry.Faction(teamID), "squad", e.SquadID, "name", e.SquadName)
	if !p.enabled || !e.Leader.Valid() {
		return nil
	}
	return p.claimFor(teamID, e.SquadID, e.SquadName, e.Leader.Primary(), true)
}

// claimFor resolves the squad name and claims the vehicle it names. With
// enforce set, a squad that cannot get its claim is disbanded.
func (p *Plugin) claimFor(teamID, squadID int, squadName, leader string, enforce bool) error {
	rec := core.ClaimRecord{TeamID: teamID, SquadID: squadID, SquadName: squadName}

	res := p.registry.Resolve(teamID, squadName)
	switch res.Outcome {
	case claims.NoMatch:
		p.logger.Debug("no vehicle matches squad name", "team", teamID, "name", squadName)
		return nil
	case claims.Ambiguous:
		rec.Outcome = outcomeAmbiguous
		p.recordClaim(rec)
		if enforce {
			p.warn(leader, msgAmbiguous(squadName))
			p.disband(teamID, squadID)
			p.registry.RemoveSquad(teamID, squadID)
		}
		p.logger.Info("ambiguous squad name", "team", teamID, "squad", squadID, "name", squadName, "candidates", res.Candidates)
		return nil
	}

	rec.Vehicle = res.Vehicle
	veh, _ := p.registry.Vehicle(teamID, res.Vehicle)

	result, err := p.registry.Claim(teamID, res.Vehicle, squadID)
	var capErr *claims.CapacityError
	switch {
	case errors.As(err, &capErr):
		rec.Outcome = outcomeRejected
		rec.Holders = capErr.Holders
		p.recordClaim(rec)
		if enforce {
			p.warn(leader, capErr.Error()+".")
			p.disband(teamID, squadID)
			p.registry.RemoveSquad(teamID, squadID)
		}
		p.logger.Info("claim rejected", "team", teamID, "squad", squadID, "vehicle", veh.DisplayName, "holders", capErr.Holders)
		return nil
	case err != nil:
		return fmt.Errorf("claiming %s for squad %d: %w", res.Vehicle, squadID, err)
	}

	switch {
	case result.Held:
		rec.Outcome = outcomeHeld
	case result.Replaced != "":
		rec.Outcome = outcomeReplaced
	default:
		rec.Outcome = outcomeClaimed
	}
	rec.Holders = p.registry.Claimants(teamID, res.Vehicle)
	p.recordClaim(rec)

	p.warn(leader, msgClaimGranted(veh.DisplayName))
	p.logger.Info("squad got claim", "faction", p.registry.Faction(teamID), "squad", squadID, "name", squadName, "vehicle", veh.DisplayName)
	return nil
}

// handleSquadList reconciles squads with the polled list, gives squads
// discovered there their claims and re-evaluates locked squads.
func (p *Plugin) handleSquadList(ev core.Event) error {
	e, ok := ev.(*core.SquadListSnapshot)
	if !ok {
		return fmt.Errorf("unexpected event %T", ev)
	}

	var errs []error
	for _, teamID := range p.registry.Teams() {
		res, err := p.registry.SyncSquads(teamID, e.Squads, e.Time)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, s := range res.Removed {
			p.forgetLock(squadKey{TeamID: teamID, SquadID: s.ID})
			p.logger.Debug("squad gone", "team", teamID, "squad", s.ID, "name", s.Name)
		}
		if p.enabled {
			for _, s := range res.Added {
				if err := p.claimFor(teamID, s.ID, s.Name, s.Creator, false); err != nil {
					errs = append(errs, err)
				}
			}
		}
		p.checkLocks(teamID)
	}
	return errors.Join(errs...)
}
