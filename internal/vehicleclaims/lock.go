package vehicleclaims

import (
	"fmt"

	"github.com/squadwarden/warden/internal/escalation"
	"github.com/squadwarden/warden/internal/util"
)

// squadKey identifies a squad within the round.
type squadKey struct {
	TeamID  int
	SquadID int
}

func (k squadKey) String() string {
	return fmt.Sprintf("%d:%d", k.TeamID, k.SquadID)
}

// lockCase is a locked squad below the minimum size.
type lockCase struct {
	Creator string
	Name    string
}

// lockWarns is the number of warnings before the disband stage, which is
// also the index of that stage.
func (p *Plugin) lockWarns() int {
	return max(p.cfg.LockedSquadWarns, 1)
}

func (p *Plugin) newLockEngine(deps Dependencies) (*escalation.Engine[squadKey, lockCase], error) {
	warns := p.lockWarns()
	stages := make([]escalation.Stage[squadKey, lockCase], 0, warns+1)
	for i := 0; i < warns; i++ {
		stages = append(stages, escalation.Stage[squadKey, lockCase]{
			Name:   fmt.Sprintf("warning-%d", i+1),
			Delay:  p.cfg.LockedSquadWarnWait,
			Action: p.lockWarning,
		})
	}
	stages = append(stages, escalation.Stage[squadKey, lockCase]{
		Name:   "disband",
		Delay:  p.cfg.LockedSquadDisband,
		Action: p.lockDisband,
	})

	return escalation.New(escalation.Config[squadKey, lockCase]{
		Name:     "squad-lock",
		Stages:   stages,
		Clock:    deps.Clock,
		Serial:   deps.Serial,
		Logger:   deps.Logger,
		Recorder: deps.Recorder,
		RoundID:  deps.RoundID,
	})
}

func (p *Plugin) lockWarning(key squadKey, c lockCase) {
	left := util.Seconds(p.lock.Remaining(key))
	p.warn(c.Creator, msgLockWarning(p.cfg.LockedSquadMinSize, left))
	p.logger.Info("squad warned for locking", "team", key.TeamID, "squad", key.SquadID, "name", c.Name, "disband_in", left)
}

// lockDisband re-checks the squad before acting: it may have disappeared
// or been fixed between the last snapshot and the timer.
func (p *Plugin) lockDisband(key squadKey, c lockCase) {
	s, ok := p.registry.Squad(key.TeamID, key.SquadID)
	if !ok || !p.lockViolation(key.TeamID, s.ID, s.Name, s.Size, s.Locked) {
		// Warnings are used up: the next violation goes straight to disband.
		if ok {
			p.lockStrikes[key] = p.lockWarns()
		}
		p.logger.Debug("lock case no longer applies", "team", key.TeamID, "squad", key.SquadID)
		return
	}
	if !p.enabled {
		return
	}

	p.warn(c.Creator, msgLockDisbanded)
	p.disband(key.TeamID, key.SquadID)
	p.broadcast(msgLockBroadcast(p.registry.Faction(key.TeamID), key.SquadID, s.Name))
	p.registry.RemoveSquad(key.TeamID, key.SquadID)
	delete(p.lockStrikes, key)
	p.logger.Info("squad disbanded for locking", "team", key.TeamID, "squad", key.SquadID, "name", s.Name)
}

// lockViolation reports whether a squad is locked below the minimum size
// without a claim or an exempt name.
func (p *Plugin) lockViolation(teamID, squadID int, name string, size int, locked bool) bool {
	if !locked || size >= p.cfg.LockedSquadMinSize {
		return false
	}
	if _, claimed := p.registry.ClaimOf(teamID, squadID); claimed {
		return false
	}
	return !p.registry.Catalog().LockExempt(name)
}

// checkLocks opens or pauses lock cases for every known squad of the team.
// A squad that complies keeps the warnings it already got, so unlocking for
// one snapshot after each warning still ends in a disband.
func (p *Plugin) checkLocks(teamID int) {
	if p.lock == nil {
		return
	}
	for _, s := range p.registry.Squads(teamID) {
		key := squadKey{TeamID: teamID, SquadID: s.ID}
		if p.enabled && p.lockViolation(teamID, s.ID, s.Name, s.Size, s.Locked) {
			strikes := p.lockStrikes[key]
			if p.lock.Resume(key, lockCase{Creator: s.Creator, Name: s.Name}, strikes) {
				p.logger.Debug("locked squad below minimum size", "team", teamID, "squad", s.ID, "size", s.Size, "warnings", strikes)
			}
			continue
		}
		if c, ok := p.lock.Get(key); ok {
			if c.Stage > 0 {
				p.lockStrikes[key] = c.Stage
			}
			p.lock.Clear(key)
		}
	}
}

// forgetLock drops the case and the warning history of a squad.
func (p *Plugin) forgetLock(key squadKey) {
	delete(p.lockStrikes, key)
	if p.lock != nil {
		p.lock.Clear(key)
	}
}

// resetLocks drops every lock case and warning history.
func (p *Plugin) resetLocks() {
	clear(p.lockStrikes)
	if p.lock != nil {
		p.lock.Reset()
	}
}
