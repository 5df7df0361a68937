package claims

import (
	"slices"
	"time"

	"github.com/squadwarden/warden/pkg/core"
)

// AddSquad registers a freshly created squad. Claims held under the reused
// squad number and by squads no longer known are pruned first.
func (r *Registry) AddSquad(teamID int, s Squad) ([]PrunedClaim, error) {
	t, err := r.team(teamID)
	if err != nil {
		return nil, err
	}

	live := make([]int, 0, len(t.squads))
	for id := range t.squads {
		if id != s.ID {
			live = append(live, id)
		}
	}
	pruned := t.prune(live, s.ID, r.logger)

	if s.Locked && s.LockedSince.IsZero() {
		s.LockedSince = s.CreatedAt
	}
	t.squads[s.ID] = &s
	return pruned, nil
}

// SyncResult reports what SyncSquads changed.
type SyncResult struct {
	Added   []Squad
	Removed []Squad
	Pruned  []PrunedClaim
}

// SyncSquads reconciles the team's squads with a polled list taken at asOf.
// Known squads missing from the list are removed unless they were created
// after asOf less the clock skew; squads in the list that were never seen
// are added.
func (r *Registry) SyncSquads(teamID int, infos []core.SquadInfo, asOf time.Time) (SyncResult, error) {
	t, err := r.team(teamID)
	if err != nil {
		return SyncResult{}, err
	}

	var res SyncResult
	present := make(map[int]core.SquadInfo, len(infos))
	for _, info := range infos {
		if info.TeamID == teamID {
			present[info.SquadID] = info
		}
	}

	for _, id := range sortedKeys(t.squads) {
		s := t.squads[id]
		if _, ok := present[id]; ok {
			continue
		}
		if s.CreatedAt.After(asOf.Add(-r.skew)) {
			continue
		}
		delete(t.squads, id)
		res.Removed = append(res.Removed, *s)
	}

	var added []*Squad
	for _, id := range sortedKeys(present) {
		info := present[id]
		s, known := t.squads[id]
		if !known {
			s = &Squad{ID: id, Name: info.Name, Creator: info.Creator.Primary()}
			t.squads[id] = s
			added = append(added, s)
		}
		if s.Name == "" {
			s.Name = info.Name
		}
		if s.Creator == "" {
			s.Creator = info.Creator.Primary()
		}
		s.Size = info.Size
		switch {
		case info.Locked && !s.Locked:
			s.LockedSince = asOf
		case !info.Locked:
			s.LockedSince = time.Time{}
		}
		s.Locked = info.Locked
	}

	for _, s := range added {
		res.Added = append(res.Added, *s)
	}
	res.Pruned = t.prune(sortedKeys(t.squads), 0, r.logger)
	return res, nil
}

// Squad returns a copy of the squad's metadata.
func (r *Registry) Squad(teamID, squadID int) (Squad, bool) {
	t, err := r.team(teamID)
	if err != nil {
		return Squad{}, false
	}
	s, ok := t.squads[squadID]
	if !ok {
		return Squad{}, false
	}
	return *s, true
}

// Squads returns copies of the team's squads, sorted by number.
func (r *Registry) Squads(teamID int) []Squad {
	t, err := r.team(teamID)
	if err != nil {
		return nil
	}
	out := make([]Squad, 0, len(t.squads))
	for _, id := range sortedKeys(t.squads) {
		out = append(out, *t.squads[id])
	}
	return out
}

// RemoveSquad forgets a squad and drops its claim.
func (r *Registry) RemoveSquad(teamID, squadID int) bool {
	t, err := r.team(teamID)
	if err != nil {
		return false
	}
	if _, ok := t.squads[squadID]; !ok {
		return false
	}
	delete(t.squads, squadID)
	t.prune(slices.DeleteFunc(sortedKeys(t.squads), func(id int) bool { return id == squadID }), squadID, r.logger)
	return true
}
