package claims

import (
	"slices"
	"strings"
)

// Outcome is the result class of a name resolution.
type Outcome int

const (
	NoMatch Outcome = iota
	Resolved
	Ambiguous
)

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case Ambiguous:
		return "ambiguous"
	default:
		return "no match"
	}
}

// Resolution is the answer to "which vehicle type does this label claim".
type Resolution struct {
	Outcome Outcome
	Vehicle string
	// Via is "name", "alias" or "group".
	Via string
	// Candidates lists the live types an ambiguous group label matched.
	Candidates []string
}

// Resolve maps a free-text label, usually a squad name, to one of the team's
// live vehicle types. Precedence: live type names (longest first), aliases,
// then group labels. It never changes registry state.
func (r *Registry) Resolve(teamID int, label string) Resolution {
	t, err := r.team(teamID)
	if err != nil {
		return Resolution{}
	}
	key := NormalizeLabel(label)
	if key == "" {
		return Resolution{}
	}

	for _, name := range t.names {
		if strings.HasPrefix(key, name) {
			return Resolution{Outcome: Resolved, Vehicle: name, Via: "name"}
		}
	}

	for _, alias := range r.catalog.aliasOrder {
		if !strings.HasPrefix(key, alias) {
			continue
		}
		target := r.catalog.aliases[alias]
		if _, live := t.vehicles[target]; !live {
			return Resolution{}
		}
		return Resolution{Outcome: Resolved, Vehicle: target, Via: "alias"}
	}

	for _, group := range r.catalog.groupOrder {
		if !strings.HasPrefix(key, group) {
			continue
		}
		var found []string
		for _, member := range r.catalog.groups[group] {
			if _, live := t.vehicles[member]; live && !slices.Contains(found, member) {
				found = append(found, member)
			}
		}
		switch len(found) {
		case 0:
			continue
		case 1:
			return Resolution{Outcome: Resolved, Vehicle: found[0], Via: "group"}
		default:
			slices.Sort(found)
			return Resolution{Outcome: Ambiguous, Via: "group", Candidates: found}
		}
	}

	return Resolution{}
}
