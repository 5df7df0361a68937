package convert

import (
	"encoding/json"

	"github.com/squadwarden/warden/internal/model"
	"github.com/squadwarden/warden/pkg/core"
)

// RoundToCore converts a GORM model.Round to a core.Round.
func RoundToCore(r model.Round) core.Round {
	result := core.Round{
		ID:        r.ID,
		LayerID:   r.LayerID,
		StartedAt: r.StartedAt,
	}
	if r.EndedAt.Valid {
		result.EndedAt = r.EndedAt.Time
	}
	if len(r.Teams) > 0 {
		_ = json.Unmarshal(r.Teams, &result.Teams)
	}
	if len(result.Teams) == 0 {
		result.Teams = nil
	}
	return result
}

// ActionToCore converts a GORM model.Action to a core.ActionRecord.
func ActionToCore(a model.Action) core.ActionRecord {
	return core.ActionRecord{
		ID:      a.ID,
		RoundID: a.RoundID,
		Time:    a.Time,
		Action: core.Action{
			Kind:     core.ActionKind(a.Kind),
			PlayerID: a.PlayerID,
			TeamID:   a.TeamID,
			SquadID:  a.SquadID,
			Message:  a.Message,
			Layer:    a.Layer,
		},
		Error: a.Error,
	}
}

// EscalationToCore converts a GORM model.Escalation to a core.EscalationRecord.
func EscalationToCore(e model.Escalation) core.EscalationRecord {
	return core.EscalationRecord{
		ID:         e.ID,
		RoundID:    e.RoundID,
		Time:       e.Time,
		Engine:     e.Engine,
		Subject:    e.Subject,
		Stage:      e.Stage,
		Transition: e.Transition,
	}
}

// ClaimToCore converts a GORM model.Claim to a core.ClaimRecord.
func ClaimToCore(c model.Claim) core.ClaimRecord {
	result := core.ClaimRecord{
		ID:        c.ID,
		RoundID:   c.RoundID,
		Time:      c.Time,
		TeamID:    c.TeamID,
		SquadID:   c.SquadID,
		SquadName: c.SquadName,
		Vehicle:   c.Vehicle,
		Outcome:   c.Outcome,
	}
	if len(c.Holders) > 0 {
		_ = json.Unmarshal(c.Holders, &result.Holders)
	}
	if len(result.Holders) == 0 {
		result.Holders = nil
	}
	return result
}
