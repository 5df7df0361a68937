// Package convert provides functions to convert between GORM models and core records
package convert

import (
	"database/sql"
	"encoding/json"

	"github.com/squadwarden/warden/internal/model"
	"github.com/squadwarden/warden/pkg/core"
	"gorm.io/datatypes"
)

// toJSON marshals v into a JSON column, falling back to empty when v is empty.
func toJSON[T any](v []T) datatypes.JSON {
	if len(v) == 0 {
		return datatypes.JSON("[]")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(data)
}

// CoreToRound converts a core.Round to a GORM model.Round.
func CoreToRound(r core.Round) model.Round {
	var ended sql.NullTime
	if !r.EndedAt.IsZero() {
		ended = sql.NullTime{Time: r.EndedAt, Valid: true}
	}
	return model.Round{
		ID:        r.ID,
		LayerID:   r.LayerID,
		Teams:     toJSON(r.Teams),
		StartedAt: r.StartedAt,
		EndedAt:   ended,
	}
}

// CoreToAction converts a core.ActionRecord to a GORM model.Action.
func CoreToAction(a core.ActionRecord) model.Action {
	return model.Action{
		ID:       a.ID,
		RoundID:  a.RoundID,
		Time:     a.Time,
		Kind:     string(a.Kind),
		PlayerID: a.PlayerID,
		TeamID:   a.TeamID,
		SquadID:  a.SquadID,
		Message:  a.Message,
		Layer:    a.Layer,
		Error:    a.Error,
	}
}

// CoreToEscalation converts a core.EscalationRecord to a GORM model.Escalation.
func CoreToEscalation(e core.EscalationRecord) model.Escalation {
	return model.Escalation{
		ID:         e.ID,
		RoundID:    e.RoundID,
		Time:       e.Time,
		Engine:     e.Engine,
		Subject:    e.Subject,
		Stage:      e.Stage,
		Transition: e.Transition,
	}
}

// CoreToClaim converts a core.ClaimRecord to a GORM model.Claim.
func CoreToClaim(c core.ClaimRecord) model.Claim {
	return model.Claim{
		ID:        c.ID,
		RoundID:   c.RoundID,
		Time:      c.Time,
		TeamID:    c.TeamID,
		SquadID:   c.SquadID,
		SquadName: c.SquadName,
		Vehicle:   c.Vehicle,
		Outcome:   c.Outcome,
		Holders:   toJSON(c.Holders),
	}
}
