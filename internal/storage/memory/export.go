package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/squadwarden/warden/pkg/core"
)

// RoundExport is the root JSON structure
type RoundExport struct {
	RoundID     string           `json:"roundId"`
	LayerID     string           `json:"layerId"`
	Teams       []TeamJSON       `json:"teams"`
	StartedAt   time.Time        `json:"startedAt"`
	EndedAt     *time.Time       `json:"endedAt,omitempty"`
	Actions     []ActionJSON     `json:"actions"`
	Escalations []EscalationJSON `json:"escalations"`
	Claims      []ClaimJSON      `json:"claims"`
	Timeline    [][]any          `json:"timeline"`
}

// TeamJSON is one team's faction for the round
type TeamJSON struct {
	ID       int    `json:"id"`
	Faction  string `json:"faction"`
	Vehicles int    `json:"vehicles"`
}

// ActionJSON is one issued control request
type ActionJSON struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Kind     string    `json:"kind"`
	PlayerID string    `json:"playerId,omitempty"`
	TeamID   int       `json:"teamId,omitempty"`
	SquadID  int       `json:"squadId,omitempty"`
	Message  string    `json:"message,omitempty"`
	Layer    string    `json:"layer,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// EscalationJSON is one escalation case transition
type EscalationJSON struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	Engine     string    `json:"engine"`
	Subject    string    `json:"subject"`
	Stage      int       `json:"stage"`
	Transition string    `json:"transition"`
}

// ClaimJSON is one claim decision
type ClaimJSON struct {
	ID        string    `json:"id"`
	Time      time.Time `json:"time"`
	TeamID    int       `json:"teamId"`
	SquadID   int       `json:"squadId"`
	SquadName string    `json:"squadName"`
	Vehicle   string    `json:"vehicle,omitempty"`
	Outcome   string    `json:"outcome"`
	Holders   []int     `json:"holders,omitempty"`
}

// exportJSON writes the round journal to a (optionally gzipped) JSON file
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	layer := strings.NewReplacer(" ", "_", ":", "_", "/", "_").Replace(b.round.LayerID)
	if layer == "" {
		layer = "unknown"
	}
	timestamp := b.round.StartedAt.UTC().Format("20060102_150405")

	filename := fmt.Sprintf("%s_%s.json", layer, timestamp)
	if b.cfg.CompressOutput {
		filename += ".gz"
	}
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() RoundExport {
	export := RoundExport{
		RoundID:     b.round.ID,
		LayerID:     b.round.LayerID,
		StartedAt:   b.round.StartedAt,
		Teams:       make([]TeamJSON, 0, len(b.round.Teams)),
		Actions:     make([]ActionJSON, 0, len(b.actions)),
		Escalations: make([]EscalationJSON, 0, len(b.escalations)),
		Claims:      make([]ClaimJSON, 0, len(b.claims)),
		Timeline:    make([][]any, 0, len(b.actions)+len(b.escalations)+len(b.claims)),
	}
	if !b.round.EndedAt.IsZero() {
		ended := b.round.EndedAt
		export.EndedAt = &ended
	}

	for _, t := range b.round.Teams {
		n := 0
		for _, v := range t.Vehicles {
			n += v.Count
		}
		export.Teams = append(export.Teams, TeamJSON{ID: t.ID, Faction: t.Faction, Vehicles: n})
	}

	type entry struct {
		at  time.Time
		row []any
	}
	var timeline []entry

	// Format: [unixMillis, "action", kind, target, message]
	for _, a := range b.actions {
		export.Actions = append(export.Actions, ActionJSON{
			ID:       a.ID,
			Time:     a.Time,
			Kind:     string(a.Kind),
			PlayerID: a.PlayerID,
			TeamID:   a.TeamID,
			SquadID:  a.SquadID,
			Message:  a.Message,
			Layer:    a.Layer,
			Error:    a.Error,
		})
		timeline = append(timeline, entry{a.Time, []any{a.Time.UnixMilli(), "action", string(a.Kind), actionTarget(a.Action), a.Message}})
	}

	// Format: [unixMillis, "escalation", engine, subject, transition, stage]
	for _, e := range b.escalations {
		export.Escalations = append(export.Escalations, EscalationJSON{
			ID:         e.ID,
			Time:       e.Time,
			Engine:     e.Engine,
			Subject:    e.Subject,
			Stage:      e.Stage,
			Transition: e.Transition,
		})
		timeline = append(timeline, entry{e.Time, []any{e.Time.UnixMilli(), "escalation", e.Engine, e.Subject, e.Transition, e.Stage}})
	}

	// Format: [unixMillis, "claim", "team:squad", vehicle, outcome]
	for _, c := range b.claims {
		export.Claims = append(export.Claims, ClaimJSON{
			ID:        c.ID,
			Time:      c.Time,
			TeamID:    c.TeamID,
			SquadID:   c.SquadID,
			SquadName: c.SquadName,
			Vehicle:   c.Vehicle,
			Outcome:   c.Outcome,
			Holders:   c.Holders,
		})
		timeline = append(timeline, entry{c.Time, []any{c.Time.UnixMilli(), "claim", fmt.Sprintf("%d:%d", c.TeamID, c.SquadID), c.Vehicle, c.Outcome}})
	}

	slices.SortStableFunc(timeline, func(a, b entry) int { return a.at.Compare(b.at) })
	for _, e := range timeline {
		export.Timeline = append(export.Timeline, e.row)
	}

	return export
}

func actionTarget(a core.Action) string {
	switch a.Kind {
	case core.ActionWarn, core.ActionSwitchTeam:
		return a.PlayerID
	case core.ActionDisbandSquad:
		return fmt.Sprintf("%d:%d", a.TeamID, a.SquadID)
	case core.ActionSetNextLayer:
		return a.Layer
	default:
		return ""
	}
}

func writeJSON(path string, data RoundExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(data)
}

func writeGzipJSON(path string, data RoundExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	if err := json.NewEncoder(gzWriter).Encode(data); err != nil {
		gzWriter.Close()
		return err
	}
	return gzWriter.Close()
}
