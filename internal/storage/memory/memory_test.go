package memory

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/squadwarden/warden/internal/config"
	"github.com/squadwarden/warden/internal/storage"
	"github.com/squadwarden/warden/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface checks
var (
	_ storage.Backend  = (*Backend)(nil)
	_ storage.Exporter = (*Backend)(nil)
)

var start = time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)

func testRound() *core.Round {
	return &core.Round{
		ID:      "5f0c1c8e-round",
		LayerID: "Narva_RAAS_v1",
		Teams: []core.TeamRoster{
			{ID: 1, Faction: "RGF", Vehicles: []core.VehicleSpec{{Name: "BTR-82A", Count: 2}, {Name: "T-72B3", Count: 1}}},
			{ID: 2, Faction: "BAF", Vehicles: []core.VehicleSpec{{Name: "FV510 Warrior", Count: 2}}},
		},
		StartedAt: start,
	}
}

func recordSample(t *testing.T, b *Backend) {
	t.Helper()
	require.NoError(t, b.RecordClaim(&core.ClaimRecord{
		ID: "c1", Time: start.Add(time.Second), TeamID: 1, SquadID: 2, SquadName: "BTR", Vehicle: "BTR-82A", Outcome: "claimed",
	}))
	require.NoError(t, b.RecordEscalation(&core.EscalationRecord{
		ID: "e1", Time: start.Add(3 * time.Second), Engine: "theft", Subject: "p1", Stage: 0, Transition: core.TransitionOpened,
	}))
	require.NoError(t, b.RecordAction(&core.ActionRecord{
		ID: "a1", Time: start.Add(2 * time.Second),
		Action: core.Action{Kind: core.ActionWarn, PlayerID: "p1", Message: "You have the claim for BTR-82A."},
	}))
}

func readExport(t *testing.T, path string) RoundExport {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var export RoundExport
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		require.NoError(t, err)
		defer gz.Close()
		require.NoError(t, json.NewDecoder(gz).Decode(&export))
		return export
	}
	require.NoError(t, json.NewDecoder(f).Decode(&export))
	return export
}

func TestStartRoundResetsJournal(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.Init())

	require.NoError(t, b.StartRound(testRound()))
	recordSample(t, b)
	assert.Len(t, b.Actions(), 1)
	assert.Len(t, b.Escalations(), 1)
	assert.Len(t, b.Claims(), 1)

	next := testRound()
	next.ID = "next"
	require.NoError(t, b.StartRound(next))
	assert.Empty(t, b.Actions())
	assert.Empty(t, b.Escalations())
	assert.Empty(t, b.Claims())

	r, ok := b.Round()
	require.True(t, ok)
	assert.Equal(t, "next", r.ID)
}

func TestEndRoundExportsJSON(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir})

	round := testRound()
	require.NoError(t, b.StartRound(round))
	recordSample(t, b)

	ended := *round
	ended.EndedAt = start.Add(time.Hour)
	require.NoError(t, b.EndRound(&ended))

	path := b.LastExportPath()
	assert.Equal(t, filepath.Join(dir, "Narva_RAAS_v1_20240501_180000.json"), path)

	export := readExport(t, path)
	assert.Equal(t, round.ID, export.RoundID)
	assert.Equal(t, "Narva_RAAS_v1", export.LayerID)
	require.NotNil(t, export.EndedAt)
	assert.True(t, export.EndedAt.Equal(ended.EndedAt))
	assert.Equal(t, []TeamJSON{{ID: 1, Faction: "RGF", Vehicles: 3}, {ID: 2, Faction: "BAF", Vehicles: 2}}, export.Teams)
	require.Len(t, export.Actions, 1)
	assert.Equal(t, "warn", export.Actions[0].Kind)
	require.Len(t, export.Claims, 1)
	assert.Equal(t, "BTR-82A", export.Claims[0].Vehicle)

	require.Len(t, export.Timeline, 3)
	assert.Equal(t, "claim", export.Timeline[0][1])
	assert.Equal(t, "action", export.Timeline[1][1])
	assert.Equal(t, "escalation", export.Timeline[2][1])

	_, ok := b.Round()
	assert.False(t, ok)
}

func TestEndRoundGzip(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: true})

	require.NoError(t, b.StartRound(testRound()))
	recordSample(t, b)
	require.NoError(t, b.EndRound(testRound()))

	path := b.LastExportPath()
	assert.True(t, strings.HasSuffix(path, ".json.gz"))
	export := readExport(t, path)
	assert.Len(t, export.Escalations, 1)
	assert.Nil(t, export.EndedAt)
}

func TestEndRoundIgnoresOtherRound(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.StartRound(testRound()))

	require.NoError(t, b.EndRound(&core.Round{ID: "other"}))
	assert.Empty(t, b.LastExportPath())

	_, ok := b.Round()
	assert.True(t, ok)
}

func TestCloseExportsOpenRound(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.Close())
	assert.Empty(t, b.LastExportPath())

	require.NoError(t, b.StartRound(testRound()))
	require.NoError(t, b.Close())
	assert.NotEmpty(t, b.LastExportPath())
}

func TestExportFilenameSanitized(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir})

	round := testRound()
	round.LayerID = "Jensen's Range: v1"
	require.NoError(t, b.StartRound(round))
	require.NoError(t, b.EndRound(round))

	assert.Equal(t, filepath.Join(dir, "Jensen's_Range__v1_20240501_180000.json"), b.LastExportPath())
}

func TestActionTarget(t *testing.T) {
	tests := []struct {
		name   string
		action core.Action
		want   string
	}{
		{"warn", core.Action{Kind: core.ActionWarn, PlayerID: "p1"}, "p1"},
		{"switch", core.Action{Kind: core.ActionSwitchTeam, PlayerID: "p2"}, "p2"},
		{"disband", core.Action{Kind: core.ActionDisbandSquad, TeamID: 1, SquadID: 4}, "1:4"},
		{"layer", core.Action{Kind: core.ActionSetNextLayer, Layer: "Gorodok_AAS_v1"}, "Gorodok_AAS_v1"},
		{"broadcast", core.Action{Kind: core.ActionBroadcast, Message: "hi"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, actionTarget(tt.action))
		})
	}
}
