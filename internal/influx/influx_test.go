package influx

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/squadwarden/warden/internal/config"
	"github.com/squadwarden/warden/internal/storage"
	"github.com/squadwarden/warden/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ storage.Backend = (*Backend)(nil)

var at = time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)

func line(p *influxdb2_write.Point) string {
	return influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
}

func TestPoints(t *testing.T) {
	tests := []struct {
		name     string
		point    *influxdb2_write.Point
		contains []string
	}{
		{
			name: "action",
			point: ActionPoint(&core.ActionRecord{
				RoundID: "r1", Time: at,
				Action: core.Action{Kind: core.ActionWarn, PlayerID: "p1", Message: "Claim violation"},
			}, "squad-1"),
			contains: []string{"action,", "failed=false", "kind=warn", "server=squad-1", `player_id="p1"`, "count=1i"},
		},
		{
			name: "failed action",
			point: ActionPoint(&core.ActionRecord{
				Time: at, Action: core.Action{Kind: core.ActionDisbandSquad}, Error: "timeout",
			}, "squad-1"),
			contains: []string{"failed=true", "kind=disband_squad"},
		},
		{
			name: "escalation",
			point: EscalationPoint(&core.EscalationRecord{
				Time: at, Engine: "theft", Subject: "p1", Stage: 1, Transition: core.TransitionEscalated,
			}, "squad-1"),
			contains: []string{"escalation,", "engine=theft", "transition=escalated", "stage=1i", `subject="p1"`},
		},
		{
			name: "claim",
			point: ClaimPoint(&core.ClaimRecord{
				Time: at, TeamID: 2, SquadID: 3, Vehicle: "BTR-82A", Outcome: "rejected", Holders: []int{1, 2},
			}, "squad-1"),
			contains: []string{"claim,", "outcome=rejected", "team=2", "holders=2i", "squad=3i"},
		},
		{
			name: "round",
			point: RoundPoint(&core.Round{
				ID: "r1", LayerID: "Narva_RAAS_v1", StartedAt: at,
				Teams: []core.TeamRoster{{ID: 1, Faction: "RGF"}, {ID: 2, Faction: "BAF"}},
			}, "squad-1", "started"),
			contains: []string{"round,", "phase=started", "team1=RGF", "team2=BAF", `layer="Narva_RAAS_v1"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := line(tt.point)
			for _, c := range tt.contains {
				assert.Contains(t, l, c)
			}
			assert.True(t, strings.HasSuffix(strings.TrimSpace(l), "1714586400000000000"))
		})
	}
}

func TestRoundPointUsesEndTime(t *testing.T) {
	r := &core.Round{ID: "r1", StartedAt: at, EndedAt: at.Add(time.Hour)}
	assert.Equal(t, at.Add(time.Hour), RoundPoint(r, "s", "ended").Time())
	assert.Equal(t, at, RoundPoint(r, "s", "started").Time())
}

func TestConnectDisabled(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), "")
	assert.Error(t, m.Connect(context.Background()))
}

func TestWritePointWithoutWriter(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), "")
	assert.Error(t, m.WritePoint(ActionPoint(&core.ActionRecord{Time: at}, "s")))
}

func TestBackendWritesBackupFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "influx_backup.log.gz")
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), path)
	require.NoError(t, m.OpenBackup())

	b := NewBackend(m, "squad-1")
	require.NoError(t, b.Init())
	require.NoError(t, b.StartRound(&core.Round{ID: "r1", StartedAt: at}))
	require.NoError(t, b.RecordAction(&core.ActionRecord{Time: at, Action: core.Action{Kind: core.ActionBroadcast}}))
	require.NoError(t, b.RecordEscalation(&core.EscalationRecord{Time: at, Engine: "lock"}))
	require.NoError(t, b.RecordClaim(&core.ClaimRecord{Time: at, Outcome: "claimed"}))
	require.NoError(t, b.EndRound(&core.Round{ID: "r1", StartedAt: at}))
	require.NoError(t, b.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "round,"))
	assert.True(t, strings.HasPrefix(lines[1], "action,"))
	assert.True(t, strings.HasPrefix(lines[4], "round,"))
}
