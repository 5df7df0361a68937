package sqlitestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/squadwarden/warden/internal/config"
	"github.com/squadwarden/warden/internal/database"
	"github.com/squadwarden/warden/internal/model"
	"github.com/squadwarden/warden/internal/storage"
	"github.com/squadwarden/warden/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ storage.Backend = (*Backend)(nil)

func TestCloseDumpsToDisk(t *testing.T) {
	dir := t.TempDir()
	dump := filepath.Join(dir, "dump.db")

	b, err := New(filepath.Join(dir, "live.db"), config.SQLiteConfig{DumpPath: dump}, config.GormConfig{FlushInterval: time.Hour}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())

	require.NoError(t, b.StartRound(&core.Round{ID: "r1", LayerID: "Narva_RAAS_v1", StartedAt: time.Now()}))
	require.NoError(t, b.RecordClaim(&core.ClaimRecord{ID: "c1", RoundID: "r1", Vehicle: "BTR-82A", Outcome: "claimed"}))
	require.NoError(t, b.Close())

	dumped, err := database.GetSqliteDB(dump)
	require.NoError(t, err)
	var claims []model.Claim
	require.NoError(t, dumped.Find(&claims).Error)
	require.Len(t, claims, 1)
	assert.Equal(t, "BTR-82A", claims[0].Vehicle)
}

func TestPeriodicDump(t *testing.T) {
	dir := t.TempDir()
	dump := filepath.Join(dir, "dump.db")

	b, err := New(filepath.Join(dir, "live.db"), config.SQLiteConfig{DumpPath: dump, DumpInterval: 20 * time.Millisecond}, config.GormConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.RecordAction(&core.ActionRecord{ID: "a1", Action: core.Action{Kind: core.ActionBroadcast}}))

	assert.Eventually(t, func() bool {
		_, err := os.Stat(dump)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCloseWithoutDumpPath(t *testing.T) {
	b, err := New(filepath.Join(t.TempDir(), "live.db"), config.SQLiteConfig{}, config.GormConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	require.NoError(t, b.Close())
}
