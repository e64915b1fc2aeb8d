package migrate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cortex/internal/config"
	"cortex/internal/event"
	"cortex/internal/store"
)

func seedTier0Project(t *testing.T, dir string) {
	t.Helper()
	e, err := event.New(event.DecisionMade, "use SQLite for storage", "s1", "proj", "main", nil, 0.8, "test")
	require.NoError(t, err)
	data, err := json.Marshal([]event.Event{e})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "events.json"), data, 0o644))

	state := store.HookState{LastTranscriptPosition: 42, SessionCount: 1}
	stateData, err := json.Marshal(state)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.json"), stateData, 0o644))
}

func TestDetectTierNoStore(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	require.Equal(t, -1, DetectTier(dir, cfg))
}

func TestDetectTierFileOnly(t *testing.T) {
	dir := t.TempDir()
	seedTier0Project(t, dir)
	cfg := config.DefaultConfig()
	require.Equal(t, 0, DetectTier(dir, cfg))
}

func TestUpgradeTier0To1(t *testing.T) {
	dir := t.TempDir()
	seedTier0Project(t, dir)
	configPath := filepath.Join(dir, "..", "config.json")

	res := UpgradeTier0to1(dir, configPath, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), false)
	require.True(t, res.Success)
	require.Equal(t, 1, res.EventsMigrated)
	require.True(t, res.HookStateMigrated)
	require.NotEmpty(t, res.BackupPath)

	_, err := os.Stat(filepath.Join(dir, "archive", "events.json"))
	require.NoError(t, err)

	s, err := store.OpenSQLiteStore(store.DBPath(dir))
	require.NoError(t, err)
	defer s.Close()
	count, err := s.Count()
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestUpgradeTier0To1DryRunMakesNoChanges(t *testing.T) {
	dir := t.TempDir()
	seedTier0Project(t, dir)
	configPath := filepath.Join(dir, "..", "config.json")

	res := UpgradeTier0to1(dir, configPath, time.Now(), true)
	require.True(t, res.Success)
	require.Equal(t, 1, res.EventsMigrated)

	_, err := os.Stat(store.DBPath(dir))
	require.True(t, os.IsNotExist(err))
}

func TestUpgradeTier1To2Backfills(t *testing.T) {
	dir := t.TempDir()
	s, err := store.OpenSQLiteStore(store.DBPath(dir))
	require.NoError(t, err)
	e, err := event.New(event.KnowledgeAcquired, "embed me", "s1", "proj", "main", nil, 0.7, "test")
	require.NoError(t, err)
	require.NoError(t, s.Append(e))
	require.NoError(t, s.Close())

	embed := func(texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{1, 2, 3}
		}
		return out, nil
	}

	res := UpgradeTier1to2(dir, embed, nil, false)
	require.True(t, res.Success)
	require.Equal(t, 1, res.EventsMigrated)
}

func TestUpgradeTier1To2RequiresEmbedder(t *testing.T) {
	dir := t.TempDir()
	s, err := store.OpenSQLiteStore(store.DBPath(dir))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	res := UpgradeTier1to2(dir, nil, nil, false)
	require.False(t, res.Success)
	require.NotEmpty(t, res.Error)
}

func TestUpgradeTier2To3TogglesFlags(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.StorageTier = 2
	configPath := filepath.Join(t.TempDir(), "config.json")

	res := UpgradeTier2to3(cfg, configPath, false)
	require.True(t, res.Success)
	require.True(t, cfg.MCPEnabled)
	require.True(t, cfg.ProjectionsEnabled)
	require.Equal(t, 3, cfg.StorageTier)
}

func TestRollbackRestoresBackup(t *testing.T) {
	dir := t.TempDir()
	seedTier0Project(t, dir)
	configPath := filepath.Join(dir, "..", "config.json")

	res := UpgradeTier0to1(dir, configPath, time.Now(), false)
	require.True(t, res.Success)

	require.NoError(t, Rollback(dir, res.BackupPath))

	_, err := os.Stat(store.DBPath(dir))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "events.json"))
	require.NoError(t, err)
}
