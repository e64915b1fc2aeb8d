package projections

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cortex/internal/config"
	"cortex/internal/event"
	"cortex/internal/store"
)

func mkEvent(t *testing.T, typ event.Type, content, sessionID string) event.Event {
	t.Helper()
	e, err := event.New(typ, content, sessionID, "proj", "main", nil, 0.8, "test")
	require.NoError(t, err)
	return e
}

func TestPartitionBySessionRecency(t *testing.T) {
	var events []event.Event
	// 3 distinct sessions, newest first.
	events = append(events, mkEvent(t, event.DecisionMade, "third", "s3"))
	events = append(events, mkEvent(t, event.DecisionMade, "second", "s2"))
	events = append(events, mkEvent(t, event.DecisionMade, "first", "s1"))

	active, archived := partitionBySessionRecency(events, 1, 2)
	require.Len(t, active, 1)
	require.Equal(t, "third", active[0].Content)
	require.Len(t, archived, 1)
	require.Equal(t, "second", archived[0].Content)
}

func TestRegenerateAllWritesFiles(t *testing.T) {
	s, err := store.OpenSQLiteStore(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(mkEvent(t, event.DecisionMade, "use SQLite for storage", "s1")))
	require.NoError(t, s.Append(mkEvent(t, event.PlanCreated, "ship projections", "s1")))

	cwd := t.TempDir()
	cfg := *config.DefaultConfig()
	require.NoError(t, RegenerateAll(s, cwd, "main", cfg, time.Now()))

	decisions, err := os.ReadFile(filepath.Join(cwd, ".cortex", "decisions.md"))
	require.NoError(t, err)
	require.Contains(t, string(decisions), "use SQLite for storage")
	require.Contains(t, string(decisions), "generated_at:")

	plan, err := os.ReadFile(filepath.Join(cwd, ".cortex", "active-plan.md"))
	require.NoError(t, err)
	require.Contains(t, string(plan), "ship projections")

	archive, err := os.ReadFile(filepath.Join(cwd, ".cortex", "decisions-archive.md"))
	require.NoError(t, err)
	require.Contains(t, string(archive), "none")
}
