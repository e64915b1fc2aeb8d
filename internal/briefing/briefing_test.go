package briefing

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"cortex/internal/config"
	"cortex/internal/event"
	"cortex/internal/store"
)

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.MaxBriefingTokens = 3000
	cfg.MaxFullDecisions = 50
	cfg.MaxSummaryDecisions = 30
	cfg.SnapshotTTLHours = 1
	return *cfg
}

func mkEvent(t *testing.T, typ event.Type, content string) event.Event {
	t.Helper()
	e, err := event.New(typ, content, "s1", "proj", "main", nil, 0.8, "test")
	require.NoError(t, err)
	return e
}

func TestRenderSkipsEmptySections(t *testing.T) {
	set := store.BriefingSet{}
	markdown, ids := render(set, testConfig(), 12000)
	require.Empty(t, markdown)
	require.Empty(t, ids)
}

func TestRenderDecisionsFullThenSummary(t *testing.T) {
	cfg := testConfig()
	cfg.MaxFullDecisions = 1
	cfg.MaxSummaryDecisions = 1

	e1 := mkEvent(t, event.DecisionMade, "use SQLite for storage")
	e2 := mkEvent(t, event.ApproachRejected, strings.Repeat("x", 120))

	set := store.BriefingSet{Immortal: []event.Event{e1, e2}}
	markdown, ids := render(set, cfg, 12000)

	require.Contains(t, markdown, "# Decisions & Rejections")
	require.Contains(t, markdown, "- use SQLite for storage\n")
	require.Contains(t, markdown, "...")
	require.Len(t, ids, 2)
}

func TestRenderActivePlanAndRecent(t *testing.T) {
	plan := mkEvent(t, event.PlanCreated, "ship the briefing module")
	step := mkEvent(t, event.PlanStepCompleted, "wrote render()")
	recent := mkEvent(t, event.FileExplored, "looked at store.go")

	set := store.BriefingSet{
		ActivePlan: []event.Event{plan, step},
		Recent:     []event.Event{recent},
	}
	markdown, _ := render(set, testConfig(), 12000)

	require.Contains(t, markdown, "## Active Plan")
	require.Contains(t, markdown, "ship the briefing module")
	require.Contains(t, markdown, "## Recent Context")
	require.Contains(t, markdown, "looked at store.go")
}

func TestRenderStopsAtBudget(t *testing.T) {
	var events []event.Event
	for i := 0; i < 120; i++ {
		typ := event.FileExplored
		switch i % 3 {
		case 0:
			typ = event.CommandRun
		case 1:
			typ = event.KnowledgeAcquired
		}
		events = append(events, mkEvent(t, typ, fmt.Sprintf("event number %d with some filler content here: %s", i, strings.Repeat("x", 55))))
	}
	set := store.BriefingSet{Recent: events}
	cfg := testConfig()
	budget := cfg.MaxBriefingTokens * charsPerToken

	markdown, ids := render(set, cfg, budget)
	require.LessOrEqual(t, len(markdown), budget)
	require.Less(t, len(ids), len(events))
}

func TestRenderImmortalPrecedesNonImmortalUnderOverflow(t *testing.T) {
	decision := mkEvent(t, event.DecisionMade, strings.Repeat("d", 200))
	recent := mkEvent(t, event.FileExplored, strings.Repeat("r", 200))

	set := store.BriefingSet{Immortal: []event.Event{decision}, Recent: []event.Event{recent}}
	budget := len("# Decisions & Rejections\n") + len("- "+decision.Content+"\n") - 1

	markdown, _ := render(set, testConfig(), budget)
	require.NotContains(t, markdown, recent.Content)
}

func TestRenderImmortalSectionPartiallyFitsUnderOverflow(t *testing.T) {
	fits := mkEvent(t, event.DecisionMade, strings.Repeat("a", 50))
	tooBig := mkEvent(t, event.DecisionMade, strings.Repeat("b", 200))
	third := mkEvent(t, event.DecisionMade, strings.Repeat("c", 50))

	set := store.BriefingSet{Immortal: []event.Event{fits, tooBig, third}}
	budget := len("# Decisions & Rejections\n") + len("- "+fits.Content+"\n") + 5

	markdown, ids := render(set, testConfig(), budget)
	require.Contains(t, markdown, fits.Content)
	require.NotContains(t, markdown, tooBig.Content)
	require.NotContains(t, markdown, third.Content)
	require.Equal(t, []string{fits.ID}, ids)
}

func TestGenerateUsesSnapshotCache(t *testing.T) {
	s, err := store.OpenSQLiteStore(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer s.Close()

	e := mkEvent(t, event.DecisionMade, "cache me")
	require.NoError(t, s.Append(e))

	cfg := testConfig()
	first, err := Generate(s, "main", cfg, true)
	require.NoError(t, err)
	require.Contains(t, first, "cache me")

	snap, ok, err := s.GetValidSnapshot("main")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first, snap.BriefingMarkdown)

	second, err := Generate(s, "main", cfg, true)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestGenerateBypassesCacheWhenDisabled(t *testing.T) {
	s, err := store.OpenSQLiteStore(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer s.Close()

	e := mkEvent(t, event.DecisionMade, "first decision")
	require.NoError(t, s.Append(e))

	cfg := testConfig()
	_, err = Generate(s, "main", cfg, true)
	require.NoError(t, err)

	e2 := mkEvent(t, event.DecisionMade, "second decision")
	require.NoError(t, s.Append(e2))

	markdown, err := Generate(s, "main", cfg, false)
	require.NoError(t, err)
	require.Contains(t, markdown, "second decision")
}

func TestWriteToFileCreatesParents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "rules", "cortex-briefing.md")
	require.NoError(t, WriteToFile(path, "# hello\n"))
}
