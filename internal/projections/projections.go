// Package projections renders tier-3 human-readable markdown views of
// the event store to <project>/.cortex/: decisions.md (active
// decisions/rejections), decisions-archive.md (aged ones), and
// active-plan.md. Composition mirrors the briefing's section rules
// but carries no character budget.
package projections

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"cortex/internal/config"
	"cortex/internal/event"
	"cortex/internal/store"
)

// frontMatter is the small YAML metadata block written above each
// projection's markdown body.
type frontMatter struct {
	GeneratedAt string `yaml:"generated_at"`
	Branch      string `yaml:"branch"`
	EventCount  int    `yaml:"event_count"`
}

// RegenerateAll writes decisions.md, decisions-archive.md, and
// active-plan.md under <cwd>/.cortex/, splitting immortal events into
// an active window and an archived tail by distinct-session recency.
func RegenerateAll(s store.EventStore, cwd, branch string, cfg config.Config, now time.Time) error {
	set, err := s.LoadForBriefing(branch)
	if err != nil {
		return fmt.Errorf("projections: load failed: %w", err)
	}

	active, archived := partitionBySessionRecency(set.Immortal, cfg.DecisionActiveSessions, cfg.DecisionAgingSessions)

	dir := filepath.Join(cwd, ".cortex")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("projections: mkdir failed: %w", err)
	}

	if err := writeProjection(filepath.Join(dir, "decisions.md"), branch, now, active, renderDecisionsBody); err != nil {
		return err
	}
	if err := writeProjection(filepath.Join(dir, "decisions-archive.md"), branch, now, archived, renderDecisionsBody); err != nil {
		return err
	}
	if err := writeProjection(filepath.Join(dir, "active-plan.md"), branch, now, set.ActivePlan, renderPlanBody); err != nil {
		return err
	}
	return nil
}

// partitionBySessionRecency splits immortal events (sorted created-at
// descending) into an active window spanning the most recent
// activeSessions distinct session ids, an archived tail spanning the
// sessions after that up to the agingSessions-th most recent distinct
// session, and drops anything older still.
func partitionBySessionRecency(events []event.Event, activeSessions, agingSessions int) (active, archived []event.Event) {
	seen := make(map[string]bool)
	distinctCount := 0

	for _, e := range events {
		if !seen[e.SessionID] {
			seen[e.SessionID] = true
			distinctCount++
		}
		switch {
		case distinctCount <= activeSessions:
			active = append(active, e)
		case distinctCount <= agingSessions:
			archived = append(archived, e)
		default:
			return active, archived
		}
	}
	return active, archived
}

func writeProjection(path, branch string, now time.Time, events []event.Event, render func([]event.Event) string) error {
	fm := frontMatter{
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Branch:      branch,
		EventCount:  len(events),
	}
	fmYAML, err := yaml.Marshal(fm)
	if err != nil {
		return fmt.Errorf("projections: front matter marshal failed: %w", err)
	}

	content := "---\n" + string(fmYAML) + "---\n\n" + render(events)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("projections: write failed: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("projections: rename failed: %w", err)
	}
	return nil
}

func renderDecisionsBody(events []event.Event) string {
	if len(events) == 0 {
		return "# Decisions & Rejections\n\n_none_\n"
	}
	body := "# Decisions & Rejections\n\n"
	for _, e := range events {
		body += "- " + e.Content + "\n"
	}
	return body
}

func renderPlanBody(events []event.Event) string {
	if len(events) == 0 {
		return "## Active Plan\n\n_no active plan_\n"
	}
	body := "## Active Plan\n\n"
	for _, e := range events {
		body += "- " + e.Content + "\n"
	}
	return body
}
