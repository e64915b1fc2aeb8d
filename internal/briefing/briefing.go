// Package briefing composes the markdown session briefing written at
// SessionStart and PreCompact: decisions and rejections, the active
// plan, and recent context, bounded to a character budget and cached
// as a snapshot at tier 1+.
package briefing

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cortex/internal/config"
	"cortex/internal/event"
	"cortex/internal/store"
)

const charsPerToken = 4

// Generate composes (or reuses a cached) session briefing for branch.
// At tier 1+, a non-expired snapshot is returned verbatim unless
// useCache is false; a freshly composed briefing is cached back as a
// snapshot when the store supports it.
func Generate(s store.EventStore, branch string, cfg config.Config, useCache bool) (string, error) {
	sqliteStore, hasSnapshots := s.(*store.SQLiteStore)

	if useCache && hasSnapshots {
		snap, ok, err := sqliteStore.GetValidSnapshot(branch)
		if err != nil {
			return "", fmt.Errorf("briefing: snapshot lookup failed: %w", err)
		}
		if ok {
			return snap.BriefingMarkdown, nil
		}
	}

	set, err := s.LoadForBriefing(branch)
	if err != nil {
		return "", fmt.Errorf("briefing: load failed: %w", err)
	}

	budget := cfg.MaxBriefingTokens * charsPerToken
	markdown, includedIDs := render(set, cfg, budget)

	if hasSnapshots {
		var lastID string
		if n := len(includedIDs); n > 0 {
			lastID = includedIDs[n-1]
		}
		if err := sqliteStore.SaveSnapshot(branch, markdown, includedIDs, lastID, cfg.SnapshotTTLHours); err != nil {
			return "", fmt.Errorf("briefing: snapshot save failed: %w", err)
		}
	}

	return markdown, nil
}

// render builds the briefing markdown from a three-part event split,
// stopping as soon as the next line would overflow budget. It returns
// the markdown and the ids of every event whose line was included.
func render(set store.BriefingSet, cfg config.Config, budget int) (string, []string) {
	var b strings.Builder
	var included []string
	used := 0

	add := func(line string) bool {
		if used+len(line) > budget {
			return false
		}
		b.WriteString(line)
		used += len(line)
		return true
	}

	overflowed := false

	if len(set.Immortal) > 0 && add("# Decisions & Rejections\n") {
		full := set.Immortal
		var summary []event.Event
		if len(full) > cfg.MaxFullDecisions {
			summary = full[cfg.MaxFullDecisions:]
			full = full[:cfg.MaxFullDecisions]
		}
		if len(summary) > cfg.MaxSummaryDecisions {
			summary = summary[:cfg.MaxSummaryDecisions]
		}

		for _, e := range full {
			if !add("- " + e.Content + "\n") {
				overflowed = true
				break
			}
			included = append(included, e.ID)
		}
		if !overflowed {
			for _, e := range summary {
				if !add("- " + summarizeLine(e.Content) + "\n") {
					overflowed = true
					break
				}
				included = append(included, e.ID)
			}
		}
	} else if len(set.Immortal) > 0 {
		overflowed = true
	}

	if !overflowed && len(set.ActivePlan) > 0 {
		if !add("## Active Plan\n") {
			overflowed = true
		}
		for _, e := range set.ActivePlan {
			if overflowed {
				break
			}
			if !add("- " + e.Content + "\n") {
				overflowed = true
				break
			}
			included = append(included, e.ID)
		}
	}

	if !overflowed && len(set.Recent) > 0 {
		if !add("## Recent Context\n") {
			overflowed = true
		}
		for _, e := range set.Recent {
			if overflowed || !add("- "+e.Content+"\n") {
				break
			}
			included = append(included, e.ID)
		}
	}

	return b.String(), included
}

func summarizeLine(content string) string {
	line := content
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	if len(line) > 80 {
		return line[:80] + "..."
	}
	return line
}

// WriteToFile writes markdown to path atomically, creating parent
// directories as needed.
func WriteToFile(path, markdown string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("briefing: mkdir failed: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(markdown), 0o644); err != nil {
		return fmt.Errorf("briefing: write failed: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("briefing: rename failed: %w", err)
	}
	return nil
}
