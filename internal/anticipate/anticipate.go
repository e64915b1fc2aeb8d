// Package anticipate implements per-prompt anticipatory retrieval: at
// UserPromptSubmit (tier 2+), it embeds the prompt, runs hybrid search
// scoped to the current branch, and formats the hits into a markdown
// capsule the host surfaces back to the assistant.
package anticipate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cortex/internal/embedding"
	"cortex/internal/event"
	"cortex/internal/identity"
	"cortex/internal/search"
	"cortex/internal/store"
)

const (
	resultLimit  = 5
	contentChars = 150
	capsuleCap   = 2000
)

// RetrieveRelevantContext runs anticipatory retrieval for prompt against
// s, scoped to branch (auto-detected from root when empty). It returns
// nil results when storageTier < 2, the prompt is blank, the embedder
// is nil, or nothing matches.
func RetrieveRelevantContext(ctx context.Context, s *store.SQLiteStore, engine embedding.EmbeddingEngine, storageTier int, root, branch, prompt string) ([]search.HybridResult, error) {
	if storageTier < 2 || strings.TrimSpace(prompt) == "" || engine == nil {
		return nil, nil
	}
	if branch == "" {
		branch = identity.GitBranch(root)
	}

	vec, err := engine.Embed(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("anticipate: embed failed: %w", err)
	}

	results, err := search.Hybrid(s, prompt, vec, search.Options{BranchFilter: branch, Limit: resultLimit})
	if err != nil {
		return nil, fmt.Errorf("anticipate: hybrid search failed: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results, nil
}

// FormatRelevantContext renders hits into the "# Relevant Context"
// markdown capsule, capped at capsuleCap characters.
func FormatRelevantContext(results []search.HybridResult) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("# Relevant Context\n\n_Anticipatory retrieval based on your message:_\n\n")
	header := b.String()

	body := make([]string, 0, len(results))
	for _, r := range results {
		body = append(body, formatLine(r))
	}

	used := len(header)
	var out strings.Builder
	out.WriteString(header)
	included := 0
	for _, line := range body {
		if used+len(line) > capsuleCap {
			break
		}
		out.WriteString(line)
		used += len(line)
		included++
	}
	if included < len(body) {
		notice := fmt.Sprintf("\n_(%d more results truncated)_\n", len(body)-included)
		for included > 0 && used+len(notice) > capsuleCap {
			included--
			used -= len(body[included])
			notice = fmt.Sprintf("\n_(%d more results truncated)_\n", len(body)-included)
		}
		out.Reset()
		out.WriteString(header)
		for _, line := range body[:included] {
			out.WriteString(line)
		}
		out.WriteString(notice)
	}
	return out.String()
}

func formatLine(r search.HybridResult) string {
	var ranks []string
	if r.KeywordRank > 0 {
		ranks = append(ranks, fmt.Sprintf("keyword #%d", r.KeywordRank))
	}
	if r.VectorRank > 0 {
		ranks = append(ranks, fmt.Sprintf("semantic #%d", r.VectorRank))
	}
	relevance := ""
	if len(ranks) > 0 {
		relevance = " (" + strings.Join(ranks, ", ") + ")"
	}

	content := r.Snippet
	if content == "" {
		content = truncateContent(r.Event.Content, contentChars)
	}

	return fmt.Sprintf("- **%s**%s: %s\n", event.TitleLabel(r.Event.Type), relevance, content)
}

func truncateContent(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// WriteRelevantContextToFile writes content to path atomically. When
// content is empty, it deletes any stale file instead of writing one.
func WriteRelevantContextToFile(path, content string) error {
	if strings.TrimSpace(content) == "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("anticipate: failed to remove stale context file: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("anticipate: mkdir failed: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("anticipate: write failed: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("anticipate: rename failed: %w", err)
	}
	return nil
}
