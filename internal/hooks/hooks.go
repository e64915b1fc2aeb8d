// Package hooks implements the four lifecycle handlers the host
// invokes: Stop, PreCompact, SessionStart, UserPromptSubmit. Each is an
// exception firewall — every internal error is caught, logged to
// stderr with a "[Cortex] <hook> error:" prefix, and the handler still
// returns 0 so the host is never blocked by Cortex.
package hooks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cortex/internal/anticipate"
	"cortex/internal/briefing"
	"cortex/internal/config"
	"cortex/internal/embedding"
	"cortex/internal/extract"
	"cortex/internal/identity"
	"cortex/internal/logging"
	"cortex/internal/projections"
	"cortex/internal/store"
	"cortex/internal/transcript"
)

// StopPayload is the Stop hook's stdin JSON shape.
type StopPayload struct {
	Cwd             string `json:"cwd"`
	TranscriptPath  string `json:"transcript_path"`
	SessionID       string `json:"session_id"`
	StopHookActive  bool   `json:"stop_hook_active"`
}

// PreCompactPayload is the PreCompact hook's stdin JSON shape.
type PreCompactPayload struct {
	Cwd string `json:"cwd"`
}

// SessionStartPayload is the SessionStart hook's stdin JSON shape.
type SessionStartPayload struct {
	Cwd string `json:"cwd"`
}

// UserPromptSubmitPayload is the UserPromptSubmit hook's stdin JSON shape.
type UserPromptSubmitPayload struct {
	Cwd    string `json:"cwd"`
	Prompt string `json:"prompt"`
}

func briefingPath(cwd string) string {
	return filepath.Join(cwd, ".claude", "rules", "cortex-briefing.md")
}

func relevantContextPath(cwd string) string {
	return filepath.Join(cwd, ".claude", "rules", "cortex-relevant-context.md")
}

// loaded bundles the process-wide config and per-project store opened
// for a hook invocation.
type loaded struct {
	cfg       *config.Config
	id        identity.Identity
	s         store.EventStore
	hookState store.HookStateStore
}

func open(cwd string) (*loaded, error) {
	base := config.DefaultConfig()
	cfg, err := config.Load(config.ConfigPath(base.CortexHome))
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	id := identity.Identify(cwd)
	projectDir := cfg.ProjectDir(id.Hash)
	_ = logging.Initialize(projectDir)

	s, err := store.Open(projectDir, cfg.StorageTier)
	if err != nil {
		return nil, fmt.Errorf("store open: %w", err)
	}
	hs, err := store.OpenHookState(projectDir, s)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("hook state open: %w", err)
	}
	return &loaded{cfg: cfg, id: id, s: s, hookState: hs}, nil
}

// HandleStop implements the Stop hook: incremental extraction from the
// transcript, append, hook-state persistence, and (opt-in) projection
// regeneration.
func HandleStop(payload StopPayload, regenerateProjections bool) int {
	defer recoverAndLog("stop")
	if payload.StopHookActive {
		return 0
	}
	if err := runStop(payload, regenerateProjections); err != nil {
		logHookError("stop", err)
	}
	return 0
}

func runStop(payload StopPayload, regenerateProjections bool) error {
	if payload.TranscriptPath == "" {
		return nil
	}

	l, err := open(payload.Cwd)
	if err != nil {
		return err
	}
	defer l.s.Close()

	state, err := l.hookState.Load()
	if err != nil {
		return err
	}
	if payload.TranscriptPath != state.LastTranscriptPath {
		state.LastTranscriptPosition = 0
	}

	reader := transcript.NewReader(payload.TranscriptPath)
	entries, newOffset, err := reader.ReadNew(state.LastTranscriptPosition)
	if err != nil {
		return err
	}

	ctx := extract.Context{SessionID: payload.SessionID, Project: l.id.Path, GitBranch: l.id.Branch}
	events := extract.Pipeline(ctx, entries)
	if len(events) > 0 {
		if _, err := l.s.AppendMany(events); err != nil {
			return err
		}
	}

	state.LastTranscriptPosition = newOffset
	state.LastTranscriptPath = payload.TranscriptPath
	state.LastSessionID = payload.SessionID
	state.SessionCount++
	state.LastExtractionTime = time.Now().UTC().Format(time.RFC3339)
	if err := l.hookState.Save(state); err != nil {
		return err
	}

	if regenerateProjections && l.cfg.StorageTier >= 3 {
		if err := projections.RegenerateAll(l.s, payload.Cwd, l.id.Branch, *l.cfg, time.Now()); err != nil {
			return err
		}
	}
	return nil
}

// HandlePreCompact implements the PreCompact hook: discover the latest
// transcript, run the same incremental extraction as Stop if found, then
// always regenerate the briefing.
func HandlePreCompact(payload PreCompactPayload) int {
	defer recoverAndLog("precompact")
	if err := runPreCompact(payload); err != nil {
		logHookError("precompact", err)
	}
	return 0
}

func runPreCompact(payload PreCompactPayload) error {
	l, err := open(payload.Cwd)
	if err != nil {
		return err
	}
	defer l.s.Close()

	if dir := transcript.FindTranscriptDir(payload.Cwd); dir != "" {
		if path := transcript.FindLatestTranscript(dir); path != "" {
			state, err := l.hookState.Load()
			if err != nil {
				return err
			}
			if path != state.LastTranscriptPath {
				state.LastTranscriptPosition = 0
			}
			reader := transcript.NewReader(path)
			entries, newOffset, err := reader.ReadNew(state.LastTranscriptPosition)
			if err != nil {
				return err
			}
			ctx := extract.Context{SessionID: state.LastSessionID, Project: l.id.Path, GitBranch: l.id.Branch}
			events := extract.Pipeline(ctx, entries)
			if len(events) > 0 {
				if _, err := l.s.AppendMany(events); err != nil {
					return err
				}
			}
			state.LastTranscriptPosition = newOffset
			state.LastTranscriptPath = path
			state.LastExtractionTime = time.Now().UTC().Format(time.RFC3339)
			if err := l.hookState.Save(state); err != nil {
				return err
			}
		}
	}

	markdown, err := briefing.Generate(l.s, l.id.Branch, *l.cfg, true)
	if err != nil {
		return err
	}
	return briefing.WriteToFile(briefingPath(payload.Cwd), markdown)
}

// HandleSessionStart implements the SessionStart hook: always write the
// session briefing.
func HandleSessionStart(payload SessionStartPayload) int {
	defer recoverAndLog("session-start")
	if err := runSessionStart(payload); err != nil {
		logHookError("session-start", err)
	}
	return 0
}

func runSessionStart(payload SessionStartPayload) error {
	l, err := open(payload.Cwd)
	if err != nil {
		return err
	}
	defer l.s.Close()

	markdown, err := briefing.Generate(l.s, l.id.Branch, *l.cfg, true)
	if err != nil {
		return err
	}
	return briefing.WriteToFile(briefingPath(payload.Cwd), markdown)
}

// HandleUserPromptSubmit implements the UserPromptSubmit hook (tier 2+):
// anticipatory retrieval scoped to the current branch.
func HandleUserPromptSubmit(payload UserPromptSubmitPayload, engine embedding.EmbeddingEngine) int {
	defer recoverAndLog("user-prompt-submit")
	if err := runUserPromptSubmit(payload, engine); err != nil {
		logHookError("user-prompt-submit", err)
	}
	return 0
}

func runUserPromptSubmit(payload UserPromptSubmitPayload, engine embedding.EmbeddingEngine) error {
	l, err := open(payload.Cwd)
	if err != nil {
		return err
	}
	defer l.s.Close()

	if l.cfg.StorageTier < 2 {
		return nil
	}
	sqliteStore, ok := l.s.(*store.SQLiteStore)
	if !ok {
		return nil
	}

	ctxTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results, err := anticipate.RetrieveRelevantContext(ctxTimeout, sqliteStore, engine, l.cfg.StorageTier, payload.Cwd, l.id.Branch, payload.Prompt)
	if err != nil {
		_ = anticipate.WriteRelevantContextToFile(relevantContextPath(payload.Cwd), "")
		return err
	}

	markdown := anticipate.FormatRelevantContext(results)
	return anticipate.WriteRelevantContextToFile(relevantContextPath(payload.Cwd), markdown)
}

func recoverAndLog(hook string) {
	if r := recover(); r != nil {
		msg := fmt.Sprintf("[Cortex] %s error: %v", hook, r)
		fmt.Fprintln(os.Stderr, msg)
		logging.HooksError("%s", msg)
	}
}

func logHookError(hook string, err error) {
	msg := fmt.Sprintf("[Cortex] %s error: %v", hook, err)
	fmt.Fprintln(os.Stderr, msg)
	logging.HooksError("%s", msg)
}
