package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"cortex/internal/config"
	"cortex/internal/embedding"
	"cortex/internal/hooks"
)

var regenerateProjections bool

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Handle the Stop hook: incremental extraction and append",
	RunE: func(cmd *cobra.Command, args []string) error {
		var payload hooks.StopPayload
		readHookPayload(cmd, &payload)
		exitHook(hooks.HandleStop(payload, regenerateProjections))
		return nil
	},
}

var precompactCmd = &cobra.Command{
	Use:   "precompact",
	Short: "Handle the PreCompact hook: extraction plus briefing refresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		var payload hooks.PreCompactPayload
		readHookPayload(cmd, &payload)
		exitHook(hooks.HandlePreCompact(payload))
		return nil
	},
}

var sessionStartCmd = &cobra.Command{
	Use:   "session-start",
	Short: "Handle the SessionStart hook: write the session briefing",
	RunE: func(cmd *cobra.Command, args []string) error {
		var payload hooks.SessionStartPayload
		readHookPayload(cmd, &payload)
		exitHook(hooks.HandleSessionStart(payload))
		return nil
	},
}

var promptSubmitCmd = &cobra.Command{
	Use:   "prompt-submit",
	Short: "Handle the UserPromptSubmit hook: anticipatory retrieval (tier 2+)",
	RunE: func(cmd *cobra.Command, args []string) error {
		var payload hooks.UserPromptSubmitPayload
		readHookPayload(cmd, &payload)
		exitHook(hooks.HandleUserPromptSubmit(payload, promptSubmitEngine()))
		return nil
	},
}

// exitHook flushes the CLI logger and exits with code. Hook handlers
// always return 0 (spec §6, §7); code is accepted as a parameter only so
// a future CLI-level failure path has somewhere to plug in.
func exitHook(code int) {
	if logger != nil {
		_ = logger.Sync()
	}
	os.Exit(code)
}

func init() {
	stopCmd.Flags().BoolVar(&regenerateProjections, "regenerate-projections", false, "Regenerate tier-3 markdown projections after appending events")
}

// readHookPayload decodes the hook's JSON payload from stdin into v. A
// missing or malformed payload leaves v at its zero value rather than
// erroring — every hook field is individually optional per spec §6, and
// a hook handler must never fail the host over a parse error.
func readHookPayload(cmd *cobra.Command, v interface{}) {
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil || len(data) == 0 {
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		fmt.Fprintf(os.Stderr, "[Cortex] payload error: %v\n", err)
	}
}

// promptSubmitEngine builds the embedding engine used for anticipatory
// retrieval from the process-wide config. A provider NewEngine cannot
// build (e.g. "none" or an unsupported value) yields a nil engine, which
// RetrieveRelevantContext treats as "degrade to no-op" rather than erroring.
// An Ollama server that is not running is only detected when Embed is
// called, and RetrieveRelevantContext returns that as an error.
func promptSubmitEngine() embedding.EmbeddingEngine {
	base := config.DefaultConfig()
	cfg, err := config.Load(config.ConfigPath(base.CortexHome))
	if err != nil {
		return nil
	}
	eng, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		Dimensions:     cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil
	}
	return eng
}
