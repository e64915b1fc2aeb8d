// Package main implements the cortex CLI: the four hook verbs the host
// invokes at session lifecycle points (stop, precompact, session-start,
// prompt-submit), plus operator commands (init, status, reset, upgrade,
// mcp-server).
//
// # File Index
//
//   - main.go          - entry point, rootCmd, global flags
//   - cmd_hooks.go     - stopCmd, precompactCmd, sessionStartCmd, promptSubmitCmd
//   - cmd_init.go      - initCmd, runInit()
//   - cmd_status.go    - statusCmd, runStatus()
//   - cmd_reset.go     - resetCmd, runReset()
//   - cmd_upgrade.go   - upgradeCmd, runUpgrade()
//   - cmd_mcpserver.go - mcpServerCmd, runMCPServer()
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	verbose bool
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cortex",
	Short: "Cortex - persistent cross-session memory for a coding assistant",
	Long: `Cortex is a per-project, local-first memory engine. It is invoked by
the assistant's host at lifecycle points (session end, pre-compaction,
session start, on each prompt) to extract durable events from the
session transcript and compose markdown briefings the host reads back.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(
		stopCmd,
		precompactCmd,
		sessionStartCmd,
		promptSubmitCmd,
		initCmd,
		statusCmd,
		resetCmd,
		upgradeCmd,
		mcpServerCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
