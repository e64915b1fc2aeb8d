package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cortex/internal/config"
	"cortex/internal/identity"
	"cortex/internal/store"
)

var resetCwd string

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear a project's event store and hook-state (spec.md §8 S5)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReset(resolveCwd(resetCwd))
	},
}

func init() {
	resetCmd.Flags().StringVar(&resetCwd, "cwd", "", "Project directory (default: current working directory)")
}

func runReset(cwd string) error {
	base := config.DefaultConfig()
	cfg, err := config.Load(config.ConfigPath(base.CortexHome))
	if err != nil {
		return fmt.Errorf("reset: config load: %w", err)
	}

	id := identity.Identify(cwd)
	projectDir := cfg.ProjectDir(id.Hash)

	s, err := store.Open(projectDir, cfg.StorageTier)
	if err != nil {
		return fmt.Errorf("reset: store open: %w", err)
	}
	defer s.Close()

	if err := s.Clear(); err != nil {
		return fmt.Errorf("reset: clear failed: %w", err)
	}

	hs, err := store.OpenHookState(projectDir, s)
	if err != nil {
		return fmt.Errorf("reset: hook state open: %w", err)
	}
	if err := hs.Save(store.HookState{}); err != nil {
		return fmt.Errorf("reset: hook state save failed: %w", err)
	}

	fmt.Printf("Cortex reset for %s (hash %s)\n", id.Path, id.Hash)
	return nil
}
