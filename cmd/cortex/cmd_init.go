package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cortex/internal/config"
	"cortex/internal/identity"
)

var (
	initCwd   string
	initForce bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize Cortex's config and project directory for the current project",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit(resolveCwd(initCwd), initForce)
	},
}

func init() {
	initCmd.Flags().StringVar(&initCwd, "cwd", "", "Project directory (default: current working directory)")
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing config.json with defaults")
}

// runInit creates cortex_home and the project's per-project directory,
// writing a default config.json if none exists (or force is set).
func runInit(cwd string, force bool) error {
	cfg := config.DefaultConfig()
	configPath := config.ConfigPath(cfg.CortexHome)

	if _, err := os.Stat(configPath); os.IsNotExist(err) || force {
		if err := cfg.Save(configPath); err != nil {
			return fmt.Errorf("init: failed to write config: %w", err)
		}
	} else {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("init: failed to load existing config: %w", err)
		}
		cfg = loaded
	}

	id := identity.Identify(cwd)
	projectDir := cfg.ProjectDir(id.Hash)
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		return fmt.Errorf("init: failed to create project directory: %w", err)
	}

	fmt.Printf("Cortex initialized for %s\n", id.Path)
	fmt.Printf("  project hash:  %s\n", id.Hash)
	fmt.Printf("  cortex home:   %s\n", cfg.CortexHome)
	fmt.Printf("  project dir:   %s\n", projectDir)
	fmt.Printf("  storage tier:  %d\n", cfg.StorageTier)
	return nil
}
