package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"cortex/internal/config"
	"cortex/internal/embedding"
	"cortex/internal/identity"
	"cortex/internal/migrate"
	"cortex/internal/search"
	"cortex/internal/store"
)

var (
	upgradeCwd        string
	upgradeDryRun     bool
	upgradeForce      bool
	upgradeRebuildFTS bool
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade a project's storage tier (0→1→2→3)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpgrade(resolveCwd(upgradeCwd), upgradeDryRun, upgradeForce, upgradeRebuildFTS)
	},
}

func init() {
	upgradeCmd.Flags().StringVar(&upgradeCwd, "cwd", "", "Project directory (default: current working directory)")
	upgradeCmd.Flags().BoolVar(&upgradeDryRun, "dry-run", false, "Report what would happen without writing anything")
	upgradeCmd.Flags().BoolVar(&upgradeForce, "force", false, "Continue through subsequent steps even if one fails")
	upgradeCmd.Flags().BoolVar(&upgradeRebuildFTS, "rebuild-fts", false, "Rebuild the FTS5 index after upgrading")
}

func runUpgrade(cwd string, dryRun, force, rebuildFTS bool) error {
	base := config.DefaultConfig()
	configPath := config.ConfigPath(base.CortexHome)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("upgrade: config load: %w", err)
	}

	id := identity.Identify(cwd)
	projectDir := cfg.ProjectDir(id.Hash)

	results := migrate.Upgrade(projectDir, configPath, cfg, embedBatchFunc(cfg), nil, dryRun, force)
	if len(results) == 0 {
		fmt.Println("Nothing to upgrade: no store present or already at target tier.")
		return nil
	}

	for _, res := range results {
		status := "ok"
		if !res.Success {
			status = "FAILED: " + res.Error
		}
		fmt.Printf("tier %d -> %d: %s (migrated %d events, dry_run=%v)\n", res.FromTier, res.ToTier, status, res.EventsMigrated, res.DryRun)
		if !res.Success {
			if res.BackupPath != "" {
				fmt.Printf("  backup available at %s — run with rollback to restore\n", res.BackupPath)
			}
			return fmt.Errorf("upgrade: step %d->%d failed: %s", res.FromTier, res.ToTier, res.Error)
		}
	}

	if rebuildFTS && !dryRun {
		s, err := store.OpenSQLiteStore(store.DBPath(projectDir))
		if err != nil {
			return fmt.Errorf("upgrade: rebuild-fts: store open: %w", err)
		}
		defer s.Close()
		if err := search.RebuildIndex(s); err != nil {
			return fmt.Errorf("upgrade: rebuild-fts failed: %w", err)
		}
		fmt.Println("FTS5 index rebuilt.")
	}
	return nil
}

// embedBatchFunc builds an embedding batch function from the process
// config for tier1->2 backfill. Returns nil if the embedding provider is
// unavailable; migrate.UpgradeTier1to2 reports EmbeddingUnavailable
// rather than silently skipping, matching spec §7's migration policy.
func embedBatchFunc(cfg *config.Config) migrate.EmbedBatchFunc {
	eng, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		Dimensions:     cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil
	}
	return func(texts []string) ([][]float32, error) {
		return eng.EmbedBatch(context.Background(), texts)
	}
}
