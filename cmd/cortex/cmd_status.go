package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"cortex/internal/config"
	"cortex/internal/identity"
	"cortex/internal/migrate"
	"cortex/internal/store"
)

var (
	statusCwd  string
	statusJSON bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the storage tier, event counts, and search readiness for a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(resolveCwd(statusCwd), statusJSON)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusCwd, "cwd", "", "Project directory (default: current working directory)")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Emit machine-readable JSON")
}

// StatusReport is cortex status's output shape, grounded on
// original_source's get_migration_status/get_database_stats (spec.md's
// CLI surface names "status" without detailing its payload).
type StatusReport struct {
	ProjectPath      string `json:"project_path"`
	ProjectHash      string `json:"project_hash"`
	Branch           string `json:"branch"`
	CurrentTier      int    `json:"current_tier"`
	TargetTier       int    `json:"target_tier"`
	CanUpgrade       bool   `json:"can_upgrade"`
	EventCount       int    `json:"events_count"`
	HasHookState     bool   `json:"has_hook_state"`
	FTSEnabled       bool   `json:"fts_enabled,omitempty"`
	VecExtension     bool   `json:"vec_extension_available,omitempty"`
	SnapshotCount    int    `json:"snapshot_count,omitempty"`
	EmbeddingCovered int    `json:"events_with_embeddings,omitempty"`
}

func runStatus(cwd string, asJSON bool) error {
	base := config.DefaultConfig()
	cfg, err := config.Load(config.ConfigPath(base.CortexHome))
	if err != nil {
		return fmt.Errorf("status: config load: %w", err)
	}

	id := identity.Identify(cwd)
	projectDir := cfg.ProjectDir(id.Hash)

	report := StatusReport{
		ProjectPath: id.Path,
		ProjectHash: id.Hash,
		Branch:      id.Branch,
		CurrentTier: migrate.DetectTier(projectDir, cfg),
		TargetTier:  cfg.StorageTier,
	}
	report.CanUpgrade = report.CurrentTier >= 0 && report.CurrentTier < report.TargetTier

	s, err := store.Open(projectDir, report.CurrentTier)
	if err == nil {
		defer s.Close()
		if n, err := s.Count(); err == nil {
			report.EventCount = n
		}
		if sq, ok := s.(*store.SQLiteStore); ok {
			if stats, err := sq.GetStats(); err == nil {
				report.FTSEnabled = stats.FTSEnabled
				report.SnapshotCount = stats.SnapshotCount
				report.EmbeddingCovered = stats.EventsWithEmbeddings
			}
			report.VecExtension = sq.VecExtensionAvailable()
		}
	}
	hs, err := store.OpenHookState(projectDir, s)
	if err == nil {
		if st, err := hs.Load(); err == nil {
			report.HasHookState = st.LastTranscriptPath != ""
		}
	}

	if asJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Project:        %s\n", report.ProjectPath)
	fmt.Printf("Hash:           %s\n", report.ProjectHash)
	fmt.Printf("Branch:         %s\n", report.Branch)
	fmt.Printf("Storage tier:   %d (target %d)\n", report.CurrentTier, report.TargetTier)
	fmt.Printf("Can upgrade:    %v\n", report.CanUpgrade)
	fmt.Printf("Events:         %d\n", report.EventCount)
	fmt.Printf("Has hook state: %v\n", report.HasHookState)
	if report.CurrentTier >= 1 {
		fmt.Printf("FTS5 enabled:   %v\n", report.FTSEnabled)
		fmt.Printf("Vec extension:  %v\n", report.VecExtension)
		fmt.Printf("Snapshots:      %d\n", report.SnapshotCount)
		fmt.Printf("Embedded:       %d\n", report.EmbeddingCovered)
	}
	return nil
}
