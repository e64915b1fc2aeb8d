// Package migrate upgrades a project's storage between tiers: tier 0
// (JSON file) to tier 1 (SQLite), tier 1 to tier 2 (embeddings), tier 2
// to tier 3 (projections/MCP flags). Every step reports a typed result
// instead of swallowing errors, matching the rest of Cortex's
// local-recovery-first policy except here, where the CLI needs to know.
package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cortex/internal/config"
	"cortex/internal/store"
)

const batchSize = 1000

// Result reports the outcome of one upgrade step.
type Result struct {
	Success            bool   `json:"success"`
	FromTier           int    `json:"from_tier"`
	ToTier             int    `json:"to_tier"`
	EventsMigrated     int    `json:"events_migrated"`
	HookStateMigrated  bool   `json:"hook_state_migrated"`
	BackupPath         string `json:"backup_path,omitempty"`
	Error              string `json:"error,omitempty"`
	DryRun             bool   `json:"dry_run"`
}

// DetectTier inspects projectDir and returns the storage tier currently
// in effect: -1 no store present, 0 events.json only, 1 events.db
// present without ≥50% embedding coverage, 2 events.db with either
// cfg.StorageTier ≥ 2 or ≥50% embedding coverage.
func DetectTier(projectDir string, cfg *config.Config) int {
	dbPath := store.DBPath(projectDir)
	jsonPath := filepath.Join(projectDir, "events.json")

	dbExists := fileExists(dbPath)
	jsonExists := fileExists(jsonPath)

	if !dbExists && !jsonExists {
		return -1
	}
	if !dbExists {
		return 0
	}

	s, err := store.OpenSQLiteStore(dbPath)
	if err != nil {
		return 0
	}
	defer s.Close()

	total, err := s.Count()
	if err != nil || total == 0 {
		if cfg.StorageTier >= 2 {
			return 2
		}
		return 1
	}
	embedded, err := s.CountEmbeddings()
	if err != nil {
		return 1
	}
	coverage := float64(embedded) / float64(total)
	if cfg.StorageTier >= 2 || coverage >= 0.5 {
		return 2
	}
	return 1
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GetMigrationStatus reports the tier a project is at and the tier its
// config declares, so the CLI can tell the operator whether an upgrade
// is needed.
type Status struct {
	CurrentTier int `json:"current_tier"`
	TargetTier  int `json:"target_tier"`
}

func GetMigrationStatus(projectDir string, cfg *config.Config) Status {
	return Status{
		CurrentTier: DetectTier(projectDir, cfg),
		TargetTier:  cfg.StorageTier,
	}
}

// CreateBackup copies events.json, state.json, and config.json (whichever
// exist) into a timestamped backup directory under
// <cortexHome>/projects/<hash>/backups/tier0_<UTC-YYYYMMDD_HHMMSS>/ and
// returns its path.
func CreateBackup(projectDir, configPath string, now time.Time) (string, error) {
	backupDir := filepath.Join(projectDir, "backups", "tier0_"+now.UTC().Format("20060102_150405"))
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", fmt.Errorf("migrate: failed to create backup dir: %w", err)
	}

	candidates := map[string]string{
		filepath.Join(projectDir, "events.json"): filepath.Join(backupDir, "events.json"),
		filepath.Join(projectDir, "state.json"):  filepath.Join(backupDir, "state.json"),
		configPath:                               filepath.Join(backupDir, "config.json"),
	}
	for src, dst := range candidates {
		if !fileExists(src) {
			continue
		}
		data, err := os.ReadFile(src)
		if err != nil {
			return "", fmt.Errorf("migrate: failed to read %s: %w", src, err)
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return "", fmt.Errorf("migrate: failed to write backup %s: %w", dst, err)
		}
	}
	return backupDir, nil
}

// UpgradeTier0to1 migrates a tier-0 project (events.json + state.json) to
// a tier-1 SQLite store: backup, load events and hook state, bulk-insert
// in transactional batches, write hook-state rows, archive the original
// files. dryRun reports what would happen without writing anything.
func UpgradeTier0to1(projectDir, configPath string, now time.Time, dryRun bool) Result {
	res := Result{FromTier: 0, ToTier: 1, DryRun: dryRun}

	jsonPath := filepath.Join(projectDir, "events.json")
	fileStore, err := store.NewFileStore(jsonPath)
	if err != nil {
		return failResult(res, err)
	}
	events, err := fileStore.LoadAll()
	if err != nil {
		return failResult(res, err)
	}

	statePath := filepath.Join(projectDir, "state.json")
	hookStateStore, err := store.NewFileHookStateStore(statePath)
	if err != nil {
		return failResult(res, err)
	}
	hookState, err := hookStateStore.Load()
	if err != nil {
		return failResult(res, err)
	}

	if dryRun {
		res.Success = true
		res.EventsMigrated = len(events)
		res.HookStateMigrated = true
		return res
	}

	backupPath, err := CreateBackup(projectDir, configPath, now)
	if err != nil {
		return failResult(res, err)
	}
	res.BackupPath = backupPath

	sqlStore, err := store.OpenSQLiteStore(store.DBPath(projectDir))
	if err != nil {
		return failResult(res, err)
	}
	defer sqlStore.Close()

	migrated := 0
	for i := 0; i < len(events); i += batchSize {
		end := i + batchSize
		if end > len(events) {
			end = len(events)
		}
		inserted, err := sqlStore.AppendMany(events[i:end])
		if err != nil {
			return failResult(res, err)
		}
		migrated += len(inserted)
	}

	sqlHookState := store.NewSQLiteHookStateStore(sqlStore)
	if err := sqlHookState.Save(hookState); err != nil {
		return failResult(res, err)
	}

	if err := archiveFile(jsonPath, filepath.Join(projectDir, "archive")); err != nil {
		return failResult(res, err)
	}
	if err := archiveFile(statePath, filepath.Join(projectDir, "archive")); err != nil {
		return failResult(res, err)
	}

	res.Success = true
	res.EventsMigrated = migrated
	res.HookStateMigrated = true
	return res
}

func archiveFile(path, archiveDir string) error {
	if !fileExists(path) {
		return nil
	}
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return fmt.Errorf("migrate: failed to create archive dir: %w", err)
	}
	dst := filepath.Join(archiveDir, filepath.Base(path))
	return os.Rename(path, dst)
}

// EmbedBatchFunc generates embeddings for a batch of texts.
type EmbedBatchFunc func(texts []string) ([][]float32, error)

// UpgradeTier1to2 backfills embeddings for every event lacking one, in
// batches of 32, reporting progress through embed's own batching.
func UpgradeTier1to2(projectDir string, embed EmbedBatchFunc, progress store.BackfillProgress, dryRun bool) Result {
	res := Result{FromTier: 1, ToTier: 2, DryRun: dryRun}

	if embed == nil {
		return failResult(res, fmt.Errorf("migrate: embedding function unavailable"))
	}

	s, err := store.OpenSQLiteStore(store.DBPath(projectDir))
	if err != nil {
		return failResult(res, err)
	}
	defer s.Close()

	if dryRun {
		missing, err := s.EventsWithoutEmbeddings(-1)
		if err != nil {
			return failResult(res, err)
		}
		res.Success = true
		res.EventsMigrated = len(missing)
		return res
	}

	n, err := s.BackfillEmbeddings(32, store.EmbedFunc(embed), progress)
	if err != nil {
		return failResult(res, err)
	}
	res.Success = true
	res.EventsMigrated = n
	return res
}

// UpgradeTier2to3 toggles the MCP and projections flags in cfg; it
// performs no data transformation.
func UpgradeTier2to3(cfg *config.Config, configPath string, dryRun bool) Result {
	res := Result{FromTier: 2, ToTier: 3, DryRun: dryRun}
	if dryRun {
		res.Success = true
		return res
	}
	cfg.MCPEnabled = true
	cfg.ProjectionsEnabled = true
	cfg.StorageTier = 3
	if err := cfg.Save(configPath); err != nil {
		return failResult(res, err)
	}
	res.Success = true
	return res
}

// Upgrade dispatches to the step matching the project's current tier,
// repeating until it reaches cfg.StorageTier or a step fails (with force
// set, it goes on past a failed step). A dry run reports only the first
// step.
func Upgrade(projectDir, configPath string, cfg *config.Config, embed EmbedBatchFunc, progress store.BackfillProgress, dryRun, force bool) []Result {
	var results []Result
	current := DetectTier(projectDir, cfg)
	if current < 0 {
		return results
	}
	for current < cfg.StorageTier {
		var res Result
		switch current {
		case 0:
			res = UpgradeTier0to1(projectDir, configPath, time.Now(), dryRun)
		case 1:
			res = UpgradeTier1to2(projectDir, embed, progress, dryRun)
		case 2:
			res = UpgradeTier2to3(cfg, configPath, dryRun)
		default:
			return results
		}
		results = append(results, res)
		if !res.Success && !force {
			return results
		}
		current = res.ToTier
		if dryRun {
			break
		}
	}
	return results
}

// Rollback removes the SQL database and restores the backed-up tier-0
// files from backupPath.
func Rollback(projectDir, backupPath string) error {
	dbPath := store.DBPath(projectDir)
	if fileExists(dbPath) {
		if err := os.Remove(dbPath); err != nil {
			return fmt.Errorf("migrate: failed to remove database: %w", err)
		}
	}

	restores := map[string]string{
		filepath.Join(backupPath, "events.json"): filepath.Join(projectDir, "events.json"),
		filepath.Join(backupPath, "state.json"):  filepath.Join(projectDir, "state.json"),
	}
	for src, dst := range restores {
		if !fileExists(src) {
			continue
		}
		data, err := os.ReadFile(src)
		if err != nil {
			return fmt.Errorf("migrate: failed to read backup %s: %w", src, err)
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return fmt.Errorf("migrate: failed to restore %s: %w", dst, err)
		}
	}
	return nil
}

func failResult(res Result, err error) Result {
	res.Success = false
	res.Error = err.Error()
	return res
}
