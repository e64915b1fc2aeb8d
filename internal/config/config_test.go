package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigStartsWithStorageTierZero(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.StorageTier != 0 {
		t.Errorf("expected default storage tier 0, got %d", cfg.StorageTier)
	}
	if cfg.DecayRate != 0.995 {
		t.Errorf("expected decay rate 0.995, got %v", cfg.DecayRate)
	}
	if cfg.ReinforcementMultiplier != 1.2 {
		t.Errorf("expected reinforcement multiplier 1.2, got %v", cfg.ReinforcementMultiplier)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxBriefingTokens != 3000 {
		t.Errorf("expected default max_briefing_tokens, got %d", cfg.MaxBriefingTokens)
	}
}

func TestLoadMalformedFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StorageTier != 0 {
		t.Errorf("expected defaults for malformed config")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := DefaultConfig()
	cfg.StorageTier = 2
	cfg.MaxBriefingTokens = 5000

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.StorageTier != 2 || loaded.MaxBriefingTokens != 5000 {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
}

func TestSaveIsAtomicNoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	cfg := DefaultConfig()
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("expected temp file to be removed after successful save")
	}
}

func TestCortexHomeOutsideRootIsRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"cortex_home": "/tmp/somewhere-else"}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CortexHome == "/tmp/somewhere-else" {
		t.Error("expected out-of-root cortex_home to be replaced with default")
	}
}
