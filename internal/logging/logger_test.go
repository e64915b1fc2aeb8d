package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func resetState() {
	CloseAll()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	homeDir = ""
	config = loggingConfig{}
}

func TestAllCategoriesLog(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "cortex_logging_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configContent := `{
		"logging": {
			"level": "debug",
			"debug_mode": true,
			"categories": {
				"boot": true,
				"hooks": true,
				"transcript": true,
				"extract": true,
				"store": true,
				"search": true,
				"embedding": true,
				"briefing": true,
				"migrate": true
			}
		}
	}`
	if err := os.WriteFile(filepath.Join(tempDir, "config.json"), []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	resetState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !IsDebugMode() {
		t.Fatal("expected debug mode enabled")
	}

	categories := []Category{
		CategoryBoot, CategoryHooks, CategoryTranscript, CategoryExtract,
		CategoryStore, CategorySearch, CategoryEmbedding, CategoryBriefing, CategoryMigrate,
	}
	for _, cat := range categories {
		Get(cat).Info("hello from %s", cat)
	}
	CloseAll()

	entries, err := os.ReadDir(logsDir)
	if err != nil {
		t.Fatalf("failed to read logs dir: %v", err)
	}
	if len(entries) != len(categories) {
		t.Errorf("expected %d log files, got %d", len(categories), len(entries))
	}
}

func TestDisabledByDefault(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "cortex_logging_test_noconfig")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	resetState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if IsDebugMode() {
		t.Fatal("expected debug mode disabled without a config file")
	}
	if _, err := os.Stat(filepath.Join(tempDir, "logs")); !os.IsNotExist(err) {
		t.Fatal("expected no logs directory to be created when debug mode is off")
	}
}

func TestCategoryDisabledIndividually(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "cortex_logging_test_cat")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configContent := `{"logging": {"debug_mode": true, "categories": {"store": false}}}`
	if err := os.WriteFile(filepath.Join(tempDir, "config.json"), []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	resetState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if IsCategoryEnabled(CategoryStore) {
		t.Error("expected store category to be disabled")
	}
	if !IsCategoryEnabled(CategoryHooks) {
		t.Error("expected hooks category to default to enabled")
	}
}
