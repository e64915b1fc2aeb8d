// Package config loads and saves Cortex's process-wide configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cortex/internal/logging"
)

// EmbeddingConfig configures the pluggable text-to-vector provider.
type EmbeddingConfig struct {
	Provider       string `json:"provider"`        // "ollama" or "none"
	OllamaEndpoint string `json:"ollama_endpoint"`
	OllamaModel    string `json:"ollama_model"`
	Dimensions     int    `json:"dimensions"`
}

// LoggingConfig mirrors the settings of internal/logging's category-based
// file logger. internal/logging does not read this field: it loads its
// logging block from config.json in the project directory passed to
// logging.Initialize.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories,omitempty"`
	Level      string          `json:"level"`
	JSONFormat bool            `json:"json_format"`
}

// Config holds all Cortex configuration. See spec §3 Config.
type Config struct {
	CortexHome string `json:"cortex_home"`

	StorageTier int `json:"storage_tier"` // 0, 1, 2, or 3

	DecayRate              float64 `json:"decay_rate"`
	ConfidenceThreshold    float64 `json:"confidence_threshold"`
	ReinforcementMultiplier float64 `json:"reinforcement_multiplier"`

	MaxBriefingTokens     int `json:"max_briefing_tokens"`
	MaxFullDecisions      int `json:"max_full_decisions"`
	MaxSummaryDecisions   int `json:"max_summary_decisions"`
	DecisionActiveSessions int `json:"decision_active_sessions"`
	DecisionAgingSessions  int `json:"decision_aging_sessions"`

	SnapshotTTLHours int `json:"snapshot_ttl_hours"`

	AutoEmbed          bool `json:"auto_embed"`
	MCPEnabled         bool `json:"mcp_enabled"`
	ProjectionsEnabled bool `json:"projections_enabled"`

	Embedding EmbeddingConfig `json:"embedding"`
	Logging   LoggingConfig   `json:"logging"`
}

// defaultCortexHome returns "${HOME}/.cortex", falling back to a relative
// path if HOME cannot be resolved.
func defaultCortexHome() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".cortex"
	}
	return filepath.Join(home, ".cortex")
}

// DefaultConfig returns the default configuration. Defaults permit startup
// with no config file present at all (spec §4.B).
func DefaultConfig() *Config {
	return &Config{
		CortexHome: defaultCortexHome(),

		StorageTier: 0,

		DecayRate:               0.995,
		ConfidenceThreshold:     0.5,
		ReinforcementMultiplier: 1.2,

		MaxBriefingTokens:      3000,
		MaxFullDecisions:       50,
		MaxSummaryDecisions:    30,
		DecisionActiveSessions: 20,
		DecisionAgingSessions:  50,

		SnapshotTTLHours: 1,

		AutoEmbed:          false,
		MCPEnabled:         false,
		ProjectionsEnabled: false,

		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			Dimensions:     768,
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load loads configuration from a JSON file. Load is strictly lenient: a
// missing, empty, unreadable, or non-JSON file yields the default config
// rather than an error (spec §4.B, §7 ConfigInvalid).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.BootDebug("config file not found, using defaults: %s", path)
			return cfg, nil
		}
		logging.BootDebug("config file unreadable, using defaults: %s: %v", path, err)
		return cfg, nil
	}

	if len(data) == 0 {
		logging.BootDebug("config file empty, using defaults: %s", path)
		return cfg, nil
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		logging.BootDebug("config file malformed, using defaults: %s: %v", path, err)
		return DefaultConfig(), nil
	}

	cfg.CortexHome = validateCortexHome(cfg.CortexHome)
	return cfg, nil
}

// validateCortexHome rejects any value that does not resolve beneath the
// user's .cortex root, replacing it with the default (spec §4.B).
func validateCortexHome(home string) string {
	def := defaultCortexHome()
	if home == "" {
		return def
	}

	userHome, err := os.UserHomeDir()
	if err != nil {
		return def
	}
	expectedRoot := filepath.Join(userHome, ".cortex")

	abs, err := filepath.Abs(home)
	if err != nil {
		return def
	}
	if abs != expectedRoot && !isSubPath(expectedRoot, abs) {
		return def
	}
	return abs
}

func isSubPath(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Save writes the configuration atomically: write to a temp file in the
// same directory, then rename over the destination (spec §4.B, §9
// Atomicity; grounded on cmd_init_scan.go's temp-file+rename idiom, since
// the teacher's own Config.Save writes the file directly).
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp config file: %w", err)
	}
	return nil
}

// ProjectDir returns the per-project directory for a project hash.
func (c *Config) ProjectDir(projectHash string) string {
	return filepath.Join(c.CortexHome, "projects", projectHash)
}

// ConfigPath returns the path to the process-wide config.json.
func ConfigPath(cortexHome string) string {
	return filepath.Join(cortexHome, "config.json")
}
