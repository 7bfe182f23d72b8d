// Package config loads keepsake configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/keepsake-dev/keepsake/internal/model"
)

// Retention maps a journal entry type to its retention window in days.
// A negative value keeps the tier forever.
type Retention map[string]int

// Embedding selects the embedding provider for journal semantic search.
type Embedding struct {
	Provider string `yaml:"provider"` // "ollama" | "openai" | "" (disabled)
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
}

// Config is the full application configuration.
type Config struct {
	DataDir   string    `yaml:"data_dir"`
	Embedding Embedding `yaml:"embedding"`
	Retention Retention `yaml:"retention"`
}

// Default returns the built-in configuration: data under ~/.keepsake,
// embeddings disabled, and retention windows that widen with each tier.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir: filepath.Join(home, ".keepsake"),
		Retention: Retention{
			model.EntryRaw:           90,
			model.EntryHourlyRollup:  180,
			model.EntryWeeklyRollup:  365,
			model.EntryMonthlyRollup: 730,
			model.EntryYearlyRollup:  -1,
		},
	}
}

// Load reads the config file at path, overlaying it on Default. An empty
// path falls back to $KEEPSAKE_CONFIG, then ~/.keepsake/config.yaml. A
// missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("KEEPSAKE_CONFIG")
	}
	if path == "" {
		path = filepath.Join(cfg.DataDir, "config.yaml")
	}

	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return applyEnv(cfg), nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	// Partial retention blocks keep defaults for the tiers they omit.
	def := Default()
	if cfg.Retention == nil {
		cfg.Retention = def.Retention
	} else {
		for tier, days := range def.Retention {
			if _, ok := cfg.Retention[tier]; !ok {
				cfg.Retention[tier] = days
			}
		}
	}
	if cfg.DataDir == "" {
		cfg.DataDir = def.DataDir
	}

	return applyEnv(cfg), nil
}

func applyEnv(cfg Config) Config {
	if v := os.Getenv("KEEPSAKE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("KEEPSAKE_EMBED_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("KEEPSAKE_EMBED_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("KEEPSAKE_EMBED_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	return cfg
}
