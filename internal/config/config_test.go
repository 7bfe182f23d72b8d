package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/keepsake-dev/keepsake/internal/model"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Retention[model.EntryRaw] != 90 {
		t.Errorf("expected default raw retention, got %d", cfg.Retention[model.EntryRaw])
	}
	if cfg.Retention[model.EntryYearlyRollup] != -1 {
		t.Errorf("yearly rollups default to keep-forever, got %d", cfg.Retention[model.EntryYearlyRollup])
	}
}

func TestLoadPartialRetentionKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("retention:\n  raw: 7\n"), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Retention[model.EntryRaw] != 7 {
		t.Errorf("expected override, got %d", cfg.Retention[model.EntryRaw])
	}
	if cfg.Retention[model.EntryWeeklyRollup] != 365 {
		t.Errorf("omitted tiers keep defaults, got %d", cfg.Retention[model.EntryWeeklyRollup])
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("retention: [not a map"), 0o644)

	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KEEPSAKE_DATA_DIR", "/tmp/elsewhere")
	t.Setenv("KEEPSAKE_EMBED_PROVIDER", "ollama")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir != "/tmp/elsewhere" {
		t.Errorf("env must override data dir, got %q", cfg.DataDir)
	}
	if cfg.Embedding.Provider != "ollama" {
		t.Errorf("env must override provider, got %q", cfg.Embedding.Provider)
	}
}
