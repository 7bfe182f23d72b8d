// Package cli implements the keepsake CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keepsake-dev/keepsake/internal/config"
	"github.com/keepsake-dev/keepsake/internal/embedding"
	"github.com/keepsake-dev/keepsake/internal/threads"
)

var (
	threadFlag  string
	dataDirFlag string
	configFlag  string
	verboseFlag bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "keepsake",
	Short: "Per-thread temporal memory for assistant agents",
	Long: "Thread-scoped stores for an assistant's long-lived state: versioned\n" +
		"keyed memories, a journal with rollups and semantic search, and goal\n" +
		"tracking with full version history. SQLite-backed, one directory per thread.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&threadFlag, "thread", "t", "default", "Thread id")
	RootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Data directory (default: $KEEPSAKE_DATA_DIR or ~/.keepsake)")
	RootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default: $KEEPSAKE_CONFIG or <data-dir>/config.yaml)")
	RootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Debug logging to stderr")
}

func newLogger() *zap.Logger {
	if !verboseFlag {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func loadConfig() config.Config {
	cfg, err := config.Load(configFlag)
	if err != nil {
		exitErr("load config", err)
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	}
	return cfg
}

func openRegistry() *threads.Registry {
	cfg := loadConfig()
	embed := embedding.New(cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.BaseURL)
	return threads.NewRegistry(cfg, newLogger(), embed)
}

func openThread() *threads.Thread {
	th, err := openRegistry().GetOrCreate(threadFlag)
	if err != nil {
		exitErr("open thread", err)
	}
	return th
}

func printJSON(v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
