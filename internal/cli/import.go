package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/localdeck/steward/internal/control"
	"github.com/localdeck/steward/internal/core/config"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import [source]",
	Short: "Run a single import pass for a configured feed",
	Args:  cobra.ExactArgs(1),
	Run:   runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	initLogging(cfg)

	app, err := control.NewSteward(control.Config{
		Store:  cfg.Store,
		Redis:  cfg.Redis,
		Retry:  cfg.Retry,
		Ingest: cfg.Ingest,
	})
	if err != nil {
		slog.Error("Failed to initialize Steward", "error", err)
		os.Exit(1)
	}

	source := args[0]
	imp, ok := app.Importers()[source]
	if !ok {
		fmt.Printf("Unknown feed source: %s\n", source)
		os.Exit(1)
	}

	run, err := imp.RunOnce(context.Background())
	if err != nil {
		slog.Error("Import pass failed", "source", source, "error", err)
		os.Exit(1)
	}

	fmt.Printf("Import %s finished: status=%s fetched=%d inserted=%d updated=%d skipped=%d replayed=%d failed=%d\n",
		run.Source, run.Status, run.Fetched, run.Inserted, run.Updated, run.Skipped, run.Replayed, run.Failed)
}
