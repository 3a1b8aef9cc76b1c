package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/localdeck/steward/internal/control"
	"github.com/localdeck/steward/internal/core/config"
	"github.com/localdeck/steward/internal/ingest"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent import runs for all feeds",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	initLogging(cfg)

	app, err := control.NewSteward(control.Config{
		Store: cfg.Store,
		Retry: cfg.Retry,
	})
	if err != nil {
		slog.Error("Failed to initialize Steward", "error", err)
		os.Exit(1)
	}

	catalog := ingest.NewCatalog(app.Store())
	runs, err := catalog.LatestRuns(context.Background(), 20)
	if err != nil {
		slog.Error("Failed to query import runs", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "SOURCE\tSTATUS\tFETCHED\tINSERTED\tUPDATED\tSKIPPED\tFAILED\tSTARTED")

	for _, run := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			run.Source, run.Status, run.Fetched, run.Inserted, run.Updated,
			run.Skipped, run.Failed, run.StartedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}
