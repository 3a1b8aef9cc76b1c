package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/localdeck/steward/internal/control"
	"github.com/localdeck/steward/internal/core/config"
	"github.com/spf13/cobra"
)

var (
	cfgPath        string
	isDebug        bool
	deletionWorker bool
)

var rootCmd = &cobra.Command{
	Use:   "steward",
	Short: "Steward data consistency service",
	Long:  `Steward keeps the Localdeck directory consistent: it imports event feeds with deduplication and runs verified account deletions.`,
	Run:   runSteward,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&deletionWorker, "deletion-worker", true, "enable the account deletion worker")
}

// initLogging installs the default slog handler. Text mode uses tint for
// readable local output; json is for log shippers.
func initLogging(cfg *config.AppConfig) {
	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.RFC3339,
		})
	}
	slog.SetDefault(slog.New(handler))
}

func runSteward(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	// Load Configuration
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	initLogging(cfg)

	// Transform config
	controlCfg := control.Config{
		Port:            cfg.Server.Port,
		Store:           cfg.Store,
		Redis:           cfg.Redis,
		Retry:           cfg.Retry,
		Ingest:          cfg.Ingest,
		Deletion:        cfg.Deletion,
		Retention:       cfg.Retention,
		DeletionEnabled: deletionWorker,
	}

	// Initialize Steward
	app, err := control.NewSteward(controlCfg)
	if err != nil {
		slog.Error("Failed to initialize Steward", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start Steward", "error", err)
		os.Exit(1)
	}

	slog.Info("Steward started", "config", cfgPath)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
}
