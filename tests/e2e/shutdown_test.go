package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/localdeck/steward/internal/control"
	"github.com/localdeck/steward/internal/core/config"
	"github.com/localdeck/steward/internal/ingest"
)

func TestGracefulShutdown(t *testing.T) {
	// Memory store and a dead feed: enough to start every component
	// without external services.
	cfg := control.Config{
		Port:  0,
		Store: config.StoreConfig{Driver: "memory"},
		Ingest: config.IngestConfig{
			Feeds: []ingest.FeedConfig{
				{Source: "cityfeed", URL: "http://localhost:9", Timeout: 200 * time.Millisecond},
			},
			Interval: 1 * time.Second,
		},
	}

	app, err := control.NewSteward(cfg)
	if err != nil {
		t.Fatalf("Failed to create steward: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Let it run through a couple of failing passes
	time.Sleep(2 * time.Second)

	// Trigger shutdown
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()

	if err := app.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	for source, imp := range app.Importers() {
		if imp.Running() {
			t.Errorf("Importer %s still running after Stop", source)
		}
	}
}
