package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/localdeck/steward/internal/infra/store"
	"github.com/localdeck/steward/internal/ingest"
)

// Config sets how long ingest data is kept. Zero disables a rule.
type Config struct {
	RunRetention   time.Duration `yaml:"run_retention"`   // import audit rows
	EventRetention time.Duration `yaml:"event_retention"` // events past their start time
}

func (c Config) enabled() bool {
	return c.RunRetention > 0 || c.EventRetention > 0
}

// Pruner deletes old data based on retention policy.
type Pruner struct {
	cfg   Config
	store store.Store
	log   *slog.Logger
}

// NewPruner creates a new Pruner worker.
func NewPruner(cfg Config, s store.Store, log *slog.Logger) *Pruner {
	if log == nil {
		log = slog.Default()
	}
	return &Pruner{cfg: cfg, store: s, log: log.With("component", "pruner")}
}

// Start runs the pruner loop until the context is canceled.
func (p *Pruner) Start(ctx context.Context) {
	if !p.cfg.enabled() {
		return // Retention disabled
	}

	// Check interval scales with the shortest retention: 10% of it,
	// at most an hour, at least a minute.
	interval := min(p.shortestRetention()/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) shortestRetention() time.Duration {
	shortest := p.cfg.RunRetention
	if shortest <= 0 || (p.cfg.EventRetention > 0 && p.cfg.EventRetention < shortest) {
		shortest = p.cfg.EventRetention
	}
	return shortest
}

func (p *Pruner) prune(ctx context.Context) {
	now := time.Now().UTC()

	if p.cfg.RunRetention > 0 {
		cutoff := now.Add(-p.cfg.RunRetention)
		n, err := p.store.Delete(ctx, ingest.TableImportRuns,
			store.Where(store.Lt("started_at", cutoff)))
		if err != nil {
			p.log.Error("failed to prune import runs", "error", err)
		} else if n > 0 {
			p.log.Info("pruned import runs", "rows", n)
		}
	}

	if p.cfg.EventRetention > 0 {
		cutoff := now.Add(-p.cfg.EventRetention)
		n, err := p.store.Delete(ctx, ingest.TableEvents,
			store.Where(store.Lt("starts_at", cutoff)))
		if err != nil {
			p.log.Error("failed to prune past events", "error", err)
		} else if n > 0 {
			p.log.Info("pruned past events", "rows", n)
		}
	}
}
