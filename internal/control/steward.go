package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/localdeck/steward/internal/core/config"
	"github.com/localdeck/steward/internal/core/domain"
	"github.com/localdeck/steward/internal/core/worker"
	"github.com/localdeck/steward/internal/deletion"
	"github.com/localdeck/steward/internal/health"
	redisclient "github.com/localdeck/steward/internal/infra/redis"
	"github.com/localdeck/steward/internal/infra/store"
	"github.com/localdeck/steward/internal/infra/store/httpapi"
	"github.com/localdeck/steward/internal/infra/store/memory"
	"github.com/localdeck/steward/internal/infra/store/postgres"
	"github.com/localdeck/steward/internal/ingest"
	"github.com/localdeck/steward/internal/retry"

	"github.com/pressly/goose/v3"
)

// Steward is the main application struct that manages the service lifecycle.
type Steward struct {
	cfg          Config
	store        store.Store
	identities   store.IdentityStore
	executor     *retry.Executor
	importers    map[string]*ingest.Importer
	worker       *deletion.Worker
	pruner       *worker.Pruner
	healthMon    *health.Monitor
	healthServer *health.Server
	redisClient  *redisclient.Client
	log          *slog.Logger
}

// Config holds the application configuration.
type Config struct {
	Port            int
	Store           config.StoreConfig
	Redis           redisclient.Config
	Retry           retry.Config
	Ingest          config.IngestConfig
	Deletion        config.DeletionConfig
	Retention       worker.Config
	DeletionEnabled bool   // CLI flag
	MigrationsDir   string // defaults to "migrations" relative to CWD
}

// NewSteward creates a new Steward instance with all dependencies initialized.
func NewSteward(cfg Config) (*Steward, error) {
	log := slog.Default()

	// 1. Initialize Storage
	var base store.Store
	var identities store.IdentityStore

	switch cfg.Store.Driver {
	case "postgres":
		pg, err := postgres.New(context.Background(), cfg.Store.Postgres, log)
		if err != nil {
			return nil, fmt.Errorf("failed to init postgres store: %w", err)
		}

		// Run migrations
		// Note: Goose needs the raw *sql.DB underneath sqlx
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		migrationsDir := cfg.MigrationsDir
		if migrationsDir == "" {
			migrationsDir = "migrations"
		}
		if err := goose.Up(pg.DB(), migrationsDir); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		base = pg
		identities = postgres.NewIdentityRepo(pg)
		slog.Info("Using PostgreSQL store")
	case "http":
		client, err := httpapi.New(cfg.Store.HTTP, log)
		if err != nil {
			return nil, fmt.Errorf("failed to init http store: %w", err)
		}
		admin, err := httpapi.NewAdmin(cfg.Store.HTTP, log)
		if err != nil {
			return nil, fmt.Errorf("failed to init identity admin client: %w", err)
		}
		base = client
		identities = admin
		slog.Info("Using HTTP API store", "base_url", cfg.Store.HTTP.BaseURL)
	default:
		base = memory.New()
		identities = memory.NewIdentities()
		slog.Info("Using memory store")
	}

	// 2. Shared retry executor; every store call goes through it
	ex := retry.New(cfg.Retry, log)
	st := store.Resilient(base, ex)
	catalog := ingest.NewCatalog(st)

	// 3. Redis (optional): DLQ replay and the deletion queue need it
	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, replay and deletion disabled", "error", err)
		}
	}

	// 4. One importer per configured feed
	importers := make(map[string]*ingest.Importer)
	for _, feedCfg := range cfg.Ingest.Feeds {
		var dlq ingest.DeadLetter
		if redisClient != nil {
			dlq = redisClient
		}
		imp := ingest.NewImporter(ingest.ImporterConfig{
			Source:      feedCfg.Source,
			Interval:    cfg.Ingest.Interval,
			ReplayBatch: cfg.Ingest.ReplayBatch,
			Match: ingest.MatchOptions{
				TimeWindow:       cfg.Ingest.Window,
				AllowCrossSource: cfg.Ingest.CrossSource,
			},
		}, ingest.NewHTTPFeed(feedCfg), catalog, ex, dlq, log)
		importers[feedCfg.Source] = imp
		slog.Info("Importer initialized", "source", feedCfg.Source)
	}

	// 5. Deletion worker needs the Redis queue
	var delWorker *deletion.Worker
	if redisClient != nil && cfg.DeletionEnabled {
		orch := deletion.NewOrchestrator(st, identities, ex, log)
		guard := deletion.NewRedisGuard(redisClient, cfg.Deletion.LockTTL)
		delWorker = deletion.NewWorker(orch, redisClient, guard, log)
		slog.Info("Deletion worker initialized")
	}

	pruner := worker.NewPruner(cfg.Retention, st, log)

	// 6. Health Monitor and Server
	healthCfg := health.Config{
		Store:      st,
		StaleAfter: 3 * cfg.Ingest.Interval,
	}
	if redisClient != nil {
		healthCfg.Redis = redisClient
		healthCfg.Depths = redisClient
	}
	if delWorker != nil {
		healthCfg.Worker = delWorker
	}
	for _, imp := range importers {
		healthCfg.Feeds = append(healthCfg.Feeds, imp)
	}

	healthMon := health.NewMonitor(healthCfg)
	healthServer := health.NewServer(healthMon, cfg.Port)

	return &Steward{
		cfg:          cfg,
		store:        st,
		identities:   identities,
		executor:     ex,
		importers:    importers,
		worker:       delWorker,
		pruner:       pruner,
		healthMon:    healthMon,
		healthServer: healthServer,
		redisClient:  redisClient,
		log:          log,
	}, nil
}

// Store exposes the resilient record store, for the CLI commands.
func (s *Steward) Store() store.Store {
	return s.store
}

// RunDeletion executes a deletion plan inline, bypassing the queue worker.
// The per-user guard is not taken; callers own exclusivity.
func (s *Steward) RunDeletion(ctx context.Context, plan domain.DeletionPlan) domain.DeletionResult {
	orch := deletion.NewOrchestrator(s.store, s.identities, s.executor, s.log)
	return orch.Run(ctx, plan)
}

// Importers exposes the configured importers keyed by source.
func (s *Steward) Importers() map[string]*ingest.Importer {
	return s.importers
}

// Start starts the steward and all its components.
func (s *Steward) Start(ctx context.Context) error {
	// Start Health Server
	go func() {
		if err := s.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Health server failed", "error", err)
		}
	}()

	// Start Importers
	for source, imp := range s.importers {
		s.log.Info("Starting importer", "source", source)
		go func(source string, imp *ingest.Importer) {
			if err := imp.Start(ctx); err != nil {
				s.log.Error("Importer stopped", "source", source, "error", err)
			}
		}(source, imp)
	}

	// Start Deletion Worker
	if s.worker != nil {
		s.log.Info("Starting deletion worker")
		go func() {
			if err := s.worker.Start(ctx); err != nil {
				s.log.Error("Deletion worker stopped", "error", err)
			}
		}()
	}

	// Start Pruner
	go s.pruner.Start(ctx)

	return nil
}

// Stop stops the steward.
func (s *Steward) Stop(ctx context.Context) error {
	s.log.Info("Stopping Steward...")

	// Stop Importers
	for _, imp := range s.importers {
		imp.Stop()
	}

	// Stop Deletion Worker
	if s.worker != nil {
		s.worker.Stop()
	}

	// Close Redis
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn("Failed to close Redis", "error", err)
		}
	}

	// Close Store
	if err := s.store.Close(); err != nil {
		s.log.Warn("Failed to close store", "error", err)
	}

	// Stop Health Server
	return s.healthServer.Stop(ctx)
}
