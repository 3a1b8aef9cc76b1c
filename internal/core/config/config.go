package config

import (
	"time"

	"github.com/localdeck/steward/internal/core/worker"
	redisclient "github.com/localdeck/steward/internal/infra/redis"
	"github.com/localdeck/steward/internal/infra/store/httpapi"
	"github.com/localdeck/steward/internal/infra/store/postgres"
	"github.com/localdeck/steward/internal/ingest"
	"github.com/localdeck/steward/internal/retry"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Store     StoreConfig        `yaml:"store"`
	Redis     redisclient.Config `yaml:"redis"`
	Retry     retry.Config       `yaml:"retry"`
	Ingest    IngestConfig       `yaml:"ingest"`
	Deletion  DeletionConfig     `yaml:"deletion"`
	Retention worker.Config      `yaml:"retention"`
	Logging   LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// StoreConfig selects the record store backend. Exactly one of the
// driver-specific sections is used.
type StoreConfig struct {
	Driver   string          `yaml:"driver"` // http, postgres, memory
	HTTP     httpapi.Config  `yaml:"http"`
	Postgres postgres.Config `yaml:"postgres"`
}

// IngestConfig holds settings shared by all feed importers. Feeds lists the
// upstream sources; the remaining fields apply to every importer.
type IngestConfig struct {
	Feeds       []ingest.FeedConfig `yaml:"feeds"`
	Interval    time.Duration       `yaml:"interval"`
	ReplayBatch int                 `yaml:"replay_batch"`
	Window      time.Duration       `yaml:"window"`
	CrossSource bool                `yaml:"cross_source"`
}

// DeletionConfig holds settings for the account deletion worker.
type DeletionConfig struct {
	LockTTL time.Duration `yaml:"lock_ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
