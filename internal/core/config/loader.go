package config

import (
	"fmt"
	"os"
	"time"

	"github.com/localdeck/steward/internal/retry"
	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}
	if cfg.Retry == (retry.Config{}) {
		cfg.Retry = retry.DefaultConfig
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = retry.DefaultConfig.BaseDelay
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = retry.DefaultConfig.MaxDelay
	}
	if cfg.Retry.BackoffMultiple == 0 {
		cfg.Retry.BackoffMultiple = retry.DefaultConfig.BackoffMultiple
	}
	if cfg.Ingest.Interval == 0 {
		cfg.Ingest.Interval = 15 * time.Minute
	}
	if cfg.Ingest.ReplayBatch == 0 {
		cfg.Ingest.ReplayBatch = 25
	}
	if cfg.Ingest.Window == 0 {
		cfg.Ingest.Window = time.Hour
	}
	if cfg.Deletion.LockTTL == 0 {
		cfg.Deletion.LockTTL = 10 * time.Minute
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.Store.Driver {
	case "memory":
	case "http":
		if c.Store.HTTP.BaseURL == "" {
			return fmt.Errorf("store driver %q requires store.http.base_url", c.Store.Driver)
		}
	case "postgres":
		if c.Store.Postgres.URL == "" {
			return fmt.Errorf("store driver %q requires store.postgres.url", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver: %q", c.Store.Driver)
	}

	seen := make(map[string]bool, len(c.Ingest.Feeds))
	for _, f := range c.Ingest.Feeds {
		if f.Source == "" {
			return fmt.Errorf("feed config missing source")
		}
		if f.URL == "" {
			return fmt.Errorf("feed %q missing url", f.Source)
		}
		if seen[f.Source] {
			return fmt.Errorf("duplicate feed source: %q", f.Source)
		}
		seen[f.Source] = true
	}

	return nil
}
