package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations: the deletion request queue, per-user
// deletion locks, and the ingest dead-letter queue.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Ping verifies connectivity, for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
const (
	deletionQueueKey   = "deletion:requests"
	deletionResultsKey = "deletion:results"
)

func userLockKey(userID string) string {
	return fmt.Sprintf("deletion:lock:%s", userID)
}

func dlqKey(source string) string {
	return fmt.Sprintf("ingest:dlq:%s", source)
}

// AcquireUserLock takes the per-user deletion lock. Returns false when
// another worker holds it.
func (c *Client) AcquireUserLock(ctx context.Context, userID string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, userLockKey(userID), "locked", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// ReleaseUserLock releases the per-user deletion lock.
func (c *Client) ReleaseUserLock(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, userLockKey(userID)).Err()
}
