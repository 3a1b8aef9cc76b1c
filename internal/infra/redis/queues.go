package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/localdeck/steward/internal/core/domain"
)

// resultsKeep bounds the retained deletion results.
const resultsKeep = 1000

// EnqueueDeletion pushes a deletion plan onto the request queue.
func (c *Client) EnqueueDeletion(ctx context.Context, plan domain.DeletionPlan) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	if err := c.rdb.LPush(ctx, deletionQueueKey, data).Err(); err != nil {
		return fmt.Errorf("lpush failed: %w", err)
	}
	return nil
}

// DequeueDeletion blocks up to wait for the next deletion plan. found is
// false on timeout.
func (c *Client) DequeueDeletion(ctx context.Context, wait time.Duration) (*domain.DeletionPlan, bool, error) {
	res, err := c.rdb.BRPop(ctx, wait, deletionQueueKey).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("brpop failed: %w", err)
	}

	var plan domain.DeletionPlan
	if err := json.Unmarshal([]byte(res[1]), &plan); err != nil {
		return nil, false, fmt.Errorf("unmarshal plan: %w", err)
	}
	return &plan, true, nil
}

// DeletionQueueDepth returns the number of pending deletion requests.
func (c *Client) DeletionQueueDepth(ctx context.Context) (int64, error) {
	return c.rdb.LLen(ctx, deletionQueueKey).Result()
}

// PublishResult records a deletion outcome for downstream consumers,
// keeping only the most recent entries.
func (c *Client) PublishResult(ctx context.Context, result domain.DeletionResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, deletionResultsKey, data)
	pipe.LTrim(ctx, deletionResultsKey, 0, resultsKeep-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish result: %w", err)
	}
	return nil
}

// PushFailed parks a failed feed record on its source's dead-letter queue.
func (c *Client) PushFailed(ctx context.Context, rec domain.FailedRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal failed record: %w", err)
	}
	if err := c.rdb.LPush(ctx, dlqKey(rec.Source), data).Err(); err != nil {
		return fmt.Errorf("lpush failed: %w", err)
	}
	return nil
}

// PopFailed takes the oldest failed record for a source. found is false
// when the queue is empty.
func (c *Client) PopFailed(ctx context.Context, source string) (*domain.FailedRecord, bool, error) {
	val, err := c.rdb.RPop(ctx, dlqKey(source)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("rpop failed: %w", err)
	}

	var rec domain.FailedRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, false, fmt.Errorf("unmarshal failed record: %w", err)
	}
	return &rec, true, nil
}

// DLQDepth returns the dead-letter queue length for a source.
func (c *Client) DLQDepth(ctx context.Context, source string) (int64, error) {
	return c.rdb.LLen(ctx, dlqKey(source)).Result()
}
