package retry

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/localdeck/steward/internal/metrics"
)

// Config defines retry behavior. MaxRetries counts retries after the first
// attempt, so an operation is invoked at most MaxRetries+1 times.
type Config struct {
	MaxRetries      int           `yaml:"max_retries"`
	BaseDelay       time.Duration `yaml:"base_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	BackoffMultiple float64       `yaml:"backoff_multiple"`
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	MaxRetries:      3,
	BaseDelay:       500 * time.Millisecond,
	MaxDelay:        30 * time.Second,
	BackoffMultiple: 2.0,
}

// Op is a single invocation of a remote-store operation. It must be safe to
// call again after a failure: reads, natural-key upserts, and id-keyed
// updates and deletes qualify.
type Op func(ctx context.Context) (any, error)

// Result is the outcome of a successful execution. Attempts includes the
// first invocation.
type Result struct {
	Value    any
	Attempts int
}

// Executor runs operations with classification-driven retries and
// exponential backoff. Transient failures are retried transparently;
// non-retryable failures return on the first occurrence.
type Executor struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{cfg: cfg, log: log.With("component", "retry")}
}

// Do invokes op until it succeeds, fails permanently, or the retry budget is
// exhausted. tag names the operation in logs and metrics. The error returned
// is always a classified *Error; after exhaustion it keeps Retryable=true so
// callers can tell "gave up" from "permanent".
func (e *Executor) Do(ctx context.Context, tag string, op Op) (Result, error) {
	var lastErr *Error

	maxAttempts := e.cfg.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		value, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				e.log.Info("operation recovered", "tag", tag, "attempt", attempt)
			}
			return Result{Value: value, Attempts: attempt}, nil
		}

		lastErr = Wrap(err, attempt)
		metrics.RetryAttempts.WithLabelValues(lastErr.Code).Inc()
		e.log.Warn("operation failed",
			"tag", tag,
			"attempt", attempt,
			"code", lastErr.Code,
			"retryable", lastErr.Retryable,
			"error", err)

		if !lastErr.Retryable {
			return Result{Attempts: attempt}, lastErr
		}
		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			e.log.Warn("backoff canceled", "tag", tag, "attempt", attempt, "cause", ctx.Err())
			return Result{Attempts: attempt}, lastErr
		case <-time.After(backoffDelay(e.cfg, attempt)):
		}
	}

	metrics.RetryExhausted.WithLabelValues(tag).Inc()
	e.log.Error("operation exhausted retries",
		"tag", tag,
		"attempts", maxAttempts,
		"code", lastErr.Code)
	return Result{Attempts: maxAttempts}, lastErr
}

// backoffDelay returns the sleep before retry attempt+1: BaseDelay doubled
// per completed attempt, capped at MaxDelay.
func backoffDelay(cfg Config, attempt int) time.Duration {
	multiple := cfg.BackoffMultiple
	if multiple <= 0 {
		multiple = DefaultConfig.BackoffMultiple
	}
	delay := float64(cfg.BaseDelay) * math.Pow(multiple, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
