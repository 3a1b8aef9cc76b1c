package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// zeroDelay keeps tests fast; retry counting is unaffected by delays.
var zeroDelay = Config{MaxRetries: 3, BackoffMultiple: 2.0}

func TestDoFirstAttemptSuccess(t *testing.T) {
	ex := New(zeroDelay, nil)

	calls := 0
	res, err := ex.Do(context.Background(), "test.op", func(context.Context) (any, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 1 || res.Attempts != 1 {
		t.Fatalf("calls = %d, attempts = %d, want 1 and 1", calls, res.Attempts)
	}
	if res.Value != "ok" {
		t.Fatalf("value = %v, want ok", res.Value)
	}
}

func TestDoNonRetryableStopsImmediately(t *testing.T) {
	ex := New(zeroDelay, nil)

	calls := 0
	res, err := ex.Do(context.Background(), "test.op", func(context.Context) (any, error) {
		calls++
		return nil, errors.New(`duplicate key value violates unique constraint "events_natural_key"`)
	})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (non-retryable must not retry)", calls)
	}
	var opErr *Error
	if !errors.As(err, &opErr) {
		t.Fatalf("Do() error = %T, want *Error", err)
	}
	if opErr.Code != CodeValidation || opErr.Retryable {
		t.Fatalf("classification = {%s %v}, want {%s false}", opErr.Code, opErr.Retryable, CodeValidation)
	}
	if opErr.Attempts != 1 || res.Attempts != 1 {
		t.Fatalf("attempts = %d/%d, want 1", opErr.Attempts, res.Attempts)
	}
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	ex := New(zeroDelay, nil)

	calls := 0
	res, err := ex.Do(context.Background(), "test.op", func(context.Context) (any, error) {
		calls++
		if calls <= 2 {
			return nil, errors.New("read tcp: connection reset by peer")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 || res.Attempts != 3 {
		t.Fatalf("calls = %d, attempts = %d, want 3 and 3", calls, res.Attempts)
	}
	if res.Value != 42 {
		t.Fatalf("value = %v, want 42", res.Value)
	}
}

func TestDoExhaustsRetryBudget(t *testing.T) {
	ex := New(zeroDelay, nil)

	calls := 0
	res, err := ex.Do(context.Background(), "test.op", func(context.Context) (any, error) {
		calls++
		return nil, errors.New("i/o timeout")
	})
	if calls != zeroDelay.MaxRetries+1 {
		t.Fatalf("calls = %d, want %d", calls, zeroDelay.MaxRetries+1)
	}
	var opErr *Error
	if !errors.As(err, &opErr) {
		t.Fatalf("Do() error = %T, want *Error", err)
	}
	// Retryable stays true after exhaustion: callers can tell "gave up"
	// from "permanent".
	if !opErr.Retryable || opErr.Code != CodeNetwork {
		t.Fatalf("classification = {%s %v}, want {%s true}", opErr.Code, opErr.Retryable, CodeNetwork)
	}
	if opErr.Attempts != 4 || res.Attempts != 4 {
		t.Fatalf("attempts = %d/%d, want 4", opErr.Attempts, res.Attempts)
	}
}

func TestDoContextCanceledDuringBackoff(t *testing.T) {
	ex := New(Config{MaxRetries: 3, BaseDelay: time.Minute, BackoffMultiple: 2}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := ex.Do(ctx, "test.op", func(context.Context) (any, error) {
		calls++
		cancel()
		return nil, errors.New("i/o timeout")
	})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (canceled before second attempt)", calls)
	}
	var opErr *Error
	if !errors.As(err, &opErr) || opErr.Code != CodeNetwork {
		t.Fatalf("Do() error = %v, want classified network error", err)
	}
}

func TestBackoffSchedule(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 2 * time.Second},
	}

	for _, tt := range tests {
		if got := backoffDelay(DefaultConfig, tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffCappedAtMaxDelay(t *testing.T) {
	cfg := Config{BaseDelay: 20 * time.Second, MaxDelay: 30 * time.Second, BackoffMultiple: 2}

	if got := backoffDelay(cfg, 3); got != 30*time.Second {
		t.Fatalf("backoffDelay(3) = %v, want capped 30s", got)
	}
}
