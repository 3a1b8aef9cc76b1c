package store

import (
	"context"
	"time"

	"github.com/localdeck/steward/internal/metrics"
	"github.com/localdeck/steward/internal/retry"
)

// resilientStore routes every store call through the retrying executor.
// All production access goes through this wrapper; backends stay dumb.
type resilientStore struct {
	inner Store
	ex    *retry.Executor
}

// Resilient wraps a backend with retry, classification, and metrics.
func Resilient(inner Store, ex *retry.Executor) Store {
	return &resilientStore{inner: inner, ex: ex}
}

func (s *resilientStore) Select(ctx context.Context, table string, q Query) ([]Row, error) {
	res, err := s.do(ctx, "select", table, func(ctx context.Context) (any, error) {
		return s.inner.Select(ctx, table, q)
	})
	if err != nil {
		return nil, err
	}
	rows, _ := res.Value.([]Row)
	return rows, nil
}

func (s *resilientStore) SelectOne(ctx context.Context, table string, q Query) (Row, error) {
	res, err := s.do(ctx, "select_one", table, func(ctx context.Context) (any, error) {
		return s.inner.SelectOne(ctx, table, q)
	})
	if err != nil {
		return nil, err
	}
	row, _ := res.Value.(Row)
	return row, nil
}

func (s *resilientStore) Insert(ctx context.Context, table string, rows []Row) error {
	_, err := s.do(ctx, "insert", table, func(ctx context.Context) (any, error) {
		return nil, s.inner.Insert(ctx, table, rows)
	})
	return err
}

func (s *resilientStore) Upsert(ctx context.Context, table string, conflictColumns []string, rows []Row) error {
	_, err := s.do(ctx, "upsert", table, func(ctx context.Context) (any, error) {
		return nil, s.inner.Upsert(ctx, table, conflictColumns, rows)
	})
	return err
}

func (s *resilientStore) Update(ctx context.Context, table string, q Query, changes Row) (int64, error) {
	res, err := s.do(ctx, "update", table, func(ctx context.Context) (any, error) {
		return s.inner.Update(ctx, table, q, changes)
	})
	if err != nil {
		return 0, err
	}
	n, _ := res.Value.(int64)
	return n, nil
}

func (s *resilientStore) Delete(ctx context.Context, table string, q Query) (int64, error) {
	res, err := s.do(ctx, "delete", table, func(ctx context.Context) (any, error) {
		return s.inner.Delete(ctx, table, q)
	})
	if err != nil {
		return 0, err
	}
	n, _ := res.Value.(int64)
	return n, nil
}

// Ping and Close bypass the executor: health checks want the current state,
// not a retried one.
func (s *resilientStore) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

func (s *resilientStore) Close() error {
	return s.inner.Close()
}

func (s *resilientStore) do(ctx context.Context, op, table string, fn retry.Op) (retry.Result, error) {
	start := time.Now()
	res, err := s.ex.Do(ctx, "store."+op+":"+table, fn)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.StoreCalls.WithLabelValues(op, outcome).Inc()
	metrics.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	return res, err
}
