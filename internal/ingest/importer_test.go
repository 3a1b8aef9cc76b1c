package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/localdeck/steward/internal/core/domain"
	"github.com/localdeck/steward/internal/infra/store"
	"github.com/localdeck/steward/internal/infra/store/memory"
	"github.com/localdeck/steward/internal/retry"
)

type stubFeed struct {
	events []domain.Event
	err    error
	calls  int
}

func (f *stubFeed) Fetch(ctx context.Context) ([]domain.Event, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

// stubDLQ is an in-process dead-letter queue with the redis client's FIFO
// semantics.
type stubDLQ struct {
	recs []domain.FailedRecord
}

func (q *stubDLQ) PushFailed(ctx context.Context, rec domain.FailedRecord) error {
	q.recs = append(q.recs, rec)
	return nil
}

func (q *stubDLQ) PopFailed(ctx context.Context, source string) (*domain.FailedRecord, bool, error) {
	if len(q.recs) == 0 {
		return nil, false, nil
	}
	rec := q.recs[0]
	q.recs = q.recs[1:]
	return &rec, true, nil
}

func (q *stubDLQ) DLQDepth(ctx context.Context, source string) (int64, error) {
	return int64(len(q.recs)), nil
}

// failingStore wraps the memory store and fails event upserts a set number
// of times.
type failingStore struct {
	store.Store
	failures int
}

func (s *failingStore) Upsert(ctx context.Context, table string, conflictColumns []string, rows []store.Row) error {
	if table == TableEvents && s.failures != 0 {
		if s.failures > 0 {
			s.failures--
		}
		return errors.New("connection refused")
	}
	return s.Store.Upsert(ctx, table, conflictColumns, rows)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestImporter(t *testing.T, feed FeedFetcher, backend store.Store, dlq DeadLetter) *Importer {
	t.Helper()
	cfg := ImporterConfig{Source: "cityfeed", Interval: time.Minute, ReplayBatch: 10}
	ex := retry.New(retry.Config{MaxRetries: 1, BackoffMultiple: 2.0}, quietLogger())
	return NewImporter(cfg, feed, NewCatalog(backend), ex, dlq, quietLogger())
}

func TestRunOnceInsertsFreshRecords(t *testing.T) {
	mem := memory.New()
	feed := &stubFeed{events: []domain.Event{
		{Title: "Jazz Night", Source: "cityfeed", StartsAt: matchBase},
		{Title: "Book Club", Source: "cityfeed", StartsAt: matchBase.Add(3 * time.Hour)},
	}}
	imp := newTestImporter(t, feed, mem, &stubDLQ{})

	run, err := imp.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if run.Status != domain.ImportRunStatusOK {
		t.Errorf("expected status ok, got %q", run.Status)
	}
	if run.Fetched != 2 || run.Inserted != 2 || run.Failed != 0 {
		t.Errorf("expected 2 fetched 2 inserted, got %+v", run)
	}
	if got := mem.Count(TableEvents); got != 2 {
		t.Errorf("expected 2 stored events, got %d", got)
	}
	if got := mem.Count(TableImportRuns); got != 1 {
		t.Errorf("expected 1 recorded run, got %d", got)
	}
}

func TestRunOnceSkipsDuplicatesAndUpdates(t *testing.T) {
	mem := memory.New()
	mem.Seed(TableEvents, store.Row{
		"id":                "ev-1",
		"title":             "Jazz Night",
		"title_key":         "jazz night",
		"source":            "cityfeed",
		"starts_at":         matchBase,
		"starts_on":         "2025-06-14",
		"image_url":         "https://img.localdeck.test/original.jpg",
		"image_kind":        "primary",
		"image_fingerprint": "abc123",
	})

	feed := &stubFeed{events: []domain.Event{
		// Matches the stored record, carries a competing image.
		{Title: "Jazz Night!", Source: "cityfeed", StartsAt: matchBase.Add(10 * time.Minute), ImageURL: "https://img.localdeck.test/scraped.jpg"},
		// Duplicate of the first inside the batch.
		{Title: "jazz night", Source: "cityfeed", StartsAt: matchBase.Add(20 * time.Minute)},
		// Fresh.
		{Title: "Open Mic", Source: "cityfeed", StartsAt: matchBase.Add(4 * time.Hour)},
	}}
	imp := newTestImporter(t, feed, mem, &stubDLQ{})

	run, err := imp.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if run.Inserted != 1 || run.Updated != 1 || run.Skipped != 1 {
		t.Errorf("expected 1 inserted 1 updated 1 skipped, got inserted=%d updated=%d skipped=%d",
			run.Inserted, run.Updated, run.Skipped)
	}

	row, err := mem.SelectOne(context.Background(), TableEvents, store.ByID("ev-1"))
	if err != nil {
		t.Fatalf("stored record vanished: %v", err)
	}
	if got := row.String("image_url"); got != "https://img.localdeck.test/original.jpg" {
		t.Errorf("existing image clobbered, got %q", got)
	}
	if got := row.String("title"); got != "Jazz Night!" {
		t.Errorf("content should update, got title %q", got)
	}
}

func TestRunOnceFeedFailure(t *testing.T) {
	mem := memory.New()
	feed := &stubFeed{err: errors.New("boom")}
	imp := newTestImporter(t, feed, mem, &stubDLQ{})

	run, err := imp.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected RunOnce to fail")
	}

	var clsErr *retry.Error
	if !errors.As(err, &clsErr) {
		t.Fatalf("expected classified error, got %T", err)
	}
	if clsErr.Code != retry.CodeUnclassified {
		t.Errorf("expected UNCLASSIFIED, got %q", clsErr.Code)
	}
	if feed.calls != 1 {
		t.Errorf("unclassified failures must not be retried, got %d calls", feed.calls)
	}
	if run.Status != domain.ImportRunStatusFailed {
		t.Errorf("expected status failed, got %q", run.Status)
	}
	if got := mem.Count(TableImportRuns); got != 1 {
		t.Errorf("failed run should still be recorded, got %d", got)
	}
}

func TestRunOnceParksFailedInsertAndReplays(t *testing.T) {
	backend := &failingStore{Store: memory.New(), failures: -1}
	dlq := &stubDLQ{}
	feed := &stubFeed{events: []domain.Event{
		{Title: "Jazz Night", Source: "cityfeed", StartsAt: matchBase},
	}}
	imp := newTestImporter(t, feed, backend, dlq)

	run, err := imp.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if run.Status != domain.ImportRunStatusPartial {
		t.Errorf("expected status partial, got %q", run.Status)
	}
	if run.Failed != 1 {
		t.Errorf("expected 1 failed record, got %d", run.Failed)
	}
	if len(dlq.recs) != 1 {
		t.Fatalf("expected 1 parked record, got %d", len(dlq.recs))
	}
	if dlq.recs[0].Attempts != 1 {
		t.Errorf("expected attempts=1, got %d", dlq.recs[0].Attempts)
	}

	// Store recovers; the parked record replays on the next pass.
	backend.failures = 0
	feed.events = nil

	run, err = imp.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("replay pass failed: %v", err)
	}
	if run.Replayed != 1 || run.Inserted != 1 {
		t.Errorf("expected 1 replayed 1 inserted, got replayed=%d inserted=%d", run.Replayed, run.Inserted)
	}
	if len(dlq.recs) != 0 {
		t.Errorf("dead-letter queue should drain, %d left", len(dlq.recs))
	}
	if got := backend.Store.(*memory.Store).Count(TableEvents); got != 1 {
		t.Errorf("expected replayed record stored, got %d", got)
	}
}

func TestRunOnceDropsPoisonRecord(t *testing.T) {
	backend := &failingStore{Store: memory.New(), failures: -1}
	dlq := &stubDLQ{}
	feed := &stubFeed{events: []domain.Event{
		{Title: "Jazz Night", Source: "cityfeed", StartsAt: matchBase},
	}}
	imp := newTestImporter(t, feed, backend, dlq)

	for pass := 0; pass < maxParkAttempts; pass++ {
		if _, err := imp.RunOnce(context.Background()); err != nil {
			t.Fatalf("pass %d failed: %v", pass, err)
		}
		feed.events = nil
	}

	if len(dlq.recs) != 0 {
		t.Errorf("poison record should be dropped after %d attempts, %d still parked",
			maxParkAttempts, len(dlq.recs))
	}
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	mem := memory.New()
	feed := &stubFeed{events: []domain.Event{
		{Title: "Jazz Night", Source: "cityfeed", StartsAt: matchBase},
	}}
	imp := newTestImporter(t, feed, mem, &stubDLQ{})

	errCh := make(chan error, 1)
	go func() { errCh <- imp.Start(context.Background()) }()

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := imp.LastRun(); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first pass never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}

	imp.Stop()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}

	if imp.Running() {
		t.Error("importer still reports running after Stop")
	}
}
