package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/localdeck/steward/internal/core/domain"
	"github.com/localdeck/steward/internal/metrics"
	"github.com/localdeck/steward/internal/retry"
)

// maxParkAttempts bounds how often a record cycles through the dead-letter
// queue before it is dropped as poison.
const maxParkAttempts = 5

// DeadLetter parks records that failed to persist, for replay on a later pass.
type DeadLetter interface {
	PushFailed(ctx context.Context, rec domain.FailedRecord) error
	PopFailed(ctx context.Context, source string) (*domain.FailedRecord, bool, error)
	DLQDepth(ctx context.Context, source string) (int64, error)
}

// ImporterConfig holds per-feed importer settings.
type ImporterConfig struct {
	Source      string
	Interval    time.Duration
	ReplayBatch int
	Match       MatchOptions
}

// Importer periodically pulls one feed, dedupes the batch against stored
// records, and persists the surviving inserts and updates.
type Importer struct {
	cfg     ImporterConfig
	feed    FeedFetcher
	catalog *Catalog
	ex      *retry.Executor
	dlq     DeadLetter
	log     *slog.Logger

	running  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu     sync.Mutex
	last   domain.ImportRun
	hasRun bool
}

func NewImporter(cfg ImporterConfig, feed FeedFetcher, catalog *Catalog, ex *retry.Executor, dlq DeadLetter, log *slog.Logger) *Importer {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.ReplayBatch <= 0 {
		cfg.ReplayBatch = 25
	}
	if cfg.Match.TimeWindow <= 0 {
		cfg.Match.TimeWindow = DefaultMatchOptions.TimeWindow
	}
	if log == nil {
		log = slog.Default()
	}
	return &Importer{
		cfg:     cfg,
		feed:    feed,
		catalog: catalog,
		ex:      ex,
		dlq:     dlq,
		log:     log.With("component", "importer", "source", cfg.Source),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins the import loop. The first pass runs immediately, then every
// Interval. Blocks until the context is canceled or Stop is called.
func (i *Importer) Start(ctx context.Context) error {
	if !i.running.CompareAndSwap(false, true) {
		return fmt.Errorf("importer %s already running", i.cfg.Source)
	}
	// Deferred calls run in reverse order: running flips false before done
	// closes, so waiters in Stop observe a stopped importer.
	defer close(i.done)
	defer i.running.Store(false)

	ticker := time.NewTicker(i.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := i.RunOnce(ctx); err != nil {
			i.log.Error("import pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-i.stop:
			return nil
		case <-ticker.C:
		}
	}
}

// Stop ends the loop and waits for an in-flight pass to finish.
func (i *Importer) Stop() {
	i.stopOnce.Do(func() { close(i.stop) })
	if i.running.Load() {
		<-i.done
	}
}

func (i *Importer) Running() bool { return i.running.Load() }

func (i *Importer) Source() string { return i.cfg.Source }

// LastRun returns the most recent pass outcome, false before the first pass.
func (i *Importer) LastRun() (domain.ImportRun, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.last, i.hasRun
}

// RunOnce executes one import pass and returns its audit record. Parked
// records are replayed through the same dedupe path as fresh ones; a fetch or
// list failure fails the whole pass, per-record persistence failures park the
// record and mark the pass partial.
func (i *Importer) RunOnce(ctx context.Context) (domain.ImportRun, error) {
	run := domain.ImportRun{
		ID:        uuid.New().String(),
		Source:    i.cfg.Source,
		Status:    domain.ImportRunStatusOK,
		StartedAt: time.Now().UTC(),
	}

	parked := i.popParked(ctx)
	run.Replayed = len(parked)

	attempts := make(map[replayKey]int, len(parked))
	for _, rec := range parked {
		attempts[keyOf(rec.Event)] = rec.Attempts
	}

	fetched, err := i.fetch(ctx)
	if err != nil {
		i.requeue(ctx, parked)
		run.Status = domain.ImportRunStatusFailed
		run.Error = err.Error()
		i.finish(ctx, &run)
		return run, err
	}
	run.Fetched = len(fetched)

	incoming := make([]domain.Event, 0, len(fetched)+len(parked))
	incoming = append(incoming, fetched...)
	for _, rec := range parked {
		incoming = append(incoming, rec.Event)
	}
	if len(incoming) == 0 {
		i.finish(ctx, &run)
		return run, nil
	}

	existing, err := i.listExisting(ctx, incoming)
	if err != nil {
		i.requeue(ctx, parked)
		run.Status = domain.ImportRunStatusFailed
		run.Error = err.Error()
		i.finish(ctx, &run)
		return run, err
	}

	plan := BuildPlan(incoming, existing, i.cfg.Match)
	run.Skipped = plan.SkippedDuplicates

	var insFailed, updFailed int
	run.Inserted, insFailed = i.persistInserts(ctx, plan.Inserts, attempts)
	run.Updated, updFailed = i.persistUpdates(ctx, plan.Updates, attempts)
	run.Failed = insFailed + updFailed

	if run.Failed > 0 {
		run.Status = domain.ImportRunStatusPartial
	}
	i.finish(ctx, &run)
	return run, nil
}

func (i *Importer) fetch(ctx context.Context) ([]domain.Event, error) {
	res, err := i.ex.Do(ctx, "feed.fetch:"+i.cfg.Source, func(ctx context.Context) (any, error) {
		return i.feed.Fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	events, _ := res.Value.([]domain.Event)
	return events, nil
}

// listExisting loads stored records overlapping the batch's time range,
// padded by the match window on both sides so borderline duplicates are
// visible to the planner.
func (i *Importer) listExisting(ctx context.Context, incoming []domain.Event) ([]domain.Event, error) {
	window := i.cfg.Match.TimeWindow
	from, to := incoming[0].StartsAt, incoming[0].StartsAt
	for _, e := range incoming[1:] {
		if e.StartsAt.Before(from) {
			from = e.StartsAt
		}
		if e.StartsAt.After(to) {
			to = e.StartsAt
		}
	}
	return i.catalog.ListWindow(ctx, from.Add(-window), to.Add(window))
}

func (i *Importer) persistInserts(ctx context.Context, inserts []domain.Event, attempts map[replayKey]int) (inserted, failed int) {
	if len(inserts) == 0 {
		return 0, 0
	}
	if err := i.catalog.InsertBatch(ctx, inserts); err == nil {
		return len(inserts), 0
	}
	// One bad record fails a multi-row statement. Isolate it by falling
	// back to row-at-a-time and park only the rows that still fail.
	for _, e := range inserts {
		if err := i.catalog.InsertBatch(ctx, []domain.Event{e}); err != nil {
			i.park(ctx, e, err, attempts)
			failed++
			continue
		}
		inserted++
	}
	return inserted, failed
}

func (i *Importer) persistUpdates(ctx context.Context, updates []Update, attempts map[replayKey]int) (updated, failed int) {
	for _, u := range updates {
		if err := i.catalog.ApplyUpdate(ctx, u); err != nil {
			i.park(ctx, u.Event, err, attempts)
			failed++
			continue
		}
		updated++
	}
	return updated, failed
}

// replayKey identifies a record across park/replay cycles. The natural key
// is used because parked records have no id yet.
type replayKey struct {
	titleKey string
	startsOn string
}

func keyOf(e domain.Event) replayKey {
	return replayKey{titleKey: NormalizeTitle(e.Title), startsOn: e.StartsOn()}
}

func (i *Importer) popParked(ctx context.Context) []domain.FailedRecord {
	if i.dlq == nil {
		return nil
	}
	recs := make([]domain.FailedRecord, 0, i.cfg.ReplayBatch)
	for len(recs) < i.cfg.ReplayBatch {
		rec, ok, err := i.dlq.PopFailed(ctx, i.cfg.Source)
		if err != nil {
			i.log.Warn("dead-letter pop failed", "error", err)
			break
		}
		if !ok {
			break
		}
		recs = append(recs, *rec)
	}
	return recs
}

// requeue returns parked records untouched after a pass-fatal failure.
// Attempts are not incremented: the records themselves did not fail.
func (i *Importer) requeue(ctx context.Context, recs []domain.FailedRecord) {
	for _, rec := range recs {
		if err := i.dlq.PushFailed(ctx, rec); err != nil {
			i.log.Error("record lost from dead-letter queue", "title", rec.Event.Title, "error", err)
		}
	}
}

// park sends a record to the dead-letter queue for a later pass. Records
// that keep failing are dropped once they hit maxParkAttempts.
func (i *Importer) park(ctx context.Context, e domain.Event, cause error, attempts map[replayKey]int) {
	cls := retry.Wrap(cause, 0)
	n := attempts[keyOf(e)] + 1
	if n >= maxParkAttempts {
		metrics.IngestRecords.WithLabelValues(i.cfg.Source, "dropped").Inc()
		i.log.Error("dropping poison record",
			"title", e.Title,
			"attempts", n,
			"code", cls.Code,
			"error", cause)
		return
	}
	if i.dlq == nil {
		i.log.Error("record failed with no dead-letter queue", "title", e.Title, "error", cause)
		return
	}
	rec := domain.FailedRecord{
		Source:   i.cfg.Source,
		Event:    e,
		Error:    cause.Error(),
		Code:     cls.Code,
		Attempts: n,
		FailedAt: time.Now().UTC(),
	}
	if err := i.dlq.PushFailed(ctx, rec); err != nil {
		i.log.Error("record lost from dead-letter queue", "title", e.Title, "error", err)
	}
}

func (i *Importer) finish(ctx context.Context, run *domain.ImportRun) {
	run.FinishedAt = time.Now().UTC()

	metrics.IngestRuns.WithLabelValues(run.Source, string(run.Status)).Inc()
	metrics.IngestRecords.WithLabelValues(run.Source, "inserted").Add(float64(run.Inserted))
	metrics.IngestRecords.WithLabelValues(run.Source, "updated").Add(float64(run.Updated))
	metrics.IngestRecords.WithLabelValues(run.Source, "skipped").Add(float64(run.Skipped))
	metrics.IngestRecords.WithLabelValues(run.Source, "failed").Add(float64(run.Failed))

	if i.dlq != nil {
		if depth, err := i.dlq.DLQDepth(ctx, run.Source); err == nil {
			metrics.IngestDLQDepth.WithLabelValues(run.Source).Set(float64(depth))
		}
	}

	if err := i.catalog.RecordRun(ctx, *run); err != nil {
		i.log.Warn("import run not recorded", "error", err)
	}

	i.mu.Lock()
	i.last = *run
	i.hasRun = true
	i.mu.Unlock()

	i.log.Info("import pass finished",
		"status", run.Status,
		"fetched", run.Fetched,
		"inserted", run.Inserted,
		"updated", run.Updated,
		"skipped", run.Skipped,
		"replayed", run.Replayed,
		"failed", run.Failed)
}
