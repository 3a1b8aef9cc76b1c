package deletion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/localdeck/steward/internal/core/domain"
)

// dequeueWait is the blocking-pop timeout. It bounds how long Stop waits for
// the loop to notice the stop channel.
const dequeueWait = 2 * time.Second

// Queue supplies deletion plans and receives results.
type Queue interface {
	DequeueDeletion(ctx context.Context, wait time.Duration) (*domain.DeletionPlan, bool, error)
	EnqueueDeletion(ctx context.Context, plan domain.DeletionPlan) error
	PublishResult(ctx context.Context, result domain.DeletionResult) error
}

// Worker consumes deletion plans from the queue and runs them through the
// orchestrator, guarded so one user never has two runs in flight.
type Worker struct {
	orch  *Orchestrator
	queue Queue
	guard Guard
	log   *slog.Logger

	running  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewWorker(orch *Orchestrator, queue Queue, guard Guard, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		orch:  orch,
		queue: queue,
		guard: guard,
		log:   log.With("component", "deletion_worker"),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start consumes the queue until the context is canceled or Stop is called.
// A plan picked up before shutdown always runs to completion: the
// orchestration runs on a context detached from cancellation, because a
// half-deleted account is worse than a delayed exit.
func (w *Worker) Start(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return fmt.Errorf("deletion worker already running")
	}
	// Deferred calls run in reverse order: running flips false before done
	// closes, so waiters in Stop observe a stopped worker.
	defer close(w.done)
	defer w.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stop:
			return nil
		default:
		}

		plan, ok, err := w.queue.DequeueDeletion(ctx, dequeueWait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Warn("deletion dequeue failed", "error", err)
			w.pause(ctx)
			continue
		}
		if !ok {
			continue
		}
		w.process(ctx, *plan)
	}
}

// Stop ends the consume loop and waits for an in-flight run to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	if w.running.Load() {
		<-w.done
	}
}

func (w *Worker) Running() bool { return w.running.Load() }

func (w *Worker) process(ctx context.Context, plan domain.DeletionPlan) {
	if !plan.Policy.Valid() {
		w.log.Error("deletion plan rejected",
			"user_id", plan.UserID,
			"policy", plan.Policy)
		return
	}

	acquired, err := w.guard.Acquire(ctx, plan.UserID)
	if err != nil {
		w.log.Error("deletion guard unavailable, requeueing",
			"user_id", plan.UserID,
			"error", err)
		w.requeue(ctx, plan)
		return
	}
	if !acquired {
		w.log.Warn("deletion already in flight, requeueing", "user_id", plan.UserID)
		w.requeue(ctx, plan)
		return
	}

	// Detach from cancellation: once started, the run finishes.
	runCtx := context.WithoutCancel(ctx)
	defer func() {
		if err := w.guard.Release(runCtx, plan.UserID); err != nil {
			w.log.Warn("guard release failed", "user_id", plan.UserID, "error", err)
		}
	}()

	result := w.orch.Run(runCtx, plan)

	if err := w.queue.PublishResult(runCtx, result); err != nil {
		w.log.Warn("deletion result not published",
			"user_id", plan.UserID,
			"error", err)
	}
}

// requeue puts a plan that cannot run yet back on the queue, then pauses so
// a lone requeued plan does not spin the loop.
func (w *Worker) requeue(ctx context.Context, plan domain.DeletionPlan) {
	if err := w.queue.EnqueueDeletion(context.WithoutCancel(ctx), plan); err != nil {
		w.log.Error("deletion plan lost", "user_id", plan.UserID, "error", err)
		return
	}
	w.pause(ctx)
}

func (w *Worker) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-w.stop:
	case <-time.After(time.Second):
	}
}
