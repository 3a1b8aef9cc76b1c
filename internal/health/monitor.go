package health

import (
	"context"
	"sync"
	"time"

	"github.com/localdeck/steward/internal/core/domain"
)

// checkInterval rate-limits health checks so probes cannot hammer the
// backing store.
const checkInterval = 10 * time.Second

// Pinger verifies connectivity to a backing component.
type Pinger interface {
	Ping(ctx context.Context) error
}

// FeedStatus is the importer surface the monitor reads.
type FeedStatus interface {
	Source() string
	Running() bool
	LastRun() (domain.ImportRun, bool)
}

// QueueDepths reports redis queue sizes.
type QueueDepths interface {
	DeletionQueueDepth(ctx context.Context) (int64, error)
	DLQDepth(ctx context.Context, source string) (int64, error)
}

// RunningReporter is the worker surface the monitor reads.
type RunningReporter interface {
	Running() bool
}

// Config wires the components the monitor watches. Redis, Depths, and
// Worker are nil when the deployment runs without them.
type Config struct {
	Store      Pinger
	Redis      Pinger
	Depths     QueueDepths
	Feeds      []FeedStatus
	Worker     RunningReporter
	StaleAfter time.Duration // feed last-run age before it degrades
}

// Monitor aggregates health status from the service's components.
type Monitor struct {
	cfg Config

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport Report
}

func NewMonitor(cfg Config) *Monitor {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 45 * time.Minute
	}
	return &Monitor{cfg: cfg}
}

// CheckHealth builds the current report. Checks are rate-limited; callers
// inside the window get the cached report.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lastCheck.IsZero() && time.Since(m.lastCheck) < checkInterval {
		return m.lastReport
	}

	report := Report{Status: StatusHealthy}

	// The store is the backbone: unreachable means critical.
	if err := m.cfg.Store.Ping(ctx); err != nil {
		report.Store = ComponentHealth{Status: StatusCritical, Error: err.Error()}
	} else {
		report.Store = ComponentHealth{Status: StatusHealthy}
	}
	report.Status = worst(report.Status, report.Store.Status)

	if m.cfg.Redis != nil {
		ch := ComponentHealth{Status: StatusHealthy}
		if err := m.cfg.Redis.Ping(ctx); err != nil {
			ch = ComponentHealth{Status: StatusDegraded, Error: err.Error()}
		}
		report.Redis = &ch
		report.Status = worst(report.Status, ch.Status)
	}

	if len(m.cfg.Feeds) > 0 {
		report.Feeds = make(map[string]FeedHealth, len(m.cfg.Feeds))
		for _, feed := range m.cfg.Feeds {
			fh := m.feedHealth(ctx, feed)
			report.Feeds[fh.Source] = fh
			report.Status = worst(report.Status, fh.Status)
		}
	}

	if m.cfg.Worker != nil {
		wh := WorkerHealth{Status: StatusHealthy, Running: m.cfg.Worker.Running()}
		if !wh.Running {
			wh.Status = StatusDegraded
		}
		if m.cfg.Depths != nil {
			if depth, err := m.cfg.Depths.DeletionQueueDepth(ctx); err == nil {
				wh.QueueDepth = depth
			}
		}
		report.DeletionWorker = &wh
		report.Status = worst(report.Status, wh.Status)
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

func (m *Monitor) feedHealth(ctx context.Context, feed FeedStatus) FeedHealth {
	fh := FeedHealth{
		Source:  feed.Source(),
		Status:  StatusHealthy,
		Running: feed.Running(),
	}

	if m.cfg.Depths != nil {
		if depth, err := m.cfg.Depths.DLQDepth(ctx, fh.Source); err == nil {
			fh.ParkedRecords = depth
		}
	}

	last, ok := feed.LastRun()
	if !ok {
		if !fh.Running {
			fh.Status = StatusDegraded
		}
		return fh
	}
	fh.LastRunStatus = string(last.Status)
	age := time.Since(last.FinishedAt)
	fh.LastRunAge = age.Round(time.Second).String()

	switch {
	case !fh.Running, age > 2*m.cfg.StaleAfter:
		fh.Status = StatusCritical
	case age > m.cfg.StaleAfter,
		last.Status != domain.ImportRunStatusOK,
		fh.ParkedRecords > 0:
		fh.Status = StatusDegraded
	}
	return fh
}

// worst returns the more severe of two statuses.
func worst(a, b Status) Status {
	if a == StatusCritical || b == StatusCritical {
		return StatusCritical
	}
	if a == StatusDegraded || b == StatusDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}
