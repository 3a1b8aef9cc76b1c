package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/localdeck/steward/internal/core/domain"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

type stubFeed struct {
	source  string
	running bool
	last    domain.ImportRun
	hasRun  bool
}

func (f stubFeed) Source() string { return f.source }
func (f stubFeed) Running() bool  { return f.running }
func (f stubFeed) LastRun() (domain.ImportRun, bool) {
	return f.last, f.hasRun
}

type stubWorker struct{ running bool }

func (w stubWorker) Running() bool { return w.running }

func freshRun(status domain.ImportRunStatus) domain.ImportRun {
	return domain.ImportRun{
		Status:     status,
		FinishedAt: time.Now().Add(-time.Minute),
	}
}

func TestMonitorHealthy(t *testing.T) {
	m := NewMonitor(Config{
		Store: stubPinger{},
		Redis: stubPinger{},
		Feeds: []FeedStatus{
			stubFeed{source: "cityfeed", running: true, last: freshRun(domain.ImportRunStatusOK), hasRun: true},
		},
		Worker: stubWorker{running: true},
	})

	report := m.CheckHealth(context.Background())
	if report.Status != StatusHealthy {
		t.Errorf("expected healthy, got %s", report.Status)
	}
	if report.Feeds["cityfeed"].Status != StatusHealthy {
		t.Errorf("expected healthy feed, got %s", report.Feeds["cityfeed"].Status)
	}
}

func TestMonitorStoreDownIsCritical(t *testing.T) {
	m := NewMonitor(Config{
		Store: stubPinger{err: errors.New("connection refused")},
	})

	report := m.CheckHealth(context.Background())
	if report.Status != StatusCritical {
		t.Errorf("expected critical, got %s", report.Status)
	}
	if report.Store.Error == "" {
		t.Error("store error should be reported")
	}
}

func TestMonitorRedisDownDegrades(t *testing.T) {
	m := NewMonitor(Config{
		Store: stubPinger{},
		Redis: stubPinger{err: errors.New("connection refused")},
	})

	report := m.CheckHealth(context.Background())
	if report.Status != StatusDegraded {
		t.Errorf("expected degraded, got %s", report.Status)
	}
}

func TestMonitorFeedStates(t *testing.T) {
	tests := []struct {
		name string
		feed stubFeed
		want Status
	}{
		{
			name: "partial last run degrades",
			feed: stubFeed{source: "a", running: true, last: freshRun(domain.ImportRunStatusPartial), hasRun: true},
			want: StatusDegraded,
		},
		{
			name: "stale last run degrades",
			feed: stubFeed{source: "b", running: true, hasRun: true, last: domain.ImportRun{
				Status:     domain.ImportRunStatusOK,
				FinishedAt: time.Now().Add(-time.Hour),
			}},
			want: StatusDegraded,
		},
		{
			name: "stopped loop is critical",
			feed: stubFeed{source: "c", running: false, last: freshRun(domain.ImportRunStatusOK), hasRun: true},
			want: StatusCritical,
		},
		{
			name: "not yet run but running is healthy",
			feed: stubFeed{source: "d", running: true},
			want: StatusHealthy,
		},
	}

	for _, tt := range tests {
		m := NewMonitor(Config{
			Store:      stubPinger{},
			Feeds:      []FeedStatus{tt.feed},
			StaleAfter: 30 * time.Minute,
		})
		report := m.CheckHealth(context.Background())
		if got := report.Feeds[tt.feed.source].Status; got != tt.want {
			t.Errorf("%s: feed status = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestMonitorCachesWithinWindow(t *testing.T) {
	store := &countingPinger{}
	m := NewMonitor(Config{Store: store})

	m.CheckHealth(context.Background())
	m.CheckHealth(context.Background())

	if store.calls != 1 {
		t.Errorf("expected 1 ping within the cache window, got %d", store.calls)
	}
}

type countingPinger struct{ calls int }

func (p *countingPinger) Ping(ctx context.Context) error {
	p.calls++
	return nil
}

func TestHandleHealthStatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		storeErr error
		wantCode int
		wantBody string
	}{
		{"healthy", nil, http.StatusOK, "healthy"},
		{"critical", errors.New("down"), http.StatusServiceUnavailable, "critical"},
	}

	for _, tt := range tests {
		s := NewServer(NewMonitor(Config{Store: stubPinger{err: tt.storeErr}}), 0)

		rec := httptest.NewRecorder()
		s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != tt.wantCode {
			t.Errorf("%s: status = %d, want %d", tt.name, rec.Code, tt.wantCode)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: bad body: %v", tt.name, err)
		}
		if body["status"] != tt.wantBody {
			t.Errorf("%s: body status = %q, want %q", tt.name, body["status"], tt.wantBody)
		}
	}
}

func TestHandleDetailedIncludesComponents(t *testing.T) {
	s := NewServer(NewMonitor(Config{
		Store: stubPinger{},
		Feeds: []FeedStatus{
			stubFeed{source: "cityfeed", running: true, last: freshRun(domain.ImportRunStatusOK), hasRun: true},
		},
	}), 0)

	rec := httptest.NewRecorder()
	s.handleDetailed(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))

	var report Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if report.Store.Status != StatusHealthy {
		t.Errorf("expected healthy store, got %s", report.Store.Status)
	}
	if _, ok := report.Feeds["cityfeed"]; !ok {
		t.Error("feed missing from detailed report")
	}
}
