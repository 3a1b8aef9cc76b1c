// Package health provides service health monitoring and status reporting.
package health

// Status represents the health state of the service or a component.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// ComponentHealth is the state of one backing component.
type ComponentHealth struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// FeedHealth contains health metrics for one import feed.
type FeedHealth struct {
	Source        string `json:"source"`
	Status        Status `json:"status"`
	Running       bool   `json:"running"`
	LastRunStatus string `json:"last_run_status,omitempty"`
	LastRunAge    string `json:"last_run_age,omitempty"`
	ParkedRecords int64  `json:"parked_records"`
}

// WorkerHealth is the state of the deletion worker.
type WorkerHealth struct {
	Status     Status `json:"status"`
	Running    bool   `json:"running"`
	QueueDepth int64  `json:"queue_depth"`
}

// Report contains the full service health report. Status is the worst of
// all component statuses.
type Report struct {
	Status         Status                `json:"status"`
	Store          ComponentHealth       `json:"store"`
	Redis          *ComponentHealth      `json:"redis,omitempty"`
	Feeds          map[string]FeedHealth `json:"feeds,omitempty"`
	DeletionWorker *WorkerHealth         `json:"deletion_worker,omitempty"`
}
