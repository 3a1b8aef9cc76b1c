package domain

import "time"

// ImportRun represents one execution of a feed importer
type ImportRun struct {
	ID         string          `json:"id"`
	Source     string          `json:"source"`
	Status     ImportRunStatus `json:"status"`
	Fetched    int             `json:"fetched"`
	Inserted   int             `json:"inserted"`
	Updated    int             `json:"updated"`
	Skipped    int             `json:"skipped"`
	Replayed   int             `json:"replayed"`
	Failed     int             `json:"failed"`
	Error      string          `json:"error_msg,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

type ImportRunStatus string

const (
	ImportRunStatusOK      ImportRunStatus = "ok"
	ImportRunStatusPartial ImportRunStatus = "partial"
	ImportRunStatusFailed  ImportRunStatus = "failed"
)
