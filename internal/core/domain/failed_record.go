package domain

import "time"

// FailedRecord represents a feed record that could not be persisted. It
// parks on the dead-letter queue until the next importer run replays it.
type FailedRecord struct {
	Source   string    `json:"source"`
	Event    Event     `json:"event"`
	Error    string    `json:"error_msg"`
	Code     string    `json:"code"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}
