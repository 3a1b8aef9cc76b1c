package domain

import "time"

// DeletionPolicy controls how owned business listings are handled when the
// owning account is deleted.
type DeletionPolicy string

const (
	// PolicyHardDelete removes owned listings outright.
	PolicyHardDelete DeletionPolicy = "hard_delete"
	// PolicySoftDelete tombstones owned listings and detaches the owner.
	PolicySoftDelete DeletionPolicy = "soft_delete"
)

func (p DeletionPolicy) Valid() bool {
	return p == PolicyHardDelete || p == PolicySoftDelete
}

// DeletionPlan describes a single account-deletion request. It is consumed
// once by the orchestrator and never persisted.
type DeletionPlan struct {
	UserID      string         `json:"user_id"`
	UserEmail   string         `json:"user_email"`
	Policy      DeletionPolicy `json:"policy"`
	BusinessIDs []string       `json:"business_ids,omitempty"`
	RequestedAt time.Time      `json:"requested_at"`
}

// EntityFailure records one failed step of a deletion run. Compensated means
// a failed hard delete was converted into a soft delete.
type EntityFailure struct {
	Entity      string `json:"entity"`
	RecordID    string `json:"record_id,omitempty"`
	Error       string `json:"error"`
	Compensated bool   `json:"compensated,omitempty"`
}

// DeletionResult is the outcome of one orchestrated deletion run. Success
// reflects the identity step only; dependent failures are carried as data.
type DeletionResult struct {
	UserID     string          `json:"user_id"`
	Success    bool            `json:"success"`
	Counts     map[string]int  `json:"counts"`
	Failures   []EntityFailure `json:"failures,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

func NewDeletionResult(userID string) *DeletionResult {
	return &DeletionResult{
		UserID:    userID,
		Counts:    make(map[string]int),
		StartedAt: time.Now().UTC(),
	}
}

// Add increases the per-entity count.
func (r *DeletionResult) Add(entity string, n int) {
	r.Counts[entity] += n
}

// Fail records a non-fatal per-entity failure.
func (r *DeletionResult) Fail(entity, recordID string, err error) {
	r.Failures = append(r.Failures, EntityFailure{
		Entity:   entity,
		RecordID: recordID,
		Error:    err.Error(),
	})
}

// FailCompensated records a hard-delete failure that was converted into a
// soft delete.
func (r *DeletionResult) FailCompensated(entity, recordID string, err error) {
	r.Failures = append(r.Failures, EntityFailure{
		Entity:      entity,
		RecordID:    recordID,
		Error:       err.Error(),
		Compensated: true,
	})
}
