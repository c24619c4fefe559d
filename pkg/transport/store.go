package transport

import (
	"context"
	"time"
)

// JobStatus is the lifecycle state of an async job.
type JobStatus string

const (
	JobStatusInQueue    JobStatus = "IN_QUEUE"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// JobRecord is the stored state of an async job: its lifecycle status and
// the batches produced so far. Batches hold already-filtered output, in
// arrival order.
type JobRecord struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	Batches     []any      `json:"output"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobStore persists async job state. Implementations must be safe for
// concurrent use; the async path appends batches from the job goroutine
// while status requests read concurrently.
type JobStore interface {
	// CreateJob records a new job. Returns storage.ErrConflict if a job
	// with the same ID already exists.
	CreateJob(ctx context.Context, rec *JobRecord) error

	// AppendBatch adds one output batch to a job.
	AppendBatch(ctx context.Context, id string, batch any) error

	// SetStatus transitions a job to a terminal or running state. errMsg
	// is stored only for JobStatusFailed.
	SetStatus(ctx context.Context, id string, status JobStatus, errMsg string) error

	// GetJob retrieves a job by ID. Returns storage.ErrNotFound if the
	// job does not exist or has been deleted.
	GetJob(ctx context.Context, id string) (*JobRecord, error)

	// DeleteJob removes a job and its stored output.
	DeleteJob(ctx context.Context, id string) error

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
