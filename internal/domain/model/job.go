package model

import (
	"encoding/json"
	"errors"
	"time"
)

// JobStatus represents the queue-layer state of a deferred execution.
type JobStatus string

const (
	// JobStatusQueued indicates a job is waiting for a worker.
	JobStatusQueued JobStatus = "queued"
	// JobStatusRunning indicates a worker holds a lease on the job.
	JobStatusRunning JobStatus = "running"
	// JobStatusFinished indicates the worker returned (the task record holds the outcome).
	JobStatusFinished JobStatus = "finished"
	// JobStatusCanceled indicates the job was canceled before a worker claimed it.
	JobStatusCanceled JobStatus = "canceled"
	// JobStatusNotFound is reported for job ids with no queue entry.
	JobStatusNotFound JobStatus = "not_found"
)

// Valid returns true if the JobStatus is a storable state.
func (s JobStatus) Valid() bool {
	return s == JobStatusQueued || s == JobStatusRunning ||
		s == JobStatusFinished || s == JobStatusCanceled
}

// ErrNoJobsAvailable is returned when no jobs are available for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Job is the queue-layer unit of deferred execution, corresponding 1:1 with a
// task. The job id equals the task id; the primary key is what guarantees at
// most one in-flight job per task.
type Job struct {
	ID             string          `json:"id"                         db:"id"`
	Payload        json.RawMessage `json:"payload"                    db:"payload"`
	Status         JobStatus       `json:"status"                     db:"status"`
	EnqueuedAt     time.Time       `json:"enqueued_at"                db:"enqueued_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"       db:"started_at"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"      db:"finished_at"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
}

// JobPayload is the wire shape carried through the queue. It must survive
// process-boundary serialization; nothing else is mandated about it.
type JobPayload struct {
	TaskID  string          `json:"task_id"`
	RepoURL string          `json:"repo_url"`
	Options AnalysisOptions `json:"options"`
}
