// Package core defines the ports between the analysis pipeline and its
// collaborators. Services and the worker depend on these interfaces; the
// data and adapter packages provide the implementations.
package core

import (
	"context"
	"time"

	"github.com/repolens/repolens/internal/domain/model"
)

// TaskRepository provides persistence for task records. Every mutation is a
// single atomic conditional update: status, progress and timestamps change
// together, so concurrent readers never observe a half-applied transition.
type TaskRepository interface {
	Create(ctx context.Context, req *model.CreateTaskRequest) (*model.Task, error)
	GetByID(ctx context.Context, id string) (*model.Task, error)
	List(ctx context.Context, limit, offset int) ([]*model.Task, error)

	// Claim transitions pending -> in_progress and sets the initial progress
	// checkpoint. A worker retrying after a crash finds the task already
	// in_progress; Claim accepts that and restarts the attempt.
	Claim(ctx context.Context, id string) (*model.Task, error)

	// SetProgress advances progress for an in_progress task. Progress is
	// monotonically non-decreasing within an attempt; regressions are ignored.
	SetProgress(ctx context.Context, id string, progress int) (bool, error)

	// MarkCompleted transitions in_progress -> completed with progress 100.
	MarkCompleted(ctx context.Context, id string) (bool, error)

	// MarkFailed transitions pending or in_progress -> failed with the given
	// error message. Terminal tasks are left untouched.
	MarkFailed(ctx context.Context, id, errMsg string) (bool, error)

	// Delete removes the task and, via cascade, its report and queue entry.
	Delete(ctx context.Context, id string) (bool, error)
}

// ReportRepository provides persistence for report records.
type ReportRepository interface {
	// Upsert writes the report for its owning task. A worker retry that
	// re-runs the persist step overwrites the prior attempt's row.
	Upsert(ctx context.Context, report *model.Report) error
	GetByID(ctx context.Context, id string) (*model.Report, error)

	// SetPublished records the publication hash exactly once. Returns false
	// when the report was already published.
	SetPublished(ctx context.Context, id, hash string) (bool, error)
}

// JobQueue accepts tasks for deferred execution. The job identity equals the
// task id, which is what guarantees at most one in-flight job per task.
type JobQueue interface {
	// Enqueue inserts a job for the task. A second enqueue for the same task
	// returns ErrDuplicateJob instead of creating parallel execution.
	Enqueue(ctx context.Context, taskID string, payload []byte) error

	// Cancel is best-effort and non-preemptive: it succeeds only while the
	// job is still queued and is a guaranteed no-op on running or finished
	// jobs (returns false).
	Cancel(ctx context.Context, taskID string) (bool, error)

	// Status is read-only introspection for diagnostics; the task record is
	// authoritative for task state.
	Status(ctx context.Context, jobID string) (model.JobStatus, error)

	// ReserveNext atomically claims the oldest queued job with a lease.
	// Returns model.ErrNoJobsAvailable when the queue is empty.
	ReserveNext(ctx context.Context, lease time.Duration) (*model.Job, error)

	// Finish marks a reserved job as done, whatever the pipeline outcome.
	Finish(ctx context.Context, jobID string) (bool, error)
}

// QueueReaper cleans up after crashed workers and old queue entries.
type QueueReaper interface {
	// ReapExpiredLeases marks running jobs whose lease expired as finished
	// and returns their task ids so the tasks can be failed.
	ReapExpiredLeases(ctx context.Context, batchSize int) ([]string, error)

	// DeleteOldJobs removes finished/canceled jobs older than maxAge.
	DeleteOldJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

// FetchResult is the outcome of a repository fetch.
type FetchResult struct {
	Content string
	Metrics model.RepoMetrics
}

// RepoFetcher retrieves a textual code digest for a repository URL. The
// pipeline treats empty or error-prefixed content as a fetch failure.
type RepoFetcher interface {
	Fetch(ctx context.Context, repoURL string, includeMetrics bool) (*FetchResult, error)
}

// AnalyzeParams carries one analysis invocation.
type AnalyzeParams struct {
	Digest      string
	PromptRef   string
	Model       string
	Temperature float64
}

// Analyzer produces free-form analysis text for a code digest. The pipeline
// assumes nothing about its structure beyond what the score extractor tolerates.
type Analyzer interface {
	Analyze(ctx context.Context, p AnalyzeParams) (string, error)
}

// Publisher pushes report content to content-addressed storage and returns
// the content hash.
type Publisher interface {
	Publish(ctx context.Context, content []byte) (string, error)
}

// CacheRepository is a byte cache with TTL, backed by Redis.
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
}
