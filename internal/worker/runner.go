package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/repolens/repolens/config"
	"github.com/repolens/repolens/internal/core"
	"github.com/repolens/repolens/internal/domain/model"
)

// RunnerOptions configures the analysis worker runner.
type RunnerOptions struct {
	Queue    core.JobQueue
	Pipeline *Pipeline
	Config   config.WorkerConfig
	Logger   *slog.Logger
}

// Runner pulls queued jobs and drives them through the pipeline. Each worker
// goroutine processes one job at a time; reservation leases keep two workers
// off the same job.
type Runner struct {
	queue    core.JobQueue
	pipeline *Pipeline
	logger   *slog.Logger

	lease   time.Duration
	poll    time.Duration
	workers int
}

// NewRunner constructs a new worker Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Queue == nil {
		return nil, errors.New("job queue is required")
	}
	if opts.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := opts.Config
	cfg.Sanitize()

	return &Runner{
		queue:    opts.Queue,
		pipeline: opts.Pipeline,
		logger:   logger.With("component", "worker"),
		lease:    cfg.JobLease,
		poll:     cfg.PollInterval,
		workers:  cfg.Concurrency,
	}, nil
}

// Run starts worker goroutines and processes jobs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting worker runner",
		"workers", r.workers,
		"lease", r.lease,
		"poll_interval", r.poll,
	)

	// Derive a cancellable context that we can signal on first fatal error.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.workerLoop(ctx); err != nil {
				// first error wins, cancels all workers
				select {
				case errCh <- err:
					cancel()
				default:
				}
			}
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return ctx.Err()
	}
}

func (r *Runner) workerLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		job, err := r.queue.ReserveNext(ctx, r.lease)
		switch {
		case err == nil:
			r.processJob(ctx, job)
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !r.sleep(ctx) {
				return nil
			}
		case errors.Is(err, context.Canceled):
			return nil
		default:
			return fmt.Errorf("reserve next: %w", err)
		}
	}
	return nil
}

func (r *Runner) sleep(ctx context.Context) bool {
	timer := time.NewTimer(r.poll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// processJob runs the pipeline for one reserved job. The queue entry is
// finished whatever happens; the task record carries the outcome.
func (r *Runner) processJob(ctx context.Context, job *model.Job) {
	var payload model.JobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		r.logger.ErrorContext(ctx, "undecodable job payload",
			"job_id", job.ID,
			"error", err,
		)
		r.finishJob(ctx, job.ID)
		return
	}
	if payload.TaskID == "" {
		payload.TaskID = job.ID
	}

	if err := r.pipeline.Execute(ctx, payload); err != nil {
		r.logger.ErrorContext(ctx, "pipeline execution error",
			"job_id", job.ID,
			"task_id", payload.TaskID,
			"error", err,
		)
	}
	r.finishJob(ctx, job.ID)
}

func (r *Runner) finishJob(ctx context.Context, jobID string) {
	finished, err := r.queue.Finish(ctx, jobID)
	if err != nil {
		r.logger.ErrorContext(ctx, "finish job error", "job_id", jobID, "error", err)
		return
	}
	if !finished {
		// Lease expired mid-run and the reaper got there first.
		r.logger.WarnContext(ctx, "job no longer running at finish", "job_id", jobID)
	}
}
