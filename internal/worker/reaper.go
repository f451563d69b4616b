package worker

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/repolens/repolens/config"
	"github.com/repolens/repolens/internal/core"
)

// leaseExpiredMessage lands on tasks whose worker died mid-run.
const leaseExpiredMessage = "analysis job lease expired"

// ReaperOptions groups dependencies for the Reaper.
type ReaperOptions struct {
	Reaper core.QueueReaper
	Tasks  core.TaskRepository
	Config config.ReaperConfig
	Logger *slog.Logger
}

// Reaper cleans up after crashed workers and prunes old queue entries. A job
// whose lease expired without a Finish means its worker died; the reaper
// finishes the job and fails the task so clients stop seeing it in_progress
// forever.
type Reaper struct {
	reaper core.QueueReaper
	tasks  core.TaskRepository
	cfg    config.ReaperConfig
	logger *slog.Logger
}

// NewReaper constructs a new Reaper.
func NewReaper(opts ReaperOptions) (*Reaper, error) {
	if opts.Reaper == nil {
		return nil, errors.New("queue reaper repository is required")
	}
	if opts.Tasks == nil {
		return nil, errors.New("task repository is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := opts.Config
	cfg.Sanitize()

	return &Reaper{
		reaper: opts.Reaper,
		tasks:  opts.Tasks,
		cfg:    cfg,
		logger: logger.With("component", "reaper"),
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (r *Reaper) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper",
		"interval", r.cfg.Interval,
		"finished_max_age", r.cfg.FinishedMaxAge,
		"batch_size", r.cfg.BatchSize,
	)

	// Jitter startup to prevent thundering herd when instances start together.
	r.waitWithJitter(ctx)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	if err := r.runCleanup(ctx); err != nil {
		r.logCleanupError(ctx, err)
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "reaper stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if err := r.runCleanup(ctx); err != nil {
				r.logCleanupError(ctx, err)
			}
		}
	}
}

func (r *Reaper) waitWithJitter(ctx context.Context) {
	maxJitter := int64(r.cfg.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)))

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

func (r *Reaper) runCleanup(ctx context.Context) error {
	var errs []error
	if err := r.reapExpiredLeases(ctx); err != nil {
		errs = append(errs, fmt.Errorf("reap expired leases: %w", err))
	}
	if err := r.deleteOldJobs(ctx); err != nil {
		errs = append(errs, fmt.Errorf("delete old jobs: %w", err))
	}
	return errors.Join(errs...)
}

// reapExpiredLeases finishes expired running jobs and fails their tasks.
// Loops until no more rows are affected to handle large backlogs in batches.
func (r *Reaper) reapExpiredLeases(ctx context.Context) error {
	var total int
	for {
		taskIDs, err := r.reaper.ReapExpiredLeases(ctx, r.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(taskIDs) == 0 {
			break
		}
		total += len(taskIDs)

		for _, id := range taskIDs {
			failed, failErr := r.tasks.MarkFailed(ctx, id, leaseExpiredMessage)
			if failErr != nil {
				r.logger.ErrorContext(ctx, "fail task for expired lease",
					"task_id", id,
					"error", failErr,
				)
				continue
			}
			if !failed {
				// The worker finished the task but died before Finish; the
				// outcome on the task record stands.
				r.logger.InfoContext(ctx, "expired lease for already-terminal task", "task_id", id)
			}
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if total > 0 {
		r.logger.InfoContext(ctx, "reaped expired leases", "count", total)
	}
	return nil
}

// deleteOldJobs prunes finished and canceled queue entries past retention.
func (r *Reaper) deleteOldJobs(ctx context.Context) error {
	var total int64
	for {
		count, err := r.reaper.DeleteOldJobs(ctx, r.cfg.FinishedMaxAge, r.cfg.BatchSize)
		if err != nil {
			return err
		}
		total += count
		if count == 0 {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if total > 0 {
		r.logger.InfoContext(ctx, "deleted old jobs",
			"count", total,
			"max_age", r.cfg.FinishedMaxAge,
		)
	}
	return nil
}

func (r *Reaper) logCleanupError(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		r.logger.DebugContext(ctx, "cleanup cancelled by context", "error", err)
		return
	}
	r.logger.ErrorContext(ctx, "cleanup failed", "error", err)
}
