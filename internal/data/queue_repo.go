package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/repolens/repolens/internal/domain/model"
)

// QueueRepo implements the job queue on the jobs table. The job primary key
// is the task id, so the table itself enforces at most one queue entry per
// task.
type QueueRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewQueueRepo creates a new QueueRepo instance with the given database connection and configuration.
func NewQueueRepo(db *sql.DB, cfg RepoConfig) *QueueRepo {
	return &QueueRepo{
		DB:           db,
		timeProvider: cfg.timeProvider(),
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  payload,
  status,
  enqueued_at,
  started_at,
  finished_at,
  lease_expires_at
`

// SQL used by ReserveNext to atomically reserve the oldest queued job.
const reserveNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM jobs
    WHERE status = 'queued'
    ORDER BY enqueued_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE jobs j
  SET
    status = 'running',
    started_at = COALESCE(j.started_at, $1),
    lease_expires_at = $2
  FROM cte
  WHERE j.id = cte.id
  RETURNING ` + jobColumns

// Enqueue inserts a queue entry for the task. A conflicting insert means a
// job for the task already exists in some state and is reported as
// ErrDuplicateJob rather than creating a second execution.
func (r *QueueRepo) Enqueue(ctx context.Context, taskID string, payload []byte) error {
	if taskID == "" {
		return errors.New("task id is required")
	}
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}

	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO jobs (id, payload, status, enqueued_at)
		VALUES ($1, $2, 'queued', $3)
		ON CONFLICT (id) DO NOTHING`,
		taskID, payload, r.timeProvider.Now().UTC())
	if err != nil {
		return classifyDBError("enqueue job", err)
	}
	inserted, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if !inserted {
		return fmt.Errorf("enqueue job: %w", ErrDuplicateJob)
	}
	return nil
}

// Cancel flips a still-queued job to canceled. Running and finished jobs are
// left alone; cancellation is never preemptive.
func (r *QueueRepo) Cancel(ctx context.Context, taskID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'canceled',
		    finished_at = $2
		WHERE id = $1 AND status = 'queued'`,
		taskID, r.timeProvider.Now().UTC())
	if err != nil {
		return false, classifyDBError("cancel job", err)
	}
	return rowsAffected(res)
}

// Status reports the queue-side state of a job. A missing row is a state,
// not an error.
func (r *QueueRepo) Status(ctx context.Context, jobID string) (model.JobStatus, error) {
	var status model.JobStatus
	err := r.DB.QueryRowContext(ctx,
		`SELECT status FROM jobs WHERE id = $1`, jobID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return model.JobStatusNotFound, nil
	}
	if err != nil {
		return "", classifyDBError("job status", err)
	}
	return status, nil
}

// ReserveNext atomically claims the oldest queued job and stamps its lease.
// SKIP LOCKED keeps concurrent workers from contending on the same row.
func (r *QueueRepo) ReserveNext(ctx context.Context, lease time.Duration) (*model.Job, error) {
	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, reserveNextUpdateSQL, now, now.Add(lease))

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNoJobsAvailable
		}
		return nil, classifyDBError("reserve job", err)
	}
	return job, nil
}

// Finish marks a running job as finished, whatever the pipeline outcome was.
// The task record carries the outcome; the queue entry only tracks occupancy.
func (r *QueueRepo) Finish(ctx context.Context, jobID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'finished',
		    finished_at = $2,
		    lease_expires_at = NULL
		WHERE id = $1 AND status = 'running'`,
		jobID, r.timeProvider.Now().UTC())
	if err != nil {
		return false, classifyDBError("finish job", err)
	}
	return rowsAffected(res)
}

// Advisory lock namespace for reaper operations. Two-arg
// pg_try_advisory_xact_lock(major, minor) keeps concurrent reaper instances
// from stepping on each other.
const (
	advisoryLockReaperMajor  = 2000
	advisoryLockReaperLeases = 1 // minor key for ReapExpiredLeases
	advisoryLockReaperDelete = 2 // minor key for DeleteOldJobs
)

// ReapExpiredLeases finishes running jobs whose lease expired and returns
// their task ids so the owning tasks can be failed. Processes up to batchSize
// jobs per call.
func (r *QueueRepo) ReapExpiredLeases(ctx context.Context, batchSize int) ([]string, error) {
	if batchSize <= 0 {
		return nil, errors.New("batch size must be greater than zero")
	}

	var reaped []string
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		locked, lockErr := tryAdvisoryLock(ctx, tx, advisoryLockReaperLeases)
		if lockErr != nil {
			return lockErr
		}
		if !locked {
			return nil
		}

		now := r.timeProvider.Now().UTC()
		rows, qerr := tx.QueryContext(ctx, `
			UPDATE jobs
			SET status = 'finished',
			    finished_at = $1,
			    lease_expires_at = NULL
			WHERE id IN (
				SELECT id FROM jobs
				WHERE status = 'running'
				  AND lease_expires_at IS NOT NULL
				  AND lease_expires_at < $1
				ORDER BY lease_expires_at
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id`, now, batchSize)
		if qerr != nil {
			return fmt.Errorf("reap expired leases: %w", qerr)
		}
		defer func() {
			if cerr := rows.Close(); cerr != nil && r.logger != nil {
				r.logger.ErrorContext(ctx, "close rows", "error", cerr)
			}
		}()

		for rows.Next() {
			var id string
			if scanErr := rows.Scan(&id); scanErr != nil {
				return fmt.Errorf("scan reaped job id: %w", scanErr)
			}
			reaped = append(reaped, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return reaped, nil
}

// DeleteOldJobs removes finished and canceled queue entries older than
// maxAge. Processes up to batchSize jobs per call to prevent long locks.
func (r *QueueRepo) DeleteOldJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	if maxAge <= 0 {
		return 0, errors.New("max age must be greater than zero")
	}

	var deleted int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		locked, lockErr := tryAdvisoryLock(ctx, tx, advisoryLockReaperDelete)
		if lockErr != nil {
			return lockErr
		}
		if !locked {
			return nil
		}

		cutoff := r.timeProvider.Now().Add(-maxAge).UTC()
		res, execErr := tx.ExecContext(ctx, `
			DELETE FROM jobs
			WHERE id IN (
				SELECT id FROM jobs
				WHERE status IN ('finished', 'canceled')
				  AND COALESCE(finished_at, enqueued_at) < $1
				ORDER BY COALESCE(finished_at, enqueued_at)
				LIMIT $2
			)`, cutoff, batchSize)
		if execErr != nil {
			return fmt.Errorf("delete old jobs: %w", execErr)
		}
		n, raErr := res.RowsAffected()
		if raErr != nil {
			return fmt.Errorf("rows affected: %w", raErr)
		}
		deleted = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (r *QueueRepo) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && r.logger != nil {
			r.logger.Error("rollback tx", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func tryAdvisoryLock(ctx context.Context, tx *sql.Tx, minor int) (bool, error) {
	var locked bool
	if err := tx.QueryRowContext(ctx,
		"SELECT pg_try_advisory_xact_lock($1, $2)",
		advisoryLockReaperMajor, minor).Scan(&locked); err != nil {
		return false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	return locked, nil
}

func scanJob(row rowScanner) (*model.Job, error) {
	var (
		job            model.Job
		payload        []byte
		startedAt      sql.NullTime
		finishedAt     sql.NullTime
		leaseExpiresAt sql.NullTime
	)
	if err := row.Scan(
		&job.ID,
		&payload,
		&job.Status,
		&job.EnqueuedAt,
		&startedAt,
		&finishedAt,
		&leaseExpiresAt,
	); err != nil {
		return nil, err
	}
	job.Payload = append(job.Payload[:0], payload...)
	job.StartedAt = nullableTime(startedAt)
	job.FinishedAt = nullableTime(finishedAt)
	job.LeaseExpiresAt = nullableTime(leaseExpiresAt)
	return &job, nil
}

func nullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
