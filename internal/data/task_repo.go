package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/repolens/repolens/internal/domain/model"
)

// RepoConfig holds configuration options shared by the repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

func (c RepoConfig) timeProvider() TimeProvider {
	if c.TimeProvider != nil {
		return c.TimeProvider
	}
	return &RealTimeProvider{}
}

// TaskRepo provides database operations for task records.
type TaskRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewTaskRepo creates a new TaskRepo instance with the given database connection and configuration.
func NewTaskRepo(db *sql.DB, cfg RepoConfig) *TaskRepo {
	return &TaskRepo{
		DB:           db,
		timeProvider: cfg.timeProvider(),
		logger:       cfg.Logger,
	}
}

const taskColumns = `
  id,
  repo_url,
  status,
  progress,
  options,
  error_message,
  created_at,
  completed_at,
  updated_at
`

// Create inserts a new task in pending state with progress 0.
func (r *TaskRepo) Create(ctx context.Context, req *model.CreateTaskRequest) (*model.Task, error) {
	if req == nil {
		return nil, errors.New("create task request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	options, err := json.Marshal(req.Options)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}

	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO tasks (id, repo_url, status, progress, options, created_at, updated_at)
		VALUES ($1, $2, 'pending', 0, $3, $4, $4)
		RETURNING `+taskColumns,
		uuid.NewString(), req.RepoURL, options, now)

	task, err := scanTask(row)
	if err != nil {
		return nil, classifyDBError("create task", err)
	}
	return task, nil
}

// GetByID returns a task by id, or ErrTaskNotFound.
func (r *TaskRepo) GetByID(ctx context.Context, id string) (*model.Task, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, classifyDBError("get task", err)
	}
	return task, nil
}

// List returns tasks ordered newest-first.
func (r *TaskRepo) List(ctx context.Context, limit, offset int) ([]*model.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, classifyDBError("list tasks", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && r.logger != nil {
			r.logger.ErrorContext(ctx, "close rows", "error", cerr)
		}
	}()

	tasks := make([]*model.Task, 0, limit)
	for rows.Next() {
		task, scanErr := scanTask(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan task: %w", scanErr)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// Claim transitions a task into in_progress with the initial progress
// checkpoint. The transition is one conditional UPDATE so status and progress
// change atomically; a task already in_progress (crashed worker retry) is
// claimed again and its progress reset to the first checkpoint.
func (r *TaskRepo) Claim(ctx context.Context, id string) (*model.Task, error) {
	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		UPDATE tasks
		SET status = 'in_progress',
		    progress = $2,
		    error_message = NULL,
		    updated_at = $3
		WHERE id = $1 AND status IN ('pending', 'in_progress')
		RETURNING `+taskColumns,
		id, model.ProgressClaimed, now)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Deleted after enqueue, or already terminal.
			return nil, ErrTaskNotFound
		}
		return nil, classifyDBError("claim task", err)
	}
	return task, nil
}

// SetProgress advances progress for an in_progress task. The progress guard
// keeps the field monotonically non-decreasing within an execution attempt.
func (r *TaskRepo) SetProgress(ctx context.Context, id string, progress int) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE tasks
		SET progress = $2, updated_at = $3
		WHERE id = $1 AND status = 'in_progress' AND progress <= $2`,
		id, progress, r.timeProvider.Now().UTC())
	if err != nil {
		return false, classifyDBError("set task progress", err)
	}
	return rowsAffected(res)
}

// MarkCompleted transitions in_progress -> completed, progress 100, and sets
// completed_at exactly once.
func (r *TaskRepo) MarkCompleted(ctx context.Context, id string) (bool, error) {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE tasks
		SET status = 'completed',
		    progress = $2,
		    error_message = NULL,
		    completed_at = $3,
		    updated_at = $3
		WHERE id = $1 AND status = 'in_progress'`,
		id, model.ProgressDone, now)
	if err != nil {
		return false, classifyDBError("complete task", err)
	}
	return rowsAffected(res)
}

// MarkFailed transitions pending or in_progress -> failed with the error
// message. Terminal tasks are untouched (returns false).
func (r *TaskRepo) MarkFailed(ctx context.Context, id, errMsg string) (bool, error) {
	if errMsg == "" {
		return false, errors.New("error message required")
	}
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE tasks
		SET status = 'failed',
		    error_message = $2,
		    completed_at = $3,
		    updated_at = $3
		WHERE id = $1 AND status IN ('pending', 'in_progress')`,
		id, errMsg, now)
	if err != nil {
		return false, classifyDBError("fail task", err)
	}
	return rowsAffected(res)
}

// Delete removes the task. The report and any queue entry cascade.
func (r *TaskRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return false, classifyDBError("delete task", err)
	}
	return rowsAffected(res)
}

func rowsAffected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	var (
		task    model.Task
		options []byte
	)
	if err := row.Scan(
		&task.ID,
		&task.RepoURL,
		&task.Status,
		&task.Progress,
		&options,
		&task.ErrorMessage,
		&task.CreatedAt,
		&task.CompletedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &task.Options); err != nil {
			return nil, fmt.Errorf("decode task options: %w", err)
		}
	}
	return &task, nil
}
