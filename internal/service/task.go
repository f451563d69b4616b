package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/repolens/repolens/internal/core"
	"github.com/repolens/repolens/internal/domain/model"
)

// TaskServiceOptions groups dependencies for TaskService.
type TaskServiceOptions struct {
	TaskRepo core.TaskRepository
	Queue    core.JobQueue
	Logger   *slog.Logger
}

// TaskService orchestrates the task lifecycle: submission with enqueue,
// cancellation, and deletion. Workers own the pending -> in_progress ->
// terminal transitions; this service never moves a task forward itself.
type TaskService struct {
	tasks  core.TaskRepository
	queue  core.JobQueue
	logger *slog.Logger
}

// NewTaskService constructs a new TaskService.
func NewTaskService(opts TaskServiceOptions) *TaskService {
	if opts.TaskRepo == nil {
		panic("TaskRepository is required")
	}
	if opts.Queue == nil {
		panic("JobQueue is required")
	}
	return &TaskService{
		tasks:  opts.TaskRepo,
		queue:  opts.Queue,
		logger: opts.Logger,
	}
}

// Submit creates a task and hands it to the queue. When the enqueue fails the
// task stays pending with no job, which is visible and retryable, rather than
// being silently dropped.
func (s *TaskService) Submit(ctx context.Context, req *model.CreateTaskRequest) (*model.Task, error) {
	task, err := s.tasks.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	payload, err := json.Marshal(model.JobPayload{
		TaskID:  task.ID,
		RepoURL: task.RepoURL,
		Options: task.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}

	if err := s.queue.Enqueue(ctx, task.ID, payload); err != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "enqueue after create failed",
				"task_id", task.ID,
				"error", err,
			)
		}
		return nil, fmt.Errorf("enqueue task %s: %w", task.ID, err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "task submitted",
			"task_id", task.ID,
			"repo_url", task.RepoURL,
			"analysis_type", task.Options.AnalysisType,
		)
	}
	return task, nil
}

// Get retrieves a task by id.
func (s *TaskService) Get(ctx context.Context, id string) (*model.Task, error) {
	return s.tasks.GetByID(ctx, id)
}

// List returns a page of tasks, newest first.
func (s *TaskService) List(ctx context.Context, limit, offset int) ([]*model.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	return s.tasks.List(ctx, limit, offset)
}

// Cancel withdraws a task from the queue before a worker picks it up. It is
// strictly non-preemptive: once a worker holds the job, or the task already
// finished, Cancel reports false and changes nothing.
func (s *TaskService) Cancel(ctx context.Context, id string) (bool, error) {
	if _, err := s.tasks.GetByID(ctx, id); err != nil {
		return false, err
	}

	canceled, err := s.queue.Cancel(ctx, id)
	if err != nil {
		return false, fmt.Errorf("cancel job: %w", err)
	}
	if !canceled {
		if s.logger != nil {
			status, statusErr := s.queue.Status(ctx, id)
			s.logger.InfoContext(ctx, "cancel declined",
				"task_id", id,
				"job_status", status,
				"status_error", statusErr,
			)
		}
		return false, nil
	}

	if _, err := s.tasks.MarkFailed(ctx, id, "Task cancelled by user"); err != nil {
		return false, fmt.Errorf("mark canceled task failed: %w", err)
	}
	return true, nil
}

// Delete removes a task together with its report and queue entry. The queue
// cancel beforehand is best effort; the row cascade takes the entry out
// either way.
func (s *TaskService) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := s.queue.Cancel(ctx, id); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "cancel before delete failed",
			"task_id", id,
			"error", err,
		)
	}

	deleted, err := s.tasks.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	return deleted, nil
}
