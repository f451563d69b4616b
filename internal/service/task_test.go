package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/repolens/repolens/internal/data"
	"github.com/repolens/repolens/internal/domain/model"
	"github.com/repolens/repolens/internal/mocks"
	"github.com/repolens/repolens/internal/testutil"
)

const testTaskID = "task-123"

// newTaskService creates mock repositories and a service for testing.
func newTaskService(t *testing.T) (*mocks.MockTaskRepository, *mocks.MockJobQueue, *TaskService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	taskRepo := mocks.NewMockTaskRepository(ctrl)
	queue := mocks.NewMockJobQueue(ctrl)

	svc := NewTaskService(TaskServiceOptions{
		TaskRepo: taskRepo,
		Queue:    queue,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	return taskRepo, queue, svc
}

func TestTaskService_Submit_Success(t *testing.T) {
	t.Parallel()
	taskRepo, queue, svc := newTaskService(t)

	ctx := context.Background()
	req := &model.CreateTaskRequest{
		RepoURL: "https://github.com/example/repo",
		Options: model.AnalysisOptions{AnalysisType: "deep"},
	}
	created := testutil.NewTask().
		WithID(testTaskID).
		WithOptions(req.Options).
		Build()

	taskRepo.EXPECT().
		Create(ctx, req).
		Return(created, nil).
		Times(1)

	queue.EXPECT().
		Enqueue(ctx, testTaskID, gomock.Any()).
		DoAndReturn(func(_ context.Context, taskID string, payload []byte) error {
			var p model.JobPayload
			require.NoError(t, json.Unmarshal(payload, &p))
			assert.Equal(t, taskID, p.TaskID)
			assert.Equal(t, created.RepoURL, p.RepoURL)
			assert.Equal(t, "deep", p.Options.AnalysisType)
			return nil
		}).
		Times(1)

	task, err := svc.Submit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, testTaskID, task.ID)
	assert.Equal(t, model.TaskStatusPending, task.Status)
}

func TestTaskService_Submit_CreateError(t *testing.T) {
	t.Parallel()
	taskRepo, _, svc := newTaskService(t)

	ctx := context.Background()
	taskRepo.EXPECT().
		Create(ctx, gomock.Any()).
		Return(nil, errors.New("db down")).
		Times(1)

	task, err := svc.Submit(ctx, &model.CreateTaskRequest{RepoURL: "https://github.com/example/repo"})
	require.Error(t, err)
	assert.Nil(t, task)
}

func TestTaskService_Submit_DuplicateJob(t *testing.T) {
	t.Parallel()
	taskRepo, queue, svc := newTaskService(t)

	ctx := context.Background()
	created := testutil.NewTask().WithID(testTaskID).Build()

	taskRepo.EXPECT().
		Create(ctx, gomock.Any()).
		Return(created, nil).
		Times(1)
	queue.EXPECT().
		Enqueue(ctx, testTaskID, gomock.Any()).
		Return(data.ErrDuplicateJob).
		Times(1)

	task, err := svc.Submit(ctx, &model.CreateTaskRequest{RepoURL: created.RepoURL})
	require.Error(t, err)
	assert.ErrorIs(t, err, data.ErrDuplicateJob)
	assert.Nil(t, task)
}

func TestTaskService_Get(t *testing.T) {
	t.Parallel()
	taskRepo, _, svc := newTaskService(t)

	ctx := context.Background()
	want := testutil.NewTask().WithID(testTaskID).Build()
	taskRepo.EXPECT().GetByID(ctx, testTaskID).Return(want, nil).Times(1)

	task, err := svc.Get(ctx, testTaskID)
	require.NoError(t, err)
	assert.Equal(t, want, task)
}

func TestTaskService_List_DefaultsAndCaps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		limit      int
		offset     int
		wantLimit  int
		wantOffset int
	}{
		{name: "zero limit defaults", limit: 0, offset: 0, wantLimit: 50, wantOffset: 0},
		{name: "negative offset clamped", limit: 10, offset: -3, wantLimit: 10, wantOffset: 0},
		{name: "oversized limit capped", limit: 5000, offset: 20, wantLimit: 1000, wantOffset: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			taskRepo, _, svc := newTaskService(t)

			ctx := context.Background()
			taskRepo.EXPECT().
				List(ctx, tt.wantLimit, tt.wantOffset).
				Return([]*model.Task{}, nil).
				Times(1)

			_, err := svc.List(ctx, tt.limit, tt.offset)
			require.NoError(t, err)
		})
	}
}

func TestTaskService_Cancel_Success(t *testing.T) {
	t.Parallel()
	taskRepo, queue, svc := newTaskService(t)

	ctx := context.Background()
	taskRepo.EXPECT().
		GetByID(ctx, testTaskID).
		Return(testutil.NewTask().WithID(testTaskID).Build(), nil).
		Times(1)
	queue.EXPECT().Cancel(ctx, testTaskID).Return(true, nil).Times(1)
	taskRepo.EXPECT().
		MarkFailed(ctx, testTaskID, "Task cancelled by user").
		Return(true, nil).
		Times(1)

	canceled, err := svc.Cancel(ctx, testTaskID)
	require.NoError(t, err)
	assert.True(t, canceled)
}

func TestTaskService_Cancel_DeclinedWhenRunning(t *testing.T) {
	t.Parallel()
	taskRepo, queue, svc := newTaskService(t)

	ctx := context.Background()
	taskRepo.EXPECT().
		GetByID(ctx, testTaskID).
		Return(testutil.NewTask().WithID(testTaskID).WithStatus(model.TaskStatusInProgress).Build(), nil).
		Times(1)
	queue.EXPECT().Cancel(ctx, testTaskID).Return(false, nil).Times(1)
	queue.EXPECT().Status(ctx, testTaskID).Return(model.JobStatusRunning, nil).Times(1)

	canceled, err := svc.Cancel(ctx, testTaskID)
	require.NoError(t, err)
	assert.False(t, canceled)
}

func TestTaskService_Cancel_TaskNotFound(t *testing.T) {
	t.Parallel()
	taskRepo, _, svc := newTaskService(t)

	ctx := context.Background()
	taskRepo.EXPECT().
		GetByID(ctx, "missing").
		Return(nil, data.ErrTaskNotFound).
		Times(1)

	canceled, err := svc.Cancel(ctx, "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, data.ErrTaskNotFound)
	assert.False(t, canceled)
}

func TestTaskService_Delete_Success(t *testing.T) {
	t.Parallel()
	taskRepo, queue, svc := newTaskService(t)

	ctx := context.Background()
	queue.EXPECT().Cancel(ctx, testTaskID).Return(false, nil).Times(1)
	taskRepo.EXPECT().Delete(ctx, testTaskID).Return(true, nil).Times(1)

	deleted, err := svc.Delete(ctx, testTaskID)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestTaskService_Delete_CancelFailureIsBestEffort(t *testing.T) {
	t.Parallel()
	taskRepo, queue, svc := newTaskService(t)

	ctx := context.Background()
	queue.EXPECT().Cancel(ctx, testTaskID).Return(false, errors.New("queue down")).Times(1)
	taskRepo.EXPECT().Delete(ctx, testTaskID).Return(true, nil).Times(1)

	deleted, err := svc.Delete(ctx, testTaskID)
	require.NoError(t, err)
	assert.True(t, deleted)
}
