package httpx

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/repolens/repolens/internal/data"
	"github.com/repolens/repolens/internal/domain/model"
	"github.com/repolens/repolens/internal/mocks"
	"github.com/repolens/repolens/internal/service"
	"github.com/repolens/repolens/internal/testutil"
)

type routerFixture struct {
	tasks   *mocks.MockTaskRepository
	queue   *mocks.MockJobQueue
	reports *mocks.MockReportRepository
	pub     *mocks.MockPublisher
	handler http.Handler
}

// newRouterFixture wires the full router over mock repositories so tests
// exercise routing, decoding, and error mapping together.
func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	f := &routerFixture{
		tasks:   mocks.NewMockTaskRepository(ctrl),
		queue:   mocks.NewMockJobQueue(ctrl),
		reports: mocks.NewMockReportRepository(ctrl),
		pub:     mocks.NewMockPublisher(ctrl),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.handler = NewRouter(RouterServices{
		Tasks: service.NewTaskService(service.TaskServiceOptions{
			TaskRepo: f.tasks,
			Queue:    f.queue,
			Logger:   logger,
		}),
		Reports: service.NewReportService(service.ReportServiceOptions{
			ReportRepo: f.reports,
			Publisher:  f.pub,
			Logger:     logger,
		}),
		Logger: logger,
	})

	return f
}

func (f *routerFixture) do(method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestCreateTask_Created(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	created := testutil.NewTask().WithID("task-123").Build()
	f.tasks.EXPECT().Create(gomock.Any(), gomock.Any()).Return(created, nil).Times(1)
	f.queue.EXPECT().Enqueue(gomock.Any(), "task-123", gomock.Any()).Return(nil).Times(1)

	rec := f.do(http.MethodPost, "/api/tasks", `{"repo_url":"https://github.com/example/repo"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var task model.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	assert.Equal(t, "task-123", task.ID)
	assert.Equal(t, model.TaskStatusPending, task.Status)
}

func TestCreateTask_DuplicateConflict(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	created := testutil.NewTask().WithID("task-123").Build()
	f.tasks.EXPECT().Create(gomock.Any(), gomock.Any()).Return(created, nil).Times(1)
	f.queue.EXPECT().Enqueue(gomock.Any(), "task-123", gomock.Any()).Return(data.ErrDuplicateJob).Times(1)

	rec := f.do(http.MethodPost, "/api/tasks", `{"repo_url":"https://github.com/example/repo"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_enqueued", errorCode(t, rec))
}

func TestCreateTask_InvalidJSON(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	rec := f.do(http.MethodPost, "/api/tasks", `{"repo_url": `)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", errorCode(t, rec))
}

func TestCreateTask_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	rec := f.do(http.MethodPost, "/api/tasks", `{"repo_url":"https://github.com/example/repo","bogus":1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", errorCode(t, rec))
}

func TestListTasks_PassesPagination(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	f.tasks.EXPECT().
		List(gomock.Any(), 2, 4).
		Return([]*model.Task{testutil.NewTask().Build()}, nil).
		Times(1)

	rec := f.do(http.MethodGet, "/api/tasks?limit=2&offset=4", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var tasks []*model.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	assert.Len(t, tasks, 1)
}

func TestGetTask_StatusProjection(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	task := testutil.NewTask().
		WithID("task-123").
		WithStatus(model.TaskStatusInProgress).
		WithProgress(model.ProgressFetched).
		Build()
	f.tasks.EXPECT().GetByID(gomock.Any(), "task-123").Return(task, nil).Times(1)

	rec := f.do(http.MethodGet, "/api/tasks/task-123", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status model.TaskStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "task-123", status.ID)
	assert.Equal(t, model.TaskStatusInProgress, status.Status)
	assert.Equal(t, model.ProgressFetched, status.Progress)

	// The polling projection omits the repository URL and options.
	assert.NotContains(t, rec.Body.String(), "repo_url")
}

func TestGetTask_NotFound(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	f.tasks.EXPECT().GetByID(gomock.Any(), "missing").Return(nil, data.ErrTaskNotFound).Times(1)

	rec := f.do(http.MethodGet, "/api/tasks/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "task_not_found", errorCode(t, rec))
}

func TestCancelTask_ReportsOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		canceled bool
	}{
		{name: "queued task cancels", canceled: true},
		{name: "running task declines", canceled: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newRouterFixture(t)

			f.tasks.EXPECT().
				GetByID(gomock.Any(), "task-123").
				Return(testutil.NewTask().WithID("task-123").Build(), nil).
				Times(1)
			f.queue.EXPECT().Cancel(gomock.Any(), "task-123").Return(tt.canceled, nil).Times(1)
			if tt.canceled {
				f.tasks.EXPECT().MarkFailed(gomock.Any(), "task-123", gomock.Any()).Return(true, nil).Times(1)
			} else {
				f.queue.EXPECT().Status(gomock.Any(), "task-123").Return(model.JobStatusRunning, nil).Times(1)
			}

			rec := f.do(http.MethodPost, "/api/tasks/task-123/cancel", "")
			require.Equal(t, http.StatusOK, rec.Code)

			var body map[string]bool
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.canceled, body["ok"])
		})
	}
}

func TestDeleteTask_NoContent(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	f.queue.EXPECT().Cancel(gomock.Any(), "task-123").Return(false, nil).Times(1)
	f.tasks.EXPECT().Delete(gomock.Any(), "task-123").Return(true, nil).Times(1)

	rec := f.do(http.MethodDelete, "/api/tasks/task-123", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDeleteTask_NotFound(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	f.queue.EXPECT().Cancel(gomock.Any(), "missing").Return(false, nil).Times(1)
	f.tasks.EXPECT().Delete(gomock.Any(), "missing").Return(false, nil).Times(1)

	rec := f.do(http.MethodDelete, "/api/tasks/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetReport_OK(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	report := testutil.NewReport().WithID("task-123").Build()
	f.reports.EXPECT().GetByID(gomock.Any(), "task-123").Return(report, nil).Times(1)

	rec := f.do(http.MethodGet, "/api/reports/task-123", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "task-123", got.ID)
	assert.Equal(t, report.Scores, got.Scores)
}

func TestGetReport_NotFound(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	f.reports.EXPECT().GetByID(gomock.Any(), "missing").Return(nil, data.ErrReportNotFound).Times(1)

	rec := f.do(http.MethodGet, "/api/reports/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "report_not_found", errorCode(t, rec))
}

func TestPublishReport_ReturnsHash(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	report := testutil.NewReport().WithID("task-123").Build()
	f.reports.EXPECT().GetByID(gomock.Any(), "task-123").Return(report, nil).Times(1)
	f.pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return("bafyhash", nil).Times(1)
	f.reports.EXPECT().SetPublished(gomock.Any(), "task-123", "bafyhash").Return(true, nil).Times(1)

	rec := f.do(http.MethodPost, "/api/reports/task-123/publish", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "bafyhash", body["hash"])
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	rec := f.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
