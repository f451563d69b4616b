// Package httpx provides HTTP handlers and utilities for the repolens analysis API.
package httpx

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/repolens/repolens/internal/data"
	"github.com/repolens/repolens/internal/domain/model"
	"github.com/repolens/repolens/internal/service"
)

// TaskHandlers provides HTTP handlers for task-related operations.
type TaskHandlers struct {
	Svc *service.TaskService
}

// CreateTask handles HTTP requests to submit a repository for analysis.
func (h *TaskHandlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req model.CreateTaskRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	task, err := h.Svc.Submit(r.Context(), &req)
	if err != nil {
		if errors.Is(err, data.ErrDuplicateJob) {
			WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: "already_enqueued", Err: err})
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "submit_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusCreated, task)
}

// ListTasks handles HTTP requests to list tasks, newest first.
func (h *TaskHandlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", 50)
	offset := parseIntQuery(r, "offset", 0)

	tasks, err := h.Svc.List(r.Context(), limit, offset)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "list_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, tasks)
}

// GetTask handles HTTP requests to poll a task's status.
func (h *TaskHandlers) GetTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("task id is required")})
		return
	}

	task, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, task.StatusResponse())
}

// CancelTask handles HTTP requests to withdraw a queued task. Tasks already
// running or finished report ok=false and stay untouched.
func (h *TaskHandlers) CancelTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("task id is required")})
		return
	}

	canceled, err := h.Svc.Cancel(r.Context(), id)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": canceled})
}

// DeleteTask handles HTTP requests to delete a task and its report.
func (h *TaskHandlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("task id is required")})
		return
	}

	deleted, err := h.Svc.Delete(r.Context(), id)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	if !deleted {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "task_not_found", Err: errors.New("task not found")})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeTaskError(w http.ResponseWriter, err error) {
	if errors.Is(err, data.ErrTaskNotFound) {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "task_not_found", Err: errors.New("task not found")})
		return
	}
	WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "task_operation_failed", Err: err})
}

// parseIntQuery returns the integer query parameter value, or def when the
// parameter is absent or unparseable.
func parseIntQuery(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
