// Package model defines the core data types and structures used throughout the repolens analysis system.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// TaskStatus represents the current lifecycle state of an analysis task.
type TaskStatus string

const (
	// TaskStatusPending indicates a task is waiting to be picked up by a worker.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates a worker has claimed the task and the pipeline is running.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates the pipeline finished and a report exists.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the pipeline failed or the task was canceled.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the TaskStatus is valid.
func (s TaskStatus) Valid() bool {
	return s == TaskStatusPending || s == TaskStatusInProgress ||
		s == TaskStatusCompleted || s == TaskStatusFailed
}

// Terminal returns true if the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// AnalysisTier selects the model tier for a task.
type AnalysisTier string

const (
	// TierFast maps to the cheaper, faster model.
	TierFast AnalysisTier = "fast"
	// TierDeep maps to the more expensive, more thorough model.
	TierDeep AnalysisTier = "deep"
)

// Progress checkpoints reached by the worker pipeline. The values carry no
// meaning beyond "strictly increasing within one attempt" and are part of the
// API surface polled by clients.
const (
	ProgressClaimed  = 10
	ProgressFetched  = 40
	ProgressAnalyzed = 80
	ProgressDone     = 100
)

// Temperature is a user-supplied sampling temperature. Task options arrive
// from untrusted clients, so it accepts a JSON number, a numeric string, or
// garbage; anything unusable leaves it unset rather than failing the request.
type Temperature struct {
	value float64
	set   bool
}

// TemperatureOf returns a set Temperature holding v.
func TemperatureOf(v float64) Temperature {
	return Temperature{value: v, set: true}
}

// UnmarshalJSON implements json.Unmarshaler. It never returns an error:
// malformed values are coerced to "unset" so a type error in user-supplied
// configuration can never abort a pipeline.
func (t *Temperature) UnmarshalJSON(b []byte) error {
	*t = Temperature{}
	raw := bytes.TrimSpace(b)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		*t = Temperature{value: v, set: true}
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	*t = Temperature{value: v, set: true}
	return nil
}

// MarshalJSON implements json.Marshaler. Unset temperatures serialize as null.
func (t Temperature) MarshalJSON() ([]byte, error) {
	if !t.set {
		return []byte("null"), nil
	}
	return json.Marshal(t.value)
}

// Or returns the held value, or def when unset.
func (t Temperature) Or(def float64) float64 {
	if t.set {
		return t.value
	}
	return def
}

// IsSet reports whether a usable value was supplied.
func (t Temperature) IsSet() bool { return t.set }

// AnalysisOptions is the configuration bag attached to a task at submission.
// All fields are optional; default resolution happens in the worker pipeline.
type AnalysisOptions struct {
	// AnalysisType selects the model tier ("fast" or "deep"). Unknown values
	// fall through to the configured default model.
	AnalysisType string `json:"analysis_type,omitempty"`

	// Temperature is the sampling temperature, coerced to the configured
	// default when missing or non-numeric.
	Temperature Temperature `json:"temperature,omitempty"`

	// Prompt is the prompt reference resolved by the analysis adapter.
	Prompt string `json:"prompt,omitempty"`

	// IncludeMetrics asks the fetch adapter for repository metrics alongside
	// the code digest.
	IncludeMetrics bool `json:"include_metrics,omitempty"`
}

// Tier returns the analysis tier, defaulting to fast when unset and keeping
// unknown values verbatim so model resolution can fall back explicitly.
func (o AnalysisOptions) Tier() AnalysisTier {
	if o.AnalysisType == "" {
		return TierFast
	}
	return AnalysisTier(strings.ToLower(strings.TrimSpace(o.AnalysisType)))
}

// Task represents one user-requested analysis of a single repository, tracked
// from submission to a terminal state.
type Task struct {
	ID           string          `json:"id"                      db:"id"`
	RepoURL      string          `json:"repo_url"                db:"repo_url"`
	Status       TaskStatus      `json:"status"                  db:"status"`
	Progress     int             `json:"progress"                db:"progress"`
	Options      AnalysisOptions `json:"options"                 db:"options"`
	ErrorMessage *string         `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time       `json:"created_at"              db:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"  db:"completed_at"`
	UpdatedAt    time.Time       `json:"updated_at"              db:"updated_at"`
}

// CreateTaskRequest represents a request to submit a repository for analysis.
type CreateTaskRequest struct {
	RepoURL string          `json:"repo_url"`
	Options AnalysisOptions `json:"options,omitempty"`
}

// Validate validates the CreateTaskRequest fields.
func (r *CreateTaskRequest) Validate() error {
	trimmed := strings.TrimSpace(r.RepoURL)
	if trimmed == "" {
		return errors.New("repo_url is required")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("repo_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("repo_url must be an http(s) URL, got scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("repo_url is missing a host")
	}
	return nil
}

// TaskStatusResponse is the status projection polled by clients.
type TaskStatusResponse struct {
	ID           string     `json:"id"`
	Status       TaskStatus `json:"status"`
	Progress     int        `json:"progress"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// StatusResponse projects a task into its polling representation.
func (t *Task) StatusResponse() *TaskStatusResponse {
	return &TaskStatusResponse{
		ID:           t.ID,
		Status:       t.Status,
		Progress:     t.Progress,
		ErrorMessage: t.ErrorMessage,
		CompletedAt:  t.CompletedAt,
	}
}
