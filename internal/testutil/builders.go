// Package testutil provides testing utilities and helpers for the repolens analysis system.
package testutil

import (
	"time"

	"github.com/repolens/repolens/internal/domain/model"
)

// TaskBuilder provides a fluent interface for building Task objects for testing.
type TaskBuilder struct {
	task *model.Task
}

// NewTask creates a new TaskBuilder with sensible defaults.
func NewTask() *TaskBuilder {
	now := time.Now().UTC()
	return &TaskBuilder{
		task: &model.Task{
			ID:        "task-123",
			RepoURL:   "https://github.com/example/repo",
			Status:    model.TaskStatusPending,
			Progress:  0,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// WithID sets the task id.
func (b *TaskBuilder) WithID(id string) *TaskBuilder {
	b.task.ID = id
	return b
}

// WithRepoURL sets the repository URL.
func (b *TaskBuilder) WithRepoURL(repoURL string) *TaskBuilder {
	b.task.RepoURL = repoURL
	return b
}

// WithStatus sets the task status.
func (b *TaskBuilder) WithStatus(status model.TaskStatus) *TaskBuilder {
	b.task.Status = status
	return b
}

// WithProgress sets the task progress.
func (b *TaskBuilder) WithProgress(progress int) *TaskBuilder {
	b.task.Progress = progress
	return b
}

// WithOptions sets the analysis options.
func (b *TaskBuilder) WithOptions(options model.AnalysisOptions) *TaskBuilder {
	b.task.Options = options
	return b
}

// WithErrorMessage sets the error message.
func (b *TaskBuilder) WithErrorMessage(msg string) *TaskBuilder {
	b.task.ErrorMessage = &msg
	return b
}

// WithCompletedAt sets the completion timestamp.
func (b *TaskBuilder) WithCompletedAt(t time.Time) *TaskBuilder {
	b.task.CompletedAt = &t
	return b
}

// Build returns the constructed Task.
func (b *TaskBuilder) Build() *model.Task {
	return b.task
}

// ReportBuilder provides a fluent interface for building Report objects for testing.
type ReportBuilder struct {
	report *model.Report
}

// NewReport creates a new ReportBuilder with sensible defaults.
func NewReport() *ReportBuilder {
	now := time.Now().UTC()
	return &ReportBuilder{
		report: &model.Report{
			ID:      "task-123",
			RepoURL: "https://github.com/example/repo",
			Content: model.ReportContent{Markdown: "## Analysis\n\n| Category | Score |\n|---|---|\n| Overall | 8/10 |\n"},
			Scores: map[string]float64{
				model.ScoreOverall: 8,
			},
			AnalysisTier: model.TierFast,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}
}

// WithID sets the report id.
func (b *ReportBuilder) WithID(id string) *ReportBuilder {
	b.report.ID = id
	return b
}

// WithRepoURL sets the repository URL.
func (b *ReportBuilder) WithRepoURL(repoURL string) *ReportBuilder {
	b.report.RepoURL = repoURL
	return b
}

// WithMarkdown sets the report markdown content.
func (b *ReportBuilder) WithMarkdown(markdown string) *ReportBuilder {
	b.report.Content.Markdown = markdown
	return b
}

// WithDegraded marks the report content as degraded.
func (b *ReportBuilder) WithDegraded() *ReportBuilder {
	b.report.Content.Degraded = true
	return b
}

// WithScores sets the score mapping.
func (b *ReportBuilder) WithScores(scores map[string]float64) *ReportBuilder {
	b.report.Scores = scores
	return b
}

// WithTier sets the analysis tier.
func (b *ReportBuilder) WithTier(tier model.AnalysisTier) *ReportBuilder {
	b.report.AnalysisTier = tier
	return b
}

// WithPublishedHash sets the publication hash and timestamp.
func (b *ReportBuilder) WithPublishedHash(hash string) *ReportBuilder {
	now := time.Now().UTC()
	b.report.PublishedHash = &hash
	b.report.PublishedAt = &now
	return b
}

// Build returns the constructed Report.
func (b *ReportBuilder) Build() *model.Report {
	return b.report
}

// JobBuilder provides a fluent interface for building queue Job objects for testing.
type JobBuilder struct {
	job *model.Job
}

// NewJob creates a new JobBuilder with sensible defaults.
func NewJob() *JobBuilder {
	return &JobBuilder{
		job: &model.Job{
			ID:         "task-123",
			Payload:    []byte(`{"task_id":"task-123","repo_url":"https://github.com/example/repo","options":{}}`),
			Status:     model.JobStatusQueued,
			EnqueuedAt: time.Now().UTC(),
		},
	}
}

// WithID sets the job id.
func (b *JobBuilder) WithID(id string) *JobBuilder {
	b.job.ID = id
	return b
}

// WithPayload sets the job payload.
func (b *JobBuilder) WithPayload(payload []byte) *JobBuilder {
	b.job.Payload = payload
	return b
}

// WithStatus sets the job status.
func (b *JobBuilder) WithStatus(status model.JobStatus) *JobBuilder {
	b.job.Status = status
	return b
}

// WithLeaseExpiresAt sets the lease expiry.
func (b *JobBuilder) WithLeaseExpiresAt(t time.Time) *JobBuilder {
	b.job.LeaseExpiresAt = &t
	return b
}

// Build returns the constructed Job.
func (b *JobBuilder) Build() *model.Job {
	return b.job
}
