package model

import "time"

// ScoreOverall is the key always present in a report's score mapping.
const ScoreOverall = "overall"

// ReportContent holds the raw analysis output. Degraded marks text the
// pipeline could not extract any category scores from, so consumers can
// distinguish well-formed reports from error fallback prose.
type ReportContent struct {
	Markdown string `json:"markdown"`
	Degraded bool   `json:"degraded,omitempty"`
}

// Report is the persisted output of a successfully completed task. Its ID
// equals the owning task's ID (one-to-one, simplifies lookup) and it is
// deleted together with the task.
type Report struct {
	ID            string             `json:"id"                       db:"id"`
	RepoURL       string             `json:"repo_url"                 db:"repo_url"`
	Content       ReportContent      `json:"content"                  db:"content"`
	Scores        map[string]float64 `json:"scores"                   db:"scores"`
	AnalysisTier  AnalysisTier       `json:"analysis_tier"            db:"analysis_tier"`
	PublishedHash *string            `json:"published_hash,omitempty" db:"published_hash"`
	PublishedAt   *time.Time         `json:"published_at,omitempty"   db:"published_at"`
	CreatedAt     time.Time          `json:"created_at"               db:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"               db:"updated_at"`
}

// Published reports whether the report has been published already.
func (r *Report) Published() bool {
	return r.PublishedHash != nil && *r.PublishedHash != ""
}

// RepoMetrics is the optional metrics object returned by the fetch adapter.
type RepoMetrics struct {
	FileCount   int    `json:"file_count"`
	TotalBytes  int64  `json:"total_bytes"`
	Language    string `json:"language,omitempty"`
	Stars       int    `json:"stars,omitempty"`
	Description string `json:"description,omitempty"`
}
