package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/repolens/repolens/internal/domain/model"
)

// ReportRepo provides database operations for report records.
type ReportRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewReportRepo creates a new ReportRepo instance with the given database connection and configuration.
func NewReportRepo(db *sql.DB, cfg RepoConfig) *ReportRepo {
	return &ReportRepo{
		DB:           db,
		timeProvider: cfg.timeProvider(),
		logger:       cfg.Logger,
	}
}

const reportColumns = `
  id,
  repo_url,
  content,
  scores,
  analysis_tier,
  published_hash,
  published_at,
  created_at,
  updated_at
`

// Upsert writes the report for its owning task. The report id equals the task
// id, so a worker retry that re-runs the persist step overwrites the prior
// attempt's row instead of conflicting with it. Publication fields are left
// alone on conflict.
func (r *ReportRepo) Upsert(ctx context.Context, report *model.Report) error {
	if report == nil {
		return errors.New("report is required")
	}
	if report.ID == "" {
		return errors.New("report id is required")
	}

	content, err := json.Marshal(report.Content)
	if err != nil {
		return fmt.Errorf("marshal report content: %w", err)
	}
	scores, err := json.Marshal(report.Scores)
	if err != nil {
		return fmt.Errorf("marshal report scores: %w", err)
	}

	now := r.timeProvider.Now().UTC()
	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO reports (id, repo_url, content, scores, analysis_tier, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO UPDATE
		SET repo_url = EXCLUDED.repo_url,
		    content = EXCLUDED.content,
		    scores = EXCLUDED.scores,
		    analysis_tier = EXCLUDED.analysis_tier,
		    updated_at = EXCLUDED.updated_at`,
		report.ID, report.RepoURL, content, scores, report.AnalysisTier, now)
	if err != nil {
		return classifyDBError("upsert report", err)
	}
	return nil
}

// GetByID returns a report by id (equal to the owning task id), or ErrReportNotFound.
func (r *ReportRepo) GetByID(ctx context.Context, id string) (*model.Report, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id = $1`, id)

	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, classifyDBError("get report", err)
	}
	return report, nil
}

// SetPublished records the publication hash exactly once. Returns false when
// the report is missing or already published, which makes publication
// idempotent at the store level.
func (r *ReportRepo) SetPublished(ctx context.Context, id, hash string) (bool, error) {
	if hash == "" {
		return false, errors.New("publication hash required")
	}
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE reports
		SET published_hash = $2,
		    published_at = $3,
		    updated_at = $3
		WHERE id = $1 AND published_hash IS NULL`,
		id, hash, now)
	if err != nil {
		return false, classifyDBError("publish report", err)
	}
	return rowsAffected(res)
}

func scanReport(row rowScanner) (*model.Report, error) {
	var (
		report  model.Report
		content []byte
		scores  []byte
	)
	if err := row.Scan(
		&report.ID,
		&report.RepoURL,
		&content,
		&scores,
		&report.AnalysisTier,
		&report.PublishedHash,
		&report.PublishedAt,
		&report.CreatedAt,
		&report.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &report.Content); err != nil {
			return nil, fmt.Errorf("decode report content: %w", err)
		}
	}
	if len(scores) > 0 {
		if err := json.Unmarshal(scores, &report.Scores); err != nil {
			return nil, fmt.Errorf("decode report scores: %w", err)
		}
	}
	return &report, nil
}
