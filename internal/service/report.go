package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/repolens/repolens/internal/core"
	"github.com/repolens/repolens/internal/domain/model"
)

// ReportServiceOptions groups dependencies for ReportService.
type ReportServiceOptions struct {
	ReportRepo core.ReportRepository
	Publisher  core.Publisher
	Logger     *slog.Logger
}

// ReportService provides read access to reports and idempotent publication
// to content-addressed storage.
type ReportService struct {
	reports   core.ReportRepository
	publisher core.Publisher
	logger    *slog.Logger
}

// NewReportService constructs a new ReportService.
func NewReportService(opts ReportServiceOptions) *ReportService {
	if opts.ReportRepo == nil {
		panic("ReportRepository is required")
	}
	return &ReportService{
		reports:   opts.ReportRepo,
		publisher: opts.Publisher,
		logger:    opts.Logger,
	}
}

// Get retrieves a report by id (equal to the owning task id).
func (s *ReportService) Get(ctx context.Context, id string) (*model.Report, error) {
	return s.reports.GetByID(ctx, id)
}

// publishedReport is the document shape pushed to content-addressed storage.
type publishedReport struct {
	ID           string              `json:"id"`
	RepoURL      string              `json:"repo_url"`
	Content      model.ReportContent `json:"content"`
	Scores       map[string]float64  `json:"scores"`
	AnalysisTier model.AnalysisTier  `json:"analysis_tier"`
}

// Publish pushes the report to content-addressed storage and records the
// hash. A report that was already published returns its existing hash with
// no storage call; a concurrent publish that loses the record race returns
// the winner's hash.
func (s *ReportService) Publish(ctx context.Context, id string) (string, error) {
	if s.publisher == nil {
		return "", fmt.Errorf("publishing is not configured")
	}

	report, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if report.Published() {
		return *report.PublishedHash, nil
	}

	doc, err := json.Marshal(publishedReport{
		ID:           report.ID,
		RepoURL:      report.RepoURL,
		Content:      report.Content,
		Scores:       report.Scores,
		AnalysisTier: report.AnalysisTier,
	})
	if err != nil {
		return "", fmt.Errorf("marshal report document: %w", err)
	}

	hash, err := s.publisher.Publish(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("publish report %s: %w", id, err)
	}

	recorded, err := s.reports.SetPublished(ctx, id, hash)
	if err != nil {
		return "", fmt.Errorf("record publication: %w", err)
	}
	if !recorded {
		// Lost a concurrent publish race; the stored hash wins.
		current, reloadErr := s.reports.GetByID(ctx, id)
		if reloadErr != nil {
			return "", fmt.Errorf("reload after publish race: %w", reloadErr)
		}
		if current.Published() {
			return *current.PublishedHash, nil
		}
		return "", fmt.Errorf("publication of report %s was not recorded", id)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "report published",
			"report_id", id,
			"hash", hash,
		)
	}
	return hash, nil
}
