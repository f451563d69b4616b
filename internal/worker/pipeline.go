// Package worker runs the repository analysis pipeline: claim the task, fetch
// a code digest, run the language-model analysis, extract scores, and persist
// the report.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/repolens/repolens/config"
	"github.com/repolens/repolens/internal/core"
	"github.com/repolens/repolens/internal/data"
	"github.com/repolens/repolens/internal/domain/model"
	"github.com/repolens/repolens/internal/scores"
)

// PipelineConfig groups the tunables the pipeline needs.
type PipelineConfig struct {
	Analysis config.AnalysisConfig
	Cache    config.CacheConfig
}

// PipelineOptions groups dependencies for Pipeline.
type PipelineOptions struct {
	Tasks    core.TaskRepository
	Reports  core.ReportRepository
	Fetcher  core.RepoFetcher
	Analyzer core.Analyzer
	Cache    core.CacheRepository // optional digest cache
	Config   PipelineConfig
	Logger   *slog.Logger
}

// Pipeline executes one analysis task end to end. Any failure inside an
// attempt lands on the task record as a failed status with a message;
// Execute itself only errors when even that bookkeeping is impossible.
type Pipeline struct {
	tasks    core.TaskRepository
	reports  core.ReportRepository
	fetcher  core.RepoFetcher
	analyzer core.Analyzer
	cache    core.CacheRepository
	cfg      PipelineConfig
	logger   *slog.Logger
}

// NewPipeline constructs a new Pipeline.
func NewPipeline(opts PipelineOptions) *Pipeline {
	if opts.Tasks == nil {
		panic("TaskRepository is required")
	}
	if opts.Reports == nil {
		panic("ReportRepository is required")
	}
	if opts.Fetcher == nil {
		panic("RepoFetcher is required")
	}
	if opts.Analyzer == nil {
		panic("Analyzer is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		tasks:    opts.Tasks,
		reports:  opts.Reports,
		fetcher:  opts.Fetcher,
		analyzer: opts.Analyzer,
		cache:    opts.Cache,
		cfg:      opts.Config,
		logger:   logger,
	}
}

// Execute runs the pipeline for one queued payload. A payload whose task no
// longer exists or already reached a terminal state is a silent no-op; the
// queue entry still gets finished by the caller.
func (p *Pipeline) Execute(ctx context.Context, payload model.JobPayload) error {
	task, err := p.tasks.Claim(ctx, payload.TaskID)
	if err != nil {
		if errors.Is(err, data.ErrTaskNotFound) {
			p.logger.InfoContext(ctx, "skipping job without claimable task", "task_id", payload.TaskID)
			return nil
		}
		return fmt.Errorf("claim task %s: %w", payload.TaskID, err)
	}

	// Fail before any network work when the analysis step cannot possibly
	// succeed.
	if strings.TrimSpace(p.cfg.Analysis.APIKey) == "" {
		p.failTask(ctx, task.ID, "analysis credentials are not configured")
		return nil
	}

	fetched, err := p.fetchDigest(ctx, task)
	if err != nil {
		p.failTask(ctx, task.ID, fmt.Sprintf("fetch repository: %v", err))
		return nil
	}
	p.setProgress(ctx, task.ID, model.ProgressFetched)

	text, err := p.analyzer.Analyze(ctx, core.AnalyzeParams{
		Digest:      fetched.Content,
		PromptRef:   p.promptRef(task.Options),
		Model:       p.resolveModel(task.Options),
		Temperature: task.Options.Temperature.Or(p.cfg.Analysis.DefaultTemperature),
	})
	if err != nil {
		p.failTask(ctx, task.ID, fmt.Sprintf("analyze repository: %v", err))
		return nil
	}
	p.setProgress(ctx, task.ID, model.ProgressAnalyzed)

	scoreMap := scores.Extract(text)
	report := &model.Report{
		ID:      task.ID,
		RepoURL: task.RepoURL,
		Content: model.ReportContent{
			Markdown: text,
			Degraded: categoryCount(scoreMap) == 0,
		},
		Scores:       scoreMap,
		AnalysisTier: resolveTier(task.Options),
	}
	if err := p.reports.Upsert(ctx, report); err != nil {
		p.failTask(ctx, task.ID, fmt.Sprintf("persist report: %v", err))
		return nil
	}

	completed, err := p.tasks.MarkCompleted(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("complete task %s: %w", task.ID, err)
	}
	if !completed {
		p.logger.WarnContext(ctx, "task left in_progress before completion", "task_id", task.ID)
		return nil
	}

	p.logger.InfoContext(ctx, "task completed",
		"task_id", task.ID,
		"repo_url", task.RepoURL,
		"overall", scoreMap[model.ScoreOverall],
		"degraded", report.Content.Degraded,
	)
	return nil
}

// fetchDigest returns the repository digest, consulting the cache first. An
// empty or error-prefixed digest counts as a fetch failure; analysis on such
// input only produces a degraded report about the error text itself.
func (p *Pipeline) fetchDigest(ctx context.Context, task *model.Task) (*core.FetchResult, error) {
	key := digestCacheKey(task.RepoURL, task.Options.IncludeMetrics)

	if cached := p.cacheGet(ctx, key); cached != nil {
		return cached, nil
	}

	fetched, err := p.fetcher.Fetch(ctx, task.RepoURL, task.Options.IncludeMetrics)
	if err != nil {
		return nil, err
	}
	if fetched == nil || strings.TrimSpace(fetched.Content) == "" {
		return nil, errors.New("repository digest is empty")
	}
	if strings.HasPrefix(fetched.Content, "Error:") {
		return nil, errors.New(strings.TrimSpace(fetched.Content))
	}

	p.cacheSet(ctx, key, fetched)
	return fetched, nil
}

func (p *Pipeline) cacheGet(ctx context.Context, key string) *core.FetchResult {
	if p.cache == nil || !p.cfg.Cache.Enabled {
		return nil
	}
	raw, err := p.cache.Get(ctx, key)
	if err != nil {
		p.logger.WarnContext(ctx, "digest cache read failed", "key", key, "error", err)
		return nil
	}
	if raw == nil {
		return nil
	}
	var cached core.FetchResult
	if err := json.Unmarshal(raw, &cached); err != nil {
		p.logger.WarnContext(ctx, "digest cache entry corrupt", "key", key, "error", err)
		return nil
	}
	return &cached
}

func (p *Pipeline) cacheSet(ctx context.Context, key string, fetched *core.FetchResult) {
	if p.cache == nil || !p.cfg.Cache.Enabled {
		return
	}
	raw, err := json.Marshal(fetched)
	if err != nil {
		p.logger.WarnContext(ctx, "digest cache encode failed", "key", key, "error", err)
		return
	}
	ttl := p.cfg.Cache.DigestTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if err := p.cache.Set(ctx, key, raw, ttl); err != nil {
		p.logger.WarnContext(ctx, "digest cache write failed", "key", key, "error", err)
	}
}

// setProgress is best effort: a lost progress update degrades the client's
// progress bar, not the pipeline outcome.
func (p *Pipeline) setProgress(ctx context.Context, id string, progress int) {
	if _, err := p.tasks.SetProgress(ctx, id, progress); err != nil {
		p.logger.WarnContext(ctx, "set progress failed",
			"task_id", id,
			"progress", progress,
			"error", err,
		)
	}
}

// failTask records the failure on the task. Errors here are logged and
// swallowed; the reaper eventually fails tasks this path could not reach.
func (p *Pipeline) failTask(ctx context.Context, id, msg string) {
	failed, err := p.tasks.MarkFailed(ctx, id, msg)
	if err != nil {
		p.logger.ErrorContext(ctx, "mark task failed errored",
			"task_id", id,
			"message", msg,
			"error", err,
		)
		return
	}
	if !failed {
		p.logger.WarnContext(ctx, "task already terminal, failure not recorded",
			"task_id", id,
			"message", msg,
		)
		return
	}
	p.logger.InfoContext(ctx, "task failed", "task_id", id, "message", msg)
}

// resolveModel maps the requested tier to a configured model. Unrecognized
// tiers get the default model rather than an error; the request already
// passed validation and a typo should not strand the task.
func (p *Pipeline) resolveModel(opts model.AnalysisOptions) string {
	switch opts.Tier() {
	case model.TierDeep:
		return p.cfg.Analysis.ModelDeep
	case model.TierFast:
		return p.cfg.Analysis.ModelFast
	default:
		return p.cfg.Analysis.ModelDefault
	}
}

func (p *Pipeline) promptRef(opts model.AnalysisOptions) string {
	if strings.TrimSpace(opts.Prompt) != "" {
		return opts.Prompt
	}
	return p.cfg.Analysis.DefaultPrompt
}

// resolveTier keeps known tiers and folds everything unrecognized back to
// fast, matching what the model resolution actually runs with.
func resolveTier(opts model.AnalysisOptions) model.AnalysisTier {
	if opts.Tier() == model.TierDeep {
		return model.TierDeep
	}
	return model.TierFast
}

func digestCacheKey(repoURL string, includeMetrics bool) string {
	if includeMetrics {
		return "digest:metrics:" + repoURL
	}
	return "digest:" + repoURL
}

func categoryCount(m map[string]float64) int {
	n := 0
	for k := range m {
		if k != model.ScoreOverall {
			n++
		}
	}
	return n
}
