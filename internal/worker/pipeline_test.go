package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/repolens/repolens/config"
	"github.com/repolens/repolens/internal/core"
	"github.com/repolens/repolens/internal/data"
	"github.com/repolens/repolens/internal/domain/model"
	"github.com/repolens/repolens/internal/mocks"
	"github.com/repolens/repolens/internal/testutil"
)

const (
	testPipelineTaskID = "task-123"
	testRepoURL        = "https://github.com/example/repo"
)

const scoredAnalysis = `## Code Analysis

| Category | Score |
|----------|-------|
| Security | 7/10 |
| Readability | 9/10 |
| Overall | 8/10 |

Looks solid.`

type pipelineFixture struct {
	tasks    *mocks.MockTaskRepository
	reports  *mocks.MockReportRepository
	fetcher  *mocks.MockRepoFetcher
	analyzer *mocks.MockAnalyzer
	cache    *mocks.MockCacheRepository
}

func testPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Analysis: config.AnalysisConfig{
			APIKey:             "test-key",
			ModelDefault:       "default-model",
			ModelFast:          "fast-model",
			ModelDeep:          "deep-model",
			DefaultTemperature: 0.2,
			DefaultPrompt:      "default",
		},
		Cache: config.CacheConfig{
			Enabled:   true,
			DigestTTL: 30 * time.Minute,
		},
	}
}

// newTestPipeline creates mock collaborators and a pipeline for testing.
func newTestPipeline(t *testing.T, cfg PipelineConfig) (*pipelineFixture, *Pipeline) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	f := &pipelineFixture{
		tasks:    mocks.NewMockTaskRepository(ctrl),
		reports:  mocks.NewMockReportRepository(ctrl),
		fetcher:  mocks.NewMockRepoFetcher(ctrl),
		analyzer: mocks.NewMockAnalyzer(ctrl),
		cache:    mocks.NewMockCacheRepository(ctrl),
	}

	p := NewPipeline(PipelineOptions{
		Tasks:    f.tasks,
		Reports:  f.reports,
		Fetcher:  f.fetcher,
		Analyzer: f.analyzer,
		Cache:    f.cache,
		Config:   cfg,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	return f, p
}

func claimedTask(opts model.AnalysisOptions) *model.Task {
	return testutil.NewTask().
		WithID(testPipelineTaskID).
		WithRepoURL(testRepoURL).
		WithStatus(model.TaskStatusInProgress).
		WithProgress(model.ProgressClaimed).
		WithOptions(opts).
		Build()
}

func testPayload() model.JobPayload {
	return model.JobPayload{TaskID: testPipelineTaskID, RepoURL: testRepoURL}
}

func TestPipeline_Execute_Success(t *testing.T) {
	t.Parallel()
	f, p := newTestPipeline(t, testPipelineConfig())

	ctx := context.Background()
	opts := model.AnalysisOptions{AnalysisType: "deep", Temperature: model.TemperatureOf(0.7)}

	f.tasks.EXPECT().Claim(ctx, testPipelineTaskID).Return(claimedTask(opts), nil).Times(1)
	f.cache.EXPECT().Get(ctx, "digest:"+testRepoURL).Return(nil, nil).Times(1)
	f.fetcher.EXPECT().
		Fetch(ctx, testRepoURL, false).
		Return(&core.FetchResult{Content: "===== main.go =====\npackage main\n"}, nil).
		Times(1)
	f.cache.EXPECT().
		Set(ctx, "digest:"+testRepoURL, gomock.Any(), 30*time.Minute).
		Return(nil).
		Times(1)
	f.tasks.EXPECT().SetProgress(ctx, testPipelineTaskID, model.ProgressFetched).Return(true, nil).Times(1)
	f.analyzer.EXPECT().
		Analyze(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, params core.AnalyzeParams) (string, error) {
			assert.Equal(t, "deep-model", params.Model)
			assert.Equal(t, "default", params.PromptRef)
			assert.InDelta(t, 0.7, params.Temperature, 0.0001)
			assert.Contains(t, params.Digest, "package main")
			return scoredAnalysis, nil
		}).
		Times(1)
	f.tasks.EXPECT().SetProgress(ctx, testPipelineTaskID, model.ProgressAnalyzed).Return(true, nil).Times(1)
	f.reports.EXPECT().
		Upsert(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, report *model.Report) error {
			assert.Equal(t, testPipelineTaskID, report.ID)
			assert.Equal(t, testRepoURL, report.RepoURL)
			assert.Equal(t, model.TierDeep, report.AnalysisTier)
			assert.False(t, report.Content.Degraded)
			assert.InDelta(t, 7, report.Scores["security"], 0.0001)
			assert.InDelta(t, 9, report.Scores["readability"], 0.0001)
			assert.InDelta(t, 8, report.Scores[model.ScoreOverall], 0.0001)
			return nil
		}).
		Times(1)
	f.tasks.EXPECT().MarkCompleted(ctx, testPipelineTaskID).Return(true, nil).Times(1)

	require.NoError(t, p.Execute(ctx, testPayload()))
}

func TestPipeline_Execute_CachedDigestSkipsFetch(t *testing.T) {
	t.Parallel()
	f, p := newTestPipeline(t, testPipelineConfig())

	ctx := context.Background()
	cached, err := json.Marshal(core.FetchResult{Content: "cached digest"})
	require.NoError(t, err)

	f.tasks.EXPECT().Claim(ctx, testPipelineTaskID).Return(claimedTask(model.AnalysisOptions{}), nil).Times(1)
	f.cache.EXPECT().Get(ctx, "digest:"+testRepoURL).Return(cached, nil).Times(1)
	f.tasks.EXPECT().SetProgress(ctx, testPipelineTaskID, model.ProgressFetched).Return(true, nil).Times(1)
	f.analyzer.EXPECT().
		Analyze(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, params core.AnalyzeParams) (string, error) {
			assert.Equal(t, "cached digest", params.Digest)
			assert.Equal(t, "fast-model", params.Model)
			return scoredAnalysis, nil
		}).
		Times(1)
	f.tasks.EXPECT().SetProgress(ctx, testPipelineTaskID, model.ProgressAnalyzed).Return(true, nil).Times(1)
	f.reports.EXPECT().Upsert(ctx, gomock.Any()).Return(nil).Times(1)
	f.tasks.EXPECT().MarkCompleted(ctx, testPipelineTaskID).Return(true, nil).Times(1)

	require.NoError(t, p.Execute(ctx, testPayload()))
}

func TestPipeline_Execute_MetricsVariantUsesDistinctCacheKey(t *testing.T) {
	t.Parallel()
	f, p := newTestPipeline(t, testPipelineConfig())

	ctx := context.Background()
	opts := model.AnalysisOptions{IncludeMetrics: true}

	f.tasks.EXPECT().Claim(ctx, testPipelineTaskID).Return(claimedTask(opts), nil).Times(1)
	f.cache.EXPECT().Get(ctx, "digest:metrics:"+testRepoURL).Return(nil, nil).Times(1)
	f.fetcher.EXPECT().
		Fetch(ctx, testRepoURL, true).
		Return(&core.FetchResult{
			Content: "code",
			Metrics: model.RepoMetrics{FileCount: 3, TotalBytes: 120},
		}, nil).
		Times(1)
	f.cache.EXPECT().Set(ctx, "digest:metrics:"+testRepoURL, gomock.Any(), gomock.Any()).Return(nil).Times(1)
	f.tasks.EXPECT().SetProgress(ctx, testPipelineTaskID, model.ProgressFetched).Return(true, nil).Times(1)
	f.analyzer.EXPECT().Analyze(ctx, gomock.Any()).Return(scoredAnalysis, nil).Times(1)
	f.tasks.EXPECT().SetProgress(ctx, testPipelineTaskID, model.ProgressAnalyzed).Return(true, nil).Times(1)
	f.reports.EXPECT().Upsert(ctx, gomock.Any()).Return(nil).Times(1)
	f.tasks.EXPECT().MarkCompleted(ctx, testPipelineTaskID).Return(true, nil).Times(1)

	require.NoError(t, p.Execute(ctx, testPayload()))
}

func TestPipeline_Execute_TaskNotFoundIsNoOp(t *testing.T) {
	t.Parallel()
	f, p := newTestPipeline(t, testPipelineConfig())

	ctx := context.Background()
	f.tasks.EXPECT().Claim(ctx, testPipelineTaskID).Return(nil, data.ErrTaskNotFound).Times(1)

	require.NoError(t, p.Execute(ctx, testPayload()))
}

func TestPipeline_Execute_MissingAPIKeyFailsFast(t *testing.T) {
	t.Parallel()
	cfg := testPipelineConfig()
	cfg.Analysis.APIKey = "  "
	f, p := newTestPipeline(t, cfg)

	ctx := context.Background()
	f.tasks.EXPECT().Claim(ctx, testPipelineTaskID).Return(claimedTask(model.AnalysisOptions{}), nil).Times(1)
	f.tasks.EXPECT().
		MarkFailed(ctx, testPipelineTaskID, "analysis credentials are not configured").
		Return(true, nil).
		Times(1)

	require.NoError(t, p.Execute(ctx, testPayload()))
}

func TestPipeline_Execute_FetchErrorFailsTask(t *testing.T) {
	t.Parallel()
	f, p := newTestPipeline(t, testPipelineConfig())

	ctx := context.Background()
	f.tasks.EXPECT().Claim(ctx, testPipelineTaskID).Return(claimedTask(model.AnalysisOptions{}), nil).Times(1)
	f.cache.EXPECT().Get(ctx, gomock.Any()).Return(nil, nil).Times(1)
	f.fetcher.EXPECT().
		Fetch(ctx, testRepoURL, false).
		Return(nil, errors.New("repository not found")).
		Times(1)
	f.tasks.EXPECT().
		MarkFailed(ctx, testPipelineTaskID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _, msg string) (bool, error) {
			assert.True(t, strings.HasPrefix(msg, "fetch repository:"), "got %q", msg)
			return true, nil
		}).
		Times(1)

	require.NoError(t, p.Execute(ctx, testPayload()))
}

func TestPipeline_Execute_ErrorPrefixedDigestFailsTask(t *testing.T) {
	t.Parallel()
	f, p := newTestPipeline(t, testPipelineConfig())

	ctx := context.Background()
	f.tasks.EXPECT().Claim(ctx, testPipelineTaskID).Return(claimedTask(model.AnalysisOptions{}), nil).Times(1)
	f.cache.EXPECT().Get(ctx, gomock.Any()).Return(nil, nil).Times(1)
	f.fetcher.EXPECT().
		Fetch(ctx, testRepoURL, false).
		Return(&core.FetchResult{Content: "Error: repository is empty"}, nil).
		Times(1)
	f.tasks.EXPECT().
		MarkFailed(ctx, testPipelineTaskID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _, msg string) (bool, error) {
			assert.Contains(t, msg, "Error: repository is empty")
			return true, nil
		}).
		Times(1)

	require.NoError(t, p.Execute(ctx, testPayload()))
}

func TestPipeline_Execute_AnalyzeErrorFailsTask(t *testing.T) {
	t.Parallel()
	f, p := newTestPipeline(t, testPipelineConfig())

	ctx := context.Background()
	f.tasks.EXPECT().Claim(ctx, testPipelineTaskID).Return(claimedTask(model.AnalysisOptions{}), nil).Times(1)
	f.cache.EXPECT().Get(ctx, gomock.Any()).Return(nil, nil).Times(1)
	f.fetcher.EXPECT().Fetch(ctx, testRepoURL, false).Return(&core.FetchResult{Content: "code"}, nil).Times(1)
	f.cache.EXPECT().Set(ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)
	f.tasks.EXPECT().SetProgress(ctx, testPipelineTaskID, model.ProgressFetched).Return(true, nil).Times(1)
	f.analyzer.EXPECT().Analyze(ctx, gomock.Any()).Return("", errors.New("rate limited")).Times(1)
	f.tasks.EXPECT().
		MarkFailed(ctx, testPipelineTaskID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _, msg string) (bool, error) {
			assert.True(t, strings.HasPrefix(msg, "analyze repository:"), "got %q", msg)
			return true, nil
		}).
		Times(1)

	require.NoError(t, p.Execute(ctx, testPayload()))
}

func TestPipeline_Execute_UnscoredAnalysisProducesDegradedReport(t *testing.T) {
	t.Parallel()
	f, p := newTestPipeline(t, testPipelineConfig())

	ctx := context.Background()
	f.tasks.EXPECT().Claim(ctx, testPipelineTaskID).Return(claimedTask(model.AnalysisOptions{}), nil).Times(1)
	f.cache.EXPECT().Get(ctx, gomock.Any()).Return(nil, nil).Times(1)
	f.fetcher.EXPECT().Fetch(ctx, testRepoURL, false).Return(&core.FetchResult{Content: "code"}, nil).Times(1)
	f.cache.EXPECT().Set(ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)
	f.tasks.EXPECT().SetProgress(ctx, testPipelineTaskID, model.ProgressFetched).Return(true, nil).Times(1)
	f.analyzer.EXPECT().
		Analyze(ctx, gomock.Any()).
		Return("The repository could not be meaningfully assessed.", nil).
		Times(1)
	f.tasks.EXPECT().SetProgress(ctx, testPipelineTaskID, model.ProgressAnalyzed).Return(true, nil).Times(1)
	f.reports.EXPECT().
		Upsert(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, report *model.Report) error {
			assert.True(t, report.Content.Degraded)
			assert.Equal(t, map[string]float64{model.ScoreOverall: 0}, report.Scores)
			return nil
		}).
		Times(1)
	f.tasks.EXPECT().MarkCompleted(ctx, testPipelineTaskID).Return(true, nil).Times(1)

	require.NoError(t, p.Execute(ctx, testPayload()))
}

func TestPipeline_Execute_UnknownTierFallsBackToDefaultModel(t *testing.T) {
	t.Parallel()
	f, p := newTestPipeline(t, testPipelineConfig())

	ctx := context.Background()
	opts := model.AnalysisOptions{AnalysisType: "turbo"}

	f.tasks.EXPECT().Claim(ctx, testPipelineTaskID).Return(claimedTask(opts), nil).Times(1)
	f.cache.EXPECT().Get(ctx, gomock.Any()).Return(nil, nil).Times(1)
	f.fetcher.EXPECT().Fetch(ctx, testRepoURL, false).Return(&core.FetchResult{Content: "code"}, nil).Times(1)
	f.cache.EXPECT().Set(ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)
	f.tasks.EXPECT().SetProgress(ctx, testPipelineTaskID, model.ProgressFetched).Return(true, nil).Times(1)
	f.analyzer.EXPECT().
		Analyze(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, params core.AnalyzeParams) (string, error) {
			assert.Equal(t, "default-model", params.Model)
			return scoredAnalysis, nil
		}).
		Times(1)
	f.tasks.EXPECT().SetProgress(ctx, testPipelineTaskID, model.ProgressAnalyzed).Return(true, nil).Times(1)
	f.reports.EXPECT().
		Upsert(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, report *model.Report) error {
			// Unrecognized tiers are stored as the fast tier.
			assert.Equal(t, model.TierFast, report.AnalysisTier)
			return nil
		}).
		Times(1)
	f.tasks.EXPECT().MarkCompleted(ctx, testPipelineTaskID).Return(true, nil).Times(1)

	require.NoError(t, p.Execute(ctx, testPayload()))
}

func TestPipeline_Execute_UpsertErrorFailsTask(t *testing.T) {
	t.Parallel()
	f, p := newTestPipeline(t, testPipelineConfig())

	ctx := context.Background()
	f.tasks.EXPECT().Claim(ctx, testPipelineTaskID).Return(claimedTask(model.AnalysisOptions{}), nil).Times(1)
	f.cache.EXPECT().Get(ctx, gomock.Any()).Return(nil, nil).Times(1)
	f.fetcher.EXPECT().Fetch(ctx, testRepoURL, false).Return(&core.FetchResult{Content: "code"}, nil).Times(1)
	f.cache.EXPECT().Set(ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)
	f.tasks.EXPECT().SetProgress(ctx, testPipelineTaskID, model.ProgressFetched).Return(true, nil).Times(1)
	f.analyzer.EXPECT().Analyze(ctx, gomock.Any()).Return(scoredAnalysis, nil).Times(1)
	f.tasks.EXPECT().SetProgress(ctx, testPipelineTaskID, model.ProgressAnalyzed).Return(true, nil).Times(1)
	f.reports.EXPECT().Upsert(ctx, gomock.Any()).Return(errors.New("disk full")).Times(1)
	f.tasks.EXPECT().
		MarkFailed(ctx, testPipelineTaskID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _, msg string) (bool, error) {
			assert.True(t, strings.HasPrefix(msg, "persist report:"), "got %q", msg)
			return true, nil
		}).
		Times(1)

	require.NoError(t, p.Execute(ctx, testPayload()))
}

func TestPipeline_Execute_CacheFailuresAreNonFatal(t *testing.T) {
	t.Parallel()
	f, p := newTestPipeline(t, testPipelineConfig())

	ctx := context.Background()
	f.tasks.EXPECT().Claim(ctx, testPipelineTaskID).Return(claimedTask(model.AnalysisOptions{}), nil).Times(1)
	f.cache.EXPECT().Get(ctx, gomock.Any()).Return(nil, errors.New("redis down")).Times(1)
	f.fetcher.EXPECT().Fetch(ctx, testRepoURL, false).Return(&core.FetchResult{Content: "code"}, nil).Times(1)
	f.cache.EXPECT().Set(ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("redis down")).Times(1)
	f.tasks.EXPECT().SetProgress(ctx, testPipelineTaskID, model.ProgressFetched).Return(true, nil).Times(1)
	f.analyzer.EXPECT().Analyze(ctx, gomock.Any()).Return(scoredAnalysis, nil).Times(1)
	f.tasks.EXPECT().SetProgress(ctx, testPipelineTaskID, model.ProgressAnalyzed).Return(true, nil).Times(1)
	f.reports.EXPECT().Upsert(ctx, gomock.Any()).Return(nil).Times(1)
	f.tasks.EXPECT().MarkCompleted(ctx, testPipelineTaskID).Return(true, nil).Times(1)

	require.NoError(t, p.Execute(ctx, testPayload()))
}
