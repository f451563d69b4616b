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

const testReportID = "task-123"

// newReportService creates mock dependencies and a service for testing.
func newReportService(t *testing.T) (*mocks.MockReportRepository, *mocks.MockPublisher, *ReportService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	reportRepo := mocks.NewMockReportRepository(ctrl)
	publisher := mocks.NewMockPublisher(ctrl)

	svc := NewReportService(ReportServiceOptions{
		ReportRepo: reportRepo,
		Publisher:  publisher,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	return reportRepo, publisher, svc
}

func TestReportService_Get(t *testing.T) {
	t.Parallel()
	reportRepo, _, svc := newReportService(t)

	ctx := context.Background()
	want := testutil.NewReport().WithID(testReportID).Build()
	reportRepo.EXPECT().GetByID(ctx, testReportID).Return(want, nil).Times(1)

	report, err := svc.Get(ctx, testReportID)
	require.NoError(t, err)
	assert.Equal(t, want, report)
}

func TestReportService_Get_NotFound(t *testing.T) {
	t.Parallel()
	reportRepo, _, svc := newReportService(t)

	ctx := context.Background()
	reportRepo.EXPECT().GetByID(ctx, "missing").Return(nil, data.ErrReportNotFound).Times(1)

	report, err := svc.Get(ctx, "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, data.ErrReportNotFound)
	assert.Nil(t, report)
}

func TestReportService_Publish_Success(t *testing.T) {
	t.Parallel()
	reportRepo, publisher, svc := newReportService(t)

	ctx := context.Background()
	report := testutil.NewReport().
		WithID(testReportID).
		WithTier(model.TierDeep).
		Build()

	reportRepo.EXPECT().GetByID(ctx, testReportID).Return(report, nil).Times(1)
	publisher.EXPECT().
		Publish(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, content []byte) (string, error) {
			var doc struct {
				ID           string             `json:"id"`
				RepoURL      string             `json:"repo_url"`
				Scores       map[string]float64 `json:"scores"`
				AnalysisTier string             `json:"analysis_tier"`
			}
			require.NoError(t, json.Unmarshal(content, &doc))
			assert.Equal(t, testReportID, doc.ID)
			assert.Equal(t, report.RepoURL, doc.RepoURL)
			assert.Equal(t, report.Scores, doc.Scores)
			assert.Equal(t, "deep", doc.AnalysisTier)
			return "QmTestHash", nil
		}).
		Times(1)
	reportRepo.EXPECT().SetPublished(ctx, testReportID, "QmTestHash").Return(true, nil).Times(1)

	hash, err := svc.Publish(ctx, testReportID)
	require.NoError(t, err)
	assert.Equal(t, "QmTestHash", hash)
}

func TestReportService_Publish_AlreadyPublished(t *testing.T) {
	t.Parallel()
	reportRepo, _, svc := newReportService(t)

	ctx := context.Background()
	report := testutil.NewReport().
		WithID(testReportID).
		WithPublishedHash("QmExisting").
		Build()

	// No publisher call and no SetPublished: the stored hash is returned as is.
	reportRepo.EXPECT().GetByID(ctx, testReportID).Return(report, nil).Times(1)

	hash, err := svc.Publish(ctx, testReportID)
	require.NoError(t, err)
	assert.Equal(t, "QmExisting", hash)
}

func TestReportService_Publish_RaceReturnsWinnerHash(t *testing.T) {
	t.Parallel()
	reportRepo, publisher, svc := newReportService(t)

	ctx := context.Background()
	unpublished := testutil.NewReport().WithID(testReportID).Build()
	winner := testutil.NewReport().
		WithID(testReportID).
		WithPublishedHash("QmWinner").
		Build()

	reportRepo.EXPECT().GetByID(ctx, testReportID).Return(unpublished, nil).Times(1)
	publisher.EXPECT().Publish(ctx, gomock.Any()).Return("QmLoser", nil).Times(1)
	reportRepo.EXPECT().SetPublished(ctx, testReportID, "QmLoser").Return(false, nil).Times(1)
	reportRepo.EXPECT().GetByID(ctx, testReportID).Return(winner, nil).Times(1)

	hash, err := svc.Publish(ctx, testReportID)
	require.NoError(t, err)
	assert.Equal(t, "QmWinner", hash)
}

func TestReportService_Publish_PublisherError(t *testing.T) {
	t.Parallel()
	reportRepo, publisher, svc := newReportService(t)

	ctx := context.Background()
	reportRepo.EXPECT().
		GetByID(ctx, testReportID).
		Return(testutil.NewReport().WithID(testReportID).Build(), nil).
		Times(1)
	publisher.EXPECT().
		Publish(ctx, gomock.Any()).
		Return("", errors.New("node unreachable")).
		Times(1)

	hash, err := svc.Publish(ctx, testReportID)
	require.Error(t, err)
	assert.Empty(t, hash)
}

func TestReportService_Publish_NotConfigured(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	svc := NewReportService(ReportServiceOptions{
		ReportRepo: mocks.NewMockReportRepository(ctrl),
	})

	hash, err := svc.Publish(context.Background(), testReportID)
	require.Error(t, err)
	assert.Empty(t, hash)
}
