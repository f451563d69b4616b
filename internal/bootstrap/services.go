package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/repolens/repolens/config"
	"github.com/repolens/repolens/internal/adapters/githubfetch"
	"github.com/repolens/repolens/internal/adapters/ipfspub"
	"github.com/repolens/repolens/internal/adapters/llm"
	"github.com/repolens/repolens/internal/core"
	"github.com/repolens/repolens/internal/data"
	httpx "github.com/repolens/repolens/internal/http"
	"github.com/repolens/repolens/internal/service"
	"github.com/repolens/repolens/internal/worker"
)

// ServiceContainer holds the application services built for the enabled
// service modes. Worker and Reaper are nil when their modes are disabled.
type ServiceContainer struct {
	Tasks   *service.TaskService
	Reports *service.ReportService
	Runner  *worker.Runner
	Reaper  *worker.Reaper
}

// ServiceDeps contains the infrastructure dependencies for service construction.
type ServiceDeps struct {
	Config      config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// NewServices constructs the repositories, adapters, and services for the
// enabled service modes.
func NewServices(deps ServiceDeps) (*ServiceContainer, error) {
	if deps.DB == nil {
		return nil, errors.New("database connection is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	repoCfg := data.RepoConfig{Logger: deps.Logger}
	taskRepo := data.NewTaskRepo(deps.DB, repoCfg)
	reportRepo := data.NewReportRepo(deps.DB, repoCfg)
	queueRepo := data.NewQueueRepo(deps.DB, repoCfg)

	publisher := ipfspub.NewPublisher(ipfspub.PublisherOptions{
		Config: deps.Config.IPFS,
		Logger: deps.Logger,
	})

	container := &ServiceContainer{
		Tasks: service.NewTaskService(service.TaskServiceOptions{
			TaskRepo: taskRepo,
			Queue:    queueRepo,
			Logger:   deps.Logger,
		}),
		Reports: service.NewReportService(service.ReportServiceOptions{
			ReportRepo: reportRepo,
			Publisher:  publisher,
			Logger:     deps.Logger,
		}),
	}

	if deps.Config.IsWorkerEnabled() {
		fetcher := githubfetch.NewFetcher(githubfetch.FetcherOptions{
			Config: deps.Config.GitHub,
			Logger: deps.Logger,
		})
		analyzer := llm.NewAnalyzer(llm.AnalyzerOptions{
			Config: deps.Config.Analysis,
			Logger: deps.Logger,
		})

		var cache core.CacheRepository
		if deps.RedisClient != nil {
			cache = data.NewRedisCacheRepo(deps.RedisClient)
		}

		pipeline := worker.NewPipeline(worker.PipelineOptions{
			Tasks:    taskRepo,
			Reports:  reportRepo,
			Fetcher:  fetcher,
			Analyzer: analyzer,
			Cache:    cache,
			Config: worker.PipelineConfig{
				Analysis: deps.Config.Analysis,
				Cache:    deps.Config.Cache,
			},
			Logger: deps.Logger,
		})

		runner, err := worker.NewRunner(worker.RunnerOptions{
			Queue:    queueRepo,
			Pipeline: pipeline,
			Config:   deps.Config.Worker,
			Logger:   deps.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create worker runner: %w", err)
		}
		container.Runner = runner
	}

	if deps.Config.IsReaperEnabled() {
		reaper, err := worker.NewReaper(worker.ReaperOptions{
			Reaper: queueRepo,
			Tasks:  taskRepo,
			Config: deps.Config.Reaper,
			Logger: deps.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create reaper: %w", err)
		}
		container.Reaper = reaper
	}

	return container, nil
}

// RunServicesWithShutdown runs the enabled services until a termination
// signal arrives, then shuts them down gracefully.
func RunServicesWithShutdown(ctx context.Context, cfg config.AppConfig, container *ServiceContainer, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.IsHTTPServerEnabled() {
		router := httpx.NewRouter(httpx.RouterServices{
			Tasks:   container.Tasks,
			Reports: container.Reports,
			Logger:  logger,
		})
		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           router,
			ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		}

		g.Go(func() error {
			logger.Info("http server listening", "addr", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("http server shutdown: %w", err)
			}
			return nil
		})
	}

	if container.Runner != nil {
		g.Go(func() error {
			logger.Info("worker runner starting", "concurrency", cfg.Worker.Concurrency)
			return container.Runner.Run(ctx)
		})
	}

	if container.Reaper != nil {
		g.Go(func() error {
			logger.Info("reaper starting", "interval", cfg.Reaper.Interval.String())
			return container.Reaper.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("all services stopped")
	return nil
}
