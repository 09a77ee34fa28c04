package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"TrafficFeeds/internal/api"
	"TrafficFeeds/internal/catalog"
	"TrafficFeeds/internal/config"
	"TrafficFeeds/internal/infrastructure/export"
	"TrafficFeeds/internal/infrastructure/fetcher"
	"TrafficFeeds/internal/infrastructure/scheduler"
	"TrafficFeeds/internal/infrastructure/storage"
	"TrafficFeeds/internal/logging"
	"TrafficFeeds/internal/usecase"
	"TrafficFeeds/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	refresher *usecase.Refresher
	exporter  *export.FileExporter
	scheduler *usecase.Scheduler
	handler   http.Handler
}

// New builds the application graph from cfg.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	sel, districts, err := cfg.Selection.Resolve()
	if err != nil {
		return nil, fmt.Errorf("initial selection: %w", err)
	}

	feedFetcher := fetcher.NewHTTPFetcher(nil, fetcher.Options{
		Timeout:           cfg.Feeds.Timeout,
		UserAgent:         cfg.Feeds.UserAgent,
		MaxBodyBytes:      cfg.Feeds.MaxBodyBytes,
		RequestsPerSecond: cfg.Feeds.RequestsPerSecond,
	}, baseLogger.With("component", "fetcher"))

	aggregator := usecase.NewAggregator(usecase.AggregatorDeps{
		Resolver:    catalog.NewResolver(cfg.Feeds.BaseURL),
		Fetcher:     feedFetcher,
		MaxInFlight: cfg.Feeds.MaxInFlight,
		Logger:      baseLogger.With("component", "aggregator"),
	})

	store := storage.NewMemorySnapshotStore()
	refresher := usecase.NewRefresher(usecase.RefresherDeps{
		Aggregator: aggregator,
		Store:      store,
		Initial:    usecase.Request{Selection: sel, Districts: districts},
		Logger:     baseLogger.With("component", "refresher"),
	})

	exporter := export.NewFileExporter(cfg.Export.Path, baseLogger.With("component", "export"))

	driver := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location(), baseLogger.With("component", "cron"))
	sched := usecase.NewScheduler(driver, refresher, exporter, baseLogger.With("component", "scheduler"))

	handler := api.NewRouter(api.NewHandler(api.HandlerDeps{
		Aggregator: aggregator,
		Refresher:  refresher,
		Store:      store,
		Logger:     baseLogger.With("component", "api"),
	}))

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		refresher: refresher,
		exporter:  exporter,
		scheduler: sched,
		handler:   handler,
	}, nil
}

// Handler exposes the HTTP API.
func (a *Application) Handler() http.Handler {
	return a.handler
}

// Run executes the configured mode until it completes or ctx is done.
func (a *Application) Run(ctx context.Context) error {
	switch a.cfg.Mode {
	case config.ModeWatch:
		return a.watch(ctx)
	case config.ModeServe:
		return a.serve(ctx)
	default:
		return a.once(ctx)
	}
}

func (a *Application) once(ctx context.Context) error {
	snap, err := a.refresher.Rerun(ctx)
	if err != nil {
		return err
	}

	for _, f := range snap.Failures {
		a.logger.Warn("feed unavailable", "type", f.Type, "district", f.District, "kind", f.Kind, "url", f.URL, "error", f.Message)
	}
	if snap.Result.Empty() {
		a.logger.Info("no data available for selection", "types", snap.Selection.String(), "districts", snap.Districts)
	}

	if err := a.exporter.Export(ctx, snap); err != nil {
		return err
	}
	a.logger.Info("snapshot exported",
		"path", a.exporter.Path(), "records", snap.Result.Len(), "failures", len(snap.Failures))
	return nil
}

func (a *Application) watch(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("watching feeds", "cron", a.cfg.Scheduler.CronExpression, "timezone", a.cfg.Scheduler.Location().String())

	<-ctx.Done()
	return a.stopScheduler()
}

func (a *Application) serve(ctx context.Context) error {
	server := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          logger.New(a.logger, "http"),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.scheduler.Start(gctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		<-gctx.Done()
		return a.stopScheduler()
	})
	g.Go(func() error {
		a.logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *Application) stopScheduler() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.scheduler.Stop(ctx)
}
