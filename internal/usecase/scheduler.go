package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"TrafficFeeds/internal/ports"
)

// Scheduler wires the cron driver with the refresher and an optional exporter.
type Scheduler struct {
	driver    ports.Scheduler
	refresher *Refresher
	exporter  ports.Exporter
	logger    *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring refreshes.
func NewScheduler(driver ports.Scheduler, refresher *Refresher, exporter ports.Exporter, logger *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, refresher: refresher, exporter: exporter, logger: logger}
}

// Start registers the refresh job with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.refresher == nil {
		return nil
	}

	return s.driver.Start(ctx, func(trigger time.Time) {
		s.RunOnce(ctx, trigger)
	})
}

// RunOnce refreshes the current selection and exports the snapshot it produced.
func (s *Scheduler) RunOnce(ctx context.Context, trigger time.Time) {
	snap, err := s.refresher.Rerun(ctx)
	switch {
	case errors.Is(err, ErrSuperseded):
		s.log(slog.LevelDebug, "scheduled refresh superseded", "trigger", trigger)
		return
	case err != nil:
		s.log(slog.LevelError, "scheduled refresh failed", "trigger", trigger, "error", err)
		return
	}

	s.log(slog.LevelInfo, "scheduled refresh done",
		"generation", snap.Generation, "records", snap.Result.Len(), "failures", len(snap.Failures))

	if s.exporter == nil {
		return
	}
	if err := s.exporter.Export(ctx, snap); err != nil {
		s.log(slog.LevelError, "export failed", "generation", snap.Generation, "error", err)
	}
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}

func (s *Scheduler) log(level slog.Level, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Log(context.Background(), level, msg, args...)
}
