package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"TrafficFeeds/internal/ports"
)

var errAlreadyStarted = errors.New("scheduler already started")

// CronScheduler runs a job on a cron expression. Overlapping runs are skipped.
type CronScheduler struct {
	spec     string
	location *time.Location
	logger   *slog.Logger

	mu       sync.Mutex
	cron     *cron.Cron
	stopped  chan struct{}
	watchers sync.WaitGroup
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler for a standard five-field expression or an @descriptor.
func NewCronScheduler(spec string, location *time.Location, logger *slog.Logger) *CronScheduler {
	if location == nil {
		location = time.UTC
	}
	return &CronScheduler{spec: spec, location: location, logger: logger}
}

// Start runs job once right away, then on every tick until ctx is done or Stop is called.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return errAlreadyStarted
	}

	logger := cronLogger{logger: c.logger}
	runner := cron.New(cron.WithLocation(c.location), cron.WithLogger(logger))

	// The immediate run shares the skip guard with the ticks.
	wrapped := cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).Then(cron.FuncJob(func() {
		job(time.Now().In(c.location))
	}))

	schedule, err := cron.ParseStandard(c.spec)
	if err != nil {
		return fmt.Errorf("parse cron expression %q: %w", c.spec, err)
	}
	runner.Schedule(schedule, wrapped)
	runner.Start()
	stopped := make(chan struct{})
	c.cron = runner
	c.stopped = stopped

	go wrapped.Run()
	c.watchers.Add(1)
	go func() {
		defer c.watchers.Done()
		select {
		case <-ctx.Done():
			c.stopRunner(runner)
		case <-stopped:
		}
	}()

	return nil
}

// Stop halts the cron runner and waits for a running job, bounded by ctx.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	runner := c.cron
	c.mu.Unlock()

	if runner == nil {
		return nil
	}

	select {
	case <-c.stopRunner(runner).Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stopRunner stops runner if it is still the active one and releases its context watcher.
func (c *CronScheduler) stopRunner(runner *cron.Cron) context.Context {
	c.mu.Lock()
	if c.cron == runner {
		c.cron = nil
		close(c.stopped)
		c.stopped = nil
	}
	c.mu.Unlock()
	return runner.Stop()
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
