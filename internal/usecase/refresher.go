package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"TrafficFeeds/internal/domain"
	"TrafficFeeds/internal/metrics"
	"TrafficFeeds/internal/ports"
)

// ErrSuperseded is returned by a refresh that a newer refresh replaced before it finished.
var ErrSuperseded = errors.New("refresh superseded by a newer request")

// Request is one selection over an ordered district list.
type Request struct {
	Selection domain.Selection
	Districts []domain.District
}

func (r Request) clone() Request {
	return Request{Selection: r.Selection, Districts: slices.Clone(r.Districts)}
}

// RefresherDeps wires the aggregation use case and the snapshot sink.
type RefresherDeps struct {
	Aggregator ports.Aggregator
	Store      ports.SnapshotStore
	Initial    Request
	Logger     *slog.Logger
	Clock      func() time.Time
}

// Refresher runs aggregations on behalf of user actions. Starting a refresh cancels the
// one in flight, and only the newest generation publishes a snapshot.
type Refresher struct {
	aggregator ports.Aggregator
	store      ports.SnapshotStore
	logger     *slog.Logger
	clock      func() time.Time

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	current    Request
}

// NewRefresher constructs the refresh coordinator.
func NewRefresher(deps RefresherDeps) *Refresher {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Refresher{
		aggregator: deps.Aggregator,
		store:      deps.Store,
		logger:     deps.Logger,
		clock:      clock,
		current:    deps.Initial.clone(),
	}
}

// Current returns the request the next Rerun will use.
func (r *Refresher) Current() Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.clone()
}

// Rerun refreshes the most recently requested selection.
func (r *Refresher) Rerun(ctx context.Context) (domain.Snapshot, error) {
	return r.Refresh(ctx, r.Current())
}

// Refresh supersedes any in-flight refresh, aggregates req and publishes the snapshot.
func (r *Refresher) Refresh(ctx context.Context, req Request) (domain.Snapshot, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.generation++
	gen := r.generation
	r.cancel = cancel
	r.current = req.clone()
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		if r.generation == gen {
			r.cancel = nil
		}
		r.mu.Unlock()
	}()

	report, err := r.aggregator.Aggregate(ctx, req.Selection, req.Districts)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.generation != gen {
		metrics.RecordSuperseded()
		r.debug("refresh superseded", "generation", gen, "newest", r.generation)
		return domain.Snapshot{}, ErrSuperseded
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("refresh generation %d: %w", gen, err)
	}

	snap := domain.Snapshot{
		ID:         uuid.NewString(),
		Generation: gen,
		Selection:  req.Selection,
		Types:      req.Selection.Types(),
		Districts:  slices.Clone(req.Districts),
		FetchedAt:  r.clock().UTC(),
		Report:     report,
	}

	if r.store != nil && !r.store.Publish(snap) {
		return domain.Snapshot{}, ErrSuperseded
	}
	metrics.SetSnapshotGeneration(gen)
	r.debug("snapshot published", "id", snap.ID, "generation", gen,
		"records", report.Result.Len(), "failures", len(report.Failures))

	return snap, nil
}

func (r *Refresher) debug(msg string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Debug(msg, args...)
}
