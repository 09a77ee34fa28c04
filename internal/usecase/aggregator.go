package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"TrafficFeeds/internal/domain"
	"TrafficFeeds/internal/metrics"
	"TrafficFeeds/internal/normalize"
	"TrafficFeeds/internal/ports"
)

// DefaultMaxInFlight bounds concurrent feed fetches when no limit is configured.
const DefaultMaxInFlight = 8

// AggregatorDeps wires the driven adapters into the aggregation use case.
type AggregatorDeps struct {
	Resolver    ports.EndpointResolver
	Fetcher     ports.FeedFetcher
	MaxInFlight int
	Logger      *slog.Logger
}

// Aggregator fetches every selected (district, type) feed and merges them into typed buckets.
type Aggregator struct {
	resolver    ports.EndpointResolver
	fetcher     ports.FeedFetcher
	maxInFlight int
	logger      *slog.Logger
}

var _ ports.Aggregator = (*Aggregator)(nil)

// NewAggregator constructs the aggregation component.
func NewAggregator(deps AggregatorDeps) *Aggregator {
	limit := deps.MaxInFlight
	if limit <= 0 {
		limit = DefaultMaxInFlight
	}
	return &Aggregator{
		resolver:    deps.Resolver,
		fetcher:     deps.Fetcher,
		maxInFlight: limit,
		logger:      deps.Logger,
	}
}

type slot struct {
	records []domain.TaggedRecord
	failure *domain.FetchError
}

// Aggregate walks districts in the given order and, per district, the selected types in
// canonical order. Feed failures land in the report's failure log; the only error returned
// is the context's, and then no partial result is handed back.
func (a *Aggregator) Aggregate(ctx context.Context, sel domain.Selection, districts []domain.District) (domain.Report, error) {
	start := time.Now()
	endpoints := a.plan(sel, districts)
	slots := make([]slot, len(endpoints))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.maxInFlight)
	for i, ep := range endpoints {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			env, err := a.fetcher.Fetch(gctx, ep)
			if err != nil {
				slots[i].failure = asFetchError(ep, err)
				return nil
			}
			slots[i].records = normalize.Normalize(ep.Type, env)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return domain.Report{}, fmt.Errorf("aggregate: %w", err)
	}

	report := domain.Report{Result: domain.NewAggregateResult(), Failures: []domain.Failure{}}
	for i, ep := range endpoints {
		if f := slots[i].failure; f != nil {
			report.Failures = append(report.Failures, domain.NewFailure(ep, f))
			a.warn("feed unavailable",
				"district", int(ep.District), "type", string(ep.Type), "kind", string(f.Kind), "error", f)
			continue
		}
		report.Result.Append(ep.Type, slots[i].records...)
		metrics.RecordRecords(string(ep.Type), len(slots[i].records))
	}

	metrics.RecordAggregation(time.Since(start), len(report.Failures))
	a.debug("aggregation finished",
		"selection", sel.String(), "districts", len(districts), "feeds", len(endpoints),
		"records", report.Result.Len(), "failures", len(report.Failures), "elapsed", time.Since(start))

	return report, nil
}

// plan lists the resolvable endpoints in traversal order; absent pairs are skipped silently.
func (a *Aggregator) plan(sel domain.Selection, districts []domain.District) []domain.Endpoint {
	types := sel.Types()
	endpoints := make([]domain.Endpoint, 0, len(types)*len(districts))
	for _, d := range districts {
		for _, t := range types {
			if ep, ok := a.resolver.Resolve(t, d); ok {
				endpoints = append(endpoints, ep)
			}
		}
	}
	return endpoints
}

func asFetchError(ep domain.Endpoint, err error) *domain.FetchError {
	var fetchErr *domain.FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr
	}
	return &domain.FetchError{Kind: domain.FetchTransport, URL: ep.URL, Err: err}
}

func (a *Aggregator) warn(msg string, args ...any) {
	if a.logger == nil {
		return
	}
	a.logger.Warn(msg, args...)
}

func (a *Aggregator) debug(msg string, args ...any) {
	if a.logger == nil {
		return
	}
	a.logger.Debug(msg, args...)
}
