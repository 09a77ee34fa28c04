package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrafficFeeds/internal/catalog"
	"TrafficFeeds/internal/domain"
	"TrafficFeeds/internal/infrastructure/fetcher"
)

type stubFetcher struct {
	mu      sync.Mutex
	calls   []domain.Endpoint
	respond func(ctx context.Context, ep domain.Endpoint) (domain.Envelope, error)
}

func (s *stubFetcher) Fetch(ctx context.Context, ep domain.Endpoint) (domain.Envelope, error) {
	s.mu.Lock()
	s.calls = append(s.calls, ep)
	s.mu.Unlock()
	if s.respond == nil {
		return domain.Envelope{}, nil
	}
	return s.respond(ctx, ep)
}

func (s *stubFetcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// twoRecords answers every endpoint with records indexed "<district>-1" and "<district>-2".
func twoRecords(_ context.Context, ep domain.Endpoint) (domain.Envelope, error) {
	env := domain.Envelope{}
	for i := 1; i <= 2; i++ {
		env.Data = append(env.Data, json.RawMessage(fmt.Sprintf(`{%q:{"index":"%d-%d"}}`, ep.Type, ep.District, i)))
	}
	return env, nil
}

func indexes(records []domain.TaggedRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Payload.RecordIndex().String())
	}
	return out
}

func newTestAggregator(f *stubFetcher) *Aggregator {
	return NewAggregator(AggregatorDeps{Resolver: catalog.NewResolver(""), Fetcher: f})
}

func TestAggregateEmptySelection(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{respond: twoRecords}
	report, err := newTestAggregator(f).Aggregate(context.Background(), domain.Select(), []domain.District{3, 8})
	require.NoError(t, err)

	require.Len(t, report.Result, 6)
	require.True(t, report.Result.Empty())
	require.Empty(t, report.Failures)
	require.Zero(t, f.callCount())
}

func TestAggregateSkipsUnpublishedPair(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{respond: twoRecords}
	report, err := newTestAggregator(f).Aggregate(context.Background(), domain.Select(domain.RoadWeather), []domain.District{1})
	require.NoError(t, err)

	require.Empty(t, report.Result.Bucket(domain.RoadWeather))
	require.Empty(t, report.Failures)
	require.Zero(t, f.callCount())
}

func TestAggregateIsolatesTransportFailure(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{respond: func(ctx context.Context, ep domain.Endpoint) (domain.Envelope, error) {
		if ep.Type == domain.ChainControl && ep.District == 2 {
			return domain.Envelope{}, &domain.FetchError{Kind: domain.FetchTransport, URL: ep.URL, Err: errors.New("connection reset")}
		}
		return twoRecords(ctx, ep)
	}}

	sel := domain.Select(domain.ChainControl, domain.CCTV, domain.TravelTime)
	report, err := newTestAggregator(f).Aggregate(context.Background(), sel, []domain.District{2, 3})
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	failure := report.Failures[0]
	assert.Equal(t, domain.District(2), failure.District)
	assert.Equal(t, domain.ChainControl, failure.Type)
	assert.Equal(t, domain.FetchTransport, failure.Kind)
	assert.Contains(t, failure.URL, "ccStatusD02.json")

	assert.Equal(t, []string{"3-1", "3-2"}, indexes(report.Result.Bucket(domain.ChainControl)))
	assert.Equal(t, []string{"2-1", "2-2", "3-1", "3-2"}, indexes(report.Result.Bucket(domain.CCTV)))
	assert.Equal(t, []string{"3-1", "3-2"}, indexes(report.Result.Bucket(domain.TravelTime)))
	assert.Equal(t, 5, f.callCount())
}

func TestAggregateOrderIgnoresCompletionOrder(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{respond: func(ctx context.Context, ep domain.Endpoint) (domain.Envelope, error) {
		if ep.District == 3 {
			select {
			case <-time.After(60 * time.Millisecond):
			case <-ctx.Done():
				return domain.Envelope{}, ctx.Err()
			}
		}
		return twoRecords(ctx, ep)
	}}

	report, err := newTestAggregator(f).Aggregate(context.Background(), domain.Select(domain.TravelTime), []domain.District{3, 8})
	require.NoError(t, err)
	require.Equal(t, []string{"3-1", "3-2", "8-1", "8-2"}, indexes(report.Result.Bucket(domain.TravelTime)))

	report, err = newTestAggregator(f).Aggregate(context.Background(), domain.Select(domain.TravelTime), []domain.District{8, 3})
	require.NoError(t, err)
	require.Equal(t, []string{"8-1", "8-2", "3-1", "3-2"}, indexes(report.Result.Bucket(domain.TravelTime)))
}

func TestAggregateIsIdempotent(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{respond: twoRecords}
	agg := newTestAggregator(f)
	sel, err := domain.SelectionFromMask(63)
	require.NoError(t, err)
	districts := []domain.District{11, 3, 8}

	first, err := agg.Aggregate(context.Background(), sel, districts)
	require.NoError(t, err)
	second, err := agg.Aggregate(context.Background(), sel, districts)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	require.JSONEq(t, string(a), string(b))
	require.Equal(t, first.Result.Counts(), second.Result.Counts())
}

func TestAggregateRespectsInFlightLimit(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	f := &stubFetcher{respond: func(ctx context.Context, ep domain.Endpoint) (domain.Envelope, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return domain.Envelope{}, nil
	}}

	agg := NewAggregator(AggregatorDeps{Resolver: catalog.NewResolver(""), Fetcher: f, MaxInFlight: 2})
	sel, _ := domain.SelectionFromMask(63)
	_, err := agg.Aggregate(context.Background(), sel, []domain.District{1, 2, 3, 4})
	require.NoError(t, err)

	require.LessOrEqual(t, peak.Load(), int32(2))
	require.Equal(t, 18, f.callCount())
}

func TestAggregateWrapsForeignErrorsAsTransport(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{respond: func(context.Context, domain.Endpoint) (domain.Envelope, error) {
		return domain.Envelope{}, errors.New("boom")
	}}

	report, err := newTestAggregator(f).Aggregate(context.Background(), domain.Select(domain.CCTV), []domain.District{5})
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	require.Equal(t, domain.FetchTransport, report.Failures[0].Kind)
}

func TestAggregateCancelledReturnsNoResult(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	f := &stubFetcher{respond: func(ctx context.Context, ep domain.Endpoint) (domain.Envelope, error) {
		cancel()
		<-ctx.Done()
		return domain.Envelope{}, &domain.FetchError{Kind: domain.FetchTransport, URL: ep.URL, Err: ctx.Err()}
	}}

	report, err := newTestAggregator(f).Aggregate(ctx, domain.Select(domain.CCTV, domain.MessageSign), []domain.District{1, 2})
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, report.Result)
	require.Nil(t, report.Failures)
}

func TestAggregateDecodeFailureOverHTTP(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/cmsStatusD04.json"):
			_, _ = w.Write([]byte(`{"data":[{"cms":`))
		case strings.HasSuffix(r.URL.Path, "/lcsStatusD04.json"):
			http.Error(w, "gone", http.StatusGone)
		default:
			_, _ = w.Write([]byte(`{"data":[{"x":{"index":"1"}}]}`))
		}
	}))
	defer server.Close()

	agg := NewAggregator(AggregatorDeps{
		Resolver: catalog.NewResolver(server.URL),
		Fetcher:  fetcher.NewHTTPFetcher(server.Client(), fetcher.Options{}, nil),
	})

	sel := domain.Select(domain.CCTV, domain.MessageSign, domain.LaneClosure)
	report, err := agg.Aggregate(context.Background(), sel, []domain.District{4, 5})
	require.NoError(t, err)

	require.Len(t, report.Failures, 2)
	assert.Equal(t, domain.MessageSign, report.Failures[0].Type)
	assert.Equal(t, domain.FetchDecode, report.Failures[0].Kind)
	assert.Equal(t, domain.LaneClosure, report.Failures[1].Type)
	assert.Equal(t, domain.FetchBadStatus, report.Failures[1].Kind)
	assert.Equal(t, http.StatusGone, report.Failures[1].Status)

	assert.Len(t, report.Result.Bucket(domain.CCTV), 2)
	assert.Len(t, report.Result.Bucket(domain.MessageSign), 1)
	assert.Len(t, report.Result.Bucket(domain.LaneClosure), 1)
}
