package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Feed fetches
	FeedFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trafficfeeds_fetch_duration_seconds",
			Help:    "Duration of single CWWP2 feed fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	FeedFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trafficfeeds_fetch_total",
			Help: "Total number of feed fetches by outcome",
		},
		[]string{"type", "outcome"}, // "ok", "transport", "bad_status", "decode"
	)

	FeedRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trafficfeeds_records_total",
			Help: "Total number of records normalized per data type",
		},
		[]string{"type"},
	)

	// Aggregation
	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trafficfeeds_aggregation_duration_seconds",
			Help:    "Duration of complete aggregation calls in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		},
	)

	AggregationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trafficfeeds_aggregation_failures_total",
			Help: "Total number of per-feed failures recorded in aggregation failure logs",
		},
	)

	RefreshSuperseded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trafficfeeds_refresh_superseded_total",
			Help: "Total number of refreshes cancelled by a newer one",
		},
	)

	SnapshotGeneration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trafficfeeds_snapshot_generation",
			Help: "Generation of the latest published snapshot",
		},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trafficfeeds_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trafficfeeds_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordFetch records one feed fetch; outcome is "ok" or a fetch error kind.
func RecordFetch(dataType, outcome string, duration time.Duration) {
	FeedFetchDuration.WithLabelValues(dataType).Observe(duration.Seconds())
	FeedFetchTotal.WithLabelValues(dataType, outcome).Inc()
}

// RecordRecords counts normalized records for a type.
func RecordRecords(dataType string, n int) {
	if n <= 0 {
		return
	}
	FeedRecords.WithLabelValues(dataType).Add(float64(n))
}

// RecordAggregation records a finished aggregation call.
func RecordAggregation(duration time.Duration, failures int) {
	AggregationDuration.Observe(duration.Seconds())
	if failures > 0 {
		AggregationFailures.Add(float64(failures))
	}
}

// RecordSuperseded counts a refresh that lost to a newer one.
func RecordSuperseded() {
	RefreshSuperseded.Inc()
}

// SetSnapshotGeneration exposes the latest published generation.
func SetSnapshotGeneration(generation uint64) {
	SnapshotGeneration.Set(float64(generation))
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
