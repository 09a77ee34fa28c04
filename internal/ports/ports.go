package ports

import (
	"context"
	"time"

	"TrafficFeeds/internal/domain"
)

// EndpointResolver maps a (type, district) pair to a feed address.
type EndpointResolver interface {
	Resolve(t domain.DataType, d domain.District) (domain.Endpoint, bool)
}

// FeedFetcher retrieves one feed envelope. Errors are *domain.FetchError.
type FeedFetcher interface {
	Fetch(ctx context.Context, ep domain.Endpoint) (domain.Envelope, error)
}

// Aggregator collects every selected feed across the given districts.
type Aggregator interface {
	Aggregate(ctx context.Context, sel domain.Selection, districts []domain.District) (domain.Report, error)
}

// SnapshotStore keeps the latest published snapshot in memory.
type SnapshotStore interface {
	Publish(snap domain.Snapshot) bool
	Latest() (domain.Snapshot, bool)
}

// Exporter writes a snapshot to some sink (file, stdout, ...).
type Exporter interface {
	Export(ctx context.Context, snap domain.Snapshot) error
}

// Scheduler controls when refreshes execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
