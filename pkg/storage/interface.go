package storage

import (
	"context"
	"time"

	"github.com/nicktill/eventdb/pkg/metrics"
)

// Store defines the interface for point storage backends.
// Implementations: memory (testing), badger (default durable), sqlite
type Store interface {
	// Append durably stores one point. The point is on the medium
	// before Append returns.
	Append(ctx context.Context, p SeriesPoint) error

	// AppendBatch durably stores a group of points in one write.
	AppendBatch(ctx context.Context, ps []SeriesPoint) error

	// Scan returns the points of one series with start <= t <= end,
	// ordered by ascending timestamp regardless of write order. Ties on
	// equal timestamps keep arrival order. An unknown series yields an
	// empty result, not an error.
	Scan(ctx context.Context, seriesID uint64, start, end time.Time) ([]metrics.Point, error)

	// Last returns the most recently written point of a series, or
	// ok=false if the series holds no points.
	Last(ctx context.Context, seriesID uint64) (p metrics.Point, ok bool, err error)

	// PutSeries persists series metadata so the label index can be
	// rebuilt on reopen.
	PutSeries(ctx context.Context, s metrics.Series) error

	// ListSeries returns all persisted series metadata.
	ListSeries(ctx context.Context) ([]metrics.Series, error)

	// DeleteBefore removes every point with t < before across all
	// series and reports how many points were removed. Series metadata
	// stays so emptied series remain queryable.
	DeleteBefore(ctx context.Context, before time.Time) (uint64, error)

	// Stats returns storage statistics
	Stats(ctx context.Context) (*Stats, error)

	// Close cleanly shuts down the backend
	Close() error
}

// SeriesPoint couples a point with the series it belongs to.
type SeriesPoint struct {
	SeriesID uint64
	Point    metrics.Point
}

// Stats provides storage health and usage info
type Stats struct {
	// Total points stored
	TotalPoints uint64

	// Unique time series
	TotalSeries uint64

	// Storage size in bytes (backend estimate)
	SizeBytes uint64

	// Oldest point timestamp
	OldestPoint time.Time

	// Newest point timestamp
	NewestPoint time.Time
}
