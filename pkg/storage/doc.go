/*
Package storage provides the pluggable point-store abstraction for eventdb.

# Store Interface

eventdb uses an interface-based design to support multiple backends:
  - memory: In-memory storage for testing and ephemeral workloads
  - badger: BadgerDB (LSM tree + Snappy compression), the default durable backend
  - sqlite: SQLite file database, handy when data should be inspectable with stock tools

All backends implement the Store interface:

	type Store interface {
	    Append(ctx context.Context, p SeriesPoint) error
	    AppendBatch(ctx context.Context, ps []SeriesPoint) error
	    Scan(ctx context.Context, seriesID uint64, start, end time.Time) ([]metrics.Point, error)
	    Last(ctx context.Context, seriesID uint64) (metrics.Point, bool, error)
	    PutSeries(ctx context.Context, s metrics.Series) error
	    ListSeries(ctx context.Context) ([]metrics.Series, error)
	    Stats(ctx context.Context) (*Stats, error)
	    Close() error
	}

# Ordering Guarantees

Points are keyed by (series, event timestamp, arrival sequence). Scan always
returns ascending event time, merging points that arrived out of temporal
order; equal timestamps fall back to arrival order. This is what makes
event-time windowing exact: a backfilled point lands in the window its
timestamp says it belongs to, not the window it happened to arrive in.

# Durability

Append and AppendBatch acknowledge only after the backend has committed the
write (badger runs with sync writes, sqlite in WAL mode). A failed or
unreachable medium surfaces as ErrUnavailable on the triggering call:

	if errors.Is(err, storage.ErrUnavailable) {
	    // medium gone; caller decides whether to retry
	}

# Usage Example

	store, err := badger.New(badger.Config{Path: "./data"})
	if err != nil {
	    log.Fatal(err)
	}
	defer store.Close()

	err = store.Append(ctx, storage.SeriesPoint{
	    SeriesID: id,
	    Point:    metrics.Point{Time: time.Now(), Value: 75.5},
	})

	points, err := store.Scan(ctx, id, start, end)

# See Also

  - memory.New() for in-memory storage
  - badger.New() for the persistent BadgerDB backend
  - sqlite.New() for the SQLite backend
*/
package storage
