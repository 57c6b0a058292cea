/*
Package eventdb is an embedded, event-time metric store for serving
processes.

Unlike pull-based monitoring, every recorded value carries the timestamp
at which the event occurred. Queries window over event time, so late or
out-of-order arrivals aggregate into the windows their timestamps say
they belong to, and aggregation always runs over the full retained data
rather than a sampled subset.

# Recording

	db, err := eventdb.Open(config.Default())
	if err != nil {
	    log.Fatal(err)
	}
	defer db.Close()

	// Gauge / sample observations
	db.Observe(ctx, "latency", 0.042,
	    eventdb.WithLabels(map[string]string{"route": "/app1"}))

	// Counters keep a running total
	db.Increment(ctx, "requests", 1,
	    eventdb.WithLabels(map[string]string{"code": "200"}))

	// Backfill with an explicit event timestamp
	db.Observe(ctx, "latency", 0.040, eventdb.WithTimestamp(eventTime))

The (name, labels) pair identifies a series. The first write creates it
with a semantic kind (gauge by default, counter via Increment); later
writes with a conflicting kind fail with ErrKindMismatch rather than
silently forking a second series.

# Querying

Queries chain a window selection and one terminal aggregation:

	// Median and p90 latency over the trailing 30 seconds
	ps, err := db.Query("latency", nil).
	    FromDuration(30 * time.Second).
	    Percentiles(ctx, []float64{50, 90})

	// Running total of a counter since the store began
	total, ok, err := db.Query("requests", nil).
	    FromBeginning().
	    Scalar(ctx, query.OpLast)

ok=false distinguishes "nothing observed in the window" from an
aggregate that happens to be zero.

A label filter selects every series whose label set contains it; the
merged terminals aggregate over all of them as one stream, while the
BySeries variants keep them apart:

	perRoute, err := db.Query("latency", map[string]string{"service": "a"}).
	    FromDuration(time.Minute).
	    ScalarBySeries(ctx, query.OpMean)

# Batching

Batch stages writes and commits them in one durable storage write:

	err := db.Batch(ctx, func(b *eventdb.Batch) error {
	    for _, sample := range samples {
	        if err := b.Observe("latency", sample); err != nil {
	            return err
	        }
	    }
	    return nil
	})

# Storage

The store persists through a pluggable backend (pkg/storage): BadgerDB
by default, SQLite when the data should be inspectable with stock
tools, or memory for tests. Acknowledged writes survive a restart on
the durable backends.

# Maintenance

History grows without bound unless bounded by age: configure
retention.max_age to run a background sweeper, or call Prune directly.
Dump and Restore move a store's full contents as JSON snapshots, for
backups and for migrating between backends.
*/
package eventdb
