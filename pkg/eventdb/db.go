package eventdb

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nicktill/eventdb/pkg/config"
	"github.com/nicktill/eventdb/pkg/export"
	"github.com/nicktill/eventdb/pkg/index"
	"github.com/nicktill/eventdb/pkg/metrics"
	"github.com/nicktill/eventdb/pkg/query"
	"github.com/nicktill/eventdb/pkg/retention"
	"github.com/nicktill/eventdb/pkg/storage"
	badgerstore "github.com/nicktill/eventdb/pkg/storage/badger"
	memorystore "github.com/nicktill/eventdb/pkg/storage/memory"
	sqlitestore "github.com/nicktill/eventdb/pkg/storage/sqlite"
)

// Error aliases so callers can match the whole taxonomy with one import.
var (
	ErrKindMismatch       = index.ErrKindMismatch
	ErrStorageUnavailable = storage.ErrUnavailable
	ErrInvalidWindow      = query.ErrInvalidWindow
	ErrInvalidAggregation = query.ErrInvalidAggregation
)

// DB is an open event-time metric store. All operations go through an
// explicit handle; there is no ambient global connection. A DB is safe
// for concurrent use by multiple goroutines.
type DB struct {
	store storage.Store
	index *index.Index
	log   *slog.Logger

	// counterMu serializes counter read-modify-write cycles so two
	// concurrent increments never compute from the same base value.
	counterMu sync.Mutex
	lastVals  map[uint64]float64

	// Background retention sweeper lifecycle, nil when retention is
	// disabled.
	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// Open creates or reopens a metric store described by cfg.
func Open(cfg config.Config) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	ix, err := index.Load(context.Background(), store)
	if err != nil {
		store.Close()
		return nil, err
	}

	log := slog.Default().With("component", "eventdb")
	log.Info("store opened", "backend", cfg.Backend, "path", cfg.Path, "series", ix.Len())

	db := &DB{
		store:    store,
		index:    ix,
		log:      log,
		lastVals: make(map[uint64]float64),
	}

	if maxAge := time.Duration(cfg.Retention.MaxAge); maxAge > 0 {
		sweeper, err := retention.New(store, retention.Config{
			MaxAge:   maxAge,
			Interval: time.Duration(cfg.Retention.SweepInterval),
		})
		if err != nil {
			store.Close()
			return nil, err
		}

		ctx, cancel := context.WithCancel(context.Background())
		db.sweepCancel = cancel
		db.sweepDone = make(chan struct{})
		go func() {
			defer close(db.sweepDone)
			sweeper.Run(ctx)
		}()
	}

	return db, nil
}

func openStore(cfg config.Config) (storage.Store, error) {
	switch cfg.Backend {
	case config.BackendBadger:
		return badgerstore.New(badgerstore.Config{
			Path:        cfg.Path,
			InMemory:    cfg.Badger.InMemory,
			MaxMemoryMB: cfg.Badger.MaxMemoryMB,
		})
	case config.BackendSQLite:
		return sqlitestore.New(sqlitestore.Config{
			Path:        cfg.Path,
			Synchronous: cfg.SQLite.Synchronous,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})
	case config.BackendMemory:
		return memorystore.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Close stops background work and shuts down the underlying storage.
func (db *DB) Close() error {
	db.log.Info("store closing")
	if db.sweepCancel != nil {
		db.sweepCancel()
		<-db.sweepDone
	}
	return db.store.Close()
}

// ObserveOption adjusts a single observation.
type ObserveOption func(*observeSettings)

type observeSettings struct {
	labels metrics.LabelSet
	at     time.Time
	kind   metrics.Kind
}

// WithLabels attaches key/value labels identifying the series.
func WithLabels(labels map[string]string) ObserveOption {
	return func(s *observeSettings) { s.labels = metrics.NewLabelSet(labels) }
}

// WithTimestamp overrides the event time, which otherwise defaults to
// the wall clock at the call. Backfill uses this.
func WithTimestamp(t time.Time) ObserveOption {
	return func(s *observeSettings) { s.at = t }
}

// WithKind sets the sample kind for Observe (gauge by default,
// histogram-sample and summary-sample also allowed). Increment ignores
// this option: counters are always counters.
func WithKind(k metrics.Kind) ObserveOption {
	return func(s *observeSettings) { s.kind = k }
}

func applyOptions(opts []ObserveOption) observeSettings {
	s := observeSettings{at: time.Now(), kind: metrics.KindGauge}
	for _, o := range opts {
		o(&s)
	}
	return s
}

// Observe records one sample of a gauge, histogram, or summary series.
// The (name, labels) pair identifies the series; the first observation
// creates it with the given kind, later observations must keep it.
func (db *DB) Observe(ctx context.Context, name string, value float64, opts ...ObserveOption) error {
	s := applyOptions(opts)
	if s.kind == metrics.KindCounter {
		return fmt.Errorf("%w: use Increment for counter series %q", ErrKindMismatch, name)
	}
	if !s.kind.Valid() {
		return fmt.Errorf("invalid metric kind %q", s.kind)
	}

	id, err := db.index.ResolveOrCreate(ctx, name, s.labels, s.kind)
	if err != nil {
		return err
	}

	return db.store.Append(ctx, storage.SeriesPoint{
		SeriesID: id,
		Point:    metrics.Point{Time: s.at, Value: value},
	})
}

// Increment adds delta to the running total of a counter series and
// appends the new total as a point. Negative deltas decrement. The
// running total survives reopening the store: a counter resumes from
// its last stored value.
func (db *DB) Increment(ctx context.Context, name string, delta float64, opts ...ObserveOption) error {
	s := applyOptions(opts)

	id, err := db.index.ResolveOrCreate(ctx, name, s.labels, metrics.KindCounter)
	if err != nil {
		return err
	}

	db.counterMu.Lock()
	defer db.counterMu.Unlock()

	base, err := db.counterBase(ctx, id)
	if err != nil {
		return err
	}

	total := base + delta
	err = db.store.Append(ctx, storage.SeriesPoint{
		SeriesID: id,
		Point:    metrics.Point{Time: s.at, Value: total},
	})
	if err != nil {
		return err
	}

	db.lastVals[id] = total
	return nil
}

// counterBase returns the running total to add the next delta to,
// consulting storage on the first increment after open. Callers hold
// counterMu.
func (db *DB) counterBase(ctx context.Context, id uint64) (float64, error) {
	if v, ok := db.lastVals[id]; ok {
		return v, nil
	}
	p, ok, err := db.store.Last(ctx, id)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	db.lastVals[id] = p.Value
	return p.Value, nil
}

// Stats reports storage statistics.
func (db *DB) Stats(ctx context.Context) (*storage.Stats, error) {
	return db.store.Stats(ctx)
}

// Prune removes every point older than before, across all series, and
// reports how many were removed. Series stay queryable; their emptied
// windows just hold no data. Counter running totals are unaffected
// until the store reopens.
func (db *DB) Prune(ctx context.Context, before time.Time) (uint64, error) {
	removed, err := db.store.DeleteBefore(ctx, before)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		db.log.Info("pruned points", "removed", removed, "before", before)
	}
	return removed, nil
}

// Dump writes the store's full contents to w as a JSON snapshot that
// Restore can load.
func (db *DB) Dump(ctx context.Context, w io.Writer) (*export.Result, error) {
	return export.NewExporter(db.store).ExportJSON(ctx, w)
}

// DumpCSV writes every stored point to w as flat CSV rows.
func (db *DB) DumpCSV(ctx context.Context, w io.Writer) (*export.Result, error) {
	return export.NewExporter(db.store).ExportCSV(ctx, w)
}

// Restore loads a JSON snapshot from r into the store, then rebuilds
// the label index and counter caches to include the restored series.
// Restore must not run concurrently with writers.
func (db *DB) Restore(ctx context.Context, r io.Reader) (*export.ImportResult, error) {
	res, err := export.NewImporter(db.store).ImportJSON(ctx, r)
	if err != nil {
		return nil, err
	}
	if err := db.index.Reload(ctx); err != nil {
		return nil, err
	}

	// Restored counters resume from their stored totals, not stale
	// cached ones.
	db.counterMu.Lock()
	db.lastVals = make(map[uint64]float64)
	db.counterMu.Unlock()

	db.log.Info("snapshot restored", "series", res.SeriesImported, "points", res.PointsImported)
	return res, nil
}
