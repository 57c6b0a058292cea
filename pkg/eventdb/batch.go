package eventdb

import (
	"context"
	"fmt"

	"github.com/nicktill/eventdb/pkg/metrics"
	"github.com/nicktill/eventdb/pkg/storage"
)

// Batch stages observations for a single storage commit. Useful for
// high-frequency recording where per-point write acknowledgement costs
// too much.
type Batch struct {
	db     *DB
	ctx    context.Context
	points []storage.SeriesPoint
	staged map[uint64]float64
}

// Batch runs fn with a staging batch and commits every point it recorded
// in one storage write. If fn returns an error no points are written and
// counter totals do not advance; series metadata created while staging is
// persisted immediately and survives the abort. The whole batch holds the
// counter lock, so batches with many slow operations will stall concurrent
// Increment calls.
func (db *DB) Batch(ctx context.Context, fn func(*Batch) error) error {
	b := &Batch{
		db:     db,
		ctx:    ctx,
		staged: make(map[uint64]float64),
	}

	db.counterMu.Lock()
	defer db.counterMu.Unlock()

	if err := fn(b); err != nil {
		return err
	}
	if len(b.points) == 0 {
		return nil
	}

	if err := db.store.AppendBatch(ctx, b.points); err != nil {
		return err
	}
	for id, total := range b.staged {
		db.lastVals[id] = total
	}
	return nil
}

// Observe stages one sample; see DB.Observe.
func (b *Batch) Observe(name string, value float64, opts ...ObserveOption) error {
	s := applyOptions(opts)
	if s.kind == metrics.KindCounter {
		return fmt.Errorf("%w: use Increment for counter series %q", ErrKindMismatch, name)
	}
	if !s.kind.Valid() {
		return fmt.Errorf("invalid metric kind %q", s.kind)
	}

	id, err := b.db.index.ResolveOrCreate(b.ctx, name, s.labels, s.kind)
	if err != nil {
		return err
	}

	b.points = append(b.points, storage.SeriesPoint{
		SeriesID: id,
		Point:    metrics.Point{Time: s.at, Value: value},
	})
	return nil
}

// Increment stages one counter delta; see DB.Increment. Deltas staged
// earlier in the same batch feed later ones.
func (b *Batch) Increment(name string, delta float64, opts ...ObserveOption) error {
	s := applyOptions(opts)

	id, err := b.db.index.ResolveOrCreate(b.ctx, name, s.labels, metrics.KindCounter)
	if err != nil {
		return err
	}

	base, ok := b.staged[id]
	if !ok {
		base, err = b.db.counterBase(b.ctx, id)
		if err != nil {
			return err
		}
	}

	total := base + delta
	b.points = append(b.points, storage.SeriesPoint{
		SeriesID: id,
		Point:    metrics.Point{Time: s.at, Value: total},
	})
	b.staged[id] = total
	return nil
}
