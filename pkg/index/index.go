// Package index maintains the mapping between (metric name, label set)
// pairs and series identifiers, and answers multidimensional label-match
// queries. The authoritative copy of series metadata lives in storage;
// the index is an in-memory view rebuilt at open.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nicktill/eventdb/pkg/metrics"
	"github.com/nicktill/eventdb/pkg/storage"
)

// ErrKindMismatch reports that a series was re-observed with a semantic
// kind different from the one it was created with. The conflicting
// write is rejected; the series itself stays intact.
var ErrKindMismatch = errors.New("metric kind mismatch")

// Index resolves and matches series.
type Index struct {
	store storage.Store

	mu     sync.RWMutex
	series map[uint64]metrics.Series
	byName map[string][]uint64
}

// Load builds an index from the series metadata persisted in store.
func Load(ctx context.Context, store storage.Store) (*Index, error) {
	ix := &Index{
		store:  store,
		series: make(map[uint64]metrics.Series),
		byName: make(map[string][]uint64),
	}

	persisted, err := store.ListSeries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load series metadata: %w", err)
	}
	for _, sr := range persisted {
		ix.series[sr.ID] = sr
		ix.byName[sr.Name] = append(ix.byName[sr.Name], sr.ID)
	}
	return ix, nil
}

// Reload replaces the in-memory view with the series metadata currently
// persisted in storage. Used after bulk restores that bypass
// ResolveOrCreate.
func (ix *Index) Reload(ctx context.Context) error {
	persisted, err := ix.store.ListSeries(ctx)
	if err != nil {
		return fmt.Errorf("failed to load series metadata: %w", err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.series = make(map[uint64]metrics.Series, len(persisted))
	ix.byName = make(map[string][]uint64)
	for _, sr := range persisted {
		ix.series[sr.ID] = sr
		ix.byName[sr.Name] = append(ix.byName[sr.Name], sr.ID)
	}
	return nil
}

// ResolveOrCreate returns the series id for (name, labels), creating
// and persisting the series on first use. Creation is atomic: two
// concurrent first-writers converge on the same id. A pair that exists
// with a different kind fails with ErrKindMismatch.
func (ix *Index) ResolveOrCreate(ctx context.Context, name string, labels metrics.LabelSet, kind metrics.Kind) (uint64, error) {
	id := metrics.SeriesID(name, labels)

	ix.mu.RLock()
	existing, ok := ix.series[id]
	ix.mu.RUnlock()
	if ok {
		if existing.Kind != kind {
			return 0, fmt.Errorf("%w: series %q%s is %s, not %s",
				ErrKindMismatch, name, labels, existing.Kind, kind)
		}
		return id, nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	// Re-check under the write lock: another writer may have created
	// the series between the two lock acquisitions.
	if existing, ok := ix.series[id]; ok {
		if existing.Kind != kind {
			return 0, fmt.Errorf("%w: series %q%s is %s, not %s",
				ErrKindMismatch, name, labels, existing.Kind, kind)
		}
		return id, nil
	}

	sr := metrics.Series{ID: id, Name: name, Labels: labels, Kind: kind}
	if err := ix.store.PutSeries(ctx, sr); err != nil {
		return 0, err
	}

	ix.series[id] = sr
	ix.byName[name] = append(ix.byName[name], id)
	return id, nil
}

// Match returns every series under name whose label set is a superset
// of filter. An empty filter matches all series of the name. The result
// is sorted by canonical label form for deterministic output.
func (ix *Index) Match(name string, filter metrics.LabelSet) []metrics.Series {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []metrics.Series
	for _, id := range ix.byName[name] {
		sr := ix.series[id]
		if sr.Labels.Contains(filter) {
			out = append(out, sr)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Labels.Canonical() < out[j].Labels.Canonical()
	})
	return out
}

// Get returns the series with the given id.
func (ix *Index) Get(id uint64) (metrics.Series, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	sr, ok := ix.series[id]
	return sr, ok
}

// Len returns the number of known series.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	return len(ix.series)
}
