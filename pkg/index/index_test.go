package index

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nicktill/eventdb/pkg/metrics"
	"github.com/nicktill/eventdb/pkg/storage/memory"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := Load(context.Background(), memory.New())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return ix
}

func TestIndex_ResolveOrCreateIsStable(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()
	labels := metrics.NewLabelSet(map[string]string{"route": "/app"})

	id1, err := ix.ResolveOrCreate(ctx, "latency", labels, metrics.KindGauge)
	if err != nil {
		t.Fatalf("ResolveOrCreate failed: %v", err)
	}

	id2, err := ix.ResolveOrCreate(ctx, "latency", labels, metrics.KindGauge)
	if err != nil {
		t.Fatalf("ResolveOrCreate failed: %v", err)
	}

	if id1 != id2 {
		t.Errorf("same name+labels resolved to different ids: %d vs %d", id1, id2)
	}
	if ix.Len() != 1 {
		t.Errorf("expected 1 series, got %d", ix.Len())
	}
}

func TestIndex_KindMismatch(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	if _, err := ix.ResolveOrCreate(ctx, "reqs", metrics.LabelSet{}, metrics.KindGauge); err != nil {
		t.Fatalf("ResolveOrCreate failed: %v", err)
	}

	_, err := ix.ResolveOrCreate(ctx, "reqs", metrics.LabelSet{}, metrics.KindCounter)
	if !errors.Is(err, ErrKindMismatch) {
		t.Fatalf("expected ErrKindMismatch, got %v", err)
	}

	// The mismatch must not have created a second series
	if ix.Len() != 1 {
		t.Errorf("kind mismatch silently created a series: %d series", ix.Len())
	}
}

func TestIndex_MatchSubset(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	seed := []map[string]string{
		{"service": "a", "region": "us"},
		{"service": "a", "region": "eu"},
		{"service": "b", "region": "us"},
	}
	for _, m := range seed {
		if _, err := ix.ResolveOrCreate(ctx, "latency", metrics.NewLabelSet(m), metrics.KindGauge); err != nil {
			t.Fatalf("ResolveOrCreate failed: %v", err)
		}
	}

	cases := []struct {
		filter map[string]string
		want   int
	}{
		{map[string]string{"service": "a"}, 2},
		{map[string]string{"service": "b"}, 1},
		{map[string]string{"service": "c"}, 0},
		{map[string]string{"region": "us"}, 2},
		{map[string]string{"service": "a", "region": "eu"}, 1},
		{nil, 3}, // empty filter matches all series under the name
	}
	for _, tc := range cases {
		got := ix.Match("latency", metrics.NewLabelSet(tc.filter))
		if len(got) != tc.want {
			t.Errorf("Match(%v) returned %d series, want %d", tc.filter, len(got), tc.want)
		}
	}

	if got := ix.Match("unknown", metrics.LabelSet{}); len(got) != 0 {
		t.Errorf("Match on unknown name should be empty, got %d", len(got))
	}
}

func TestIndex_ConcurrentFirstWriters(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()
	labels := metrics.NewLabelSet(map[string]string{"host": "h1"})

	ids := make([]uint64, 16)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := ix.ResolveOrCreate(ctx, "cpu", labels, metrics.KindGauge)
			if err != nil {
				t.Errorf("ResolveOrCreate failed: %v", err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(ids); i++ {
		if ids[i] != ids[0] {
			t.Fatalf("concurrent first-writers diverged: %d vs %d", ids[i], ids[0])
		}
	}
	if ix.Len() != 1 {
		t.Errorf("expected exactly one series, got %d", ix.Len())
	}
}

func TestIndex_ReloadFromStorage(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	ix1, err := Load(ctx, store)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	labels := metrics.NewLabelSet(map[string]string{"code": "200"})
	id, err := ix1.ResolveOrCreate(ctx, "reqs", labels, metrics.KindCounter)
	if err != nil {
		t.Fatalf("ResolveOrCreate failed: %v", err)
	}

	// A fresh index over the same store must see the series
	ix2, err := Load(ctx, store)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	sr, ok := ix2.Get(id)
	if !ok {
		t.Fatalf("series %d not found after reload", id)
	}
	if sr.Kind != metrics.KindCounter || !sr.Labels.Equal(labels) {
		t.Errorf("series metadata corrupted across reload: %+v", sr)
	}
}

func TestIndex_ReloadPicksUpBulkWrites(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	ix, err := Load(ctx, store)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Series written to storage behind the index's back, as a snapshot
	// restore does
	labels := metrics.NewLabelSet(map[string]string{"route": "/a"})
	sr := metrics.Series{
		ID:     metrics.SeriesID("lat", labels),
		Name:   "lat",
		Labels: labels,
		Kind:   metrics.KindGauge,
	}
	if err := store.PutSeries(ctx, sr); err != nil {
		t.Fatalf("PutSeries failed: %v", err)
	}

	if got := len(ix.Match("lat", metrics.LabelSet{})); got != 0 {
		t.Fatalf("index saw unloaded series: %d matches", got)
	}
	if err := ix.Reload(ctx); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if got := len(ix.Match("lat", metrics.LabelSet{})); got != 1 {
		t.Errorf("matches after reload = %d, want 1", got)
	}
}
