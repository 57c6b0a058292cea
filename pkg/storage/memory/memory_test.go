package memory

import (
	"context"
	"testing"
	"time"

	"github.com/nicktill/eventdb/pkg/metrics"
	"github.com/nicktill/eventdb/pkg/storage"
)

func TestMemoryStore_ScanOrdersOutOfOrderWrites(t *testing.T) {
	store := New()
	defer store.Close()

	ctx := context.Background()
	base := time.UnixMicro(1_000_000)

	// Write out of temporal order
	for _, sec := range []int64{3, 1, 2} {
		err := store.Append(ctx, storage.SeriesPoint{
			SeriesID: 7,
			Point:    metrics.Point{Time: base.Add(time.Duration(sec) * time.Second), Value: float64(sec)},
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	points, err := store.Scan(ctx, 7, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("Expected 3 points, got %d", len(points))
	}
	for i, want := range []float64{1, 2, 3} {
		if points[i].Value != want {
			t.Errorf("point %d: got %v, want %v", i, points[i].Value, want)
		}
	}
}

func TestMemoryStore_ScanBoundariesInclusive(t *testing.T) {
	store := New()
	defer store.Close()

	ctx := context.Background()
	start := time.UnixMicro(10_000_000)
	end := time.UnixMicro(20_000_000)

	for _, ts := range []time.Time{start, end, start.Add(-time.Microsecond), end.Add(time.Microsecond)} {
		if err := store.Append(ctx, storage.SeriesPoint{SeriesID: 1, Point: metrics.Point{Time: ts, Value: 1}}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	points, err := store.Scan(ctx, 1, start, end)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(points) != 2 {
		t.Errorf("Expected both boundary points and only those, got %d points", len(points))
	}
}

func TestMemoryStore_ScanUnknownSeriesIsEmpty(t *testing.T) {
	store := New()
	defer store.Close()

	points, err := store.Scan(context.Background(), 999, time.UnixMicro(0), time.Now())
	if err != nil {
		t.Fatalf("Scan of unknown series must not error: %v", err)
	}
	if len(points) != 0 {
		t.Errorf("Expected empty result, got %d points", len(points))
	}
}

func TestMemoryStore_EqualTimestampsKeepArrivalOrder(t *testing.T) {
	store := New()
	defer store.Close()

	ctx := context.Background()
	ts := time.UnixMicro(5_000_000)

	for _, v := range []float64{10, 20, 30} {
		if err := store.Append(ctx, storage.SeriesPoint{SeriesID: 2, Point: metrics.Point{Time: ts, Value: v}}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	points, err := store.Scan(ctx, 2, ts, ts)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	for i, want := range []float64{10, 20, 30} {
		if points[i].Value != want {
			t.Errorf("point %d: got %v, want %v (arrival order lost)", i, points[i].Value, want)
		}
	}
}

func TestMemoryStore_Last(t *testing.T) {
	store := New()
	defer store.Close()

	ctx := context.Background()

	if _, ok, err := store.Last(ctx, 1); err != nil || ok {
		t.Fatalf("Last on empty series: ok=%v err=%v", ok, err)
	}

	for i := 1; i <= 3; i++ {
		err := store.Append(ctx, storage.SeriesPoint{
			SeriesID: 1,
			Point:    metrics.Point{Time: time.UnixMicro(int64(i)), Value: float64(i)},
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	p, ok, err := store.Last(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("Last failed: ok=%v err=%v", ok, err)
	}
	if p.Value != 3 {
		t.Errorf("Last = %v, want 3", p.Value)
	}
}

func TestMemoryStore_LastAfterBackfill(t *testing.T) {
	store := New()
	defer store.Close()

	ctx := context.Background()

	writes := []metrics.Point{
		{Time: time.UnixMicro(10_000_000), Value: 5},
		{Time: time.UnixMicro(5_000_000), Value: 7},
	}
	for _, p := range writes {
		if err := store.Append(ctx, storage.SeriesPoint{SeriesID: 1, Point: p}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	p, ok, err := store.Last(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("Last failed: ok=%v err=%v", ok, err)
	}
	if p.Value != 7 {
		t.Errorf("Last = %v, want 7 (the later write)", p.Value)
	}
}

func TestMemoryStore_SeriesMetadata(t *testing.T) {
	store := New()
	defer store.Close()

	ctx := context.Background()
	sr := metrics.Series{
		ID:     42,
		Name:   "latency",
		Labels: metrics.NewLabelSet(map[string]string{"route": "/app"}),
		Kind:   metrics.KindGauge,
	}
	if err := store.PutSeries(ctx, sr); err != nil {
		t.Fatalf("PutSeries failed: %v", err)
	}

	all, err := store.ListSeries(ctx)
	if err != nil {
		t.Fatalf("ListSeries failed: %v", err)
	}
	if len(all) != 1 || all[0].ID != 42 || all[0].Kind != metrics.KindGauge {
		t.Errorf("unexpected series list: %+v", all)
	}
	if !all[0].Labels.Equal(sr.Labels) {
		t.Errorf("labels lost in round trip: %v", all[0].Labels)
	}
}
