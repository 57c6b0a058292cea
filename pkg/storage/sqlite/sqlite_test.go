package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nicktill/eventdb/pkg/metrics"
	"github.com/nicktill/eventdb/pkg/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_AppendAndScan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.UnixMicro(1_000_000)

	for _, sec := range []int64{2, 0, 1} {
		err := store.Append(ctx, storage.SeriesPoint{
			SeriesID: 3,
			Point:    metrics.Point{Time: base.Add(time.Duration(sec) * time.Second), Value: float64(sec)},
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	points, err := store.Scan(ctx, 3, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("Expected 3 points, got %d", len(points))
	}
	for i, want := range []float64{0, 1, 2} {
		if points[i].Value != want {
			t.Errorf("point %d: got %v, want %v", i, points[i].Value, want)
		}
	}
}

func TestSQLiteStore_EqualTimestampsKeepArrivalOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ts := time.UnixMicro(42)

	for _, v := range []float64{1, 2, 3} {
		if err := store.Append(ctx, storage.SeriesPoint{SeriesID: 1, Point: metrics.Point{Time: ts, Value: v}}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	points, err := store.Scan(ctx, 1, ts, ts)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("Expected 3 points, got %d", len(points))
	}
	for i, want := range []float64{1, 2, 3} {
		if points[i].Value != want {
			t.Errorf("point %d: got %v, want %v (rowid tie-break lost)", i, points[i].Value, want)
		}
	}
}

func TestSQLiteStore_AppendBatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.UnixMicro(1_000_000)

	batch := make([]storage.SeriesPoint, 0, 10)
	for i := 0; i < 10; i++ {
		batch = append(batch, storage.SeriesPoint{
			SeriesID: 8,
			Point:    metrics.Point{Time: base.Add(time.Duration(i) * time.Millisecond), Value: float64(i)},
		})
	}
	if err := store.AppendBatch(ctx, batch); err != nil {
		t.Fatalf("AppendBatch failed: %v", err)
	}

	points, err := store.Scan(ctx, 8, base, base.Add(time.Second))
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(points) != 10 {
		t.Errorf("Expected 10 points, got %d", len(points))
	}
}

func TestSQLiteStore_LastAndSeries(t *testing.T) {
	store := newTestStore(t)
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

	sr := metrics.Series{
		ID:     1,
		Name:   "reqs",
		Labels: metrics.NewLabelSet(map[string]string{"code": "200"}),
		Kind:   metrics.KindCounter,
	}
	if err := store.PutSeries(ctx, sr); err != nil {
		t.Fatalf("PutSeries failed: %v", err)
	}

	all, err := store.ListSeries(ctx)
	if err != nil {
		t.Fatalf("ListSeries failed: %v", err)
	}
	if len(all) != 1 || all[0].Name != "reqs" || !all[0].Labels.Equal(sr.Labels) {
		t.Errorf("series round trip failed: %+v", all)
	}
}

func TestSQLiteStore_LastAfterBackfill(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	writes := []metrics.Point{
		{Time: time.UnixMicro(10_000_000), Value: 5},
		{Time: time.UnixMicro(5_000_000), Value: 7},
	}
	for _, p := range writes {
		if err := store.Append(ctx, storage.SeriesPoint{SeriesID: 2, Point: p}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	p, ok, err := store.Last(ctx, 2)
	if err != nil || !ok {
		t.Fatalf("Last failed: ok=%v err=%v", ok, err)
	}
	if p.Value != 7 {
		t.Errorf("Last = %v, want 7 (the later write)", p.Value)
	}
}

func TestSQLiteStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.sqlite")
	ctx := context.Background()
	ts := time.UnixMicro(777)

	{
		store, err := New(Config{Path: path})
		if err != nil {
			t.Fatalf("Failed to create storage: %v", err)
		}
		err = store.Append(ctx, storage.SeriesPoint{SeriesID: 4, Point: metrics.Point{Time: ts, Value: 9.5}})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		store.Close()
	}

	{
		store, err := New(Config{Path: path})
		if err != nil {
			t.Fatalf("Failed to reopen storage: %v", err)
		}
		defer store.Close()

		points, err := store.Scan(ctx, 4, time.UnixMicro(0), ts.Add(time.Hour))
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		if len(points) != 1 || points[0].Value != 9.5 {
			t.Fatalf("point lost across restart: %+v", points)
		}
	}
}

func TestSQLiteStore_Stats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := store.Append(ctx, storage.SeriesPoint{
			SeriesID: 1,
			Point:    metrics.Point{Time: time.UnixMicro(int64(i)), Value: 1},
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalPoints != 5 {
		t.Errorf("TotalPoints = %d, want 5", stats.TotalPoints)
	}
}

func TestSQLiteStore_DeleteBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.UnixMicro(1_000_000)

	for _, sec := range []int64{0, 1, 2} {
		err := store.Append(ctx, storage.SeriesPoint{
			SeriesID: 3,
			Point:    metrics.Point{Time: base.Add(time.Duration(sec) * time.Second), Value: float64(sec)},
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	removed, err := store.DeleteBefore(ctx, base.Add(1500*time.Millisecond))
	if err != nil {
		t.Fatalf("DeleteBefore failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	points, err := store.Scan(ctx, 3, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(points) != 1 || points[0].Value != 2 {
		t.Errorf("after delete: %v", points)
	}
}
