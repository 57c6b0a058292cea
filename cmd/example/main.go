// Command example records simulated request latencies into a temporary
// store and reads them back with windowed queries: trailing-window
// percentiles while traffic runs, then a final summary with histogram
// buckets and per-route totals.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/nicktill/eventdb/pkg/config"
	"github.com/nicktill/eventdb/pkg/eventdb"
	"github.com/nicktill/eventdb/pkg/metrics"
	"github.com/nicktill/eventdb/pkg/query"
)

var routes = []string{"/", "/api/users", "/api/orders"}

func main() {
	dir, err := os.MkdirTemp("", "eventdb-example")
	if err != nil {
		log.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	cfg := config.Default()
	cfg.Backend = config.BackendSQLite
	cfg.Path = filepath.Join(dir, "metrics.sqlite")

	db, err := eventdb.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	// Simulate traffic. Each simulated request records its latency as a
	// histogram sample and bumps a per-route counter; latencies drift
	// upward over time so the trailing windows visibly diverge.
	fmt.Println("Recording simulated traffic...")
	for i := 0; i < 40; i++ {
		route := routes[rand.Intn(len(routes))]
		latency := simulateRequest(i)

		err := db.Observe(ctx, "request_latency_ms", latency,
			eventdb.WithLabels(map[string]string{"route": route}),
			eventdb.WithKind(metrics.KindHistogramSample))
		if err != nil {
			log.Fatalf("Observe failed: %v", err)
		}
		if err := db.Increment(ctx, "requests_total",
			1, eventdb.WithLabels(map[string]string{"route": route})); err != nil {
			log.Fatalf("Increment failed: %v", err)
		}

		if i%10 == 9 {
			printTrailingPercentiles(ctx, db)
		}
	}

	printSummary(ctx, db)
}

// simulateRequest sleeps briefly and returns a latency sample in
// milliseconds that degrades as the run progresses.
func simulateRequest(iteration int) float64 {
	base := 20.0 + float64(iteration)*1.5
	jitter := rand.Float64() * 15
	time.Sleep(5 * time.Millisecond)
	return base + jitter
}

func printTrailingPercentiles(ctx context.Context, db *eventdb.DB) {
	grid, err := db.Query("request_latency_ms", nil).
		Windows(100*time.Millisecond, time.Second, time.Minute).
		PercentileGrid(ctx, []float64{50, 95, 99})
	if err != nil {
		log.Fatalf("PercentileGrid failed: %v", err)
	}

	fmt.Println("trailing latency percentiles:")
	for _, cell := range grid {
		if !cell.OK {
			fmt.Printf("  past %-8v p%-4g (no data)\n", cell.Window, cell.Percentile)
			continue
		}
		fmt.Printf("  past %-8v p%-4g %.1fms\n", cell.Window, cell.Percentile, cell.Value)
	}
}

func printSummary(ctx context.Context, db *eventdb.DB) {
	fmt.Println("\n=== Summary ===")

	buckets, err := db.Query("request_latency_ms", nil).
		FromBeginning().
		Buckets(ctx, []float64{25, 50, 75, 100}, false)
	if err != nil {
		log.Fatalf("Buckets failed: %v", err)
	}
	for i, edge := range buckets.Edges {
		fmt.Printf("  <= %5.0fms: %d\n", edge, buckets.Counts[i])
	}
	fmt.Printf("  >  %5.0fms: %d\n", buckets.Edges[len(buckets.Edges)-1], buckets.Overflow)

	// Per-route request totals from counter series
	totals, err := db.Query("requests_total", nil).
		FromBeginning().
		ScalarBySeries(ctx, query.OpLast)
	if err != nil {
		log.Fatalf("ScalarBySeries failed: %v", err)
	}
	fmt.Println("requests by route:")
	for _, s := range totals {
		route, _ := s.Series.Labels.Get("route")
		fmt.Printf("  %-12s %g\n", route, s.Value)
	}

	mean, ok, err := db.Query("request_latency_ms", nil).
		FromBeginning().
		Scalar(ctx, query.OpMean)
	if err != nil {
		log.Fatalf("Scalar failed: %v", err)
	}
	if ok {
		fmt.Printf("overall mean latency: %.1fms\n", mean)
	}

	stats, err := db.Stats(ctx)
	if err != nil {
		log.Fatalf("Stats failed: %v", err)
	}
	fmt.Printf("stored: %d points across %d series (%d bytes)\n",
		stats.TotalPoints, stats.TotalSeries, stats.SizeBytes)
}
