// Command eventdb is an operational tool for stores written by this
// module: inspect stats, take and restore snapshots, and prune old
// points, all against a store described by a YAML config file.
//
// Usage:
//
//	eventdb -config eventdb.yaml stats
//	eventdb -config eventdb.yaml dump  > snapshot.json
//	eventdb -config eventdb.yaml dump -format csv > points.csv
//	eventdb -config eventdb.yaml restore < snapshot.json
//	eventdb -config eventdb.yaml prune -older-than 720h
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/nicktill/eventdb/pkg/config"
	"github.com/nicktill/eventdb/pkg/eventdb"
)

func main() {
	configPath := flag.String("config", "eventdb.yaml", "path to store config")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	// Operational commands never want a background sweeper racing them.
	cfg.Retention = config.RetentionConfig{}

	db, err := eventdb.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	switch cmd, rest := args[0], args[1:]; cmd {
	case "stats":
		err = runStats(ctx, db)
	case "dump":
		err = runDump(ctx, db, rest)
	case "restore":
		err = runRestore(ctx, db)
	case "prune":
		err = runPrune(ctx, db, rest)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", args[0], err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: eventdb [-config file] <stats|dump|restore|prune> [options]\n")
	flag.PrintDefaults()
}

func runStats(ctx context.Context, db *eventdb.DB) error {
	stats, err := db.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("points:  %d\n", stats.TotalPoints)
	fmt.Printf("series:  %d\n", stats.TotalSeries)
	fmt.Printf("size:    %d bytes\n", stats.SizeBytes)
	if stats.TotalPoints > 0 {
		fmt.Printf("oldest:  %s\n", stats.OldestPoint.Format(time.RFC3339))
		fmt.Printf("newest:  %s\n", stats.NewestPoint.Format(time.RFC3339))
	}
	return nil
}

func runDump(ctx context.Context, db *eventdb.DB, args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	format := fs.String("format", "json", "snapshot format: json or csv")
	fs.Parse(args)

	switch *format {
	case "json":
		res, err := db.Dump(ctx, os.Stdout)
		if err != nil {
			return err
		}
		log.Printf("Exported %d series, %d points", res.SeriesExported, res.PointsExported)
	case "csv":
		res, err := db.DumpCSV(ctx, os.Stdout)
		if err != nil {
			return err
		}
		log.Printf("Exported %d series, %d points", res.SeriesExported, res.PointsExported)
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
	return nil
}

func runRestore(ctx context.Context, db *eventdb.DB) error {
	res, err := db.Restore(ctx, os.Stdin)
	if err != nil {
		return err
	}
	log.Printf("Restored %d series, %d points in %d batches",
		res.SeriesImported, res.PointsImported, res.BatchesWritten)
	return nil
}

func runPrune(ctx context.Context, db *eventdb.DB, args []string) error {
	fs := flag.NewFlagSet("prune", flag.ExitOnError)
	olderThan := fs.Duration("older-than", 0, "delete points older than this (e.g. 720h)")
	fs.Parse(args)

	if *olderThan <= 0 {
		return fmt.Errorf("-older-than must be positive")
	}

	removed, err := db.Prune(ctx, time.Now().Add(-*olderThan))
	if err != nil {
		return err
	}
	log.Printf("Removed %d points", removed)
	return nil
}
