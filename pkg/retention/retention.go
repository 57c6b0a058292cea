// Package retention bounds stored history by age. A Sweeper
// periodically deletes points older than a configured horizon; series
// metadata is never touched, so an aged-out series stays queryable and
// simply yields empty windows.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nicktill/eventdb/pkg/storage"
)

const defaultInterval = 5 * time.Minute

// Config controls how much history a Sweeper keeps and how often it
// checks.
type Config struct {
	// MaxAge is the retention horizon. Points older than now-MaxAge are
	// deleted on each sweep. Must be positive.
	MaxAge time.Duration

	// Interval between sweeps. Defaults to 5 minutes.
	Interval time.Duration
}

// Sweeper deletes aged-out points from a store.
type Sweeper struct {
	store    storage.Store
	maxAge   time.Duration
	interval time.Duration
	log      *slog.Logger
}

// New creates a sweeper over store. MaxAge must be positive.
func New(store storage.Store, cfg Config) (*Sweeper, error) {
	if cfg.MaxAge <= 0 {
		return nil, fmt.Errorf("retention: max age must be positive, got %v", cfg.MaxAge)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	return &Sweeper{
		store:    store,
		maxAge:   cfg.MaxAge,
		interval: cfg.Interval,
		log:      slog.Default().With("component", "retention"),
	}, nil
}

// Sweep runs one retention pass and reports how many points it removed.
func (s *Sweeper) Sweep(ctx context.Context) (uint64, error) {
	cutoff := time.Now().Add(-s.maxAge)
	began := time.Now()

	removed, err := s.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention sweep: %w", err)
	}

	if removed > 0 {
		s.log.Info("retention sweep",
			"removed", removed,
			"cutoff", cutoff,
			"elapsed", time.Since(began).Round(time.Millisecond))
	}
	return removed, nil
}

// Run sweeps immediately, then on every interval tick until ctx is
// cancelled. A failed sweep is logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
		s.log.Error("retention sweep failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("retention sweep failed", "error", err)
			}
		}
	}
}
