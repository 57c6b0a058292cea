package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nicktill/eventdb/pkg/metrics"
	"github.com/nicktill/eventdb/pkg/storage"
)

// Store keeps points in memory. Data is lost on restart.
// Useful for testing and development.
type Store struct {
	mu     sync.RWMutex
	points map[uint64][]entry
	series map[uint64]metrics.Series
	seq    uint64
}

// entry tags a point with its arrival sequence so equal timestamps
// keep arrival order under the sort in Scan.
type entry struct {
	p   metrics.Point
	seq uint64
}

// New creates an in-memory storage backend
func New() *Store {
	return &Store{
		points: make(map[uint64][]entry),
		series: make(map[uint64]metrics.Series),
	}
}

// Append stores one point in memory
func (s *Store) Append(ctx context.Context, p storage.SeriesPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.points[p.SeriesID] = append(s.points[p.SeriesID], entry{p: p.Point, seq: s.seq})
	return nil
}

// AppendBatch stores a group of points under one lock acquisition
func (s *Store) AppendBatch(ctx context.Context, ps []storage.SeriesPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range ps {
		s.seq++
		s.points[p.SeriesID] = append(s.points[p.SeriesID], entry{p: p.Point, seq: s.seq})
	}
	return nil
}

// Scan returns the series' points with start <= t <= end in ascending
// timestamp order
func (s *Store) Scan(ctx context.Context, seriesID uint64, start, end time.Time) ([]metrics.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var in []entry
	for _, e := range s.points[seriesID] {
		if e.p.Time.Before(start) || e.p.Time.After(end) {
			continue
		}
		in = append(in, e)
	}

	sort.Slice(in, func(i, j int) bool {
		if in[i].p.Time.Equal(in[j].p.Time) {
			return in[i].seq < in[j].seq
		}
		return in[i].p.Time.Before(in[j].p.Time)
	})

	out := make([]metrics.Point, len(in))
	for i, e := range in {
		out[i] = e.p
	}
	return out, nil
}

// Last returns the most recently appended point of the series
func (s *Store) Last(ctx context.Context, seriesID uint64) (metrics.Point, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.points[seriesID]
	if len(entries) == 0 {
		return metrics.Point{}, false, nil
	}
	return entries[len(entries)-1].p, true, nil
}

// PutSeries stores series metadata
func (s *Store) PutSeries(ctx context.Context, sr metrics.Series) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.series[sr.ID] = sr
	return nil
}

// ListSeries returns all stored series metadata
func (s *Store) ListSeries(ctx context.Context) ([]metrics.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]metrics.Series, 0, len(s.series))
	for _, sr := range s.series {
		out = append(out, sr)
	}
	return out, nil
}

// DeleteBefore removes every point older than before
func (s *Store) DeleteBefore(ctx context.Context, before time.Time) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed uint64
	for id, entries := range s.points {
		kept := entries[:0]
		for _, e := range entries {
			if e.p.Time.Before(before) {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		s.points[id] = kept
	}
	return removed, nil
}

// Close is a no-op for memory storage
func (s *Store) Close() error {
	return nil
}

// Stats returns storage statistics
func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &storage.Stats{
		TotalSeries: uint64(len(s.series)),
	}

	var oldest, newest time.Time
	for _, entries := range s.points {
		stats.TotalPoints += uint64(len(entries))
		for _, e := range entries {
			if oldest.IsZero() || e.p.Time.Before(oldest) {
				oldest = e.p.Time
			}
			if newest.IsZero() || e.p.Time.After(newest) {
				newest = e.p.Time
			}
		}
	}

	stats.OldestPoint = oldest
	stats.NewestPoint = newest

	// Rough size estimate (each point ~24 bytes)
	stats.SizeBytes = stats.TotalPoints * 24

	return stats, nil
}
