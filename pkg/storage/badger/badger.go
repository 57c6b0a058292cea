package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/nicktill/eventdb/pkg/metrics"
	"github.com/nicktill/eventdb/pkg/storage"
)

// Key layout. Point keys sort by (series, event time, arrival sequence),
// which gives Scan its ascending order for free from the LSM iterator.
//
//	points: 'p' [series_id 8B BE] [unix_micro 8B BE] [seq 8B BE] -> float64 bits
//	series: 's' [series_id 8B BE]                                -> series JSON
const (
	pointPrefix  = 'p'
	seriesPrefix = 's'
)

// Store implements storage.Store using BadgerDB (LSM tree)
type Store struct {
	db *badger.DB

	// seq disambiguates points that share a series and timestamp. It is
	// seeded from the wall clock at open so keys stay unique across
	// process restarts.
	seq atomic.Uint64
}

// Config holds BadgerDB configuration
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = 48 MB default)
	MaxMemoryMB int64
}

// New creates a BadgerDB storage backend
func New(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)

	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	// Conservative memory bounds; badger's defaults assume far more RAM
	// than an embedded library should claim.
	memTableSize := int64(16 * 1024 * 1024)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3
	}

	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(memTableSize / 2).
		WithIndexCacheSize(memTableSize / 4).
		WithMaxLevels(4).
		WithNumCompactors(2). // badger rejects fewer than 2
		WithValueThreshold(1024).
		WithValueLogFileSize(64 << 20).
		WithLogger(nil)

	// Write-then-acknowledge: Append must not return before the point
	// is on disk. In-memory mode has no disk to sync.
	if !cfg.InMemory {
		opts = opts.WithSyncWrites(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	s := &Store{db: db}
	s.seq.Store(uint64(time.Now().UnixNano()))
	return s, nil
}

// Append durably stores one point
func (s *Store) Append(ctx context.Context, p storage.SeriesPoint) error {
	return s.AppendBatch(ctx, []storage.SeriesPoint{p})
}

// AppendBatch durably stores a group of points in one transaction
func (s *Store) AppendBatch(ctx context.Context, ps []storage.SeriesPoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, p := range ps {
			key := pointKey(p.SeriesID, p.Point.Time, s.seq.Add(1))
			if err := txn.Set(key, encodeValue(p.Point.Value)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: badger write: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// Scan returns the series' points with start <= t <= end in ascending
// timestamp order
func (s *Store) Scan(ctx context.Context, seriesID uint64, start, end time.Time) ([]metrics.Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, nil
	}

	var results []metrics.Point
	began := time.Now()

	err := s.db.View(func(txn *badger.Txn) error {
		prefix := seriesPointPrefix(seriesID)

		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 100
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		var iterCount int
		for it.Seek(pointSeekKey(seriesID, start)); it.ValidForPrefix(prefix); it.Next() {
			iterCount++

			// Long scans should still honor caller deadlines.
			if iterCount%1000 == 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
			}

			item := it.Item()
			ts := timeFromKey(item.Key())
			if ts.After(end) {
				break
			}

			err := item.Value(func(val []byte) error {
				results = append(results, metrics.Point{Time: ts, Value: decodeValue(val)})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: badger scan: %v", storage.ErrUnavailable, err)
	}

	if elapsed := time.Since(began); elapsed > 5*time.Second {
		slog.Warn("slow point scan",
			"series", seriesID,
			"elapsed", elapsed,
			"points", len(results))
	}

	return results, nil
}

// Last returns the most recently written point of the series: the one
// with the highest arrival sequence, not the highest timestamp. The two
// differ when writes are backfilled with older event times, and counter
// totals must resume from the last write. Keys sort by timestamp, so
// this walks the series' keys comparing sequences; it runs keys-only and
// only fetches the winning value.
func (s *Store) Last(ctx context.Context, seriesID uint64) (metrics.Point, bool, error) {
	if err := ctx.Err(); err != nil {
		return metrics.Point{}, false, err
	}

	var (
		p     metrics.Point
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := seriesPointPrefix(seriesID)

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		var (
			bestKey   []byte
			bestSeq   uint64
			iterCount int
		)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			iterCount++
			if iterCount%1000 == 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
			}

			key := it.Item().Key()
			seq := seqFromKey(key)
			if bestKey == nil || seq > bestSeq {
				bestSeq = seq
				bestKey = it.Item().KeyCopy(bestKey[:0])
			}
		}
		if bestKey == nil {
			return nil
		}

		item, err := txn.Get(bestKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			p = metrics.Point{Time: timeFromKey(bestKey), Value: decodeValue(val)}
			found = true
			return nil
		})
	})
	if err != nil {
		return metrics.Point{}, false, fmt.Errorf("%w: badger read: %v", storage.ErrUnavailable, err)
	}
	return p, found, nil
}

// PutSeries persists series metadata
func (s *Store) PutSeries(ctx context.Context, sr metrics.Series) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	val, err := json.Marshal(sr)
	if err != nil {
		return fmt.Errorf("failed to encode series: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(seriesKey(sr.ID), val)
	})
	if err != nil {
		return fmt.Errorf("%w: badger write: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// ListSeries returns all persisted series metadata
func (s *Store) ListSeries(ctx context.Context) ([]metrics.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []metrics.Series
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte{seriesPrefix}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var sr metrics.Series
				if err := json.Unmarshal(val, &sr); err != nil {
					return fmt.Errorf("failed to decode series: %w", err)
				}
				out = append(out, sr)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: badger scan: %v", storage.ErrUnavailable, err)
	}
	return out, nil
}

// DeleteBefore removes every point older than before across all series.
// Series metadata keys are untouched.
func (s *Store) DeleteBefore(ctx context.Context, before time.Time) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var removed uint64
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte{pointPrefix}

		it := txn.NewIterator(opts)
		defer it.Close()

		var keysToDelete [][]byte
		var iterCount int
		for it.Rewind(); it.Valid(); it.Next() {
			iterCount++
			if iterCount%1000 == 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
			}

			item := it.Item()
			if !timeFromKey(item.Key()).Before(before) {
				continue
			}
			keysToDelete = append(keysToDelete, item.KeyCopy(nil))
		}

		for _, key := range keysToDelete {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		removed = uint64(len(keysToDelete))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: badger delete: %v", storage.ErrUnavailable, err)
	}
	return removed, nil
}

// Close shuts down BadgerDB cleanly
func (s *Store) Close() error {
	return s.db.Close()
}

// RunGC runs BadgerDB's value log garbage collection.
// discardRatio: run GC if this fraction of a file can be discarded.
func (s *Store) RunGC(discardRatio float64) error {
	return s.db.RunValueLogGC(discardRatio)
}

// Stats returns storage statistics
func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := &storage.Stats{}
	seriesSeen := make(map[uint64]bool)

	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte{pointPrefix}

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		var iterCount int
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			iterCount++
			if iterCount%1000 == 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
			}

			key := it.Item().Key()
			stats.TotalPoints++
			seriesSeen[binary.BigEndian.Uint64(key[1:9])] = true

			ts := timeFromKey(key)
			if stats.OldestPoint.IsZero() || ts.Before(stats.OldestPoint) {
				stats.OldestPoint = ts
			}
			if stats.NewestPoint.IsZero() || ts.After(stats.NewestPoint) {
				stats.NewestPoint = ts
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: badger scan: %v", storage.ErrUnavailable, err)
	}

	stats.TotalSeries = uint64(len(seriesSeen))
	lsmSize, vlogSize := s.db.Size()
	stats.SizeBytes = uint64(lsmSize + vlogSize)

	return stats, nil
}

// pointKey builds the full key for one stored point
func pointKey(seriesID uint64, ts time.Time, seq uint64) []byte {
	key := make([]byte, 25)
	key[0] = pointPrefix
	binary.BigEndian.PutUint64(key[1:9], seriesID)
	binary.BigEndian.PutUint64(key[9:17], uint64(ts.UnixMicro()))
	binary.BigEndian.PutUint64(key[17:25], seq)
	return key
}

// pointSeekKey is the smallest possible key at or after ts for a series
func pointSeekKey(seriesID uint64, ts time.Time) []byte {
	key := make([]byte, 17)
	key[0] = pointPrefix
	binary.BigEndian.PutUint64(key[1:9], seriesID)
	binary.BigEndian.PutUint64(key[9:17], uint64(ts.UnixMicro()))
	return key
}

// seriesPointPrefix bounds the iterator to one series' points
func seriesPointPrefix(seriesID uint64) []byte {
	prefix := make([]byte, 9)
	prefix[0] = pointPrefix
	binary.BigEndian.PutUint64(prefix[1:9], seriesID)
	return prefix
}

// seriesKey builds the key for a series metadata record
func seriesKey(seriesID uint64) []byte {
	key := make([]byte, 9)
	key[0] = seriesPrefix
	binary.BigEndian.PutUint64(key[1:9], seriesID)
	return key
}

// timeFromKey extracts the event timestamp from a point key
func timeFromKey(key []byte) time.Time {
	return time.UnixMicro(int64(binary.BigEndian.Uint64(key[9:17])))
}

func seqFromKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[17:25])
}

// encodeValue serializes a point value to its IEEE 754 bits
func encodeValue(v float64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

// decodeValue deserializes IEEE 754 bits to a point value
func decodeValue(data []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(data))
}
