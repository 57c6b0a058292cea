package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// SQLite driver using pure Go implementation
	_ "modernc.org/sqlite"

	"github.com/nicktill/eventdb/pkg/metrics"
	"github.com/nicktill/eventdb/pkg/storage"
)

// Config holds SQLite configuration
type Config struct {
	// Path to the database file, or ":memory:" for an ephemeral store
	Path string

	// Synchronous sets the synchronous pragma (OFF, NORMAL, FULL).
	// Default NORMAL: with WAL journaling a commit is on disk before
	// the write returns, which is the durability Append promises.
	Synchronous string

	// BusyTimeout is the lock-acquisition timeout in milliseconds
	BusyTimeout int
}

// Store implements storage.Store on a SQLite file. The layout mirrors
// the two-table scheme of the storage interface: a series table keyed
// by series_id and a points table indexed by (series_id, ts_us).
// Timestamps are microseconds since the epoch; rowid order breaks ties
// between points sharing a timestamp, so scans preserve arrival order.
type Store struct {
	db *sql.DB

	insertPoint  *sql.Stmt
	selectRange  *sql.Stmt
	selectLast   *sql.Stmt
	insertSeries *sql.Stmt
}

// New opens or creates a SQLite storage backend
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		cfg.Path = "eventdb.sqlite"
	}
	if cfg.Synchronous == "" {
		cfg.Synchronous = "NORMAL"
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5000
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(%s)&_pragma=busy_timeout(%d)",
		cfg.Path, cfg.Synchronous, cfg.BusyTimeout)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite is a single-writer engine; one pooled connection also keeps
	// ":memory:" databases from splitting across connections.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS series (
    series_id   INTEGER PRIMARY KEY,
    metric_name TEXT NOT NULL,
    labels_json TEXT NOT NULL,
    kind        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS points (
    series_id INTEGER NOT NULL,
    ts_us     INTEGER NOT NULL,
    value     REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_points_series_ts ON points(series_id, ts_us);
`)
	return err
}

func (s *Store) prepareStatements() error {
	var err error

	s.insertPoint, err = s.db.Prepare(
		"INSERT INTO points (series_id, ts_us, value) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}

	s.selectRange, err = s.db.Prepare(
		"SELECT ts_us, value FROM points WHERE series_id = ? AND ts_us >= ? AND ts_us <= ? ORDER BY ts_us, rowid")
	if err != nil {
		return err
	}

	s.selectLast, err = s.db.Prepare(
		"SELECT ts_us, value FROM points WHERE series_id = ? ORDER BY rowid DESC LIMIT 1")
	if err != nil {
		return err
	}

	s.insertSeries, err = s.db.Prepare(
		"INSERT OR REPLACE INTO series (series_id, metric_name, labels_json, kind) VALUES (?, ?, ?, ?)")
	return err
}

// Append durably stores one point
func (s *Store) Append(ctx context.Context, p storage.SeriesPoint) error {
	_, err := s.insertPoint.ExecContext(ctx, int64(p.SeriesID), p.Point.Time.UnixMicro(), p.Point.Value)
	if err != nil {
		return fmt.Errorf("%w: sqlite write: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// AppendBatch durably stores a group of points in one transaction
func (s *Store) AppendBatch(ctx context.Context, ps []storage.SeriesPoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: sqlite begin: %v", storage.ErrUnavailable, err)
	}

	stmt := tx.StmtContext(ctx, s.insertPoint)
	for _, p := range ps {
		if _, err := stmt.ExecContext(ctx, int64(p.SeriesID), p.Point.Time.UnixMicro(), p.Point.Value); err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: sqlite write: %v", storage.ErrUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: sqlite commit: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// Scan returns the series' points with start <= t <= end in ascending
// timestamp order
func (s *Store) Scan(ctx context.Context, seriesID uint64, start, end time.Time) ([]metrics.Point, error) {
	if end.Before(start) {
		return nil, nil
	}

	rows, err := s.selectRange.QueryContext(ctx, int64(seriesID), start.UnixMicro(), end.UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite scan: %v", storage.ErrUnavailable, err)
	}
	defer rows.Close()

	var out []metrics.Point
	for rows.Next() {
		var (
			ts    int64
			value float64
		)
		if err := rows.Scan(&ts, &value); err != nil {
			return nil, fmt.Errorf("%w: sqlite scan: %v", storage.ErrUnavailable, err)
		}
		out = append(out, metrics.Point{Time: time.UnixMicro(ts), Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: sqlite scan: %v", storage.ErrUnavailable, err)
	}
	return out, nil
}

// Last returns the most recently inserted point of the series
func (s *Store) Last(ctx context.Context, seriesID uint64) (metrics.Point, bool, error) {
	var (
		ts    int64
		value float64
	)
	err := s.selectLast.QueryRowContext(ctx, int64(seriesID)).Scan(&ts, &value)
	if err == sql.ErrNoRows {
		return metrics.Point{}, false, nil
	}
	if err != nil {
		return metrics.Point{}, false, fmt.Errorf("%w: sqlite read: %v", storage.ErrUnavailable, err)
	}
	return metrics.Point{Time: time.UnixMicro(ts), Value: value}, true, nil
}

// PutSeries persists series metadata
func (s *Store) PutSeries(ctx context.Context, sr metrics.Series) error {
	labels, err := json.Marshal(sr.Labels)
	if err != nil {
		return fmt.Errorf("failed to encode labels: %w", err)
	}

	_, err = s.insertSeries.ExecContext(ctx, int64(sr.ID), sr.Name, string(labels), string(sr.Kind))
	if err != nil {
		return fmt.Errorf("%w: sqlite write: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// ListSeries returns all persisted series metadata
func (s *Store) ListSeries(ctx context.Context) ([]metrics.Series, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT series_id, metric_name, labels_json, kind FROM series")
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite scan: %v", storage.ErrUnavailable, err)
	}
	defer rows.Close()

	var out []metrics.Series
	for rows.Next() {
		var (
			id         int64
			name       string
			labelsJSON string
			kind       string
		)
		if err := rows.Scan(&id, &name, &labelsJSON, &kind); err != nil {
			return nil, fmt.Errorf("%w: sqlite scan: %v", storage.ErrUnavailable, err)
		}

		var labels metrics.LabelSet
		if err := json.Unmarshal([]byte(labelsJSON), &labels); err != nil {
			return nil, fmt.Errorf("failed to decode labels: %w", err)
		}

		out = append(out, metrics.Series{
			ID:     uint64(id),
			Name:   name,
			Labels: labels,
			Kind:   metrics.Kind(kind),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: sqlite scan: %v", storage.ErrUnavailable, err)
	}
	return out, nil
}

// DeleteBefore removes every point older than before across all series
func (s *Store) DeleteBefore(ctx context.Context, before time.Time) (uint64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM points WHERE ts_us < ?", before.UnixMicro())
	if err != nil {
		return 0, fmt.Errorf("%w: sqlite delete: %v", storage.ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: sqlite delete: %v", storage.ErrUnavailable, err)
	}
	return uint64(n), nil
}

// Stats returns storage statistics
func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{}

	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(MIN(ts_us), 0), COALESCE(MAX(ts_us), 0) FROM points")

	var oldest, newest int64
	if err := row.Scan(&stats.TotalPoints, &oldest, &newest); err != nil {
		return nil, fmt.Errorf("%w: sqlite read: %v", storage.ErrUnavailable, err)
	}
	if stats.TotalPoints > 0 {
		stats.OldestPoint = time.UnixMicro(oldest)
		stats.NewestPoint = time.UnixMicro(newest)
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM series").Scan(&stats.TotalSeries); err != nil {
		return nil, fmt.Errorf("%w: sqlite read: %v", storage.ErrUnavailable, err)
	}

	var pageCount, pageSize uint64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err == nil {
			stats.SizeBytes = pageCount * pageSize
		}
	}

	return stats, nil
}

// Close shuts down the database cleanly
func (s *Store) Close() error {
	return s.db.Close()
}
