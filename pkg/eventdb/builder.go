package eventdb

import (
	"context"
	"fmt"
	"time"

	"github.com/nicktill/eventdb/pkg/metrics"
	"github.com/nicktill/eventdb/pkg/query"
)

// Builder is an immutable query specification assembled by chaining.
// Window methods return modified copies, so a Builder can be reused and
// re-windowed freely; nothing touches storage until a terminal call,
// and every terminal call runs a fresh scan.
//
// The reference "now" is captured when Query is called. All windows
// chained off one Builder resolve against that shared now, which makes
// multi-window results comparable.
type Builder struct {
	db     *DB
	name   string
	filter metrics.LabelSet
	now    time.Time
	window query.Window
	spans  []time.Duration
}

// Query starts a query over the series of name whose labels contain
// labels. An empty or nil filter selects every series under the name.
func (db *DB) Query(name string, labels map[string]string) Builder {
	return Builder{
		db:     db,
		name:   name,
		filter: metrics.NewLabelSet(labels),
		now:    time.Now(),
	}
}

// At overrides the reference now. Mostly useful in tests that replay
// recorded timestamps.
func (b Builder) At(now time.Time) Builder {
	b.now = now
	return b
}

// FromBeginning selects all stored history.
func (b Builder) FromBeginning() Builder {
	b.window = query.Beginning()
	return b
}

// FromTimestamp selects points at or after ts.
func (b Builder) FromTimestamp(ts time.Time) Builder {
	b.window = query.AbsoluteFrom(ts)
	return b
}

// FromDuration selects the trailing window [now-d, now].
func (b Builder) FromDuration(d time.Duration) Builder {
	b.window = query.RelativeFrom(d)
	return b
}

// Windows selects several trailing windows for PercentileGrid, all
// sharing the Builder's reference now.
func (b Builder) Windows(ds ...time.Duration) Builder {
	b.spans = append([]time.Duration(nil), ds...)
	return b
}

// scan resolves the window, matches series, and returns the time-merged
// point stream. A name or filter matching no series yields an empty
// stream, never an error.
func (b Builder) scan(ctx context.Context) ([]metrics.Point, error) {
	_, seqs, err := b.scanBySeries(ctx)
	if err != nil {
		return nil, err
	}
	return query.MergeByTime(seqs...), nil
}

// scanBySeries is scan without the merge: one ascending point sequence
// per matched series, index-aligned with the returned series.
func (b Builder) scanBySeries(ctx context.Context) ([]metrics.Series, [][]metrics.Point, error) {
	start, end, err := b.window.Resolve(b.now)
	if err != nil {
		return nil, nil, err
	}

	matched := b.db.index.Match(b.name, b.filter)
	seqs := make([][]metrics.Point, len(matched))
	for i, sr := range matched {
		points, err := b.db.store.Scan(ctx, sr.ID, start, end)
		if err != nil {
			return nil, nil, err
		}
		seqs[i] = points
	}
	return matched, seqs, nil
}

// Scalar reduces the windowed stream to a single value. ok=false means
// the window held no points, which is distinct from a zero result.
func (b Builder) Scalar(ctx context.Context, op query.ScalarOp) (v float64, ok bool, err error) {
	points, err := b.scan(ctx)
	if err != nil {
		return 0, false, err
	}
	return query.Reduce(points, op)
}

// Buckets histograms the windowed values into the given ascending
// edges. Values above the last edge are counted in Buckets.Overflow.
func (b Builder) Buckets(ctx context.Context, edges []float64, cumulative bool) (query.Buckets, error) {
	points, err := b.scan(ctx)
	if err != nil {
		return query.Buckets{}, err
	}
	return query.Bucketize(query.Values(points), edges, cumulative)
}

// Percentiles computes the requested percentiles of the windowed
// values with linear interpolation. A window with no points yields a
// nil result.
func (b Builder) Percentiles(ctx context.Context, ps []float64) ([]float64, error) {
	points, err := b.scan(ctx)
	if err != nil {
		return nil, err
	}
	return query.Percentiles(query.Values(points), ps)
}

// Values returns the windowed value sequence in ascending time order.
func (b Builder) Values(ctx context.Context) ([]float64, error) {
	points, err := b.scan(ctx)
	if err != nil {
		return nil, err
	}
	return query.Values(points), nil
}

// Timestamps returns the windowed event-time sequence in ascending
// order.
func (b Builder) Timestamps(ctx context.Context) ([]time.Time, error) {
	points, err := b.scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(points))
	for i, p := range points {
		out[i] = p.Time
	}
	return out, nil
}

// Pairs returns the windowed (timestamp, value) points, index-aligned,
// in ascending time order.
func (b Builder) Pairs(ctx context.Context) ([]metrics.Point, error) {
	return b.scan(ctx)
}

// SeriesScalar is one series' scalar reduction.
type SeriesScalar struct {
	Series metrics.Series
	Value  float64
	OK     bool
}

// ScalarBySeries reduces each matched series separately instead of
// merging them, returning one labeled result per series.
func (b Builder) ScalarBySeries(ctx context.Context, op query.ScalarOp) ([]SeriesScalar, error) {
	matched, seqs, err := b.scanBySeries(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]SeriesScalar, len(matched))
	for i, sr := range matched {
		v, ok, err := query.Reduce(seqs[i], op)
		if err != nil {
			return nil, err
		}
		out[i] = SeriesScalar{Series: sr, Value: v, OK: ok}
	}
	return out, nil
}

// SeriesPercentiles is one series' percentile summary.
type SeriesPercentiles struct {
	Series metrics.Series
	Values []float64
}

// PercentilesBySeries computes the percentiles of each matched series
// separately. A series with no points in the window gets a nil summary.
func (b Builder) PercentilesBySeries(ctx context.Context, ps []float64) ([]SeriesPercentiles, error) {
	matched, seqs, err := b.scanBySeries(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]SeriesPercentiles, len(matched))
	for i, sr := range matched {
		vals, err := query.Percentiles(query.Values(seqs[i]), ps)
		if err != nil {
			return nil, err
		}
		out[i] = SeriesPercentiles{Series: sr, Values: vals}
	}
	return out, nil
}

// SeriesValues is one series' raw windowed values.
type SeriesValues struct {
	Series metrics.Series
	Values []float64
}

// ValuesBySeries returns each matched series' windowed values
// separately.
func (b Builder) ValuesBySeries(ctx context.Context) ([]SeriesValues, error) {
	matched, seqs, err := b.scanBySeries(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]SeriesValues, len(matched))
	for i, sr := range matched {
		out[i] = SeriesValues{Series: sr, Values: query.Values(seqs[i])}
	}
	return out, nil
}

// GridItem is one cell of a multi-window percentile summary.
type GridItem struct {
	Window     time.Duration
	Percentile float64
	Value      float64
	OK         bool
}

// PercentileGrid computes every requested percentile over every window
// from Windows, all sharing the Builder's reference now. One scan of
// the widest window feeds every cell; narrower windows filter it. Cells
// whose window holds no points carry OK=false.
func (b Builder) PercentileGrid(ctx context.Context, ps []float64) ([]GridItem, error) {
	if len(b.spans) == 0 {
		return nil, fmt.Errorf("%w: no windows selected", ErrInvalidWindow)
	}

	widest := b.spans[0]
	for _, d := range b.spans {
		if d < 0 {
			return nil, fmt.Errorf("%w: negative duration %v", ErrInvalidWindow, d)
		}
		if d > widest {
			widest = d
		}
	}

	all, err := b.FromDuration(widest).Pairs(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]GridItem, 0, len(b.spans)*len(ps))
	for _, d := range b.spans {
		cutoff := b.now.Add(-d)
		var values []float64
		for _, p := range all {
			if !p.Time.Before(cutoff) {
				values = append(values, p.Value)
			}
		}

		summary, err := query.Percentiles(values, ps)
		if err != nil {
			return nil, err
		}
		for i, p := range ps {
			item := GridItem{Window: d, Percentile: p}
			if summary != nil {
				item.Value = summary[i]
				item.OK = true
			}
			out = append(out, item)
		}
	}
	return out, nil
}
