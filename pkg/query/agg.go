package query

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/nicktill/eventdb/pkg/metrics"
)

// ErrInvalidAggregation reports unusable aggregation parameters:
// non-ascending bucket edges, empty edge or percentile lists, or a
// percentile outside [0, 100].
var ErrInvalidAggregation = errors.New("invalid aggregation parameters")

// ScalarOp selects a scalar reduction over a point sequence.
type ScalarOp string

const (
	OpLast  ScalarOp = "last"
	OpMin   ScalarOp = "min"
	OpMax   ScalarOp = "max"
	OpMean  ScalarOp = "mean"
	OpCount ScalarOp = "count"
	OpSum   ScalarOp = "sum"
)

// Reduce applies op to an ascending-timestamp point sequence in a
// single pass. ok=false means no data: the range held no points, which
// is distinct from a reduction that happens to equal zero. For OpLast,
// ties on the maximum timestamp resolve to the latest arrival, which
// the sequence's ordering contract already encodes.
func Reduce(points []metrics.Point, op ScalarOp) (v float64, ok bool, err error) {
	switch op {
	case OpLast, OpMin, OpMax, OpMean, OpCount, OpSum:
	default:
		return 0, false, fmt.Errorf("%w: unknown scalar op %q", ErrInvalidAggregation, op)
	}

	if len(points) == 0 {
		return 0, false, nil
	}

	switch op {
	case OpLast:
		return points[len(points)-1].Value, true, nil
	case OpCount:
		return float64(len(points)), true, nil
	}

	min, max, sum := points[0].Value, points[0].Value, 0.0
	for _, p := range points {
		if p.Value < min {
			min = p.Value
		}
		if p.Value > max {
			max = p.Value
		}
		sum += p.Value
	}

	switch op {
	case OpMin:
		return min, true, nil
	case OpMax:
		return max, true, nil
	case OpSum:
		return sum, true, nil
	default: // OpMean
		return sum / float64(len(points)), true, nil
	}
}

// Buckets is a fixed-edge histogram over a value sequence.
type Buckets struct {
	// Edges are the ascending bucket upper bounds the histogram was
	// built with.
	Edges []float64

	// Counts[i] is the count for bucket i. Non-cumulative: values v
	// with edge[i-1] < v <= edge[i]. Cumulative: all values <= edge[i],
	// monotone non-decreasing across buckets.
	Counts []uint64

	// Overflow counts values above the last edge. It is tracked
	// separately and never folded into Counts.
	Overflow uint64

	// Cumulative records which counting scheme Counts uses.
	Cumulative bool
}

// Total returns the number of bucketed values, excluding overflow.
func (b Buckets) Total() uint64 {
	if len(b.Counts) == 0 {
		return 0
	}
	if b.Cumulative {
		return b.Counts[len(b.Counts)-1]
	}
	var total uint64
	for _, c := range b.Counts {
		total += c
	}
	return total
}

// ValueAtCount estimates the value below which `target` bucketed values
// fall, linearly interpolating between the two bounding bucket edges
// proportional to the count distance. The first bucket's lower bound is
// taken as 0 when its edge is positive, else as the edge itself.
// ok=false means the histogram holds no bucketed values. A target at or
// beyond the bucketed total returns the last edge.
func (b Buckets) ValueAtCount(target float64) (v float64, ok bool) {
	total := b.Total()
	if total == 0 || len(b.Edges) == 0 {
		return 0, false
	}
	if target >= float64(total) {
		return b.Edges[len(b.Edges)-1], true
	}
	if target < 0 {
		target = 0
	}

	var cumBefore uint64
	for i, edge := range b.Edges {
		count := b.Counts[i]
		if b.Cumulative {
			count = b.Counts[i] - cumBefore
		}
		cum := cumBefore + count

		if float64(cum) >= target && count > 0 {
			lower := 0.0
			if i > 0 {
				lower = b.Edges[i-1]
			} else if edge <= 0 {
				lower = edge
			}
			frac := (target - float64(cumBefore)) / float64(count)
			return lower + (edge-lower)*frac, true
		}
		cumBefore = cum
	}

	return b.Edges[len(b.Edges)-1], true
}

// Quantile estimates the value at percentile p of the bucketed
// distribution via ValueAtCount, the histogram counterpart of the exact
// Percentiles computation.
func (b Buckets) Quantile(p float64) (float64, bool) {
	total := b.Total()
	if total == 0 {
		return 0, false
	}
	return b.ValueAtCount(p / 100 * float64(total))
}

// Bucketize counts values into a histogram with the given ascending
// edges. Non-cumulative counting places each value in the first bucket
// whose edge it does not exceed; values above the last edge land in the
// implicit overflow bucket.
func Bucketize(values []float64, edges []float64, cumulative bool) (Buckets, error) {
	if len(edges) == 0 {
		return Buckets{}, fmt.Errorf("%w: empty bucket edges", ErrInvalidAggregation)
	}
	for i := 1; i < len(edges); i++ {
		if edges[i] <= edges[i-1] {
			return Buckets{}, fmt.Errorf("%w: bucket edges not strictly ascending at %d (%v <= %v)",
				ErrInvalidAggregation, i, edges[i], edges[i-1])
		}
	}

	b := Buckets{
		Edges:      append([]float64(nil), edges...),
		Counts:     make([]uint64, len(edges)),
		Cumulative: cumulative,
	}

	for _, v := range values {
		// SearchFloat64s finds the first edge >= v; a value equal to an
		// edge belongs to that edge's bucket.
		if i := sort.SearchFloat64s(b.Edges, v); i < len(b.Edges) {
			b.Counts[i]++
		} else {
			b.Overflow++
		}
	}

	if cumulative {
		for i := 1; i < len(b.Counts); i++ {
			b.Counts[i] += b.Counts[i-1]
		}
	}
	return b, nil
}

// Percentiles computes the requested percentiles of values using the
// standard linear interpolation method: rank = p/100*(n-1), the result
// blending the floor- and ceiling-ranked elements by the fractional
// part. An empty value sequence yields a nil result (no data). The
// input is not modified.
func Percentiles(values []float64, ps []float64) ([]float64, error) {
	if len(ps) == 0 {
		return nil, fmt.Errorf("%w: empty percentile list", ErrInvalidAggregation)
	}
	for _, p := range ps {
		if p < 0 || p > 100 || math.IsNaN(p) {
			return nil, fmt.Errorf("%w: percentile %v outside [0, 100]", ErrInvalidAggregation, p)
		}
	}
	if len(values) == 0 {
		return nil, nil
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	out := make([]float64, len(ps))
	for i, p := range ps {
		rank := p / 100 * float64(len(sorted)-1)
		lo := int(math.Floor(rank))
		hi := int(math.Ceil(rank))
		if lo == hi {
			out[i] = sorted[lo]
			continue
		}
		frac := rank - float64(lo)
		out[i] = sorted[lo] + (sorted[hi]-sorted[lo])*frac
	}
	return out, nil
}

// Values extracts the ordered value sequence from a point sequence.
func Values(points []metrics.Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}
