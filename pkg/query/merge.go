package query

import (
	"sort"

	"github.com/nicktill/eventdb/pkg/metrics"
)

// MergeByTime merges several ascending point sequences into one
// ascending sequence. The stable sort keeps each input's internal order
// on equal timestamps, so per-series arrival order survives the merge.
func MergeByTime(seqs ...[]metrics.Point) []metrics.Point {
	switch len(seqs) {
	case 0:
		return nil
	case 1:
		return seqs[0]
	}

	var total int
	for _, s := range seqs {
		total += len(s)
	}
	merged := make([]metrics.Point, 0, total)
	for _, s := range seqs {
		merged = append(merged, s...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Time.Before(merged[j].Time)
	})
	return merged
}
