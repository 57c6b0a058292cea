package metrics

import "time"

// Kind records the semantic type of a series. It is fixed when the
// series is created and validated on every later write.
type Kind string

const (
	KindCounter         Kind = "counter"
	KindGauge           Kind = "gauge"
	KindHistogramSample Kind = "histogram-sample"
	KindSummarySample   Kind = "summary-sample"
)

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindCounter, KindGauge, KindHistogramSample, KindSummarySample:
		return true
	}
	return false
}

// Point is a single observation. Time is event time: the moment the
// observed phenomenon occurred, not the moment it was stored.
type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Series identifies one logical time series: the unique combination of
// metric name and label set. ID is stable for the lifetime of the store.
type Series struct {
	ID     uint64   `json:"id"`
	Name   string   `json:"name"`
	Labels LabelSet `json:"labels"`
	Kind   Kind     `json:"kind"`
}
