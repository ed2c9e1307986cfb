// Package timeseries holds per-sensor sequences of timestamped samples and the
// gap statistics used to compare sensor cadences.
package timeseries

import (
	"sort"

	"go.viam.com/sensorsync/utils"
)

// Handle is an opaque reference to externally stored decoded data, such as the
// path of a parsed point cloud or image.
type Handle = string

// Fields is one flat numeric record. Index i corresponds to Columns[i] of the
// NumericSeries it belongs to.
type Fields []float64

// Series is an ordered sequence of (timestamp, payload) pairs for one sensor.
// Timestamps are seconds and strictly increasing; Payloads is index parallel.
type Series[T any] struct {
	Name       string
	Timestamps []float64
	Payloads   []T
}

// NumericSeries is a Series of flat numeric records with named columns.
type NumericSeries struct {
	Series[Fields]
	Columns []string
}

// New returns a series after checking that timestamps and payloads line up and
// that timestamps are strictly increasing.
func New[T any](name string, timestamps []float64, payloads []T) (*Series[T], error) {
	if len(timestamps) != len(payloads) {
		return nil, utils.NewShapeMismatchError(
			"stream %q has %d timestamps but %d payloads", name, len(timestamps), len(payloads))
	}
	if err := checkIncreasing(name, timestamps); err != nil {
		return nil, err
	}
	return &Series[T]{Name: name, Timestamps: timestamps, Payloads: payloads}, nil
}

// NewNumeric returns a numeric series; every row must have one value per column.
func NewNumeric(name string, columns []string, timestamps []float64, rows []Fields) (*NumericSeries, error) {
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, utils.NewShapeMismatchError(
				"stream %q row %d has %d values for %d columns", name, i, len(row), len(columns))
		}
	}
	s, err := New(name, timestamps, rows)
	if err != nil {
		return nil, err
	}
	return &NumericSeries{Series: *s, Columns: columns}, nil
}

// FromMap builds a series from a timestamp keyed mapping, ordering samples by
// timestamp. Map keys are unique so the result is always strictly increasing.
func FromMap[T any](name string, samples map[float64]T) *Series[T] {
	timestamps := make([]float64, 0, len(samples))
	for ts := range samples {
		timestamps = append(timestamps, ts)
	}
	sort.Float64s(timestamps)
	payloads := make([]T, len(timestamps))
	for i, ts := range timestamps {
		payloads[i] = samples[ts]
	}
	return &Series[T]{Name: name, Timestamps: timestamps, Payloads: payloads}
}

// Len returns the number of samples.
func (s *Series[T]) Len() int {
	return len(s.Timestamps)
}

// MeanGap returns the mean inter-sample gap of this series using the
// GapPrefix rule.
func (s *Series[T]) MeanGap() (float64, error) {
	return MeanGap(s.Name, s.Timestamps)
}

func checkIncreasing(name string, timestamps []float64) error {
	for i := 1; i < len(timestamps); i++ {
		if !(timestamps[i] > timestamps[i-1]) {
			return utils.NewUnorderedSamplesError(name, i, timestamps[i-1], timestamps[i])
		}
	}
	return nil
}
