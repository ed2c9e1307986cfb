package timesync

import (
	"math"
	"sort"

	"go.viam.com/sensorsync/timeseries"
	"go.viam.com/sensorsync/utils"
)

// Strategy is how a stream was resampled onto the reference timeline.
type Strategy int

const (
	// StrategyNearest snaps every target to the closest original sample.
	StrategyNearest Strategy = iota
	// StrategyInterpolate linearly interpolates (and extrapolates) each column.
	StrategyInterpolate
)

func (s Strategy) String() string {
	switch s {
	case StrategyNearest:
		return "nearest"
	case StrategyInterpolate:
		return "interpolate"
	default:
		return "unknown"
	}
}

// ChooseStrategy compares a stream's own cadence against the reference gap.
// Streams sparser than the reference are interpolated, all others are snapped.
func ChooseStrategy(name string, timestamps []float64, refGap float64) (Strategy, error) {
	gap, err := timeseries.MeanGap(name, timestamps)
	if err != nil {
		return 0, err
	}
	if gap > refGap {
		return StrategyInterpolate, nil
	}
	return StrategyNearest, nil
}

// bracket returns the right-hand index of the segment used for target t:
// the left insertion point of t clamped to [1, len(timestamps)-1].
func bracket(timestamps []float64, t float64) int {
	idx := sort.SearchFloat64s(timestamps, t)
	if idx < 1 {
		idx = 1
	}
	if last := len(timestamps) - 1; idx > last {
		idx = last
	}
	return idx
}

// NearestIndices returns, for every target, the index of the original sample
// closest in time. On an exact tie the earlier sample wins. timestamps must
// hold at least two sorted values.
func NearestIndices(timestamps, targets []float64) []int {
	out := make([]int, len(targets))
	for i, t := range targets {
		idx := bracket(timestamps, t)
		left, right := timestamps[idx-1], timestamps[idx]
		if math.Abs(left-t) <= math.Abs(right-t) {
			out[i] = idx - 1
		} else {
			out[i] = idx
		}
	}
	return out
}

// AlignNearest resamples s onto targets by nearest-neighbor snapping. The
// payload of the nearest sample is kept while the row timestamp becomes the
// target, so the result is indexed by the target clock.
func AlignNearest[T any](s *timeseries.Series[T], targets []float64) (*timeseries.Series[T], error) {
	if s.Len() < timeseries.MinGapSamples {
		return nil, utils.NewInsufficientSamplesError(s.Name, s.Len(), timeseries.MinGapSamples)
	}
	indices := NearestIndices(s.Timestamps, targets)
	payloads := make([]T, len(indices))
	for i, idx := range indices {
		payloads[i] = s.Payloads[idx]
	}
	return &timeseries.Series[T]{
		Name:       s.Name,
		Timestamps: append([]float64(nil), targets...),
		Payloads:   payloads,
	}, nil
}

// Interpolate evaluates every column of s at each target with piecewise linear
// interpolation. Targets outside the observed range follow the nearest edge
// segment (linear extrapolation); no value is ever left missing.
func Interpolate(s *timeseries.NumericSeries, targets []float64) (*timeseries.NumericSeries, error) {
	if s.Len() < timeseries.MinGapSamples {
		return nil, utils.NewInsufficientSamplesError(s.Name, s.Len(), timeseries.MinGapSamples)
	}
	xs := s.Timestamps
	rows := make([]timeseries.Fields, len(targets))
	for i, t := range targets {
		hi := bracket(xs, t)
		lo := hi - 1
		x0, x1 := xs[lo], xs[hi]
		y0, y1 := s.Payloads[lo], s.Payloads[hi]
		row := make(timeseries.Fields, len(s.Columns))
		for c := range row {
			slope := (y1[c] - y0[c]) / (x1 - x0)
			row[c] = slope*(t-x0) + y0[c]
		}
		rows[i] = row
	}
	return &timeseries.NumericSeries{
		Series: timeseries.Series[timeseries.Fields]{
			Name:       s.Name,
			Timestamps: append([]float64(nil), targets...),
			Payloads:   rows,
		},
		Columns: s.Columns,
	}, nil
}

// AlignNumeric resamples a numeric stream onto the reference timeline using the
// strategy its cadence calls for.
func AlignNumeric(s *timeseries.NumericSeries, ref *Reference) (*timeseries.NumericSeries, Strategy, error) {
	strategy, err := ChooseStrategy(s.Name, s.Timestamps, ref.MeanGap)
	if err != nil {
		return nil, 0, err
	}
	if strategy == StrategyInterpolate {
		out, err := Interpolate(s, ref.Timestamps)
		return out, strategy, err
	}
	out, err := AlignNearest(&s.Series, ref.Timestamps)
	if err != nil {
		return nil, 0, err
	}
	return &timeseries.NumericSeries{Series: *out, Columns: s.Columns}, strategy, nil
}

// AlignHandles resamples an opaque-handle stream onto the reference timeline.
// Handles cannot be interpolated, so a stream sparser than the reference is an
// error rather than a silent fallback.
func AlignHandles(s *timeseries.Series[timeseries.Handle], ref *Reference) (*timeseries.Series[timeseries.Handle], error) {
	strategy, err := ChooseStrategy(s.Name, s.Timestamps, ref.MeanGap)
	if err != nil {
		return nil, err
	}
	if strategy == StrategyInterpolate {
		return nil, utils.NewShapeMismatchError("stream %q holds handle payloads which cannot be interpolated", s.Name)
	}
	return AlignNearest(s, ref.Timestamps)
}
