package timeseries

import (
	"gonum.org/v1/gonum/stat"

	"go.viam.com/sensorsync/utils"
)

// GapPrefix is how many leading samples are considered when estimating a
// stream's cadence. Streams of very different length are compared on the same
// footing and the cost stays bounded.
const GapPrefix = 200

// MinGapSamples is the fewest samples for which a gap is defined.
const MinGapSamples = 2

// MeanGap returns the mean difference between consecutive timestamps over the
// first min(GapPrefix, len(timestamps)) samples.
func MeanGap(name string, timestamps []float64) (float64, error) {
	n := len(timestamps)
	if n < MinGapSamples {
		return 0, utils.NewInsufficientSamplesError(name, n, MinGapSamples)
	}
	if n > GapPrefix {
		n = GapPrefix
	}
	diffs := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diffs[i-1] = timestamps[i] - timestamps[i-1]
	}
	return stat.Mean(diffs, nil), nil
}
