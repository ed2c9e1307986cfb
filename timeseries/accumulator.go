package timeseries

import (
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/sensorsync/utils"
)

// Accumulator collects decoded samples from concurrent workers. Samples are
// keyed by timestamp so the final series does not depend on completion order.
type Accumulator[T any] struct {
	name    string
	mu      sync.Mutex
	samples map[float64]T
	sources map[float64]string
}

// NewAccumulator returns an empty accumulator for the named stream.
func NewAccumulator[T any](name string) *Accumulator[T] {
	return &Accumulator[T]{
		name:    name,
		samples: map[float64]T{},
		sources: map[float64]string{},
	}
}

// Add records a sample decoded from source. Two sources resolving to the same
// timestamp are ambiguous and rejected.
func (a *Accumulator[T]) Add(ts float64, payload T, source string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if prev, ok := a.sources[ts]; ok {
		return errors.Wrapf(utils.ErrUnorderedSamples, "stream %q: %q and %q both map to %v", a.name, prev, source, ts)
	}
	a.samples[ts] = payload
	a.sources[ts] = source
	return nil
}

// Len returns the number of samples collected so far.
func (a *Accumulator[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.samples)
}

// Series returns the collected samples ordered by timestamp. Callers must only
// invoke it once every producer has finished.
func (a *Accumulator[T]) Series() *Series[T] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return FromMap(a.name, a.samples)
}
