package utils

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestRunWorkerPool(t *testing.T) {
	jobs := make([]int, 100)
	for i := range jobs {
		jobs[i] = i
	}

	t.Run("all jobs processed", func(t *testing.T) {
		var mu sync.Mutex
		var seen []int
		err := RunWorkerPool(context.Background(), 4, jobs, func(ctx context.Context, job int) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, job)
			return nil
		})
		test.That(t, err, test.ShouldBeNil)
		sort.Ints(seen)
		test.That(t, seen, test.ShouldResemble, jobs)
	})

	t.Run("worker count is bounded", func(t *testing.T) {
		var active, peak int32
		err := RunWorkerPool(context.Background(), 3, jobs, func(ctx context.Context, job int) error {
			cur := atomic.AddInt32(&active, 1)
			defer atomic.AddInt32(&active, -1)
			for {
				old := atomic.LoadInt32(&peak)
				if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
					break
				}
			}
			return nil
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, atomic.LoadInt32(&peak), test.ShouldBeLessThanOrEqualTo, int32(3))
	})

	t.Run("first error aborts", func(t *testing.T) {
		bad := errors.New("bad file")
		var processed int32
		err := RunWorkerPool(context.Background(), 2, jobs, func(ctx context.Context, job int) error {
			atomic.AddInt32(&processed, 1)
			if job == 5 {
				return bad
			}
			return nil
		})
		test.That(t, errors.Is(err, bad), test.ShouldBeTrue)
		test.That(t, atomic.LoadInt32(&processed), test.ShouldBeLessThan, int32(len(jobs)))
	})

	t.Run("panic becomes error", func(t *testing.T) {
		err := RunWorkerPool(context.Background(), 2, jobs, func(ctx context.Context, job int) error {
			if job == 1 {
				panic("decoder exploded")
			}
			return nil
		})
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "decoder exploded")
	})

	t.Run("no jobs", func(t *testing.T) {
		err := RunWorkerPool(context.Background(), 0, []int{}, func(ctx context.Context, job int) error {
			return errors.New("should not run")
		})
		test.That(t, err, test.ShouldBeNil)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := RunWorkerPool(ctx, 2, jobs, func(ctx context.Context, job int) error {
			return nil
		})
		test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
	})
}
