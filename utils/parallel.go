package utils

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ParallelFactor controls the default number of workers. This might be useful
// to set in tests where too much parallelism actually slows tests down in
// aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
	quarterProcs := float64(ParallelFactor) * .25
	if quarterProcs > 8 {
		ParallelFactor = int(quarterProcs)
	}
}

// WorkFunc handles a single queued job.
type WorkFunc[J any] func(ctx context.Context, job J) error

// RunWorkerPool runs work over every job using a fixed number of workers that
// consume a shared queue. A non-positive worker count means ParallelFactor.
// The first error (or panic) cancels the context handed to the remaining
// workers and is returned once all of them have stopped; there is no partial
// success.
func RunWorkerPool[J any](ctx context.Context, workers int, jobs []J, work WorkFunc[J]) error {
	if workers <= 0 {
		workers = ParallelFactor
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	g, ctx := errgroup.WithContext(ctx)
	queue := make(chan J)
	g.Go(func() error {
		defer close(queue)
		for _, job := range jobs {
			select {
			case queue <- job:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < workers; i++ {
		g.Go(func() (err error) {
			defer func() {
				if thePanic := recover(); thePanic != nil {
					err = fmt.Errorf("got panic running worker: %v", thePanic)
				}
			}()
			for job := range queue {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if err := work(ctx, job); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
