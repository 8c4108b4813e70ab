// Package workerpool bounds the CPU-bound tensor work the clean and
// smudge pipelines fan out per parameter, so a checkpoint with thousands
// of tensors doesn't spawn thousands of concurrent goroutines. It
// generalizes the teacher's channel/stopCh worker loop into an
// errgroup-based limited-concurrency group, since this domain's "work
// items" are short-lived per-parameter calls rather than long-running
// containers.
package workerpool

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Resolve turns the GIT_THETA_MAX_CONCURRENCY convention (-1 = auto) into
// a concrete worker count.
func Resolve(maxConcurrency int) int {
	if maxConcurrency <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return maxConcurrency
}

// Run executes fn(item) for every item in items, at most `concurrency`
// at a time, and returns the first error encountered. On error, the
// shared context is canceled and remaining in-flight calls are expected
// to observe it; Run does not force-stop goroutines already running.
func Run[T any](ctx context.Context, concurrency int, items []T, fn func(ctx context.Context, item T) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(Resolve(concurrency))
	for _, item := range items {
		item := item
		g.Go(func() error {
			return fn(gctx, item)
		})
	}
	return g.Wait()
}

// Map is Run with a per-item result collected alongside the error:
// results[i] is fn's result for items[i]. If any call fails, Map returns
// a nil slice and the first error.
func Map[T any, R any](ctx context.Context, concurrency int, items []T, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	results := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(Resolve(concurrency))
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			r, err := fn(gctx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
