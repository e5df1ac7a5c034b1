// Package partitioner implements spec.md §4.7/§4.8 (component J): the
// horizontal splitter, the hierarchical partitioner built on top of it, and
// the bounded worker pool both use for their two parallel loops (per-column-
// group horizontal partitioning, per-candidate-merge cost evaluation).
//
// Grounded on datalog/executor/worker_pool.go's WorkerPool.ExecuteParallel
// for the job-channel + sync.WaitGroup, order-preserving, first-error-wins
// shape; generalized to Go 1.21 generics since hierplan only ever calls it
// with two concrete job shapes and gains nothing from the teacher's
// interface{} signature.
package partitioner

import (
	"fmt"
	"runtime"
	"sync"
)

// WorkerCount returns min(12, 80% of NumCPU), floored at 1 — the thread
// count the original partitioner computed once per hierarchicalPartition
// call (std::min(12, hardware_concurrency() * 0.8)).
func WorkerCount() int {
	n := int(float64(runtime.NumCPU()) * 0.8)
	if n > 12 {
		n = 12
	}
	if n < 1 {
		n = 1
	}
	return n
}

// ParallelMap runs fn over items using up to workers goroutines, returning
// results in input order. The first error encountered (by input index)
// aborts the call; every job still gets submitted to a worker even after an
// error occurs elsewhere, matching the teacher's "always drain inputs, check
// errors after" structure.
func ParallelMap[T, R any](workers int, items []T, fn func(T) (R, error)) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = WorkerCount()
	}
	if workers > len(items) {
		workers = len(items)
	}

	results := make([]R, len(items))
	errs := make([]error, len(items))
	jobs := make(chan int, len(items))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				r, err := fn(items[idx])
				results[idx] = r
				errs[idx] = err
			}
		}()
	}

	for i := range items {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("parallel execution failed at index %d: %w", i, err)
		}
	}
	return results, nil
}
