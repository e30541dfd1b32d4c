// Package parallel splits CPU-bound loops over index ranges across cores.
package parallel

import (
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// chunks divides [0, items) into at most workers contiguous ranges.
func chunks(items, workers int) [][2]int {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > items {
		workers = items
	}
	chunkSize := (items + workers - 1) / workers

	out := make([][2]int, 0, workers)
	for start := 0; start < items; start += chunkSize {
		end := start + chunkSize
		if end > items {
			end = items
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

// Parallelize divides items according to the number of CPU cores and runs fn
// for each range (start, end) concurrently.
func Parallelize(items int, fn func(start, end int)) {
	if items <= 0 {
		return
	}
	var wg sync.WaitGroup
	for _, c := range chunks(items, 0) {
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(c[0], c[1])
	}
	wg.Wait()
}

// ParallelizeWithThreshold runs fn sequentially when items <= threshold.
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		if items > 0 {
			fn(0, items)
		}
		return
	}
	Parallelize(items, fn)
}

// ParallelizeErr is Parallelize for fallible work. It uses at most workers
// goroutines (NumCPU when workers <= 0) and returns the first error.
func ParallelizeErr(items, workers int, fn func(start, end int) error) error {
	if items <= 0 {
		return nil
	}
	var g errgroup.Group
	for _, c := range chunks(items, workers) {
		s, e := c[0], c[1]
		g.Go(func() error { return fn(s, e) })
	}
	return g.Wait()
}
