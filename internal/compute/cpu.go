package compute

import (
	"runtime"
	"sync"
)

// DefaultMinChunk is the smallest range handed to a worker goroutine.
const DefaultMinChunk = 64

type CPUBackend struct {
	workers  int
	minChunk int
}

func NewCPUBackend(workers int) *CPUBackend {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &CPUBackend{
		workers:  workers,
		minChunk: DefaultMinChunk,
	}
}

// WithMinChunk sets the chunk floor below which loops run serially.
func (c *CPUBackend) WithMinChunk(n int) *CPUBackend {
	if n < 1 {
		n = 1
	}
	c.minChunk = n
	return c
}

func (c *CPUBackend) Name() string { return "cpu" }
func (c *CPUBackend) Workers() int { return c.workers }

// ParallelFor splits [0, n) into contiguous chunks, one per worker, and waits
// for all of them.
func (c *CPUBackend) ParallelFor(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	if n <= c.minChunk || c.workers <= 1 {
		fn(0, n)
		return
	}

	workers := c.workers
	if n/c.minChunk < workers {
		workers = n / c.minChunk
	}
	if workers < 1 {
		workers = 1
	}

	chunkSize := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > n {
			end = n
		}
		if start >= end {
			break
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}

	wg.Wait()
}
