package async

import (
	"runtime"
	"sync"

	"github.com/pkg/errors"
)

// WorkerResult is one worker's contribution to a Scatter call: Offset is
// where its extent begins in the logical [0, n) range and Extent is
// whatever the worker function returned for that slice.
type WorkerResult struct {
	Offset int
	Extent interface{}
}

// Scatter splits n units of work across GOMAXPROCS workers, invoking f once
// per worker with its (offset, entries) slice of the range and a shared
// RWMutex for workers that need to coordinate writes into a common
// structure. It is used to parallelize the POW nonce search across CPUs
// while keeping all other core state mutation serialized (spec.md §5).
func Scatter(n int, f func(offset int, entries int, mu *sync.RWMutex) (interface{}, error)) ([]WorkerResult, error) {
	if n <= 0 {
		return nil, errors.New("input length must be greater than 0")
	}

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > n {
		numWorkers = n
	}
	chunk := n / numWorkers
	remainder := n % numWorkers

	var wg sync.WaitGroup
	var mu sync.RWMutex
	results := make([]WorkerResult, numWorkers)
	errs := make([]error, numWorkers)

	offset := 0
	for i := 0; i < numWorkers; i++ {
		entries := chunk
		if i < remainder {
			entries++
		}
		wg.Add(1)
		go func(idx, off, cnt int) {
			defer wg.Done()
			extent, err := f(off, cnt, &mu)
			results[idx] = WorkerResult{Offset: off, Extent: extent}
			errs[idx] = err
		}(i, offset, entries)
		offset += entries
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
