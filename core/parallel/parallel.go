package parallel

import (
	"context"
	"runtime"
	"sync"

	"github.com/YuminosukeSato/heartpredict/pkg/errors"
)

// Parallelize divides the specified total number (items) according to the number of CPU cores,
// and executes the specified function (fn) in parallel for each range (start, end)
func Parallelize(items int, fn func(start, end int)) {
	if items == 0 {
		return
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > items {
		numWorkers = items // No need for more workers than items
	}

	// Calculate the number of items each worker handles (ceiling division)
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := min(start+chunkSize, items)
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ParallelizeWithThreshold performs parallelization only when the number of items exceeds the threshold
// If below threshold, normal sequential processing is performed
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, fn)
}

// Jobs runs nJobs independent jobs on nWorkers goroutines. nWorkers <= 0 means one per CPU.
// The first error (or a cancelled ctx) stops the remaining jobs and is returned.
// A panicking job is reported as an errors.PanicError.
func Jobs(ctx context.Context, nJobs, nWorkers int, job func(workerID, jobID int) error) error {
	if nJobs == 0 {
		return nil
	}
	if nWorkers <= 0 {
		nWorkers = runtime.NumCPU()
	}
	nWorkers = min(nWorkers, nJobs)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	go func() {
		defer close(jobs)
		for i := 0; i < nJobs; i++ {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}
	for w := 0; w < nWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for jobID := range jobs {
				if ctx.Err() != nil {
					return
				}
				err := errors.SafeExecute("parallel job", func() error {
					return job(workerID, jobID)
				})
				if err != nil {
					fail(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}
