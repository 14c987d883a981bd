// Package pipeline runs independent work items on a bounded worker pool and
// reports their progress.
package pipeline

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// ParallelConfig configures RunParallel.
type ParallelConfig struct {
	MaxWorkers       int // 0 = runtime.NumCPU()
	ProgressCallback ProgressCallback
	// ErrorHandler is called for every failed item, in input order.
	ErrorHandler func(index int, err error)
}

// DefaultParallelConfig uses one worker per CPU.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{MaxWorkers: runtime.NumCPU()}
}

type job[J any] struct {
	index int
	item  J
}

type outcome[R any] struct {
	index  int
	result R
	err    error
}

// RunParallel applies fn to every item using at most cfg.MaxWorkers
// goroutines. Results and errors are returned in input order; a failed item
// leaves the zero value in results and does not stop the others.
// Cancelling ctx stops handing out new items and returns ctx.Err().
func RunParallel[J, R any](
	ctx context.Context,
	items []J,
	cfg ParallelConfig,
	fn func(ctx context.Context, item J) (R, error),
) ([]R, []error, error) {
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = max(1, min(workers, len(items)))

	progress := cfg.ProgressCallback
	if progress == nil {
		progress = NoOpProgressCallback{}
	}
	progress.OnStart(len(items))
	defer progress.OnComplete()

	jobs := make(chan job[J])
	outcomes := make(chan outcome[R], workers)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				r, err := fn(ctx, j.item)
				outcomes <- outcome[R]{index: j.index, result: r, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, it := range items {
			select {
			case jobs <- job[J]{index: i, item: it}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	results := make([]R, len(items))
	errs := make([]error, len(items))
	done := 0
	for o := range outcomes {
		results[o.index], errs[o.index] = o.result, o.err
		done++
		if o.err != nil {
			progress.OnError(done, o.err)
		}
		progress.OnProgress(done, len(items))
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if cfg.ErrorHandler != nil {
		for i, err := range errs {
			if err != nil {
				cfg.ErrorHandler(i, err)
			}
		}
	}
	return results, errs, nil
}

// ParallelStats summarizes a RunParallel call.
type ParallelStats struct {
	Total            int           `json:"total"`
	Succeeded        int           `json:"succeeded"`
	Failed           int           `json:"failed"`
	Workers          int           `json:"workers"`
	Duration         time.Duration `json:"duration_ns"`
	AveragePerItem   time.Duration `json:"average_per_item_ns"`
	ThroughputPerSec float64       `json:"throughput_per_sec"`
}

// CalculateParallelStats derives throughput figures from the error slice
// returned by RunParallel.
func CalculateParallelStats(errs []error, duration time.Duration, workers int) ParallelStats {
	s := ParallelStats{Total: len(errs), Workers: workers, Duration: duration}
	for _, err := range errs {
		if err != nil {
			s.Failed++
		} else {
			s.Succeeded++
		}
	}
	if s.Total > 0 && duration > 0 {
		s.AveragePerItem = duration / time.Duration(s.Total)
		s.ThroughputPerSec = float64(s.Total) / duration.Seconds()
	}
	return s
}
