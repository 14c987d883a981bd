// Package benchmark times the per-photo stages on real session photos, so
// tilt strategies and segmentation backends can be compared on a shoot
// before a large batch is started.
package benchmark

import (
	"context"
	"fmt"
	"image"
	"io"
	"runtime"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/MeKo-Tech/prodshot/internal/canvas"
	"github.com/MeKo-Tech/prodshot/internal/common"
	"github.com/MeKo-Tech/prodshot/internal/segment"
	"github.com/MeKo-Tech/prodshot/internal/tilt"
)

// MemoryStats holds memory usage statistics.
type MemoryStats struct {
	AllocBytes      uint64  // Currently allocated bytes
	TotalAllocBytes uint64  // Total allocated bytes (cumulative)
	SysBytes        uint64  // Total bytes from system
	NumGC           uint32  // Number of GC runs
	GCCPUFraction   float64 // Fraction of CPU time spent in GC
}

// GetMemoryStats returns current memory statistics.
func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return MemoryStats{
		AllocBytes:      m.Alloc,
		TotalAllocBytes: m.TotalAlloc,
		SysBytes:        m.Sys,
		NumGC:           m.NumGC,
		GCCPUFraction:   m.GCCPUFraction,
	}
}

func (m MemoryStats) String() string {
	return fmt.Sprintf("Alloc: %d KB, Total: %d KB, Sys: %d KB, GC: %d (%.2f%% CPU)",
		m.AllocBytes/1024,
		m.TotalAllocBytes/1024,
		m.SysBytes/1024,
		m.NumGC,
		m.GCCPUFraction*100)
}

// Result holds the outcome of one benchmark.
type Result struct {
	Name         string
	Duration     time.Duration
	MemoryBefore MemoryStats
	MemoryAfter  MemoryStats
	Iterations   int
	Error        error
}

// Avg returns the mean duration of one iteration.
func (r Result) Avg() time.Duration {
	if r.Iterations == 0 {
		return 0
	}
	return r.Duration / time.Duration(r.Iterations)
}

// AllocatedKB is the cumulative allocation during the run.
func (r Result) AllocatedKB() uint64 {
	return (r.MemoryAfter.TotalAllocBytes - r.MemoryBefore.TotalAllocBytes) / 1024
}

func (r Result) String() string {
	if r.Error != nil {
		return fmt.Sprintf("%s: ERROR - %v", r.Name, r.Error)
	}
	return fmt.Sprintf("%s: %d iterations, avg: %v, total: %v, alloc: %d KB",
		r.Name, r.Iterations, r.Avg(), r.Duration, r.AllocatedKB())
}

// Benchmark is one named operation.
type Benchmark struct {
	Name string
	Func func(ctx context.Context) error
}

// Suite manages multiple benchmarks.
type Suite struct {
	benchmarks []Benchmark
	results    []Result
	mu         sync.Mutex
}

// NewSuite creates an empty suite.
func NewSuite() *Suite {
	return &Suite{}
}

// Add adds a benchmark to the suite.
func (s *Suite) Add(name string, fn func(ctx context.Context) error) {
	s.benchmarks = append(s.benchmarks, Benchmark{Name: name, Func: fn})
}

// Names lists the benchmarks in insertion order.
func (s *Suite) Names() []string {
	names := make([]string, len(s.benchmarks))
	for i, b := range s.benchmarks {
		names[i] = b.Name
	}
	return names
}

// Run runs a single benchmark with the specified number of iterations.
func (s *Suite) Run(ctx context.Context, name string, iterations int) Result {
	for _, b := range s.benchmarks {
		if b.Name == name {
			return run(ctx, b, iterations)
		}
	}
	return Result{Name: name, Error: fmt.Errorf("benchmark '%s' not found", name)}
}

// RunAll runs every benchmark. A cancelled ctx stops after the current one.
func (s *Suite) RunAll(ctx context.Context, iterations int) []Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = make([]Result, 0, len(s.benchmarks))
	for _, b := range s.benchmarks {
		if ctx.Err() != nil {
			break
		}
		s.results = append(s.results, run(ctx, b, iterations))
	}
	return s.results
}

func run(ctx context.Context, b Benchmark, iterations int) Result {
	runtime.GC()
	memBefore := GetMemoryStats()

	timer := common.NewNamedTimer(b.Name)
	var err error
	done := 0
	for range iterations {
		if err = b.Func(ctx); err != nil {
			break
		}
		done++
	}
	duration := timer.Stop()

	return Result{
		Name:         b.Name,
		Duration:     duration,
		MemoryBefore: memBefore,
		MemoryAfter:  GetMemoryStats(),
		Iterations:   done,
		Error:        err,
	}
}

// Results returns the last run results.
func (s *Suite) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

// WriteResults prints the results as a table.
func WriteResults(w io.Writer, results []Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BENCHMARK\tITERATIONS\tAVG\tTOTAL\tALLOC")
	for _, r := range results {
		if r.Error != nil {
			fmt.Fprintf(tw, "%s\tERROR\t%v\t\t\n", r.Name, r.Error)
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%v\t%v\t%d KB\n",
			r.Name, r.Iterations, r.Avg().Round(time.Microsecond), r.Duration.Round(time.Millisecond), r.AllocatedKB())
	}
	return tw.Flush()
}

// StageSuite benchmarks the per-photo stages over imgs: every tilt
// strategy, the segmenter when one is given, and canvas composition.
// One iteration processes all images.
func StageSuite(imgs []image.Image, tiltCfg tilt.Config, seg segment.Segmenter, size int) (*Suite, error) {
	s := NewSuite()
	for _, name := range tilt.Strategies {
		if name == tilt.StrategyNone {
			continue
		}
		cfg := tiltCfg
		cfg.Strategy = name
		est, err := tilt.New(cfg)
		if err != nil {
			return nil, err
		}
		s.Add("tilt/"+name, func(ctx context.Context) error {
			for _, img := range imgs {
				if _, err := est.Estimate(ctx, img); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if seg != nil {
		s.Add("segment/"+seg.Name(), func(ctx context.Context) error {
			for _, img := range imgs {
				if _, err := seg.Segment(ctx, img); err != nil {
					return err
				}
			}
			return nil
		})
	}

	s.Add("canvas/compose", func(ctx context.Context) error {
		for _, img := range imgs {
			if err := ctx.Err(); err != nil {
				return err
			}
			canvas.Compose(img, size)
		}
		return nil
	})
	return s, nil
}
