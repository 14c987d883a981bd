// Package batch runs the product-photo pipeline over a directory: discover,
// analyze, group, classify, then straighten, cut out and compose the chosen
// front and back shots, and finally write the item mapping.
//
// Runs are resumable. Outputs that already exist are counted as done
// without decoding anything, and per-photo analysis is cached next to the
// outputs, so a rerun over a finished directory only rewrites the mapping.
package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/prodshot/internal/classify"
	"github.com/MeKo-Tech/prodshot/internal/common"
	"github.com/MeKo-Tech/prodshot/internal/foreground"
	"github.com/MeKo-Tech/prodshot/internal/grouping"
	"github.com/MeKo-Tech/prodshot/internal/metrics"
	"github.com/MeKo-Tech/prodshot/internal/photo"
	"github.com/MeKo-Tech/prodshot/internal/pipeline"
	"github.com/MeKo-Tech/prodshot/internal/proof"
	"github.com/MeKo-Tech/prodshot/internal/segment"
	"github.com/MeKo-Tech/prodshot/internal/tilt"
	"github.com/MeKo-Tech/prodshot/internal/utils"
)

// Fatal configuration errors, reported before any photo is decoded.
var (
	ErrInputMissing     = errors.New("input directory missing")
	ErrOutputUnwritable = errors.New("output directory not writable")
	ErrNoImages         = errors.New("no supported images found")
)

// Deps are the collaborators of a run. All fields are optional.
type Deps struct {
	// Segmenter cuts the item out; nil always uses the fallback path.
	Segmenter segment.Segmenter
	// Estimator overrides the tilt strategy built from Config.Tilt.
	Estimator tilt.Estimator
	// Progress returns the callback for a stage ("analyze", "render").
	Progress func(stage string) pipeline.ProgressCallback
	// Load decodes a source photo; defaults to utils.LoadImage.
	Load func(path string) (image.Image, error)
}

// Failure records a photo or output that could not be processed.
type Failure struct {
	Path  string `json:"path"`
	Stage string `json:"stage"`
	Err   string `json:"error"`
}

// Summary counts what a run did.
type Summary struct {
	Photos       int   `json:"photos"`
	Analyzed     int   `json:"analyzed"`
	Cached       int   `json:"cached"`
	FailedPhotos int   `json:"failed_photos"`
	Items        int   `json:"items"`
	Outputs      int   `json:"outputs"`
	Written      int   `json:"written"`
	Skipped      int   `json:"skipped"`
	Failed       int   `json:"failed"`
	Fallbacks    int   `json:"fallbacks"`
	Decodes      int64 `json:"decodes"`
	Encodes      int64 `json:"encodes"`
}

// Result is everything a run decided and produced.
type Result struct {
	DryRun      bool             `json:"dry_run"`
	Photos      []*photo.Photo   `json:"photos"`
	Groups      []grouping.Group `json:"-"`
	Items       []Item           `json:"items"`
	Outcomes    []Outcome        `json:"outcomes,omitempty"`
	Mapping     []MappingRecord  `json:"mapping"`
	MappingPath string           `json:"mapping_path,omitempty"`
	ProofPath   string           `json:"proof_path,omitempty"`
	Failures    []Failure        `json:"failures,omitempty"`
	Warnings    []string         `json:"warnings,omitempty"`
	Summary     Summary          `json:"summary"`
	// Render holds worker pool throughput; nil for dry runs.
	Render   *pipeline.ParallelStats `json:"render,omitempty"`
	Duration time.Duration           `json:"duration_ns"`
	Timings  map[string]string       `json:"timings"`
}

// runner carries the state of one Run.
type runner struct {
	cfg        *Config
	deps       Deps
	estimator  tilt.Estimator
	normalizer *foreground.Normalizer
	timings    *common.StageTimings
	cache      map[string]AnalysisRow

	decodes atomic.Int64
	encodes atomic.Int64

	mu       sync.Mutex
	failures []Failure
}

// Run executes a batch. Configuration problems are returned before any
// processing starts; per-photo problems end up in Result.Failures.
// Cancelling ctx aborts the run without writing the mapping file.
func Run(ctx context.Context, cfg *Config, deps Deps) (*Result, error) {
	start := time.Now()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid batch config: %w", err)
	}
	if err := preflight(cfg); err != nil {
		metrics.RecordRun("failed")
		return nil, err
	}

	var overrides *Overrides
	if cfg.OverridesFile != "" {
		o, err := LoadOverrides(cfg.OverridesFile)
		if err != nil {
			metrics.RecordRun("failed")
			return nil, err
		}
		overrides = o
	}

	r, err := newRunner(cfg, deps)
	if err != nil {
		return nil, err
	}

	res, err := r.run(ctx, overrides)
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		metrics.RecordRun("cancelled")
		return nil, err
	case err != nil:
		metrics.RecordRun("failed")
		return nil, err
	case cfg.DryRun:
		metrics.RecordRun("dry_run")
	default:
		metrics.RecordRun("completed")
	}

	res.Duration = time.Since(start)
	res.Timings = make(map[string]string)
	for stage, d := range r.timings.Snapshot() {
		res.Timings[stage] = d.Round(time.Millisecond).String()
	}

	if cfg.MetricsFile != "" && !cfg.DryRun {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			slog.Warn("metrics textfile not written", "path", cfg.MetricsFile, "error", err)
			res.Warnings = append(res.Warnings, err.Error())
		}
	}
	return res, nil
}

func newRunner(cfg *Config, deps Deps) (*runner, error) {
	est := deps.Estimator
	if est == nil {
		var err error
		if est, err = tilt.New(cfg.Tilt); err != nil {
			return nil, fmt.Errorf("tilt estimator: %w", err)
		}
	}
	if deps.Load == nil {
		deps.Load = func(path string) (image.Image, error) {
			img, _, err := utils.LoadImage(path)
			return img, err
		}
	}
	if deps.Progress == nil {
		deps.Progress = func(string) pipeline.ProgressCallback { return pipeline.NoOpProgressCallback{} }
	}
	return &runner{
		cfg:        cfg,
		deps:       deps,
		estimator:  est,
		normalizer: foreground.New(deps.Segmenter, cfg.Foreground),
		timings:    common.NewStageTimings(),
	}, nil
}

func (r *runner) run(ctx context.Context, overrides *Overrides) (*Result, error) {
	cfg := r.cfg
	res := &Result{DryRun: cfg.DryRun}

	paths, err := discoverImages(cfg.InputDir, cfg.Recursive, cfg.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInputMissing, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoImages, cfg.InputDir)
	}
	slog.Info("discovered photos", "dir", cfg.InputDir, "count", len(paths))
	res.Summary.Photos = len(paths)

	r.cache = r.loadCache()

	t := common.NewNamedTimer("analyze")
	photos, cached, err := r.analyze(ctx, paths)
	r.record(t)
	if err != nil {
		return nil, err
	}
	sortPhotos(photos)
	res.Photos = photos
	res.Summary.Cached = cached
	res.Summary.Analyzed = len(photos) - cached

	t = common.NewNamedTimer("plan")
	res.Groups = grouping.Partition(photos, cfg.Grouping)
	assignments := make([]classify.Assignment, len(res.Groups))
	for i, g := range res.Groups {
		assignments[i] = classify.Classify(g, cfg.Classify)
	}
	format, _ := canvasFormat(cfg)
	res.Items = planItems(res.Groups, assignments, cfg.OutputDir, cfg.Prefix, format)
	if overrides != nil {
		res.Warnings = append(res.Warnings, overrides.Apply(res.Items, photos, cfg.InputDir)...)
	}
	r.record(t)
	res.Summary.Items = len(res.Items)
	for _, it := range res.Items {
		res.Summary.Outputs += len(it.Outputs())
	}

	if cfg.DryRun {
		res.Mapping = buildMapping(res.Items, nil)
		r.finish(res)
		return res, nil
	}

	r.saveCache(photos, res.Items)

	t = common.NewNamedTimer("render")
	outcomes, stats, err := r.renderAll(ctx, res.Items)
	r.record(t)
	if err != nil {
		return nil, err
	}
	res.Outcomes = outcomes
	res.Render = &stats

	res.Mapping = buildMapping(res.Items, outcomes)
	res.MappingPath = filepath.Join(cfg.OutputDir, cfg.MappingFile)
	if err := WriteMapping(res.MappingPath, res.Mapping); err != nil {
		return nil, err
	}
	slog.Info("mapping written", "path", res.MappingPath, "items", len(res.Mapping))

	if cfg.ProofFile != "" {
		if _, err := proof.Write(cfg.ProofFile, outputPaths(res.Items, outcomes)); err != nil {
			slog.Warn("proof sheet not written", "path", cfg.ProofFile, "error", err)
			res.Warnings = append(res.Warnings, err.Error())
		} else {
			res.ProofPath = cfg.ProofFile
		}
	}

	r.finish(res)
	return res, nil
}

// finish copies the counters into the result.
func (r *runner) finish(res *Result) {
	r.mu.Lock()
	res.Failures = append(res.Failures, r.failures...)
	r.mu.Unlock()

	for _, f := range res.Failures {
		if f.Stage == stageAnalyze {
			res.Summary.FailedPhotos++
		}
	}
	for _, o := range res.Outcomes {
		switch o.Status {
		case StatusWritten:
			res.Summary.Written++
		case StatusSkipped:
			res.Summary.Skipped++
		case StatusFailed:
			res.Summary.Failed++
		}
		if o.Fallback {
			res.Summary.Fallbacks++
		}
	}
	res.Summary.Decodes = r.decodes.Load()
	res.Summary.Encodes = r.encodes.Load()
}

func (r *runner) record(t *common.Timer) {
	t.Stop()
	r.timings.Record(t)
	metrics.RecordStage(t.Name(), t.Duration())
}

func (r *runner) fail(path, stage string, err error) {
	slog.Warn("photo failed", "path", path, "stage", stage, "error", err)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, Failure{Path: path, Stage: stage, Err: err.Error()})
}

// load decodes a source photo and counts the decode.
func (r *runner) load(path string) (image.Image, error) {
	r.decodes.Add(1)
	return r.deps.Load(path)
}

// preflight validates the directories before any work starts.
func preflight(cfg *Config) error {
	info, err := os.Stat(cfg.InputDir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInputMissing, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInputMissing, cfg.InputDir)
	}
	if cfg.DryRun {
		return nil
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
		return fmt.Errorf("%w: %w", ErrOutputUnwritable, err)
	}
	tmp, err := os.CreateTemp(cfg.OutputDir, ".prodshot-write-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOutputUnwritable, err)
	}
	name := tmp.Name()
	_ = tmp.Close()
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("%w: %w", ErrOutputUnwritable, err)
	}
	return nil
}
