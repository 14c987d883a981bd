package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MeKo-Tech/prodshot/internal/canvas"
	"github.com/MeKo-Tech/prodshot/internal/classify"
	"github.com/MeKo-Tech/prodshot/internal/metrics"
	"github.com/MeKo-Tech/prodshot/internal/pipeline"
	"github.com/MeKo-Tech/prodshot/internal/tilt"
)

// Status is the result of rendering one output.
type Status string

const (
	StatusWritten Status = "written"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome describes one rendered (or skipped) output.
type Outcome struct {
	Item           int           `json:"item"`
	Role           classify.Role `json:"role"`
	Source         string        `json:"source"`
	Path           string        `json:"path"`
	Status         Status        `json:"status"`
	Tilt           tilt.Estimate `json:"tilt"`
	Fallback       bool          `json:"fallback,omitempty"`
	FallbackReason string        `json:"fallback_reason,omitempty"`
	Err            string        `json:"error,omitempty"`
	Duration       time.Duration `json:"duration_ns"`
}

type renderJob struct {
	item int
	out  *Output
}

// renderAll renders every planned output on the worker pool.
func (r *runner) renderAll(ctx context.Context, items []Item) ([]Outcome, pipeline.ParallelStats, error) {
	var jobs []renderJob
	for _, it := range items {
		for _, o := range it.Outputs() {
			jobs = append(jobs, renderJob{item: it.Index, out: o})
		}
	}

	cfg := pipeline.DefaultParallelConfig()
	if r.cfg.Workers > 0 {
		cfg.MaxWorkers = r.cfg.Workers
	}
	cfg.ProgressCallback = r.deps.Progress(stageRender)
	cfg.ErrorHandler = func(i int, err error) {
		r.fail(jobs[i].out.Source.SourcePath, stageRender, err)
	}

	start := time.Now()
	outcomes, errs, err := pipeline.RunParallel(ctx, jobs, cfg, r.render)
	if err != nil {
		return nil, pipeline.ParallelStats{}, err
	}
	stats := pipeline.CalculateParallelStats(errs, time.Since(start), max(1, min(cfg.MaxWorkers, len(jobs))))
	return outcomes, stats, nil
}

// render produces one output. An existing destination is left untouched
// and counted as done, which is what makes interrupted runs resumable.
func (r *runner) render(ctx context.Context, j renderJob) (Outcome, error) {
	start := time.Now()
	o := Outcome{Item: j.item, Role: j.out.Role, Source: j.out.Source.SourcePath, Path: j.out.Path}
	role := string(j.out.Role)

	if _, err := os.Stat(j.out.Path); err == nil {
		o.Status = StatusSkipped
		metrics.RecordOutput(role, string(o.Status))
		return o, nil
	}

	err := r.renderTo(ctx, j.out, &o)
	o.Duration = time.Since(start)
	if err != nil {
		o.Status, o.Err = StatusFailed, err.Error()
		metrics.RecordOutput(role, string(o.Status))
		return o, err
	}
	o.Status = StatusWritten
	metrics.RecordOutput(role, string(o.Status))
	return o, nil
}

func (r *runner) renderTo(ctx context.Context, out *Output, o *Outcome) error {
	img, err := r.load(out.Source.SourcePath)
	if err != nil {
		return err
	}

	est, err := r.estimator.Estimate(ctx, img)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// No usable tilt signal is never fatal for the photo.
		slog.Warn("tilt estimation failed, keeping orientation", "path", out.Source.SourcePath, "error", err)
		est = tilt.Estimate{Strategy: r.estimator.Name()}
	}
	o.Tilt = est
	if r.cfg.Tilt.Applies(est) {
		metrics.RecordTilt(est.Strategy, est.Confidence.String(), est.Angle)
	}
	straight := tilt.Straighten(img, est, r.cfg.Tilt)

	norm, err := r.normalizer.Normalize(ctx, straight)
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}
	o.Fallback, o.FallbackReason = norm.Fallback, norm.Reason
	if norm.Fallback {
		metrics.RecordFallback(norm.Reason)
	}

	format, err := canvasFormat(r.cfg)
	if err != nil {
		return err
	}
	composed := canvas.Compose(norm.Image, r.cfg.Canvas.Size)
	if err := ctx.Err(); err != nil {
		return err
	}
	r.encodes.Add(1)
	if err := canvas.Save(out.Path, composed, format, r.cfg.Canvas.Quality); err != nil {
		return err
	}
	slog.Debug("output written",
		"path", out.Path,
		"source", out.Source.Name(),
		"tilt", est.String(),
		"fallback", norm.Fallback,
		"original_size", norm.OriginalSize,
		"final_size", norm.FinalSize,
	)
	return nil
}

// outputPaths lists the outputs present after the render stage, in item order.
func outputPaths(items []Item, outcomes []Outcome) []string {
	ok := make(map[string]bool, len(outcomes))
	for _, o := range outcomes {
		ok[o.Path] = o.Status != StatusFailed
	}
	var paths []string
	for _, it := range items {
		for _, out := range it.Outputs() {
			if ok[out.Path] {
				paths = append(paths, out.Path)
			}
		}
	}
	return paths
}
