package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/prodshot/internal/batch"
	"github.com/MeKo-Tech/prodshot/internal/config"
	"github.com/MeKo-Tech/prodshot/internal/pipeline"
	"github.com/spf13/cobra"
)

func newProcessCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <input-dir> <output-dir>",
		Short: "Produce catalog images and the mapping file for a photo session",
		Long: `Process a directory of session photos into square catalog images.

Photos are grouped into items by frame number and color, front and back
shots are chosen by edge detail, straightened, cut out and centered on a
white canvas. Existing outputs are kept, so an interrupted run can simply
be started again. The mapping file is written once all items are done.

Supported formats: JPEG, PNG, BMP, TIFF, WebP

Examples:
  prodshot process ./session ./catalog
  prodshot process ./session ./catalog --workers 8 --format png
  prodshot process ./session ./catalog --overrides picks.yaml --proof proof.pdf
  prodshot process ./session ./catalog --dry-run`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configToBatchConfig(a.cfg, cmd)
			cfg.InputDir, cfg.OutputDir = args[0], args[1]
			return runBatch(cmd, a, cfg, reportFormat(a.cfg, cmd))
		},
	}

	addBatchFlags(cmd)
	return cmd
}

// addBatchFlags defines the flags shared by process and analyze.
func addBatchFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Bool("dry-run", false, "show the planned items without writing anything")
	f.Bool("force-fallback", false, "skip segmentation and letterbox the original photos")
	f.IntP("workers", "w", 0, "number of parallel workers (default: number of CPUs)")
	f.BoolP("recursive", "r", false, "include sub-directories")
	f.StringSlice("exclude", nil, "file name patterns to skip (e.g. '*_raw.jpg')")
	f.String("prefix", "", "output file name prefix (default \"item\")")
	f.String("overrides", "", "YAML file with manual front/back picks")
	f.String("proof", "", "write a PDF proof sheet of all outputs to this file")
	f.String("metrics-file", "", "write Prometheus metrics in textfile format")
	f.Bool("no-cache", false, "do not read or write the analysis cache")
	f.String("format", "", "output image format: jpeg or png")
	f.Int("size", 0, "canvas edge length in pixels")
	f.Int("quality", 0, "JPEG quality (1-100)")
	f.String("tilt-strategy", "", "tilt strategy: combined, lines, contour, bbox, alignment, none")
	f.String("segmenter", "", "segmentation backend: keyer, onnx, none")
	f.BoolP("quiet", "q", false, "no progress output")
	f.Bool("progress", true, "show a progress bar")
	f.String("report", "", "end-of-run report: text or json")
}

// configToBatchConfig maps centralized configuration to batch.Config.
// Flags given on the command line override config file values.
func configToBatchConfig(cfg *config.Config, cmd *cobra.Command) *batch.Config {
	c := *cfg
	f := cmd.Flags()

	if f.Changed("dry-run") {
		c.Batch.DryRun, _ = f.GetBool("dry-run")
	}
	if f.Changed("force-fallback") {
		c.Foreground.ForceFallback, _ = f.GetBool("force-fallback")
	}
	if f.Changed("workers") {
		c.Batch.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("recursive") {
		c.Input.Recursive, _ = f.GetBool("recursive")
	}
	if f.Changed("exclude") {
		c.Input.Exclude, _ = f.GetStringSlice("exclude")
	}
	if f.Changed("prefix") {
		c.Output.Prefix, _ = f.GetString("prefix")
	}
	if f.Changed("overrides") {
		c.Output.OverridesFile, _ = f.GetString("overrides")
	}
	if f.Changed("proof") {
		c.Output.ProofFile, _ = f.GetString("proof")
	}
	if f.Changed("metrics-file") {
		c.Output.MetricsFile, _ = f.GetString("metrics-file")
	}
	if noCache, _ := f.GetBool("no-cache"); noCache {
		c.Output.AnalysisFile = ""
	}
	if f.Changed("format") {
		c.Canvas.Format, _ = f.GetString("format")
	}
	if f.Changed("size") {
		c.Canvas.Size, _ = f.GetInt("size")
	}
	if f.Changed("quality") {
		c.Canvas.Quality, _ = f.GetInt("quality")
	}
	if f.Changed("tilt-strategy") {
		c.Tilt.Strategy, _ = f.GetString("tilt-strategy")
	}
	if f.Changed("segmenter") {
		c.Segment.Backend, _ = f.GetString("segmenter")
	}
	if f.Changed("quiet") {
		c.Batch.Quiet, _ = f.GetBool("quiet")
	}
	if f.Changed("progress") {
		c.Batch.Progress, _ = f.GetBool("progress")
	}
	return c.ToBatchConfig()
}

func reportFormat(cfg *config.Config, cmd *cobra.Command) string {
	if cmd.Flags().Changed("report") {
		r, _ := cmd.Flags().GetString("report")
		return r
	}
	return cfg.Output.Report
}

// runBatch executes cfg with console progress and prints the report.
func runBatch(cmd *cobra.Command, a *app, cfg *batch.Config, report string) error {
	segCfg := *a.cfg
	if cmd.Flags().Changed("segmenter") {
		segCfg.Segment.Backend, _ = cmd.Flags().GetString("segmenter")
	}
	var deps batch.Deps
	if !cfg.DryRun && !cfg.Foreground.ForceFallback {
		seg, err := newSegmenter(&segCfg)
		if err != nil {
			return fmt.Errorf("segmenter: %w", err)
		}
		defer closeSegmenter(seg)
		deps.Segmenter = seg
	}
	deps.Progress = progressFactory(cmd.ErrOrStderr(), cfg)

	res, err := batch.Run(cmd.Context(), cfg, deps)
	if err != nil {
		return err
	}
	return writeResult(cmd.OutOrStdout(), res, report)
}

// progressFactory returns a console bar per stage and mirrors progress to
// the debug log. Quiet runs get no progress at all.
func progressFactory(w io.Writer, cfg *batch.Config) func(string) pipeline.ProgressCallback {
	if cfg.Quiet {
		return nil
	}
	interval := cfg.ProgressInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return func(stage string) pipeline.ProgressCallback {
		multi := pipeline.NewMultiProgressCallback(
			pipeline.NewLogProgressCallback(slog.Default(), slog.LevelDebug, stage).WithInterval(25))
		if cfg.ShowProgress {
			multi.Add(pipeline.NewConsoleProgressCallback(w, stage+" ").WithUpdateInterval(interval))
		}
		return multi
	}
}

func writeResult(w io.Writer, res *batch.Result, report string) error {
	if report == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	if res.DryRun {
		if err := batch.WriteReport(w, res); err != nil {
			return err
		}
	} else if len(res.Failures) > 0 || len(res.Warnings) > 0 {
		if err := batch.WriteReport(w, &batch.Result{Failures: res.Failures, Warnings: res.Warnings}); err != nil {
			return err
		}
	}
	return batch.WriteSummary(w, res)
}
