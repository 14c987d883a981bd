package config

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/prodshot/internal/batch"
	"github.com/MeKo-Tech/prodshot/internal/canvas"
	"github.com/MeKo-Tech/prodshot/internal/classify"
	"github.com/MeKo-Tech/prodshot/internal/foreground"
	"github.com/MeKo-Tech/prodshot/internal/grouping"
	"github.com/MeKo-Tech/prodshot/internal/models"
	"github.com/MeKo-Tech/prodshot/internal/segment"
	"github.com/MeKo-Tech/prodshot/internal/tilt"
)

var (
	validLogLevels = []string{"debug", "info", "warn", "error"}
	validReports   = []string{"text", "json"}
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ModelsDir: models.DefaultModelsDir,
		LogLevel:  "info",
		Output: OutputConfig{
			Prefix:       batch.DefaultPrefix,
			MappingFile:  batch.DefaultMappingFile,
			AnalysisFile: batch.DefaultAnalysisFile,
			Report:       "text",
		},
		Grouping:   grouping.DefaultConfig(),
		Classify:   classify.DefaultConfig(),
		Tilt:       tilt.DefaultConfig(),
		Segment:    segment.DefaultConfig(),
		Foreground: foreground.DefaultConfig(),
		Canvas:     canvas.DefaultConfig(),
		Batch: BatchConfig{
			Workers:            runtime.NumCPU(),
			Progress:           true,
			ProgressIntervalMS: 100,
		},
		Server: ServerConfig{
			Host:              "localhost",
			Port:              8080,
			CORSOrigin:        "*",
			TimeoutSec:        30,
			ShutdownTimeout:   10,
			MaxRuns:           2,
			RunTTLMinutes:     60,
			ProgressRate:      10,
			RequestsPerMinute: 30,
		},
	}
}

// Validate validates the configuration and returns any errors.
// Input and output directories are checked by the commands that need them.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if c.Output.Report != "" && !slices.Contains(validReports, c.Output.Report) {
		return fmt.Errorf("invalid report format: %s (must be one of: %s)", c.Output.Report, strings.Join(validReports, ", "))
	}
	if c.Output.Prefix == "" {
		return errors.New("output prefix must not be empty")
	}
	if c.Batch.Workers < 0 {
		return fmt.Errorf("invalid batch workers: %d (must not be negative)", c.Batch.Workers)
	}

	if err := c.Tilt.Validate(); err != nil {
		return fmt.Errorf("tilt: %w", err)
	}
	if err := c.Foreground.Validate(); err != nil {
		return fmt.Errorf("foreground: %w", err)
	}
	if err := c.Canvas.Validate(); err != nil {
		return fmt.Errorf("canvas: %w", err)
	}
	validBackends := []string{segment.BackendKeyer, segment.BackendONNX, segment.BackendNone}
	if !slices.Contains(validBackends, c.Segment.Backend) {
		return fmt.Errorf("invalid segment backend: %s (must be one of: %s)", c.Segment.Backend, strings.Join(validBackends, ", "))
	}
	if err := c.Segment.GPU.Validate(); err != nil {
		return fmt.Errorf("segment gpu: %w", err)
	}
	if err := validateThreshold(c.Grouping.SideWidthThreshold, "grouping.side_width_threshold"); err != nil {
		return err
	}
	if err := validateThreshold(c.Classify.SideWidthThreshold, "classify.side_width_threshold"); err != nil {
		return err
	}
	if c.Grouping.GapThreshold < 0 {
		return fmt.Errorf("invalid grouping.gap_threshold: %d (must not be negative)", c.Grouping.GapThreshold)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.MaxRuns <= 0 {
		return fmt.Errorf("invalid server max runs: %d (must be positive)", c.Server.MaxRuns)
	}
	if c.Server.ProgressRate <= 0 {
		return fmt.Errorf("invalid server progress rate: %v (must be positive)", c.Server.ProgressRate)
	}
	return nil
}

// ToBatchConfig converts the config to the batch runner's configuration.
func (c *Config) ToBatchConfig() *batch.Config {
	cfg := batch.DefaultConfig()
	cfg.InputDir = c.Input.Dir
	cfg.Recursive = c.Input.Recursive
	cfg.ExcludePatterns = c.Input.Exclude

	cfg.OutputDir = c.Output.Dir
	cfg.Prefix = c.Output.Prefix
	cfg.MappingFile = c.Output.MappingFile
	cfg.AnalysisFile = c.Output.AnalysisFile
	cfg.OverridesFile = c.Output.OverridesFile
	cfg.ProofFile = c.Output.ProofFile
	cfg.MetricsFile = c.Output.MetricsFile

	cfg.Workers = c.Batch.Workers
	cfg.DryRun = c.Batch.DryRun
	cfg.ShowProgress = c.Batch.Progress && !c.Batch.Quiet
	cfg.Quiet = c.Batch.Quiet
	if c.Batch.ProgressIntervalMS > 0 {
		cfg.ProgressInterval = time.Duration(c.Batch.ProgressIntervalMS) * time.Millisecond
	}

	cfg.Grouping = c.Grouping
	cfg.Classify = c.Classify
	cfg.Tilt = c.Tilt
	cfg.Foreground = c.Foreground
	cfg.Canvas = c.Canvas
	return cfg
}

// ToSegmentConfig returns the segmenter settings with the global models
// directory filled in.
func (c *Config) ToSegmentConfig() segment.Config {
	cfg := c.Segment
	if cfg.ModelsDir == "" {
		cfg.ModelsDir = c.ModelsDir
	}
	return cfg
}

// validateThreshold validates that a value is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}
