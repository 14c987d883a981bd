package batch

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/MeKo-Tech/prodshot/internal/canvas"
	"github.com/MeKo-Tech/prodshot/internal/classify"
	"github.com/MeKo-Tech/prodshot/internal/foreground"
	"github.com/MeKo-Tech/prodshot/internal/grouping"
	"github.com/MeKo-Tech/prodshot/internal/tilt"
)

// Default file names inside the output directory.
const (
	DefaultMappingFile  = "mapping.csv"
	DefaultAnalysisFile = ".prodshot-analysis.parquet"
	DefaultPrefix       = "item"
)

// Config holds everything one run needs.
type Config struct {
	InputDir        string
	OutputDir       string
	Recursive       bool
	ExcludePatterns []string

	// Prefix names the outputs: <prefix>-001-front.jpg.
	Prefix      string
	MappingFile string
	// AnalysisFile caches per-photo metrics between runs; empty disables it.
	AnalysisFile string
	// OverridesFile is an optional YAML catalog of manual front/back picks.
	OverridesFile string
	ProofFile     string
	MetricsFile   string

	Workers int
	DryRun  bool

	ShowProgress     bool
	Quiet            bool
	ProgressInterval time.Duration

	Grouping   grouping.Config
	Classify   classify.Config
	Tilt       tilt.Config
	Foreground foreground.Config
	Canvas     canvas.Config
}

// DefaultConfig returns a config with every stage at its defaults.
func DefaultConfig() *Config {
	return &Config{
		Prefix:           DefaultPrefix,
		MappingFile:      DefaultMappingFile,
		AnalysisFile:     DefaultAnalysisFile,
		Workers:          runtime.NumCPU(),
		ShowProgress:     true,
		ProgressInterval: 100 * time.Millisecond,
		Grouping:         grouping.DefaultConfig(),
		Classify:         classify.DefaultConfig(),
		Tilt:             tilt.DefaultConfig(),
		Foreground:       foreground.DefaultConfig(),
		Canvas:           canvas.DefaultConfig(),
	}
}

// Validate checks the settings that do not touch the filesystem.
func (c *Config) Validate() error {
	if c.InputDir == "" {
		return errors.New("input directory is required")
	}
	if c.OutputDir == "" && !c.DryRun {
		return errors.New("output directory is required")
	}
	if c.Prefix == "" {
		return errors.New("output prefix must not be empty")
	}
	if c.MappingFile == "" {
		return errors.New("mapping file name must not be empty")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
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
	return nil
}

func (c *Config) workers() int {
	if c.Workers <= 0 {
		return runtime.NumCPU()
	}
	return c.Workers
}
