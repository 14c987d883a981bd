package tilt

import (
	"fmt"
	"math"
	"slices"
)

// Config tunes the tilt strategies. Angles are in degrees; pixel values
// refer to the downscaled working image.
type Config struct {
	Strategy string `mapstructure:"strategy" yaml:"strategy" json:"strategy"`
	// WorkingSize is the longest side of the image the estimators run on.
	WorkingSize int `mapstructure:"working_size" yaml:"working_size" json:"working_size"`
	// Deadband is the smallest correction worth a resampling pass.
	Deadband float64 `mapstructure:"deadband" yaml:"deadband" json:"deadband"`
	// MaxAngle discards line estimates beyond this magnitude as spurious.
	MaxAngle float64 `mapstructure:"max_angle" yaml:"max_angle" json:"max_angle"`
	// MaxCorrection caps the magnitude the verifier will apply.
	MaxCorrection float64 `mapstructure:"max_correction" yaml:"max_correction" json:"max_correction"`
	// TieBias keeps the untouched image when its alignment score is at
	// least this fraction of the best rotated candidate.
	TieBias float64 `mapstructure:"tie_bias" yaml:"tie_bias" json:"tie_bias"`

	// Contour strategy.
	ContourDeltas  []float64 `mapstructure:"contour_deltas" yaml:"contour_deltas" json:"contour_deltas"`
	MinContourArea float64   `mapstructure:"min_contour_area" yaml:"min_contour_area" json:"min_contour_area"`

	// Line strategy.
	BorderBand      float64 `mapstructure:"border_band" yaml:"border_band" json:"border_band"`
	FamilyWindow    float64 `mapstructure:"family_window" yaml:"family_window" json:"family_window"`
	MinLineFraction float64 `mapstructure:"min_line_fraction" yaml:"min_line_fraction" json:"min_line_fraction"`
	EdgeThreshold   float64 `mapstructure:"edge_threshold" yaml:"edge_threshold" json:"edge_threshold"`

	// Alignment score: only edge runs at least this long count.
	MinRun int `mapstructure:"min_run" yaml:"min_run" json:"min_run"`

	// Search sweeps.
	CoarseRange float64 `mapstructure:"coarse_range" yaml:"coarse_range" json:"coarse_range"`
	CoarseStep  float64 `mapstructure:"coarse_step" yaml:"coarse_step" json:"coarse_step"`
	FineRange   float64 `mapstructure:"fine_range" yaml:"fine_range" json:"fine_range"`
	FineStep    float64 `mapstructure:"fine_step" yaml:"fine_step" json:"fine_step"`

	// Agreement is the largest gap between line and contour magnitudes
	// still reported as high confidence.
	Agreement float64 `mapstructure:"agreement" yaml:"agreement" json:"agreement"`

	// Straighten trims fill borders whose channels stay within
	// TrimTolerance of the background, keeping TrimPadding pixels.
	TrimTolerance int `mapstructure:"trim_tolerance" yaml:"trim_tolerance" json:"trim_tolerance"`
	TrimPadding   int `mapstructure:"trim_padding" yaml:"trim_padding" json:"trim_padding"`
}

// DefaultConfig returns the defaults used for product photos.
func DefaultConfig() Config {
	return Config{
		Strategy:        StrategyCombined,
		WorkingSize:     400,
		Deadband:        0.3,
		MaxAngle:        20,
		MaxCorrection:   18,
		TieBias:         0.95,
		ContourDeltas:   []float64{25, 45, 65},
		MinContourArea:  0.08,
		BorderBand:      0.35,
		FamilyWindow:    25,
		MinLineFraction: 0.1,
		EdgeThreshold:   100,
		MinRun:          10,
		CoarseRange:     15,
		CoarseStep:      2,
		FineRange:       2,
		FineStep:        0.5,
		Agreement:       2,
		TrimTolerance:   10,
		TrimPadding:     3,
	}
}

// resolution is the smallest correction the alignment score can tell apart
// from resampling noise: the deadband, or one fine search step if larger.
func (c Config) resolution() float64 {
	return math.Max(c.Deadband, c.FineStep)
}

// Validate checks the configuration for values the strategies cannot use.
func (c Config) Validate() error {
	if c.Strategy != "" && !slices.Contains(Strategies, c.Strategy) {
		return fmt.Errorf("unknown tilt strategy %q", c.Strategy)
	}
	if c.WorkingSize < 32 {
		return fmt.Errorf("working size must be >= 32, got %d", c.WorkingSize)
	}
	if c.Deadband < 0 {
		return fmt.Errorf("deadband must be >= 0, got %f", c.Deadband)
	}
	if c.TieBias <= 0 || c.TieBias > 1 {
		return fmt.Errorf("tie bias must be in (0, 1], got %f", c.TieBias)
	}
	if c.BorderBand <= 0 || c.BorderBand > 0.5 {
		return fmt.Errorf("border band must be in (0, 0.5], got %f", c.BorderBand)
	}
	if c.FamilyWindow <= 0 || c.FamilyWindow >= 45 {
		return fmt.Errorf("family window must be in (0, 45), got %f", c.FamilyWindow)
	}
	if c.MinRun < 2 {
		return fmt.Errorf("min run must be >= 2, got %d", c.MinRun)
	}
	if c.CoarseStep <= 0 || c.FineStep <= 0 {
		return fmt.Errorf("search steps must be positive")
	}
	if len(c.ContourDeltas) == 0 {
		return fmt.Errorf("at least one contour delta is required")
	}
	return nil
}
