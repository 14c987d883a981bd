// Package segment separates the photographed item from its background and
// reports the result as per-pixel opacity.
package segment

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/MeKo-Tech/prodshot/internal/onnx"
)

// ErrModelUnavailable is returned when a learned backend cannot load.
var ErrModelUnavailable = errors.New("segmentation model unavailable")

// Segmenter produces a copy of img whose alpha channel is the foreground
// opacity (255 = object, 0 = background).
type Segmenter interface {
	Segment(ctx context.Context, img image.Image) (*image.NRGBA, error)
	Name() string
	Close() error
}

// Backend names.
const (
	BackendKeyer = "keyer"
	BackendONNX  = "onnx"
	BackendNone  = "none"
)

// Config selects and tunes a backend.
type Config struct {
	Backend    string `mapstructure:"backend" yaml:"backend" json:"backend"`
	ModelsDir  string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	Model      string `mapstructure:"model" yaml:"model" json:"model"`
	NumThreads int    `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	// Keyer settings: pixels within Tolerance of the key color become fully
	// transparent, opacity ramps up over the next Feather levels.
	Tolerance int `mapstructure:"tolerance" yaml:"tolerance" json:"tolerance"`
	Feather   int `mapstructure:"feather" yaml:"feather" json:"feather"`
	// KeyWhite keys out pure white instead of the measured border color.
	KeyWhite bool `mapstructure:"key_white" yaml:"key_white" json:"key_white"`
	// GPU applies to the onnx backend only.
	GPU onnx.GPUConfig `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
}

// DefaultConfig returns the keyer defaults.
func DefaultConfig() Config {
	return Config{
		Backend:   BackendKeyer,
		Model:     "u2net.onnx",
		Tolerance: 15,
		Feather:   15,
		GPU:       onnx.DefaultGPUConfig(),
	}
}

// New builds the backend named by cfg.Backend. BackendNone yields a nil
// Segmenter, which callers treat as "always fall back".
func New(cfg Config) (Segmenter, error) {
	switch cfg.Backend {
	case BackendKeyer, "":
		return NewKeyer(cfg), nil
	case BackendONNX:
		return NewONNXSegmenter(cfg)
	case BackendNone:
		return nil, nil //nolint:nilnil // no segmenter is a valid configuration
	default:
		return nil, fmt.Errorf("unknown segmentation backend %q", cfg.Backend)
	}
}
