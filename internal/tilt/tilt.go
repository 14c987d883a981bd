// Package tilt estimates and corrects the camera tilt of a product photo.
//
// Every strategy reports a correction angle in degrees; positive values
// rotate counter-clockwise, matching imaging.Rotate. Strategies that only
// produce a magnitude are wrapped in Verified, which renders both
// directions and keeps the better-aligned one.
package tilt

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
)

// Confidence grades how much an estimate can be trusted.
type Confidence int

const (
	ConfidenceNone Confidence = iota
	ConfidenceLow
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceLow:
		return "low"
	default:
		return "none"
	}
}

// Estimate is the result of one tilt measurement.
type Estimate struct {
	Angle      float64    `json:"angle"`
	Confidence Confidence `json:"confidence"`
	Strategy   string     `json:"strategy"`
}

func (e Estimate) String() string {
	return fmt.Sprintf("%+.2f° (%s, %s)", e.Angle, e.Confidence, e.Strategy)
}

// none is the no-op estimate returned when a strategy finds no signal.
func none(strategy string) Estimate {
	return Estimate{Strategy: strategy, Confidence: ConfidenceNone}
}

// Estimator measures the correction angle of an image.
type Estimator interface {
	Estimate(ctx context.Context, img image.Image) (Estimate, error)
	Name() string
}

// measurer is implemented by strategies that can work on a prepared
// working image, so combined strategies share one downscale.
type measurer interface {
	measure(ctx context.Context, wi *workImage) (Estimate, error)
}

// Strategy names accepted by New.
const (
	StrategyCombined  = "combined"
	StrategyLines     = "lines"
	StrategyContour   = "contour"
	StrategyBBox      = "bbox"
	StrategyAlignment = "alignment"
	StrategyNone      = "none"
)

// Strategies lists the accepted strategy names.
var Strategies = []string{StrategyCombined, StrategyLines, StrategyContour, StrategyBBox, StrategyAlignment, StrategyNone}

// ErrNilImage is returned for a nil or empty input.
var ErrNilImage = errors.New("tilt: nil or empty image")

// New builds the estimator named by cfg.Strategy.
func New(cfg Config) (Estimator, error) {
	switch cfg.Strategy {
	case StrategyCombined, "":
		return &Combined{cfg: cfg}, nil
	case StrategyLines:
		return &Verified{Inner: &LineEstimator{cfg: cfg}, cfg: cfg}, nil
	case StrategyContour:
		return &Verified{Inner: &ContourEstimator{cfg: cfg}, cfg: cfg}, nil
	case StrategyBBox:
		return &Verified{Inner: &BBoxSearchEstimator{cfg: cfg}, cfg: cfg}, nil
	case StrategyAlignment:
		return &AlignmentSearchEstimator{cfg: cfg}, nil
	case StrategyNone:
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown tilt strategy %q (valid: %v)", cfg.Strategy, Strategies)
	}
}

// Noop never rotates.
type Noop struct{}

func (Noop) Name() string { return StrategyNone }

func (Noop) Estimate(_ context.Context, _ image.Image) (Estimate, error) {
	return none(StrategyNone), nil
}

// estimateWith prepares the working image and runs m.
func estimateWith(ctx context.Context, img image.Image, cfg Config, m measurer) (Estimate, error) {
	if img == nil || img.Bounds().Empty() {
		return Estimate{}, ErrNilImage
	}
	if err := ctx.Err(); err != nil {
		return Estimate{}, err
	}
	wi := prepare(img, cfg.WorkingSize)
	defer wi.release()
	return m.measure(ctx, wi)
}

// normalizeAngle folds an edge direction in degrees into (-45, 45], the
// correction relative to the nearest image axis.
func normalizeAngle(deg float64) float64 {
	a := math.Mod(deg, 90)
	if a > 45 {
		a -= 90
	} else if a <= -45 {
		a += 90
	}
	return a
}
