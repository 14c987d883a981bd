package tilt

import (
	"context"
	"image"
	"sort"

	"github.com/MeKo-Tech/prodshot/internal/utils"
	"gonum.org/v1/gonum/stat"
)

// ContourEstimator fits a minimum-area rectangle around the largest
// foreground region, binarized at several thresholds.
type ContourEstimator struct {
	cfg Config
}

// NewContourEstimator returns a contour strategy.
func NewContourEstimator(cfg Config) *ContourEstimator { return &ContourEstimator{cfg: cfg} }

func (c *ContourEstimator) Name() string { return StrategyContour }

func (c *ContourEstimator) Estimate(ctx context.Context, img image.Image) (Estimate, error) {
	return estimateWith(ctx, img, c.cfg, c)
}

func (c *ContourEstimator) measure(ctx context.Context, wi *workImage) (Estimate, error) {
	var angles []float64
	for _, delta := range c.cfg.ContourDeltas {
		if err := ctx.Err(); err != nil {
			return Estimate{}, err
		}
		hull := objectHull(wi, delta, c.cfg.MinContourArea)
		if hull == nil {
			continue
		}
		rect, ok := utils.MinimumAreaRectangle(hull)
		if !ok {
			continue
		}
		angles = append(angles, normalizeAngle(rect.EdgeAngle()))
	}
	if len(angles) == 0 {
		return none(StrategyContour), nil
	}

	sort.Float64s(angles)
	est := Estimate{
		Angle:      stat.Quantile(0.5, stat.Empirical, angles, nil),
		Confidence: ConfidenceLow,
		Strategy:   StrategyContour,
	}
	if len(angles) >= 2 && angles[len(angles)-1]-angles[0] <= 1 {
		est.Confidence = ConfidenceHigh
	}
	return est, nil
}
