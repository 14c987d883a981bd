package tilt

import (
	"context"
	"image"
	"math"

	"github.com/MeKo-Tech/prodshot/internal/utils"
)

// sweep evaluates score over a coarse grid of angles, then a fine grid
// around the coarse winner. better(a, b) reports whether score a beats b;
// ties go to the smaller rotation.
func sweep(ctx context.Context, cfg Config, score func(float64) float64, better func(a, b float64) bool) (float64, float64, error) {
	bestAngle, bestScore := 0.0, score(0)
	try := func(a float64) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		s := score(a)
		if better(s, bestScore) || (s == bestScore && math.Abs(a) < math.Abs(bestAngle)) {
			bestAngle, bestScore = a, s
		}
		return nil
	}

	for a := -cfg.CoarseRange; a <= cfg.CoarseRange+1e-9; a += cfg.CoarseStep {
		if err := try(a); err != nil {
			return 0, 0, err
		}
	}
	center := bestAngle
	for a := center - cfg.FineRange; a <= center+cfg.FineRange+1e-9; a += cfg.FineStep {
		if a == center {
			continue
		}
		if err := try(a); err != nil {
			return 0, 0, err
		}
	}
	return bestAngle, bestScore, nil
}

// BBoxSearchEstimator finds the rotation that minimizes the axis-aligned
// bounding box of the object outline. A tilted rectangle always has a
// larger enclosing box than an aligned one.
type BBoxSearchEstimator struct {
	cfg Config
}

// NewBBoxSearchEstimator returns a bounding-box search strategy.
func NewBBoxSearchEstimator(cfg Config) *BBoxSearchEstimator { return &BBoxSearchEstimator{cfg: cfg} }

func (b *BBoxSearchEstimator) Name() string { return StrategyBBox }

func (b *BBoxSearchEstimator) Estimate(ctx context.Context, img image.Image) (Estimate, error) {
	return estimateWith(ctx, img, b.cfg, b)
}

func (b *BBoxSearchEstimator) measure(ctx context.Context, wi *workImage) (Estimate, error) {
	delta := b.cfg.ContourDeltas[len(b.cfg.ContourDeltas)/2]
	hull := objectHull(wi, delta, b.cfg.MinContourArea)
	if len(hull) < 3 {
		return none(StrategyBBox), nil
	}

	angle, _, err := sweep(ctx, b.cfg,
		func(a float64) float64 { return rotatedBoxArea(hull, a) },
		func(x, y float64) bool { return x < y })
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{Angle: angle, Confidence: ConfidenceHigh, Strategy: StrategyBBox}, nil
}

// rotatedBoxArea is the area of the axis-aligned box around pts after a
// counter-clockwise rotation by deg (y axis pointing down).
func rotatedBoxArea(pts []utils.Point, deg float64) float64 {
	rad := deg * math.Pi / 180
	c, s := math.Cos(rad), math.Sin(rad)
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		x := p.X*c + p.Y*s
		y := -p.X*s + p.Y*c
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	return (maxX - minX) * (maxY - minY)
}

// AlignmentSearchEstimator renders candidate rotations and keeps the one
// with the highest alignment score.
type AlignmentSearchEstimator struct {
	cfg Config
}

// NewAlignmentSearchEstimator returns an alignment search strategy.
func NewAlignmentSearchEstimator(cfg Config) *AlignmentSearchEstimator {
	return &AlignmentSearchEstimator{cfg: cfg}
}

func (a *AlignmentSearchEstimator) Name() string { return StrategyAlignment }

func (a *AlignmentSearchEstimator) Estimate(ctx context.Context, img image.Image) (Estimate, error) {
	return estimateWith(ctx, img, a.cfg, a)
}

func (a *AlignmentSearchEstimator) measure(ctx context.Context, wi *workImage) (Estimate, error) {
	base := scoreRotated(wi, 0, a.cfg)
	angle, best, err := sweep(ctx, a.cfg,
		func(deg float64) float64 { return scoreRotated(wi, deg, a.cfg) },
		func(x, y float64) bool { return x > y })
	if err != nil {
		return Estimate{}, err
	}
	if best == 0 {
		return none(StrategyAlignment), nil
	}

	est := Estimate{Angle: angle, Confidence: ConfidenceHigh, Strategy: StrategyAlignment}
	// The original is about as straight as any candidate, or the winner is
	// the grid point next to zero and only says the tilt is small.
	if base >= a.cfg.TieBias*best || math.Abs(angle) <= a.cfg.resolution() {
		est.Angle = 0
		est.Confidence = ConfidenceLow
	}
	return est, nil
}
