package tilt

import (
	"context"
	"image"
	"log/slog"
	"math"
)

// Verified wraps a strategy whose sign is not trusted. It renders the
// image rotated by +m and -m, scores both with the alignment score and
// keeps the better direction. The untouched image wins when it scores at
// least TieBias of the best candidate.
type Verified struct {
	Inner Estimator
	cfg   Config
}

// NewVerified wraps inner with direction verification.
func NewVerified(inner Estimator, cfg Config) *Verified {
	return &Verified{Inner: inner, cfg: cfg}
}

func (v *Verified) Name() string { return v.Inner.Name() }

func (v *Verified) Estimate(ctx context.Context, img image.Image) (Estimate, error) {
	return estimateWith(ctx, img, v.cfg, v)
}

func (v *Verified) measure(ctx context.Context, wi *workImage) (Estimate, error) {
	var (
		est Estimate
		err error
	)
	if m, ok := v.Inner.(measurer); ok {
		est, err = m.measure(ctx, wi)
	} else {
		est, err = v.Inner.Estimate(ctx, wi.img)
	}
	if err != nil {
		return Estimate{}, err
	}
	return verify(ctx, wi, est, v.cfg)
}

// verify decides the sign of est.Angle, or zeroes it. Magnitudes within
// the search resolution are zeroed: rendering +m and -m differs by little
// more than interpolation noise there and the sign is a coin toss.
func verify(ctx context.Context, wi *workImage, est Estimate, cfg Config) (Estimate, error) {
	mag := math.Min(math.Abs(est.Angle), cfg.MaxCorrection)
	if est.Confidence == ConfidenceNone || mag < cfg.Deadband {
		est.Angle = 0
		return est, nil
	}
	if mag <= cfg.resolution() {
		slog.Debug("tilt: below search resolution", "strategy", est.Strategy, "magnitude", mag)
		est.Angle = 0
		est.Confidence = ConfidenceLow
		return est, nil
	}
	if err := ctx.Err(); err != nil {
		return Estimate{}, err
	}

	orig := scoreRotated(wi, 0, cfg)
	pos := scoreRotated(wi, mag, cfg)
	neg := scoreRotated(wi, -mag, cfg)

	angle, best := mag, pos
	if neg > pos {
		angle, best = -mag, neg
	}
	if orig >= cfg.TieBias*best {
		slog.Debug("tilt: keeping original", "strategy", est.Strategy, "magnitude", mag,
			"original", orig, "positive", pos, "negative", neg)
		est.Angle = 0
		return est, nil
	}
	est.Angle = angle
	return est, nil
}

// Combined averages the magnitudes reported by the line and contour
// strategies and verifies the direction. Confidence is high when both
// strategies found a signal and agree within cfg.Agreement degrees.
type Combined struct {
	cfg Config
}

// NewCombined returns the combined strategy.
func NewCombined(cfg Config) *Combined { return &Combined{cfg: cfg} }

func (c *Combined) Name() string { return StrategyCombined }

func (c *Combined) Estimate(ctx context.Context, img image.Image) (Estimate, error) {
	return estimateWith(ctx, img, c.cfg, c)
}

func (c *Combined) measure(ctx context.Context, wi *workImage) (Estimate, error) {
	lineEst, err := (&LineEstimator{cfg: c.cfg}).measure(ctx, wi)
	if err != nil {
		return Estimate{}, err
	}
	contourEst, err := (&ContourEstimator{cfg: c.cfg}).measure(ctx, wi)
	if err != nil {
		return Estimate{}, err
	}

	var mags []float64
	for _, e := range []Estimate{lineEst, contourEst} {
		if e.Confidence != ConfidenceNone {
			mags = append(mags, math.Abs(e.Angle))
		}
	}
	if len(mags) == 0 {
		return none(StrategyCombined), nil
	}

	est := Estimate{Confidence: ConfidenceLow, Strategy: StrategyCombined}
	for _, m := range mags {
		est.Angle += m / float64(len(mags))
	}
	if len(mags) == 2 && math.Abs(mags[0]-mags[1]) <= c.cfg.Agreement {
		est.Confidence = ConfidenceHigh
	}
	slog.Debug("tilt: combined", "lines", lineEst.String(), "contour", contourEst.String(), "magnitude", est.Angle)
	return verify(ctx, wi, est, c.cfg)
}
