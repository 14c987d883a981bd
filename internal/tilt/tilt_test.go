package tilt

import (
	"context"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/MeKo-Tech/prodshot/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tiltedShot(angle float64) image.Image {
	cfg := testutil.DefaultShot()
	cfg.Angle = angle
	return testutil.ProductShot(cfg)
}

func TestNormalizeAngle(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{-7, -7},
		{83, -7},
		{-97, -7},
		{173, -7},
		{45, 45},
		{-45, 45},
		{60, -30},
		{-120, -30},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, normalizeAngle(tt.in), 1e-9, "in=%v", tt.in)
	}
}

func TestAlignmentScore_RunWindows(t *testing.T) {
	w, h := 20, 5
	edges := make([]bool, w*h)
	for x := 2; x < 12; x++ { // one horizontal run of 10
		edges[2*w+x] = true
	}

	assert.InDelta(t, 3.0, alignmentScore(edges, w, h, 8), 1e-9)
	// With a window of two the score counts neighbouring pairs.
	assert.InDelta(t, 9.0, alignmentScore(edges, w, h, 2), 1e-9)
	assert.Zero(t, alignmentScore(edges, w, h, 11))
}

func TestAlignmentScore_PrefersAxisAlignedEdges(t *testing.T) {
	cfg := DefaultConfig()
	straight := prepare(tiltedShot(0), cfg.WorkingSize)
	defer straight.release()
	tilted := prepare(tiltedShot(7), cfg.WorkingSize)
	defer tilted.release()

	s0 := scoreGray(straight.gray, straight.w, straight.h, cfg)
	s7 := scoreGray(tilted.gray, tilted.w, tilted.h, cfg)
	assert.Greater(t, s0, s7/cfg.TieBias)
}

func TestStrategies_RecoverTilt(t *testing.T) {
	cfg := DefaultConfig()
	img := tiltedShot(7)
	ctx := context.Background()

	estimators := []Estimator{
		NewContourEstimator(cfg),
		NewLineEstimator(cfg),
		NewBBoxSearchEstimator(cfg),
		NewAlignmentSearchEstimator(cfg),
		NewCombined(cfg),
	}
	for _, e := range estimators {
		t.Run(e.Name(), func(t *testing.T) {
			est, err := e.Estimate(ctx, img)
			require.NoError(t, err)
			assert.NotEqual(t, ConfidenceNone, est.Confidence)
			assert.InDelta(t, -7.0, est.Angle, 1.0, "estimate %s", est)
		})
	}
}

func TestStrategies_OppositeTilt(t *testing.T) {
	est, err := NewCombined(DefaultConfig()).Estimate(context.Background(), tiltedShot(-5))
	require.NoError(t, err)
	assert.InDelta(t, 5.0, est.Angle, 1.0)
}

func TestCombined_HighConfidenceWhenStrategiesAgree(t *testing.T) {
	est, err := NewCombined(DefaultConfig()).Estimate(context.Background(), tiltedShot(7))
	require.NoError(t, err)
	assert.Equal(t, ConfidenceHigh, est.Confidence)
	assert.Equal(t, StrategyCombined, est.Strategy)
}

func TestCombined_StraightImageIsLeftAlone(t *testing.T) {
	est, err := NewCombined(DefaultConfig()).Estimate(context.Background(), tiltedShot(0))
	require.NoError(t, err)
	assert.Zero(t, est.Angle)
}

func TestEstimators_NoSignal(t *testing.T) {
	blank := testutil.Solid(200, 150, color.White)
	for _, name := range Strategies {
		cfg := DefaultConfig()
		cfg.Strategy = name
		e, err := New(cfg)
		require.NoError(t, err)

		est, err := e.Estimate(context.Background(), blank)
		require.NoError(t, err, name)
		assert.Zero(t, est.Angle, name)
	}
}

func TestEstimate_Errors(t *testing.T) {
	e := NewCombined(DefaultConfig())
	_, err := e.Estimate(context.Background(), nil)
	require.ErrorIs(t, err, ErrNilImage)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Estimate(ctx, tiltedShot(3))
	require.ErrorIs(t, err, context.Canceled)
}

// fixedEstimator reports a preset angle, standing in for a strategy whose
// sign cannot be trusted.
type fixedEstimator struct{ angle float64 }

func (f fixedEstimator) Name() string { return "fixed" }

func (f fixedEstimator) Estimate(context.Context, image.Image) (Estimate, error) {
	return Estimate{Angle: f.angle, Confidence: ConfidenceLow, Strategy: "fixed"}, nil
}

func TestVerified_FixesDirection(t *testing.T) {
	cfg := DefaultConfig()
	v := NewVerified(fixedEstimator{angle: 7}, cfg)

	est, err := v.Estimate(context.Background(), tiltedShot(7))
	require.NoError(t, err)
	assert.InDelta(t, -7.0, est.Angle, 1e-9)
}

func TestVerified_KeepsStraightOriginal(t *testing.T) {
	v := NewVerified(fixedEstimator{angle: 5}, DefaultConfig())
	est, err := v.Estimate(context.Background(), tiltedShot(0))
	require.NoError(t, err)
	assert.Zero(t, est.Angle)
}

func TestVerified_Deadband(t *testing.T) {
	v := NewVerified(fixedEstimator{angle: 0.2}, DefaultConfig())
	est, err := v.Estimate(context.Background(), tiltedShot(7))
	require.NoError(t, err)
	assert.Zero(t, est.Angle)
}

func TestVerified_BelowSearchResolution(t *testing.T) {
	cfg := DefaultConfig()
	est, err := NewVerified(fixedEstimator{angle: 0.45}, cfg).Estimate(context.Background(), tiltedShot(7))
	require.NoError(t, err)
	assert.Zero(t, est.Angle)
	assert.Equal(t, ConfidenceLow, est.Confidence)
	assert.False(t, cfg.Applies(est))
}

func TestSmallTiltIsNotOvercorrected(t *testing.T) {
	cfg := DefaultConfig()
	img := tiltedShot(0.2)

	estimators := []Estimator{
		NewAlignmentSearchEstimator(cfg),
		NewVerified(NewLineEstimator(cfg), cfg),
		NewCombined(cfg),
	}
	for _, e := range estimators {
		t.Run(e.Name(), func(t *testing.T) {
			est, err := e.Estimate(context.Background(), img)
			require.NoError(t, err)
			assert.False(t, cfg.Applies(est), "estimate %s", est)
			assert.Same(t, img, Straighten(img, est, cfg))
		})
	}
}

func TestConfigResolution(t *testing.T) {
	cfg := DefaultConfig()
	assert.InDelta(t, 0.5, cfg.resolution(), 1e-9)
	cfg.FineStep = 0.1
	assert.InDelta(t, cfg.Deadband, cfg.resolution(), 1e-9)
}

func TestVerified_ClampsMagnitude(t *testing.T) {
	cfg := DefaultConfig()
	v := NewVerified(fixedEstimator{angle: 40}, cfg)
	est, err := v.Estimate(context.Background(), tiltedShot(7))
	require.NoError(t, err)
	assert.LessOrEqual(t, math.Abs(est.Angle), cfg.MaxCorrection)
}

func TestStraighten_DeadbandReturnsInput(t *testing.T) {
	img := tiltedShot(7)
	out := Straighten(img, Estimate{Angle: 0.25, Confidence: ConfidenceHigh}, DefaultConfig())
	assert.Same(t, img, out)

	out = Straighten(img, Estimate{Angle: -0.29}, DefaultConfig())
	assert.Same(t, img, out)
}

func TestStraighten_AlignsObject(t *testing.T) {
	cfg := DefaultConfig()
	img := tiltedShot(7)

	out := Straighten(img, Estimate{Angle: -7, Confidence: ConfidenceHigh}, cfg)
	require.NotSame(t, img, out)

	est, err := NewContourEstimator(cfg).Estimate(context.Background(), out)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, est.Angle, 1.0)

	// Trimming removes the fill but keeps the object.
	b := out.Bounds()
	assert.GreaterOrEqual(t, b.Dx(), 200)
	assert.GreaterOrEqual(t, b.Dy(), 140)
}

func TestNew(t *testing.T) {
	for _, name := range Strategies {
		cfg := DefaultConfig()
		cfg.Strategy = name
		e, err := New(cfg)
		require.NoError(t, err)
		assert.NotNil(t, e)
	}

	cfg := DefaultConfig()
	cfg.Strategy = "hough-magic"
	_, err := New(cfg)
	require.Error(t, err)
	require.Error(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.TieBias = 1.5
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MinRun = 1
	require.Error(t, cfg.Validate())
}
