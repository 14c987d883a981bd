package tilt

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/MeKo-Tech/prodshot/internal/mempool"
	"gonum.org/v1/gonum/stat"
)

const (
	thetaStep = 0.5 // degrees per accumulator column
	maxLines  = 20
	// Peaks closer than this in (theta steps, rho pixels) are the same line.
	nmsTheta = 6
	nmsRho   = 8
)

// LineEstimator accumulates straight edges near the frame border with a
// Hough transform restricted to near-vertical and near-horizontal lines.
type LineEstimator struct {
	cfg Config
}

// NewLineEstimator returns a line strategy.
func NewLineEstimator(cfg Config) *LineEstimator { return &LineEstimator{cfg: cfg} }

func (l *LineEstimator) Name() string { return StrategyLines }

func (l *LineEstimator) Estimate(ctx context.Context, img image.Image) (Estimate, error) {
	return estimateWith(ctx, img, l.cfg, l)
}

type houghLine struct {
	theta int // accumulator column
	rho   int
	votes int32
}

func (l *LineEstimator) measure(ctx context.Context, wi *workImage) (Estimate, error) {
	edges := edgeMap(wi.gray, wi.w, wi.h, l.cfg.EdgeThreshold)
	pts := bandPoints(edges, wi.w, wi.h, l.cfg.BorderBand)
	mempool.PutBool(edges)
	if len(pts) == 0 {
		return none(StrategyLines), nil
	}

	minVotes := int32(l.cfg.MinLineFraction * math.Hypot(float64(wi.w), float64(wi.h)))
	// Vertical edges have normals near 0 degrees, horizontal ones near 90.
	for _, center := range []float64{0, 90} {
		if err := ctx.Err(); err != nil {
			return Estimate{}, err
		}
		first := center - l.cfg.FamilyWindow
		found := hough(pts, wi.w, wi.h, first, l.cfg.FamilyWindow, minVotes)
		if len(found) == 0 {
			continue
		}

		angles := make([]float64, len(found))
		weights := make([]float64, len(found))
		for i, ln := range found {
			angles[i] = first + float64(ln.theta)*thetaStep - center
			weights[i] = float64(ln.votes)
		}
		angle := stat.Mean(angles, weights)
		if math.Abs(angle) > l.cfg.MaxAngle {
			continue
		}

		conf := ConfidenceLow
		if len(found) >= 2 {
			conf = ConfidenceHigh
		}
		return Estimate{Angle: angle, Confidence: conf, Strategy: StrategyLines}, nil
	}
	return none(StrategyLines), nil
}

// bandPoints collects edge pixels in the outer band of the frame, where
// the object outline sits; the interior holds artwork and labels.
func bandPoints(edges []bool, w, h int, band float64) []image.Point {
	x0, x1 := int(band*float64(w)), int((1-band)*float64(w))
	y0, y1 := int(band*float64(h)), int((1-band)*float64(h))
	var pts []image.Point
	for y := range h {
		for x := range w {
			if !edges[y*w+x] {
				continue
			}
			if x < x0 || x >= x1 || y < y0 || y >= y1 {
				pts = append(pts, image.Pt(x, y))
			}
		}
	}
	return pts
}

// hough votes pts into rho = x*cos(t) + y*sin(t) for t in
// [first, first+2*window] and returns the separated peaks with at least
// minVotes votes, strongest first.
func hough(pts []image.Point, w, h int, first, window float64, minVotes int32) []houghLine {
	nTheta := int(math.Round(2*window/thetaStep)) + 1
	diag := int(math.Ceil(math.Hypot(float64(w), float64(h))))
	nRho := 2*diag + 1

	cos := make([]float64, nTheta)
	sin := make([]float64, nTheta)
	for t := range nTheta {
		rad := (first + float64(t)*thetaStep) * math.Pi / 180
		cos[t], sin[t] = math.Cos(rad), math.Sin(rad)
	}

	acc := mempool.GetInt32(nTheta * nRho)
	defer mempool.PutInt32(acc)
	for _, p := range pts {
		fx, fy := float64(p.X), float64(p.Y)
		for t := range nTheta {
			r := int(math.Round(fx*cos[t]+fy*sin[t])) + diag
			acc[t*nRho+r]++
		}
	}

	var peaks []houghLine
	for t := range nTheta {
		for r := range nRho {
			v := acc[t*nRho+r]
			if v < minVotes || v == 0 || !localMax(acc, t, r, nTheta, nRho) {
				continue
			}
			peaks = append(peaks, houghLine{theta: t, rho: r, votes: v})
		}
	}
	sort.SliceStable(peaks, func(i, j int) bool { return peaks[i].votes > peaks[j].votes })

	var kept []houghLine
	for _, p := range peaks {
		dup := false
		for _, k := range kept {
			if abs(p.theta-k.theta) <= nmsTheta && abs(p.rho-k.rho) <= nmsRho {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, p)
			if len(kept) == maxLines {
				break
			}
		}
	}
	return kept
}

func localMax(acc []int32, t, r, nTheta, nRho int) bool {
	v := acc[t*nRho+r]
	for dt := -1; dt <= 1; dt++ {
		for dr := -1; dr <= 1; dr++ {
			tt, rr := t+dt, r+dr
			if (dt == 0 && dr == 0) || tt < 0 || rr < 0 || tt >= nTheta || rr >= nRho {
				continue
			}
			if acc[tt*nRho+rr] > v {
				return false
			}
		}
	}
	return true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
