package tilt

import (
	"math"

	"github.com/MeKo-Tech/prodshot/internal/mempool"
)

// edgeMap marks pixels whose Sobel gradient magnitude exceeds threshold.
// The caller returns the map with mempool.PutBool.
func edgeMap(gray []float64, w, h int, threshold float64) []bool {
	out := mempool.GetBool(w * h)
	if w < 3 || h < 3 {
		return out
	}
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			gx := gray[i-w+1] + 2*gray[i+1] + gray[i+w+1] - gray[i-w-1] - 2*gray[i-1] - gray[i+w-1]
			gy := gray[i+w-1] + 2*gray[i+w] + gray[i+w+1] - gray[i-w-1] - 2*gray[i-w] - gray[i-w+1]
			out[i] = math.Hypot(gx, gy) > threshold
		}
	}
	return out
}

// alignmentScore rewards long horizontal and vertical runs of edge pixels.
// Each run of length n >= minRun adds n-minRun+1, so the score counts the
// minRun-wide windows that lie entirely on an axis-aligned edge. With
// minRun 2 this is the number of edge pixels whose row or column neighbour
// is also an edge pixel. Tilted edges break into short stair steps and
// score little.
func alignmentScore(edges []bool, w, h, minRun int) float64 {
	var score float64
	add := func(run int) {
		if run >= minRun {
			score += float64(run - minRun + 1)
		}
	}
	for y := range h {
		run := 0
		for x := range w {
			if edges[y*w+x] {
				run++
				continue
			}
			add(run)
			run = 0
		}
		add(run)
	}
	for x := range w {
		run := 0
		for y := range h {
			if edges[y*w+x] {
				run++
				continue
			}
			add(run)
			run = 0
		}
		add(run)
	}
	return score
}

// scoreGray computes the alignment score of a luminance plane.
func scoreGray(gray []float64, w, h int, cfg Config) float64 {
	edges := edgeMap(gray, w, h, cfg.EdgeThreshold)
	defer mempool.PutBool(edges)
	return alignmentScore(edges, w, h, cfg.MinRun)
}

// scoreRotated renders the working image at angle and scores it.
func scoreRotated(wi *workImage, angle float64, cfg Config) float64 {
	gray, w, h := wi.rotated(angle)
	defer mempool.PutFloat64(gray)
	return scoreGray(gray, w, h, cfg)
}
