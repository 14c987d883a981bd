package tilt

import (
	"github.com/MeKo-Tech/prodshot/internal/mempool"
	"github.com/MeKo-Tech/prodshot/internal/utils"
)

// largestComponent returns the pixel indices of the biggest 4-connected
// region of mask.
func largestComponent(mask []bool, w, h int) []int {
	visited := mempool.GetBool(w * h)
	defer mempool.PutBool(visited)

	var best, queue []int
	for start := range mask {
		if !mask[start] || visited[start] {
			continue
		}
		queue = append(queue[:0], start)
		visited[start] = true
		for i := 0; i < len(queue); i++ {
			ci := queue[i]
			cx, cy := ci%w, ci/w
			for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
				nx, ny := cx+d[0], cy+d[1]
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				ni := ny*w + nx
				if mask[ni] && !visited[ni] {
					visited[ni] = true
					queue = append(queue, ni)
				}
			}
		}
		if len(queue) > len(best) {
			best = append(best[:0], queue...)
		}
	}
	return best
}

// boundary returns the pixels of comp that touch a pixel outside it.
func boundary(comp []int, w, h int) []utils.Point {
	in := mempool.GetBool(w * h)
	defer mempool.PutBool(in)
	for _, i := range comp {
		in[i] = true
	}

	var pts []utils.Point
	for _, i := range comp {
		x, y := i%w, i/w
		if x == 0 || y == 0 || x == w-1 || y == h-1 ||
			!in[i-1] || !in[i+1] || !in[i-w] || !in[i+w] {
			pts = append(pts, utils.Point{X: float64(x), Y: float64(y)})
		}
	}
	return pts
}

// objectHull returns the convex hull of the largest foreground region at
// the given threshold, or nil when it covers less than minArea of the frame.
func objectHull(wi *workImage, delta, minArea float64) []utils.Point {
	mask := foregroundMask(wi, delta)
	defer mempool.PutBool(mask)

	comp := largestComponent(mask, wi.w, wi.h)
	if float64(len(comp)) < minArea*float64(wi.w*wi.h) {
		return nil
	}
	return utils.ConvexHull(boundary(comp, wi.w, wi.h))
}
