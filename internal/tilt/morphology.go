package tilt

import "github.com/MeKo-Tech/prodshot/internal/mempool"

type morphOp int

const (
	dilate morphOp = iota
	erode
)

// morph applies a square-kernel dilation or erosion as two separable 1D
// passes. The input mask is returned to the pool. Pixels outside the image
// are ignored, so erosion does not eat in from the frame edge.
func morph(mask []bool, w, h, k int, op morphOp) []bool {
	half := k / 2
	tmp := mempool.GetBool(w * h)
	for y := range h {
		for x := range w {
			tmp[y*w+x] = window(op, max(0, x-half), min(w-1, x+half), func(i int) bool { return mask[y*w+i] })
		}
	}
	mempool.PutBool(mask)

	out := mempool.GetBool(w * h)
	for y := range h {
		for x := range w {
			out[y*w+x] = window(op, max(0, y-half), min(h-1, y+half), func(j int) bool { return tmp[j*w+x] })
		}
	}
	mempool.PutBool(tmp)
	return out
}

// window reduces at(lo..hi) with OR for dilation and AND for erosion.
func window(op morphOp, lo, hi int, at func(int) bool) bool {
	for i := lo; i <= hi; i++ {
		v := at(i)
		if op == dilate && v {
			return true
		}
		if op == erode && !v {
			return false
		}
	}
	return op == erode
}
