package tilt

import (
	"image"
	"image/color"
	"math"

	"github.com/MeKo-Tech/prodshot/internal/utils"
	"github.com/disintegration/imaging"
)

// Straighten applies est to img. Corrections inside the deadband return img
// itself untouched, since every rotation resamples and softens edges.
// Otherwise the image is rotated on a background-colored fill and the fill
// border is trimmed away. The result is not resized back to the input size.
func Straighten(img image.Image, est Estimate, cfg Config) image.Image {
	if !cfg.Applies(est) {
		return img
	}
	bg := utils.BackgroundColor(img)
	rotated := imaging.Rotate(img, est.Angle, bg)
	return trim(rotated, bg, cfg.TrimTolerance, cfg.TrimPadding)
}

// Applies reports whether est is outside the deadband.
func (c Config) Applies(est Estimate) bool {
	return math.Abs(est.Angle) >= c.Deadband
}

// trim crops img to the pixels that differ from bg by more than tol in any
// channel, keeping pad pixels around them.
func trim(img *image.NRGBA, bg color.NRGBA, tol, pad int) *image.NRGBA {
	b := img.Bounds()
	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, -1, -1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			p := img.Pix[img.PixOffset(x, y):]
			if diff(p[0], bg.R) <= tol && diff(p[1], bg.G) <= tol && diff(p[2], bg.B) <= tol {
				continue
			}
			minX, minY = min(minX, x), min(minY, y)
			maxX, maxY = max(maxX, x), max(maxY, y)
		}
	}
	if maxX < 0 {
		return img
	}
	r := image.Rect(minX-pad, minY-pad, maxX+1+pad, maxY+1+pad).Intersect(b)
	if r.Eq(b) {
		return img
	}
	return imaging.Crop(img, r)
}

func diff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
