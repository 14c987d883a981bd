package utils

import (
	"image"
	"image/color"
	"math"
)

// BackgroundColor is the mean color of the outer ring of img, about 2% of
// the shorter side wide. Product shots are framed with background on all
// sides, so the ring is a fair sample of it.
func BackgroundColor(img image.Image) color.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	ring := max(2, min(w, h)/50)

	var r, g, bl, n float64
	sample := func(x, y int) {
		c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA) //nolint:forcetypeassert // NRGBAModel always yields NRGBA
		r += float64(c.R)
		g += float64(c.G)
		bl += float64(c.B)
		n++
	}
	for y := range h {
		if y < ring || y >= h-ring {
			for x := range w {
				sample(x, y)
			}
			continue
		}
		for x := 0; x < min(ring, w); x++ {
			sample(x, y)
		}
		for x := max(ring, w-ring); x < w; x++ {
			sample(x, y)
		}
	}
	if n == 0 {
		return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	}
	return color.NRGBA{
		R: uint8(math.Round(r / n)),
		G: uint8(math.Round(g / n)),
		B: uint8(math.Round(bl / n)),
		A: 255,
	}
}
