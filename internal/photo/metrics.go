package photo

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

const (
	colorSampleSize  = 50
	edgeSampleSize   = 150
	layoutSampleSize = 200

	// brightLevel marks pixels that belong to a lit object in the width test.
	brightLevel = 60
	// brightColumnFraction is the share of a column that must be bright.
	brightColumnFraction = 0.3
	// contentLevel marks pixels counted towards the content area.
	contentLevel = 50
)

// DominantColor returns the mean color of the central half of the image,
// sampled at 50x50 to smooth out sensor noise.
func DominantColor(img image.Image) RGB {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	center := image.Rect(b.Min.X+w/4, b.Min.Y+h/4, b.Min.X+3*w/4, b.Min.Y+3*h/4)
	if center.Empty() {
		center = b
	}
	small := imaging.Resize(imaging.Crop(img, center), colorSampleSize, colorSampleSize, imaging.Linear)

	var r, g, bl float64
	pix := small.Pix
	for i := 0; i < len(pix); i += 4 {
		r += float64(pix[i])
		g += float64(pix[i+1])
		bl += float64(pix[i+2])
	}
	n := float64(len(pix) / 4)
	return RGB{R: r / n, G: g / n, B: bl / n}
}

// EdgeScore is the mean Sobel gradient magnitude of a 150x150 grayscale
// thumbnail. Printed fronts score high, blank backs score low.
func EdgeScore(img image.Image) float64 {
	const n = edgeSampleSize
	gray := Luminance(img, n, n)
	at := func(x, y int) float64 {
		x = min(max(x, 0), n-1)
		y = min(max(y, 0), n-1)
		return gray[y*n+x]
	}

	var sum float64
	for y := range n {
		for x := range n {
			gx := at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1)
			gy := at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1)
			sum += math.Hypot(gx, gy)
		}
	}
	return sum / float64(n*n)
}

// WidthFraction returns the fraction of columns where more than 30% of the
// pixels are bright. Side profiles occupy only a narrow band of columns.
func WidthFraction(img image.Image) float64 {
	const n = layoutSampleSize
	gray := Luminance(img, n, n)

	occupied := 0
	for x := range n {
		bright := 0
		for y := range n {
			if gray[y*n+x] > brightLevel {
				bright++
			}
		}
		if float64(bright)/n > brightColumnFraction {
			occupied++
		}
	}
	return float64(occupied) / n
}

// ContentAreaFraction returns the share of pixels brighter than the
// background cut-off.
func ContentAreaFraction(img image.Image) float64 {
	const n = layoutSampleSize
	gray := Luminance(img, n, n)

	count := 0
	for _, v := range gray {
		if v > contentLevel {
			count++
		}
	}
	return float64(count) / float64(len(gray))
}

// Luminance resizes img to w x h and returns its Rec.601 luma, row-major.
func Luminance(img image.Image, w, h int) []float64 {
	small := imaging.Grayscale(imaging.Resize(img, w, h, imaging.Linear))
	out := make([]float64, w*h)
	for i := range out {
		out[i] = float64(small.Pix[i*4])
	}
	return out
}
