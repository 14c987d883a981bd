package tilt

import (
	"image"
	"image/color"
	"math"

	"github.com/MeKo-Tech/prodshot/internal/mempool"
	"github.com/MeKo-Tech/prodshot/internal/utils"
	"github.com/disintegration/imaging"
)

// workImage is the downscaled copy the estimators analyse.
type workImage struct {
	img   *image.NRGBA
	gray  []float64
	w, h  int
	bg    color.NRGBA
	bgLum float64
}

func prepare(img image.Image, maxSide int) *workImage {
	small := imaging.Fit(img, maxSide, maxSide, imaging.Linear)
	gray, w, h := luma(small)
	bg := utils.BackgroundColor(small)
	return &workImage{
		img:   small,
		gray:  gray,
		w:     w,
		h:     h,
		bg:    bg,
		bgLum: lumOf(bg),
	}
}

func (wi *workImage) release() {
	mempool.PutFloat64(wi.gray)
	wi.gray = nil
}

// rotated renders the working image rotated by angle degrees.
func (wi *workImage) rotated(angle float64) ([]float64, int, int) {
	if angle == 0 {
		out := mempool.GetFloat64(len(wi.gray))
		copy(out, wi.gray)
		return out, wi.w, wi.h
	}
	return luma(imaging.Rotate(wi.img, angle, wi.bg))
}

// luma returns the Rec.601 luminance plane of img, row-major, from the pool.
func luma(img *image.NRGBA) ([]float64, int, int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := mempool.GetFloat64(w * h)
	for y := range h {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := range w {
			p := row[x*4 : x*4+4]
			out[y*w+x] = 0.299*float64(p[0]) + 0.587*float64(p[1]) + 0.114*float64(p[2])
		}
	}
	return out, w, h
}

func lumOf(c color.NRGBA) float64 {
	return 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
}

// foregroundMask marks pixels whose luminance differs from the background
// by more than delta, then closes gaps twice and opens once with a 5x5
// kernel. The caller returns the mask with mempool.PutBool.
func foregroundMask(wi *workImage, delta float64) []bool {
	mask := mempool.GetBool(wi.w * wi.h)
	for i, v := range wi.gray {
		mask[i] = math.Abs(v-wi.bgLum) > delta
	}
	for range 2 {
		mask = morph(mask, wi.w, wi.h, 5, dilate)
		mask = morph(mask, wi.w, wi.h, 5, erode)
	}
	mask = morph(mask, wi.w, wi.h, 5, erode)
	mask = morph(mask, wi.w, wi.h, 5, dilate)
	return mask
}
