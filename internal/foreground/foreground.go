// Package foreground isolates the photographed item on a white background.
//
// Segmentation is best effort. Whenever it fails or removes too much of the
// frame the normalizer falls back to the untouched original, which the
// canvas composer then letterboxes.
package foreground

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"github.com/MeKo-Tech/prodshot/internal/segment"
	"github.com/disintegration/imaging"
)

// Config controls cropping and the fallback policy.
type Config struct {
	// MinAreaRatio is the smallest opaque share of the original frame that
	// is accepted as a plausible segmentation.
	MinAreaRatio float64 `mapstructure:"min_area_ratio" yaml:"min_area_ratio" json:"min_area_ratio"`
	// PaddingRatio is added on each side, relative to the box dimensions.
	PaddingRatio   float64 `mapstructure:"padding_ratio" yaml:"padding_ratio" json:"padding_ratio"`
	AlphaThreshold uint8   `mapstructure:"alpha_threshold" yaml:"alpha_threshold" json:"alpha_threshold"`
	ForceFallback  bool    `mapstructure:"force_fallback" yaml:"force_fallback" json:"force_fallback"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{MinAreaRatio: 0.20, PaddingRatio: 0.05, AlphaThreshold: 10}
}

// Validate checks the ratios.
func (c Config) Validate() error {
	if c.MinAreaRatio < 0 || c.MinAreaRatio > 1 {
		return fmt.Errorf("min_area_ratio must be in [0,1], got %v", c.MinAreaRatio)
	}
	if c.PaddingRatio < 0 || c.PaddingRatio > 1 {
		return fmt.Errorf("padding_ratio must be in [0,1], got %v", c.PaddingRatio)
	}
	return nil
}

// Fallback reasons.
const (
	ReasonForced       = "forced"
	ReasonNoSegmenter  = "no_segmenter"
	ReasonSegmentError = "segmentation_error"
	ReasonOverRemoved  = "over_removed"
)

// Result is a normalized image ready for the canvas.
type Result struct {
	Image          *image.NRGBA
	OriginalSize   image.Point
	FinalSize      image.Point
	Fallback       bool
	Reason         string
	OpaqueFraction float64
	// Box is the crop rectangle in original coordinates.
	Box image.Rectangle
}

// Normalizer applies segmentation and cropping. A nil Segmenter is valid
// and always falls back.
type Normalizer struct {
	seg segment.Segmenter
	cfg Config
}

// New returns a Normalizer using seg.
func New(seg segment.Segmenter, cfg Config) *Normalizer {
	return &Normalizer{seg: seg, cfg: cfg}
}

// Normalize removes the background of img, crops to the padded foreground
// box and flattens onto white. Segmentation problems never surface as
// errors; only context cancellation does.
func (n *Normalizer) Normalize(ctx context.Context, img image.Image) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	size := image.Pt(b.Dx(), b.Dy())

	if n.cfg.ForceFallback {
		return fallback(img, ReasonForced, 0), nil
	}
	if n.seg == nil {
		return fallback(img, ReasonNoSegmenter, 0), nil
	}

	cut, err := n.seg.Segment(ctx, img)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("segmentation failed, using original", "segmenter", n.seg.Name(), "error", err)
		return fallback(img, ReasonSegmentError, 0), nil
	}
	if cut == nil || cut.Bounds().Size() != size {
		slog.Warn("segmentation returned a malformed mask, using original", "segmenter", n.seg.Name())
		return fallback(img, ReasonSegmentError, 0), nil
	}

	box, opaque := opaqueBounds(cut, n.cfg.AlphaThreshold)
	frac := float64(opaque) / float64(size.X*size.Y)
	if frac < n.cfg.MinAreaRatio || box.Empty() {
		slog.Debug("segmentation removed too much, using original",
			"opaque_fraction", frac, "min_area_ratio", n.cfg.MinAreaRatio)
		return fallback(img, ReasonOverRemoved, frac), nil
	}

	box = pad(box, n.cfg.PaddingRatio, cut.Bounds())
	out := flatten(imaging.Crop(cut, box))
	return &Result{
		Image:          out,
		OriginalSize:   size,
		FinalSize:      out.Bounds().Size(),
		OpaqueFraction: frac,
		Box:            box,
	}, nil
}

func fallback(img image.Image, reason string, frac float64) *Result {
	out := flatten(img)
	b := img.Bounds()
	return &Result{
		Image:          out,
		OriginalSize:   image.Pt(b.Dx(), b.Dy()),
		FinalSize:      out.Bounds().Size(),
		Fallback:       true,
		Reason:         reason,
		OpaqueFraction: frac,
		Box:            image.Rect(0, 0, b.Dx(), b.Dy()),
	}
}

// opaqueBounds returns the bounding box of pixels with alpha above thr and
// their count.
func opaqueBounds(img *image.NRGBA, thr uint8) (image.Rectangle, int) {
	b := img.Bounds()
	minX, minY, maxX, maxY := b.Dx(), b.Dy(), -1, -1
	count := 0
	for y := range b.Dy() {
		row := img.Pix[y*img.Stride:]
		for x := range b.Dx() {
			if row[x*4+3] <= thr {
				continue
			}
			count++
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)
		}
	}
	if count == 0 {
		return image.Rectangle{}, 0
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), count
}

// pad grows r by ratio of its own size on each side, clamped to bounds.
func pad(r image.Rectangle, ratio float64, bounds image.Rectangle) image.Rectangle {
	px := int(float64(r.Dx()) * ratio)
	py := int(float64(r.Dy()) * ratio)
	return image.Rect(r.Min.X-px, r.Min.Y-py, r.Max.X+px, r.Max.Y+py).Intersect(bounds)
}

// flatten composites img over opaque white and drops the alpha channel.
func flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
