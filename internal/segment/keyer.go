package segment

import (
	"context"
	"image"
	"image/color"

	"github.com/MeKo-Tech/prodshot/internal/utils"
	"github.com/disintegration/imaging"
)

// Keyer removes a plain studio background by color distance. With a white
// sweep it turns near-white pixels transparent, ramping the opacity across
// the feather band so anti-aliased outlines stay soft.
type Keyer struct {
	tolerance int
	feather   int
	keyWhite  bool
}

// NewKeyer returns a keyer configured from cfg.
func NewKeyer(cfg Config) *Keyer {
	return &Keyer{tolerance: cfg.Tolerance, feather: max(1, cfg.Feather), keyWhite: cfg.KeyWhite}
}

func (k *Keyer) Name() string { return BackendKeyer }

func (k *Keyer) Close() error { return nil }

func (k *Keyer) Segment(ctx context.Context, img image.Image) (*image.NRGBA, error) {
	key := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	if !k.keyWhite {
		key = utils.BackgroundColor(img)
	}

	out := imaging.Clone(img)
	b := out.Bounds()
	for y := range b.Dy() {
		if y%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row := out.Pix[y*out.Stride : y*out.Stride+b.Dx()*4]
		for x := 0; x < len(row); x += 4 {
			d := max(dist(row[x], key.R), dist(row[x+1], key.G), dist(row[x+2], key.B))
			row[x+3] = uint8(min(int(row[x+3]), k.alpha(d)))
		}
	}
	return out, nil
}

// alpha maps a color distance to an opacity.
func (k *Keyer) alpha(d int) int {
	switch {
	case d <= k.tolerance:
		return 0
	case d >= k.tolerance+k.feather:
		return 255
	default:
		return 255 * (d - k.tolerance) / k.feather
	}
}

func dist(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
