package canvas

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/prodshot/internal/testutil"
	"github.com/disintegration/imaging"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	ink   = color.NRGBA{A: 255}
)

// inkBounds returns the bounding box of non-white pixels.
func inkBounds(img *image.NRGBA) image.Rectangle {
	var r image.Rectangle
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.NRGBAAt(x, y) != white {
				r = r.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	return r
}

func TestCompose_DownscalesTallImage(t *testing.T) {
	out := Compose(testutil.Solid(300, 600, ink), 100)
	require.Equal(t, image.Rect(0, 0, 100, 100), out.Bounds())

	box := inkBounds(out)
	assert.Equal(t, 100, box.Dy())
	assert.Equal(t, 50, box.Dx())
	assert.Equal(t, 25, box.Min.X)
	assert.Equal(t, 25, 100-box.Max.X)
}

func TestCompose_NeverUpscales(t *testing.T) {
	out := Compose(testutil.Solid(40, 21, ink), 100)
	box := inkBounds(out)
	assert.Equal(t, image.Rect(30, 39, 70, 60), box)
}

func TestCompose_CentersProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 40
	properties := gopter.NewProperties(params)

	properties.Property("padding is symmetric within one pixel and no side exceeds size", prop.ForAll(
		func(w, h, size int) bool {
			out := Compose(testutil.Solid(w, h, ink), size)
			if out.Bounds().Dx() != size || out.Bounds().Dy() != size {
				return false
			}
			box := inkBounds(out)
			left, right := box.Min.X, size-box.Max.X
			top, bottom := box.Min.Y, size-box.Max.Y
			if box.Dx() > size || box.Dy() > size {
				return false
			}
			if w <= size && h <= size && (box.Dx() != w || box.Dy() != h) {
				return false
			}
			return abs(left-right) <= 1 && abs(top-bottom) <= 1 && left <= right && top <= bottom
		},
		gen.IntRange(1, 160),
		gen.IntRange(1, 160),
		gen.IntRange(16, 120),
	))

	properties.TestingRun(t)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestEncode(t *testing.T) {
	img := Compose(testutil.Solid(10, 10, ink), 20)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, img, FormatPNG, 85))
	decoded, err := imaging.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 20, decoded.Bounds().Dx())

	buf.Reset()
	require.NoError(t, Encode(&buf, img, FormatJPEG, 85))
	assert.Equal(t, []byte{0xFF, 0xD8}, buf.Bytes()[:2])

	require.Error(t, Encode(&buf, img, Format("gif"), 85))
}

func TestSave_Atomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "item-001-front.jpg")
	require.NoError(t, Save(path, Compose(testutil.Solid(10, 10, ink), 20), FormatJPEG, 85))
	assert.True(t, testutil.FileExists(path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must be gone")

	err = Save(filepath.Join(dir, "missing", "x.jpg"), testutil.Solid(1, 1, ink), FormatJPEG, 85)
	require.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"jpg": FormatJPEG, ".JPEG": FormatJPEG, "png": FormatPNG, "": FormatJPEG} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("webp")
	require.Error(t, err)
	assert.Equal(t, ".png", FormatPNG.Ext())
	assert.Equal(t, ".jpg", FormatJPEG.Ext())
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.Error(t, Config{Size: 0, Quality: 85}.Validate())
	require.Error(t, Config{Size: 10, Quality: 101}.Validate())
	require.Error(t, Config{Size: 10, Quality: 50, Format: "bmp"}.Validate())
}
