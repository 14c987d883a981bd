package testutil

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

// Common backgrounds for synthetic shots.
var (
	DarkBackground  = color.NRGBA{R: 20, G: 20, B: 24, A: 255}
	WhiteBackground = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

// ShotConfig describes a synthetic product photo: a flat rectangle on a
// plain background, optionally striped and rotated.
type ShotConfig struct {
	Width        int
	Height       int
	Background   color.NRGBA
	ObjectWidth  int
	ObjectHeight int
	ObjectColor  color.NRGBA
	// Stripes paints this many dark horizontal bands across the object,
	// which raises its edge detail the way printed artwork does.
	Stripes int
	// Angle rotates the object counter-clockwise, in degrees.
	Angle float64
}

// DefaultShot returns a light box centered on a dark background.
func DefaultShot() ShotConfig {
	return ShotConfig{
		Width:        320,
		Height:       240,
		Background:   DarkBackground,
		ObjectWidth:  200,
		ObjectHeight: 140,
		ObjectColor:  color.NRGBA{R: 210, G: 200, B: 190, A: 255},
	}
}

// ProductShot renders cfg.
func ProductShot(cfg ShotConfig) *image.NRGBA {
	canvas := imaging.New(cfg.Width, cfg.Height, cfg.Background)
	if cfg.ObjectWidth <= 0 || cfg.ObjectHeight <= 0 {
		return canvas
	}

	obj := imaging.New(cfg.ObjectWidth, cfg.ObjectHeight, cfg.ObjectColor)
	if cfg.Stripes > 0 {
		band := max(1, cfg.ObjectHeight/(cfg.Stripes*2+1))
		ink := color.NRGBA{R: cfg.ObjectColor.R / 4, G: cfg.ObjectColor.G / 4, B: cfg.ObjectColor.B / 4, A: 255}
		for s := range cfg.Stripes {
			y0 := band * (2*s + 1)
			for y := y0; y < y0+band && y < cfg.ObjectHeight; y++ {
				for x := cfg.ObjectWidth / 10; x < cfg.ObjectWidth*9/10; x++ {
					obj.SetNRGBA(x, y, ink)
				}
			}
		}
	}
	if cfg.Angle != 0 {
		obj = imaging.Rotate(obj, cfg.Angle, color.Transparent)
	}

	b := obj.Bounds()
	pos := image.Pt((cfg.Width-b.Dx())/2, (cfg.Height-b.Dy())/2)
	return imaging.Overlay(canvas, obj, pos, 1.0)
}

// SaveImage writes img to dir/name (format from the extension) and returns the path.
func SaveImage(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, imaging.Save(img, path, imaging.JPEGQuality(95)))
	return path
}

// Solid returns a uniform image.
func Solid(w, h int, c color.Color) *image.NRGBA {
	return imaging.New(w, h, c)
}

// SessionFiles are the photo names WriteSession creates, in frame order.
var SessionFiles = []string{
	"DSC_0101.png", "DSC_0102.png", "DSC_0103.png",
	"DSC_0120.png", "DSC_0121.png", "DSC_0122.png",
}

// WriteSession fills dir with two items of three photos each: a printed
// front, a plain back of the same average color and a second, smaller
// printed shot of the front. The frame gap separates the items.
func WriteSession(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, WriteSessionFiles(dir))
}

// WriteSessionFiles is WriteSession for callers without a *testing.T.
func WriteSessionFiles(dir string) error {
	items := []struct{ front, back color.NRGBA }{
		{front: color.NRGBA{R: 255, G: 250, B: 245, A: 255}, back: color.NRGBA{R: 166, G: 162, B: 159, A: 255}},
		{front: color.NRGBA{R: 120, G: 200, B: 255, A: 255}, back: color.NRGBA{R: 78, G: 130, B: 166, A: 255}},
	}
	for i, name := range SessionFiles {
		it := items[i/3]
		cfg := DefaultShot()
		switch i % 3 {
		case 0:
			cfg.ObjectColor, cfg.Stripes = it.front, 2
		case 1:
			cfg.ObjectColor = it.back
		case 2:
			cfg.ObjectColor, cfg.Stripes = it.front, 2
			cfg.ObjectWidth, cfg.ObjectHeight = 180, 130
		}
		if err := imaging.Save(ProductShot(cfg), filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}
