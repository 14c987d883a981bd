// Package canvas places normalized images on a fixed-size white square and
// encodes the result.
package canvas

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// Format is an output encoding.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// ParseFormat accepts "jpg", "jpeg" and "png" in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "jpg", "jpeg", "":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	default:
		return "", fmt.Errorf("unsupported output format %q", s)
	}
}

// Ext returns the file extension including the dot.
func (f Format) Ext() string {
	if f == FormatPNG {
		return ".png"
	}
	return ".jpg"
}

// Config is the canvas geometry and encoding.
type Config struct {
	Size    int    `mapstructure:"size" yaml:"size" json:"size"`
	Quality int    `mapstructure:"quality" yaml:"quality" json:"quality"`
	Format  string `mapstructure:"format" yaml:"format" json:"format"`
}

// DefaultConfig returns a 1000px JPEG canvas at quality 85.
func DefaultConfig() Config {
	return Config{Size: 1000, Quality: 85, Format: string(FormatJPEG)}
}

// Validate checks size, quality and format.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("canvas size must be positive, got %d", c.Size)
	}
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("quality must be in [1,100], got %d", c.Quality)
	}
	_, err := ParseFormat(c.Format)
	return err
}

// Compose fits img into a size x size white square. The image is scaled
// down so its longer side equals size, never up, and pasted centered with
// any odd remainder going to the right and bottom.
func Compose(img image.Image, size int) *image.NRGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	var fitted *image.NRGBA
	switch {
	case w <= size && h <= size:
		fitted = imaging.Clone(img)
	case w >= h:
		fitted = imaging.Resize(img, size, scaled(h, size, w), imaging.Lanczos)
	default:
		fitted = imaging.Resize(img, scaled(w, size, h), size, imaging.Lanczos)
	}

	fb := fitted.Bounds()
	bg := imaging.New(size, size, color.White)
	pos := image.Pt((size-fb.Dx())/2, (size-fb.Dy())/2)
	return imaging.Overlay(bg, fitted, pos, 1.0)
}

// scaled returns v*num/den rounded, at least one pixel.
func scaled(v, num, den int) int {
	return max(1, int(math.Round(float64(v)*float64(num)/float64(den))))
}

// Encode writes img to w.
func Encode(w io.Writer, img image.Image, f Format, quality int) error {
	switch f {
	case FormatPNG:
		return imaging.Encode(w, img, imaging.PNG)
	case FormatJPEG, "":
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	default:
		return fmt.Errorf("unsupported output format %q", f)
	}
}

// Save encodes img to path through a temporary file in the same directory,
// so an interrupted write never leaves a truncated output behind.
func Save(path string, img image.Image, f Format, quality int) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := Encode(tmp, img, f, quality); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}
