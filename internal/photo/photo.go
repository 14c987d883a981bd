// Package photo turns a decoded product photo into the handful of signals
// the grouping and classification stages work from.
package photo

import (
	"fmt"
	"image"
	"math"
	"path/filepath"
	"time"
)

// RGB is a color with float channels in the 0-255 range.
type RGB struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// Distance returns the Euclidean distance between two colors (0-441).
func (c RGB) Distance(o RGB) float64 {
	return math.Sqrt((c.R-o.R)*(c.R-o.R) + (c.G-o.G)*(c.G-o.G) + (c.B-o.B)*(c.B-o.B))
}

func (c RGB) String() string {
	return fmt.Sprintf("rgb(%.0f,%.0f,%.0f)", c.R, c.G, c.B)
}

// Photo is the immutable analysis record for one source image.
type Photo struct {
	SourcePath          string    `json:"source_path"`
	SequenceNumber      int       `json:"sequence_number"`
	HasSequence         bool      `json:"has_sequence"`
	CapturedAt          time.Time `json:"captured_at,omitzero"`
	Width               int       `json:"width"`
	Height              int       `json:"height"`
	DominantColor       RGB       `json:"dominant_color"`
	EdgeScore           float64   `json:"edge_score"`
	WidthFraction       float64   `json:"width_fraction"`
	ContentAreaFraction float64   `json:"content_area_fraction"`
}

// Name returns the base file name of the source.
func (p *Photo) Name() string { return filepath.Base(p.SourcePath) }

// IsSideShot reports whether the photo frames a narrow profile of the item.
func (p *Photo) IsSideShot(widthThreshold float64) bool {
	return p.WidthFraction < widthThreshold
}

// Analyze computes all metrics for img. The sequence number is taken from
// the file name; capture time is left for the caller to fill from EXIF.
func Analyze(path string, img image.Image) *Photo {
	b := img.Bounds()
	seq, ok := SequenceNumber(filepath.Base(path))
	return &Photo{
		SourcePath:          path,
		SequenceNumber:      seq,
		HasSequence:         ok,
		Width:               b.Dx(),
		Height:              b.Dy(),
		DominantColor:       DominantColor(img),
		EdgeScore:           EdgeScore(img),
		WidthFraction:       WidthFraction(img),
		ContentAreaFraction: ContentAreaFraction(img),
	}
}
