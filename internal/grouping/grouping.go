// Package grouping splits an ordered photo session into one group per
// photographed item.
package grouping

import (
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/prodshot/internal/photo"
)

// Config holds the thresholds for starting a new item.
type Config struct {
	// GapThreshold is the largest sequence-number jump still treated as the
	// same burst.
	GapThreshold int `mapstructure:"gap_threshold" yaml:"gap_threshold" json:"gap_threshold"`
	// ColorThreshold is the RGB distance (0-441) between consecutive
	// non-side shots above which a new item starts.
	ColorThreshold float64 `mapstructure:"color_threshold" yaml:"color_threshold" json:"color_threshold"`
	// SideWidthThreshold is the width fraction below which a photo is a side shot.
	SideWidthThreshold float64 `mapstructure:"side_width_threshold" yaml:"side_width_threshold" json:"side_width_threshold"`
}

// DefaultConfig returns the thresholds tuned for burst-style sessions.
func DefaultConfig() Config {
	return Config{
		GapThreshold:       5,
		ColorThreshold:     80,
		SideWidthThreshold: 0.35,
	}
}

// Group is the run of photos believed to show one item.
type Group struct {
	Index  int            `json:"index"` // 1-based
	Photos []*photo.Photo `json:"photos"`
}

// First returns the earliest photo of the group.
func (g Group) First() *photo.Photo { return g.Photos[0] }

// Last returns the latest photo of the group.
func (g Group) Last() *photo.Photo { return g.Photos[len(g.Photos)-1] }

// Range renders the sequence span, e.g. "101-106", or "101" for one photo.
func (g Group) Range() string {
	if len(g.Photos) == 0 {
		return ""
	}
	first, last := label(g.First()), label(g.Last())
	if len(g.Photos) == 1 {
		return first
	}
	return first + "-" + last
}

func label(p *photo.Photo) string {
	if p.HasSequence {
		return fmt.Sprint(p.SequenceNumber)
	}
	return p.Name()
}

// Reason explains why a boundary was placed before a photo.
type Reason string

const (
	ReasonNone  Reason = ""
	ReasonGap   Reason = "sequence_gap"
	ReasonColor Reason = "color_change"
)

// Split decides whether cur starts a new item after prev.
func Split(prev, cur *photo.Photo, cfg Config) Reason {
	gap := cur.SequenceNumber - prev.SequenceNumber
	if gap < 0 {
		gap = -gap
	}
	if prev.HasSequence && cur.HasSequence && gap > cfg.GapThreshold {
		return ReasonGap
	}
	// Color statistics of narrow profiles are unreliable.
	if !prev.IsSideShot(cfg.SideWidthThreshold) && !cur.IsSideShot(cfg.SideWidthThreshold) &&
		prev.DominantColor.Distance(cur.DominantColor) > cfg.ColorThreshold {
		return ReasonColor
	}
	return ReasonNone
}

// Partition splits photos, which must already be in acquisition order,
// into consecutive groups. Every photo lands in exactly one group.
func Partition(photos []*photo.Photo, cfg Config) []Group {
	if len(photos) == 0 {
		return nil
	}

	groups := []Group{{Index: 1, Photos: []*photo.Photo{photos[0]}}}
	for i := 1; i < len(photos); i++ {
		prev, cur := photos[i-1], photos[i]
		if reason := Split(prev, cur, cfg); reason != ReasonNone {
			slog.Debug("new item", "before", cur.Name(), "reason", reason, "item", len(groups)+1)
			groups = append(groups, Group{Index: len(groups) + 1})
		}
		last := &groups[len(groups)-1]
		last.Photos = append(last.Photos, cur)
	}
	return groups
}
