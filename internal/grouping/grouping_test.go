package grouping

import (
	"fmt"
	"testing"

	"github.com/MeKo-Tech/prodshot/internal/photo"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shot(seq int, c photo.RGB, width float64) *photo.Photo {
	return &photo.Photo{
		SourcePath:     fmt.Sprintf("IMG_%04d.jpg", seq),
		SequenceNumber: seq,
		HasSequence:    true,
		DominantColor:  c,
		WidthFraction:  width,
	}
}

var grey = photo.RGB{R: 120, G: 120, B: 120}

func TestGroup_SplitsAtSequenceGap(t *testing.T) {
	// Gaps 1,1,1,9,1,1.
	seqs := []int{10, 11, 12, 13, 22, 23, 24}
	var photos []*photo.Photo
	for _, s := range seqs {
		photos = append(photos, shot(s, grey, 0.8))
	}

	groups := Partition(photos, DefaultConfig())
	require.Len(t, groups, 2)
	assert.Len(t, groups[0].Photos, 4)
	assert.Len(t, groups[1].Photos, 3)
	assert.Equal(t, "10-13", groups[0].Range())
	assert.Equal(t, "22-24", groups[1].Range())
	assert.Equal(t, 2, groups[1].Index)
}

func TestGroup_SplitsOnColorChange(t *testing.T) {
	red := photo.RGB{R: 200, G: 30, B: 30}
	photos := []*photo.Photo{
		shot(1, grey, 0.8),
		shot(2, grey, 0.8),
		shot(3, red, 0.8), // distance to grey > 80
		shot(4, red, 0.8),
	}

	groups := Partition(photos, DefaultConfig())
	require.Len(t, groups, 2)
	assert.Equal(t, "1-2", groups[0].Range())
	assert.Equal(t, "3-4", groups[1].Range())
	assert.Equal(t, ReasonColor, Split(photos[1], photos[2], DefaultConfig()))
}

func TestGroup_IgnoresColorForSideShots(t *testing.T) {
	red := photo.RGB{R: 200, G: 30, B: 30}
	photos := []*photo.Photo{
		shot(1, grey, 0.8),
		shot(2, red, 0.2), // side shot with a very different color
		shot(3, grey, 0.8),
	}

	groups := Partition(photos, DefaultConfig())
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Photos, 3)
}

func TestGroup_SmallColorDriftStaysTogether(t *testing.T) {
	photos := []*photo.Photo{
		shot(1, grey, 0.8),
		shot(3, photo.RGB{R: 150, G: 130, B: 120}, 0.8),
		shot(5, photo.RGB{R: 170, G: 140, B: 120}, 0.8),
	}
	assert.Len(t, Partition(photos, DefaultConfig()), 1)
}

func TestGroup_EmptyAndSingle(t *testing.T) {
	assert.Empty(t, Partition(nil, DefaultConfig()))

	groups := Partition([]*photo.Photo{shot(7, grey, 0.8)}, DefaultConfig())
	require.Len(t, groups, 1)
	assert.Equal(t, "7", groups[0].Range())
}

func TestGroup_Partitions(t *testing.T) {
	properties := gopter.NewProperties(nil)

	type step struct {
		gap   int
		color float64
		width float64
	}
	genStep := gopter.CombineGens(
		gen.IntRange(0, 12),
		gen.Float64Range(0, 255),
		gen.Float64Range(0, 1),
	).Map(func(v []interface{}) step {
		return step{gap: v[0].(int), color: v[1].(float64), width: v[2].(float64)}
	})

	properties.Property("groups cover the input exactly once, in order", prop.ForAll(
		func(steps []step) bool {
			photos := make([]*photo.Photo, 0, len(steps))
			seq := 100
			for _, s := range steps {
				seq += s.gap
				photos = append(photos, shot(seq, photo.RGB{R: s.color, G: s.color / 2, B: 255 - s.color}, s.width))
			}

			groups := Partition(photos, DefaultConfig())
			i := 0
			for gi, g := range groups {
				if g.Index != gi+1 || len(g.Photos) == 0 {
					return false
				}
				for _, p := range g.Photos {
					if i >= len(photos) || p != photos[i] {
						return false
					}
					i++
				}
			}
			return i == len(photos)
		},
		gen.SliceOf(genStep),
	))

	properties.TestingRun(t)
}
