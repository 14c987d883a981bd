package utils

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvexHull(t *testing.T) {
	tests := []struct {
		name     string
		points   []Point
		expected int
	}{
		{name: "empty", points: nil, expected: 0},
		{name: "single point", points: []Point{{1, 1}}, expected: 1},
		{name: "duplicates", points: []Point{{1, 1}, {1, 1}, {2, 2}}, expected: 2},
		{name: "square with interior point", points: []Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {5, 5}}, expected: 4},
		{name: "collinear edge points dropped", points: []Point{{0, 0}, {5, 0}, {10, 0}, {10, 10}, {0, 10}}, expected: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, ConvexHull(tt.points), tt.expected)
		})
	}
}

func TestMinimumAreaRectangle_AxisAligned(t *testing.T) {
	rect, ok := MinimumAreaRectangle([]Point{{0, 0}, {20, 0}, {20, 10}, {0, 10}, {7, 3}})
	require.True(t, ok)
	assert.InDelta(t, 200.0, rect.Area(), 1e-9)

	angle := math.Mod(math.Abs(rect.EdgeAngle()), 90)
	assert.True(t, angle < 1e-9 || math.Abs(angle-90) < 1e-9, "edge angle %f", rect.EdgeAngle())
}

func TestMinimumAreaRectangle_Rotated(t *testing.T) {
	// Square rotated by 30 degrees around the origin.
	theta := 30 * math.Pi / 180
	var pts []Point
	for _, p := range []Point{{-5, -5}, {5, -5}, {5, 5}, {-5, 5}} {
		pts = append(pts, Point{
			X: p.X*math.Cos(theta) - p.Y*math.Sin(theta),
			Y: p.X*math.Sin(theta) + p.Y*math.Cos(theta),
		})
	}

	rect, ok := MinimumAreaRectangle(pts)
	require.True(t, ok)
	assert.InDelta(t, 100.0, rect.Area(), 1e-6)
	assert.InDelta(t, 10.0, rect.Width, 1e-6)

	edge := math.Mod(rect.EdgeAngle()+360, 90)
	assert.InDelta(t, 30.0, edge, 1e-6)
}

func TestMinimumAreaRectangle_Degenerate(t *testing.T) {
	_, ok := MinimumAreaRectangle(nil)
	assert.False(t, ok)
	_, ok = MinimumAreaRectangle([]Point{{0, 0}, {5, 5}, {10, 10}})
	assert.False(t, ok)
}

func TestMinimumAreaRectangle_NeverLargerThanBoundingBox(t *testing.T) {
	properties := gopter.NewProperties(nil)

	genPoint := gopter.CombineGens(
		gen.Float64Range(-100, 100),
		gen.Float64Range(-100, 100),
	).Map(func(vals []interface{}) Point {
		return Point{X: vals[0].(float64), Y: vals[1].(float64)}
	})

	properties.Property("rotating calipers beats the axis-aligned box", prop.ForAll(
		func(points []Point) bool {
			rect, ok := MinimumAreaRectangle(points)
			if !ok {
				return true
			}
			minX, minY := math.Inf(1), math.Inf(1)
			maxX, maxY := math.Inf(-1), math.Inf(-1)
			for _, p := range points {
				minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
				minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
			}
			return rect.Area() <= (maxX-minX)*(maxY-minY)+1e-6
		},
		gen.SliceOfN(12, genPoint),
	))

	properties.TestingRun(t)
}
