package utils

import (
	"math"
	"sort"
)

// Point is a 2D point in image coordinates (y grows downward).
type Point struct {
	X float64
	Y float64
}

// RotatedRect is a rectangle of arbitrary orientation.
// Corners are ordered so that Corners[0]->Corners[1] is the first side.
type RotatedRect struct {
	Corners [4]Point
	Width   float64 // length of Corners[0]->Corners[1]
	Height  float64 // length of Corners[1]->Corners[2]
}

// Area returns the rectangle area.
func (r RotatedRect) Area() float64 { return r.Width * r.Height }

// EdgeAngle returns the direction of the first side in degrees, measured
// with atan2 in image coordinates.
func (r RotatedRect) EdgeAngle() float64 {
	return math.Atan2(r.Corners[1].Y-r.Corners[0].Y, r.Corners[1].X-r.Corners[0].X) * 180 / math.Pi
}

// ConvexHull computes the convex hull of a set of points using the
// monotone chain algorithm. The hull is returned without repeating the
// first point at the end.
func ConvexHull(pts []Point) []Point {
	if len(pts) <= 1 {
		return append([]Point(nil), pts...)
	}
	p := make([]Point, len(pts))
	copy(p, pts)
	sort.Slice(p, func(i, j int) bool {
		if p[i].X != p[j].X {
			return p[i].X < p[j].X
		}
		return p[i].Y < p[j].Y
	})
	p = dedupSorted(p)
	if len(p) <= 2 {
		return p
	}

	hull := make([]Point, 0, 2*len(p))
	for _, pt := range p {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], pt) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, pt)
	}
	lower := len(hull) + 1
	for i := len(p) - 2; i >= 0; i-- {
		pt := p[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], pt) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, pt)
	}
	return hull[:len(hull)-1]
}

func dedupSorted(p []Point) []Point {
	out := p[:1]
	for _, pt := range p[1:] {
		last := out[len(out)-1]
		if pt.X != last.X || pt.Y != last.Y {
			out = append(out, pt)
		}
	}
	return out
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// MinimumAreaRectangle returns the smallest rectangle enclosing pts using
// rotating calipers over the convex hull. ok is false when fewer than three
// non-collinear points are available.
func MinimumAreaRectangle(pts []Point) (RotatedRect, bool) {
	hull := ConvexHull(pts)
	if len(hull) < 3 {
		return RotatedRect{}, false
	}

	best := math.Inf(1)
	var u, v Point
	var minS, maxS, minT, maxT float64
	for i := range hull {
		a, b := hull[i], hull[(i+1)%len(hull)]
		l := math.Hypot(b.X-a.X, b.Y-a.Y)
		if l == 0 {
			continue
		}
		ux, uy := (b.X-a.X)/l, (b.Y-a.Y)/l
		vx, vy := -uy, ux
		s0, s1 := math.Inf(1), math.Inf(-1)
		t0, t1 := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			s := p.X*ux + p.Y*uy
			t := p.X*vx + p.Y*vy
			s0, s1 = math.Min(s0, s), math.Max(s1, s)
			t0, t1 = math.Min(t0, t), math.Max(t1, t)
		}
		if area := (s1 - s0) * (t1 - t0); area < best {
			best = area
			u, v = Point{ux, uy}, Point{vx, vy}
			minS, maxS, minT, maxT = s0, s1, t0, t1
		}
	}
	if math.IsInf(best, 1) || best == 0 {
		return RotatedRect{}, false
	}

	at := func(s, t float64) Point { return Point{X: u.X*s + v.X*t, Y: u.Y*s + v.Y*t} }
	return RotatedRect{
		Corners: [4]Point{at(minS, minT), at(maxS, minT), at(maxS, maxT), at(minS, maxT)},
		Width:   maxS - minS,
		Height:  maxT - minT,
	}, true
}
