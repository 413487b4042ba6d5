// Package plane provides line geometry on the normalised unit plane.
package plane

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Unit is the normalised plane all division geometry lives in.
var Unit = orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}

// slopeIntercept returns m and b for y = mx + b through a and b.
// Anchors sharing an x coordinate give an infinite or NaN slope.
func slopeIntercept(a, b orb.Point) (m, c float64) {
	m = (b.Y() - a.Y()) / (b.X() - a.X())
	c = a.Y() - m*a.X()
	return m, c
}

// YForLineAtX evaluates the line through a and b at x.
func YForLineAtX(x float64, a, b orb.Point) float64 {
	m, c := slopeIntercept(a, b)
	return m*x + c
}

// XForLineAtY solves the line through a and b for y.
func XForLineAtY(y float64, a, b orb.Point) float64 {
	m, c := slopeIntercept(a, b)
	return (y - c) / m
}

// inUnitRange reports whether v lies in [0,1]. NaN never does.
func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}

// EdgeIntersections returns where the full line through a and b crosses the
// edges of the unit plane, in west, east, north (y=1), south (y=0) order.
// A crossing within eps of one already found (a corner hit) is not repeated.
func EdgeIntersections(a, b orb.Point, eps float64) []orb.Point {
	candidates := [4]orb.Point{
		{0, YForLineAtX(0, a, b)},
		{1, YForLineAtX(1, a, b)},
		{XForLineAtY(1, a, b), 1},
		{XForLineAtY(0, a, b), 0},
	}

	result := make([]orb.Point, 0, 2)
	for _, p := range candidates {
		if !inUnitRange(p.X()) || !inUnitRange(p.Y()) {
			continue
		}
		if containsPoint(result, p, eps) {
			continue
		}
		result = append(result, p)
	}
	return result
}

func containsPoint(ps []orb.Point, p orb.Point, eps float64) bool {
	for _, q := range ps {
		if planar.DistanceSquared(p, q) < eps {
			return true
		}
	}
	return false
}

// SegmentIntersection returns the point where segment a1-a2 crosses segment
// b1-b2. Parallel and collinear segments never intersect.
func SegmentIntersection(a1, a2, b1, b2 orb.Point, eps float64) (orb.Point, bool) {
	d1 := orb.Point{a2.X() - a1.X(), a2.Y() - a1.Y()}
	d2 := orb.Point{b2.X() - b1.X(), b2.Y() - b1.Y()}

	denom := cross(d1, d2)
	if math.Abs(denom) < eps || math.IsNaN(denom) {
		return orb.Point{}, false
	}

	w := orb.Point{b1.X() - a1.X(), b1.Y() - a1.Y()}
	t := cross(w, d2) / denom
	u := cross(w, d1) / denom
	if !inUnitRange(t) || !inUnitRange(u) {
		return orb.Point{}, false
	}

	return orb.Point{a1.X() + t*d1.X(), a1.Y() + t*d1.Y()}, true
}

func cross(a, b orb.Point) float64 {
	return a.X()*b.Y() - a.Y()*b.X()
}

// Contains reports whether p lies inside the unit plane, edges included.
func Contains(p orb.Point) bool {
	return Unit.Contains(p)
}
