package divider

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/justestif/tonal-divider/internal/plane"
)

// Tolerance carries the float thresholds a line is judged by.
type Tolerance struct {
	Epsilon float64 // Coincidence threshold for anchors
	Close   float64 // Radius within which an anchor counts as the same point
}

// Line is a cut through the plane defined by two anchor points. P1 and P2 are
// where the full line crosses the west (x=0) and east (x=1) edges; they are
// NaN or infinite when both anchors share an x coordinate. Such a vertical
// line is still valid and keeps its slot, but it never clips an enclosure.
type Line struct {
	Ref1 orb.Point
	Ref2 orb.Point
	P1   orb.Point
	P2   orb.Point
	Age  uint64

	tol Tolerance
}

// NewLine builds the line through anchors a and b.
func NewLine(tol Tolerance, a, b orb.Point) Line {
	return Line{
		Ref1: a,
		Ref2: b,
		P1:   orb.Point{0, plane.YForLineAtX(0, a, b)},
		P2:   orb.Point{1, plane.YForLineAtX(1, a, b)},
		tol:  tol,
	}
}

// IsValid reports whether the anchors are far enough apart to define a line.
func (l Line) IsValid() bool {
	return planar.Distance(l.Ref1, l.Ref2) > l.tol.Epsilon
}

// IsEqual reports whether l and o share anchors, in either order.
func (l Line) IsEqual(o Line) bool {
	return (l.near(l.Ref1, o.Ref1) && l.near(l.Ref2, o.Ref2)) ||
		(l.near(l.Ref1, o.Ref2) && l.near(l.Ref2, o.Ref1))
}

func (l Line) near(a, b orb.Point) bool {
	return math.Abs(a.X()-b.X()) < l.tol.Epsilon && math.Abs(a.Y()-b.Y()) < l.tol.Epsilon
}

// IsRefPointCloseTo reports whether either anchor lies within the closeness
// radius of p.
func (l Line) IsRefPointCloseTo(p orb.Point) bool {
	r2 := l.tol.Close * l.tol.Close
	return planar.DistanceSquared(l.Ref1, p) < r2 || planar.DistanceSquared(l.Ref2, p) < r2
}

// IsCloseTo reports whether any anchor of o lies close to an anchor of l.
func (l Line) IsCloseTo(o Line) bool {
	return l.IsRefPointCloseTo(o.Ref1) || l.IsRefPointCloseTo(o.Ref2)
}

// Segment is a bounded piece of a line.
type Segment struct {
	Start orb.Point
	End   orb.Point
}

// Slot is one position of the divider: either empty or holding a valid line.
type Slot struct {
	line   Line
	filled bool
}

// Line returns the slot's line and whether the slot holds one.
func (s Slot) Line() (Line, bool) {
	return s.line, s.filled
}

// Empty reports whether the slot holds no line.
func (s Slot) Empty() bool {
	return !s.filled
}

func filledSlot(l Line) Slot {
	return Slot{line: l, filled: true}
}
