package divider

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/justestif/tonal-divider/internal/plane"
)

// ExtendedLineEnclosedByDivider extends segment a-b to a full line and trims
// it back to the cell of the current division structure that contains a-b:
// each end stops at the nearest dividing line beyond the original point, or
// at the plane edge when none intervenes. Start is the end on a's side.
//
// It reports false when the line does not cross two edges of the plane.
func (d *Divider) ExtendedLineEnclosedByDivider(a, b orb.Point) (Segment, bool) {
	edges := plane.EdgeIntersections(a, b, d.tol.Epsilon)
	if len(edges) < 2 {
		return Segment{}, false
	}

	edge1, edge2 := edges[0], edges[1]
	if planar.DistanceSquared(a, edge2) < planar.DistanceSquared(a, edge1) {
		edge1, edge2 = edge2, edge1
	}

	lines := d.Lines()
	start, end := edge1, edge2

	for _, l := range lines {
		x, ok := plane.SegmentIntersection(edge1, edge2, l.P1, l.P2, d.tol.Epsilon)
		if !ok {
			continue
		}
		if planar.DistanceSquared(a, x) < planar.DistanceSquared(a, start) &&
			planar.DistanceSquared(edge1, x) < planar.DistanceSquared(edge1, a) {
			start = x
		}
	}

	for _, l := range lines {
		x, ok := plane.SegmentIntersection(edge1, edge2, l.P1, l.P2, d.tol.Epsilon)
		if !ok {
			continue
		}
		if planar.DistanceSquared(x, start) < d.tol.Epsilon {
			continue
		}
		if planar.DistanceSquared(b, x) < planar.DistanceSquared(b, end) &&
			planar.DistanceSquared(edge2, x) < planar.DistanceSquared(edge2, b) {
			end = x
		}
	}

	return Segment{Start: start, End: end}, true
}
