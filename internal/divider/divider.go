// Package divider maintains a fixed set of lines dividing the unit plane,
// anchored to a population of note centres and repaired as the centres move.
package divider

import (
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/justestif/tonal-divider/internal/points"
)

// minFillPoints is the population size below which empty slots stay empty.
const minFillPoints = 3

// Config holds divider parameters.
type Config struct {
	Capacity       int     // Number of line slots (fixed for the divider's lifetime)
	Epsilon        float64 // Anchor coincidence threshold
	CloseTolerance float64 // Radius for matching replacement anchors

	// RejectCloseLines also refuses new lines with an anchor close to an
	// anchor of an existing line, which spreads lines across the plane.
	RejectCloseLines bool

	// SortPointsByAge reorders the caller's points oldest first before each
	// update so that repairs prefer stable points.
	SortPointsByAge bool
}

// DefaultConfig returns the recommended default configuration.
func DefaultConfig() Config {
	return Config{
		Capacity:       5,
		Epsilon:        0x1p-52,
		CloseTolerance: 0.1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Capacity <= 0 {
		c.Capacity = d.Capacity
	}
	if c.Epsilon <= 0 {
		c.Epsilon = d.Epsilon
	}
	if c.CloseTolerance <= 0 {
		c.CloseTolerance = d.CloseTolerance
	}
	return c
}

// Rand is the random source used to pick anchors for new lines.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

// Divider owns a fixed number of line slots. It is not safe for concurrent use.
type Divider struct {
	cfg   Config
	tol   Tolerance
	slots []Slot
}

// New creates a divider with every slot empty.
func New(cfg Config) *Divider {
	cfg = cfg.withDefaults()
	return &Divider{
		cfg:   cfg,
		tol:   Tolerance{Epsilon: cfg.Epsilon, Close: cfg.CloseTolerance},
		slots: make([]Slot, cfg.Capacity),
	}
}

// Config returns the effective configuration.
func (d *Divider) Config() Config {
	return d.cfg
}

// Len returns the slot capacity.
func (d *Divider) Len() int {
	return len(d.slots)
}

// Slots returns a copy of every slot, empty ones included.
func (d *Divider) Slots() []Slot {
	return slices.Clone(d.slots)
}

// Lines returns the lines of the filled slots in slot order.
func (d *Divider) Lines() []Line {
	lines := make([]Line, 0, len(d.slots))
	for _, s := range d.slots {
		if l, ok := s.Line(); ok {
			lines = append(lines, l)
		}
	}
	return lines
}

// NewLine builds a line through a and b using the divider's tolerances.
func (d *Divider) NewLine(a, b orb.Point) Line {
	return NewLine(d.tol, a, b)
}

// Update repairs lines whose anchors have left pts and fills empty slots with
// lines between randomly drawn points. It reports whether any slot changed.
//
// With SortPointsByAge set, pts is reordered in place.
func (d *Divider) Update(pts []points.Point, rng Rand) bool {
	if d.cfg.SortPointsByAge {
		points.SortByAge(pts)
	}

	for i := range d.slots {
		if d.slots[i].filled {
			d.slots[i].line.Age++
		}
	}

	changed := d.repair(pts)

	if len(pts) < minFillPoints {
		return changed
	}
	return d.fill(pts, rng) || changed
}

// repair replaces lines with a stale anchor by a nearby equivalent. A line
// with no acceptable replacement is kept as it is.
func (d *Divider) repair(pts []points.Point) bool {
	changed := false
	for i := range d.slots {
		line, ok := d.slots[i].Line()
		if !ok {
			continue
		}
		if d.hasPoint(pts, line.Ref1) && d.hasPoint(pts, line.Ref2) {
			continue
		}

		replacement, found := d.FindNewDivisionLineCloseTo(pts, line.Ref1, line.Ref2)
		if !found || !replacement.IsValid() || d.contains(replacement) {
			continue
		}
		d.slots[i] = filledSlot(replacement)
		changed = true
	}
	return changed
}

// fill gives every empty slot one chance at a line between two random points.
func (d *Divider) fill(pts []points.Point, rng Rand) bool {
	changed := false
	for i := range d.slots {
		if d.slots[i].filled {
			continue
		}
		p1 := pts[rng.IntN(len(pts))]
		p2 := pts[rng.IntN(len(pts))]
		candidate := d.NewLine(p1.XY(), p2.XY())
		if !d.isEligible(candidate) {
			continue
		}
		d.slots[i] = filledSlot(candidate)
		changed = true
	}
	return changed
}

// Insert places a line through l's anchors in the first empty slot if it is
// eligible, keeping l's age. It returns the slot index used.
func (d *Divider) Insert(l Line) (int, bool) {
	age := l.Age
	l = d.NewLine(l.Ref1, l.Ref2)
	l.Age = age
	if !d.isEligible(l) {
		return -1, false
	}
	for i := range d.slots {
		if !d.slots[i].filled {
			d.slots[i] = filledSlot(l)
			return i, true
		}
	}
	return -1, false
}

// FindNewDivisionLineCloseTo looks for points within the closeness radius of a
// and of b, taking the first match in pts order for each. It reports false
// when either lookup fails. Both lookups may land on the same point, which
// yields an invalid line.
func (d *Divider) FindNewDivisionLineCloseTo(pts []points.Point, a, b orb.Point) (Line, bool) {
	p1, ok := d.findPointCloseTo(pts, a)
	if !ok {
		return Line{}, false
	}
	p2, ok := d.findPointCloseTo(pts, b)
	if !ok {
		return Line{}, false
	}
	return d.NewLine(p1, p2), true
}

func (d *Divider) findPointCloseTo(pts []points.Point, target orb.Point) (orb.Point, bool) {
	r2 := d.tol.Close * d.tol.Close
	for _, p := range pts {
		if planar.DistanceSquared(p.XY(), target) < r2 {
			return p.XY(), true
		}
	}
	return orb.Point{}, false
}

func (d *Divider) hasPoint(pts []points.Point, target orb.Point) bool {
	return slices.ContainsFunc(pts, func(p points.Point) bool {
		return planar.DistanceSquared(p.XY(), target) < d.tol.Epsilon
	})
}

func (d *Divider) contains(l Line) bool {
	return slices.ContainsFunc(d.slots, func(s Slot) bool {
		return s.filled && s.line.IsEqual(l)
	})
}

func (d *Divider) isCloseToLines(l Line) bool {
	return slices.ContainsFunc(d.slots, func(s Slot) bool {
		return s.filled && s.line.IsCloseTo(l)
	})
}

// isEligible reports whether l may join the divider.
func (d *Divider) isEligible(l Line) bool {
	if !l.IsValid() {
		return false
	}
	if d.contains(l) {
		return false
	}
	if d.cfg.RejectCloseLines && d.isCloseToLines(l) {
		return false
	}
	return true
}
