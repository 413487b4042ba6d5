// Package points maintains the decaying population of note centres that the
// divider anchors its lines to.
package points

import (
	"math"
	"slices"

	"github.com/paulmach/orb"
)

// Point is a note centre on the normalised plane. Age grows each time a fresh
// centre lands on it and shrinks by the decay rate every step.
type Point struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Age float64 `json:"age"`
}

// LongLivedAge is the age beyond which a point counts as an established note.
const LongLivedAge = 10

// XY returns the position of p.
func (p Point) XY() orb.Point {
	return orb.Point{p.X, p.Y}
}

// LongLived reports whether p has outlived LongLivedAge.
func (p Point) LongLived() bool {
	return p.Age > LongLivedAge
}

// Config holds population tuning parameters.
type Config struct {
	MatchTolerance float64 // Per-axis distance within which a centre reinforces a point
	DecayRate      float64 // Age lost by every point on each step
	InitialAge     float64 // Age of a freshly inserted point
	MaxPoints      int     // Cap on population size after pruning (0 = unbounded)
}

// DefaultConfig returns the recommended default configuration.
func DefaultConfig() Config {
	return Config{
		MatchTolerance: 1.0 / 40.0,
		DecayRate:      0.2,
		InitialAge:     1.0,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MatchTolerance <= 0 {
		c.MatchTolerance = d.MatchTolerance
	}
	if c.DecayRate <= 0 {
		c.DecayRate = d.DecayRate
	}
	if c.InitialAge <= 0 {
		c.InitialAge = d.InitialAge
	}
	if c.MaxPoints < 0 {
		c.MaxPoints = 0
	}
	return c
}

// StepStats summarises one population step.
type StepStats struct {
	Inserted   int
	Reinforced int
	Pruned     int
}

// Population is an ordered set of points. It is not safe for concurrent use.
type Population struct {
	cfg    Config
	points []Point
}

// NewPopulation creates an empty population.
func NewPopulation(cfg Config) *Population {
	return &Population{cfg: cfg.withDefaults()}
}

// Config returns the effective configuration.
func (p *Population) Config() Config {
	return p.cfg
}

// Len returns the number of live points.
func (p *Population) Len() int {
	return len(p.points)
}

// Points returns the backing slice. Callers may reorder it (the divider does
// when sorting by age) but must not append to or truncate it.
func (p *Population) Points() []Point {
	return p.points
}

// Snapshot returns a copy of the current points.
func (p *Population) Snapshot() []Point {
	return slices.Clone(p.points)
}

// Step folds in the latest centres, ages every point and prunes the expired.
func (p *Population) Step(centres []orb.Point) StepStats {
	var stats StepStats
	stats.Inserted, stats.Reinforced = p.Fold(centres)
	p.Decay()
	stats.Pruned = p.Prune()
	return stats
}

// Fold reinforces the first point matching each centre, or inserts a new one.
func (p *Population) Fold(centres []orb.Point) (inserted, reinforced int) {
	for _, c := range centres {
		if i := p.match(c); i >= 0 {
			p.points[i].Age++
			reinforced++
			continue
		}
		p.points = append(p.points, Point{X: c.X(), Y: c.Y(), Age: p.cfg.InitialAge})
		inserted++
	}
	return inserted, reinforced
}

func (p *Population) match(c orb.Point) int {
	tol := p.cfg.MatchTolerance
	return slices.IndexFunc(p.points, func(q Point) bool {
		return math.Abs(q.X-c.X()) < tol && math.Abs(q.Y-c.Y()) < tol
	})
}

// Decay lowers every age by the decay rate.
func (p *Population) Decay() {
	for i := range p.points {
		p.points[i].Age -= p.cfg.DecayRate
	}
}

// Prune removes points whose age has run out, then enforces MaxPoints by
// dropping the youngest. Returns the number removed.
func (p *Population) Prune() int {
	before := len(p.points)
	p.points = slices.DeleteFunc(p.points, func(q Point) bool {
		return q.Age <= 0
	})

	if limit := p.cfg.MaxPoints; limit > 0 && len(p.points) > limit {
		SortByAge(p.points)
		p.points = p.points[:limit]
	}
	return before - len(p.points)
}

// SortByAge orders pts oldest first, keeping insertion order between equals.
func SortByAge(pts []Point) {
	slices.SortStableFunc(pts, func(a, b Point) int {
		switch {
		case a.Age > b.Age:
			return -1
		case a.Age < b.Age:
			return 1
		}
		return 0
	})
}
