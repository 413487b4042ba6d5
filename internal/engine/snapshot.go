package engine

import (
	"github.com/paulmach/orb"

	"github.com/justestif/tonal-divider/internal/features"
	"github.com/justestif/tonal-divider/internal/plane"
	"github.com/justestif/tonal-divider/internal/points"
)

// Snapshot is an immutable copy of the pipeline state after a step.
type Snapshot struct {
	Frame    uint64          `json:"frame"`
	Time     float64         `json:"time"`
	Sample   features.Sample `json:"sample"`
	Points   []points.Point  `json:"points"`
	Centres  []orb.Point     `json:"centres"`
	Lines    []LineView      `json:"lines"`
	Capacity int             `json:"capacity"`
	Changed  bool            `json:"changed"`
}

// LineView is a filled divider slot prepared for display. Edges holds where
// the line crosses the plane boundary, and is empty for vertical lines.
type LineView struct {
	Slot  int         `json:"slot"`
	Ref1  orb.Point   `json:"ref1"`
	Ref2  orb.Point   `json:"ref2"`
	Edges []orb.Point `json:"edges"`
	Age   uint64      `json:"age"`
}

// LongLived returns the points that have outlived points.LongLivedAge.
func (s Snapshot) LongLived() []points.Point {
	var out []points.Point
	for _, p := range s.Points {
		if p.LongLived() {
			out = append(out, p)
		}
	}
	return out
}

// buildSnapshot copies the current state. Callers hold e.mu.
func (e *Engine) buildSnapshot(sample features.Sample, centres []orb.Point, changed bool) Snapshot {
	eps := e.divider.Config().Epsilon

	var lines []LineView
	for i, slot := range e.divider.Slots() {
		l, ok := slot.Line()
		if !ok {
			continue
		}
		lines = append(lines, LineView{
			Slot:  i,
			Ref1:  l.Ref1,
			Ref2:  l.Ref2,
			Edges: plane.EdgeIntersections(l.Ref1, l.Ref2, eps),
			Age:   l.Age,
		})
	}

	return Snapshot{
		Frame:    e.frame,
		Sample:   sample,
		Points:   e.population.Snapshot(),
		Centres:  append([]orb.Point(nil), centres...),
		Lines:    lines,
		Capacity: e.divider.Len(),
		Changed:  changed,
	}
}
