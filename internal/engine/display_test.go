package engine

import (
	"strings"
	"testing"

	"github.com/paulmach/orb"

	"github.com/justestif/tonal-divider/internal/points"
)

func TestFormatSummary(t *testing.T) {
	line := LineView{
		Slot:  2,
		Ref1:  orb.Point{0.2, 0.2},
		Ref2:  orb.Point{0.8, 0.8},
		Edges: []orb.Point{{0, 0}, {1, 1}},
		Age:   37,
	}

	makePoints := func(ages ...float64) []points.Point {
		pts := make([]points.Point, len(ages))
		for i, a := range ages {
			pts[i] = points.Point{X: 0.1 * float64(i+1), Y: 0.2, Age: a}
		}
		return pts
	}

	tests := []struct {
		name           string
		snap           Snapshot
		wantContains   []string
		wantNotContain []string
	}{
		{
			name: "empty structure",
			snap: Snapshot{Capacity: 5},
			wantContains: []string{
				"Frame 0 at 0.00s: 0 points, 0 centres",
				"No division lines (5 slots empty)",
			},
			wantNotContain: []string{
				"Long-lived",
				"Line 1",
			},
		},
		{
			name: "single line",
			snap: Snapshot{
				Frame:    120,
				Time:     4,
				Points:   makePoints(1.4),
				Centres:  []orb.Point{{0.5, 0.5}},
				Lines:    []LineView{line},
				Capacity: 5,
			},
			wantContains: []string{
				"Frame 120 at 4.00s: 1 point, 1 centre",
				"1 of 5 lines filled",
				"Line 1 (slot 2, age 37): (0.20, 0.20) to (0.80, 0.80)",
				"crosses (0.00, 0.00) and (1.00, 1.00)",
				"Brooding → Soaring",
			},
			wantNotContain: []string{
				"long-lived",
			},
		},
		{
			name: "long-lived notes shows first 3",
			snap: Snapshot{
				Points:   makePoints(11, 2, 15, 12, 30),
				Capacity: 5,
			},
			wantContains: []string{
				"5 points (4 long-lived)",
				"Long-lived notes:",
				"(0.50, 0.20) age 30.0, Brooding",
				"(0.30, 0.20) age 15.0",
				"(0.40, 0.20) age 12.0",
				"... and 1 more",
			},
			wantNotContain: []string{
				"age 11.0",
				"age 2.0",
			},
		},
		{
			name: "vertical line has no crossings",
			snap: Snapshot{
				Lines:    []LineView{{Ref1: orb.Point{0.5, 0.1}, Ref2: orb.Point{0.5, 0.9}}},
				Capacity: 1,
			},
			wantContains: []string{
				"1 of 1 line filled",
				"Line 1 (slot 0, age 0)",
			},
			wantNotContain: []string{
				"crosses",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatSummary(tt.snap)

			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("FormatSummary() missing %q\ngot:\n%s", want, got)
				}
			}
			for _, notWant := range tt.wantNotContain {
				if strings.Contains(got, notWant) {
					t.Errorf("FormatSummary() should not contain %q\ngot:\n%s", notWant, got)
				}
			}
		})
	}
}
