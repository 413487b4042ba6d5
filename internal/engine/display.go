package engine

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"

	"github.com/justestif/tonal-divider/internal/clustering"
	"github.com/justestif/tonal-divider/internal/points"
)

const sampleNoteCount = 3

// FormatSummary returns a human-readable summary of a snapshot.
// Shows the population size, each division line with the regions its anchors
// sit in, and the first 3 long-lived notes.
func FormatSummary(s Snapshot) string {
	var sb strings.Builder

	longLived := s.LongLived()

	// Header
	fmt.Fprintf(&sb, "Frame %d at %.2fs: %d %s", s.Frame, s.Time, len(s.Points), plural(len(s.Points), "point", "points"))
	if len(longLived) > 0 {
		fmt.Fprintf(&sb, " (%d long-lived)", len(longLived))
	}
	fmt.Fprintf(&sb, ", %d %s\n", len(s.Centres), plural(len(s.Centres), "centre", "centres"))

	if len(s.Lines) == 0 {
		fmt.Fprintf(&sb, "No division lines (%d slots empty)\n", s.Capacity)
	} else {
		fmt.Fprintf(&sb, "%d of %d %s filled\n", len(s.Lines), s.Capacity, plural(s.Capacity, "line", "lines"))
	}

	// Line details
	for i, l := range s.Lines {
		sb.WriteString("\n")
		sb.WriteString(formatLine(i+1, l))
	}

	if len(longLived) == 0 {
		return sb.String()
	}

	sb.WriteString("\nLong-lived notes:\n")
	points.SortByAge(longLived)
	for _, p := range longLived[:min(sampleNoteCount, len(longLived))] {
		fmt.Fprintf(&sb, "  • %s age %.1f, %s\n", formatPoint(p.XY()), p.Age, clustering.RegionName(p.XY()))
	}
	if remaining := len(longLived) - sampleNoteCount; remaining > 0 {
		fmt.Fprintf(&sb, "  ... and %d more\n", remaining)
	}

	return sb.String()
}

// formatLine formats a single line with its anchors and plane crossings.
func formatLine(num int, l LineView) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Line %d (slot %d, age %d): %s to %s\n",
		num, l.Slot, l.Age, formatPoint(l.Ref1), formatPoint(l.Ref2))

	if len(l.Edges) == 2 {
		fmt.Fprintf(&sb, "  crosses %s and %s\n", formatPoint(l.Edges[0]), formatPoint(l.Edges[1]))
	}
	fmt.Fprintf(&sb, "  %s → %s\n", clustering.RegionName(l.Ref1), clustering.RegionName(l.Ref2))

	return sb.String()
}

func formatPoint(p orb.Point) string {
	return fmt.Sprintf("(%.2f, %.2f)", p.X(), p.Y())
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
