package divider

import (
	"math/rand/v2"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/tonal-divider/internal/points"
)

// scriptedRand replays a fixed sequence of draws.
type scriptedRand struct {
	draws []int
	next  int
}

func (r *scriptedRand) IntN(n int) int {
	v := r.draws[r.next%len(r.draws)]
	r.next++
	return v % n
}

func script(draws ...int) *scriptedRand {
	return &scriptedRand{draws: draws}
}

func triangle() []points.Point {
	return []points.Point{
		{X: 0.1, Y: 0.1, Age: 1},
		{X: 0.5, Y: 0.5, Age: 1},
		{X: 0.9, Y: 0.1, Age: 1},
	}
}

func lineBetween(d *Divider, p, q points.Point) Line {
	return d.NewLine(p.XY(), q.XY())
}

func assertNoDuplicates(t *testing.T, d *Divider) {
	t.Helper()
	lines := d.Lines()
	for i := range lines {
		assert.True(t, lines[i].IsValid(), "line %d invalid", i)
		for j := i + 1; j < len(lines); j++ {
			assert.False(t, lines[i].IsEqual(lines[j]), "lines %d and %d are equal", i, j)
		}
	}
}

func TestNewStartsEmpty(t *testing.T) {
	d := New(Config{Capacity: 3})

	assert.Equal(t, 3, d.Len())
	for _, s := range d.Slots() {
		assert.True(t, s.Empty())
	}
	assert.Empty(t, d.Lines())
}

func TestNewAppliesDefaults(t *testing.T) {
	d := New(Config{})
	assert.Equal(t, DefaultConfig(), d.Config())
}

func TestUpdateFillsFromDraws(t *testing.T) {
	pts := triangle()

	tests := []struct {
		name  string
		draws []int
		want  [][2]int // point index pairs per slot, {-1,-1} for empty
	}{
		{
			name:  "every draw eligible",
			draws: []int{0, 1, 0, 2, 1, 2},
			want:  [][2]int{{0, 1}, {0, 2}, {1, 2}},
		},
		{
			name:  "same point drawn twice leaves slot empty",
			draws: []int{0, 1, 1, 1, 1, 2},
			want:  [][2]int{{0, 1}, {-1, -1}, {1, 2}},
		},
		{
			name:  "reversed duplicate is rejected",
			draws: []int{0, 1, 1, 0, 2, 0},
			want:  [][2]int{{0, 1}, {-1, -1}, {2, 0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(Config{Capacity: 3})

			changed := d.Update(pts, script(tt.draws...))

			assert.True(t, changed)
			slots := d.Slots()
			for i, pair := range tt.want {
				l, ok := slots[i].Line()
				if pair[0] < 0 {
					assert.False(t, ok, "slot %d should be empty", i)
					continue
				}
				require.True(t, ok, "slot %d should be filled", i)
				assert.True(t, l.IsEqual(lineBetween(d, pts[pair[0]], pts[pair[1]])), "slot %d", i)
			}
			assertNoDuplicates(t, d)
		})
	}
}

func TestUpdateSeededScenario(t *testing.T) {
	d := New(Config{Capacity: 3})
	rng := rand.New(rand.NewPCG(7, 11))

	changed := d.Update(triangle(), rng)

	filled := len(d.Lines())
	assert.Equal(t, filled > 0, changed)
	assertNoDuplicates(t, d)

	// The same seed always gives the same structure.
	again := New(Config{Capacity: 3})
	again.Update(triangle(), rand.New(rand.NewPCG(7, 11)))
	require.Len(t, again.Lines(), filled)
	for i, l := range d.Lines() {
		assert.True(t, l.IsEqual(again.Lines()[i]))
	}
}

func TestUpdateNeedsThreePointsToFill(t *testing.T) {
	tests := []struct {
		name string
		pts  []points.Point
	}{
		{"no points", nil},
		{"one point", []points.Point{{X: 0.2, Y: 0.2, Age: 1}}},
		{"two points", []points.Point{{X: 0.2, Y: 0.2, Age: 1}, {X: 0.8, Y: 0.6, Age: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(Config{Capacity: 4})
			rng := rand.New(rand.NewPCG(1, 2))

			for i := 0; i < 50; i++ {
				assert.False(t, d.Update(tt.pts, rng))
			}
			assert.Empty(t, d.Lines())
		})
	}
}

func TestUpdateIsIdempotentOnceSaturated(t *testing.T) {
	pts := triangle()
	d := New(Config{Capacity: 3})
	rng := rand.New(rand.NewPCG(3, 5))

	for i := 0; i < 1000 && len(d.Lines()) < 3; i++ {
		d.Update(pts, rng)
	}
	require.Len(t, d.Lines(), 3, "three points support exactly three lines")

	assert.False(t, d.Update(pts, rng))
	assert.False(t, d.Update(pts, rng))
	assertNoDuplicates(t, d)
}

func TestUpdateWithUnreachableSlotStaysUnchanged(t *testing.T) {
	pts := triangle()
	d := New(Config{Capacity: 4})
	rng := rand.New(rand.NewPCG(9, 9))

	for i := 0; i < 1000 && len(d.Lines()) < 3; i++ {
		d.Update(pts, rng)
	}
	require.Len(t, d.Lines(), 3)

	for i := 0; i < 20; i++ {
		assert.False(t, d.Update(pts, rng))
	}
}

func TestUpdateRepairsStaleAnchor(t *testing.T) {
	pts := triangle()
	d := New(Config{Capacity: 1})
	_, ok := d.Insert(lineBetween(d, pts[0], pts[1]))
	require.True(t, ok)

	moved := []points.Point{
		{X: 0.15, Y: 0.12, Age: 1}, // within 0.1 of the old (0.1, 0.1) anchor
		pts[1],
		pts[2],
	}

	changed := d.Update(moved, script(0))

	assert.True(t, changed)
	l, ok := d.Slots()[0].Line()
	require.True(t, ok)
	assert.True(t, l.IsEqual(lineBetween(d, moved[0], moved[1])))
	assert.Zero(t, l.Age)
}

func TestUpdateKeepsLineWithoutReplacement(t *testing.T) {
	pts := triangle()
	d := New(Config{Capacity: 1})
	original := lineBetween(d, pts[0], pts[1])
	d.Insert(original)

	far := []points.Point{
		{X: 0.6, Y: 0.9, Age: 1},
		pts[1],
		pts[2],
	}

	assert.False(t, d.Update(far, script(0)))
	l, ok := d.Slots()[0].Line()
	require.True(t, ok)
	assert.True(t, l.IsEqual(original))
	assert.Equal(t, uint64(1), l.Age)
}

func TestUpdateRejectsReplacementEqualToExistingLine(t *testing.T) {
	p0 := points.Point{X: 0.50, Y: 0.50, Age: 1}
	p1 := points.Point{X: 0.10, Y: 0.90, Age: 1}
	p2 := points.Point{X: 0.55, Y: 0.50, Age: 1}
	p3 := points.Point{X: 0.90, Y: 0.10, Age: 1}

	d := New(Config{Capacity: 2})
	a := lineBetween(d, p0, p1)
	b := lineBetween(d, p2, p1)
	d.Insert(a)
	d.Insert(b)

	// p0 is gone; its nearest stand-in p2 would turn a into a copy of b.
	changed := d.Update([]points.Point{p1, p2, p3}, script(0))

	assert.False(t, changed)
	lines := d.Lines()
	require.Len(t, lines, 2)
	assert.True(t, lines[0].IsEqual(a))
	assert.True(t, lines[1].IsEqual(b))
}

func TestUpdateRejectCloseLinesPolicy(t *testing.T) {
	pts := triangle()

	tests := []struct {
		name       string
		reject     bool
		wantFilled int
	}{
		{"default accepts lines sharing an anchor", false, 2},
		{"strict policy refuses them", true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(Config{Capacity: 2, RejectCloseLines: tt.reject})
			d.Insert(lineBetween(d, pts[0], pts[1]))

			d.Update(pts, script(0, 2))

			assert.Len(t, d.Lines(), tt.wantFilled)
		})
	}
}

func TestUpdateSortsPointsByAge(t *testing.T) {
	pts := []points.Point{
		{X: 0.1, Y: 0.1, Age: 1},
		{X: 0.5, Y: 0.5, Age: 4},
		{X: 0.9, Y: 0.1, Age: 2},
	}

	d := New(Config{Capacity: 1, SortPointsByAge: true})
	d.Update(pts, script(0, 1))

	assert.Equal(t, []float64{4, 2, 1}, []float64{pts[0].Age, pts[1].Age, pts[2].Age})
	l, ok := d.Slots()[0].Line()
	require.True(t, ok)
	assert.True(t, l.IsEqual(d.NewLine(orb.Point{0.5, 0.5}, orb.Point{0.9, 0.1})))
}

func TestUpdateLeavesPointOrderByDefault(t *testing.T) {
	pts := []points.Point{
		{X: 0.1, Y: 0.1, Age: 1},
		{X: 0.5, Y: 0.5, Age: 4},
		{X: 0.9, Y: 0.1, Age: 2},
	}

	New(Config{Capacity: 1}).Update(pts, script(0, 1))

	assert.Equal(t, []float64{1, 4, 2}, []float64{pts[0].Age, pts[1].Age, pts[2].Age})
}

func TestUpdateAgesRetainedLines(t *testing.T) {
	pts := triangle()
	d := New(Config{Capacity: 1})
	d.Update(pts, script(0, 1))

	for i := 0; i < 3; i++ {
		d.Update(pts, script(0))
	}

	l, ok := d.Slots()[0].Line()
	require.True(t, ok)
	assert.Equal(t, uint64(3), l.Age)
}

func TestUpdateNeverDuplicates(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 4242))
	d := New(Config{Capacity: 7})

	pop := points.NewPopulation(points.DefaultConfig())
	for step := 0; step < 300; step++ {
		centres := make([]orb.Point, 4)
		for i := range centres {
			// Coarse grid so centres keep landing on existing points.
			centres[i] = orb.Point{float64(rng.IntN(6)) / 5, float64(rng.IntN(6)) / 5}
		}
		pop.Step(centres)
		d.Update(pop.Points(), rng)
		assertNoDuplicates(t, d)
	}
}

func TestFindNewDivisionLineCloseTo(t *testing.T) {
	pts := triangle()
	d := New(Config{})

	tests := []struct {
		name      string
		a, b      orb.Point
		wantOK    bool
		wantValid bool
		want      Line
	}{
		{
			name:   "both targets resolve",
			a:      orb.Point{0.12, 0.08},
			b:      orb.Point{0.52, 0.47},
			wantOK: true, wantValid: true,
			want: lineBetween(d, pts[0], pts[1]),
		},
		{
			name:   "first target has no nearby point",
			a:      orb.Point{0.9, 0.9},
			b:      orb.Point{0.5, 0.5},
			wantOK: false,
		},
		{
			name:   "second target has no nearby point",
			a:      orb.Point{0.5, 0.5},
			b:      orb.Point{0.3, 0.8},
			wantOK: false,
		},
		{
			name:   "both targets resolve to the same point",
			a:      orb.Point{0.48, 0.5},
			b:      orb.Point{0.52, 0.5},
			wantOK: true, wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := d.FindNewDivisionLineCloseTo(pts, tt.a, tt.b)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantValid, got.IsValid())
			if tt.wantValid {
				assert.True(t, got.IsEqual(tt.want))
			}
		})
	}
}

func TestFindNewDivisionLineTakesFirstMatchNotNearest(t *testing.T) {
	pts := []points.Point{
		{X: 0.45, Y: 0.5, Age: 1}, // first within radius
		{X: 0.50, Y: 0.5, Age: 1}, // nearer, but later
		{X: 0.90, Y: 0.9, Age: 1},
	}
	d := New(Config{})

	got, ok := d.FindNewDivisionLineCloseTo(pts, orb.Point{0.5, 0.5}, orb.Point{0.9, 0.9})

	require.True(t, ok)
	assert.Equal(t, orb.Point{0.45, 0.5}, got.Ref1)
}

func TestInsert(t *testing.T) {
	pts := triangle()
	d := New(Config{Capacity: 2})

	i, ok := d.Insert(lineBetween(d, pts[0], pts[1]))
	assert.True(t, ok)
	assert.Equal(t, 0, i)

	_, ok = d.Insert(lineBetween(d, pts[1], pts[0]))
	assert.False(t, ok, "duplicate")

	_, ok = d.Insert(lineBetween(d, pts[2], pts[2]))
	assert.False(t, ok, "invalid")

	i, ok = d.Insert(lineBetween(d, pts[1], pts[2]))
	assert.True(t, ok)
	assert.Equal(t, 1, i)

	_, ok = d.Insert(lineBetween(d, pts[0], pts[2]))
	assert.False(t, ok, "full")
}

func TestInsertRebuildsLineFromAnchors(t *testing.T) {
	d := New(Config{})

	i, ok := d.Insert(Line{Ref1: orb.Point{0.2, 0.2}, Ref2: orb.Point{0.8, 0.8}, Age: 12})

	require.True(t, ok)
	l, _ := d.Slots()[i].Line()
	assert.Equal(t, uint64(12), l.Age)
	assert.InDelta(t, 0.0, l.P1.Y(), 1e-12)
	assert.InDelta(t, 1.0, l.P2.Y(), 1e-12)
	assert.True(t, l.IsRefPointCloseTo(orb.Point{0.2, 0.25}), "tolerances come from the divider")
}
