// Package clustering extracts note centres from recent tonal samples using
// k-means.
package clustering

import (
	"github.com/muesli/clusters"
	"github.com/paulmach/orb"
)

// Config holds clustering parameters.
type Config struct {
	Centres       int    // Number of centres to extract (default: 11)
	MaxSamples    int    // Window capacity (default: 3000)
	Seed          uint64 // Seed for the deterministic partitioner
	Seeded        bool   // Use the deterministic partitioner instead of stock k-means
	MaxIterations int    // Lloyd iteration cap (default: 100)
}

// DefaultConfig returns the recommended default configuration.
func DefaultConfig() Config {
	return Config{
		Centres:       11,
		MaxSamples:    3000,
		Seed:          1000,
		Seeded:        true,
		MaxIterations: 100,
	}
}

// Partitioner returns the partitioner selected by the configuration.
func (c Config) Partitioner() Partitioner {
	if !c.Seeded {
		return Stock()
	}
	return Lloyd{Seed: c.Seed, MaxIterations: c.MaxIterations}
}

// Window keeps the most recent samples in arrival order, evicting the oldest
// once full.
type Window struct {
	buf   []orb.Point
	start int
	n     int
}

// NewWindow creates a window holding at most capacity samples.
// A non-positive capacity uses the default.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultConfig().MaxSamples
	}
	return &Window{buf: make([]orb.Point, capacity)}
}

// Push appends p, evicting the oldest sample when the window is full.
func (w *Window) Push(p orb.Point) {
	if w.n < len(w.buf) {
		w.buf[(w.start+w.n)%len(w.buf)] = p
		w.n++
		return
	}
	w.buf[w.start] = p
	w.start = (w.start + 1) % len(w.buf)
}

// Len returns the number of samples held.
func (w *Window) Len() int {
	return w.n
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return len(w.buf)
}

// Samples returns a copy of the samples, oldest first.
func (w *Window) Samples() []orb.Point {
	out := make([]orb.Point, w.n)
	for i := range out {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// Reset empties the window.
func (w *Window) Reset() {
	w.start, w.n = 0, 0
}

// observations converts the window to k-means input, oldest first.
func (w *Window) observations() clusters.Observations {
	obs := make(clusters.Observations, w.n)
	for i, p := range w.Samples() {
		obs[i] = clusters.Coordinates{p.X(), p.Y()}
	}
	return obs
}

// Centres partitions the window into k clusters and returns their centres.
// It returns nil without partitioning while the window holds k samples or
// fewer.
func Centres(w *Window, p Partitioner, k int) ([]orb.Point, error) {
	if k <= 0 || w.Len() <= k {
		return nil, nil
	}

	cc, err := p.Partition(w.observations(), k)
	if err != nil {
		return nil, err
	}

	centres := make([]orb.Point, 0, len(cc))
	for _, c := range cc {
		if len(c.Center) < 2 {
			continue
		}
		centres = append(centres, orb.Point{c.Center[0], c.Center[1]})
	}
	return centres, nil
}
