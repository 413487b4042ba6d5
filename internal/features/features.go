// Package features defines the per-frame audio analysis values that drive the
// tonal plane and their normalisation.
package features

import (
	"math"

	"github.com/paulmach/orb"
)

// Frame holds the raw analysis scalars for one moment of audio.
type Frame struct {
	Time     float64 `json:"time"`     // Seconds from the start of the source
	Pitch    float64 `json:"pitch"`    // Fundamental frequency in Hz
	RMS      float64 `json:"rms"`      // Root mean square level, analyser scale
	Kurtosis float64 `json:"kurtosis"` // Spectral kurtosis
	Centroid float64 `json:"centroid"` // Spectral centroid, analyser scale
}

// Valid reports whether every value is a finite number. Invalid frames are
// skipped by the pipeline.
func (f Frame) Valid() bool {
	for _, v := range [...]float64{f.Time, f.Pitch, f.RMS, f.Kurtosis, f.Centroid} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Range is a closed interval that a scalar is mapped from onto [0,1].
type Range struct {
	Min float64 `json:"min" mapstructure:"min"`
	Max float64 `json:"max" mapstructure:"max"`
}

// Normalise maps v onto [0,1], clamping values outside the range.
// A degenerate range maps everything to 0.
func (r Range) Normalise(v float64) float64 {
	if r.Max <= r.Min {
		return 0
	}
	n := (v - r.Min) / (r.Max - r.Min)
	return math.Max(0, math.Min(1, n))
}

// Ranges holds the normalisation interval for each scalar.
type Ranges struct {
	Pitch    Range `json:"pitch" mapstructure:"pitch"`
	RMS      Range `json:"rms" mapstructure:"rms"`
	Kurtosis Range `json:"kurtosis" mapstructure:"kurtosis"`
	Centroid Range `json:"centroid" mapstructure:"centroid"`
}

// DefaultRanges returns the ranges tuned for live instrument input.
func DefaultRanges() Ranges {
	return Ranges{
		Pitch:    Range{Min: 200, Max: 1800},
		RMS:      Range{Min: 0, Max: 4600},
		Kurtosis: Range{Min: 0, Max: 25},
		Centroid: Range{Min: 0.4, Max: 6},
	}
}

// Sample is a normalised frame. S and T place the frame on the tonal plane;
// U and V are carried for display.
type Sample struct {
	S float64 `json:"s"` // Pitch
	T float64 `json:"t"` // Loudness
	U float64 `json:"u"` // Spectral kurtosis
	V float64 `json:"v"` // Spectral centroid
}

// Point returns the sample's position on the tonal plane.
func (s Sample) Point() orb.Point {
	return orb.Point{s.S, s.T}
}

// Normalise maps f through r.
func (r Ranges) Normalise(f Frame) Sample {
	return Sample{
		S: r.Pitch.Normalise(f.Pitch),
		T: r.RMS.Normalise(f.RMS),
		U: r.Kurtosis.Normalise(f.Kurtosis),
		V: r.Centroid.Normalise(f.Centroid),
	}
}
