package spotify

import (
	"context"
	"fmt"
	"math"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/tonal-divider/internal/features"
)

const (
	middleC = 261.6256 // Hz

	// Timbre coefficients used by SegmentFrame.
	timbreBrightness = 1
	timbreAttack     = 3

	// Full scale for RMS, matching the top of features.DefaultRanges.
	rmsFullScale = 4600.0
)

// FetchAnalysisFrames retrieves a track's audio analysis and converts each
// segment to a frame. Segments without pitch or timbre vectors are dropped.
func (c *Client) FetchAnalysisFrames(ctx context.Context, trackID string) ([]features.Frame, error) {
	analysis, err := c.api.GetAudioAnalysis(ctx, spotify.ID(trackID))
	if err != nil {
		return nil, fmt.Errorf("fetching audio analysis for %s: %w", trackID, err)
	}

	frames := make([]features.Frame, 0, len(analysis.Segments))
	for _, seg := range analysis.Segments {
		f, ok := SegmentFrame(seg)
		if !ok {
			continue
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// SegmentFrame converts one analysis segment into frame scalars:
//   - Pitch: the strongest chroma class, placed in an octave above middle C
//     chosen by timbre brightness (0 to 2 octaves up)
//   - RMS: peak loudness in dB as amplitude on a 0-4600 scale
//   - Kurtosis: magnitude of the attack timbre coefficient, scaled by 1/4
//   - Centroid: timbre brightness mapped linearly from [-100, 200] onto [0.4, 6]
func SegmentFrame(seg spotify.Segment) (features.Frame, bool) {
	if len(seg.Pitches) < 12 || len(seg.Timbre) <= timbreAttack {
		return features.Frame{}, false
	}

	chroma := 0
	for i, p := range seg.Pitches[:12] {
		if p > seg.Pitches[chroma] {
			chroma = i
		}
	}

	brightness := seg.Timbre[timbreBrightness]
	octave := math.Max(0, math.Min(2, math.Floor(brightness/60)))

	return features.Frame{
		Time:     seg.Start,
		Pitch:    middleC * math.Pow(2, float64(chroma)/12+octave),
		RMS:      rmsFullScale * math.Pow(10, seg.LoudnessMax/20),
		Kurtosis: math.Abs(seg.Timbre[timbreAttack]) / 4,
		Centroid: 0.4 + (brightness+100)/300*5.6,
	}, true
}
