package db

import (
	"time"

	"github.com/google/uuid"

	"github.com/justestif/tonal-divider/internal/features"
)

// Show is one recorded run of the engine.
type Show struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// DivisionLine is one filled slot of a recorded division structure.
// All lines of a structure share ShowID and Frame.
type DivisionLine struct {
	ShowID     uuid.UUID
	Frame      int64
	Slot       int
	Ref1X      float64
	Ref1Y      float64
	Ref2X      float64
	Ref2Y      float64
	Age        int64
	RecordedAt time.Time
}

// TrackAnalysis is a cached set of frames derived from a track's analysis.
type TrackAnalysis struct {
	TrackID   string
	Name      string
	Artist    string
	Frames    []features.Frame
	FetchedAt time.Time
}
