package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/tonal-divider/internal/db"
	"github.com/justestif/tonal-divider/internal/divider"
	"github.com/justestif/tonal-divider/internal/engine"
)

type fakeStore struct {
	mu        sync.Mutex
	rows      []db.DivisionLine
	insertErr error
	inserts   int
}

func (s *fakeStore) InsertBatch(_ context.Context, lines []db.DivisionLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if s.insertErr != nil {
		return s.insertErr
	}
	s.rows = append(s.rows, lines...)
	return nil
}

func (s *fakeStore) Latest(_ context.Context, showID uuid.UUID) ([]db.DivisionLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		latest int64 = -1
		out    []db.DivisionLine
	)
	for _, r := range s.rows {
		if r.ShowID == showID && r.Frame > latest {
			latest = r.Frame
		}
	}
	for _, r := range s.rows {
		if r.ShowID == showID && r.Frame == latest {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, db.ErrNotFound
	}
	return out, nil
}

func snapshot(frame uint64, lines ...engine.LineView) engine.Snapshot {
	return engine.Snapshot{Frame: frame, Lines: lines, Capacity: 5, Changed: true}
}

func view(slot int, a, b orb.Point, age uint64) engine.LineView {
	return engine.LineView{Slot: slot, Ref1: a, Ref2: b, Age: age}
}

func TestDividerChangedBuffersLines(t *testing.T) {
	store := &fakeStore{}
	rec := New(store, uuid.New())

	rec.DividerChanged(snapshot(4, view(0, orb.Point{0.1, 0.1}, orb.Point{0.5, 0.5}, 1)))
	rec.DividerChanged(snapshot(5))
	rec.DividerChanged(snapshot(9,
		view(0, orb.Point{0.1, 0.1}, orb.Point{0.5, 0.5}, 6),
		view(2, orb.Point{0.5, 0.5}, orb.Point{0.9, 0.1}, 1),
	))

	assert.Equal(t, 3, rec.Pending())
	assert.Zero(t, store.inserts)
}

func TestFlushWritesAndClears(t *testing.T) {
	store := &fakeStore{}
	showID := uuid.New()
	rec := New(store, showID)

	rec.DividerChanged(snapshot(9, view(2, orb.Point{0.5, 0.5}, orb.Point{0.9, 0.1}, 3)))
	require.NoError(t, rec.Flush(context.Background()))

	assert.Equal(t, 0, rec.Pending())
	require.Len(t, store.rows, 1)
	row := store.rows[0]
	assert.Equal(t, showID, row.ShowID)
	assert.Equal(t, int64(9), row.Frame)
	assert.Equal(t, 2, row.Slot)
	assert.Equal(t, 0.9, row.Ref2X)
	assert.Equal(t, int64(3), row.Age)
	assert.False(t, row.RecordedAt.IsZero())

	// Nothing pending means no write.
	require.NoError(t, rec.Flush(context.Background()))
	assert.Equal(t, 1, store.inserts)
}

func TestFlushFailureKeepsLines(t *testing.T) {
	store := &fakeStore{insertErr: errors.New("connection reset")}
	rec := New(store, uuid.New())

	rec.DividerChanged(snapshot(4, view(0, orb.Point{0.1, 0.1}, orb.Point{0.5, 0.5}, 1)))
	err := rec.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recording division lines")
	assert.Equal(t, 1, rec.Pending())

	store.insertErr = nil
	rec.DividerChanged(snapshot(5, view(1, orb.Point{0.2, 0.8}, orb.Point{0.7, 0.3}, 1)))
	require.NoError(t, rec.Flush(context.Background()))
	require.Len(t, store.rows, 2)
	assert.Equal(t, int64(4), store.rows[0].Frame)
	assert.Equal(t, int64(5), store.rows[1].Frame)
}

func TestMaxPendingDropsOldest(t *testing.T) {
	rec := New(&fakeStore{}, uuid.New(), WithMaxPending(2))

	for frame := uint64(1); frame <= 3; frame++ {
		rec.DividerChanged(snapshot(frame, view(0, orb.Point{0.1, 0.1}, orb.Point{0.5, 0.5}, frame)))
	}

	require.Equal(t, 2, rec.Pending())
	assert.Equal(t, int64(2), rec.pending[0].Frame)
	assert.Equal(t, int64(3), rec.pending[1].Frame)
}

func TestDropCountSurvivesFailedFlush(t *testing.T) {
	store := &fakeStore{insertErr: errors.New("connection reset")}
	rec := New(store, uuid.New(), WithMaxPending(2))

	for frame := uint64(1); frame <= 3; frame++ {
		rec.DividerChanged(snapshot(frame, view(0, orb.Point{0.1, 0.1}, orb.Point{0.5, 0.5}, frame)))
	}
	require.Equal(t, 1, rec.Dropped())

	require.Error(t, rec.Flush(context.Background()))
	assert.Equal(t, 1, rec.Dropped())
	assert.Equal(t, 2, rec.Pending())

	store.insertErr = nil
	require.NoError(t, rec.Flush(context.Background()))
	assert.Zero(t, rec.Dropped())
	assert.Zero(t, rec.Pending())
	assert.Len(t, store.rows, 2)
}

func TestLatest(t *testing.T) {
	store := &fakeStore{}
	rec := New(store, uuid.New())

	lines, err := rec.Latest(context.Background())
	require.NoError(t, err)
	assert.Empty(t, lines)

	rec.DividerChanged(snapshot(4, view(0, orb.Point{0.1, 0.1}, orb.Point{0.5, 0.5}, 1)))
	rec.DividerChanged(snapshot(9,
		view(0, orb.Point{0.1, 0.1}, orb.Point{0.9, 0.1}, 6),
		view(2, orb.Point{0.5, 0.5}, orb.Point{0.9, 0.1}, 2),
	))
	require.NoError(t, rec.Flush(context.Background()))

	lines, err = rec.Latest(context.Background())
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, orb.Point{0.1, 0.1}, lines[0].Ref1)
	assert.Equal(t, orb.Point{0.9, 0.1}, lines[0].Ref2)
	assert.Equal(t, uint64(6), lines[0].Age)
}

func TestLatestRestoresIntoDivider(t *testing.T) {
	store := &fakeStore{}
	rec := New(store, uuid.New())
	rec.DividerChanged(snapshot(9,
		view(0, orb.Point{0.1, 0.1}, orb.Point{0.5, 0.5}, 4),
		view(1, orb.Point{0.5, 0.5}, orb.Point{0.9, 0.1}, 2),
	))
	require.NoError(t, rec.Flush(context.Background()))

	lines, err := rec.Latest(context.Background())
	require.NoError(t, err)

	eng := engine.New(engine.DefaultConfig())
	assert.Equal(t, 2, eng.Restore(lines))
	snap := eng.Snapshot()
	require.Len(t, snap.Lines, 2)
	assert.Equal(t, uint64(4), snap.Lines[0].Age)
}

func TestRecorderObservesEngine(t *testing.T) {
	store := &fakeStore{}
	rec := New(store, uuid.New())

	var _ engine.Observer = rec
	eng := engine.New(engine.DefaultConfig(), engine.WithObserver(rec))
	restored := eng.Restore([]divider.Line{{Ref1: orb.Point{0.1, 0.1}, Ref2: orb.Point{0.5, 0.5}}})
	assert.Equal(t, 1, restored)
	// Restore does not notify observers.
	assert.Equal(t, 0, rec.Pending())
}

func TestRunFlushesOnCancel(t *testing.T) {
	store := &fakeStore{}
	rec := New(store, uuid.New())
	rec.DividerChanged(snapshot(4, view(0, orb.Point{0.1, 0.1}, orb.Point{0.5, 0.5}, 1)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx, time.Hour) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Len(t, store.rows, 1)
}
