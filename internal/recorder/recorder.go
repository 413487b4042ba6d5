// Package recorder persists division structures as the engine changes them.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/justestif/tonal-divider/internal/db"
	"github.com/justestif/tonal-divider/internal/divider"
	"github.com/justestif/tonal-divider/internal/engine"
)

// DefaultMaxPending bounds the lines buffered between flushes.
const DefaultMaxPending = 4096

// Store persists recorded lines. *db.LineRepository implements it.
type Store interface {
	InsertBatch(ctx context.Context, lines []db.DivisionLine) error
	Latest(ctx context.Context, showID uuid.UUID) ([]db.DivisionLine, error)
}

// Recorder buffers every changed division structure of one show and writes
// them to a Store on Flush. It implements engine.Observer.
type Recorder struct {
	store      Store
	showID     uuid.UUID
	logger     *zap.Logger
	now        func() time.Time
	maxPending int

	mu      sync.Mutex
	pending []db.DivisionLine
	dropped int
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMaxPending overrides DefaultMaxPending.
func WithMaxPending(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.maxPending = n
		}
	}
}

// New creates a recorder for showID.
func New(store Store, showID uuid.UUID, opts ...Option) *Recorder {
	r := &Recorder{
		store:      store,
		showID:     showID,
		logger:     zap.NewNop(),
		now:        time.Now,
		maxPending: DefaultMaxPending,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ShowID returns the show being recorded.
func (r *Recorder) ShowID() uuid.UUID {
	return r.showID
}

// DividerChanged buffers the snapshot's filled lines. Structures with no
// lines are not recorded. When the buffer is full the oldest lines are
// dropped.
func (r *Recorder) DividerChanged(s engine.Snapshot) {
	if len(s.Lines) == 0 {
		return
	}
	rows := toRows(r.showID, s, r.now())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, rows...)
	if over := len(r.pending) - r.maxPending; over > 0 {
		r.pending = append(r.pending[:0], r.pending[over:]...)
		r.dropped += over
	}
}

// Pending returns the number of buffered lines.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Flush writes buffered lines to the store. On failure the lines stay
// buffered for the next attempt.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	dropped := r.dropped
	r.mu.Unlock()

	if len(batch) > 0 {
		if err := r.store.InsertBatch(ctx, batch); err != nil {
			r.mu.Lock()
			r.pending = append(batch, r.pending...)
			r.mu.Unlock()
			return fmt.Errorf("recording division lines: %w", err)
		}
	}

	// Drops counted while the batch was being written are reported next time.
	r.mu.Lock()
	r.dropped -= dropped
	r.mu.Unlock()

	if dropped > 0 {
		r.logger.Warn("dropped buffered division lines", zap.Int("dropped", dropped))
	}
	if len(batch) > 0 {
		r.logger.Debug("recorded division lines", zap.Int("lines", len(batch)))
	}
	return nil
}

// Dropped returns the number of lines discarded from a full buffer and not
// yet reported by a successful Flush.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Run flushes every interval until ctx is done, then flushes once more.
func (r *Recorder) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// ctx is already cancelled; the final flush gets its own deadline.
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return r.Flush(flushCtx)
		case <-ticker.C:
			if err := r.Flush(ctx); err != nil {
				r.logger.Warn("flushing division lines failed", zap.Error(err))
			}
		}
	}
}

// Latest loads the show's most recently recorded structure, ready to pass to
// engine.Restore. A show with nothing recorded returns no lines.
func (r *Recorder) Latest(ctx context.Context) ([]divider.Line, error) {
	rows, err := r.store.Latest(ctx, r.showID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest division lines: %w", err)
	}
	return toLines(rows), nil
}

func toRows(showID uuid.UUID, s engine.Snapshot, at time.Time) []db.DivisionLine {
	rows := make([]db.DivisionLine, len(s.Lines))
	for i, l := range s.Lines {
		rows[i] = db.DivisionLine{
			ShowID:     showID,
			Frame:      int64(s.Frame),
			Slot:       l.Slot,
			Ref1X:      l.Ref1.X(),
			Ref1Y:      l.Ref1.Y(),
			Ref2X:      l.Ref2.X(),
			Ref2Y:      l.Ref2.Y(),
			Age:        int64(l.Age),
			RecordedAt: at,
		}
	}
	return rows
}

func toLines(rows []db.DivisionLine) []divider.Line {
	lines := make([]divider.Line, len(rows))
	for i, row := range rows {
		lines[i] = divider.Line{
			Ref1: orb.Point{row.Ref1X, row.Ref1Y},
			Ref2: orb.Point{row.Ref2X, row.Ref2Y},
			Age:  uint64(row.Age),
		}
	}
	return lines
}
