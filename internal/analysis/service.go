// Package analysis fetches feature frames for remote tracks concurrently.
package analysis

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/justestif/tonal-divider/internal/features"
	"github.com/justestif/tonal-divider/internal/metrics"
)

// Default concurrency for batch processing.
const DefaultConcurrency = 4

// FrameFetcher abstracts the track analysis source for testing.
type FrameFetcher interface {
	FetchAnalysisFrames(ctx context.Context, trackID string) ([]features.Frame, error)
}

// TrackFrames holds the frames fetched for a track.
type TrackFrames struct {
	TrackID string
	Frames  []features.Frame
	Error   error // Non-nil if fetching failed
}

// Service fetches frames for batches of tracks with a bounded worker pool.
type Service struct {
	fetcher     FrameFetcher
	concurrency int
	metrics     *metrics.Collector
	logger      *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithConcurrency sets the number of concurrent fetch operations.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithMetrics records fetch outcomes on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) {
		s.metrics = c
	}
}

// WithLogger sets the logger used for per-track failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a new analysis service.
func NewService(fetcher FrameFetcher, opts ...Option) *Service {
	s := &Service{
		fetcher:     fetcher,
		concurrency: DefaultConcurrency,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchFramesForTracks fetches frames for multiple tracks concurrently.
// Results are returned in the same order as trackIDs.
// Individual fetch errors are captured in TrackFrames.Error rather than failing the batch.
func (s *Service) FetchFramesForTracks(ctx context.Context, trackIDs []string) ([]TrackFrames, error) {
	if len(trackIDs) == 0 {
		return []TrackFrames{}, nil
	}

	results := make([]TrackFrames, len(trackIDs))

	type workItem struct {
		index   int
		trackID string
	}
	workCh := make(chan workItem, len(trackIDs))
	for i, id := range trackIDs {
		workCh <- workItem{index: i, trackID: id}
	}
	close(workCh)

	var wg sync.WaitGroup
	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for work := range workCh {
				select {
				case <-ctx.Done():
					results[work.index] = TrackFrames{
						TrackID: work.trackID,
						Frames:  []features.Frame{},
						Error:   ctx.Err(),
					}
					continue
				default:
				}

				frames, err := s.fetcher.FetchAnalysisFrames(ctx, work.trackID)
				if err != nil {
					s.logger.Warn("fetching analysis failed",
						zap.String("track_id", work.trackID),
						zap.Error(err))
					s.record("error")
					frames = []features.Frame{}
				} else {
					s.record("ok")
				}
				results[work.index] = TrackFrames{
					TrackID: work.trackID,
					Frames:  frames,
					Error:   err,
				}
			}
		}()
	}

	wg.Wait()

	if ctx.Err() != nil {
		return results, ctx.Err()
	}
	return results, nil
}

func (s *Service) record(result string) {
	if s.metrics != nil {
		s.metrics.AnalysisFetches.WithLabelValues(result).Inc()
	}
}

// Concat joins the frames of successful results into one sequence, shifting
// each track's times so they follow the previous track's last frame.
func Concat(results []TrackFrames) []features.Frame {
	var (
		out    []features.Frame
		offset float64
	)
	for _, r := range results {
		if r.Error != nil || len(r.Frames) == 0 {
			continue
		}
		for _, f := range r.Frames {
			f.Time += offset
			out = append(out, f)
		}
		offset = out[len(out)-1].Time
	}
	return out
}
