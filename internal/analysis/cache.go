package analysis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/justestif/tonal-divider/internal/db"
	"github.com/justestif/tonal-divider/internal/features"
	"github.com/justestif/tonal-divider/internal/metrics"
)

// CacheTTL is the duration after which cached analyses are considered stale.
const CacheTTL = 30 * 24 * time.Hour // 30 days

// Store persists fetched analyses. *db.AnalysisRepository implements it.
type Store interface {
	GetForTracks(ctx context.Context, trackIDs []string) (map[string]db.TrackAnalysis, error)
	UpsertBatch(ctx context.Context, analyses []db.TrackAnalysis) error
}

// CachedFetcher implements FrameFetcher with database persistence.
// It checks the store first, then falls back to the wrapped fetcher for
// misses and stale entries, persisting what it fetches.
type CachedFetcher struct {
	store   Store
	fetcher FrameFetcher
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Collector
	logger  *zap.Logger
}

// CacheOption configures a CachedFetcher.
type CacheOption func(*CachedFetcher)

// WithTTL overrides CacheTTL.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *CachedFetcher) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheMetrics records hits and misses on m.
func WithCacheMetrics(m *metrics.Collector) CacheOption {
	return func(c *CachedFetcher) {
		c.metrics = m
	}
}

// WithCacheLogger sets the logger used when persisting fails.
func WithCacheLogger(l *zap.Logger) CacheOption {
	return func(c *CachedFetcher) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCachedFetcher wraps fetcher with store.
func NewCachedFetcher(store Store, fetcher FrameFetcher, opts ...CacheOption) *CachedFetcher {
	c := &CachedFetcher{
		store:   store,
		fetcher: fetcher,
		ttl:     CacheTTL,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchAnalysisFrames returns the track's frames, using the store when it
// holds a fresh copy.
func (c *CachedFetcher) FetchAnalysisFrames(ctx context.Context, trackID string) ([]features.Frame, error) {
	cached, err := c.store.GetForTracks(ctx, []string{trackID})
	if err != nil {
		return nil, fmt.Errorf("getting cached analysis: %w", err)
	}

	// Stale entries are refetched lazily.
	if entry, ok := cached[trackID]; ok && entry.FetchedAt.After(c.now().Add(-c.ttl)) {
		c.hit()
		return entry.Frames, nil
	}
	c.miss()

	frames, err := c.fetcher.FetchAnalysisFrames(ctx, trackID)
	if err != nil {
		return nil, err
	}

	entry := db.TrackAnalysis{
		TrackID:   trackID,
		Frames:    frames,
		FetchedAt: c.now(),
	}
	if err := c.store.UpsertBatch(ctx, []db.TrackAnalysis{entry}); err != nil {
		// The frames are still good; the next call refetches.
		c.logger.Warn("persisting analysis failed",
			zap.String("track_id", trackID),
			zap.Error(err))
	}
	return frames, nil
}

func (c *CachedFetcher) hit() {
	if c.metrics != nil {
		c.metrics.CacheHits.Inc()
	}
}

func (c *CachedFetcher) miss() {
	if c.metrics != nil {
		c.metrics.CacheMisses.Inc()
	}
}
