// Package engine runs the per-frame pipeline: normalise a frame, cluster the
// recent samples into note centres, fold them into the point population and
// update the divider.
package engine

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/justestif/tonal-divider/internal/clustering"
	"github.com/justestif/tonal-divider/internal/divider"
	"github.com/justestif/tonal-divider/internal/features"
	"github.com/justestif/tonal-divider/internal/metrics"
	"github.com/justestif/tonal-divider/internal/points"
)

// Config gathers the parameters of every pipeline stage.
type Config struct {
	Ranges     features.Ranges
	Clustering clustering.Config
	Points     points.Config
	Divider    divider.Config
	Seed       uint64 // Seed for line anchor draws (0 = random)
}

// DefaultConfig returns the recommended default configuration.
func DefaultConfig() Config {
	return Config{
		Ranges:     features.DefaultRanges(),
		Clustering: clustering.DefaultConfig(),
		Points:     points.DefaultConfig(),
		Divider:    divider.DefaultConfig(),
	}
}

// Observer is notified after every step that changed the division structure.
// It runs on the stepping goroutine and must not block.
type Observer interface {
	DividerChanged(s Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(s Snapshot)

// DividerChanged calls f(s).
func (f ObserverFunc) DividerChanged(s Snapshot) {
	f(s)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Steps are logged at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics records pipeline metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) {
		e.metrics = c
	}
}

// WithObserver adds an observer of divider changes.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, o)
	}
}

// WithPartitioner overrides the partitioner chosen by the clustering config.
func WithPartitioner(p clustering.Partitioner) Option {
	return func(e *Engine) {
		e.partitioner = p
	}
}

// WithRand overrides the random source used to anchor new lines.
func WithRand(r divider.Rand) Option {
	return func(e *Engine) {
		e.rng = r
	}
}

// Engine owns the pipeline state. Steps are serialised; Snapshot and Enclose
// may be called concurrently with them.
type Engine struct {
	cfg         Config
	partitioner clustering.Partitioner
	rng         divider.Rand
	logger      *zap.Logger
	metrics     *metrics.Collector
	observers   []Observer

	stepMu     sync.Mutex // held for a whole Step, observers included
	mu         sync.RWMutex
	window     *clustering.Window
	population *points.Population
	divider    *divider.Divider
	frame      uint64
	snapshot   Snapshot
}

// New creates an engine with an empty window, population and divider.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		window:     clustering.NewWindow(cfg.Clustering.MaxSamples),
		population: points.NewPopulation(cfg.Points),
		divider:    divider.New(cfg.Divider),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.partitioner == nil {
		e.partitioner = cfg.Clustering.Partitioner()
	}
	if e.rng == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = rand.Uint64()
		}
		e.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
	if e.cfg.Clustering.Centres <= 0 {
		e.cfg.Clustering.Centres = clustering.DefaultConfig().Centres
	}

	e.snapshot = e.buildSnapshot(features.Sample{}, nil, false)
	return e
}

// Step runs one frame through the pipeline and reports whether the division
// structure changed. Invalid frames are skipped.
func (e *Engine) Step(f features.Frame) (bool, error) {
	e.stepMu.Lock()
	defer e.stepMu.Unlock()
	start := time.Now()

	if !f.Valid() {
		if e.metrics != nil {
			e.metrics.FramesSkipped.Inc()
		}
		e.logger.Debug("skipping invalid frame", zap.Float64("time", f.Time))
		return false, nil
	}

	sample := e.cfg.Ranges.Normalise(f)

	e.mu.Lock()
	e.window.Push(sample.Point())

	centres, err := clustering.Centres(e.window, e.partitioner, e.cfg.Clustering.Centres)
	if err != nil {
		e.mu.Unlock()
		return false, fmt.Errorf("clustering frame %d: %w", e.frame, err)
	}

	stats := e.population.Step(centres)
	changed := e.divider.Update(e.population.Points(), e.rng)
	e.frame++

	snap := e.buildSnapshot(sample, centres, changed)
	snap.Time = f.Time
	e.snapshot = snap
	e.mu.Unlock()

	if e.metrics != nil {
		e.record(snap, stats, time.Since(start))
	}

	e.logger.Debug("stepped frame",
		zap.Uint64("frame", snap.Frame),
		zap.Int("centres", len(centres)),
		zap.Int("points", len(snap.Points)),
		zap.Int("inserted", stats.Inserted),
		zap.Int("reinforced", stats.Reinforced),
		zap.Int("pruned", stats.Pruned),
		zap.Int("lines", len(snap.Lines)),
		zap.Bool("changed", changed),
	)

	if changed {
		for _, o := range e.observers {
			o.DividerChanged(snap)
		}
	}
	return changed, nil
}

// StepAll steps every frame in order and returns how many changed the
// division structure.
func (e *Engine) StepAll(frames []features.Frame) (int, error) {
	changes := 0
	for _, f := range frames {
		changed, err := e.Step(f)
		if err != nil {
			return changes, err
		}
		if changed {
			changes++
		}
	}
	return changes, nil
}

func (e *Engine) record(s Snapshot, stats points.StepStats, d time.Duration) {
	m := e.metrics
	m.FramesProcessed.Inc()
	m.StepDuration.Observe(d.Seconds())
	m.Points.Set(float64(len(s.Points)))
	m.Centres.Set(float64(len(s.Centres)))
	m.FilledLines.Set(float64(len(s.Lines)))
	m.PointsInserted.Add(float64(stats.Inserted))
	m.PointsReinforced.Add(float64(stats.Reinforced))
	m.PointsPruned.Add(float64(stats.Pruned))
	if s.Changed {
		m.DividerChanges.Inc()
	}
}

// Snapshot returns the state published by the most recent step.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot
}

// Enclose extends segment a-b across the plane and trims it to the cell of
// the current division structure that contains it.
func (e *Engine) Enclose(a, b orb.Point) (divider.Segment, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.divider.ExtendedLineEnclosedByDivider(a, b)
}

// Restore inserts previously recorded lines into empty slots and returns how
// many were accepted. Ineligible lines are skipped.
func (e *Engine) Restore(lines []divider.Line) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	restored := 0
	for _, l := range lines {
		if _, ok := e.divider.Insert(l); ok {
			restored++
		}
	}

	snap := e.buildSnapshot(e.snapshot.Sample, e.snapshot.Centres, restored > 0)
	snap.Time = e.snapshot.Time
	e.snapshot = snap
	e.logger.Info("restored division lines", zap.Int("restored", restored), zap.Int("offered", len(lines)))
	return restored
}

// Frames returns the number of valid frames stepped so far.
func (e *Engine) Frames() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.frame
}
