// Package metrics holds the Prometheus collectors for the division pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all pipeline metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	// Pipeline metrics
	FramesProcessed prometheus.Counter
	FramesSkipped   prometheus.Counter
	DividerChanges  prometheus.Counter
	StepDuration    prometheus.Histogram

	// Structure gauges
	Points      prometheus.Gauge
	Centres     prometheus.Gauge
	FilledLines prometheus.Gauge

	// Population churn
	PointsInserted   prometheus.Counter
	PointsReinforced prometheus.Counter
	PointsPruned     prometheus.Counter

	// Remote analysis
	AnalysisFetches *prometheus.CounterVec
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
}

// New creates a collector with every metric registered under namespace.
func New(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		FramesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_processed_total",
			Help:      "Total number of frames stepped through the pipeline",
		}),
		FramesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_skipped_total",
			Help:      "Total number of frames skipped as invalid",
		}),
		DividerChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "divider_changes_total",
			Help:      "Total number of steps that changed the division structure",
		}),
		StepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Time spent processing one frame",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		Points: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "points",
			Help:      "Number of points in the population",
		}),
		Centres: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "centres",
			Help:      "Number of centres produced by the last clustering",
		}),
		FilledLines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lines_filled",
			Help:      "Number of filled divider slots",
		}),
		PointsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_inserted_total",
			Help:      "Total number of points added to the population",
		}),
		PointsReinforced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_reinforced_total",
			Help:      "Total number of centre matches on existing points",
		}),
		PointsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_pruned_total",
			Help:      "Total number of points removed from the population",
		}),
		AnalysisFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_fetches_total",
			Help:      "Total number of remote track analysis fetches",
		}, []string{"result"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_cache_hits_total",
			Help:      "Total number of analysis cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_cache_misses_total",
			Help:      "Total number of analysis cache misses",
		}),
	}

	registry.MustRegister(
		c.FramesProcessed,
		c.FramesSkipped,
		c.DividerChanges,
		c.StepDuration,
		c.Points,
		c.Centres,
		c.FilledLines,
		c.PointsInserted,
		c.PointsReinforced,
		c.PointsPruned,
		c.AnalysisFetches,
		c.CacheHits,
		c.CacheMisses,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
	)

	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
