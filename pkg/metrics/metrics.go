// Package metrics exposes Prometheus collectors for local anomaly scoring.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Build sources.
const (
	SourceResource = "resource"
	SourceCache    = "cache"
)

// Collector groups the scoring metrics. A nil *Collector records nothing.
type Collector struct {
	scores       *prometheus.CounterVec
	scoreValues  prometheus.Histogram
	scoreErrors  prometheus.Counter
	cacheLookups *prometheus.CounterVec
	buildSeconds *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		scores: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "anomaly", Name: "scores_total", Help: "Total number of scored records by outcome."},
			[]string{"anomalous"},
		),
		scoreValues: prometheus.NewHistogram(
			prometheus.HistogramOpts{Namespace: "anomaly", Name: "score", Help: "Distribution of anomaly scores.", Buckets: prometheus.LinearBuckets(0.1, 0.1, 10)},
		),
		scoreErrors: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: "anomaly", Name: "score_errors_total", Help: "Total number of records that could not be scored."},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "anomaly", Name: "cache_lookups_total", Help: "Scorer cache lookups by result."},
			[]string{"result"},
		),
		buildSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: "anomaly", Name: "scorer_build_seconds", Help: "Time spent reconstructing scorers by source.", Buckets: prometheus.DefBuckets},
			[]string{"source"},
		),
	}
	for _, col := range []prometheus.Collector{c.scores, c.scoreValues, c.scoreErrors, c.cacheLookups, c.buildSeconds} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveScore records a computed score.
func (c *Collector) ObserveScore(value float64, anomalous bool) {
	if c == nil {
		return
	}
	label := "false"
	if anomalous {
		label = "true"
	}
	c.scores.WithLabelValues(label).Inc()
	c.scoreValues.Observe(value)
}

// ScoreFailed records a record that could not be scored.
func (c *Collector) ScoreFailed() {
	if c == nil {
		return
	}
	c.scoreErrors.Inc()
}

// CacheLookup records the result of a cache lookup.
func (c *Collector) CacheLookup(result string) {
	if c == nil {
		return
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveBuild records how long reconstructing a scorer from source took.
func (c *Collector) ObserveBuild(source string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.buildSeconds.WithLabelValues(source).Observe(elapsed.Seconds())
}
