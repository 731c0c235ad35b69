// Package metrics exposes loader activity as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Load outcomes reported by LoadFinished.
const (
	OutcomeFetched    = "fetched"
	OutcomeCached     = "cached"
	OutcomeFallback   = "fallback"
	OutcomeFailed     = "failed"
	// OutcomeSuperseded marks a load retired by an invalidation before injection.
	OutcomeSuperseded = "superseded"
)

// Collector holds all Prometheus metrics for one loader
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// Fetch metrics
	Attempts        *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec

	// Load metrics
	Loads        *prometheus.CounterVec
	LoadDuration *prometheus.HistogramVec
	InFlight     prometheus.Gauge

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

// NewCollector creates a collector registered on its own registry, so
// several loaders in one process never collide.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		Attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_attempts_total",
				Help:      "Total number of fetch attempts",
			},
			[]string{"result"},
		),
		AttemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_attempt_duration_seconds",
				Help:      "Fetch attempt duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		Loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loads_total",
				Help:      "Total number of loads by outcome",
			},
			[]string{"resource", "outcome"},
		),
		LoadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "load_duration_seconds",
				Help:      "Load duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight",
				Help:      "Number of loads currently in flight",
			},
		),
		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
		),
		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
		),
	}

	registry.MustRegister(
		c.Attempts,
		c.AttemptDuration,
		c.Loads,
		c.LoadDuration,
		c.InFlight,
		c.CacheHits,
		c.CacheMisses,
	)
	return c
}

// Registry returns the registry holding the collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveAttempt records one fetch attempt.
func (c *Collector) ObserveAttempt(d time.Duration, err error) {
	r := result(err)
	c.Attempts.WithLabelValues(r).Inc()
	c.AttemptDuration.WithLabelValues(r).Observe(d.Seconds())
}

// LoadFinished records a completed load.
func (c *Collector) LoadFinished(resource, outcome string, d time.Duration) {
	c.Loads.WithLabelValues(resource, outcome).Inc()
	c.LoadDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// CacheLookup records a cache hit or miss.
func (c *Collector) CacheLookup(hit bool) {
	if hit {
		c.CacheHits.Inc()
		return
	}
	c.CacheMisses.Inc()
}

// SetInFlight records the number of loads in flight.
func (c *Collector) SetInFlight(n int) {
	c.InFlight.Set(float64(n))
}
