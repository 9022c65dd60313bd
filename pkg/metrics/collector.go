// Package metrics exposes lookup, cache and HTTP metrics to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pario-ai/dexcache/pkg/models"
)

// StatsFunc reports the current cache counters.
type StatsFunc func() (models.CacheStats, error)

// Collector owns a private registry so several instances can coexist in tests.
type Collector struct {
	registry *prometheus.Registry

	lookupsTotal   *prometheus.CounterVec
	lookupDuration *prometheus.HistogramVec
	fallbacksTotal *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// NewCollector registers the lookup and HTTP metrics under namespace.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		lookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lookups_total",
				Help:      "Total number of species lookups by outcome",
			},
			[]string{"outcome", "dialect", "error_kind"},
		),
		lookupDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lookup_duration_seconds",
				Help:      "Species lookup duration in seconds",
				Buckets:   []float64{0.0005, 0.005, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"outcome"},
		),
		fallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dialect_fallbacks_total",
				Help:      "Lookups served with the original description after a failed rewrite",
			},
			[]string{"dialect"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// ObserveLookup records a lookup event.
func (c *Collector) ObserveLookup(_ context.Context, ev models.LookupEvent) {
	c.lookupsTotal.WithLabelValues(ev.Outcome, string(ev.Dialect), string(ev.ErrorKind)).Inc()
	c.lookupDuration.WithLabelValues(ev.Outcome).Observe(ev.Duration.Seconds())
	if ev.Fallback {
		c.fallbacksTotal.WithLabelValues(string(ev.Dialect)).Inc()
	}
}

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RegisterCache exports the cache's size and counters, read from stats on every scrape.
// A failed read reports zero.
func (c *Collector) RegisterCache(namespace string, stats StatsFunc) {
	factory := promauto.With(c.registry)
	read := func(pick func(models.CacheStats) int64) func() float64 {
		return func() float64 {
			s, err := stats()
			if err != nil {
				return 0
			}
			return float64(pick(s))
		}
	}
	gauge := func(name, help string, pick func(models.CacheStats) int64) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		}, read(pick))
	}
	counter := func(name, help string, pick func(models.CacheStats) int64) {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		}, read(pick))
	}
	gauge("entries", "Entries currently cached", func(s models.CacheStats) int64 { return s.Entries })
	gauge("capacity", "Maximum number of cached entries", func(s models.CacheStats) int64 { return s.Capacity })
	counter("hits_total", "Cache hits since start", func(s models.CacheStats) int64 { return s.Hits })
	counter("misses_total", "Cache misses since start", func(s models.CacheStats) int64 { return s.Misses })
	counter("evictions_total", "Entries evicted for capacity since start", func(s models.CacheStats) int64 { return s.Evictions })
	counter("expirations_total", "Entries dropped for age since start", func(s models.CacheStats) int64 { return s.Expirations })
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
