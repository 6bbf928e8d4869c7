// Package metrics exposes Prometheus instrumentation for the proxy pool,
// the fetcher, and the forwarder.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FlickerMi/proxyforge/pkg/config"
)

// Collector registers and records all ProxyForge metrics. A nil *Collector
// is safe to use; every method becomes a no-op, so components can take a
// collector without caring whether metrics are enabled.
type Collector struct {
	registry *prometheus.Registry

	poolProxies        *prometheus.GaugeVec
	fetchedTotal       *prometheus.CounterVec
	sourceRuns         *prometheus.CounterVec
	validationsTotal   *prometheus.CounterVec
	validationDuration prometheus.Histogram
	forwardAttempts    *prometheus.CounterVec
	forwardDuration    prometheus.Histogram
}

// NewCollector creates a metrics collector with the namespace "proxyforge".
// If registry is nil, a fresh registry is used. Returns nil when metrics are
// disabled.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if !cfg.Enabled {
		return nil
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		poolProxies: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "proxyforge",
				Subsystem: "pool",
				Name:      "proxies",
				Help:      "Number of proxies in the pool by validity state",
			},
			[]string{"state"},
		),
		fetchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "proxyforge",
				Subsystem: "fetcher",
				Name:      "proxies_fetched_total",
				Help:      "Candidate proxies returned by listing sources",
			},
			[]string{"source"},
		),
		sourceRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "proxyforge",
				Subsystem: "fetcher",
				Name:      "source_runs_total",
				Help:      "Listing source invocations by outcome",
			},
			[]string{"source", "status"},
		),
		validationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "proxyforge",
				Subsystem: "validator",
				Name:      "probes_total",
				Help:      "Validation probes by result",
			},
			[]string{"result"},
		),
		validationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "proxyforge",
				Subsystem: "validator",
				Name:      "probe_duration_seconds",
				Help:      "Duration of successful validation probes",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
			},
		),
		forwardAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "proxyforge",
				Subsystem: "forwarder",
				Name:      "attempts_total",
				Help:      "Forwarding send attempts by outcome",
			},
			[]string{"outcome"},
		),
		forwardDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "proxyforge",
				Subsystem: "forwarder",
				Name:      "request_duration_seconds",
				Help:      "End-to-end duration of forwarded requests",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
		),
	}

	registry.MustRegister(
		c.poolProxies,
		c.fetchedTotal,
		c.sourceRuns,
		c.validationsTotal,
		c.validationDuration,
		c.forwardAttempts,
		c.forwardDuration,
	)

	return c
}

// Handler returns the HTTP handler serving the registry.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SetPoolSize records the current valid/invalid pool split.
func (c *Collector) SetPoolSize(valid, invalid int) {
	if c == nil {
		return
	}
	c.poolProxies.WithLabelValues("valid").Set(float64(valid))
	c.poolProxies.WithLabelValues("invalid").Set(float64(invalid))
}

// RecordFetch records the outcome of one source invocation and the number
// of candidates it yielded.
func (c *Collector) RecordFetch(source, status string, count int) {
	if c == nil {
		return
	}
	c.sourceRuns.WithLabelValues(source, status).Inc()
	if count > 0 {
		c.fetchedTotal.WithLabelValues(source).Add(float64(count))
	}
}

// RecordValidation records one probe result. Duration is only observed for
// successful probes, mirroring how speed is only updated on success.
func (c *Collector) RecordValidation(valid bool, duration time.Duration) {
	if c == nil {
		return
	}
	if valid {
		c.validationsTotal.WithLabelValues("valid").Inc()
		c.validationDuration.Observe(duration.Seconds())
	} else {
		c.validationsTotal.WithLabelValues("invalid").Inc()
	}
}

// RecordForwardAttempt records one send attempt by outcome ("success" or an
// error kind).
func (c *Collector) RecordForwardAttempt(outcome string) {
	if c == nil {
		return
	}
	c.forwardAttempts.WithLabelValues(outcome).Inc()
}

// RecordForwardDuration records the total duration of a forwarding call.
func (c *Collector) RecordForwardDuration(d time.Duration) {
	if c == nil {
		return
	}
	c.forwardDuration.Observe(d.Seconds())
}
