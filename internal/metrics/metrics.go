// Package metrics exposes Prometheus instrumentation for the gateway.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector registers and records all gateway metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	detectionsTotal *prometheus.CounterVec
	actionsTotal    *prometheus.CounterVec
	auditDropped    prometheus.Counter
}

// NewCollector creates a collector under the given namespace. If registry is
// nil a fresh one is used, keeping gateway metrics off the global registry.
func NewCollector(namespace string, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total chat requests processed, by terminal status",
			},
			[]string{"status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "End-to-end chat request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status"},
		),

		detectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "detections_total",
				Help:      "Detection verdicts, by method and category",
			},
			[]string{"method", "category"},
		),

		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Enforcement actions taken, by action",
			},
			[]string{"action"},
		),

		auditDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_entries_dropped_total",
				Help:      "Audit entries dropped because the queue was full",
			},
		),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.detectionsTotal,
		c.actionsTotal,
		c.auditDropped,
	)

	return c
}

// RecordRequest counts one finished request and its duration.
func (c *Collector) RecordRequest(status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(status).Inc()
	c.requestDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// RecordDetection counts one detection verdict.
func (c *Collector) RecordDetection(method, category string) {
	if c == nil {
		return
	}
	c.detectionsTotal.WithLabelValues(method, category).Inc()
}

// RecordAction counts one enforcement action.
func (c *Collector) RecordAction(action string) {
	if c == nil {
		return
	}
	c.actionsTotal.WithLabelValues(action).Inc()
}

// RecordAuditDrop counts one dropped audit entry.
func (c *Collector) RecordAuditDrop() {
	if c == nil {
		return
	}
	c.auditDropped.Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
