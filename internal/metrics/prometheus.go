// Package metrics exposes holdover's Prometheus collectors.
package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all holdover metrics.
type Registry struct {
	reg *prometheus.Registry

	// Override metrics
	Transitions    *prometheus.CounterVec
	OverrideActive prometheus.Gauge
	Sweeps         *prometheus.CounterVec
	ExpiresAt      prometheus.Gauge

	// Event bus
	EventsPublished prometheus.GaugeFunc
	EventsDropped   prometheus.GaugeFunc

	// System metrics
	Uptime       prometheus.Gauge
	ConfigReload *prometheus.CounterVec
	APIRequests  *prometheus.CounterVec
	APILatency   *prometheus.HistogramVec
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = NewRegistry()
	})
	return registry
}

// NewRegistry creates a registry with its own Prometheus registerer, so tests
// can build as many as they like.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)
	r := &Registry{reg: reg}

	r.Transitions = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "holdover_transitions_total",
		Help: "Override transitions by operation and outcome",
	}, []string{"op", "outcome"})

	r.OverrideActive = factory.NewGauge(prometheus.GaugeOpts{
		Name: "holdover_override_active",
		Help: "1 while the policy override is applied",
	})

	r.Sweeps = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "holdover_sweeps_total",
		Help: "TTL sweeps by result",
	}, []string{"result"})

	r.ExpiresAt = factory.NewGauge(prometheus.GaugeOpts{
		Name: "holdover_override_expires_timestamp_seconds",
		Help: "Unix timestamp at which the active override expires, 0 when none",
	})

	r.Uptime = factory.NewGauge(prometheus.GaugeOpts{
		Name: "holdover_uptime_seconds",
		Help: "Daemon uptime in seconds",
	})

	r.ConfigReload = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "holdover_config_reloads_total",
		Help: "Total configuration reloads",
	}, []string{"status"})

	r.APIRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "holdover_api_requests_total",
		Help: "Total API requests",
	}, []string{"endpoint", "code"})

	r.APILatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "holdover_api_request_duration_seconds",
		Help:    "API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	return r
}

// RegisterEventStats exports the event hub's publish and drop counts.
func (r *Registry) RegisterEventStats(stats func() (published, dropped uint64)) {
	factory := promauto.With(r.reg)
	r.EventsPublished = factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "holdover_events_published",
		Help: "Events published on the internal bus",
	}, func() float64 { p, _ := stats(); return float64(p) })
	r.EventsDropped = factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "holdover_events_dropped",
		Help: "Events dropped because a subscriber was slow",
	}, func() float64 { _, d := stats(); return float64(d) })
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// RecordTransition counts one controller outcome.
func (r *Registry) RecordTransition(op, outcome string) {
	r.Transitions.WithLabelValues(op, outcome).Inc()
}

// SetOverrideActive updates the active gauge and expiry timestamp.
func (r *Registry) SetOverrideActive(active bool, expiresAt int64) {
	if active {
		r.OverrideActive.Set(1)
		r.ExpiresAt.Set(float64(expiresAt))
		return
	}
	r.OverrideActive.Set(0)
	r.ExpiresAt.Set(0)
}

// RecordSweep counts one TTL sweep.
func (r *Registry) RecordSweep(result string) {
	r.Sweeps.WithLabelValues(result).Inc()
}

// RecordConfigReload counts a config reload attempt.
func (r *Registry) RecordConfigReload(err error) {
	if err != nil {
		r.ConfigReload.WithLabelValues("failure").Inc()
		return
	}
	r.ConfigReload.WithLabelValues("success").Inc()
}

// RecordAPIRequest records an API request.
func (r *Registry) RecordAPIRequest(endpoint string, status int, duration float64) {
	r.APIRequests.WithLabelValues(endpoint, statusString(status)).Inc()
	r.APILatency.WithLabelValues(endpoint).Observe(duration)
}

// statusString converts an HTTP status code to string.
func statusString(status int) string {
	return fmt.Sprintf("%d", status)
}
