package stresstest

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports run progress to Prometheus on a private registry.
// A nil *Metrics records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	iterationsTotal *prometheus.CounterVec
	hookErrorsTotal *prometheus.CounterVec
	requestDuration prometheus.Histogram
	activeWorkers   prometheus.Gauge
}

// NewMetrics creates and registers the run metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		iterationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loadhook_iterations_total",
			Help: "Finished iterations by outcome",
		}, []string{"outcome"}),
		hookErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loadhook_hook_errors_total",
			Help: "Hook failures by hook name",
		}, []string{"phase"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "loadhook_request_duration_seconds",
			Help:    "Network phase duration of iterations that received a response",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loadhook_active_workers",
			Help: "Workers currently inside the network phase",
		}),
	}

	m.registry.MustRegister(m.iterationsTotal, m.hookErrorsTotal, m.requestDuration, m.activeWorkers)
	return m
}

// Registry returns the registry holding the run metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeIteration(outcome Outcome, phase string, duration time.Duration, gotResponse bool) {
	if m == nil {
		return
	}
	m.iterationsTotal.WithLabelValues(string(outcome)).Inc()
	if phase != "" {
		m.hookErrorsTotal.WithLabelValues(phase).Inc()
	}
	if gotResponse {
		m.requestDuration.Observe(duration.Seconds())
	}
}

func (m *Metrics) observeHookError(phase string) {
	if m == nil {
		return
	}
	m.hookErrorsTotal.WithLabelValues(phase).Inc()
}

func (m *Metrics) requestStarted() {
	if m != nil {
		m.activeWorkers.Inc()
	}
}

func (m *Metrics) requestFinished() {
	if m != nil {
		m.activeWorkers.Dec()
	}
}
