// Package metrics provides Prometheus instrumentation for the portal core:
// outbound API request counts and latencies, unified-request submission
// outcomes, and prescription guard blocks.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the portal's collectors on a dedicated registry so tests
// and embedders never collide with the default global registry.
type Metrics struct {
	registry *prometheus.Registry

	apiRequestsTotal   *prometheus.CounterVec
	apiRequestDuration *prometheus.HistogramVec
	submissionsTotal   *prometheus.CounterVec
	guardBlocksTotal   *prometheus.CounterVec
}

// New creates a Metrics instance with all collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		apiRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "careportal_api_requests_total",
				Help: "Total number of outbound API requests",
			},
			[]string{"method", "path", "status"},
		),
		apiRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "careportal_api_request_seconds",
				Help:    "Duration of outbound API requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		submissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "careportal_submissions_total",
				Help: "Unified request submissions grouped by outcome",
			},
			[]string{"outcome"},
		),
		guardBlocksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "careportal_guard_blocks_total",
				Help: "Prescription guard blocks grouped by blocking status",
			},
			[]string{"status"},
		),
	}

	m.registry.MustRegister(
		m.apiRequestsTotal,
		m.apiRequestDuration,
		m.submissionsTotal,
		m.guardBlocksTotal,
	)
	return m
}

// ObserveAPIRequest records one outbound API call.
func (m *Metrics) ObserveAPIRequest(method, path string, status int, duration time.Duration) {
	m.apiRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.apiRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveSubmission records the outcome of one unified request submission.
func (m *Metrics) ObserveSubmission(outcome string) {
	m.submissionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveGuardBlock records a prescription guard block by blocking status.
func (m *Metrics) ObserveGuardBlock(status string) {
	m.guardBlocksTotal.WithLabelValues(status).Inc()
}

// Handler returns an http.Handler serving the Prometheus text exposition for
// this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gather exposes the underlying registry's gather function for tests.
func (m *Metrics) Gather() ([]*MetricFamily, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}
	out := make([]*MetricFamily, 0, len(families))
	for _, f := range families {
		mf := &MetricFamily{Name: f.GetName()}
		for _, metric := range f.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				mf.Total += c.GetValue()
			}
		}
		out = append(out, mf)
	}
	return out, nil
}

// MetricFamily is a reduced view of a gathered metric family used in tests.
type MetricFamily struct {
	Name  string
	Total float64
}
