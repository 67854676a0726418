package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns the metrics registry of the application
type Manager struct {
	registry   *prometheus.Registry
	prometheus *PrometheusMetrics
	startTime  time.Time
}

// NewManager creates a new metrics manager with its own registry
func NewManager() *Manager {
	reg := prometheus.NewRegistry()
	registerRuntimeCollectors(reg)
	return &Manager{
		registry:   reg,
		prometheus: NewPrometheusMetrics(reg),
		startTime:  time.Now(),
	}
}

// GetPrometheusMetrics returns the Prometheus metrics instance
func (m *Manager) GetPrometheusMetrics() *PrometheusMetrics {
	return m.prometheus
}

// Registry exposes the underlying registry, mostly for tests
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// UpdateSystemMetrics refreshes gauges that are computed on scrape
func (m *Manager) UpdateSystemMetrics() {
	m.prometheus.UpdateApplicationUptime(m.startTime)
}
