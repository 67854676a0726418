package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "valmon"

// PrometheusMetrics contains all Prometheus metrics for the validator monitor
type PrometheusMetrics struct {
	// Poll loop metrics
	TicksTotal        *prometheus.CounterVec
	TicksSkippedTotal prometheus.Counter
	TickDuration      prometheus.Histogram
	LastTickTimestamp prometheus.Gauge

	// Chain fetch metrics
	FetchErrorsTotal   *prometheus.CounterVec
	ValidatorsPolled   *prometheus.CounterVec
	ConsecutiveFailure *prometheus.GaugeVec

	// Alert metrics
	AlertsTotal        *prometheus.CounterVec
	AlertsDroppedTotal prometheus.Counter

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec

	// Notification metrics
	NotificationsSentTotal    *prometheus.CounterVec
	NotificationFailuresTotal *prometheus.CounterVec
	NotificationDuration      *prometheus.HistogramVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime   prometheus.Gauge
	ComponentHealth     *prometheus.GaugeVec
	ActiveRegistrations prometheus.Gauge
	MonitoredValidators prometheus.Gauge
	CommandInvocations  *prometheus.CounterVec
}

// NewPrometheusMetrics creates all metrics and registers them with reg
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	f := promauto.With(reg)
	return &PrometheusMetrics{
		TicksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticks_total",
				Help:      "Poll ticks executed by outcome",
			},
			[]string{"status"},
		),
		TicksSkippedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticks_skipped_total",
				Help:      "Ticks skipped because the previous tick was still running",
			},
		),
		TickDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tick_duration_seconds",
				Help:      "Time spent in a poll tick",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		LastTickTimestamp: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_tick_timestamp_seconds",
				Help:      "Unix time the last tick finished",
			},
		),
		FetchErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_errors_total",
				Help:      "Chain fetch errors by chain, entity and kind",
			},
			[]string{"chain", "entity", "kind"},
		),
		ValidatorsPolled: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validators_polled_total",
				Help:      "Successful validator fetches by chain",
			},
			[]string{"chain"},
		),
		ConsecutiveFailure: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "consecutive_failures",
				Help:      "Current consecutive failure count of chain level polls",
			},
			[]string{"chain", "entity"},
		),
		AlertsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_total",
				Help:      "Alerts emitted by kind and severity",
			},
			[]string{"kind", "severity"},
		),
		AlertsDroppedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_dropped_total",
				Help:      "Alerts dropped because the notification queue was full",
			},
		),
		DatabaseOperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "database_operations_total",
				Help:      "Database operations by operation, table and status",
			},
			[]string{"operation", "table", "status"},
		),
		DatabaseOperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "database_operation_duration_seconds",
				Help:      "Database operation latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),
		NotificationsSentTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_sent_total",
				Help:      "Notifications delivered by sender and alert kind",
			},
			[]string{"sender", "kind"},
		),
		NotificationFailuresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notification_failures_total",
				Help:      "Notification delivery failures by sender and alert kind",
			},
			[]string{"sender", "kind"},
		),
		NotificationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "notification_duration_seconds",
				Help:      "Notification delivery latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"sender"},
		),
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP API requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP API latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		ApplicationUptime: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "uptime_seconds",
				Help:      "Seconds since the process started",
			},
		),
		ComponentHealth: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "component_health",
				Help:      "1 when a component is healthy",
			},
			[]string{"component"},
		),
		ActiveRegistrations: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "registrations",
				Help:      "Stored registrations",
			},
		),
		MonitoredValidators: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "monitored_validators",
				Help:      "Distinct validators polled in the last tick",
			},
		),
		CommandInvocations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "command_invocations_total",
				Help:      "Chat commands handled by command and status",
			},
			[]string{"command", "status"},
		),
	}
}

// RecordTick records a finished tick
func (m *PrometheusMetrics) RecordTick(status string, duration time.Duration) {
	m.TicksTotal.WithLabelValues(status).Inc()
	m.TickDuration.Observe(duration.Seconds())
	m.LastTickTimestamp.SetToCurrentTime()
}

// RecordTickSkipped records a tick that overlapped a running one
func (m *PrometheusMetrics) RecordTickSkipped() {
	m.TicksSkippedTotal.Inc()
}

// RecordFetchError records a failed chain fetch
func (m *PrometheusMetrics) RecordFetchError(chain, entity, kind string) {
	m.FetchErrorsTotal.WithLabelValues(chain, entity, kind).Inc()
}

// RecordValidatorPolled records a successful validator fetch
func (m *PrometheusMetrics) RecordValidatorPolled(chain string) {
	m.ValidatorsPolled.WithLabelValues(chain).Inc()
}

// SetConsecutiveFailures exposes a chain level failure counter
func (m *PrometheusMetrics) SetConsecutiveFailures(chain, entity string, count int) {
	m.ConsecutiveFailure.WithLabelValues(chain, entity).Set(float64(count))
}

// RecordAlert records an emitted alert
func (m *PrometheusMetrics) RecordAlert(kind, severity string) {
	m.AlertsTotal.WithLabelValues(kind, severity).Inc()
}

// RecordAlertDropped records an alert the dispatcher could not queue
func (m *PrometheusMetrics) RecordAlertDropped() {
	m.AlertsDroppedTotal.Inc()
}

// RecordDatabaseOperation records a database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordNotificationSent records a sent notification
func (m *PrometheusMetrics) RecordNotificationSent(sender, kind string, duration time.Duration) {
	m.NotificationsSentTotal.WithLabelValues(sender, kind).Inc()
	m.NotificationDuration.WithLabelValues(sender).Observe(duration.Seconds())
}

// RecordNotificationFailure records a failed notification
func (m *PrometheusMetrics) RecordNotificationFailure(sender, kind string) {
	m.NotificationFailuresTotal.WithLabelValues(sender, kind).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCommand records a handled chat command
func (m *PrometheusMetrics) RecordCommand(command, status string) {
	m.CommandInvocations.WithLabelValues(command, status).Inc()
}

// UpdateApplicationUptime updates the application uptime metric
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates the health status of a component
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateRegistrations sets the registration gauge
func (m *PrometheusMetrics) UpdateRegistrations(count int64) {
	m.ActiveRegistrations.Set(float64(count))
}

// UpdateMonitoredValidators sets the monitored validator gauge
func (m *PrometheusMetrics) UpdateMonitoredValidators(count int) {
	m.MonitoredValidators.Set(float64(count))
}

func registerRuntimeCollectors(reg prometheus.Registerer) {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}
