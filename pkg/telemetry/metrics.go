package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the orchestrator.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   prometheus.Histogram

	// Extension metrics
	extensionsExecuted *prometheus.CounterVec
	extensionDuration  *prometheus.HistogramVec
	cleanupFailures    *prometheus.CounterVec

	// Resource model metrics
	resourcesCreated *prometheus.CounterVec
	valuesExported   *prometheus.CounterVec

	// State store metrics
	referenceResolutions *prometheus.CounterVec

	// Error metrics
	errorsBySeverity *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of pipeline runs started",
			},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of pipeline runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of pipeline runs",
				Buckets:   buckets,
			},
		),
		extensionsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extensions_executed_total",
				Help:      "Total number of extension executions by outcome",
			},
			[]string{"extension", "status"},
		),
		extensionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "extension_duration_seconds",
				Help:      "Duration of extension execution",
				Buckets:   buckets,
			},
			[]string{"extension"},
		),
		cleanupFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cleanup_failures_total",
				Help:      "Total number of extension cleanup failures",
			},
			[]string{"extension"},
		),
		resourcesCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resources_created_total",
				Help:      "Total number of resource nodes created",
			},
			[]string{"extension"},
		),
		valuesExported: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "values_exported_total",
				Help:      "Total number of stack output values exported",
			},
			[]string{"extension"},
		),
		referenceResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reference_resolutions_total",
				Help:      "Total number of reference token resolutions by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		errorsBySeverity: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of handled errors by severity and category",
			},
			[]string{"severity", "category"},
		),
	}

	collectors := []prometheus.Collector{
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.extensionsExecuted,
		m.extensionDuration,
		m.cleanupFailures,
		m.resourcesCreated,
		m.valuesExported,
		m.referenceResolutions,
		m.errorsBySeverity,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return m, nil
}

// Enabled reports whether metrics collection is active.
func (m *Metrics) Enabled() bool {
	return m != nil && m.config.Enabled
}

// RunStarted records the start of a pipeline run.
func (m *Metrics) RunStarted() {
	if !m.Enabled() {
		return
	}
	m.runsStarted.Inc()
}

// RunCompleted records the completion of a pipeline run.
func (m *Metrics) RunCompleted(status string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.Observe(duration.Seconds())
}

// ExtensionExecuted records one extension execution with its outcome.
func (m *Metrics) ExtensionExecuted(extension, status string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.extensionsExecuted.WithLabelValues(extension, status).Inc()
	m.extensionDuration.WithLabelValues(extension).Observe(duration.Seconds())
}

// CleanupFailed records a failed extension cleanup.
func (m *Metrics) CleanupFailed(extension string) {
	if !m.Enabled() {
		return
	}
	m.cleanupFailures.WithLabelValues(extension).Inc()
}

// ResourceCreated records the creation of a resource node.
func (m *Metrics) ResourceCreated(extension string) {
	if !m.Enabled() {
		return
	}
	m.resourcesCreated.WithLabelValues(extension).Inc()
}

// ValueExported records an exported stack output value.
func (m *Metrics) ValueExported(extension string) {
	if !m.Enabled() {
		return
	}
	m.valuesExported.WithLabelValues(extension).Inc()
}

// ReferenceResolved records a reference token resolution.
// Kind is "secret" or "group"; outcome is "resolved" or "missing".
func (m *Metrics) ReferenceResolved(kind, outcome string) {
	if !m.Enabled() {
		return
	}
	m.referenceResolutions.WithLabelValues(kind, outcome).Inc()
}

// ErrorHandled records a handled error by severity and category.
func (m *Metrics) ErrorHandled(severity, category string) {
	if !m.Enabled() {
		return
	}
	m.errorsBySeverity.WithLabelValues(severity, category).Inc()
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartMetricsServer starts the metrics HTTP server in a background goroutine.
func (m *Metrics) StartMetricsServer() error {
	if !m.Enabled() {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	go func() {
		// Serve until process exit; the metrics endpoint has no graceful
		// shutdown requirement.
		_ = http.ListenAndServe(m.config.ListenAddress, mux)
	}()

	return nil
}
