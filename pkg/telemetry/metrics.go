package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the optimization pipeline.
type Metrics struct {
	config MetricsConfig

	// Execution metrics
	executionsStarted   *prometheus.CounterVec
	executionsCompleted *prometheus.CounterVec
	executionDuration   *prometheus.HistogramVec

	// Savings metrics
	savingsRealized prometheus.Counter

	// Workflow metrics
	workflowTransitions *prometheus.CounterVec
	workflowsActive     prometheus.Gauge

	// Resilience metrics
	retryAttempts    *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
	rateLimitWaits   *prometheus.CounterVec

	// Rollback metrics
	rollbacksExecuted *prometheus.CounterVec

	// Error metrics
	errorsByCategory *prometheus.CounterVec
	errorsByCode     *prometheus.CounterVec

	// Scheduler metrics
	scheduledQueueDepth prometheus.Gauge

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

		executionsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_started_total",
				Help:      "Total number of optimization executions started",
			},
			[]string{"operation"},
		),
		executionsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_completed_total",
				Help:      "Total number of optimization executions finalized",
			},
			[]string{"status"},
		),
		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Duration of optimization executions in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		savingsRealized: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "savings_realized_dollars_total",
				Help:      "Total realized monthly savings in dollars",
			},
		),

		workflowTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_transitions_total",
				Help:      "Total number of approval workflow state transitions",
			},
			[]string{"state"},
		),
		workflowsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workflows_active",
				Help:      "Current number of pending approval workflows",
			},
		),

		retryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Total number of retry attempts by operation and error category",
			},
			[]string{"operation", "category"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state per target (0=closed, 1=half_open, 2=open)",
			},
			[]string{"target"},
		),
		rateLimitWaits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_waits_total",
				Help:      "Total number of calls that blocked on the rate limiter",
			},
			[]string{"target"},
		),

		rollbacksExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollbacks_executed_total",
				Help:      "Total number of rollback plan replays by outcome",
			},
			[]string{"outcome"},
		),

		errorsByCategory: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_category_total",
				Help:      "Total number of classified errors by category",
			},
			[]string{"category"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by provider code",
			},
			[]string{"code"},
		),

		scheduledQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "scheduled_queue_depth",
				Help:      "Current number of scheduled optimizations awaiting execution",
			},
		),
	}

	registry.MustRegister(
		m.executionsStarted,
		m.executionsCompleted,
		m.executionDuration,
		m.savingsRealized,
		m.workflowTransitions,
		m.workflowsActive,
		m.retryAttempts,
		m.breakerState,
		m.rateLimitWaits,
		m.rollbacksExecuted,
		m.errorsByCategory,
		m.errorsByCode,
		m.scheduledQueueDepth,
	)

	return m, nil
}

// RecordExecutionStarted increments the counter for started executions.
func (m *Metrics) RecordExecutionStarted(operation string) {
	if m.executionsStarted == nil {
		return
	}
	m.executionsStarted.WithLabelValues(operation).Inc()
}

// RecordExecutionCompleted records a finalized execution with its status
// and duration.
func (m *Metrics) RecordExecutionCompleted(status string, duration time.Duration) {
	if m.executionsCompleted == nil {
		return
	}
	m.executionsCompleted.WithLabelValues(status).Inc()
	m.executionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordSavings adds realized monthly savings.
func (m *Metrics) RecordSavings(dollars float64) {
	if m.savingsRealized == nil || dollars <= 0 {
		return
	}
	m.savingsRealized.Add(dollars)
}

// RecordWorkflowTransition records an approval workflow state transition.
func (m *Metrics) RecordWorkflowTransition(state string) {
	if m.workflowTransitions == nil {
		return
	}
	m.workflowTransitions.WithLabelValues(state).Inc()
}

// SetActiveWorkflows sets the current number of pending workflows.
func (m *Metrics) SetActiveWorkflows(count float64) {
	if m.workflowsActive == nil {
		return
	}
	m.workflowsActive.Set(count)
}

// RecordRetry records one retry attempt.
func (m *Metrics) RecordRetry(operation, category string) {
	if m.retryAttempts == nil {
		return
	}
	m.retryAttempts.WithLabelValues(operation, category).Inc()
}

// SetBreakerState records the circuit breaker state for a target.
func (m *Metrics) SetBreakerState(target string, state string) {
	if m.breakerState == nil {
		return
	}
	var v float64
	switch state {
	case "half_open":
		v = 1
	case "open":
		v = 2
	}
	m.breakerState.WithLabelValues(target).Set(v)
}

// RecordRateLimitWait records a call that blocked on the limiter.
func (m *Metrics) RecordRateLimitWait(target string) {
	if m.rateLimitWaits == nil {
		return
	}
	m.rateLimitWaits.WithLabelValues(target).Inc()
}

// RecordRollback records a rollback replay by outcome.
func (m *Metrics) RecordRollback(outcome string) {
	if m.rollbacksExecuted == nil {
		return
	}
	m.rollbacksExecuted.WithLabelValues(outcome).Inc()
}

// RecordError records an error by category and optionally by provider code.
func (m *Metrics) RecordError(category, code string) {
	if m.errorsByCategory == nil {
		return
	}
	m.errorsByCategory.WithLabelValues(category).Inc()
	if code != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(code).Inc()
	}
}

// SetScheduledQueueDepth sets the current scheduled-queue depth.
func (m *Metrics) SetScheduledQueueDepth(count float64) {
	if m.scheduledQueueDepth == nil {
		return
	}
	m.scheduledQueueDepth.Set(count)
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
