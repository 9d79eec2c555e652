package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Payment metrics
	IntentsCreatedTotal     *prometheus.CounterVec
	RateLimitedTotal        prometheus.Counter
	WebhookDeliveriesTotal  *prometheus.CounterVec
	TransitionsTotal        *prometheus.CounterVec
	IllegalTransitionsTotal *prometheus.CounterVec

	// Reconciliation metrics
	RecoveryCheckedTotal        *prometheus.CounterVec
	RecoveryRecoveredTotal      *prometheus.CounterVec
	RecoveryStillPendingTotal   *prometheus.CounterVec
	RecoveryProviderErrorsTotal *prometheus.CounterVec
	CleanupAbandonedTotal       *prometheus.CounterVec
	CleanupSkippedTotal         prometheus.Counter
	SweepDuration               *prometheus.HistogramVec
	SweepsSkippedTotal          *prometheus.CounterVec
	ProviderCircuitState        *prometheus.GaugeVec
}

// New creates a new Metrics instance registered on the default registry.
func New(namespace string) *Metrics {
	return NewWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a new Metrics instance registered on reg.
func NewWithRegisterer(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "payrecon"
	}
	f := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		IntentsCreatedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payment",
				Name:      "intents_created_total",
				Help:      "Total number of payment intents created",
			},
			[]string{"provider"},
		),
		RateLimitedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payment",
				Name:      "rate_limited_total",
				Help:      "Total number of payment attempts denied by the rate limit",
			},
		),
		WebhookDeliveriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "deliveries_total",
				Help:      "Total number of webhook deliveries by outcome",
			},
			[]string{"provider", "outcome"},
		),
		TransitionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payment",
				Name:      "transitions_total",
				Help:      "Total number of applied status transitions",
			},
			[]string{"provider", "status", "source"},
		),
		IllegalTransitionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payment",
				Name:      "illegal_transitions_total",
				Help:      "Total number of rejected writes on terminal intents",
			},
			[]string{"provider", "source"},
		),

		RecoveryCheckedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "recovery",
				Name:      "checked_total",
				Help:      "Total number of stale intents checked against the provider",
			},
			[]string{"provider"},
		),
		RecoveryRecoveredTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "recovery",
				Name:      "recovered_total",
				Help:      "Total number of intents completed by recovery",
			},
			[]string{"provider"},
		),
		RecoveryStillPendingTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "recovery",
				Name:      "still_pending_total",
				Help:      "Total number of checked intents still pending at the provider",
			},
			[]string{"provider"},
		),
		RecoveryProviderErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "recovery",
				Name:      "provider_errors_total",
				Help:      "Total number of failed provider status lookups",
			},
			[]string{"provider"},
		),
		CleanupAbandonedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cleanup",
				Name:      "abandoned_total",
				Help:      "Total number of intents marked abandoned",
			},
			[]string{"reason"},
		),
		CleanupSkippedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cleanup",
				Name:      "skipped_total",
				Help:      "Total number of intents that moved on before cleanup could abandon them",
			},
		),
		SweepDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "sweep_duration_seconds",
				Help:      "Duration of scheduler sweeps in seconds",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"sweep"},
		),
		SweepsSkippedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "sweeps_skipped_total",
				Help:      "Total number of sweeps skipped because another instance held the lock",
			},
			[]string{"sweep"},
		),
		ProviderCircuitState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "circuit_state",
				Help:      "Provider circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"provider"},
		),
	}
}

// --- Convenience methods ---

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	statusStr := statusCodeToString(status)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordIntentCreated records a new payment intent.
func (m *Metrics) RecordIntentCreated(provider string) {
	if m == nil {
		return
	}
	m.IntentsCreatedTotal.WithLabelValues(provider).Inc()
}

// RecordRateLimited records a denied payment attempt.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

// RecordWebhook records the outcome of one webhook delivery.
func (m *Metrics) RecordWebhook(provider, outcome string) {
	if m == nil {
		return
	}
	m.WebhookDeliveriesTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordTransition records an applied status transition.
func (m *Metrics) RecordTransition(provider, status, source string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(provider, status, source).Inc()
}

// RecordIllegalTransition records a rejected write on a terminal intent.
func (m *Metrics) RecordIllegalTransition(provider, source string) {
	if m == nil {
		return
	}
	m.IllegalTransitionsTotal.WithLabelValues(provider, source).Inc()
}

// RecordRecoveryChecked records a recovery status lookup.
func (m *Metrics) RecordRecoveryChecked(provider string) {
	if m == nil {
		return
	}
	m.RecoveryCheckedTotal.WithLabelValues(provider).Inc()
}

// RecordRecoveryRecovered records an intent completed by recovery.
func (m *Metrics) RecordRecoveryRecovered(provider string) {
	if m == nil {
		return
	}
	m.RecoveryRecoveredTotal.WithLabelValues(provider).Inc()
}

// RecordRecoveryStillPending records an intent still pending at the provider.
func (m *Metrics) RecordRecoveryStillPending(provider string) {
	if m == nil {
		return
	}
	m.RecoveryStillPendingTotal.WithLabelValues(provider).Inc()
}

// RecordRecoveryProviderError records a failed provider lookup.
func (m *Metrics) RecordRecoveryProviderError(provider string) {
	if m == nil {
		return
	}
	m.RecoveryProviderErrorsTotal.WithLabelValues(provider).Inc()
}

// RecordAbandoned records an intent retired by cleanup.
func (m *Metrics) RecordAbandoned(reason string) {
	if m == nil {
		return
	}
	m.CleanupAbandonedTotal.WithLabelValues(reason).Inc()
}

// RecordCleanupSkipped records an intent cleanup lost the race for.
func (m *Metrics) RecordCleanupSkipped() {
	if m == nil {
		return
	}
	m.CleanupSkippedTotal.Inc()
}

// RecordSweep records the duration of a scheduler sweep.
func (m *Metrics) RecordSweep(sweep string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SweepDuration.WithLabelValues(sweep).Observe(duration.Seconds())
}

// RecordSweepSkipped records a sweep skipped because the lock was held.
func (m *Metrics) RecordSweepSkipped(sweep string) {
	if m == nil {
		return
	}
	m.SweepsSkippedTotal.WithLabelValues(sweep).Inc()
}

// SetCircuitState sets the breaker state of a provider.
func (m *Metrics) SetCircuitState(provider string, state int) {
	if m == nil {
		return
	}
	m.ProviderCircuitState.WithLabelValues(provider).Set(float64(state))
}

// statusCodeToString converts an HTTP status code to a string category.
func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
