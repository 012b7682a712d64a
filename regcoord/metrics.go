/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package regcoord

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector collects metrics about registration attempts.
type MetricsCollector interface {
	// IncAttempts increments the number of finished attempts of the unit with the given outcome.
	IncAttempts(unitID string, outcome Outcome)

	// ObserveAttemptDuration observes how long the unit's action took.
	ObserveAttemptDuration(unitID string, d time.Duration)

	// SetState sets the current state of the coordinator.
	SetState(state State)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// DurationBuckets is a list of buckets for the attempt duration histogram.
	DurationBuckets []float64

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// DefaultAttemptDurationBuckets is default buckets for the attempt duration histogram.
var DefaultAttemptDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// PrometheusMetrics represents Prometheus metrics of the coordinator.
type PrometheusMetrics struct {
	AttemptsTotal   *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec
	State           *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	buckets := opts.DurationBuckets
	if buckets == nil {
		buckets = DefaultAttemptDurationBuckets
	}
	return &PrometheusMetrics{
		AttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   opts.Namespace,
				Name:        "registration_attempts_total",
				Help:        "Number of finished registration attempts by unit and outcome.",
				ConstLabels: opts.ConstLabels,
			},
			[]string{"unit", "outcome"},
		),
		AttemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   opts.Namespace,
				Name:        "registration_attempt_duration_seconds",
				Help:        "Duration of registration actions.",
				Buckets:     buckets,
				ConstLabels: opts.ConstLabels,
			},
			[]string{"unit"},
		),
		State: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   opts.Namespace,
				Name:        "registration_coordinator_state",
				Help:        "Current state of the registration coordinator (1 for the active state).",
				ConstLabels: opts.ConstLabels,
			},
			[]string{"state"},
		),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	pm.MustRegisterIn(prometheus.DefaultRegisterer)
}

// MustRegisterIn registers metrics in the given registerer and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegisterIn(reg prometheus.Registerer) {
	reg.MustRegister(pm.AttemptsTotal, pm.AttemptDuration, pm.State)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.AttemptsTotal)
	prometheus.Unregister(pm.AttemptDuration)
	prometheus.Unregister(pm.State)
}

// IncAttempts implements MetricsCollector.
func (pm *PrometheusMetrics) IncAttempts(unitID string, outcome Outcome) {
	pm.AttemptsTotal.WithLabelValues(unitID, string(outcome)).Inc()
}

// ObserveAttemptDuration implements MetricsCollector.
func (pm *PrometheusMetrics) ObserveAttemptDuration(unitID string, d time.Duration) {
	pm.AttemptDuration.WithLabelValues(unitID).Observe(d.Seconds())
}

// SetState implements MetricsCollector.
func (pm *PrometheusMetrics) SetState(state State) {
	for _, s := range allStates {
		v := 0.0
		if s == state {
			v = 1
		}
		pm.State.WithLabelValues(string(s)).Set(v)
	}
}

type disabledMetrics struct{}

func (disabledMetrics) IncAttempts(string, Outcome)                   {}
func (disabledMetrics) ObserveAttemptDuration(string, time.Duration) {}
func (disabledMetrics) SetState(State)                                {}

var disabledMetricsCollector MetricsCollector = disabledMetrics{}
