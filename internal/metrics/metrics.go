// Package metrics exposes limiter activity as Prometheus metrics.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"safegym/internal/limiter"
)

// LimiterMetrics counts limiter decisions. It implements limiter.Observer.
type LimiterMetrics struct {
	steps         *prometheus.CounterVec
	interventions *prometheus.CounterVec
	inversions    *prometheus.CounterVec
	debugSteps    *prometheus.CounterVec
	forwardBound  *prometheus.HistogramVec

	registry *prometheus.Registry
}

var _ limiter.Observer = (*LimiterMetrics)(nil)

// NewLimiterMetrics creates the collectors on a private registry.
func NewLimiterMetrics() *LimiterMetrics {
	registry := prometheus.NewRegistry()

	m := &LimiterMetrics{
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "safegym_limiter_steps_total",
				Help: "Total number of actions rescaled by the limiter",
			},
			[]string{"env"},
		),

		interventions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "safegym_limiter_interventions_total",
				Help: "Steps where the envelope was narrower than the action domain",
			},
			[]string{"env"},
		),

		inversions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "safegym_limiter_inversions_total",
				Help: "Steps where the forward lower bound exceeded the upper bound",
			},
			[]string{"env"},
		),

		debugSteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "safegym_limiter_debug_steps_total",
				Help: "Steps where the task debug action replaced the caller action",
			},
			[]string{"env"},
		),

		forwardBound: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "safegym_limiter_forward_bound",
				Help:    "Upper bound of the forward command per step",
				Buckets: prometheus.LinearBuckets(-1, 0.25, 9),
			},
			[]string{"env"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.steps,
		m.interventions,
		m.inversions,
		m.debugSteps,
		m.forwardBound,
	)

	return m
}

// ObserveStep records one limiter decision
func (m *LimiterMetrics) ObserveStep(_ context.Context, d limiter.Decision) {
	m.steps.WithLabelValues(d.Env).Inc()
	if d.Envelope.Restricted() {
		m.interventions.WithLabelValues(d.Env).Inc()
	}
	if d.Envelope.Inverted() {
		m.inversions.WithLabelValues(d.Env).Inc()
	}
	if d.Debug {
		m.debugSteps.WithLabelValues(d.Env).Inc()
	}
	m.forwardBound.WithLabelValues(d.Env).Observe(d.Envelope.Max[0])
}

// Registry returns the registry holding the limiter collectors
func (m *LimiterMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile dumps the registry in the Prometheus text format, suitable
// for the node exporter textfile collector.
func (m *LimiterMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
