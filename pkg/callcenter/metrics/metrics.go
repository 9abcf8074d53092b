// Package metrics holds the Prometheus collectors shared by the call-center
// components. Every method is safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the call center.
type Metrics struct {
	registry *prometheus.Registry

	CallsTotal       *prometheus.CounterVec
	CallsActive      prometheus.Gauge
	StateTransitions *prometheus.CounterVec

	ToolCallsTotal *prometheus.CounterVec

	PlaybackErrorsTotal *prometheus.CounterVec

	BackendSessionsTotal *prometheus.CounterVec
	BackendTurnDuration  *prometheus.HistogramVec
}

// New creates a Metrics instance with all collectors registered on a private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "callerpro"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calls_total",
				Help:      "Total number of calls by outcome",
			},
			[]string{"outcome"},
		),
		CallsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "calls_active",
				Help:      "Number of calls currently outside the Idle state",
			},
		),
		StateTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "call_state_transitions_total",
				Help:      "Call session state transitions",
			},
			[]string{"from", "to"},
		),
		ToolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Tool invocations by tool and result",
			},
			[]string{"tool", "result"},
		),
		PlaybackErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "playback_errors_total",
				Help:      "Sound layers that failed to play, by kind",
			},
			[]string{"kind"},
		),
		BackendSessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_sessions_total",
				Help:      "Backend session opens by backend type and result",
			},
			[]string{"backend", "result"},
		),
		BackendTurnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_turn_seconds",
				Help:      "Time from relaying an input to the terminal backend event",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"backend"},
		),
	}

	m.registry.MustRegister(
		m.CallsTotal,
		m.CallsActive,
		m.StateTransitions,
		m.ToolCallsTotal,
		m.PlaybackErrorsTotal,
		m.BackendSessionsTotal,
		m.BackendTurnDuration,
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordTransition counts a state change and tracks the active-call gauge.
func (m *Metrics) RecordTransition(from, to string, idle string) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(from, to).Inc()
	switch {
	case from == idle && to != idle:
		m.CallsActive.Inc()
	case from != idle && to == idle:
		m.CallsActive.Dec()
	}
}

// RecordCall counts a finished call.
func (m *Metrics) RecordCall(outcome string) {
	if m == nil {
		return
	}
	m.CallsTotal.WithLabelValues(outcome).Inc()
}

// RecordToolCall counts a dispatched tool call.
func (m *Metrics) RecordToolCall(tool, result string) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, result).Inc()
}

// RecordPlaybackError counts a failed sound layer.
func (m *Metrics) RecordPlaybackError(kind string) {
	if m == nil {
		return
	}
	m.PlaybackErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordBackendSession counts a backend session open attempt.
func (m *Metrics) RecordBackendSession(backend, result string) {
	if m == nil {
		return
	}
	m.BackendSessionsTotal.WithLabelValues(backend, result).Inc()
}

// ObserveTurn records the duration of one backend turn.
func (m *Metrics) ObserveTurn(backend string, d time.Duration) {
	if m == nil {
		return
	}
	m.BackendTurnDuration.WithLabelValues(backend).Observe(d.Seconds())
}
