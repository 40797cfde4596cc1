// Package metrics exposes prometheus counters for authentication outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

type Metrics struct {
	registry       *prometheus.Registry
	AuthOperations *prometheus.CounterVec
	SessionEvents  *prometheus.CounterVec
}

// New creates a private registry with Go/process collectors and the auth
// counters registered on it.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		AuthOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessionauth_auth_operations_total",
				Help: "Total number of auth operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		SessionEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessionauth_session_events_total",
				Help: "Total number of session lifecycle events by type",
			},
			[]string{"event"},
		),
	}

	registry.MustRegister(m.AuthOperations)
	registry.MustRegister(m.SessionEvents)

	return m
}

// ObserveAuth counts one auth operation. Safe on a nil receiver.
func (m *Metrics) ObserveAuth(operation, outcome string) {
	if m == nil {
		return
	}
	m.AuthOperations.WithLabelValues(operation, outcome).Inc()
}

// ObserveSession counts one session event (created, destroyed, expired). Safe on a nil receiver.
func (m *Metrics) ObserveSession(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
