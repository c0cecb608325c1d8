// Package metrics exposes the Session Manager's Prometheus surface
// (SPEC_FULL.md §4.7's addition): counters and gauges incremented at the
// same state transitions spec.md §4.7 already mandates. Nothing here gates
// behavior; it is read-only observability.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the runtime's metric collectors behind a constructor so
// tests can create an isolated prometheus.Registry instead of touching the
// global default one.
type Registry struct {
	SessionsActive *prometheus.GaugeVec
	ToolCallsTotal *prometheus.CounterVec
	IterationsTotal prometheus.Counter

	reg *prometheus.Registry
}

// New registers the runtime's collectors on a fresh prometheus.Registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		SessionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agent_sessions_active",
			Help: "Number of sessions currently tracked by the Session Manager.",
		}, []string{"state"}),
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_tool_calls_total",
			Help: "Total tool dispatches, labeled by tool name and success.",
		}, []string{"tool", "success"}),
		IterationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agent_iterations_total",
			Help: "Total Agent Loop iterations across every session.",
		}),
		reg: reg,
	}

	reg.MustRegister(m.SessionsActive, m.ToolCallsTotal, m.IterationsTotal)
	return m
}

// Gatherer exposes the underlying registry for an HTTP /metrics handler.
func (m *Registry) Gatherer() prometheus.Gatherer { return m.reg }
