package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNew_CollectorsAreUsable(t *testing.T) {
	m := New()

	m.SessionsActive.WithLabelValues("IDLE").Inc()
	m.ToolCallsTotal.WithLabelValues("bash", "true").Inc()
	m.IterationsTotal.Inc()

	require.Equal(t, float64(1), testutil.ToFloat64(m.SessionsActive.WithLabelValues("IDLE")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("bash", "true")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.IterationsTotal))
}

func TestNew_GathererExposesRegisteredMetrics(t *testing.T) {
	m := New()
	m.IterationsTotal.Inc()

	families, err := m.Gatherer().Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	require.Contains(t, names, "agent_iterations_total")
	require.Contains(t, names, "agent_sessions_active")
	require.Contains(t, names, "agent_tool_calls_total")
}

func TestNew_EachInstanceHasAnIsolatedRegistry(t *testing.T) {
	a := New()
	b := New()
	a.IterationsTotal.Inc()

	require.Equal(t, float64(1), testutil.ToFloat64(a.IterationsTotal))
	require.Equal(t, float64(0), testutil.ToFloat64(b.IterationsTotal))
}
