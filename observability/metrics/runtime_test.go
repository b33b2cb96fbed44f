package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRuntimeMetricsObserve(t *testing.T) {
	m := Runtime()
	require.Same(t, m, Runtime())

	before := testutil.ToFloat64(m.PhaseTotal().WithLabelValues("exec", "ok"))
	m.ObservePhase("exec", "", 0)
	require.Equal(t, before+1, testutil.ToFloat64(m.PhaseTotal().WithLabelValues("exec", "ok")))

	rejected := testutil.ToFloat64(m.PhaseTotal().WithLabelValues("exec", "rejected"))
	m.ObservePhase("exec", "rejected", 0)
	require.Equal(t, rejected+1, testutil.ToFloat64(m.PhaseTotal().WithLabelValues("exec", "rejected")))

	unknown := testutil.ToFloat64(m.transactions.WithLabelValues("unknown"))
	m.ObserveTransaction("")
	require.Equal(t, unknown+1, testutil.ToFloat64(m.transactions.WithLabelValues("unknown")))

	circuits := testutil.ToFloat64(m.circuitsRegistered)
	m.ObserveCircuitRegistered()
	require.Equal(t, circuits+1, testutil.ToFloat64(m.circuitsRegistered))
}

func TestNilRuntimeMetricsAreSafe(t *testing.T) {
	var m *RuntimeMetrics
	m.ObservePhase("exec", "", 0)
	m.ObserveTransaction("committed")
	m.ObserveCircuitRegistered()
	require.Nil(t, m.PhaseTotal())
}
