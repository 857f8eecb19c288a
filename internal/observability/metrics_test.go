package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordSession("ok")
		m.IncActiveSessions("connect")
		m.DecActiveSessions("connect")
		m.RecordStage("planner", "ok", time.Second)
		m.RecordModelCall("coder", "gpt", true)
		m.RecordExecution(false)
		m.RecordRepair(true)
		m.RecordCeilingHit("planner")
		m.RecordMalformedTurn("planner")
		m.RecordTransportError("line", "eof")
	})
}

func TestRecordersUpdateCollectors(t *testing.T) {
	m := NewMetrics()

	m.RecordSession("")
	m.RecordExecution(false)
	m.RecordExecution(true)
	m.RecordExecution(true)
	m.RecordCeilingHit("coder")
	m.IncActiveSessions("connect")

	require.Equal(t, float64(1), testutil.ToFloat64(m.Sessions.WithLabelValues("unknown")))
	require.Equal(t, float64(2), testutil.ToFloat64(m.Executions.WithLabelValues("success")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.Executions.WithLabelValues("failure")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.CeilingHits.WithLabelValues("coder")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.ActiveSessions.WithLabelValues("connect")))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
