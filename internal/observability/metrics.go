package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the orchestration daemon.
type Metrics struct {
	registry       *prometheus.Registry
	Sessions       *prometheus.CounterVec
	ActiveSessions *prometheus.GaugeVec
	StageDuration  *prometheus.HistogramVec
	ModelCalls     *prometheus.CounterVec
	Executions     *prometheus.CounterVec
	RepairAttempts *prometheus.CounterVec
	CeilingHits    *prometheus.CounterVec
	MalformedTurns *prometheus.CounterVec
	TransportErrs  *prometheus.CounterVec
}

// NewMetrics constructs a metrics registry with pipeline collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "polybrain_sessions_total",
		Help: "Finished sessions by outcome",
	}, []string{"outcome"})

	active := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "polybrain_active_sessions",
		Help: "Sessions currently running by transport",
	}, []string{"transport"})

	stageDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polybrain_stage_duration_seconds",
		Help:    "Pipeline stage duration in seconds",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage", "outcome"})

	modelCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "polybrain_model_calls_total",
		Help: "Model calls by stage, model and outcome",
	}, []string{"stage", "model", "outcome"})

	execs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "polybrain_script_executions_total",
		Help: "Generated script executions by outcome",
	}, []string{"outcome"})

	repairs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "polybrain_repair_attempts_total",
		Help: "Repair prompts issued after failed executions",
	}, []string{"outcome"})

	ceilings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "polybrain_iteration_ceiling_hits_total",
		Help: "Loops that stopped at their iteration ceiling",
	}, []string{"stage"})

	malformed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "polybrain_malformed_model_turns_total",
		Help: "Model replies that failed to parse as a tool invocation",
	}, []string{"stage"})

	trErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "polybrain_transport_errors_total",
		Help: "Transport-level errors by transport and reason",
	}, []string{"transport", "reason"})

	reg.MustRegister(sessions, active, stageDur, modelCalls, execs, repairs, ceilings, malformed, trErrors)

	return &Metrics{
		registry:       reg,
		Sessions:       sessions,
		ActiveSessions: active,
		StageDuration:  stageDur,
		ModelCalls:     modelCalls,
		Executions:     execs,
		RepairAttempts: repairs,
		CeilingHits:    ceilings,
		MalformedTurns: malformed,
		TransportErrs:  trErrors,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// RecordSession counts a finished session.
func (m *Metrics) RecordSession(outcome string) {
	if m == nil {
		return
	}
	m.Sessions.WithLabelValues(orUnknown(outcome)).Inc()
}

// IncActiveSessions increments the active session gauge.
func (m *Metrics) IncActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSessions.WithLabelValues(orUnknown(transport)).Inc()
}

// DecActiveSessions decrements the active session gauge.
func (m *Metrics) DecActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSessions.WithLabelValues(orUnknown(transport)).Dec()
}

// RecordStage observes how long a pipeline stage ran.
func (m *Metrics) RecordStage(stage, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(orUnknown(stage), orUnknown(outcome)).Observe(duration.Seconds())
}

// RecordModelCall counts one gateway call.
func (m *Metrics) RecordModelCall(stage, model string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.ModelCalls.WithLabelValues(orUnknown(stage), orUnknown(model), outcome).Inc()
}

// RecordExecution counts one script run.
func (m *Metrics) RecordExecution(ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.Executions.WithLabelValues(outcome).Inc()
}

// RecordRepair counts one repair prompt and whether the resulting run succeeded.
func (m *Metrics) RecordRepair(ok bool) {
	if m == nil {
		return
	}
	outcome := "fixed"
	if !ok {
		outcome = "still_failing"
	}
	m.RepairAttempts.WithLabelValues(outcome).Inc()
}

// RecordCeilingHit counts a loop that ran out of iterations.
func (m *Metrics) RecordCeilingHit(stage string) {
	if m == nil {
		return
	}
	m.CeilingHits.WithLabelValues(orUnknown(stage)).Inc()
}

// RecordMalformedTurn counts a reply the invocation parser rejected.
func (m *Metrics) RecordMalformedTurn(stage string) {
	if m == nil {
		return
	}
	m.MalformedTurns.WithLabelValues(orUnknown(stage)).Inc()
}

// RecordTransportError records a transport-level error.
func (m *Metrics) RecordTransportError(transport, reason string) {
	if m == nil {
		return
	}
	m.TransportErrs.WithLabelValues(orUnknown(transport), orUnknown(reason)).Inc()
}
