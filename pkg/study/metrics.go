package study

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bft-labs/studyctl/pkg/expiration"
	"github.com/bft-labs/studyctl/pkg/lifecycle"
)

var allStates = []lifecycle.State{
	lifecycle.StateUnloaded,
	lifecycle.StateInstalled,
	lifecycle.StateAwaitingUI,
	lifecycle.StateRunning,
	lifecycle.StateIneligible,
	lifecycle.StateExpired,
	lifecycle.StateShuttingDown,
}

type metrics struct {
	transitions      *prometheus.CounterVec
	state            *prometheus.GaugeVec
	studyEnds        *prometheus.CounterVec
	startupFailures  *prometheus.CounterVec
	shutdownFailures *prometheus.CounterVec
	entryPoints      *prometheus.CounterVec
	deadline         prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	m := &metrics{
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "studyctl_lifecycle_transitions_total",
			Help: "Lifecycle state transitions.",
		}, []string{"from", "to"}),
		state: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "studyctl_state",
			Help: "1 for the controller's current lifecycle state, 0 otherwise.",
		}, []string{"state"}),
		studyEnds: f.NewCounterVec(prometheus.CounterOpts{
			Name: "studyctl_study_ended_total",
			Help: "Studies ended by the startup gate, by reason.",
		}, []string{"reason"}),
		startupFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "studyctl_service_startup_failures_total",
			Help: "Startup failures, by step.",
		}, []string{"step"}),
		shutdownFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "studyctl_shutdown_step_failures_total",
			Help: "Failed shutdown steps, by step.",
		}, []string{"step"}),
		entryPoints: f.NewCounterVec(prometheus.CounterOpts{
			Name: "studyctl_entrypoint_calls_total",
			Help: "Host entry point invocations, by entry point and reason.",
		}, []string{"entrypoint", "reason"}),
		deadline: f.NewGauge(prometheus.GaugeOpts{
			Name: "studyctl_expiration_timestamp_ms",
			Help: "Persisted study deadline in epoch milliseconds.",
		}),
	}
	m.setState(lifecycle.StateUnloaded)
	return m
}

func (m *metrics) transition(from, to lifecycle.State) {
	m.transitions.WithLabelValues(from.String(), to.String()).Inc()
	m.setState(to)
}

func (m *metrics) setState(current lifecycle.State) {
	for _, s := range allStates {
		v := 0.0
		if s == current {
			v = 1
		}
		m.state.WithLabelValues(s.String()).Set(v)
	}
}

func (m *metrics) studyEnded(reason string) {
	m.studyEnds.WithLabelValues(reason).Inc()
}

func (m *metrics) startupFailed(step string) {
	m.startupFailures.WithLabelValues(step).Inc()
}

func (m *metrics) shutdownStep(r StepResult) {
	if r.Err != nil {
		m.shutdownFailures.WithLabelValues(r.Name).Inc()
	}
}

func (m *metrics) entryPoint(name string, reason lifecycle.Reason) {
	m.entryPoints.WithLabelValues(name, reason.String()).Inc()
}

func (m *metrics) setDeadline(r expiration.Record) {
	m.deadline.Set(float64(r))
}
