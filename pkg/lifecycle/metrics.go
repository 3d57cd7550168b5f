package lifecycle

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the lifecycle collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	activeRuns  prometheus.Gauge
	pollErrors  prometheus.Counter
	stageLength *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. Collectors
// already registered by an earlier call are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "experiments",
			Subsystem: "lifecycle",
			Name:      "runs_total",
			Help:      "Finished instance runs by final status",
		}, []string{"status"}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "experiments",
			Subsystem: "lifecycle",
			Name:      "active_runs",
			Help:      "Instance runs currently executing",
		}),
		pollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "experiments",
			Subsystem: "lifecycle",
			Name:      "poll_errors_total",
			Help:      "Failed execution status or event fetches",
		}),
		stageLength: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "experiments",
			Subsystem: "lifecycle",
			Name:      "stage_duration_seconds",
			Help:      "Time spent polling one workflow stage",
			Buckets:   []float64{10, 30, 60, 300, 900, 1800, 3600, 4 * 3600, 12 * 3600},
		}, []string{"workflow", "status"}),
	}

	if reg == nil {
		return m
	}

	m.runs = register(reg, m.runs)
	m.activeRuns = register(reg, m.activeRuns)
	m.pollErrors = register(reg, m.pollErrors)
	m.stageLength = register(reg, m.stageLength)

	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}

	return c
}

func (m *Metrics) runStarted() {
	if m != nil {
		m.activeRuns.Inc()
	}
}

func (m *Metrics) runFinished(status string) {
	if m != nil {
		m.activeRuns.Dec()
		m.runs.WithLabelValues(status).Inc()
	}
}

// runAbandoned counts a run that ended without this process running it.
func (m *Metrics) runAbandoned() {
	if m != nil {
		m.runs.WithLabelValues("abandoned").Inc()
	}
}

func (m *Metrics) pollFailed() {
	if m != nil {
		m.pollErrors.Inc()
	}
}

func (m *Metrics) stageFinished(workflow, status string, seconds float64) {
	if m != nil {
		m.stageLength.WithLabelValues(workflow, status).Observe(seconds)
	}
}
