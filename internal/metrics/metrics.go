package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Metrics captures reconciliation health signals.
type Metrics struct {
	runs        *prometheus.CounterVec
	rowOutcomes *prometheus.CounterVec
	blocked     prometheus.Counter
	runDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reconcile_runs_total",
			Help: "Reconciliation runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		rowOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reconcile_row_outcomes_total",
			Help: "Per-row materialization outcomes.",
		}, []string{"outcome"}),
		blocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reconcile_stop_guard_blocks_total",
			Help: "Execute runs blocked by the invalid-rate guard.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reconcile_run_duration_seconds",
			Help:    "Run duration by mode.",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),
	}

	for _, c := range []prometheus.Collector{m.runs, m.rowOutcomes, m.blocked, m.runDuration} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ObserveRun(mode, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(mode, outcome).Inc()
	m.runDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *Metrics) AddRowOutcome(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rowOutcomes.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) IncBlocked() {
	if m == nil {
		return
	}
	m.blocked.Inc()
}

var Module = fx.Module("metrics",
	fx.Provide(func() prometheus.Registerer { return prometheus.DefaultRegisterer }),
	fx.Provide(New),
)
