package invoice

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records pipeline runs. A nil *Metrics records nothing.
type Metrics struct {
	runs          *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
}

// NewMetrics creates pipeline metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "invoice_scan",
			Name:      "runs_total",
			Help:      "Pipeline runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "invoice_scan",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
	}
	reg.MustRegister(m.runs, m.stageDuration)
	return m
}

func (m *Metrics) observeStage(stage Stage, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage.String()).Observe(d.Seconds())
}

func (m *Metrics) runFinished(mode Mode, err error) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(mode.String(), outcome(err)).Inc()
}

func outcome(err error) string {
	if err == nil {
		return "complete"
	}
	stage, ok := StageOf(err)
	switch {
	case !ok:
		return "failed"
	case stage == StageIdle:
		return "invalid"
	}
	return stage.String() + "_failed"
}
