package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes besides the clone methods.
const (
	outcomeInvalidInput   = "invalid_input"
	outcomeFetchFailed    = "fetch_failed"
	outcomeCancelled      = "cancelled"
	outcomeBudgetExceeded = "budget_exceeded"
	outcomeFailed         = "failed"
)

// Fallback reasons.
const (
	fallbackModel  = "model"
	fallbackBudget = "budget"
)

type metrics struct {
	requests  *prometheus.CounterVec
	stages    *prometheus.HistogramVec
	fallbacks *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pageclone",
			Name:      "requests_total",
			Help:      "Clone requests by outcome (clone method or failure kind).",
		}, []string{"outcome"}),
		stages: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pageclone",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pageclone",
			Name:      "reconstruction_fallbacks_total",
			Help:      "Clones that kept normalized content for at least one field.",
		}, []string{"reason"}),
	}
}

func (m *metrics) observeStage(stage State, d time.Duration) {
	m.stages.WithLabelValues(string(stage)).Observe(d.Seconds())
}
