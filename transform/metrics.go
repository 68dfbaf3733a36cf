package transform

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects the activity of pipelines. A nil *Metrics records nothing.
type Metrics struct {
	Executions   *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	Compilations *prometheus.CounterVec
	ChainDepth   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them to reg when it is not
// nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := Metrics{
		Executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "angle",
				Name:      "executions_total",
				Help:      "Pipeline executions by outcome",
			},
			[]string{"status"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "angle",
				Name:      "execution_duration_seconds",
				Help:      "Pipeline execution duration",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
			},
			[]string{"status"},
		),
		Compilations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "angle",
				Name:      "compilations_total",
				Help:      "Transform sheet compilations by outcome",
			},
			[]string{"status"},
		),
		ChainDepth: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "angle",
				Name:      "chain_depth",
				Help:      "Number of filters composed in a streaming pass",
				Buckets:   prometheus.LinearBuckets(0, 1, 8),
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Executions, m.Duration, m.Compilations, m.ChainDepth)
	}
	return &m
}

func (m *Metrics) recordExecution(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := statusOf(err)
	m.Executions.WithLabelValues(status).Inc()
	m.Duration.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (m *Metrics) recordCompilation(err error) {
	if m == nil {
		return
	}
	m.Compilations.WithLabelValues(statusOf(err)).Inc()
}

func (m *Metrics) recordChain(depth int) {
	if m == nil {
		return
	}
	m.ChainDepth.Observe(float64(depth))
}
