package provision

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricNamespace = "classportal_provision"

const (
	resultLabel = "result"
	stepLabel   = "step"
)

const resultLabelSuccessVal = "success"

type metricCollector struct {
	runs           *prometheus.CounterVec
	stepDuration   *prometheus.HistogramVec
	lockContention prometheus.Counter
	grades         *prometheus.CounterVec
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		runs: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "runs_total",
				Help:      "count of provisioning requests by result",
			},
			[]string{resultLabel},
		),
		stepDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Name:      "step_duration_seconds",
				Help:      "duration of provisioning pipeline steps",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{stepLabel},
		),
		lockContention: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "lock_contention_total",
				Help:      "count of provisioning requests that failed because another request for the team was in progress",
			},
		),
		grades: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "grades_total",
				Help:      "count of processed grades by result",
			},
			[]string{resultLabel},
		),
	}
}

func (m *metricCollector) RunFinished(result string) {
	m.runs.WithLabelValues(result).Inc()
}

func (m *metricCollector) StepDuration(step string, d time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (m *metricCollector) LockContentionInc() {
	m.lockContention.Inc()
}

func (m *metricCollector) GradeProcessed(result string) {
	m.grades.WithLabelValues(result).Inc()
}
