package gradeingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricNamespace = "classportal_gradeingest"

const resultLabel = "result"

const (
	resultLabelAcceptedVal  = "accepted"
	resultLabelInvalidVal   = "invalid"
	resultLabelNotStoredVal = "not_stored"
)

type metricCollector struct {
	requests *prometheus.CounterVec
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		requests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "requests_total",
				Help:      "count of received grading results by result",
			},
			[]string{resultLabel},
		),
	}
}

func (m *metricCollector) RequestProcessed(result string) {
	m.requests.WithLabelValues(result).Inc()
}
