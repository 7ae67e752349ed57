package retry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricNamespace = "classportal_retryer"

type metricCollector struct {
	retries prometheus.Counter
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		retries: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "retries_total",
				Help:      "count of scheduled retries of failed remote operations",
			},
		),
	}
}

func (m *metricCollector) RetriesInc() {
	m.retries.Inc()
}
