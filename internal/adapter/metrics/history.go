package metrics

import "github.com/prometheus/client_golang/prometheus"

// HistoryMetrics holds Prometheus metrics for prediction history recording.
type HistoryMetrics struct {
	Records *prometheus.CounterVec
}

// NewHistoryMetrics creates and registers history metrics on the given registry.
func NewHistoryMetrics(reg prometheus.Registerer) *HistoryMetrics {
	m := &HistoryMetrics{
		Records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "records_total",
			Help:      "Total number of prediction history writes, by backend and outcome.",
		}, []string{"backend", "outcome"}),
	}

	reg.MustRegister(m.Records)
	return m
}
