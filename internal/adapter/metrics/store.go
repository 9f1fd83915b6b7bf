package metrics

import "github.com/prometheus/client_golang/prometheus"

// StoreMetrics holds Prometheus metrics for Redis and Postgres operations.
type StoreMetrics struct {
	Operations   *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	CircuitState *prometheus.GaugeVec
}

// NewStoreMetrics creates and registers storage metrics on the given registry.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of storage operations, by store, operation and status.",
		}, []string{"store", "operation", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Duration of storage operations in seconds.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"store", "operation"}),
		CircuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per store (0=closed, 1=half-open, 2=open).",
		}, []string{"store"}),
	}

	reg.MustRegister(m.Operations, m.Duration, m.CircuitState)
	return m
}

// Observe records one finished operation.
func (m *StoreMetrics) Observe(store, operation string, seconds float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.Operations.WithLabelValues(store, operation, status).Inc()
	m.Duration.WithLabelValues(store, operation).Observe(seconds)
}
