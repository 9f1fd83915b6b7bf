package metrics

import "github.com/prometheus/client_golang/prometheus"

// GatewayMetrics holds Prometheus metrics for the prediction gateway client.
type GatewayMetrics struct {
	RequestDuration prometheus.Histogram
	Requests        *prometheus.CounterVec
	CircuitOpens    prometheus.Counter
}

// NewGatewayMetrics creates and registers gateway metrics on the given registry.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	m := &GatewayMetrics{
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Duration of prediction requests in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Total number of prediction requests, by outcome.",
		}, []string{"outcome"}),
		CircuitOpens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "circuit_opens_total",
			Help:      "Times a connection's gateway circuit breaker opened.",
		}),
	}

	reg.MustRegister(m.RequestDuration, m.Requests, m.CircuitOpens)
	return m
}
