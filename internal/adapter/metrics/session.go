package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prediction outcomes recorded per tick.
const (
	PredictionEmitted   = "emitted"
	PredictionSkipped   = "skipped"
	PredictionDiscarded = "discarded"
)

// SessionMetrics holds Prometheus metrics for connection sessions.
type SessionMetrics struct {
	ActiveSessions      prometheus.Gauge
	TicksTotal          prometheus.Counter
	GeneratorFallbacks  prometheus.Counter
	Predictions         *prometheus.CounterVec
	InFlightPredictions prometheus.Gauge
}

// NewSessionMetrics creates and registers session metrics on the given registry.
func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	m := &SessionMetrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of sessions currently streaming.",
		}),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "ticks_total",
			Help:      "Total number of ticks across all sessions.",
		}),
		GeneratorFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "generator_fallbacks_total",
			Help:      "Total number of readings replaced by the mid-range fallback.",
		}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "predictions_total",
			Help:      "Total number of prediction calls, by outcome (emitted, skipped, discarded).",
		}, []string{"outcome"}),
		InFlightPredictions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "in_flight_predictions",
			Help:      "Number of prediction calls awaiting a gateway response.",
		}),
	}

	reg.MustRegister(m.ActiveSessions, m.TicksTotal, m.GeneratorFallbacks, m.Predictions, m.InFlightPredictions)
	return m
}
