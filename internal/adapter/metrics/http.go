package metrics

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// unmeteredRoutes are left out of the HTTP series: the scrape endpoint itself, and /ws,
// whose handler lives as long as the socket and is covered by WebSocketMetrics.
var unmeteredRoutes = map[string]bool{
	"/metrics": true,
	"/ws":      true,
}

// HTTPMetrics tracks the short-lived routes: probes and /version.
type HTTPMetrics struct {
	Duration *prometheus.HistogramVec
	Requests *prometheus.CounterVec
	InFlight prometheus.Gauge
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of probe and version requests, by route and status.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 2, 5},
		}, []string{"route", "code"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Probe and version requests served, by route and status.",
		}, []string{"route", "code"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Metered requests currently being served.",
		}),
	}

	reg.MustRegister(m.Duration, m.Requests, m.InFlight)
	return m
}

// Middleware observes every route except unmeteredRoutes. It must run outside the
// error-rendering middleware so the recorded status is the one sent.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if unmeteredRoutes[route] {
				return next(c)
			}
			if route == "" {
				route = "unmatched"
			}

			m.InFlight.Inc()
			timer := prometheus.NewTimer(prometheus.ObserverFunc(func(seconds float64) {
				code := strconv.Itoa(c.Response().Status)
				m.Duration.WithLabelValues(route, code).Observe(seconds)
				m.Requests.WithLabelValues(route, code).Inc()
			}))

			err := next(c)
			timer.ObserveDuration()
			m.InFlight.Dec()
			return err
		}
	}
}
