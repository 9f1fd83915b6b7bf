package prediction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/go-resty/resty/v2"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/vitalpulse/internal/adapter/metrics"
	"github.com/pscheid92/vitalpulse/internal/domain"
	"github.com/pscheid92/vitalpulse/internal/platform/version"
)

const (
	defaultTimeout          = 5 * time.Second
	defaultFailureThreshold = 5
	defaultBreakerDelay     = 30 * time.Second
)

// Client is the HTTP prediction gateway. The resty transport is shared; each Client
// returned by ForConnection carries its own circuit breaker, so one connection's
// failures never short-circuit another's calls.
type Client struct {
	http    *resty.Client
	url     string
	cb      circuitbreaker.CircuitBreaker[any]
	clock   clockwork.Clock
	metrics *metrics.GatewayMetrics

	failureThreshold uint
	breakerDelay     time.Duration
}

var _ domain.Gateway = (*Client)(nil)

type settings struct {
	timeout          time.Duration
	failureThreshold uint
	breakerDelay     time.Duration
	clock            clockwork.Clock
	metrics          *metrics.GatewayMetrics
}

type Option func(*settings)

// WithTimeout bounds one round trip, connection setup included.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithBreaker opens the circuit after failureThreshold consecutive failures and
// probes again after delay.
func WithBreaker(failureThreshold uint, delay time.Duration) Option {
	return func(s *settings) {
		s.failureThreshold = failureThreshold
		s.breakerDelay = delay
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(s *settings) { s.clock = clock }
}

func WithMetrics(m *metrics.GatewayMetrics) Option {
	return func(s *settings) { s.metrics = m }
}

// NewClient creates a gateway posting to url (e.g. http://127.0.0.1:5000/predict_heart).
func NewClient(url string, opts ...Option) *Client {
	s := settings{
		timeout:          defaultTimeout,
		failureThreshold: defaultFailureThreshold,
		breakerDelay:     defaultBreakerDelay,
		clock:            clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&s)
	}

	httpClient := resty.New().
		SetTimeout(s.timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", version.UserAgent())

	c := &Client{
		http:             httpClient,
		url:              url,
		clock:            s.clock,
		metrics:          s.metrics,
		failureThreshold: s.failureThreshold,
		breakerDelay:     s.breakerDelay,
	}
	c.cb = c.newBreaker()
	return c
}

// ForConnection returns a client sharing the transport with c but with a fresh breaker.
func (c *Client) ForConnection() *Client {
	clone := *c
	clone.cb = c.newBreaker()
	return &clone
}

func (c *Client) newBreaker() circuitbreaker.CircuitBreaker[any] {
	return circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(c.failureThreshold).
		WithDelay(c.breakerDelay).
		WithSuccessThreshold(1).
		OnOpen(func(circuitbreaker.StateChangedEvent) {
			slog.Warn("Prediction gateway circuit opened for connection", "delay", c.breakerDelay)
			if c.metrics != nil {
				c.metrics.CircuitOpens.Inc()
			}
		}).
		OnClose(func(circuitbreaker.StateChangedEvent) {
			slog.Info("Prediction gateway circuit closed for connection")
		}).
		Build()
}

// Predict posts the reading and returns the gateway's response body.
func (c *Client) Predict(ctx context.Context, reading domain.VitalReading) (domain.PredictionResult, error) {
	if !c.cb.TryAcquirePermit() {
		c.observe("circuit_open", 0)
		return nil, fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, circuitbreaker.ErrOpen)
	}

	start := c.clock.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(domain.NewPredictionRequest(reading)).
		Post(c.url)
	elapsed := c.clock.Since(start)

	if err != nil {
		c.cb.RecordError(err)
		c.observe("transport_error", elapsed)
		return nil, fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, err)
	}

	if !resp.IsSuccess() {
		statusErr := fmt.Errorf("unexpected status %d", resp.StatusCode())
		c.cb.RecordError(statusErr)
		c.observe("remote_error", elapsed)
		return nil, fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, statusErr)
	}

	c.cb.RecordSuccess()
	c.observe("ok", elapsed)
	return decodeResult(resp.Body()), nil
}

// decodeResult never fails: a body that is not a JSON object is wrapped under "raw".
func decodeResult(body []byte) domain.PredictionResult {
	var result domain.PredictionResult
	if err := json.Unmarshal(body, &result); err != nil || result == nil {
		return domain.PredictionResult{"raw": string(body)}
	}
	return result
}

func (c *Client) observe(outcome string, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.Requests.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		c.metrics.RequestDuration.Observe(elapsed.Seconds())
	}
}
