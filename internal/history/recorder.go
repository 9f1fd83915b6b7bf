// Package history wraps a prediction history backend with retries and metrics.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/vitalpulse/internal/adapter/metrics"
	"github.com/pscheid92/vitalpulse/internal/domain"
	"github.com/pscheid92/vitalpulse/internal/platform/retry"
)

const (
	defaultMaxAttempts      = 3
	defaultInitialBackoff   = 200 * time.Millisecond
	defaultMaxBackoff       = 2 * time.Second
	defaultRateLimitBackoff = 5 * time.Second
)

// Recorder retries a backend according to classify and counts outcomes per backend.
type Recorder struct {
	backend  string
	next     domain.HistoryRecorder
	policy   retry.Policy
	classify retry.Classify
	metrics  *metrics.HistoryMetrics
}

var _ domain.HistoryRecorder = (*Recorder)(nil)

type Option func(*Recorder)

func WithPolicy(p retry.Policy) Option {
	return func(r *Recorder) { r.policy = p }
}

func WithClassifier(c retry.Classify) Option {
	return func(r *Recorder) { r.classify = c }
}

func WithMetrics(m *metrics.HistoryMetrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

func WithClock(clock clockwork.Clock) Option {
	return func(r *Recorder) { r.policy.Clock = clock }
}

func NewRecorder(backend string, next domain.HistoryRecorder, opts ...Option) *Recorder {
	r := &Recorder{
		backend: backend,
		next:    next,
		policy: retry.Policy{
			MaxAttempts:      defaultMaxAttempts,
			InitialBackoff:   defaultInitialBackoff,
			MaxBackoff:       defaultMaxBackoff,
			RateLimitBackoff: defaultRateLimitBackoff,
		},
		classify: retry.ClassifyDefault,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Debug("Retrying history write",
			"backend", r.backend, "attempt", attempt, "backoff", backoff, "error", err)
	}
	return r
}

func (r *Recorder) Record(ctx context.Context, rec domain.PredictionRecord) error {
	err := retry.DoVoid(ctx, r.policy, r.classify, func(ctx context.Context) error {
		return r.next.Record(ctx, rec)
	})
	if err != nil {
		r.count("error")
		return fmt.Errorf("record prediction to %s: %w", r.backend, err)
	}
	r.count("ok")
	return nil
}

func (r *Recorder) count(outcome string) {
	if r.metrics != nil {
		r.metrics.Records.WithLabelValues(r.backend, outcome).Inc()
	}
}
