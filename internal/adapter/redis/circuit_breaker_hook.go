package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/vitalpulse/internal/adapter/metrics"
	"github.com/pscheid92/vitalpulse/internal/platform/retry"
)

const (
	breakerFailureRate      = 0.6
	breakerMinExecutions    = 5
	breakerWindow           = 10 * time.Second
	breakerDelay            = 30 * time.Second
	breakerSuccessThreshold = 1
)

// circuitBreakerHook fails Redis calls fast while Redis is unhealthy, so history writes
// stop queueing behind dead connections.
type circuitBreakerHook struct {
	cb circuitbreaker.CircuitBreaker[any]
}

var _ goredis.Hook = (*circuitBreakerHook)(nil)

func newCircuitBreakerHook(m *metrics.StoreMetrics) *circuitBreakerHook {
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(breakerFailureRate, breakerMinExecutions, breakerWindow).
		WithDelay(breakerDelay).
		WithSuccessThreshold(breakerSuccessThreshold).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", storeName,
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			if m != nil {
				m.CircuitState.WithLabelValues(storeName).Set(stateToFloat(e.NewState))
			}
		}).
		Build()

	return &circuitBreakerHook{cb: cb}
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

func (h *circuitBreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !h.cb.TryAcquirePermit() {
			return nil, fmt.Errorf("redis dial refused: %w", circuitbreaker.ErrOpen)
		}
		conn, err := next(ctx, network, addr)
		h.record(err)
		return conn, err
	}
}

func (h *circuitBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return fmt.Errorf("redis %s refused: %w", cmd.Name(), circuitbreaker.ErrOpen)
		}
		err := next(ctx, cmd)
		h.record(ignoreNil(err))
		return err
	}
}

func (h *circuitBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return fmt.Errorf("redis pipeline refused: %w", circuitbreaker.ErrOpen)
		}
		err := next(ctx, cmds)
		h.record(ignoreNil(err))
		return err
	}
}

func (h *circuitBreakerHook) record(err error) {
	if err != nil {
		h.cb.RecordError(err)
		return
	}
	h.cb.RecordSuccess()
}

// Classify stops retrying while the breaker is open.
func Classify(err error) retry.Action {
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return retry.Stop
	}
	return retry.ClassifyDefault(err)
}
