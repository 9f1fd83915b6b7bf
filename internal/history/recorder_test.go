package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/vitalpulse/internal/adapter/metrics"
	"github.com/pscheid92/vitalpulse/internal/domain"
	"github.com/pscheid92/vitalpulse/internal/platform/retry"
)

type scriptedBackend struct {
	mu      sync.Mutex
	errs    []error
	records []domain.PredictionRecord
}

func (b *scriptedBackend) Record(_ context.Context, rec domain.PredictionRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, rec)
	if len(b.errs) == 0 {
		return nil
	}
	err := b.errs[0]
	b.errs = b.errs[1:]
	return err
}

func (b *scriptedBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

var testRecord = domain.PredictionRecord{
	Email:      "pat@example.com",
	Seq:        1,
	Prediction: domain.PredictionResult{"risk": "Low Risk"},
}

func newTestRecorder(t *testing.T, backend *scriptedBackend, opts ...Option) (*Recorder, *metrics.HistoryMetrics) {
	t.Helper()
	m := metrics.NewHistoryMetrics(prometheus.NewRegistry())
	opts = append([]Option{
		WithMetrics(m),
		WithPolicy(retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond}),
	}, opts...)
	return NewRecorder("redis", backend, opts...), m
}

func TestRecorder_Success(t *testing.T) {
	backend := &scriptedBackend{}
	rec, m := newTestRecorder(t, backend)

	require.NoError(t, rec.Record(context.Background(), testRecord))

	assert.Equal(t, 1, backend.calls())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Records.WithLabelValues("redis", "ok")))
}

func TestRecorder_RetriesTransientFailures(t *testing.T) {
	backend := &scriptedBackend{errs: []error{errors.New("reset"), errors.New("reset")}}
	rec, m := newTestRecorder(t, backend)

	require.NoError(t, rec.Record(context.Background(), testRecord))

	assert.Equal(t, 3, backend.calls())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Records.WithLabelValues("redis", "ok")))
}

func TestRecorder_GivesUpAfterMaxAttempts(t *testing.T) {
	backend := &scriptedBackend{errs: []error{errors.New("a"), errors.New("b"), errors.New("c"), errors.New("d")}}
	rec, m := newTestRecorder(t, backend)

	err := rec.Record(context.Background(), testRecord)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
	assert.Equal(t, 3, backend.calls())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Records.WithLabelValues("redis", "error")))
}

func TestRecorder_PermanentErrorStops(t *testing.T) {
	backend := &scriptedBackend{errs: []error{retry.Permanent(errors.New("rejected"))}}
	rec, _ := newTestRecorder(t, backend)

	err := rec.Record(context.Background(), testRecord)

	var perm *retry.PermanentError
	require.ErrorAs(t, err, &perm)
	assert.Equal(t, 1, backend.calls())
}

func TestRecorder_BackoffUsesClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	backend := &scriptedBackend{errs: []error{errors.New("reset")}}
	rec, _ := newTestRecorder(t, backend,
		WithPolicy(retry.Policy{MaxAttempts: 2, InitialBackoff: time.Minute}),
		WithClock(clock),
	)

	done := make(chan error, 1)
	go func() { done <- rec.Record(context.Background(), testRecord) }()

	require.NoError(t, clock.BlockUntilContext(t.Context(), 1))
	assert.Equal(t, 1, backend.calls())

	clock.Advance(time.Minute)
	require.NoError(t, <-done)
	assert.Equal(t, 2, backend.calls())
}
