package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/vitalpulse/internal/adapter/metrics"
	"github.com/pscheid92/vitalpulse/internal/domain"
	"github.com/pscheid92/vitalpulse/internal/platform/correlation"
)

const (
	DefaultInterval       = 3 * time.Second
	DefaultGatewayTimeout = 5 * time.Second
	defaultRecordTimeout  = 10 * time.Second
)

// Deps are the collaborators of a session. Recorder and Metrics are optional.
type Deps struct {
	Emitter   domain.Emitter
	Generator domain.Generator
	Gateway   domain.Gateway
	Recorder  domain.HistoryRecorder
	Clock     clockwork.Clock
	Metrics   *metrics.SessionMetrics
}

// Options tune one session. Zero values fall back to the defaults above.
type Options struct {
	Interval       time.Duration
	GatewayTimeout time.Duration
	RecordTimeout  time.Duration
	// Email identifies the patient for prediction history; empty disables recording.
	Email string
}

// Session owns one connection's tick loop.
type Session struct {
	id   uuid.UUID
	deps Deps
	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state domain.SessionState
	seq   uint64

	done     chan struct{}
	inflight sync.WaitGroup
}

// New creates an Idle session.
func New(id uuid.UUID, deps Deps, opts Options) (*Session, error) {
	if deps.Emitter == nil || deps.Generator == nil || deps.Gateway == nil {
		return nil, errors.New("session requires an emitter, a generator and a gateway")
	}
	if opts.Interval < 0 || opts.GatewayTimeout < 0 {
		return nil, fmt.Errorf("invalid session timing: interval=%s gateway_timeout=%s", opts.Interval, opts.GatewayTimeout)
	}
	if opts.Interval == 0 {
		opts.Interval = DefaultInterval
	}
	if opts.GatewayTimeout == 0 {
		opts.GatewayTimeout = DefaultGatewayTimeout
	}
	if opts.RecordTimeout <= 0 {
		opts.RecordTimeout = defaultRecordTimeout
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}

	ctx, cancel := context.WithCancel(correlation.WithConnection(context.Background(), id.String()))

	return &Session{
		id:     id,
		deps:   deps,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		state:  domain.SessionIdle,
		done:   make(chan struct{}),
	}, nil
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Seq returns the number of ticks issued so far.
func (s *Session) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Done is closed once the run loop has exited and its ticker is stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start moves Idle to Streaming and begins ticking.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.state != domain.SessionIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("start in state %s: %w", state, domain.ErrSessionNotIdle)
	}
	s.state = domain.SessionStreaming
	ticker := s.deps.Clock.NewTicker(s.opts.Interval)
	s.mu.Unlock()

	if s.deps.Metrics != nil {
		s.deps.Metrics.ActiveSessions.Inc()
	}
	slog.InfoContext(s.ctx, "Session streaming", "interval", s.opts.Interval)

	go s.run(ticker)
	return nil
}

// Close moves the session to Closed. Safe to call any number of times from any goroutine.
// No event is emitted once Close has returned.
func (s *Session) Close() {
	s.mu.Lock()
	prev := s.state
	if prev == domain.SessionClosed {
		s.mu.Unlock()
		return
	}
	s.state = domain.SessionClosed
	s.mu.Unlock()

	s.cancel()

	if prev == domain.SessionIdle {
		close(s.done)
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ActiveSessions.Dec()
	}
	slog.InfoContext(s.ctx, "Session closed", "ticks", s.Seq())
}

// Wait blocks until the run loop has exited and every in-flight prediction has
// resolved, or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for session loop: %w", ctx.Err())
	}

	drained := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight predictions: %w", ctx.Err())
	}
}

func (s *Session) run(ticker clockwork.Ticker) {
	defer close(s.done)
	defer ticker.Stop()
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(s.ctx, "Session loop panicked", "panic", r)
			s.Close()
		}
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.Chan():
			s.tick()
		}
	}
}

func (s *Session) tick() {
	reading := s.deps.Generator.Generate()

	seq, streaming, err := s.beginTick(reading)
	if !streaming {
		return
	}
	tickCtx := correlation.WithTick(s.ctx, seq)
	if err != nil {
		s.handleEmitError(tickCtx, domain.EventHealthData, err)
		return
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.TicksTotal.Inc()
	}

	go s.predict(tickCtx, seq, reading)
}

// beginTick numbers the tick and queues its healthData while Streaming. The prediction
// goroutine is only started afterwards, so healthData always reaches the client first.
func (s *Session) beginTick(reading domain.VitalReading) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.SessionStreaming {
		return 0, false, nil
	}
	s.seq++
	if err := s.deps.Emitter.Emit(domain.EventHealthData, s.seq, reading); err != nil {
		return s.seq, true, err
	}
	s.inflight.Add(1)
	return s.seq, true, nil
}

func (s *Session) predict(tickCtx context.Context, seq uint64, reading domain.VitalReading) {
	defer s.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(tickCtx, "Prediction call panicked", "panic", r)
			s.countPrediction(metrics.PredictionSkipped)
		}
	}()
	if s.deps.Metrics != nil {
		s.deps.Metrics.InFlightPredictions.Inc()
		defer s.deps.Metrics.InFlightPredictions.Dec()
	}

	// Disconnect does not cancel an in-flight call; its result is dropped instead.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(tickCtx), s.opts.GatewayTimeout)
	result, err := s.deps.Gateway.Predict(callCtx, reading)
	cancel()
	if err != nil {
		slog.WarnContext(tickCtx, "Prediction skipped", "error", err)
		s.countPrediction(metrics.PredictionSkipped)
		return
	}

	streaming, err := s.emitPrediction(seq, result)
	if !streaming {
		slog.DebugContext(tickCtx, "Prediction discarded, session closed")
		s.countPrediction(metrics.PredictionDiscarded)
		return
	}
	if err != nil {
		s.handleEmitError(tickCtx, domain.EventPrediction, err)
		return
	}

	s.countPrediction(metrics.PredictionEmitted)
	if risk, ok := result.Risk(); ok {
		slog.DebugContext(tickCtx, "Prediction emitted", "risk", risk)
	}

	s.record(tickCtx, seq, result)
}

func (s *Session) emitPrediction(seq uint64, result domain.PredictionResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.SessionStreaming {
		return false, nil
	}
	return true, s.deps.Emitter.Emit(domain.EventPrediction, seq, result)
}

func (s *Session) record(tickCtx context.Context, seq uint64, result domain.PredictionResult) {
	if s.deps.Recorder == nil || s.opts.Email == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(tickCtx), s.opts.RecordTimeout)
	defer cancel()

	rec := domain.PredictionRecord{
		Email:        s.opts.Email,
		ConnectionID: s.id.String(),
		Seq:          seq,
		Prediction:   result,
		RecordedAt:   s.deps.Clock.Now().UTC(),
	}
	if err := s.deps.Recorder.Record(ctx, rec); err != nil {
		slog.WarnContext(tickCtx, "Failed to record prediction history", "error", err)
	}
}

func (s *Session) handleEmitError(ctx context.Context, event string, err error) {
	if errors.Is(err, domain.ErrTransportClosed) {
		slog.DebugContext(ctx, "Transport closed, ending session", "event", event)
		s.Close()
		return
	}
	slog.WarnContext(ctx, "Failed to emit event", "event", event, "error", err)
}

func (s *Session) countPrediction(outcome string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.Predictions.WithLabelValues(outcome).Inc()
	}
}
