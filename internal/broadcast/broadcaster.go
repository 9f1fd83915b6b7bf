package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/vitalpulse/internal/adapter/metrics"
	"github.com/pscheid92/vitalpulse/internal/domain"
	"github.com/pscheid92/vitalpulse/internal/session"
)

const (
	commandTimeout     = 5 * time.Second
	defaultStopTimeout = 10 * time.Second
	shutdownReason     = "Server shutting down"
)

// ErrStopped is returned by Connect once Stop has been called.
var ErrStopped = errors.New("broadcaster stopped")

// GeneratorFactory builds the reading generator for one connection from a preset name.
// An empty name selects the server default.
type GeneratorFactory func(preset string) (domain.Generator, error)

// GatewayFactory builds the prediction gateway for one connection.
type GatewayFactory func() domain.Gateway

// Config wires a Broadcaster. Recorder and the metrics are optional. NewGateway takes
// precedence over Gateway; a shared Gateway must hold no per-connection state.
type Config struct {
	Gateway          domain.Gateway
	NewGateway       GatewayFactory
	Recorder         domain.HistoryRecorder
	NewGenerator     GeneratorFactory
	Clock            clockwork.Clock
	Interval         time.Duration
	GatewayTimeout   time.Duration
	StopTimeout      time.Duration
	SessionMetrics   *metrics.SessionMetrics
	WebSocketMetrics *metrics.WebSocketMetrics
}

// ConnectOptions are the per-connection choices taken from the upgrade request.
type ConnectOptions struct {
	Interval time.Duration // zero means Config.Interval
	Preset   string
	Email    string
}

type entry struct {
	writer  *clientWriter
	session *session.Session
}

// broadcasterCmd is the command interface for the Broadcaster actor.
type broadcasterCmd interface{ isBroadcasterCmd() }

type baseBroadcasterCmd struct{}

func (baseBroadcasterCmd) isBroadcasterCmd() {}

type registerCmd struct {
	baseBroadcasterCmd
	id         uuid.UUID
	connection *websocket.Conn
	generator  domain.Generator
	opts       ConnectOptions
	reply      chan error
}

type unregisterCmd struct {
	baseBroadcasterCmd
	id uuid.UUID
}

type countCmd struct {
	baseBroadcasterCmd
	reply chan int
}

type stopCmd struct {
	baseBroadcasterCmd
}

// Broadcaster owns the id -> session registry.
type Broadcaster struct {
	cfg      Config
	cmdCh    chan broadcasterCmd
	done     chan struct{}
	stopOnce sync.Once
	draining sync.WaitGroup

	// owned by the run goroutine
	entries map[uuid.UUID]*entry
}

func NewBroadcaster(cfg Config) *Broadcaster {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = session.DefaultInterval
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}

	b := &Broadcaster{
		cfg:     cfg,
		cmdCh:   make(chan broadcasterCmd, 256),
		done:    make(chan struct{}),
		entries: make(map[uuid.UUID]*entry),
	}
	go b.run()
	return b
}

// Connect registers conn and starts its session. The returned id is the key for Disconnect.
// On error the caller remains responsible for closing conn.
func (b *Broadcaster) Connect(conn *websocket.Conn, opts ConnectOptions) (uuid.UUID, error) {
	generator, err := b.cfg.NewGenerator(opts.Preset)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create generator: %w", err)
	}

	id := uuid.New()
	reply := make(chan error, 1)
	if !b.send(registerCmd{id: id, connection: conn, generator: generator, opts: opts, reply: reply}) {
		return uuid.Nil, ErrStopped
	}

	timer := b.cfg.Clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-reply:
		if err != nil {
			return uuid.Nil, err
		}
		return id, nil
	case <-b.done:
		return uuid.Nil, ErrStopped
	case <-timer.Chan():
		return uuid.Nil, fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Disconnect closes the session and connection for id. Unknown ids are ignored.
func (b *Broadcaster) Disconnect(id uuid.UUID) {
	b.send(unregisterCmd{id: id})
}

// Count returns the number of live sessions, or -1 if the actor does not answer.
func (b *Broadcaster) Count() int {
	reply := make(chan int, 1)
	if !b.send(countCmd{reply: reply}) {
		return 0
	}

	timer := b.cfg.Clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case n := <-reply:
		return n
	case <-b.done:
		return 0
	case <-timer.Chan():
		slog.Warn("Count timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop closes every session with a close frame and waits, bounded by the stop timeout,
// for in-flight prediction calls to resolve. Safe to call more than once.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		b.send(stopCmd{})

		timeout := b.cfg.Clock.NewTimer(b.cfg.StopTimeout)
		defer timeout.Stop()

		select {
		case <-b.done:
		case <-timeout.Chan():
			slog.Warn("Broadcaster stop timeout exceeded", "timeout", b.cfg.StopTimeout)
			return
		}

		drained := make(chan struct{})
		go func() {
			b.draining.Wait()
			close(drained)
		}()

		select {
		case <-drained:
			slog.Info("Broadcaster stopped gracefully")
		case <-timeout.Chan():
			slog.Warn("In-flight predictions still pending at shutdown", "timeout", b.cfg.StopTimeout)
		}
	})
}

func (b *Broadcaster) send(cmd broadcasterCmd) bool {
	select {
	case <-b.done:
		return false
	default:
	}

	select {
	case b.cmdCh <- cmd:
		return true
	case <-b.done:
		return false
	}
}

func (b *Broadcaster) run() {
	defer close(b.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Broadcaster panic recovered", "panic", r)
			b.closeAll("Internal error")
		}
	}()

	for cmd := range b.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			c.reply <- b.handleRegister(c)
		case unregisterCmd:
			b.handleUnregister(c.id)
		case countCmd:
			c.reply <- len(b.entries)
		case stopCmd:
			b.handleStop()
			return
		default:
			slog.Warn("Broadcaster received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (b *Broadcaster) handleRegister(c registerCmd) error {
	interval := c.opts.Interval
	if interval <= 0 {
		interval = b.cfg.Interval
	}

	gateway := b.cfg.Gateway
	if b.cfg.NewGateway != nil {
		gateway = b.cfg.NewGateway()
	}

	cw := newClientWriter(c.connection, b.cfg.Clock, b.cfg.WebSocketMetrics)
	sess, err := session.New(c.id, session.Deps{
		Emitter:   cw,
		Generator: c.generator,
		Gateway:   gateway,
		Recorder:  b.cfg.Recorder,
		Clock:     b.cfg.Clock,
		Metrics:   b.cfg.SessionMetrics,
	}, session.Options{
		Interval:       interval,
		GatewayTimeout: b.cfg.GatewayTimeout,
		Email:          c.opts.Email,
	})
	if err == nil {
		err = sess.Start()
	}
	if err != nil {
		cw.stop()
		return fmt.Errorf("failed to start session: %w", err)
	}

	b.entries[c.id] = &entry{writer: cw, session: sess}
	if b.cfg.WebSocketMetrics != nil {
		b.cfg.WebSocketMetrics.ActiveConnections.Inc()
	}

	// A session can end on its own (transport gone, loop panic); drop it from the registry then.
	go func() {
		<-sess.Done()
		b.Disconnect(c.id)
	}()

	slog.Debug("Client registered", "connection_id", c.id.String(), "interval", interval, "total_clients", len(b.entries))
	return nil
}

func (b *Broadcaster) handleUnregister(id uuid.UUID) {
	e, ok := b.entries[id]
	if !ok {
		return
	}
	delete(b.entries, id)

	e.session.Close()
	e.writer.stop()
	b.drain(e.session)

	if b.cfg.WebSocketMetrics != nil {
		b.cfg.WebSocketMetrics.ActiveConnections.Dec()
	}
	slog.Debug("Client unregistered", "connection_id", id.String(), "remaining_clients", len(b.entries))
}

func (b *Broadcaster) handleStop() {
	total := len(b.entries)
	slog.Info("Broadcaster shutting down", "total_clients", total)
	b.closeAll(shutdownReason)
	slog.Info("Broadcaster shutdown complete", "disconnected_clients", total)
}

// closeAll closes every session and connection with the given reason.
func (b *Broadcaster) closeAll(reason string) {
	for id, e := range b.entries {
		e.session.Close()
		e.writer.stopGraceful(reason)
		b.drain(e.session)
		delete(b.entries, id)
	}
	if b.cfg.WebSocketMetrics != nil {
		b.cfg.WebSocketMetrics.ActiveConnections.Set(0)
	}
}

// drain tracks a closed session until its in-flight prediction calls have resolved.
func (b *Broadcaster) drain(s *session.Session) {
	b.draining.Add(1)
	go func() {
		defer b.draining.Done()
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.StopTimeout)
		defer cancel()
		if err := s.Wait(ctx); err != nil {
			slog.Warn("Session did not drain", "connection_id", s.ID().String(), "error", err)
		}
	}()
}
