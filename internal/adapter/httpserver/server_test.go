package httpserver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pscheid92/vitalpulse/internal/adapter/metrics"
	"github.com/pscheid92/vitalpulse/internal/broadcast"
	"github.com/pscheid92/vitalpulse/internal/domain"
	"github.com/pscheid92/vitalpulse/internal/platform/config"
)

type fakeBroadcaster struct {
	mu           sync.Mutex
	connected    map[uuid.UUID]broadcast.ConnectOptions
	disconnected []uuid.UUID
	connectErr   error
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{connected: make(map[uuid.UUID]broadcast.ConnectOptions)}
}

func (f *fakeBroadcaster) Connect(_ *websocket.Conn, opts broadcast.ConnectOptions) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return uuid.Nil, f.connectErr
	}
	id := uuid.New()
	f.connected[id] = opts
	return id, nil
}

func (f *fakeBroadcaster) Disconnect(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.connected[id]; ok {
		delete(f.connected, id)
		f.disconnected = append(f.disconnected, id)
	}
}

func (f *fakeBroadcaster) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.connected)
}

func (f *fakeBroadcaster) lastOptions() (broadcast.ConnectOptions, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.connected {
		return o, true
	}
	return broadcast.ConnectOptions{}, false
}

func (f *fakeBroadcaster) disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.disconnected)
}

type verifierFunc func(ctx context.Context, email, sessionKey string) error

func (f verifierFunc) VerifySession(ctx context.Context, email, sessionKey string) error {
	return f(ctx, email, sessionKey)
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                  "development",
		Port:                    "0",
		TickInterval:            3 * time.Second,
		MinTickInterval:         time.Second,
		MaxTickInterval:         time.Minute,
		VitalsPreset:            "standard",
		MaxWebSocketConnections: 100,
		MaxConnectionsPerIP:     10,
		ConnectionRate:          100,
		ConnectionBurst:         100,
	}
}

type testServerOption func(*Deps, *config.Config)

func withHealthChecks(checks ...HealthCheck) testServerOption {
	return func(d *Deps, _ *config.Config) { d.HealthChecks = checks }
}

func withVerifier(v domain.SessionVerifier) testServerOption {
	return func(d *Deps, _ *config.Config) { d.Verifier = v }
}

func withLimits(l *ConnectionLimits) testServerOption {
	return func(d *Deps, _ *config.Config) { d.Limits = l }
}

func withAppURL(url string) testServerOption {
	return func(_ *Deps, c *config.Config) { c.AppURL = url }
}

func withBroadcaster(b SessionBroadcaster) testServerOption {
	return func(d *Deps, _ *config.Config) { d.Broadcaster = b }
}

func withClock(clock clockwork.Clock) testServerOption {
	return func(d *Deps, _ *config.Config) { d.Clock = clock }
}

func newTestServer(t *testing.T, opts ...testServerOption) (*Server, *fakeBroadcaster) {
	t.Helper()

	reg := prometheus.NewRegistry()
	fake := newFakeBroadcaster()
	cfg := testConfig()
	deps := Deps{
		Broadcaster: fake,
		Registry:    reg,
		HTTPMetrics: metrics.NewHTTPMetrics(reg),
		WSMetrics:   metrics.NewWebSocketMetrics(reg),
		Clock:       clockwork.NewFakeClock(),
	}
	for _, opt := range opts {
		opt(&deps, cfg)
	}

	return NewServer(cfg, deps), fake
}
