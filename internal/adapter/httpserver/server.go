package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pscheid92/vitalpulse/internal/adapter/metrics"
	"github.com/pscheid92/vitalpulse/internal/broadcast"
	"github.com/pscheid92/vitalpulse/internal/domain"
	"github.com/pscheid92/vitalpulse/internal/platform/config"
)

// SessionBroadcaster is the part of broadcast.Broadcaster the /ws route needs.
type SessionBroadcaster interface {
	Connect(conn *websocket.Conn, opts broadcast.ConnectOptions) (uuid.UUID, error)
	Disconnect(id uuid.UUID)
	Count() int
}

// Deps are the collaborators of the HTTP surface. Verifier is nil unless session gating
// is enabled; the metric fields and Registry may be nil.
type Deps struct {
	Broadcaster  SessionBroadcaster
	Verifier     domain.SessionVerifier
	Limits       *ConnectionLimits
	Registry     *prometheus.Registry
	HTTPMetrics  *metrics.HTTPMetrics
	WSMetrics    *metrics.WebSocketMetrics
	HealthChecks []HealthCheck
	Clock        clockwork.Clock
}

type Server struct {
	echo     *echo.Echo
	config   *config.Config
	deps     Deps
	upgrader websocket.Upgrader

	startTime time.Time
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Limits == nil {
		deps.Limits = NewConnectionLimits(int64(cfg.MaxWebSocketConnections), cfg.MaxConnectionsPerIP,
			cfg.ConnectionRate, cfg.ConnectionBurst, deps.Clock)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:   e,
		config: cfg,
		deps:   deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     newCheckOrigin(cfg.AppURL, !cfg.IsProduction()),
		},
	}
	srv.startTime = deps.Clock.Now()

	srv.registerRoutes()
	return srv
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
