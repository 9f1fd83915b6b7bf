package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/pscheid92/vitalpulse/internal/adapter/httpserver"
	"github.com/pscheid92/vitalpulse/internal/adapter/metrics"
	"github.com/pscheid92/vitalpulse/internal/adapter/postgres"
	"github.com/pscheid92/vitalpulse/internal/adapter/recordstore"
	"github.com/pscheid92/vitalpulse/internal/adapter/redis"
	"github.com/pscheid92/vitalpulse/internal/broadcast"
	"github.com/pscheid92/vitalpulse/internal/domain"
	"github.com/pscheid92/vitalpulse/internal/history"
	"github.com/pscheid92/vitalpulse/internal/platform/config"
	"github.com/pscheid92/vitalpulse/internal/platform/logging"
	"github.com/pscheid92/vitalpulse/internal/platform/version"
	"github.com/pscheid92/vitalpulse/internal/prediction"
	"github.com/pscheid92/vitalpulse/internal/vitals"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

// backends holds the optional stores; close releases whatever was opened.
type backends struct {
	recorder     domain.HistoryRecorder
	healthChecks []httpserver.HealthCheck
	closers      []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupBackends(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, store *recordstore.Client) (*backends, error) {
	b := &backends{}
	storeMetrics := metrics.NewStoreMetrics(reg)
	historyMetrics := metrics.NewHistoryMetrics(reg)

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch cfg.HistoryBackend {
	case config.HistoryHTTP:
		b.recorder = history.NewRecorder(cfg.HistoryBackend, store,
			history.WithClassifier(recordstore.Classify),
			history.WithMetrics(historyMetrics))

	case config.HistoryRedis:
		rdb, err := redis.NewClient(ctx, cfg.RedisURL, storeMetrics)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		b.closers = append(b.closers, func() { _ = rdb.Close() })
		b.healthChecks = append(b.healthChecks, httpserver.HealthCheck{Name: "redis", Check: redis.HealthCheck(rdb)})
		b.recorder = history.NewRecorder(cfg.HistoryBackend, redis.NewHistoryStore(rdb, cfg.HistoryLimit),
			history.WithClassifier(redis.Classify),
			history.WithMetrics(historyMetrics))

	case config.HistoryPostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, storeMetrics)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
			b.close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		b.healthChecks = append(b.healthChecks, httpserver.HealthCheck{Name: "postgres", Check: postgres.HealthCheck(pool)})
		b.recorder = history.NewRecorder(cfg.HistoryBackend, postgres.NewHistoryRepo(pool),
			history.WithMetrics(historyMetrics))
	}

	return b, nil
}

func generatorFactory(sessionMetrics *metrics.SessionMetrics) broadcast.GeneratorFactory {
	onFallback := func(error) { sessionMetrics.GeneratorFallbacks.Inc() }
	return func(name string) (domain.Generator, error) {
		preset, err := vitals.LookupPreset(name)
		if err != nil {
			return nil, err
		}
		return vitals.NewGenerator(preset, vitals.WithFallbackHook(onFallback)), nil
	}
}

func run() error {
	cfg := setupConfig()
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)

	info := version.Get()
	slog.Info("Application starting",
		"env", cfg.AppEnv, "port", cfg.Port, "version", info.Version, "commit", info.Commit,
		"history_backend", cfg.HistoryBackend, "require_session", cfg.RequireSession)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	reg := metrics.NewRegistry()
	sessionMetrics := metrics.NewSessionMetrics(reg)
	wsMetrics := metrics.NewWebSocketMetrics(reg)

	var store *recordstore.Client
	if cfg.RecordStoreURL != "" {
		store = recordstore.NewClient(cfg.RecordStoreURL, cfg.GatewayTimeout)
	}

	be, err := setupBackends(ctx, cfg, reg, store)
	if err != nil {
		return err
	}
	defer be.close()

	gateway := prediction.NewClient(cfg.PredictionURL,
		prediction.WithTimeout(cfg.GatewayTimeout),
		prediction.WithClock(clock),
		prediction.WithMetrics(metrics.NewGatewayMetrics(reg)))

	broadcaster := broadcast.NewBroadcaster(broadcast.Config{
		NewGateway:       func() domain.Gateway { return gateway.ForConnection() },
		Recorder:         be.recorder,
		NewGenerator:     generatorFactory(sessionMetrics),
		Clock:            clock,
		Interval:         cfg.TickInterval,
		GatewayTimeout:   cfg.GatewayTimeout,
		SessionMetrics:   sessionMetrics,
		WebSocketMetrics: wsMetrics,
	})

	deps := httpserver.Deps{
		Broadcaster:  broadcaster,
		Registry:     reg,
		HTTPMetrics:  metrics.NewHTTPMetrics(reg),
		WSMetrics:    wsMetrics,
		HealthChecks: be.healthChecks,
		Clock:        clock,
	}
	if cfg.RequireSession {
		deps.Verifier = store
	}
	srv := httpserver.NewServer(cfg, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		// Sends close frames to open clients and drains in-flight gateway calls.
		broadcaster.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	slog.Info("Shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}
