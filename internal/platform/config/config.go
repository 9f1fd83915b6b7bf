package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"

	"github.com/pscheid92/vitalpulse/internal/vitals"
)

// History backends accepted by HISTORY_BACKEND.
const (
	HistoryNone     = "none"
	HistoryHTTP     = "http"
	HistoryRedis    = "redis"
	HistoryPostgres = "postgres"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"4000"`
	AppURL    string `env:"APP_URL"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	PredictionURL  string        `env:"PREDICTION_URL" default:"http://127.0.0.1:5000/predict_heart"`
	GatewayTimeout time.Duration `env:"GATEWAY_TIMEOUT" default:"5s"`

	TickInterval    time.Duration `env:"TICK_INTERVAL" default:"3s"`
	MinTickInterval time.Duration `env:"MIN_TICK_INTERVAL" default:"1s"`
	MaxTickInterval time.Duration `env:"MAX_TICK_INTERVAL" default:"60s"`
	VitalsPreset    string        `env:"VITALS_PRESET" default:"standard"`

	RequireSession bool   `env:"REQUIRE_SESSION" default:"false"`
	RecordStoreURL string `env:"RECORD_STORE_URL"`
	HistoryBackend string `env:"HISTORY_BACKEND" default:"none"`
	RedisURL       string `env:"REDIS_URL"`
	DatabaseURL    string `env:"DATABASE_URL"`
	HistoryLimit   int    `env:"HISTORY_LIMIT" default:"100"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"20"`
	ConnectionRate          float64 `env:"CONNECTION_RATE" default:"10"`
	ConnectionBurst         int     `env:"CONNECTION_BURST" default:"20"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func validate(cfg *Config) error {
	if cfg.PredictionURL == "" {
		return errors.New("PREDICTION_URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.PredictionURL); err != nil {
		return fmt.Errorf("PREDICTION_URL is not a valid URL: %w", err)
	}

	if cfg.GatewayTimeout <= 0 {
		return errors.New("GATEWAY_TIMEOUT must be positive")
	}
	if cfg.MinTickInterval <= 0 || cfg.TickInterval <= 0 || cfg.MaxTickInterval <= 0 {
		return errors.New("tick intervals must be positive")
	}
	if cfg.MinTickInterval > cfg.TickInterval || cfg.TickInterval > cfg.MaxTickInterval {
		return fmt.Errorf("TICK_INTERVAL %s must be between MIN_TICK_INTERVAL %s and MAX_TICK_INTERVAL %s",
			cfg.TickInterval, cfg.MinTickInterval, cfg.MaxTickInterval)
	}

	if _, err := vitals.LookupPreset(cfg.VitalsPreset); err != nil {
		return fmt.Errorf("VITALS_PRESET: %w", err)
	}

	if cfg.RequireSession && cfg.RecordStoreURL == "" {
		return errors.New("RECORD_STORE_URL is required when REQUIRE_SESSION is enabled")
	}

	cfg.HistoryBackend = strings.ToLower(strings.TrimSpace(cfg.HistoryBackend))
	switch cfg.HistoryBackend {
	case HistoryNone:
	case HistoryHTTP:
		if cfg.RecordStoreURL == "" {
			return errors.New("RECORD_STORE_URL is required when HISTORY_BACKEND=http")
		}
	case HistoryRedis:
		if cfg.RedisURL == "" {
			return errors.New("REDIS_URL is required when HISTORY_BACKEND=redis")
		}
	case HistoryPostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when HISTORY_BACKEND=postgres")
		}
		if cfg.IsProduction() {
			if err := validateSSLMode(cfg.DatabaseURL); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("HISTORY_BACKEND must be one of none, http, redis, postgres; got %q", cfg.HistoryBackend)
	}

	if cfg.HistoryLimit < 1 {
		return errors.New("HISTORY_LIMIT must be at least 1")
	}
	if cfg.MaxWebSocketConnections < 1 || cfg.MaxConnectionsPerIP < 1 {
		return errors.New("connection limits must be at least 1")
	}
	if cfg.ConnectionRate <= 0 || cfg.ConnectionBurst < 1 {
		return errors.New("CONNECTION_RATE must be positive and CONNECTION_BURST at least 1")
	}

	return nil
}

func validateSSLMode(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}
	mode := strings.ToLower(u.Query().Get("sslmode"))
	if mode == "disable" || mode == "allow" {
		return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
	}
	return nil
}
