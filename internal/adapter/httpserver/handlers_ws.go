package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/vitalpulse/internal/broadcast"
	"github.com/pscheid92/vitalpulse/internal/domain"
	apperrors "github.com/pscheid92/vitalpulse/internal/platform/errors"
	"github.com/pscheid92/vitalpulse/internal/vitals"
)

const (
	rejectUnauthenticated = "unauthenticated"
	rejectBadRequest      = "bad_request"
	rejectOrigin          = "origin"
	rejectUnavailable     = "unavailable"
)

// handleWebSocket upgrades /ws and runs the read pump until the client goes away.
// Limits, query validation and session gating all happen before the upgrade, so a
// rejected client gets a plain HTTP error.
func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()
	if ok, reason := s.deps.Limits.Acquire(ip); !ok {
		s.reject(string(reason))
		return apperrors.RateLimitedError("connection limit reached").WithContext("reason", string(reason))
	}
	defer s.deps.Limits.Release(ip)

	opts, err := s.connectOptions(c)
	if err != nil {
		s.reject(rejectBadRequest)
		return err
	}

	if err := s.verifySession(c, opts.Email); err != nil {
		s.reject(rejectUnauthenticated)
		return err
	}

	if !s.upgrader.CheckOrigin(c.Request()) {
		s.reject(rejectOrigin)
		return echo.NewHTTPError(http.StatusForbidden, "origin not allowed")
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		slog.DebugContext(c.Request().Context(), "WebSocket upgrade failed", "error", err)
		return nil
	}

	id, err := s.deps.Broadcaster.Connect(conn, opts)
	if err != nil {
		s.reject(rejectUnavailable)
		slog.WarnContext(c.Request().Context(), "Failed to register connection", "error", err)
		_ = conn.Close()
		return nil
	}
	defer s.deps.Broadcaster.Disconnect(id)

	slog.InfoContext(c.Request().Context(), "Client connected",
		"connection_id", id.String(), "remote_ip", ip, "preset", opts.Preset, "interval", opts.Interval)

	// Read pump: inbound frames are ignored, a read error means the client is gone.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	slog.InfoContext(c.Request().Context(), "Client disconnected", "connection_id", id.String())
	return nil
}

func (s *Server) reject(reason string) {
	if s.deps.WSMetrics != nil {
		s.deps.WSMetrics.RejectedConnections.WithLabelValues(reason).Inc()
	}
}

// connectOptions reads interval, preset and email from the query string.
func (s *Server) connectOptions(c echo.Context) (broadcast.ConnectOptions, error) {
	q := c.QueryParams()
	opts := broadcast.ConnectOptions{
		Interval: s.config.TickInterval,
		Preset:   s.config.VitalsPreset,
		Email:    strings.TrimSpace(q.Get("email")),
	}

	if raw := strings.TrimSpace(q.Get("interval")); raw != "" {
		d, err := parseInterval(raw)
		if err != nil {
			return opts, apperrors.ValidationError("interval must be a duration like 3s or a number of milliseconds").
				WithContext("interval", raw)
		}
		if d < s.config.MinTickInterval || d > s.config.MaxTickInterval {
			return opts, apperrors.ValidationError(fmt.Sprintf("interval must be between %s and %s",
				s.config.MinTickInterval, s.config.MaxTickInterval)).WithContext("interval", raw)
		}
		opts.Interval = d
	}

	if raw := strings.TrimSpace(q.Get("preset")); raw != "" {
		preset, err := vitals.LookupPreset(raw)
		if err != nil {
			return opts, apperrors.ValidationError("unknown preset").
				WithContext("preset", raw).
				WithContext("available", vitals.PresetNames())
		}
		opts.Preset = preset.Name
	}

	return opts, nil
}

func parseInterval(raw string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse interval %q: %w", raw, err)
	}
	return d, nil
}

// verifySession checks email and sessionKey against the record store when gating is on.
func (s *Server) verifySession(c echo.Context, email string) error {
	if s.deps.Verifier == nil {
		return nil
	}

	sessionKey := c.QueryParam("sessionKey")
	if email == "" || sessionKey == "" {
		return apperrors.UnauthorizedError("email and sessionKey are required", nil)
	}

	err := s.deps.Verifier.VerifySession(c.Request().Context(), email, sessionKey)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrUnauthenticated):
		return apperrors.UnauthorizedError("session not authenticated", err)
	default:
		return apperrors.ExternalError("session check failed", err)
	}
}
