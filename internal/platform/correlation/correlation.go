// Package correlation carries request, connection and tick identifiers through a context
// and injects them into every slog record emitted with that context.
package correlation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

type requestKey struct{}

type connectionKey struct{}

type tickKey struct{}

// NewID generates a short request ID (8 hex characters).
func NewID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// WithRequest returns a new context carrying the HTTP request ID.
func WithRequest(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestKey{}, id)
}

// Request extracts the request ID from ctx.
func Request(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestKey{}).(string)
	return id, ok && id != ""
}

// WithConnection returns a new context carrying the connection (session) ID.
func WithConnection(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, connectionKey{}, id)
}

// Connection extracts the connection ID from ctx, returning ("", false) if not present.
func Connection(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(connectionKey{}).(string)
	return id, ok && id != ""
}

// WithTick returns a new context carrying the tick sequence number.
func WithTick(ctx context.Context, seq uint64) context.Context {
	return context.WithValue(ctx, tickKey{}, seq)
}

// Tick extracts the tick sequence number from ctx.
func Tick(ctx context.Context) (uint64, bool) {
	seq, ok := ctx.Value(tickKey{}).(uint64)
	return seq, ok
}

// Handler wraps an existing slog.Handler and adds "request_id", "connection_id"
// and "tick" attributes when the context carries them.
type Handler struct {
	inner slog.Handler
}

// NewHandler creates a correlation-aware handler wrapping the given handler.
func NewHandler(inner slog.Handler) *Handler {
	return &Handler{inner: inner}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := Request(ctx); ok {
		r.AddAttrs(slog.String("request_id", id))
	}
	if id, ok := Connection(ctx); ok {
		r.AddAttrs(slog.String("connection_id", id))
	}
	if seq, ok := Tick(ctx); ok {
		r.AddAttrs(slog.Uint64("tick", seq))
	}
	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("correlation handler: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name)}
}
