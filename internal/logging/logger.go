// Package logging provides structured logging configuration using log/slog.
//
// Loggers taken from a context carry the chi request id of the ops server
// and the publishing cycle and provider a pipeline step is working on, so
// every line of one cycle can be correlated.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	slog.SetDefault(New(os.Stdout, level, format))
}

// New builds a logger writing to w. Setup uses it for stdout; tests pass a buffer.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type contextKey string

const (
	ctxKeyCycleID  contextKey = "cycle_id"
	ctxKeyProvider contextKey = "provider"
)

// WithCycleID stores the publishing cycle id in ctx.
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyCycleID, id)
}

// CycleID returns the publishing cycle id stored in ctx, or "".
func CycleID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyCycleID).(string); ok {
		return v
	}
	return ""
}

// WithProvider stores the provider identifier in ctx.
func WithProvider(ctx context.Context, identifier string) context.Context {
	return context.WithValue(ctx, ctxKeyProvider, identifier)
}

// Provider returns the provider identifier stored in ctx, or "".
func Provider(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyProvider).(string); ok {
		return v
	}
	return ""
}

// FromContext returns the default logger enriched with the request id,
// cycle id and provider found in ctx.
//
// Usage:
//
//	func (p *Processor) run(ctx context.Context) {
//	    log := logging.FromContext(ctx)
//	    log.Info("processing started", "batch_size", size)
//	}
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	// Chi's RequestID middleware stores the ID in context
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if id := CycleID(ctx); id != "" {
		logger = logger.With("cycle_id", id)
	}
	if p := Provider(ctx); p != "" {
		logger = logger.With("provider", p)
	}

	return logger
}

// WithFields returns a logger with additional structured fields.
//
// Usage:
//
//	archiveLog := logging.WithFields(ctx,
//	    "archive", identifier,
//	    "fragments", len(paths),
//	)
//	archiveLog.Info("merge started")
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
