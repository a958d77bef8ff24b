// Package logger provides structured logging using Go's slog package.
// It supports configurable format (JSON/text) and log levels via environment variables.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

const (
	ceremonyIDKey   contextKey = "ceremony_id"
	factorSourceKey contextKey = "factor_source"
)

// Init initializes the global logger from environment variables.
//
// Environment variables:
//   - LOG_FORMAT: "json" (default) or "text"
//   - LOG_LEVEL: "DEBUG", "INFO" (default), "WARN", or "ERROR"
func Init() error {
	format := os.Getenv("LOG_FORMAT")
	if format == "" {
		format = "json"
	}

	levelStr := os.Getenv("LOG_LEVEL")
	if levelStr == "" {
		levelStr = "INFO"
	}

	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid LOG_LEVEL: %s (must be DEBUG, INFO, WARN, or ERROR)", levelStr)
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %s (must be json or text)", format)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return nil
}

// WithCeremonyID tags the context with the id of the signing ceremony it belongs to.
func WithCeremonyID(ctx context.Context, ceremonyID string) context.Context {
	return context.WithValue(ctx, ceremonyIDKey, ceremonyID)
}

// GetCeremonyID retrieves the ceremony ID from context.
// Returns empty string if not present.
func GetCeremonyID(ctx context.Context) string {
	if id, ok := ctx.Value(ceremonyIDKey).(string); ok {
		return id
	}
	return ""
}

// WithFactorSource tags the context with the factor source currently being used.
func WithFactorSource(ctx context.Context, factorSourceID string) context.Context {
	return context.WithValue(ctx, factorSourceKey, factorSourceID)
}

// FromContext returns a logger enriched with the ceremony ID and factor
// source from context. If neither is present, returns the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id := GetCeremonyID(ctx); id != "" {
		l = l.With("ceremony_id", id)
	}
	if fs, ok := ctx.Value(factorSourceKey).(string); ok && fs != "" {
		l = l.With("factor_source", fs)
	}
	return l
}

// Info logs at INFO level with context enrichment.
func Info(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Info(msg, args...)
}

// Error logs at ERROR level with context enrichment.
func Error(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Error(msg, args...)
}

// Warn logs at WARN level with context enrichment.
func Warn(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Warn(msg, args...)
}

// Debug logs at DEBUG level with context enrichment.
func Debug(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Debug(msg, args...)
}
