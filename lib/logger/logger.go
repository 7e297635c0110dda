// Package logger carries a *slog.Logger through context so components
// log with whatever attributes the caller attached.
package logger

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// WithContext returns a context carrying the given logger.
func WithContext(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// FromContext returns the logger attached to ctx, or slog.Default()
// if none was attached.
func FromContext(ctx context.Context) *slog.Logger {
	if log, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return log
	}
	return slog.Default()
}
