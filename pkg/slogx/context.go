package slogx

import (
	"context"
	"log/slog"

	"github.com/aussiebroadwan/schoolgate/pkg/jwtx"
)

type ctxKey struct{}

func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

func FromContext(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return l
}

func WithRequestID(ctx context.Context, reqID string) context.Context {
	l := FromContext(ctx)
	return WithContext(ctx, l.With("req_id", reqID))
}

// WithClaims tags the request logger with who is calling and as what.
func WithClaims(ctx context.Context, c jwtx.Claims) context.Context {
	attrs := []any{"sub", c.Subject, "role", string(c.Role), "src", string(c.Source)}
	if c.Impersonating() {
		attrs = append(attrs, "impersonating", true)
	}
	return WithContext(ctx, FromContext(ctx).With(attrs...))
}
