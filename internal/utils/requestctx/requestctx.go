// Package requestctx carries request-scoped identifiers through context so
// that domain logs can be joined with HTTP access logs.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
)

// WithRequestID returns a copy of ctx carrying requestID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request ID carried by ctx, or "".
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(requestIDKey).(string)
	return s
}

// Fields returns the log fields for the identifiers carried by ctx.
// Scheduler contexts carry none.
func Fields(ctx context.Context) []zap.Field {
	if id := RequestID(ctx); id != "" {
		return []zap.Field{zap.String("request_id", id)}
	}
	return nil
}
