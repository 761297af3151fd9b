// Package context carries request correlation values across layers.
package context

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	messageIDKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithMessageID tags work triggered by an inbound stream message.
func WithMessageID(ctx context.Context, messageID string) context.Context {
	if messageID == "" {
		return ctx
	}
	return context.WithValue(ctx, messageIDKey, messageID)
}

func MessageIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(messageIDKey).(string)
	return v
}
