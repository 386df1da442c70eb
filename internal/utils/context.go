package utils

import (
	"context"
)

// Key type for context values
type contextKey string

const requestIDKey contextKey = "requestID"

// RequestIDFromContext returns the request id, or "" outside a request
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// SetRequestIDToContext adds the request id to the context
func SetRequestIDToContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}
