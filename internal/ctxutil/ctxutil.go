// Package ctxutil provides shared context key accessors.
//
// This package exists to break the circular dependency between server
// and mcp: server's middleware assigns the request id, and both the
// HTTP handlers and the MCP tools read it back for response envelopes
// and log lines. Both packages import ctxutil instead of each other.
package ctxutil

import "context"

type contextKey string

const keyRequestID contextKey = "request_id"

// WithRequestID returns a new context carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestIDFromContext extracts the request id from the context.
// Returns the empty string when no middleware assigned one.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(keyRequestID).(string); ok {
		return v
	}
	return ""
}
