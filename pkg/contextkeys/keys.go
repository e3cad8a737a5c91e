// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the gateway must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//   import "github.com/moddash/bffgate/pkg/contextkeys"
//   ctx = contextkeys.WithRequestID(ctx, id)
//   id := contextkeys.GetRequestID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains the resolved caller identity
	// Set by: gateway pipeline after identity resolution
	// Required by: access evaluation, access logging
	// Type: identity.Identity
	IdentityKey Key = "identity"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, access log, forwarded upstream as X-Request-ID
	// Type: string
	RequestIDKey Key = "request_id"

	// PrincipalKey contains the resolved principal string
	// Set by: gateway pipeline after identity resolution
	// Used by: Logger, access log (never carries the raw credential)
	// Type: string
	PrincipalKey Key = "principal"

	// LoggerKey contains *observability.Logger
	// Set by: observability middleware
	// Used by: pipeline stages that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// Helper functions for type-safe context operations

// WithIdentity adds the resolved identity to the context
func WithIdentity(ctx context.Context, ident interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, ident)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithPrincipal adds the resolved principal to the context
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetPrincipal retrieves the resolved principal from context
func GetPrincipal(ctx context.Context) string {
	if principal, ok := ctx.Value(PrincipalKey).(string); ok {
		return principal
	}
	return ""
}
