// Package contextkeys provides centralized context key definitions
//
// All request-scoped context keys used across the application are defined
// here so that producers and consumers agree on a single key value.
//
//	ctx = contextkeys.WithAuth(ctx, authCtx)
//	authCtx, _ := contextkeys.Auth(ctx).(*auth.AuthContext)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains *auth.AuthContext
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: every authenticated API endpoint and the authz gates
	AuthKey Key = "auth_context"

	// RequestIDKey contains the request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: logger, audit trail
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated user ID as a string
	// Set by: middleware.AuthMiddleware
	// Used by: logger
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.LoggingMiddleware
	LoggerKey Key = "logger"

	// ResolutionKey contains the rbac.Resolution for the project in the path
	// Set by: middleware.Authz project gates
	ResolutionKey Key = "project_resolution"
)

// WithAuth adds authentication context to the context
func WithAuth(ctx context.Context, authCtx interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, authCtx)
}

// Auth returns the raw authentication context value
func Auth(ctx context.Context) interface{} {
	return ctx.Value(AuthKey)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// Logger returns the raw logger value
func Logger(ctx context.Context) interface{} {
	return ctx.Value(LoggerKey)
}

// WithResolution stores a project role resolution
func WithResolution(ctx context.Context, resolution interface{}) context.Context {
	return context.WithValue(ctx, ResolutionKey, resolution)
}

// Resolution returns the raw resolution value
func Resolution(ctx context.Context) interface{} {
	return ctx.Value(ResolutionKey)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
