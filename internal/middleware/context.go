// Package middleware provides HTTP middleware components for the API
// server.
package middleware

import (
	"context"
	"net/http"
)

// userIDKey is the context key for the authenticated user ID.
type userIDKey struct{}

// SetUserID stores the authenticated user ID in the context. Called by
// the auth middleware after validating the bearer token.
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// GetUserID retrieves the authenticated user ID from context. Returns
// empty string if not present.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}

// ErrorCodeCarrier is implemented by response writers that record an
// API error code for request logging.
type ErrorCodeCarrier interface {
	SetErrorCode(code string)
}

// SetResponseErrorCode records code on the response writer if it supports
// it, so the logging middleware can include it in the request log line.
func SetResponseErrorCode(w http.ResponseWriter, code string) {
	if c, ok := w.(ErrorCodeCarrier); ok {
		c.SetErrorCode(code)
	}
}
