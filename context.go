package roleadmin

import (
	"context"
)

// Context keys for roleadmin values.
type contextKey string

const (
	contextKeyRoleName  contextKey = "roleadmin:role_name"
	contextKeyUserID    contextKey = "roleadmin:user_id"
	contextKeyIPAddress contextKey = "roleadmin:ip_address"
	contextKeyUserAgent contextKey = "roleadmin:user_agent"
	contextKeyRequestID contextKey = "roleadmin:request_id"
	contextKeyChecker   contextKey = "roleadmin:checker"
)

func stringValue(ctx context.Context, key contextKey) string {
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithRoleName adds the caller's role name to the context.
// Authentication middleware sets it; permission middleware reads it.
func WithRoleName(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, contextKeyRoleName, role)
}

// GetRoleName retrieves the caller's role name from context.
// Returns empty string if not set.
func GetRoleName(ctx context.Context) string {
	return stringValue(ctx, contextKeyRoleName)
}

// WithUserID adds the acting user ID to the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKeyUserID, userID)
}

// GetUserID retrieves the acting user ID from context.
func GetUserID(ctx context.Context) string {
	return stringValue(ctx, contextKeyUserID)
}

// WithIPAddress adds the client IP address to the context (for audit).
func WithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, contextKeyIPAddress, ip)
}

// GetIPAddress retrieves the IP address from context.
func GetIPAddress(ctx context.Context) string {
	return stringValue(ctx, contextKeyIPAddress)
}

// WithUserAgent adds the user agent to the context (for audit).
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, contextKeyUserAgent, ua)
}

// GetUserAgent retrieves the user agent from context.
func GetUserAgent(ctx context.Context) string {
	return stringValue(ctx, contextKeyUserAgent)
}

// WithRequestID adds a request ID to the context (for audit and correlation).
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, contextKeyRequestID)
}

// WithChecker adds a Checker to the context.
func WithChecker(ctx context.Context, checker *Checker) context.Context {
	return context.WithValue(ctx, contextKeyChecker, checker)
}

// FromContext retrieves the Checker set by permission middleware.
// Returns nil if not set.
func FromContext(ctx context.Context) *Checker {
	if c, ok := ctx.Value(contextKeyChecker).(*Checker); ok {
		return c
	}
	return nil
}

// ActorFromContext builds the audit actor from context values.
func ActorFromContext(ctx context.Context) Actor {
	return Actor{
		UserID:    GetUserID(ctx),
		IPAddress: GetIPAddress(ctx),
		UserAgent: GetUserAgent(ctx),
		RequestID: GetRequestID(ctx),
	}
}

// WithActor adds every non-empty actor field to the context at once.
func WithActor(ctx context.Context, a Actor) context.Context {
	if a.UserID != "" {
		ctx = WithUserID(ctx, a.UserID)
	}
	if a.IPAddress != "" {
		ctx = WithIPAddress(ctx, a.IPAddress)
	}
	if a.UserAgent != "" {
		ctx = WithUserAgent(ctx, a.UserAgent)
	}
	if a.RequestID != "" {
		ctx = WithRequestID(ctx, a.RequestID)
	}
	return ctx
}
