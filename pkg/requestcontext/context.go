// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values set by middleware and read by services.
//
//	userID := requestcontext.UserID(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests and workers inject values directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type (
	userIDKey      struct{}
	adminKey       struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// UserID returns the authenticated caller, or uuid.Nil.
func UserID(ctx context.Context) uuid.UUID {
	if userID, ok := ctx.Value(userIDKey{}).(uuid.UUID); ok {
		return userID
	}
	return uuid.Nil
}

// WithUserID injects the authenticated caller.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// IsAdmin reports whether the caller carries the platform admin role.
func IsAdmin(ctx context.Context) bool {
	admin, _ := ctx.Value(adminKey{}).(bool)
	return admin
}

// WithAdmin marks the caller as an admin (or not).
func WithAdmin(ctx context.Context, admin bool) context.Context {
	return context.WithValue(ctx, adminKey{}, admin)
}

// RequestID returns the correlation id of the current request.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a correlation id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, cron jobs, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
