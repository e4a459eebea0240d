// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets these values; services read them. Keeping the package
// free of net/http lets services import only what they need.
//
// Usage in services (read values):
//
//	operatorID := requestcontext.OperatorID(ctx)
//	facilityID := requestcontext.FacilityID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithFacilityID(ctx, facilityID)
package requestcontext

import (
	"context"
	"time"

	id "gatelog/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	operatorIDKey  struct{}
	facilityIDKey  struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for tests that need raw context.WithValue.
var (
	ContextKeyOperatorID  = operatorIDKey{}
	ContextKeyFacilityID  = facilityIDKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// OperatorID retrieves the authenticated operator from the context.
// Returns the zero value (nil UUID) if not set, e.g. for device ingestion.
func OperatorID(ctx context.Context) id.OperatorID {
	if operatorID, ok := ctx.Value(ContextKeyOperatorID).(id.OperatorID); ok {
		return operatorID
	}
	return id.OperatorID{}
}

// WithOperatorID injects an operator identity into the context.
func WithOperatorID(ctx context.Context, operatorID id.OperatorID) context.Context {
	return context.WithValue(ctx, ContextKeyOperatorID, operatorID)
}

// FacilityID retrieves the caller's facility scope from the context. The
// core never infers facility scope itself; every call carries it.
func FacilityID(ctx context.Context) id.FacilityID {
	if facilityID, ok := ctx.Value(ContextKeyFacilityID).(id.FacilityID); ok {
		return facilityID
	}
	return id.FacilityID{}
}

// WithFacilityID injects a facility scope into the context.
func WithFacilityID(ctx context.Context, facilityID id.FacilityID) context.Context {
	return context.WithValue(ctx, ContextKeyFacilityID, facilityID)
}

// RequestID retrieves the request correlation ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context. Falls back to
// time.Now() for non-HTTP contexts such as workers, CLI, and tests.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for service unit
// tests and for workers that need one consistent time per batch.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
