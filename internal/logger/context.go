package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds request-scoped logging context.
type LogContext struct {
	RequestID string    // chi request id
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	ClientIP  string    // client IP address (without port)
	Principal string    // authenticated principal, if any
	Bucket    string    // bucket id the request targets
	ObjectKey string    // object key the request targets
	StartTime time.Time // for duration calculation
}

// WithContext returns a new context carrying the given LogContext.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from ctx, or nil if not present.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a LogContext for a request from the given client IP.
//
// One LogContext is shared by everything a request does: the middleware
// installs it, handlers annotate it as they resolve the principal and the
// addressed bucket/key, and every *Ctx log call reads it. The setters
// therefore mutate in place rather than copy.
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext, for handing off to work that
// outlives the request.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	out := *lc
	return &out
}

// WithTarget records the bucket and object key the request addresses.
func (lc *LogContext) WithTarget(bucket, key string) *LogContext {
	if lc != nil {
		lc.Bucket = bucket
		lc.ObjectKey = key
	}
	return lc
}

// WithPrincipal records the authenticated principal.
func (lc *LogContext) WithPrincipal(principal string) *LogContext {
	if lc != nil {
		lc.Principal = principal
	}
	return lc
}

// WithTrace records the trace identifiers.
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	if lc != nil {
		lc.TraceID = traceID
		lc.SpanID = spanID
	}
	return lc
}

// DurationMs returns the duration since StartTime in milliseconds.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
