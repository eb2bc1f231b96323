package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/arcafs/arca/pkg/metrics"
)

// Metrics records request counts, durations, in-flight gauges and body
// volumes. A nil collector returns a pass-through middleware so the chain
// can be assembled unconditionally.
//
// Requests are labeled with the chi route pattern, not the raw path, to
// keep metric cardinality bounded.
func Metrics(m metrics.HTTPMetrics) func(http.Handler) http.Handler {
	if m == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.RecordRequestStart(r.Method)
			defer m.RecordRequestEnd(r.Method)

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			m.RecordRequest(r.Method, routePattern(r), ww.Status(), time.Since(start))
			if r.ContentLength > 0 {
				m.RecordBytesTransferred("in", r.ContentLength)
			}
			if n := ww.BytesWritten(); n > 0 {
				m.RecordBytesTransferred("out", int64(n))
			}
		})
	}
}

// routePattern returns the chi route pattern matched by the request. The
// pattern is only known after routing, so this must run inside the router's
// middleware chain (r.Use), not around the router.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "unmatched"
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return "unmatched"
}
