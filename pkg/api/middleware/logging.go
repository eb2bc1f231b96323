package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/arcafs/arca/internal/logger"
	"github.com/arcafs/arca/internal/telemetry"
)

// RequestLogger logs one line per request and installs the request-scoped
// LogContext that handlers annotate along the way.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, bytes, duration
//   - Health and metrics probes are logged at DEBUG level to reduce noise
//
// The completion line goes through the *Ctx logger so the principal and the
// addressed bucket/key annotated by the handlers appear on it.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lc := logger.NewLogContext(clientIP(r))
		lc.RequestID = chimiddleware.GetReqID(r.Context())
		if telemetry.IsEnabled() {
			lc.WithTrace(telemetry.TraceID(r.Context()), telemetry.SpanID(r.Context()))
		}
		ctx := logger.WithContext(r.Context(), lc)
		r = r.WithContext(ctx)

		logger.DebugCtx(ctx, "Request started",
			"method", r.Method,
			"path", r.URL.Path,
		)

		// Wrap response writer to capture status code and bytes written
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		}

		// Probes fire every few seconds; keep them out of INFO logs
		if isProbePath(r.URL.Path) {
			logger.DebugCtx(ctx, "Request completed", logArgs...)
		} else {
			logger.InfoCtx(ctx, "Request completed", logArgs...)
		}
	})
}

// isProbePath reports whether the path is a health or metrics endpoint.
func isProbePath(path string) bool {
	return path == "/healthz" || strings.HasPrefix(path, "/healthz/") || path == "/metrics"
}

// clientIP strips the port from the remote address. The RealIP middleware
// has already replaced it with the forwarded address when one was present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
