package metrics

import (
	"time"
)

// HTTPMetrics provides observability for the REST API.
//
// Implementations collect request counts, latencies, in-flight gauges and
// body transfer volumes. This interface is optional - pass nil to disable
// metrics collection with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	httpMetrics := prometheus.NewHTTPMetrics()
//	server := api.NewServer(cfg, eng, httpMetrics)
//
//	// Without metrics (pass nil for zero overhead)
//	server := api.NewServer(cfg, eng, nil)
type HTTPMetrics interface {
	// RecordRequest records a completed request with its method, matched
	// route pattern, status code and duration. The route pattern keeps the
	// label cardinality bounded: "/buckets/{bucketID}/{key}", never the
	// raw path.
	//
	// Parameters:
	//   - method: HTTP method ("GET", "PUT", ...)
	//   - route: matched route pattern, or "unmatched" for 404s
	//   - status: response status code
	//   - duration: time taken to serve the request
	RecordRequest(method string, route string, status int, duration time.Duration)

	// RecordRequestStart increments the in-flight request gauge.
	// Should be called when starting to process a request.
	RecordRequestStart(method string)

	// RecordRequestEnd decrements the in-flight request gauge.
	// Should be called when request processing completes.
	RecordRequestEnd(method string)

	// RecordBytesTransferred records body bytes moved over the API.
	//
	// Parameters:
	//   - direction: "in" for request bodies, "out" for response bodies
	//   - bytes: number of body bytes transferred
	RecordBytesTransferred(direction string, bytes int64)
}
