package telemetry

// Config carries the OTLP exporter settings for Init. The server builds it
// from the telemetry section of the config file; tests construct it
// directly.
type Config struct {
	// Enabled switches tracing on. When false Init installs no-ops and
	// never dials the collector.
	Enabled bool

	// ServiceName and ServiceVersion identify this process in the trace
	// backend.
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP gRPC collector address as host:port.
	Endpoint string

	// Insecure dials the collector without TLS. Fine for a sidecar
	// collector, not for anything that crosses a network boundary.
	Insecure bool

	// SampleRate is the fraction of traces to keep, clamped to [0, 1].
	SampleRate float64
}

// DefaultConfig returns the settings used when the config file has no
// telemetry section: tracing off, pointed at a local collector on the
// standard OTLP gRPC port.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "arca",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}
