package logger

// Standard field keys for structured logging. Using the same keys everywhere
// keeps log aggregation and querying sane.
const (
	// Tracing and request correlation.
	KeyTraceID   = "trace_id"
	KeySpanID    = "span_id"
	KeyRequestID = "request_id"

	// HTTP surface.
	KeyMethod    = "method"
	KeyPath      = "path"
	KeyStatus    = "status"
	KeyClientIP  = "client_ip"
	KeyPrincipal = "principal"

	// Catalog entities.
	KeyBucket    = "bucket"
	KeyObjectKey = "key"
	KeyVersionID = "version_id"
	KeyFileID    = "file_id"
	KeyUploadID  = "upload_id"
	KeyLocation  = "location"

	// Storage backends.
	KeyBackend  = "backend"
	KeyURI      = "uri"
	KeySize     = "size"
	KeyChecksum = "checksum"

	// I/O.
	KeyBytesRead    = "bytes_read"
	KeyBytesWritten = "bytes_written"
	KeyOffset       = "offset"
	KeyPartNumber   = "part_number"

	// Background tasks.
	KeyTask     = "task"
	KeyTaskID   = "task_id"
	KeyAttempts = "attempts"

	// Operation metadata.
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)
