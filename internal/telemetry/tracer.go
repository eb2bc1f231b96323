package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for object store operations.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// ========================================================================
	// HTTP attributes
	// ========================================================================
	AttrHTTPMethod = "http.request.method"
	AttrHTTPRoute  = "http.route"
	AttrHTTPStatus = "http.response.status_code"

	// ========================================================================
	// Object attributes
	// ========================================================================
	AttrBucket    = "object.bucket"
	AttrKey       = "object.key"
	AttrVersionID = "object.version_id"
	AttrSize      = "object.size"
	AttrMimetype  = "object.mimetype"

	// ========================================================================
	// File instance attributes
	// ========================================================================
	AttrFileID   = "file.id"
	AttrChecksum = "file.checksum"
	AttrURI      = "file.uri"

	// ========================================================================
	// Multipart attributes
	// ========================================================================
	AttrUploadID   = "multipart.upload_id"
	AttrPartNumber = "multipart.part_number"
	AttrChunkSize  = "multipart.chunk_size"

	// ========================================================================
	// Storage backend attributes
	// ========================================================================
	AttrBackend      = "storage.backend"
	AttrOperation    = "storage.operation"
	AttrLocation     = "storage.location"
	AttrStorageClass = "storage.class"
	AttrOffset       = "storage.offset"
	AttrLength       = "storage.length"

	// ========================================================================
	// Task attributes
	// ========================================================================
	AttrTaskKind    = "task.kind"
	AttrTaskID      = "task.id"
	AttrTaskAttempt = "task.attempt"

	// ========================================================================
	// User/Auth attributes
	// ========================================================================
	AttrUsername = "user.name"
	AttrRole     = "user.role"
	AttrAuth     = "auth.method"
)

// Span names for operations.
// Format: <component>.<operation>
const (
	// Root span for REST request processing
	SpanHTTPRequest = "http.request"

	// Engine operations
	SpanUpload            = "engine.upload"
	SpanDownload          = "engine.download"
	SpanStat              = "engine.stat"
	SpanDelete            = "engine.delete"
	SpanDeleteVersion     = "engine.delete_version"
	SpanCopy              = "engine.copy"
	SpanSnapshot          = "engine.snapshot"
	SpanMultipartInitiate = "engine.multipart_initiate"
	SpanMultipartPart     = "engine.multipart_part"
	SpanMultipartComplete = "engine.multipart_complete"
	SpanMultipartAbort    = "engine.multipart_abort"

	// Storage backend operations
	SpanStorageOpen       = "storage.open"
	SpanStorageSave       = "storage.save"
	SpanStorageDelete     = "storage.delete"
	SpanStorageChecksum   = "storage.checksum"
	SpanStorageWriteRange = "storage.write_range"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// HTTPMethod returns an attribute for the HTTP request method
func HTTPMethod(method string) attribute.KeyValue {
	return attribute.String(AttrHTTPMethod, method)
}

// HTTPRoute returns an attribute for the matched route pattern
func HTTPRoute(route string) attribute.KeyValue {
	return attribute.String(AttrHTTPRoute, route)
}

// HTTPStatus returns an attribute for the response status code
func HTTPStatus(status int) attribute.KeyValue {
	return attribute.Int(AttrHTTPStatus, status)
}

// Bucket returns an attribute for the bucket id
func Bucket(id string) attribute.KeyValue {
	return attribute.String(AttrBucket, id)
}

// Key returns an attribute for the object key
func Key(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// VersionID returns an attribute for the object version id
func VersionID(id string) attribute.KeyValue {
	return attribute.String(AttrVersionID, id)
}

// ObjectSize returns an attribute for the object size in bytes
func ObjectSize(size int64) attribute.KeyValue {
	return attribute.Int64(AttrSize, size)
}

// Mimetype returns an attribute for the object mimetype
func Mimetype(mt string) attribute.KeyValue {
	return attribute.String(AttrMimetype, mt)
}

// FileID returns an attribute for the file instance id
func FileID(id string) attribute.KeyValue {
	return attribute.String(AttrFileID, id)
}

// Checksum returns an attribute for a fixity checksum
func Checksum(sum string) attribute.KeyValue {
	return attribute.String(AttrChecksum, sum)
}

// UploadID returns an attribute for the multipart upload id
func UploadID(id string) attribute.KeyValue {
	return attribute.String(AttrUploadID, id)
}

// PartNumber returns an attribute for a multipart part number
func PartNumber(n int64) attribute.KeyValue {
	return attribute.Int64(AttrPartNumber, n)
}

// ChunkSize returns an attribute for the multipart chunk size
func ChunkSize(size int64) attribute.KeyValue {
	return attribute.Int64(AttrChunkSize, size)
}

// Backend returns an attribute for the storage backend name
func Backend(name string) attribute.KeyValue {
	return attribute.String(AttrBackend, name)
}

// Location returns an attribute for the storage location name
func Location(name string) attribute.KeyValue {
	return attribute.String(AttrLocation, name)
}

// StorageClass returns an attribute for the storage class
func StorageClass(class string) attribute.KeyValue {
	return attribute.String(AttrStorageClass, class)
}

// Offset returns an attribute for a byte offset
func Offset(offset int64) attribute.KeyValue {
	return attribute.Int64(AttrOffset, offset)
}

// Length returns an attribute for a byte length
func Length(length int64) attribute.KeyValue {
	return attribute.Int64(AttrLength, length)
}

// TaskKind returns an attribute for a background task kind
func TaskKind(kind string) attribute.KeyValue {
	return attribute.String(AttrTaskKind, kind)
}

// TaskID returns an attribute for a background task id
func TaskID(id string) attribute.KeyValue {
	return attribute.String(AttrTaskID, id)
}

// TaskAttempt returns an attribute for a task attempt number
func TaskAttempt(attempt int) attribute.KeyValue {
	return attribute.Int(AttrTaskAttempt, attempt)
}

// Username returns an attribute for the authenticated principal
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// Role returns an attribute for the principal's role
func Role(role string) attribute.KeyValue {
	return attribute.String(AttrRole, role)
}

// AuthMethod returns an attribute for authentication method
func AuthMethod(method string) attribute.KeyValue {
	return attribute.String(AttrAuth, method)
}

// StartEngineSpan starts a span for an engine operation. The operation is
// the suffix after "engine.".
func StartEngineSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "engine."+operation, trace.WithAttributes(attrs...))
}

// StartStorageSpan starts a span for a blob backend operation.
func StartStorageSpan(ctx context.Context, backend, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Backend(backend),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "storage."+operation, trace.WithAttributes(allAttrs...))
}

// StartTaskSpan starts a span for a background task run.
func StartTaskSpan(ctx context.Context, kind, id string, attempt int, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		TaskKind(kind),
		TaskID(id),
		TaskAttempt(attempt),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "task."+kind, trace.WithAttributes(allAttrs...))
}
