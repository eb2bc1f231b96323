// Package storage defines the blob backend contract used by the engine to
// persist object payloads. The metadata catalog only ever sees opaque URIs;
// everything below a URI is the backend's business.
//
// Backends register themselves through Register (usually from an init
// function) and are instantiated once per configured name by the Factory.
// Content addressing, size enforcement and fixity hashing are shared here so
// each backend only implements raw byte transport.
package storage

import (
	"context"
	"io"
)

// SaveOptions controls a single Save call.
type SaveOptions struct {
	// Algorithm selects the fixity digest computed while streaming.
	// Empty selects DefaultAlgorithm.
	Algorithm string

	// SizeLimit rejects streams larger than this many bytes. Zero means
	// unlimited.
	SizeLimit int64

	// ExpectedSize rejects streams that do not end at exactly this many
	// bytes. Zero or negative means the caller does not know the size
	// upfront.
	ExpectedSize int64

	// Progress, when set, receives the cumulative byte count as the
	// stream is consumed. It runs inline on the read path, so it must be
	// cheap and must not block.
	Progress func(bytes int64)
}

// SaveResult reports what a completed Save actually stored.
type SaveResult struct {
	// Size is the number of bytes written.
	Size int64

	// Checksum is the streaming digest in "<algorithm>:<hex>" form.
	Checksum string
}

// Backend stores and retrieves immutable blobs by URI.
//
// Implementations must be safe for concurrent use. URIs are produced by
// MakePath for path-shaped backends or carry their own scheme (s3://, mem://)
// and are stored verbatim in the catalog, so a backend must keep resolving
// URIs it produced in earlier versions.
type Backend interface {
	// Open returns a reader over the full blob.
	Open(ctx context.Context, uri string) (io.ReadCloser, error)

	// OpenRange returns a reader over length bytes starting at offset.
	// A negative length means "to the end of the blob".
	OpenRange(ctx context.Context, uri string, offset, length int64) (io.ReadCloser, error)

	// Save streams r to the URI and reports the byte count and digest.
	// Existing content at the URI is replaced atomically.
	Save(ctx context.Context, uri string, r io.Reader, opts SaveOptions) (*SaveResult, error)

	// Initialize reserves the URI with size zero-filled bytes so ranges of
	// it can be written out of order. Backends that cannot preallocate
	// return ErrNotSupported.
	Initialize(ctx context.Context, uri string, size int64) error

	// Delete removes the blob. Deleting a missing blob returns
	// ErrBlobNotFound.
	Delete(ctx context.Context, uri string) error

	// Checksum re-reads the blob and computes a fresh digest for fixity
	// verification.
	Checksum(ctx context.Context, uri string, algorithm string) (string, error)

	// HealthCheck verifies the backend can serve requests.
	HealthCheck(ctx context.Context) error

	// Close releases backend resources. The backend is unusable afterwards.
	Close() error
}

// RangeWriter is implemented by backends that can write into a preallocated
// blob at arbitrary offsets. The multipart engine probes for it to stitch
// parts in place instead of buffering a merge.
type RangeWriter interface {
	// WriteRange streams r into the blob at offset and returns the number
	// of bytes written.
	WriteRange(ctx context.Context, uri string, offset int64, r io.Reader) (int64, error)
}

// CapacityReporter is implemented by backends with a meaningful notion of
// total and free space, surfaced through location statistics. The URI is a
// location root, not an individual blob.
type CapacityReporter interface {
	Capacity(ctx context.Context, uri string) (total, free uint64, err error)
}
