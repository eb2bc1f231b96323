// Package memory provides an in-memory storage backend for tests and
// development. Blobs are held as byte slices keyed by URI.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/arcafs/arca/pkg/storage"
)

// DriverName is the name the backend registers under.
const DriverName = "memory"

func init() {
	storage.Register(DriverName, func(ctx context.Context, params map[string]any) (storage.Backend, error) {
		return New(), nil
	})
}

// Store is an in-memory implementation of storage.Backend.
type Store struct {
	mu     sync.RWMutex
	blobs  map[string][]byte
	closed bool
}

// New creates a new empty in-memory backend.
func New() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

// Open returns a reader over the full blob.
func (s *Store) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	return s.OpenRange(ctx, uri, 0, -1)
}

// OpenRange returns a reader over a byte range of the blob.
func (s *Store) OpenRange(ctx context.Context, uri string, offset, length int64) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.OpError("open", uri, storage.ErrBackendClosed)
	}
	blob, ok := s.blobs[uri]
	if !ok {
		return nil, storage.OpError("open", uri, storage.ErrBlobNotFound)
	}

	size := int64(len(blob))
	if offset < 0 || offset > size || (offset == size && size > 0) {
		return nil, storage.OpError("open", uri, fmt.Errorf("%w: offset %d of %d bytes", storage.ErrInvalidRange, offset, size))
	}
	if length < 0 || offset+length > size {
		length = size - offset
	}

	// Copy so later writes to the blob cannot leak into open readers.
	section := make([]byte, length)
	copy(section, blob[offset:offset+length])
	return io.NopCloser(bytes.NewReader(section)), nil
}

// Save stores the stream under the URI, replacing any previous content.
func (s *Store) Save(ctx context.Context, uri string, r io.Reader, opts storage.SaveOptions) (*storage.SaveResult, error) {
	if uri == "" {
		return nil, storage.OpError("save", uri, storage.ErrInvalidURI)
	}

	cr, err := storage.NewChecksumReader(r, opts)
	if err != nil {
		return nil, storage.OpError("save", uri, err)
	}
	data, err := io.ReadAll(cr)
	if err != nil {
		return nil, storage.OpError("save", uri, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, storage.OpError("save", uri, storage.ErrBackendClosed)
	}
	s.blobs[uri] = data

	return &storage.SaveResult{Size: cr.Size(), Checksum: cr.Checksum()}, nil
}

// Initialize reserves the URI with size zero bytes.
func (s *Store) Initialize(ctx context.Context, uri string, size int64) error {
	if size < 0 {
		return storage.OpError("initialize", uri, fmt.Errorf("%w: negative size %d", storage.ErrInvalidRange, size))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.OpError("initialize", uri, storage.ErrBackendClosed)
	}
	s.blobs[uri] = make([]byte, size)
	return nil
}

// WriteRange copies the stream into the preallocated blob at offset.
func (s *Store) WriteRange(ctx context.Context, uri string, offset int64, r io.Reader) (int64, error) {
	if offset < 0 {
		return 0, storage.OpError("write-range", uri, fmt.Errorf("%w: negative offset %d", storage.ErrInvalidRange, offset))
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, storage.OpError("write-range", uri, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, storage.OpError("write-range", uri, storage.ErrBackendClosed)
	}
	blob, ok := s.blobs[uri]
	if !ok {
		return 0, storage.OpError("write-range", uri, storage.ErrBlobNotFound)
	}
	if offset+int64(len(data)) > int64(len(blob)) {
		return 0, storage.OpError("write-range", uri, fmt.Errorf("%w: %d bytes at offset %d exceed blob of %d bytes",
			storage.ErrInvalidRange, len(data), offset, len(blob)))
	}
	copy(blob[offset:], data)
	return int64(len(data)), nil
}

// Delete removes the blob.
func (s *Store) Delete(ctx context.Context, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.OpError("delete", uri, storage.ErrBackendClosed)
	}
	if _, ok := s.blobs[uri]; !ok {
		return storage.OpError("delete", uri, storage.ErrBlobNotFound)
	}
	delete(s.blobs, uri)
	return nil
}

// Checksum computes a fresh digest over the stored blob.
func (s *Store) Checksum(ctx context.Context, uri string, algorithm string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", storage.OpError("checksum", uri, storage.ErrBackendClosed)
	}
	blob, ok := s.blobs[uri]
	if !ok {
		return "", storage.OpError("checksum", uri, storage.ErrBlobNotFound)
	}
	h, err := storage.NewHash(algorithm)
	if err != nil {
		return "", storage.OpError("checksum", uri, err)
	}
	h.Write(blob)
	return storage.FormatChecksum(algorithm, h.Sum(nil)), nil
}

// HealthCheck reports whether the backend is usable.
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrBackendClosed
	}
	return nil
}

// Close marks the backend as closed and drops all blobs.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.blobs = nil
	return nil
}

// BlobCount returns the number of stored blobs (for testing).
func (s *Store) BlobCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// TotalSize returns the combined size of all stored blobs (for testing).
func (s *Store) TotalSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, blob := range s.blobs {
		total += int64(len(blob))
	}
	return total
}

// Ensure Store implements the backend contract and range writes.
var (
	_ storage.Backend     = (*Store)(nil)
	_ storage.RangeWriter = (*Store)(nil)
)
