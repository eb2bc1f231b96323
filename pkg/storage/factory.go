package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// Defaults for the directory fan-out applied to new blob paths. Two leading
// characters per level keeps any single directory below a few hundred
// entries even for millions of files.
const (
	DefaultPathDimensions  = 1
	DefaultPathSplitLength = 2
)

// MakePath builds the storage path for a blob below a location root. The
// first dimensions chunks of splitLength characters from id become nested
// directories, the remainder of id the next component and filename the leaf:
//
//	MakePath("/base", "deadbeef", "data", 2, 2) == "/base/de/ad/beef/data"
//
// The fan-out must leave a non-empty remainder or MakePath errors.
func MakePath(base, id, filename string, dimensions, splitLength int) (string, error) {
	if base == "" || id == "" || filename == "" {
		return "", fmt.Errorf("%w: base, id and filename must be non-empty", ErrInvalidURI)
	}
	if dimensions < 1 || splitLength < 1 {
		return "", fmt.Errorf("%w: dimensions and split length must be positive", ErrInvalidURI)
	}
	if dimensions*splitLength >= len(id) {
		return "", fmt.Errorf("%w: fan-out of %d x %d characters consumes the whole id %q",
			ErrInvalidURI, dimensions, splitLength, id)
	}
	parts := make([]string, 0, dimensions+2)
	for i := 0; i < dimensions; i++ {
		parts = append(parts, id[i*splitLength:(i+1)*splitLength])
	}
	parts = append(parts, id[dimensions*splitLength:], filename)
	return JoinURI(base, parts...), nil
}

// JoinURI joins path elements onto a base that may carry a scheme prefix.
// path.Join alone would collapse the double slash in "s3://".
func JoinURI(base string, elem ...string) string {
	if scheme, rest, ok := strings.Cut(base, "://"); ok {
		return scheme + "://" + path.Join(append([]string{rest}, elem...)...)
	}
	return path.Join(append([]string{base}, elem...)...)
}

// StagedPartURI returns where one part of an open multipart upload is staged
// on backends that cannot write ranges into the final blob. The ".part"
// suffix keeps staging paths outside the fan-out namespace MakePath produces.
func StagedPartURI(fileURI string, partNumber int64) string {
	return fmt.Sprintf("%s.part/%d", fileURI, partNumber)
}

// Factory holds the configured backend instances and resolves them by name.
// Backend names are what the catalog records on locations and file
// instances, so a deployment must keep serving every name it ever wrote.
type Factory struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewFactory returns an empty factory.
func NewFactory() *Factory {
	return &Factory{backends: make(map[string]Backend)}
}

// Add registers a constructed backend under the given name, replacing any
// previous instance with that name.
func (f *Factory) Add(name string, backend Backend) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backends[name] = backend
}

// Get resolves a backend by name.
func (f *Factory) Get(name string) (Backend, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	backend, ok := f.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (configured: %v)", ErrUnknownBackend, name, f.namesLocked())
	}
	return backend, nil
}

// Names returns the configured backend names in sorted order.
func (f *Factory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.namesLocked()
}

func (f *Factory) namesLocked() []string {
	names := make([]string, 0, len(f.backends))
	for name := range f.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HealthCheck pings every configured backend and reports the first failure.
func (f *Factory) HealthCheck(ctx context.Context) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for name, backend := range f.backends {
		if err := backend.HealthCheck(ctx); err != nil {
			return fmt.Errorf("storage backend %q: %w", name, err)
		}
	}
	return nil
}

// Close shuts down all configured backends, returning the combined errors.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for name, backend := range f.backends {
		if err := backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing storage backend %q: %w", name, err))
		}
	}
	f.backends = make(map[string]Backend)
	return errors.Join(errs...)
}
