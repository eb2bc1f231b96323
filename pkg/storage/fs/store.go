// Package fs provides a filesystem-backed storage backend. Blob URIs are
// absolute paths produced by storage.MakePath below a location root.
package fs

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/arcafs/arca/pkg/bufpool"
	"github.com/arcafs/arca/pkg/storage"
)

// DriverName is the name the backend registers under.
const DriverName = "fs"

func init() {
	storage.Register(DriverName, func(ctx context.Context, params map[string]any) (storage.Backend, error) {
		var cfg Config
		if err := mapstructure.Decode(params, &cfg); err != nil {
			return nil, fmt.Errorf("decoding fs storage config: %w", err)
		}
		return New(cfg)
	})
}

// Store is a filesystem-backed implementation of storage.Backend.
type Store struct {
	mu     sync.RWMutex
	root   string
	closed bool

	dirMode  os.FileMode
	fileMode os.FileMode
}

// Config holds configuration for the filesystem backend.
type Config struct {
	// Root restricts the backend to paths below this directory. Empty
	// allows any absolute path the catalog hands out.
	Root string `mapstructure:"root"`

	// CreateDir creates the root directory if it doesn't exist.
	// Default: true when Root is set.
	CreateDir bool `mapstructure:"create_dir"`

	// DirMode is the permission mode for created directories.
	// Default: 0755
	DirMode os.FileMode `mapstructure:"-"`

	// FileMode is the permission mode for created files.
	// Default: 0644
	FileMode os.FileMode `mapstructure:"-"`
}

// DefaultConfig returns the default configuration for a root directory.
func DefaultConfig(root string) Config {
	return Config{
		Root:      root,
		CreateDir: true,
		DirMode:   0755,
		FileMode:  0644,
	}
}

// New creates a new filesystem backend with the given configuration.
func New(cfg Config) (*Store, error) {
	if cfg.DirMode == 0 {
		cfg.DirMode = 0755
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0644
	}

	if cfg.Root != "" {
		if cfg.CreateDir {
			if err := os.MkdirAll(cfg.Root, cfg.DirMode); err != nil {
				return nil, err
			}
		}
		info, err := os.Stat(cfg.Root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, errors.New("storage root is not a directory")
		}
	}

	return &Store{
		root:     cfg.Root,
		dirMode:  cfg.DirMode,
		fileMode: cfg.FileMode,
	}, nil
}

// NewWithRoot creates a new filesystem backend with default configuration.
func NewWithRoot(root string) (*Store, error) {
	return New(DefaultConfig(root))
}

// localPath maps a blob URI onto the local filesystem. URIs use forward
// slashes as separators regardless of platform.
func (s *Store) localPath(uri string) (string, error) {
	if uri == "" {
		return "", storage.ErrInvalidURI
	}
	path := filepath.Clean(filepath.FromSlash(uri))
	if s.root != "" {
		rel, err := filepath.Rel(s.root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: %q escapes storage root %q", storage.ErrInvalidURI, uri, s.root)
		}
	}
	return path, nil
}

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Open returns a reader over the full blob.
func (s *Store) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	return s.OpenRange(ctx, uri, 0, -1)
}

// OpenRange returns a reader over a byte range of the blob.
func (s *Store) OpenRange(ctx context.Context, uri string, offset, length int64) (io.ReadCloser, error) {
	if s.isClosed() {
		return nil, storage.OpError("open", uri, storage.ErrBackendClosed)
	}
	path, err := s.localPath(uri)
	if err != nil {
		return nil, storage.OpError("open", uri, err)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.OpError("open", uri, storage.ErrBlobNotFound)
		}
		return nil, storage.OpError("open", uri, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, storage.OpError("open", uri, err)
	}
	size := info.Size()

	if offset < 0 || offset > size || (offset == size && size > 0) {
		f.Close()
		return nil, storage.OpError("open", uri, fmt.Errorf("%w: offset %d of %d bytes", storage.ErrInvalidRange, offset, size))
	}
	if length < 0 || offset+length > size {
		length = size - offset
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, storage.OpError("open", uri, err)
	}

	return &rangeReader{Reader: io.LimitReader(f, length), f: f}, nil
}

type rangeReader struct {
	io.Reader
	f *os.File
}

func (r *rangeReader) Close() error {
	return r.f.Close()
}

// Save streams r to the URI, writing through a temporary file so a crashed
// upload never leaves a partial blob behind.
func (s *Store) Save(ctx context.Context, uri string, r io.Reader, opts storage.SaveOptions) (*storage.SaveResult, error) {
	if s.isClosed() {
		return nil, storage.OpError("save", uri, storage.ErrBackendClosed)
	}
	path, err := s.localPath(uri)
	if err != nil {
		return nil, storage.OpError("save", uri, err)
	}

	cr, err := storage.NewChecksumReader(r, opts)
	if err != nil {
		return nil, storage.OpError("save", uri, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, s.dirMode); err != nil {
		return nil, storage.OpError("save", uri, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+"-*.tmp")
	if err != nil {
		return nil, storage.OpError("save", uri, err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, cr); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, storage.OpError("save", uri, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, storage.OpError("save", uri, err)
	}
	if err := os.Chmod(tmpPath, s.fileMode); err != nil {
		os.Remove(tmpPath)
		return nil, storage.OpError("save", uri, err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return nil, storage.OpError("save", uri, err)
	}

	return &storage.SaveResult{Size: cr.Size(), Checksum: cr.Checksum()}, nil
}

// Initialize preallocates the blob so ranges of it can be written out of
// order.
func (s *Store) Initialize(ctx context.Context, uri string, size int64) error {
	if s.isClosed() {
		return storage.OpError("initialize", uri, storage.ErrBackendClosed)
	}
	if size < 0 {
		return storage.OpError("initialize", uri, fmt.Errorf("%w: negative size %d", storage.ErrInvalidRange, size))
	}
	path, err := s.localPath(uri)
	if err != nil {
		return storage.OpError("initialize", uri, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), s.dirMode); err != nil {
		return storage.OpError("initialize", uri, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, s.fileMode)
	if err != nil {
		return storage.OpError("initialize", uri, err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		os.Remove(path)
		return storage.OpError("initialize", uri, err)
	}
	if err := f.Close(); err != nil {
		return storage.OpError("initialize", uri, err)
	}
	return nil
}

// WriteRange streams r into the preallocated blob at offset.
func (s *Store) WriteRange(ctx context.Context, uri string, offset int64, r io.Reader) (int64, error) {
	if s.isClosed() {
		return 0, storage.OpError("write-range", uri, storage.ErrBackendClosed)
	}
	if offset < 0 {
		return 0, storage.OpError("write-range", uri, fmt.Errorf("%w: negative offset %d", storage.ErrInvalidRange, offset))
	}
	path, err := s.localPath(uri)
	if err != nil {
		return 0, storage.OpError("write-range", uri, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY, s.fileMode)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, storage.OpError("write-range", uri, storage.ErrBlobNotFound)
		}
		return 0, storage.OpError("write-range", uri, err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, storage.OpError("write-range", uri, err)
	}
	n, err := io.Copy(f, r)
	if err != nil {
		return n, storage.OpError("write-range", uri, err)
	}
	return n, nil
}

// Delete removes the blob and prunes its now-empty parent directories.
func (s *Store) Delete(ctx context.Context, uri string) error {
	if s.isClosed() {
		return storage.OpError("delete", uri, storage.ErrBackendClosed)
	}
	path, err := s.localPath(uri)
	if err != nil {
		return storage.OpError("delete", uri, err)
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return storage.OpError("delete", uri, storage.ErrBlobNotFound)
		}
		return storage.OpError("delete", uri, err)
	}

	s.cleanEmptyDirs(filepath.Dir(path))
	return nil
}

// cleanEmptyDirs removes empty directories up to the storage root. Without
// a configured root only the immediate parent is pruned, since the location
// boundary is not known here.
func (s *Store) cleanEmptyDirs(dir string) {
	if s.root == "" {
		os.Remove(dir)
		return
	}
	for dir != s.root && strings.HasPrefix(dir, s.root) {
		if err := os.Remove(dir); err != nil {
			// Directory not empty or other error, stop
			break
		}
		dir = filepath.Dir(dir)
	}
}

// Checksum re-reads the blob and computes a fresh digest.
func (s *Store) Checksum(ctx context.Context, uri string, algorithm string) (string, error) {
	if s.isClosed() {
		return "", storage.OpError("checksum", uri, storage.ErrBackendClosed)
	}
	path, err := s.localPath(uri)
	if err != nil {
		return "", storage.OpError("checksum", uri, err)
	}

	var h hash.Hash
	if h, err = storage.NewHash(algorithm); err != nil {
		return "", storage.OpError("checksum", uri, err)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", storage.OpError("checksum", uri, storage.ErrBlobNotFound)
		}
		return "", storage.OpError("checksum", uri, err)
	}
	defer f.Close()

	// Fixity sweeps digest every readable blob; a pooled buffer keeps the
	// loop from allocating per file.
	buf := bufpool.Get(bufpool.DefaultLargeSize)
	defer bufpool.Put(buf)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", storage.OpError("checksum", uri, err)
	}
	return storage.FormatChecksum(algorithm, h.Sum(nil)), nil
}

// HealthCheck verifies the backend is accessible and operational.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.isClosed() {
		return storage.ErrBackendClosed
	}
	if s.root != "" {
		if _, err := os.Stat(s.root); err != nil {
			return err
		}
	}
	return nil
}

// Close marks the backend as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Root returns the configured storage root (for testing).
func (s *Store) Root() string {
	return s.root
}

// Ensure Store implements the backend contract and its capabilities.
var (
	_ storage.Backend          = (*Store)(nil)
	_ storage.RangeWriter      = (*Store)(nil)
	_ storage.CapacityReporter = (*Store)(nil)
)
