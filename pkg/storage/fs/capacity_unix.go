//go:build linux || darwin

package fs

import (
	"context"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/arcafs/arca/pkg/storage"
)

// Capacity reports total and free bytes on the filesystem holding the
// location root.
func (s *Store) Capacity(ctx context.Context, uri string) (total, free uint64, err error) {
	if s.isClosed() {
		return 0, 0, storage.OpError("capacity", uri, storage.ErrBackendClosed)
	}
	path, err := s.localPath(uri)
	if err != nil {
		return 0, 0, storage.OpError("capacity", uri, err)
	}

	var st unix.Statfs_t
	if err := unix.Statfs(filepath.FromSlash(path), &st); err != nil {
		return 0, 0, storage.OpError("capacity", uri, err)
	}
	total = st.Blocks * uint64(st.Bsize)
	free = st.Bavail * uint64(st.Bsize)
	return total, free, nil
}
