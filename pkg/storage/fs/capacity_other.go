//go:build !linux && !darwin

package fs

import (
	"context"

	"github.com/arcafs/arca/pkg/storage"
)

// Capacity is not available on this platform.
func (s *Store) Capacity(ctx context.Context, uri string) (total, free uint64, err error) {
	return 0, 0, storage.OpError("capacity", uri, storage.ErrNotSupported)
}
