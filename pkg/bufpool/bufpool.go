// Package bufpool pools byte slices for bulk copy loops. Fixity digests
// re-read entire blobs through a scratch buffer per file; pooling those
// buffers keeps scheduled verification sweeps from churning the heap.
//
// Buffers come in three size classes so small reads do not pin megabyte
// slices. Requests above the large class allocate directly and are never
// pooled, so an occasional oversized transfer cannot park memory for good.
package bufpool

import (
	"sync"
)

// Default size classes. NewPool accepts overrides.
const (
	// DefaultSmallSize covers probes and header-sized reads (4KB).
	DefaultSmallSize = 4 << 10

	// DefaultMediumSize covers metadata-sized payloads (64KB).
	DefaultMediumSize = 64 << 10

	// DefaultLargeSize covers bulk blob copies (1MB).
	DefaultLargeSize = 1 << 20
)

// Pool manages byte slice pools organized by size class. It selects the
// smallest class that fits a request and falls back to direct allocation
// for oversized ones.
type Pool struct {
	small      sync.Pool
	medium     sync.Pool
	large      sync.Pool
	smallSize  int
	mediumSize int
	largeSize  int
}

// Config overrides the pool size classes. Zero fields keep the defaults.
type Config struct {
	SmallSize  int
	MediumSize int
	LargeSize  int
}

// NewPool creates a buffer pool. A nil config uses the default classes.
func NewPool(cfg *Config) *Pool {
	if cfg == nil {
		cfg = &Config{}
	}
	p := &Pool{
		smallSize:  cfg.SmallSize,
		mediumSize: cfg.MediumSize,
		largeSize:  cfg.LargeSize,
	}
	if p.smallSize <= 0 {
		p.smallSize = DefaultSmallSize
	}
	if p.mediumSize <= 0 {
		p.mediumSize = DefaultMediumSize
	}
	if p.largeSize <= 0 {
		p.largeSize = DefaultLargeSize
	}

	// Pools hold *[]byte so Put does not allocate a header per return.
	p.small = sync.Pool{
		New: func() any {
			buf := make([]byte, p.smallSize)
			return &buf
		},
	}
	p.medium = sync.Pool{
		New: func() any {
			buf := make([]byte, p.mediumSize)
			return &buf
		},
	}
	p.large = sync.Pool{
		New: func() any {
			buf := make([]byte, p.largeSize)
			return &buf
		},
	}
	return p
}

// Get returns a slice of exactly size bytes, backed by a pooled buffer when
// one of the classes fits. The caller must hand the slice back with Put.
// Sizes above the large class allocate directly and are never pooled.
func (p *Pool) Get(size int) []byte {
	var bufPtr *[]byte
	switch {
	case size <= p.smallSize:
		bufPtr = p.small.Get().(*[]byte)
	case size <= p.mediumSize:
		bufPtr = p.medium.Get().(*[]byte)
	case size <= p.largeSize:
		bufPtr = p.large.Get().(*[]byte)
	default:
		return make([]byte, size)
	}
	return (*bufPtr)[:size]
}

// Put returns a buffer obtained from Get. Oversized buffers fall through to
// the garbage collector; anything whose capacity does not match a class is
// dropped rather than poisoning a pool.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	full := buf[:cap(buf)]
	switch cap(buf) {
	case p.smallSize:
		p.small.Put(&full)
	case p.mediumSize:
		p.medium.Put(&full)
	case p.largeSize:
		p.large.Put(&full)
	}
}

// globalPool serves the package-level Get/Put with the default classes.
var globalPool = NewPool(nil)

// Get returns a slice of at least size bytes from the shared pool.
//
//	buf := bufpool.Get(size)
//	defer bufpool.Put(buf)
func Get(size int) []byte {
	return globalPool.Get(size)
}

// Put returns a buffer to the shared pool.
func Put(buf []byte) {
	globalPool.Put(buf)
}
