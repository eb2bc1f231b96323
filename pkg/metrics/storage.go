package metrics

import (
	"context"
	"io"
	"time"

	"github.com/arcafs/arca/pkg/storage"
)

// StorageMetrics provides observability for blob backend operations.
//
// This interface is optional - pass nil to disable metrics collection with
// zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	storageMetrics := prometheus.NewStorageMetrics()
//	backends.Add(name, metrics.InstrumentBackend(name, backend, storageMetrics))
//
//	// Without metrics (the backend is returned unwrapped)
//	backends.Add(name, metrics.InstrumentBackend(name, backend, nil))
type StorageMetrics interface {
	// ObserveOperation records one backend call with its duration and
	// outcome.
	//
	// Parameters:
	//   - backend: configured backend name (e.g. "fs", "s3")
	//   - operation: backend operation ("open", "save", "delete", ...)
	//   - duration: time the call took
	//   - err: the call's error, nil on success
	ObserveOperation(backend string, operation string, duration time.Duration, err error)

	// RecordBytes records payload bytes moved by a backend call.
	//
	// Parameters:
	//   - backend: configured backend name
	//   - direction: "read" or "write"
	//   - bytes: number of payload bytes
	RecordBytes(backend string, direction string, bytes int64)
}

// InstrumentBackend wraps a blob backend so every data operation is timed
// and its payload bytes counted. Callers select code paths by asserting the
// optional RangeWriter and CapacityReporter capabilities, so the wrapper
// preserves exactly the capabilities of the wrapped backend. Returns the
// backend unchanged when m is nil.
func InstrumentBackend(name string, b storage.Backend, m StorageMetrics) storage.Backend {
	if m == nil {
		return b
	}
	ib := &instrumentedBackend{name: name, inner: b, m: m}
	rw, hasRange := b.(storage.RangeWriter)
	reporter, hasCapacity := b.(storage.CapacityReporter)
	switch {
	case hasRange && hasCapacity:
		return &instrumentedRangeCapacityBackend{
			instrumentedRangeBackend{instrumentedBackend: ib, rw: rw},
			reporter,
		}
	case hasRange:
		return &instrumentedRangeBackend{instrumentedBackend: ib, rw: rw}
	case hasCapacity:
		return &instrumentedCapacityBackend{instrumentedBackend: ib, reporter: reporter}
	default:
		return ib
	}
}

type instrumentedBackend struct {
	name  string
	inner storage.Backend
	m     StorageMetrics
}

var _ storage.Backend = (*instrumentedBackend)(nil)

func (b *instrumentedBackend) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := b.inner.Open(ctx, uri)
	b.m.ObserveOperation(b.name, "open", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return &countingReadCloser{ReadCloser: rc, backend: b.name, m: b.m}, nil
}

func (b *instrumentedBackend) OpenRange(ctx context.Context, uri string, offset, length int64) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := b.inner.OpenRange(ctx, uri, offset, length)
	b.m.ObserveOperation(b.name, "open-range", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return &countingReadCloser{ReadCloser: rc, backend: b.name, m: b.m}, nil
}

func (b *instrumentedBackend) Save(ctx context.Context, uri string, r io.Reader, opts storage.SaveOptions) (*storage.SaveResult, error) {
	start := time.Now()
	result, err := b.inner.Save(ctx, uri, r, opts)
	b.m.ObserveOperation(b.name, "save", time.Since(start), err)
	if err == nil {
		b.m.RecordBytes(b.name, "write", result.Size)
	}
	return result, err
}

func (b *instrumentedBackend) Initialize(ctx context.Context, uri string, size int64) error {
	start := time.Now()
	err := b.inner.Initialize(ctx, uri, size)
	b.m.ObserveOperation(b.name, "initialize", time.Since(start), err)
	return err
}

func (b *instrumentedBackend) Delete(ctx context.Context, uri string) error {
	start := time.Now()
	err := b.inner.Delete(ctx, uri)
	b.m.ObserveOperation(b.name, "delete", time.Since(start), err)
	return err
}

func (b *instrumentedBackend) Checksum(ctx context.Context, uri string, algorithm string) (string, error) {
	start := time.Now()
	checksum, err := b.inner.Checksum(ctx, uri, algorithm)
	b.m.ObserveOperation(b.name, "checksum", time.Since(start), err)
	return checksum, err
}

// HealthCheck and Close are lifecycle calls, not data operations; they pass
// through unobserved.

func (b *instrumentedBackend) HealthCheck(ctx context.Context) error {
	return b.inner.HealthCheck(ctx)
}

func (b *instrumentedBackend) Close() error {
	return b.inner.Close()
}

type instrumentedRangeBackend struct {
	*instrumentedBackend
	rw storage.RangeWriter
}

var _ storage.RangeWriter = (*instrumentedRangeBackend)(nil)

func (b *instrumentedRangeBackend) WriteRange(ctx context.Context, uri string, offset int64, r io.Reader) (int64, error) {
	start := time.Now()
	n, err := b.rw.WriteRange(ctx, uri, offset, r)
	b.m.ObserveOperation(b.name, "write-range", time.Since(start), err)
	if n > 0 {
		b.m.RecordBytes(b.name, "write", n)
	}
	return n, err
}

type instrumentedCapacityBackend struct {
	*instrumentedBackend
	reporter storage.CapacityReporter
}

var _ storage.CapacityReporter = (*instrumentedCapacityBackend)(nil)

func (b *instrumentedCapacityBackend) Capacity(ctx context.Context, uri string) (total, free uint64, err error) {
	return b.reporter.Capacity(ctx, uri)
}

type instrumentedRangeCapacityBackend struct {
	instrumentedRangeBackend
	reporter storage.CapacityReporter
}

var _ storage.CapacityReporter = (*instrumentedRangeCapacityBackend)(nil)

func (b *instrumentedRangeCapacityBackend) Capacity(ctx context.Context, uri string) (total, free uint64, err error) {
	return b.reporter.Capacity(ctx, uri)
}

// countingReadCloser reports the bytes drained from a download stream once,
// when the stream is closed.
type countingReadCloser struct {
	io.ReadCloser
	backend  string
	m        StorageMetrics
	n        int64
	reported bool
}

func (c *countingReadCloser) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReadCloser) Close() error {
	if !c.reported {
		c.reported = true
		c.m.RecordBytes(c.backend, "read", c.n)
	}
	return c.ReadCloser.Close()
}
