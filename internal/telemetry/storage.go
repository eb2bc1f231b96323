package telemetry

import (
	"context"
	"io"

	"github.com/arcafs/arca/pkg/storage"
)

// TraceBackend wraps a blob backend so every data operation runs inside a
// span. Callers select code paths by asserting the optional RangeWriter and
// CapacityReporter capabilities, so the wrapper preserves exactly the
// capabilities of the wrapped backend. Returns the backend unchanged when
// telemetry is disabled.
func TraceBackend(name string, b storage.Backend) storage.Backend {
	if !IsEnabled() {
		return b
	}
	tb := &tracedBackend{name: name, inner: b}
	rw, hasRange := b.(storage.RangeWriter)
	reporter, hasCapacity := b.(storage.CapacityReporter)
	switch {
	case hasRange && hasCapacity:
		return &tracedRangeCapacityBackend{
			tracedRangeBackend{tracedBackend: tb, rw: rw},
			reporter,
		}
	case hasRange:
		return &tracedRangeBackend{tracedBackend: tb, rw: rw}
	case hasCapacity:
		return &tracedCapacityBackend{tracedBackend: tb, reporter: reporter}
	default:
		return tb
	}
}

type tracedBackend struct {
	name  string
	inner storage.Backend
}

var _ storage.Backend = (*tracedBackend)(nil)

func (b *tracedBackend) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	ctx, span := StartStorageSpan(ctx, b.name, "open")
	defer span.End()

	rc, err := b.inner.Open(ctx, uri)
	RecordError(ctx, err)
	return rc, err
}

func (b *tracedBackend) OpenRange(ctx context.Context, uri string, offset, length int64) (io.ReadCloser, error) {
	ctx, span := StartStorageSpan(ctx, b.name, "open_range", Offset(offset), Length(length))
	defer span.End()

	rc, err := b.inner.OpenRange(ctx, uri, offset, length)
	RecordError(ctx, err)
	return rc, err
}

func (b *tracedBackend) Save(ctx context.Context, uri string, r io.Reader, opts storage.SaveOptions) (*storage.SaveResult, error) {
	ctx, span := StartStorageSpan(ctx, b.name, "save", Length(opts.ExpectedSize))
	defer span.End()

	result, err := b.inner.Save(ctx, uri, r, opts)
	RecordError(ctx, err)
	return result, err
}

func (b *tracedBackend) Initialize(ctx context.Context, uri string, size int64) error {
	ctx, span := StartStorageSpan(ctx, b.name, "initialize", Length(size))
	defer span.End()

	err := b.inner.Initialize(ctx, uri, size)
	RecordError(ctx, err)
	return err
}

func (b *tracedBackend) Delete(ctx context.Context, uri string) error {
	ctx, span := StartStorageSpan(ctx, b.name, "delete")
	defer span.End()

	err := b.inner.Delete(ctx, uri)
	RecordError(ctx, err)
	return err
}

func (b *tracedBackend) Checksum(ctx context.Context, uri string, algorithm string) (string, error) {
	ctx, span := StartStorageSpan(ctx, b.name, "checksum")
	defer span.End()

	checksum, err := b.inner.Checksum(ctx, uri, algorithm)
	RecordError(ctx, err)
	return checksum, err
}

func (b *tracedBackend) HealthCheck(ctx context.Context) error {
	return b.inner.HealthCheck(ctx)
}

func (b *tracedBackend) Close() error {
	return b.inner.Close()
}

type tracedRangeBackend struct {
	*tracedBackend
	rw storage.RangeWriter
}

var _ storage.RangeWriter = (*tracedRangeBackend)(nil)

func (b *tracedRangeBackend) WriteRange(ctx context.Context, uri string, offset int64, r io.Reader) (int64, error) {
	ctx, span := StartStorageSpan(ctx, b.name, "write_range", Offset(offset))
	defer span.End()

	n, err := b.rw.WriteRange(ctx, uri, offset, r)
	RecordError(ctx, err)
	return n, err
}

type tracedCapacityBackend struct {
	*tracedBackend
	reporter storage.CapacityReporter
}

var _ storage.CapacityReporter = (*tracedCapacityBackend)(nil)

func (b *tracedCapacityBackend) Capacity(ctx context.Context, uri string) (total, free uint64, err error) {
	return b.reporter.Capacity(ctx, uri)
}

type tracedRangeCapacityBackend struct {
	tracedRangeBackend
	reporter storage.CapacityReporter
}

var _ storage.CapacityReporter = (*tracedRangeCapacityBackend)(nil)

func (b *tracedRangeCapacityBackend) Capacity(ctx context.Context, uri string) (total, free uint64, err error) {
	return b.reporter.Capacity(ctx, uri)
}
