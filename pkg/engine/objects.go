package engine

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/arcafs/arca/internal/logger"
	"github.com/arcafs/arca/internal/telemetry"
	"github.com/arcafs/arca/pkg/models"
	"github.com/arcafs/arca/pkg/signals"
	"github.com/arcafs/arca/pkg/storage"
	"github.com/arcafs/arca/pkg/store"
	"github.com/arcafs/arca/pkg/tasks"
)

// ============================================================================
// UPLOAD
// ============================================================================

// UploadOptions carries the client-declared properties of an upload.
type UploadOptions struct {
	// ContentLength is the exact body size in bytes. Required; uploads
	// without a declared length are rejected.
	ContentLength int64

	// ContentMD5 optionally pins the expected body digest, hex or base64
	// encoded. The upload fails if the stored content hashes differently.
	ContentMD5 string

	// Mimetype overrides the content type guessed from the key extension.
	Mimetype string
}

// UploadObject stores body as the new head version of (bucket, key).
//
// Space is reserved against the bucket quota before any byte is written, the
// content lands in the backend under a fresh file instance, and only then is
// the version published. A failure at any step unwinds the previous ones, so
// a crashed upload leaves at worst an orphaned file instance for maintenance
// to sweep, never a version pointing at missing content.
func (e *Engine) UploadObject(ctx context.Context, bucketID, key string, body io.Reader, opts UploadOptions) (_ *models.ObjectVersion, err error) {
	ctx, span := telemetry.StartEngineSpan(ctx, "upload",
		telemetry.Bucket(bucketID),
		telemetry.Key(key),
		telemetry.ObjectSize(opts.ContentLength))
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
		span.End()
	}()

	bucket, err := e.mutableBucket(ctx, bucketID)
	if err != nil {
		return nil, err
	}
	if err := e.validateKey(key); err != nil {
		return nil, err
	}

	size := opts.ContentLength
	if size < 0 {
		return nil, fmt.Errorf("%w: content length is required", models.ErrInvalidOperation)
	}
	if size < e.cfg.MinFileSize {
		return nil, fmt.Errorf("%w: %d bytes is below the %d byte minimum",
			models.ErrFileSize, size, e.cfg.MinFileSize)
	}
	if limit := e.effectiveFileLimit(bucket); limit > 0 && size > limit {
		return nil, fmt.Errorf("%w: %d bytes exceeds the %d byte file limit",
			models.ErrFileSize, size, limit)
	}

	var wantMD5 string
	if opts.ContentMD5 != "" {
		if wantMD5, err = normalizeMD5(opts.ContentMD5); err != nil {
			return nil, err
		}
	}

	if err := e.store.ReserveBucketSpace(ctx, bucket.ID, size, e.effectiveQuota(bucket)); err != nil {
		return nil, err
	}

	file, backend, err := e.newFileForBucket(ctx, bucket)
	if err != nil {
		e.releaseSpace(ctx, bucket.ID, size)
		return nil, err
	}
	if _, err := e.store.CreateFileInstance(ctx, file); err != nil {
		e.releaseSpace(ctx, bucket.ID, size)
		return nil, err
	}

	result, err := backend.Save(ctx, *file.URI, body, storage.SaveOptions{
		Algorithm:    e.cfg.ChecksumAlgorithm,
		ExpectedSize: size,
	})
	if err != nil {
		e.discardFile(ctx, bucket.ID, file, size)
		if errors.Is(err, storage.ErrSizeMismatch) {
			return nil, fmt.Errorf("%w: %v", models.ErrUnexpectedFileSize, err)
		}
		return nil, err
	}

	if wantMD5 != "" {
		if _, digest, _ := storage.ParseChecksum(result.Checksum); digest != wantMD5 {
			e.deleteBlob(ctx, backend, *file.URI)
			e.discardFile(ctx, bucket.ID, file, size)
			return nil, fmt.Errorf("%w: body digest %s does not match Content-MD5 %s",
				models.ErrChecksumMismatch, digest, wantMD5)
		}
	}

	if err := file.MarkStored(*file.URI, result.Size, result.Checksum); err != nil {
		e.deleteBlob(ctx, backend, *file.URI)
		e.discardFile(ctx, bucket.ID, file, size)
		return nil, err
	}
	if err := e.store.MarkFileStored(ctx, file); err != nil {
		e.deleteBlob(ctx, backend, *file.URI)
		e.discardFile(ctx, bucket.ID, file, size)
		return nil, err
	}

	version := &models.ObjectVersion{
		BucketID: bucket.ID,
		Key:      key,
		FileID:   &file.ID,
		Mimetype: resolveMimetype(opts.Mimetype, key),
		IsHead:   true,
	}
	if err := e.publishHead(ctx, version); err != nil {
		// The content is stored and sound but unnamed. Return the space
		// and let the removal task reclaim the bytes.
		e.releaseSpace(ctx, bucket.ID, size)
		e.enqueue(ctx, tasks.KindRemoveFileData, tasks.RemoveFileDataPayload{FileID: file.ID, Force: true})
		return nil, err
	}
	version.File = file

	logger.InfoCtx(ctx, "object uploaded",
		"bucket", bucket.ID,
		"key", key,
		"version", version.VersionID,
		"size", result.Size,
		"checksum", result.Checksum)
	return version, nil
}

// ============================================================================
// DOWNLOAD
// ============================================================================

// Download is an open ticket for one object's content. The catalog work is
// done; Open or OpenRange start the actual byte stream.
type Download struct {
	Version *models.ObjectVersion
	File    *models.FileInstance

	backend storage.Backend
	signals *signals.Hub
	once    sync.Once
}

// Open returns the full content stream.
func (d *Download) Open(ctx context.Context) (io.ReadCloser, error) {
	rc, err := d.backend.Open(ctx, *d.File.URI)
	if err != nil {
		return nil, err
	}
	d.emit()
	return rc, nil
}

// OpenRange returns a partial content stream of length bytes starting at
// offset. A negative length reads to the end.
func (d *Download) OpenRange(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	rc, err := d.backend.OpenRange(ctx, *d.File.URI, offset, length)
	if err != nil {
		return nil, err
	}
	d.emit()
	return rc, nil
}

// emit announces the download once, on the first opened stream, so ranged
// requests for the same ticket count as one download.
func (d *Download) emit() {
	d.once.Do(func() {
		d.signals.Emit(signals.Event{
			Kind:      signals.FileDownloaded,
			Bucket:    d.Version.BucketID,
			Key:       d.Version.Key,
			VersionID: d.Version.VersionID,
			FileID:    d.File.ID,
			Size:      d.File.Size,
		})
	})
}

// DownloadObject resolves (bucket, key, version) to readable content. An
// empty versionID selects the head. Delete markers and versions whose
// content is not readable surface as ErrObjectNotFound. Locked buckets still
// serve reads.
func (e *Engine) DownloadObject(ctx context.Context, bucketID, key, versionID string) (_ *Download, err error) {
	ctx, span := telemetry.StartEngineSpan(ctx, "download",
		telemetry.Bucket(bucketID),
		telemetry.Key(key))
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
		span.End()
	}()

	bucket, err := e.liveBucket(ctx, bucketID)
	if err != nil {
		return nil, err
	}
	version, err := e.resolveVersion(ctx, bucket.ID, key, versionID)
	if err != nil {
		return nil, err
	}
	if version.IsDeleteMarker() {
		return nil, models.ErrObjectNotFound
	}
	file := version.File
	if file == nil || !file.Readable || file.URI == nil {
		logger.WarnCtx(ctx, "object resolves to unreadable content",
			"bucket", bucket.ID, "key", key, "version", version.VersionID)
		return nil, models.ErrObjectNotFound
	}
	backend, err := e.backends.Get(file.StorageBackend)
	if err != nil {
		return nil, err
	}
	return &Download{Version: version, File: file, backend: backend, signals: e.signals}, nil
}

// StatObject returns the catalog record of a version without touching its
// content. An empty versionID selects the head. Delete markers are returned
// as-is so callers can distinguish "deleted" from "never existed".
func (e *Engine) StatObject(ctx context.Context, bucketID, key, versionID string) (_ *models.ObjectVersion, err error) {
	ctx, span := telemetry.StartEngineSpan(ctx, "stat",
		telemetry.Bucket(bucketID),
		telemetry.Key(key))
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
		span.End()
	}()

	bucket, err := e.liveBucket(ctx, bucketID)
	if err != nil {
		return nil, err
	}
	return e.resolveVersion(ctx, bucket.ID, key, versionID)
}

// ============================================================================
// DELETE AND COPY
// ============================================================================

// DeleteObject hides a key behind a delete marker. Older versions stay
// retrievable by version ID. Deleting a key with no head is a no-op and
// returns nil.
func (e *Engine) DeleteObject(ctx context.Context, bucketID, key string) (_ *models.ObjectVersion, err error) {
	ctx, span := telemetry.StartEngineSpan(ctx, "delete",
		telemetry.Bucket(bucketID),
		telemetry.Key(key))
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
		span.End()
	}()

	bucket, err := e.mutableBucket(ctx, bucketID)
	if err != nil {
		return nil, err
	}
	if _, err := e.store.GetHeadVersion(ctx, bucket.ID, key); err != nil {
		if errors.Is(err, models.ErrObjectNotFound) {
			return nil, nil
		}
		return nil, err
	}

	marker := &models.ObjectVersion{BucketID: bucket.ID, Key: key, IsHead: true}
	if err := e.publishHead(ctx, marker); err != nil {
		return nil, err
	}

	e.signals.Emit(signals.Event{
		Kind:      signals.FileDeleted,
		Bucket:    bucket.ID,
		Key:       key,
		VersionID: marker.VersionID,
	})
	logger.InfoCtx(ctx, "object deleted",
		"bucket", bucket.ID, "key", key, "marker", marker.VersionID)
	return marker, nil
}

// DeleteObjectVersion permanently removes one version. If the head is
// removed the next newest version takes its place. The bucket size drops by
// the version's content size and the blob is reclaimed in the background
// once nothing else references it.
func (e *Engine) DeleteObjectVersion(ctx context.Context, bucketID, key, versionID string) (_ *models.ObjectVersion, err error) {
	ctx, span := telemetry.StartEngineSpan(ctx, "delete_version",
		telemetry.Bucket(bucketID),
		telemetry.Key(key),
		telemetry.VersionID(versionID))
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
		span.End()
	}()

	bucket, err := e.mutableBucket(ctx, bucketID)
	if err != nil {
		return nil, err
	}
	version, err := e.store.DeleteVersion(ctx, bucket.ID, key, versionID)
	if err != nil {
		return nil, err
	}

	event := signals.Event{
		Kind:      signals.FileDeleted,
		Bucket:    bucket.ID,
		Key:       key,
		VersionID: version.VersionID,
	}
	if file := version.File; file != nil {
		e.releaseSpace(ctx, bucket.ID, file.Size)
		e.enqueue(ctx, tasks.KindRemoveFileData, tasks.RemoveFileDataPayload{FileID: file.ID, Force: true})
		event.FileID = file.ID
		event.Size = file.Size
	}
	e.signals.Emit(event)

	logger.InfoCtx(ctx, "object version deleted",
		"bucket", bucket.ID, "key", key, "version", versionID)
	return version, nil
}

// CopyVersion publishes an existing version's content as the new head of
// (destBucket, destKey). The copy shares the source file instance, so only
// the destination catalog grows. An empty srcVersionID copies the source
// head. Delete markers cannot be copied.
func (e *Engine) CopyVersion(ctx context.Context, srcBucketID, srcKey, srcVersionID, destBucketID, destKey string) (_ *models.ObjectVersion, err error) {
	ctx, span := telemetry.StartEngineSpan(ctx, "copy",
		telemetry.Bucket(destBucketID),
		telemetry.Key(destKey))
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
		span.End()
	}()

	srcBucket, err := e.liveBucket(ctx, srcBucketID)
	if err != nil {
		return nil, err
	}
	src, err := e.resolveVersion(ctx, srcBucket.ID, srcKey, srcVersionID)
	if err != nil {
		return nil, err
	}
	if src.IsDeleteMarker() {
		return nil, fmt.Errorf("%w: cannot copy a delete marker", models.ErrInvalidOperation)
	}

	dest, err := e.mutableBucket(ctx, destBucketID)
	if err != nil {
		return nil, err
	}
	if err := e.validateKey(destKey); err != nil {
		return nil, err
	}

	size := src.Size()
	if limit := e.effectiveFileLimit(dest); limit > 0 && size > limit {
		return nil, fmt.Errorf("%w: %d bytes exceeds the %d byte file limit",
			models.ErrFileSize, size, limit)
	}
	if err := e.store.ReserveBucketSpace(ctx, dest.ID, size, e.effectiveQuota(dest)); err != nil {
		return nil, err
	}

	version := &models.ObjectVersion{
		BucketID: dest.ID,
		Key:      destKey,
		FileID:   src.FileID,
		Mimetype: src.Mimetype,
		IsHead:   true,
	}
	if err := e.publishHead(ctx, version); err != nil {
		e.releaseSpace(ctx, dest.ID, size)
		return nil, err
	}
	version.File = src.File

	logger.InfoCtx(ctx, "object copied",
		"src_bucket", srcBucket.ID,
		"src_key", srcKey,
		"src_version", src.VersionID,
		"bucket", dest.ID,
		"key", destKey,
		"version", version.VersionID)
	return version, nil
}

// ============================================================================
// LISTING AND TAGS
// ============================================================================

// ListObjects pages through the live heads of a bucket.
func (e *Engine) ListObjects(ctx context.Context, bucketID string, opts store.ListObjectsOptions) ([]*models.ObjectVersion, error) {
	if _, err := e.liveBucket(ctx, bucketID); err != nil {
		return nil, err
	}
	return e.store.ListHeads(ctx, bucketID, opts)
}

// ListObjectVersions pages through every version in a bucket, delete markers
// included.
func (e *Engine) ListObjectVersions(ctx context.Context, bucketID string, opts store.ListObjectsOptions) ([]*models.ObjectVersion, error) {
	if _, err := e.liveBucket(ctx, bucketID); err != nil {
		return nil, err
	}
	return e.store.ListVersions(ctx, bucketID, opts)
}

// ListKeyVersions returns the full history of one key, newest first.
func (e *Engine) ListKeyVersions(ctx context.Context, bucketID, key string) ([]*models.ObjectVersion, error) {
	if _, err := e.liveBucket(ctx, bucketID); err != nil {
		return nil, err
	}
	return e.store.ListKeyVersions(ctx, bucketID, key)
}

// GetObjectTags returns the tags on the head version of a key.
func (e *Engine) GetObjectTags(ctx context.Context, bucketID, key string) ([]models.ObjectVersionTag, error) {
	if _, err := e.liveBucket(ctx, bucketID); err != nil {
		return nil, err
	}
	head, err := e.liveHead(ctx, bucketID, key)
	if err != nil {
		return nil, err
	}
	return e.store.GetVersionTags(ctx, head.VersionID)
}

// SetObjectTags merges tags into the head version of a key. Tag writes
// follow the bucket lock like any other mutation.
func (e *Engine) SetObjectTags(ctx context.Context, bucketID, key string, tags map[string]string) error {
	if _, err := e.mutableBucket(ctx, bucketID); err != nil {
		return err
	}
	head, err := e.liveHead(ctx, bucketID, key)
	if err != nil {
		return err
	}
	return e.store.SetVersionTags(ctx, head.VersionID, tags)
}

// DeleteObjectTags removes tag keys from the head version of a key.
func (e *Engine) DeleteObjectTags(ctx context.Context, bucketID, key string, keys []string) error {
	if _, err := e.mutableBucket(ctx, bucketID); err != nil {
		return err
	}
	head, err := e.liveHead(ctx, bucketID, key)
	if err != nil {
		return err
	}
	return e.store.DeleteVersionTags(ctx, head.VersionID, keys)
}

// ============================================================================
// HELPERS
// ============================================================================

// headSwapRetries bounds how often a publish retries after losing a head
// swap race before giving up with ErrStaleUpdate.
const headSwapRetries = 3

// publishHead installs version as the head of its key, retrying lost swap
// races. The version ID is filled in on success.
func (e *Engine) publishHead(ctx context.Context, version *models.ObjectVersion) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = e.store.SetHeadVersion(ctx, version)
		if err == nil || !errors.Is(err, models.ErrStaleUpdate) || attempt == headSwapRetries {
			return err
		}
		logger.DebugCtx(ctx, "head swap raced, retrying",
			"bucket", version.BucketID, "key", version.Key, "attempt", attempt+1)
	}
}

// resolveVersion returns the head of a key, or a specific version when
// versionID is set.
func (e *Engine) resolveVersion(ctx context.Context, bucketID, key, versionID string) (*models.ObjectVersion, error) {
	if versionID == "" {
		return e.store.GetHeadVersion(ctx, bucketID, key)
	}
	return e.store.GetVersion(ctx, bucketID, key, versionID)
}

// liveHead returns the head of a key, treating delete markers as absent.
func (e *Engine) liveHead(ctx context.Context, bucketID, key string) (*models.ObjectVersion, error) {
	head, err := e.store.GetHeadVersion(ctx, bucketID, key)
	if err != nil {
		return nil, err
	}
	if head.IsDeleteMarker() {
		return nil, models.ErrObjectNotFound
	}
	return head, nil
}

// newFileForBucket builds a writable file instance in the bucket's default
// location, with a freshly fanned-out URI, and resolves its backend. The
// instance is not persisted yet.
func (e *Engine) newFileForBucket(ctx context.Context, bucket *models.Bucket) (*models.FileInstance, storage.Backend, error) {
	loc := bucket.DefaultLocation
	backend, err := e.backends.Get(loc.StorageBackend)
	if err != nil {
		return nil, nil, err
	}

	id := uuid.New().String()
	uri, err := storage.MakePath(loc.URI, id, "data", e.cfg.PathDimensions, e.cfg.PathSplitLength)
	if err != nil {
		return nil, nil, err
	}
	if len(uri) > e.cfg.URIMaxLen {
		return nil, nil, fmt.Errorf("%w: storage path %d bytes exceeds the %d byte maximum",
			models.ErrInvalidLocation, len(uri), e.cfg.URIMaxLen)
	}

	return &models.FileInstance{
		ID:             id,
		URI:            &uri,
		StorageBackend: loc.StorageBackend,
		StorageClass:   bucket.DefaultStorageClass,
		Writable:       true,
	}, backend, nil
}

// validateKey enforces the object key format.
func (e *Engine) validateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: key is empty", models.ErrInvalidKey)
	case len(key) > e.cfg.KeyMaxLen:
		return fmt.Errorf("%w: %d bytes exceeds the %d byte maximum",
			models.ErrInvalidKey, len(key), e.cfg.KeyMaxLen)
	case strings.HasPrefix(key, "/"):
		return fmt.Errorf("%w: key must not start with a slash", models.ErrInvalidKey)
	}
	return nil
}

// releaseSpace returns reserved bytes to a bucket. Failures are logged, not
// returned; a stale size error here must not mask the caller's own error.
func (e *Engine) releaseSpace(ctx context.Context, bucketID string, bytes int64) {
	if bytes == 0 {
		return
	}
	if err := e.store.AdjustBucketSize(ctx, bucketID, -bytes); err != nil {
		logger.ErrorCtx(ctx, "failed to release reserved bucket space",
			"bucket", bucketID, "bytes", bytes, "error", err)
	}
}

// discardFile unwinds a failed write: the catalog row goes away and the
// reservation is returned. Any blob already written is the caller's to
// delete first.
func (e *Engine) discardFile(ctx context.Context, bucketID string, file *models.FileInstance, reserved int64) {
	if err := e.store.DeleteFileInstance(ctx, file.ID); err != nil {
		logger.ErrorCtx(ctx, "failed to remove file record", "file", file.ID, "error", err)
	}
	e.releaseSpace(ctx, bucketID, reserved)
}

// deleteBlob removes a blob best-effort. Missing blobs are fine.
func (e *Engine) deleteBlob(ctx context.Context, backend storage.Backend, uri string) {
	if err := backend.Delete(ctx, uri); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
		logger.WarnCtx(ctx, "failed to delete blob", "uri", uri, "error", err)
	}
}

// resolveMimetype picks the declared content type, falling back to the key
// extension.
func resolveMimetype(declared, key string) string {
	if declared != "" {
		return declared
	}
	return mime.TypeByExtension(path.Ext(key))
}

// normalizeMD5 converts a client Content-MD5 value, hex or base64 encoded,
// to lowercase hex.
func normalizeMD5(v string) (string, error) {
	if raw, err := hex.DecodeString(v); err == nil && len(raw) == md5.Size {
		return strings.ToLower(v), nil
	}
	if raw, err := base64.StdEncoding.DecodeString(v); err == nil && len(raw) == md5.Size {
		return hex.EncodeToString(raw), nil
	}
	return "", fmt.Errorf("%w: malformed Content-MD5 %q", models.ErrInvalidOperation, v)
}
