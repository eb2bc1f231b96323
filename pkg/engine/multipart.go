package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/arcafs/arca/internal/logger"
	"github.com/arcafs/arca/internal/telemetry"
	"github.com/arcafs/arca/pkg/models"
	"github.com/arcafs/arca/pkg/storage"
	"github.com/arcafs/arca/pkg/tasks"
)

// InitiateMultipart opens a multipart upload for (bucket, key) of exactly
// size bytes in parts of partSize. The full size is reserved against the
// bucket quota up front and a preallocated file instance is created, so part
// uploads never fail late on space.
func (e *Engine) InitiateMultipart(ctx context.Context, bucketID, key string, size, partSize int64) (_ *models.MultipartObject, err error) {
	ctx, span := telemetry.StartEngineSpan(ctx, "multipart_initiate",
		telemetry.Bucket(bucketID),
		telemetry.Key(key),
		telemetry.ObjectSize(size),
		telemetry.ChunkSize(partSize))
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

	if size <= 0 {
		return nil, fmt.Errorf("%w: upload size must be positive", models.ErrMultipartInvalidSize)
	}
	if partSize < e.cfg.ChunkSizeMin || partSize > e.cfg.ChunkSizeMax {
		return nil, fmt.Errorf("%w: %d bytes is outside the allowed range %d-%d",
			models.ErrMultipartInvalidChunkSize, partSize, e.cfg.ChunkSizeMin, e.cfg.ChunkSizeMax)
	}
	if parts := ceilDiv(size, partSize); parts > e.cfg.MaxParts {
		return nil, fmt.Errorf("%w: %d byte parts would split %d bytes into %d parts, limit is %d",
			models.ErrMultipartInvalidChunkSize, partSize, size, parts, e.cfg.MaxParts)
	}
	if size < e.cfg.MinFileSize {
		return nil, fmt.Errorf("%w: %d bytes is below the %d byte minimum",
			models.ErrFileSize, size, e.cfg.MinFileSize)
	}
	if limit := e.effectiveFileLimit(bucket); limit > 0 && size > limit {
		return nil, fmt.Errorf("%w: %d bytes exceeds the %d byte file limit",
			models.ErrFileSize, size, limit)
	}

	if err := e.store.ReserveBucketSpace(ctx, bucket.ID, size, e.effectiveQuota(bucket)); err != nil {
		return nil, err
	}

	file, backend, err := e.newFileForBucket(ctx, bucket)
	if err != nil {
		e.releaseSpace(ctx, bucket.ID, size)
		return nil, err
	}
	file.Size = size

	upload, err := models.NewMultipartObject(uuid.New().String(), bucket.ID, key, file.ID, size, partSize)
	if err != nil {
		e.releaseSpace(ctx, bucket.ID, size)
		return nil, err
	}
	if err := e.store.CreateMultipartUpload(ctx, upload, file); err != nil {
		e.releaseSpace(ctx, bucket.ID, size)
		return nil, err
	}

	// Backends that take range writes get the file preallocated now so
	// parts can land at their final offsets. Others stage parts as
	// separate blobs and assemble at completion.
	if _, ok := backend.(storage.RangeWriter); ok {
		if err := backend.Initialize(ctx, *file.URI, size); err != nil && !errors.Is(err, storage.ErrNotSupported) {
			if derr := e.store.DeleteMultipartUpload(ctx, upload.UploadID); derr != nil {
				logger.ErrorCtx(ctx, "failed to remove upload after preallocation failure",
					"upload", upload.UploadID, "error", derr)
			}
			e.discardFile(ctx, bucket.ID, file, size)
			return nil, err
		}
	}
	upload.File = *file

	logger.InfoCtx(ctx, "multipart upload initiated",
		"upload", upload.UploadID,
		"bucket", bucket.ID,
		"key", key,
		"size", size,
		"part_size", partSize,
		"parts", upload.PartCount())
	return upload, nil
}

// UploadPart stores one part of an upload. The body must be exactly the
// part's expected size. Re-uploading a part number replaces it. Parts of the
// same upload are serialized in-process; the catalog's delete-then-record
// ordering keeps a failed write from leaving a part record behind.
func (e *Engine) UploadPart(ctx context.Context, uploadID string, partNumber int64, body io.Reader, contentLength int64) (_ *models.Part, err error) {
	ctx, span := telemetry.StartEngineSpan(ctx, "multipart_part",
		telemetry.UploadID(uploadID),
		telemetry.PartNumber(partNumber))
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
		span.End()
	}()

	unlock := e.uploadLocks.lock(uploadID)
	defer unlock()

	upload, err := e.store.GetMultipartUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if upload.Completed {
		return nil, models.ErrMultipartAlreadyCompleted
	}

	expected, err := upload.ExpectedPartSize(partNumber)
	if err != nil {
		return nil, err
	}
	if contentLength >= 0 && contentLength != expected {
		return nil, fmt.Errorf("%w: part %d must be %d bytes, got %d",
			models.ErrMultipartInvalidChunkSize, partNumber, expected, contentLength)
	}

	file := upload.File
	if file.URI == nil {
		return nil, fmt.Errorf("upload %s has no storage path", uploadID)
	}
	backend, err := e.backends.Get(file.StorageBackend)
	if err != nil {
		return nil, err
	}

	// Drop any previous record first so a failed write leaves nothing
	// claiming the part exists.
	if err := e.store.DeletePart(ctx, uploadID, partNumber); err != nil {
		return nil, err
	}

	start, end, err := upload.PartRange(partNumber)
	if err != nil {
		return nil, err
	}

	var checksum string
	if rw, ok := backend.(storage.RangeWriter); ok {
		cr, err := storage.NewChecksumReader(body, storage.SaveOptions{
			Algorithm:    e.cfg.ChecksumAlgorithm,
			ExpectedSize: expected,
		})
		if err != nil {
			return nil, err
		}
		if _, err := rw.WriteRange(ctx, *file.URI, start, cr); err != nil {
			if errors.Is(err, storage.ErrSizeMismatch) {
				return nil, fmt.Errorf("%w: %v", models.ErrUnexpectedFileSize, err)
			}
			return nil, err
		}
		checksum = cr.Checksum()
	} else {
		result, err := backend.Save(ctx, storage.StagedPartURI(*file.URI, partNumber), body, storage.SaveOptions{
			Algorithm:    e.cfg.ChecksumAlgorithm,
			ExpectedSize: expected,
		})
		if err != nil {
			if errors.Is(err, storage.ErrSizeMismatch) {
				return nil, fmt.Errorf("%w: %v", models.ErrUnexpectedFileSize, err)
			}
			return nil, err
		}
		checksum = result.Checksum
	}

	part := &models.Part{
		UploadID:   uploadID,
		PartNumber: partNumber,
		Checksum:   checksum,
		StartByte:  start,
		EndByte:    end,
	}
	if err := e.store.UpsertPart(ctx, part); err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "part uploaded",
		"upload", uploadID,
		"part", partNumber,
		"size", expected,
		"checksum", checksum)
	return part, nil
}

// CompleteMultipart finishes an upload once every part is recorded. The
// parts are assembled into the final object by a queued merge task; the head
// version appears when the merge lands.
func (e *Engine) CompleteMultipart(ctx context.Context, uploadID string) (_ *models.MultipartObject, err error) {
	ctx, span := telemetry.StartEngineSpan(ctx, "multipart_complete",
		telemetry.UploadID(uploadID))
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
		span.End()
	}()

	unlock := e.uploadLocks.lock(uploadID)
	defer unlock()

	upload, err := e.store.GetMultipartUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if upload.Completed {
		return nil, models.ErrMultipartAlreadyCompleted
	}

	count, err := e.store.CountParts(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if count != upload.PartCount() {
		return nil, fmt.Errorf("%w: %d of %d parts uploaded",
			models.ErrMultipartMissingParts, count, upload.PartCount())
	}

	// The merge is queued before the completed flip lands. A queued merge
	// for a not-yet-completed upload just retries; a completed upload
	// with no queued merge would sit unassembled forever.
	e.enqueue(ctx, tasks.KindMergeMultipart, tasks.MergeMultipartPayload{UploadID: uploadID})
	if err := e.store.CompleteMultipartUpload(ctx, uploadID); err != nil {
		return nil, err
	}
	upload.Completed = true

	logger.InfoCtx(ctx, "multipart upload completed",
		"upload", uploadID,
		"bucket", upload.BucketID,
		"key", upload.Key,
		"parts", count)
	return upload, nil
}

// AbortMultipart cancels an upload, drops its recorded parts and returns the
// reserved space. Already completed uploads cannot be aborted.
func (e *Engine) AbortMultipart(ctx context.Context, uploadID string) (err error) {
	ctx, span := telemetry.StartEngineSpan(ctx, "multipart_abort",
		telemetry.UploadID(uploadID))
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
		span.End()
	}()

	unlock := e.uploadLocks.lock(uploadID)
	defer unlock()

	upload, err := e.store.GetMultipartUpload(ctx, uploadID)
	if err != nil {
		return err
	}
	if upload.Completed {
		return models.ErrMultipartAlreadyCompleted
	}

	// Staged part blobs are only findable through the part records, so
	// they are swept before the records go away.
	file := upload.File
	if file.URI != nil {
		backend, err := e.backends.Get(file.StorageBackend)
		switch {
		case err != nil:
			logger.WarnCtx(ctx, "cannot clean staged parts", "upload", uploadID, "error", err)
		default:
			if _, ok := backend.(storage.RangeWriter); !ok {
				parts, err := e.store.ListParts(ctx, uploadID, 0, -1)
				if err != nil {
					return err
				}
				for _, part := range parts {
					e.deleteBlob(ctx, backend, storage.StagedPartURI(*file.URI, part.PartNumber))
				}
			}
		}
	}

	if err := e.store.DeleteMultipartUpload(ctx, uploadID); err != nil {
		return err
	}
	e.releaseSpace(ctx, upload.BucketID, upload.Size)
	e.enqueue(ctx, tasks.KindRemoveFileData, tasks.RemoveFileDataPayload{FileID: upload.FileID, Force: true})

	logger.InfoCtx(ctx, "multipart upload aborted",
		"upload", uploadID,
		"bucket", upload.BucketID,
		"key", upload.Key)
	return nil
}

// GetMultipartUpload returns an in-progress or completed upload.
func (e *Engine) GetMultipartUpload(ctx context.Context, uploadID string) (*models.MultipartObject, error) {
	return e.store.GetMultipartUpload(ctx, uploadID)
}

// ListMultipartUploads returns the in-progress uploads of a bucket.
func (e *Engine) ListMultipartUploads(ctx context.Context, bucketID string) ([]*models.MultipartObject, error) {
	if _, err := e.liveBucket(ctx, bucketID); err != nil {
		return nil, err
	}
	return e.store.ListMultipartUploads(ctx, bucketID)
}

// ListParts pages through the recorded parts of an upload ordered by part
// number, starting after marker (-1 starts from the beginning).
func (e *Engine) ListParts(ctx context.Context, uploadID string, limit int, marker int64) ([]models.Part, error) {
	if _, err := e.store.GetMultipartUpload(ctx, uploadID); err != nil {
		return nil, err
	}
	return e.store.ListParts(ctx, uploadID, limit, marker)
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

// keyedLocks hands out one mutex per key and forgets the key once the last
// holder releases it, so the map stays bounded by in-flight uploads.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*keyedLock)}
}

// lock blocks until the key's mutex is held and returns its release.
func (k *keyedLocks) lock(key string) func() {
	k.mu.Lock()
	l := k.locks[key]
	if l == nil {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
