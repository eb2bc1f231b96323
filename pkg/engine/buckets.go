package engine

import (
	"context"
	"fmt"

	"github.com/arcafs/arca/internal/logger"
	"github.com/arcafs/arca/internal/telemetry"
	"github.com/arcafs/arca/pkg/models"
)

// CreateBucketParams selects where and how a new bucket stores content.
// Empty fields fall back to the configured defaults.
type CreateBucketParams struct {
	LocationName string
	StorageClass string
}

// CreateBucket creates a bucket in the requested (or default) location. The
// configured default quota and per-file limit are stamped onto the row so
// later config changes do not silently retighten existing buckets.
func (e *Engine) CreateBucket(ctx context.Context, params CreateBucketParams) (*models.Bucket, error) {
	loc, err := e.resolveLocation(ctx, params.LocationName)
	if err != nil {
		return nil, err
	}

	class := params.StorageClass
	if class == "" {
		class = e.cfg.DefaultStorageClass
	}
	if _, ok := e.cfg.StorageClasses[class]; !ok {
		return nil, fmt.Errorf("%w: %q is not one of %v",
			models.ErrInvalidStorageClass, class, classCodes(e.cfg.StorageClasses))
	}

	bucket := &models.Bucket{
		DefaultLocationID:   loc.ID,
		DefaultStorageClass: class,
		QuotaSize:           positivePtr(e.cfg.DefaultQuotaSize),
		MaxFileSize:         positivePtr(e.cfg.DefaultMaxFileSize),
	}
	id, err := e.store.CreateBucket(ctx, bucket)
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "bucket created",
		"bucket", id,
		"location", loc.Name,
		"storage_class", class)
	return e.store.GetBucket(ctx, id)
}

// GetBucket returns a live bucket. Soft-deleted buckets surface as
// ErrBucketDeleted so the API hides them like missing ones.
func (e *Engine) GetBucket(ctx context.Context, id string) (*models.Bucket, error) {
	return e.liveBucket(ctx, id)
}

// ListBuckets returns all live buckets.
func (e *Engine) ListBuckets(ctx context.Context) ([]*models.Bucket, error) {
	return e.store.ListBuckets(ctx)
}

// BucketStats returns the number of live objects and stored versions.
func (e *Engine) BucketStats(ctx context.Context, id string) (objects, versions int64, err error) {
	if _, err := e.liveBucket(ctx, id); err != nil {
		return 0, 0, err
	}
	return e.store.GetBucketStats(ctx, id)
}

// SnapshotBucket creates a new bucket with the source's location, class and
// limits and copies every live head into it. The copies share the source's
// file instances, so a snapshot costs catalog rows, not blob bytes. The new
// bucket can be locked on creation to freeze the captured state.
func (e *Engine) SnapshotBucket(ctx context.Context, srcID string, lock bool) (_ *models.Bucket, err error) {
	ctx, span := telemetry.StartEngineSpan(ctx, "snapshot",
		telemetry.Bucket(srcID))
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
		span.End()
	}()

	src, err := e.liveBucket(ctx, srcID)
	if err != nil {
		return nil, err
	}

	dest := &models.Bucket{
		DefaultLocationID:   src.DefaultLocationID,
		DefaultStorageClass: src.DefaultStorageClass,
		QuotaSize:           src.QuotaSize,
		MaxFileSize:         src.MaxFileSize,
		Locked:              lock,
	}
	destID, err := e.store.CreateBucket(ctx, dest)
	if err != nil {
		return nil, err
	}

	count, totalSize, err := e.store.SnapshotBucket(ctx, src.ID, destID)
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "bucket snapshotted",
		"bucket", src.ID,
		"snapshot", destID,
		"objects", count,
		"size", totalSize,
		"locked", lock)
	return e.store.GetBucket(ctx, destID)
}

// SetBucketLock locks or unlocks a bucket's content.
func (e *Engine) SetBucketLock(ctx context.Context, id string, locked bool) error {
	if err := e.store.SetBucketLock(ctx, id, locked); err != nil {
		return err
	}
	logger.InfoCtx(ctx, "bucket lock changed", "bucket", id, "locked", locked)
	return nil
}

// UpdateBucketLimits replaces the bucket quota and per-file limit. Nil
// clears a limit back to the configured default.
func (e *Engine) UpdateBucketLimits(ctx context.Context, id string, quotaSize, maxFileSize *int64) error {
	return e.store.UpdateBucketLimits(ctx, id, quotaSize, maxFileSize)
}

// DeleteBucket soft-deletes a bucket. Its versions and blobs stay on disk
// until maintenance reclaims them; the bucket just stops resolving.
func (e *Engine) DeleteBucket(ctx context.Context, id string) error {
	if _, err := e.liveBucket(ctx, id); err != nil {
		return err
	}
	if err := e.store.MarkBucketDeleted(ctx, id); err != nil {
		return err
	}
	logger.InfoCtx(ctx, "bucket deleted", "bucket", id)
	return nil
}

// GetBucketTags returns the bucket's tags ordered by key.
func (e *Engine) GetBucketTags(ctx context.Context, id string) ([]models.BucketTag, error) {
	if _, err := e.liveBucket(ctx, id); err != nil {
		return nil, err
	}
	return e.store.GetBucketTags(ctx, id)
}

// SetBucketTags merges tags into the bucket tag set.
func (e *Engine) SetBucketTags(ctx context.Context, id string, tags map[string]string) error {
	if _, err := e.liveBucket(ctx, id); err != nil {
		return err
	}
	return e.store.SetBucketTags(ctx, id, tags)
}

// DeleteBucketTags removes the given tag keys from a bucket.
func (e *Engine) DeleteBucketTags(ctx context.Context, id string, keys []string) error {
	if _, err := e.liveBucket(ctx, id); err != nil {
		return err
	}
	return e.store.DeleteBucketTags(ctx, id, keys)
}

// liveBucket loads a bucket and rejects soft-deleted ones.
func (e *Engine) liveBucket(ctx context.Context, id string) (*models.Bucket, error) {
	bucket, err := e.store.GetBucket(ctx, id)
	if err != nil {
		return nil, err
	}
	if bucket.Deleted {
		return nil, models.ErrBucketDeleted
	}
	return bucket, nil
}

// mutableBucket loads a bucket that accepts content changes.
func (e *Engine) mutableBucket(ctx context.Context, id string) (*models.Bucket, error) {
	bucket, err := e.liveBucket(ctx, id)
	if err != nil {
		return nil, err
	}
	if bucket.Locked {
		return nil, models.ErrBucketLocked
	}
	return bucket, nil
}

// classCodes lists the configured storage class codes for error messages.
func classCodes(classes map[string]string) []string {
	codes := make([]string, 0, len(classes))
	for code := range classes {
		codes = append(codes, code)
	}
	return codes
}

// positivePtr returns a pointer to v when it is positive, else nil.
func positivePtr(v int64) *int64 {
	if v <= 0 {
		return nil
	}
	return &v
}
