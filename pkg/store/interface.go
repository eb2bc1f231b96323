// Package store provides the catalog persistence layer.
//
// This package implements the Store interface for managing catalog data
// including locations, buckets, object versions, file instances, multipart
// uploads and tags.
//
// Two backends are supported:
//   - SQLite (single-node, default)
//   - PostgreSQL (HA-capable)
package store

import (
	"context"
	"time"

	"github.com/arcafs/arca/pkg/models"
)

// ListObjectsOptions narrows and pages object listings.
type ListObjectsOptions struct {
	// Prefix keeps only keys starting with this string.
	Prefix string

	// Marker resumes the listing after this key (exclusive).
	Marker string

	// Limit bounds the number of returned entries; zero means no bound.
	Limit int

	// WithDeleteMarkers includes head delete markers in head listings.
	WithDeleteMarkers bool
}

// Store provides the catalog persistence interface.
//
// Thread safety: implementations must be safe for concurrent use from
// multiple goroutines. Mutations that race on the same rows either serialize
// through row locks or fail with models.ErrStaleUpdate so callers can retry.
type Store interface {
	// ============================================
	// LOCATION OPERATIONS
	// ============================================

	// GetLocation returns a location by name.
	// Returns models.ErrLocationNotFound if the location doesn't exist.
	GetLocation(ctx context.Context, name string) (*models.Location, error)

	// GetLocationByID returns a location by its numeric ID.
	GetLocationByID(ctx context.Context, id uint) (*models.Location, error)

	// GetDefaultLocation returns the location flagged as default.
	// Returns models.ErrNoDefaultLocation when none is flagged.
	GetDefaultLocation(ctx context.Context) (*models.Location, error)

	// ListLocations returns all locations ordered by name.
	ListLocations(ctx context.Context) ([]*models.Location, error)

	// CreateLocation creates a new location after validating its name.
	// When loc.IsDefault is set the previous default is cleared in the same
	// transaction. Returns models.ErrDuplicateLocation on a name clash.
	CreateLocation(ctx context.Context, loc *models.Location) error

	// SetDefaultLocation flags the named location as default and clears the
	// previous default atomically.
	SetDefaultLocation(ctx context.Context, name string) error

	// ============================================
	// BUCKET OPERATIONS
	// ============================================

	// GetBucket returns a bucket by ID with its default location loaded.
	// Deleted buckets are still returned; callers decide how to treat them.
	// Returns models.ErrBucketNotFound if the bucket doesn't exist.
	GetBucket(ctx context.Context, id string) (*models.Bucket, error)

	// ListBuckets returns all non-deleted buckets.
	ListBuckets(ctx context.Context) ([]*models.Bucket, error)

	// CreateBucket creates a new bucket. The ID is generated if empty.
	// Returns the bucket ID.
	CreateBucket(ctx context.Context, bucket *models.Bucket) (string, error)

	// UpdateBucketLimits sets the bucket quota and per-file size limit.
	// Nil clears the corresponding limit.
	UpdateBucketLimits(ctx context.Context, id string, quotaSize, maxFileSize *int64) error

	// SetBucketLock sets or clears the bucket content lock.
	SetBucketLock(ctx context.Context, id string, locked bool) error

	// MarkBucketDeleted flags the bucket as deleted. Content cleanup happens
	// asynchronously.
	MarkBucketDeleted(ctx context.Context, id string) error

	// ReserveBucketSpace atomically grows the denormalized bucket size by
	// delta after re-checking the effective quota under a row lock.
	// A nil quota means unlimited. Returns models.ErrFileSize when the
	// reservation would exceed the quota and models.ErrBucketDeleted or
	// models.ErrBucketLocked when the bucket no longer accepts writes.
	ReserveBucketSpace(ctx context.Context, id string, delta int64, quota *int64) error

	// AdjustBucketSize unconditionally adds delta (possibly negative) to the
	// bucket size, clamping at zero.
	AdjustBucketSize(ctx context.Context, id string, delta int64) error

	// GetBucketStats returns the number of live objects (heads that are not
	// delete markers) and the number of stored versions.
	GetBucketStats(ctx context.Context, id string) (objects, versions int64, err error)

	// ============================================
	// BUCKET TAG OPERATIONS
	// ============================================

	// GetBucketTags returns all tags on a bucket ordered by key.
	GetBucketTags(ctx context.Context, bucketID string) ([]models.BucketTag, error)

	// SetBucketTags merges the given tags into the bucket tag set, replacing
	// values for existing keys.
	SetBucketTags(ctx context.Context, bucketID string, tags map[string]string) error

	// DeleteBucketTags removes the given keys. Missing keys are ignored.
	DeleteBucketTags(ctx context.Context, bucketID string, keys []string) error

	// ============================================
	// OBJECT VERSION OPERATIONS
	// ============================================

	// GetHeadVersion returns the head version of a key with its file
	// instance loaded. Returns models.ErrObjectNotFound when the key has no
	// head.
	GetHeadVersion(ctx context.Context, bucketID, key string) (*models.ObjectVersion, error)

	// GetVersion returns a specific version of a key with its file instance
	// loaded. Returns models.ErrVersionNotFound if absent.
	GetVersion(ctx context.Context, bucketID, key, versionID string) (*models.ObjectVersion, error)

	// ListHeads pages through head versions of a bucket ordered by key.
	// Delete-marker heads are skipped unless opts.WithDeleteMarkers is set.
	ListHeads(ctx context.Context, bucketID string, opts ListObjectsOptions) ([]*models.ObjectVersion, error)

	// ListVersions pages through every version in a bucket, delete markers
	// included, ordered by key then newest first.
	ListVersions(ctx context.Context, bucketID string, opts ListObjectsOptions) ([]*models.ObjectVersion, error)

	// ListKeyVersions returns all versions of one key, newest first.
	ListKeyVersions(ctx context.Context, bucketID, key string) ([]*models.ObjectVersion, error)

	// SetHeadVersion demotes the current head of (bucket, key) and inserts
	// version as the new head in one transaction. The version ID is
	// generated if empty. Concurrent head swaps on the same key fail with
	// models.ErrStaleUpdate; callers retry.
	SetHeadVersion(ctx context.Context, version *models.ObjectVersion) error

	// DeleteVersion hard-deletes one version. When the head is removed the
	// most recent remaining version is promoted in the same transaction.
	// Returns the deleted version with its file instance loaded so callers
	// can settle size accounting.
	DeleteVersion(ctx context.Context, bucketID, key, versionID string) (*models.ObjectVersion, error)

	// SnapshotBucket copies every live head of the source bucket into the
	// destination bucket as fresh head versions sharing the same file
	// instances, and initializes the destination size. Returns the number of
	// copied objects and their total size.
	SnapshotBucket(ctx context.Context, srcBucketID, destBucketID string) (count, totalSize int64, err error)

	// RelinkFile repoints every object version referencing oldFileID at
	// newFileID and returns the number of versions moved.
	RelinkFile(ctx context.Context, oldFileID, newFileID string) (int64, error)

	// ============================================
	// OBJECT VERSION TAG OPERATIONS
	// ============================================

	// GetVersionTags returns all tags on a version ordered by key.
	GetVersionTags(ctx context.Context, versionID string) ([]models.ObjectVersionTag, error)

	// SetVersionTags merges the given tags into the version tag set.
	SetVersionTags(ctx context.Context, versionID string, tags map[string]string) error

	// DeleteVersionTags removes the given keys. Missing keys are ignored.
	DeleteVersionTags(ctx context.Context, versionID string, keys []string) error

	// ============================================
	// FILE INSTANCE OPERATIONS
	// ============================================

	// CreateFileInstance creates a new file instance. The ID is generated if
	// empty. Returns the instance ID.
	CreateFileInstance(ctx context.Context, file *models.FileInstance) (string, error)

	// GetFileInstance returns a file instance by ID.
	// Returns models.ErrFileNotFound if absent.
	GetFileInstance(ctx context.Context, id string) (*models.FileInstance, error)

	// GetFileInstanceByURI returns the file instance at the given URI.
	GetFileInstanceByURI(ctx context.Context, uri string) (*models.FileInstance, error)

	// MarkFileStored persists the outcome of a content write: URI, size,
	// checksum, readable. The checksum column is guarded so it is written
	// exactly once; a second attempt returns
	// models.ErrFileInstanceAlreadySet.
	MarkFileStored(ctx context.Context, file *models.FileInstance) error

	// SetFileCheckResult records a fixity verification outcome. A nil ok
	// clears the result, marking the content as missing from the backend.
	SetFileCheckResult(ctx context.Context, id string, ok *bool, at time.Time) error

	// UpdateFileLocation moves the catalog record to a new URI and backend
	// after content migration.
	UpdateFileLocation(ctx context.Context, id, uri, storageBackend, storageClass string) error

	// DeleteFileInstance removes a file instance row, refusing while any
	// object version or multipart upload still references it.
	// Returns models.ErrFileInUse in that case.
	DeleteFileInstance(ctx context.Context, id string) error

	// ListOrphanedFiles returns file instances referenced by no object
	// version and no multipart upload, created before the cutoff.
	ListOrphanedFiles(ctx context.Context, before time.Time, limit int) ([]*models.FileInstance, error)

	// ListFilesForVerification returns readable instances whose last check
	// is absent or older than the cutoff, least recently checked first.
	ListFilesForVerification(ctx context.Context, checkedBefore time.Time, limit int) ([]*models.FileInstance, error)

	// CountReadableFiles returns the number of readable instances and their
	// total byte size. Fixity scheduling uses this to size fair batches.
	CountReadableFiles(ctx context.Context) (count, totalSize int64, err error)

	// ============================================
	// MULTIPART UPLOAD OPERATIONS
	// ============================================

	// CreateMultipartUpload creates the upload row and its preallocated file
	// instance in one transaction.
	CreateMultipartUpload(ctx context.Context, upload *models.MultipartObject, file *models.FileInstance) error

	// GetMultipartUpload returns an upload with its file instance loaded.
	// Returns models.ErrUploadNotFound if absent.
	GetMultipartUpload(ctx context.Context, uploadID string) (*models.MultipartObject, error)

	// ListMultipartUploads returns in-progress uploads for a bucket.
	ListMultipartUploads(ctx context.Context, bucketID string) ([]*models.MultipartObject, error)

	// ListExpiredUploads returns uncompleted uploads created before the
	// cutoff.
	ListExpiredUploads(ctx context.Context, before time.Time, limit int) ([]*models.MultipartObject, error)

	// UpsertPart records an uploaded part, replacing any previous record for
	// the same part number.
	UpsertPart(ctx context.Context, part *models.Part) error

	// DeletePart removes one part record. Missing parts are ignored so a
	// failed re-upload can always clear the stale record.
	DeletePart(ctx context.Context, uploadID string, partNumber int64) error

	// ListParts pages through recorded parts ordered by part number,
	// starting after marker (use -1 to start from the beginning).
	ListParts(ctx context.Context, uploadID string, limit int, marker int64) ([]models.Part, error)

	// CountParts returns the number of recorded parts.
	CountParts(ctx context.Context, uploadID string) (int64, error)

	// CompleteMultipartUpload flips the upload to completed. Returns
	// models.ErrMultipartAlreadyCompleted if it already was.
	CompleteMultipartUpload(ctx context.Context, uploadID string) error

	// DeleteMultipartUpload removes the upload row and its parts. The file
	// instance is left to the caller.
	DeleteMultipartUpload(ctx context.Context, uploadID string) error

	// ============================================
	// HEALTH & LIFECYCLE
	// ============================================

	// Healthcheck pings the underlying database.
	Healthcheck(ctx context.Context) error

	// Close closes the underlying database connection.
	Close() error
}
