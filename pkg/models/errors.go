package models

import "errors"

// Domain errors for catalog operations. The REST layer owns the mapping to
// HTTP status codes; everything below it works with these values.
var (
	// Not-found errors
	ErrLocationNotFound = errors.New("location not found")
	ErrBucketNotFound   = errors.New("bucket not found")
	ErrObjectNotFound   = errors.New("object not found")
	ErrVersionNotFound  = errors.New("object version not found")
	ErrFileNotFound     = errors.New("file instance not found")
	ErrUploadNotFound   = errors.New("multipart upload not found")

	// Location errors
	ErrDuplicateLocation = errors.New("location already exists")
	ErrNoDefaultLocation = errors.New("no default location configured")
	ErrInvalidLocation   = errors.New("invalid location")

	// Bucket errors
	ErrBucketLocked  = errors.New("bucket is locked")
	ErrBucketDeleted = errors.New("bucket is deleted")

	// Validation errors
	ErrInvalidOperation    = errors.New("invalid operation")
	ErrInvalidKey          = errors.New("invalid object key")
	ErrInvalidStorageClass = errors.New("invalid storage class")

	// File errors
	ErrFileInstanceAlreadySet = errors.New("file instance already set")
	ErrFileNotWritable        = errors.New("file instance is not writable")
	ErrFileInUse              = errors.New("file instance is still referenced")

	// Size errors. Wrapped messages carry the reason (quota, configured
	// limit) so clients see why the upload was rejected.
	ErrFileSize           = errors.New("file size limit exceeded")
	ErrUnexpectedFileSize = errors.New("unexpected file size")
	ErrChecksumMismatch   = errors.New("checksum mismatch")

	// Multipart errors
	ErrMultipartInvalidChunkSize  = errors.New("invalid part size")
	ErrMultipartInvalidPartNumber = errors.New("invalid part number")
	ErrMultipartInvalidSize       = errors.New("invalid multipart upload size")
	ErrMultipartMissingParts      = errors.New("multipart upload has missing parts")
	ErrMultipartAlreadyCompleted  = errors.New("multipart upload already completed")
	ErrMultipartNotCompleted      = errors.New("multipart upload not completed")

	// Concurrency errors
	ErrStaleUpdate = errors.New("record changed concurrently")
)
