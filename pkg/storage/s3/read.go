package s3

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/arcafs/arca/pkg/bufpool"
	"github.com/arcafs/arca/pkg/storage"
)

// Open returns a reader streaming the full object.
//
// Transient errors (network issues, throttling, 5xx) are retried with
// exponential backoff. The returned body respects context cancellation.
func (s *Store) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	return s.OpenRange(ctx, uri, 0, -1)
}

// OpenRange returns a reader over length bytes starting at offset, using an
// S3 byte-range request so only the requested window is transferred.
func (s *Store) OpenRange(ctx context.Context, uri string, offset, length int64) (io.ReadCloser, error) {
	if s.isClosed() {
		return nil, storage.OpError("open", uri, storage.ErrBackendClosed)
	}
	bucket, key, err := parseURI(uri)
	if err != nil {
		return nil, storage.OpError("open", uri, err)
	}
	if offset < 0 {
		return nil, storage.OpError("open", uri, fmt.Errorf("%w: negative offset %d", storage.ErrInvalidRange, offset))
	}

	input := &awss3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if offset > 0 || length >= 0 {
		// S3 ranges are inclusive on both ends.
		if length >= 0 {
			input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
		} else {
			input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
		}
	}

	var result *awss3.GetObjectOutput
	err = s.withRetry(ctx, "open", uri, func() error {
		var getErr error
		result, getErr = s.client.GetObject(ctx, input)
		return getErr
	})
	if err != nil {
		switch {
		case isNotFoundError(err):
			return nil, storage.OpError("open", uri, storage.ErrBlobNotFound)
		case isInvalidRangeError(err):
			return nil, storage.OpError("open", uri, fmt.Errorf("%w: offset %d", storage.ErrInvalidRange, offset))
		}
		return nil, storage.OpError("open", uri, err)
	}

	return result.Body, nil
}

// Size returns the object size from a HEAD request without downloading it.
func (s *Store) Size(ctx context.Context, uri string) (int64, error) {
	if s.isClosed() {
		return 0, storage.OpError("head", uri, storage.ErrBackendClosed)
	}
	bucket, key, err := parseURI(uri)
	if err != nil {
		return 0, storage.OpError("head", uri, err)
	}

	var result *awss3.HeadObjectOutput
	err = s.withRetry(ctx, "head", uri, func() error {
		var headErr error
		result, headErr = s.client.HeadObject(ctx, &awss3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		return headErr
	})
	if err != nil {
		if isNotFoundError(err) {
			return 0, storage.OpError("head", uri, storage.ErrBlobNotFound)
		}
		return 0, storage.OpError("head", uri, err)
	}

	if result.ContentLength == nil {
		return 0, storage.OpError("head", uri, fmt.Errorf("content length not available"))
	}
	return *result.ContentLength, nil
}

// Checksum streams the object back and computes a fresh digest.
func (s *Store) Checksum(ctx context.Context, uri string, algorithm string) (string, error) {
	h, err := storage.NewHash(algorithm)
	if err != nil {
		return "", storage.OpError("checksum", uri, err)
	}

	body, err := s.Open(ctx, uri)
	if err != nil {
		return "", storage.OpError("checksum", uri, err)
	}
	defer body.Close()

	buf := bufpool.Get(bufpool.DefaultLargeSize)
	defer bufpool.Put(buf)
	if _, err := io.CopyBuffer(h, body, buf); err != nil {
		return "", storage.OpError("checksum", uri, err)
	}
	return storage.FormatChecksum(algorithm, h.Sum(nil)), nil
}
