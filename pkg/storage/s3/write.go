package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/arcafs/arca/internal/logger"
	"github.com/arcafs/arca/pkg/storage"
)

// Save streams r to the object. Streams that fit in a single part go up
// with one PutObject call, larger ones through a multipart upload that is
// aborted on any failure so no partial object becomes visible.
func (s *Store) Save(ctx context.Context, uri string, r io.Reader, opts storage.SaveOptions) (*storage.SaveResult, error) {
	if s.isClosed() {
		return nil, storage.OpError("save", uri, storage.ErrBackendClosed)
	}
	bucket, key, err := parseURI(uri)
	if err != nil {
		return nil, storage.OpError("save", uri, err)
	}

	cr, err := storage.NewChecksumReader(r, opts)
	if err != nil {
		return nil, storage.OpError("save", uri, err)
	}

	buf := make([]byte, s.partSize)
	n, err := io.ReadFull(cr, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		// Whole stream fits in one part
		if err := s.putObject(ctx, uri, bucket, key, buf[:n]); err != nil {
			return nil, err
		}
		return &storage.SaveResult{Size: cr.Size(), Checksum: cr.Checksum()}, nil
	}
	if err != nil {
		return nil, storage.OpError("save", uri, err)
	}

	if err := s.saveMultipart(ctx, uri, bucket, key, cr, buf); err != nil {
		return nil, err
	}
	return &storage.SaveResult{Size: cr.Size(), Checksum: cr.Checksum()}, nil
}

func (s *Store) putObject(ctx context.Context, uri, bucket, key string, data []byte) error {
	body := bytes.NewReader(data)
	err := s.withRetry(ctx, "save", uri, func() error {
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return err
		}
		_, putErr := s.client.PutObject(ctx, &awss3.PutObjectInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			Body:          body,
			ContentLength: aws.Int64(int64(len(data))),
		})
		return putErr
	})
	return storage.OpError("save", uri, err)
}

// saveMultipart uploads the stream as a multipart upload. first holds the
// already-read initial part.
func (s *Store) saveMultipart(ctx context.Context, uri, bucket, key string, cr *storage.ChecksumReader, first []byte) (err error) {
	var created *awss3.CreateMultipartUploadOutput
	err = s.withRetry(ctx, "save", uri, func() error {
		var createErr error
		created, createErr = s.client.CreateMultipartUpload(ctx, &awss3.CreateMultipartUploadInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		return createErr
	})
	if err != nil {
		return storage.OpError("save", uri, err)
	}
	uploadID := aws.ToString(created.UploadId)

	defer func() {
		if err == nil {
			return
		}
		// Abort with a detached context so a canceled upload still
		// releases its staged parts.
		abortCtx := context.WithoutCancel(ctx)
		if _, abortErr := s.client.AbortMultipartUpload(abortCtx, &awss3.AbortMultipartUploadInput{
			Bucket:   aws.String(bucket),
			Key:      aws.String(key),
			UploadId: aws.String(uploadID),
		}); abortErr != nil {
			logger.Warn("s3: failed to abort multipart upload", "uri", uri, "upload_id", uploadID, "error", abortErr)
		}
	}()

	var completed []types.CompletedPart
	partNumber := int32(1)
	part := first

	for {
		etag, uploadErr := s.uploadPart(ctx, uri, bucket, key, uploadID, partNumber, part)
		if uploadErr != nil {
			return uploadErr
		}
		completed = append(completed, types.CompletedPart{
			ETag:       etag,
			PartNumber: aws.Int32(partNumber),
		})
		partNumber++

		n, readErr := io.ReadFull(cr, first)
		if readErr == io.EOF {
			break
		}
		if readErr != nil && readErr != io.ErrUnexpectedEOF {
			return storage.OpError("save", uri, readErr)
		}
		part = first[:n]
		if readErr == io.ErrUnexpectedEOF {
			// Final short part
			etag, uploadErr := s.uploadPart(ctx, uri, bucket, key, uploadID, partNumber, part)
			if uploadErr != nil {
				return uploadErr
			}
			completed = append(completed, types.CompletedPart{
				ETag:       etag,
				PartNumber: aws.Int32(partNumber),
			})
			break
		}
	}

	err = s.withRetry(ctx, "save", uri, func() error {
		_, completeErr := s.client.CompleteMultipartUpload(ctx, &awss3.CompleteMultipartUploadInput{
			Bucket:   aws.String(bucket),
			Key:      aws.String(key),
			UploadId: aws.String(uploadID),
			MultipartUpload: &types.CompletedMultipartUpload{
				Parts: completed,
			},
		})
		return completeErr
	})
	if err != nil {
		return storage.OpError("save", uri, err)
	}
	return nil
}

func (s *Store) uploadPart(ctx context.Context, uri, bucket, key, uploadID string, partNumber int32, data []byte) (*string, error) {
	body := bytes.NewReader(data)
	var result *awss3.UploadPartOutput
	err := s.withRetry(ctx, "save", uri, func() error {
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return err
		}
		var uploadErr error
		result, uploadErr = s.client.UploadPart(ctx, &awss3.UploadPartInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			UploadId:      aws.String(uploadID),
			PartNumber:    aws.Int32(partNumber),
			Body:          body,
			ContentLength: aws.Int64(int64(len(data))),
		})
		return uploadErr
	})
	if err != nil {
		return nil, storage.OpError("save", uri, fmt.Errorf("uploading part %d: %w", partNumber, err))
	}
	return result.ETag, nil
}

// Delete removes the object. A missing object reports ErrBlobNotFound so
// callers can tell a repeated delete from a successful one.
func (s *Store) Delete(ctx context.Context, uri string) error {
	if s.isClosed() {
		return storage.OpError("delete", uri, storage.ErrBackendClosed)
	}
	bucket, key, err := parseURI(uri)
	if err != nil {
		return storage.OpError("delete", uri, err)
	}

	// DeleteObject succeeds silently for missing keys, so probe first.
	err = s.withRetry(ctx, "delete", uri, func() error {
		_, headErr := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		return headErr
	})
	if err != nil {
		if isNotFoundError(err) {
			return storage.OpError("delete", uri, storage.ErrBlobNotFound)
		}
		return storage.OpError("delete", uri, err)
	}

	err = s.withRetry(ctx, "delete", uri, func() error {
		_, deleteErr := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		return deleteErr
	})
	if err != nil {
		return storage.OpError("delete", uri, err)
	}
	return nil
}
