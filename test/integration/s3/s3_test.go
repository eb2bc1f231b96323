//go:build integration

package s3_test

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/arcafs/arca/pkg/storage"
	s3store "github.com/arcafs/arca/pkg/storage/s3"
)

// localstackHelper manages the Localstack container for S3 integration tests.
type localstackHelper struct {
	container testcontainers.Container
	endpoint  string
}

// newLocalstackHelper starts a Localstack container or connects to an
// existing one when LOCALSTACK_ENDPOINT is set.
func newLocalstackHelper(t *testing.T) *localstackHelper {
	t.Helper()
	ctx := context.Background()

	if endpoint := os.Getenv("LOCALSTACK_ENDPOINT"); endpoint != "" {
		return &localstackHelper{endpoint: endpoint}
	}

	req := testcontainers.ContainerRequest{
		Image:        "localstack/localstack:3.0",
		ExposedPorts: []string{"4566/tcp"},
		Env: map[string]string{
			"SERVICES":              "s3",
			"DEFAULT_REGION":        "us-east-1",
			"EAGER_SERVICE_LOADING": "1",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4566/tcp"),
			wait.ForHTTP("/_localstack/health").
				WithPort("4566/tcp").
				WithStartupTimeout(60*time.Second),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start localstack container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "4566")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get container port: %v", err)
	}

	return &localstackHelper{
		container: container,
		endpoint:  fmt.Sprintf("http://%s:%s", host, port.Port()),
	}
}

func (lh *localstackHelper) config() s3store.Config {
	return s3store.Config{
		Endpoint:        lh.endpoint,
		Region:          "us-east-1",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		ForcePathStyle:  true,
	}
}

// createBucket creates an S3 bucket through a raw client, the way an
// operator would provision one before pointing a location at it.
func (lh *localstackHelper) createBucket(t *testing.T, name string) {
	t.Helper()
	ctx := context.Background()

	client, err := s3store.NewClient(ctx, lh.config())
	if err != nil {
		t.Fatalf("failed to create s3 client: %v", err)
	}
	if _, err := client.CreateBucket(ctx, &awss3.CreateBucketInput{
		Bucket: aws.String(name),
	}); err != nil {
		t.Fatalf("failed to create test bucket: %v", err)
	}
}

// cleanupBucket removes a bucket and all its contents.
func (lh *localstackHelper) cleanupBucket(name string) {
	ctx := context.Background()

	client, err := s3store.NewClient(ctx, lh.config())
	if err != nil {
		return
	}
	listResp, _ := client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
		Bucket: aws.String(name),
	})
	if listResp != nil {
		for _, obj := range listResp.Contents {
			_, _ = client.DeleteObject(ctx, &awss3.DeleteObjectInput{
				Bucket: aws.String(name),
				Key:    obj.Key,
			})
		}
	}
	_, _ = client.DeleteBucket(ctx, &awss3.DeleteBucketInput{
		Bucket: aws.String(name),
	})
}

// cleanup terminates the container if we started one.
func (lh *localstackHelper) cleanup() {
	if lh.container != nil {
		_ = lh.container.Terminate(context.Background())
	}
}

// TestS3Backend_RoundTrip exercises the blob backend contract against a real
// S3-compatible service: save, open, range reads, recomputed checksums and
// delete-with-probe semantics.
func TestS3Backend_RoundTrip(t *testing.T) {
	ctx := context.Background()

	helper := newLocalstackHelper(t)
	defer helper.cleanup()

	const bucket = "arca-roundtrip"
	helper.createBucket(t, bucket)
	defer helper.cleanupBucket(bucket)

	backend, err := s3store.New(ctx, helper.config())
	if err != nil {
		t.Fatalf("failed to create s3 backend: %v", err)
	}
	defer backend.Close()

	uri := "s3://" + bucket + "/ab/cd/abcd1234/data"
	body := []byte("hello\n")

	result, err := backend.Save(ctx, uri, bytes.NewReader(body), storage.SaveOptions{})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if result.Size != int64(len(body)) {
		t.Errorf("Save size = %d, want %d", result.Size, len(body))
	}
	if want := "md5:b1946ac92492d2347c6235b4d2611184"; result.Checksum != want {
		t.Errorf("Save checksum = %q, want %q", result.Checksum, want)
	}

	t.Run("Open", func(t *testing.T) {
		r, err := backend.Open(ctx, uri)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer r.Close()
		got, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if !bytes.Equal(got, body) {
			t.Errorf("Open returned %q, want %q", got, body)
		}
	})

	t.Run("OpenRange", func(t *testing.T) {
		r, err := backend.OpenRange(ctx, uri, 2, 3)
		if err != nil {
			t.Fatalf("OpenRange failed: %v", err)
		}
		defer r.Close()
		got, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if string(got) != "llo" {
			t.Errorf("OpenRange(2,3) = %q, want %q", got, "llo")
		}
	})

	t.Run("OpenRangeTail", func(t *testing.T) {
		r, err := backend.OpenRange(ctx, uri, 4, -1)
		if err != nil {
			t.Fatalf("OpenRange failed: %v", err)
		}
		defer r.Close()
		got, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if string(got) != "o\n" {
			t.Errorf("OpenRange(4,-1) = %q, want %q", got, "o\n")
		}
	})

	t.Run("Size", func(t *testing.T) {
		size, err := backend.Size(ctx, uri)
		if err != nil {
			t.Fatalf("Size failed: %v", err)
		}
		if size != int64(len(body)) {
			t.Errorf("Size = %d, want %d", size, len(body))
		}
	})

	t.Run("Checksum", func(t *testing.T) {
		sum, err := backend.Checksum(ctx, uri, "md5")
		if err != nil {
			t.Fatalf("Checksum failed: %v", err)
		}
		if sum != result.Checksum {
			t.Errorf("recomputed checksum %q differs from stored %q", sum, result.Checksum)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := backend.Delete(ctx, uri); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := backend.Open(ctx, uri); !errors.Is(err, storage.ErrBlobNotFound) {
			t.Errorf("Open after delete: got %v, want ErrBlobNotFound", err)
		}
		// The probe distinguishes a real delete from a silent no-op.
		if err := backend.Delete(ctx, uri); !errors.Is(err, storage.ErrBlobNotFound) {
			t.Errorf("second Delete: got %v, want ErrBlobNotFound", err)
		}
	})
}

// TestS3Backend_MultipartThreshold pushes a payload larger than the part
// size so the save goes through native S3 multipart instead of PutObject.
func TestS3Backend_MultipartThreshold(t *testing.T) {
	ctx := context.Background()

	helper := newLocalstackHelper(t)
	defer helper.cleanup()

	const bucket = "arca-multipart"
	helper.createBucket(t, bucket)
	defer helper.cleanupBucket(bucket)

	backend, err := s3store.New(ctx, helper.config())
	if err != nil {
		t.Fatalf("failed to create s3 backend: %v", err)
	}
	defer backend.Close()

	// One full 5MB part plus a short tail.
	body := make([]byte, 5*1024*1024+4096)
	for i := range body {
		body[i] = byte(i % 251)
	}
	sum := md5.Sum(body)
	wantChecksum := "md5:" + hex.EncodeToString(sum[:])

	uri := "s3://" + bucket + "/ef/gh/efgh5678/data"

	result, err := backend.Save(ctx, uri, bytes.NewReader(body), storage.SaveOptions{})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if result.Size != int64(len(body)) {
		t.Errorf("Save size = %d, want %d", result.Size, len(body))
	}
	if result.Checksum != wantChecksum {
		t.Errorf("Save checksum = %q, want %q", result.Checksum, wantChecksum)
	}

	r, err := backend.Open(ctx, uri)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Errorf("assembled content differs: got %d bytes, want %d", len(got), len(body))
	}

	recomputed, err := backend.Checksum(ctx, uri, "md5")
	if err != nil {
		t.Fatalf("Checksum failed: %v", err)
	}
	if recomputed != wantChecksum {
		t.Errorf("recomputed checksum %q, want %q", recomputed, wantChecksum)
	}
}

// TestS3Backend_SizeLimit verifies that an over-limit stream is rejected and
// leaves no partial object behind.
func TestS3Backend_SizeLimit(t *testing.T) {
	ctx := context.Background()

	helper := newLocalstackHelper(t)
	defer helper.cleanup()

	const bucket = "arca-sizelimit"
	helper.createBucket(t, bucket)
	defer helper.cleanupBucket(bucket)

	backend, err := s3store.New(ctx, helper.config())
	if err != nil {
		t.Fatalf("failed to create s3 backend: %v", err)
	}
	defer backend.Close()

	uri := "s3://" + bucket + "/ij/kl/ijkl9012/data"

	_, err = backend.Save(ctx, uri, bytes.NewReader([]byte("too big")), storage.SaveOptions{SizeLimit: 3})
	if !errors.Is(err, storage.ErrSizeLimitExceeded) {
		t.Fatalf("Save over limit: got %v, want ErrSizeLimitExceeded", err)
	}

	if _, err := backend.Open(ctx, uri); !errors.Is(err, storage.ErrBlobNotFound) {
		t.Errorf("rejected save left an object behind: Open returned %v", err)
	}
}

// TestS3Backend_HealthCheck covers the configured-bucket probe in both
// directions.
func TestS3Backend_HealthCheck(t *testing.T) {
	ctx := context.Background()

	helper := newLocalstackHelper(t)
	defer helper.cleanup()

	const bucket = "arca-health"
	helper.createBucket(t, bucket)
	defer helper.cleanupBucket(bucket)

	t.Run("BucketReachable", func(t *testing.T) {
		cfg := helper.config()
		cfg.Bucket = bucket
		backend, err := s3store.New(ctx, cfg)
		if err != nil {
			t.Fatalf("failed to create s3 backend: %v", err)
		}
		defer backend.Close()

		if err := backend.HealthCheck(ctx); err != nil {
			t.Errorf("HealthCheck failed: %v", err)
		}
	})

	t.Run("BucketMissing", func(t *testing.T) {
		cfg := helper.config()
		cfg.Bucket = "arca-no-such-bucket"
		if _, err := s3store.New(ctx, cfg); err == nil {
			t.Error("New succeeded against a missing bucket")
		}
	})
}
