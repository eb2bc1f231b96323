package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/arcafs/arca/pkg/models"
)

func TestCreateBucket(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultQuotaSize = 1 << 20
	f := newFixture(t, cfg)
	ctx := context.Background()

	bucket, err := f.eng.CreateBucket(ctx, CreateBucketParams{})
	if err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}
	if bucket.DefaultLocation.Name != "main" {
		t.Errorf("location = %q, want the default", bucket.DefaultLocation.Name)
	}
	if bucket.DefaultStorageClass != "S" {
		t.Errorf("class = %q, want S", bucket.DefaultStorageClass)
	}
	if bucket.QuotaSize == nil || *bucket.QuotaSize != 1<<20 {
		t.Errorf("quota = %v, want the configured default stamped on", bucket.QuotaSize)
	}

	cold, err := f.eng.CreateBucket(ctx, CreateBucketParams{LocationName: "cold", StorageClass: "A"})
	if err != nil {
		t.Fatalf("CreateBucket cold: %v", err)
	}
	if cold.DefaultLocation.Name != "cold" || cold.DefaultStorageClass != "A" {
		t.Errorf("got %q/%q, want cold/A", cold.DefaultLocation.Name, cold.DefaultStorageClass)
	}

	if _, err := f.eng.CreateBucket(ctx, CreateBucketParams{StorageClass: "Z"}); !errors.Is(err, models.ErrInvalidStorageClass) {
		t.Fatalf("got %v, want ErrInvalidStorageClass", err)
	}
	if _, err := f.eng.CreateBucket(ctx, CreateBucketParams{LocationName: "missing"}); !errors.Is(err, models.ErrLocationNotFound) {
		t.Fatalf("got %v, want ErrLocationNotFound", err)
	}
}

func TestBucketLockAndDelete(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	bucket := f.newBucket(t, "")

	if err := f.eng.SetBucketLock(ctx, bucket.ID, true); err != nil {
		t.Fatalf("SetBucketLock: %v", err)
	}
	_, err := f.eng.UploadObject(ctx, bucket.ID, "a.txt", strings.NewReader("hi"), UploadOptions{ContentLength: 2})
	if !errors.Is(err, models.ErrBucketLocked) {
		t.Fatalf("upload to locked bucket: got %v, want ErrBucketLocked", err)
	}

	if err := f.eng.SetBucketLock(ctx, bucket.ID, false); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := f.eng.UploadObject(ctx, bucket.ID, "a.txt", strings.NewReader("hi"), UploadOptions{ContentLength: 2}); err != nil {
		t.Fatalf("upload after unlock: %v", err)
	}

	if err := f.eng.DeleteBucket(ctx, bucket.ID); err != nil {
		t.Fatalf("DeleteBucket: %v", err)
	}
	if _, err := f.eng.GetBucket(ctx, bucket.ID); !errors.Is(err, models.ErrBucketDeleted) {
		t.Fatalf("get deleted bucket: got %v, want ErrBucketDeleted", err)
	}
	if err := f.eng.DeleteBucket(ctx, bucket.ID); !errors.Is(err, models.ErrBucketDeleted) {
		t.Fatalf("double delete: got %v, want ErrBucketDeleted", err)
	}
	if _, err := f.eng.DownloadObject(ctx, bucket.ID, "a.txt", ""); !errors.Is(err, models.ErrBucketDeleted) {
		t.Fatalf("download from deleted bucket: got %v, want ErrBucketDeleted", err)
	}

	buckets, err := f.eng.ListBuckets(ctx)
	if err != nil {
		t.Fatalf("ListBuckets: %v", err)
	}
	for _, b := range buckets {
		if b.ID == bucket.ID {
			t.Fatal("deleted bucket still listed")
		}
	}
}

func TestUpdateBucketLimits(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	bucket := f.newBucket(t, "")

	quota := int64(10)
	if err := f.eng.UpdateBucketLimits(ctx, bucket.ID, &quota, nil); err != nil {
		t.Fatalf("UpdateBucketLimits: %v", err)
	}

	if _, err := f.eng.UploadObject(ctx, bucket.ID, "a.txt", strings.NewReader("12345678"), UploadOptions{ContentLength: 8}); err != nil {
		t.Fatalf("upload within quota: %v", err)
	}
	_, err := f.eng.UploadObject(ctx, bucket.ID, "b.txt", strings.NewReader("123"), UploadOptions{ContentLength: 3})
	if !errors.Is(err, models.ErrFileSize) {
		t.Fatalf("upload over quota: got %v, want ErrFileSize", err)
	}

	// Exactly filling the quota is allowed.
	if _, err := f.eng.UploadObject(ctx, bucket.ID, "c.txt", strings.NewReader("12"), UploadOptions{ContentLength: 2}); err != nil {
		t.Fatalf("upload filling quota exactly: %v", err)
	}

	maxFile := int64(4)
	if err := f.eng.UpdateBucketLimits(ctx, bucket.ID, nil, &maxFile); err != nil {
		t.Fatalf("clear quota, set file limit: %v", err)
	}
	_, err = f.eng.UploadObject(ctx, bucket.ID, "d.txt", strings.NewReader("12345"), UploadOptions{ContentLength: 5})
	if !errors.Is(err, models.ErrFileSize) {
		t.Fatalf("upload over file limit: got %v, want ErrFileSize", err)
	}
}

func TestSnapshotBucket(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	src := f.newBucket(t, "")

	if _, err := f.eng.UploadObject(ctx, src.ID, "keep.txt", strings.NewReader("hello"), UploadOptions{ContentLength: 5}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := f.eng.UploadObject(ctx, src.ID, "gone.txt", strings.NewReader("bye"), UploadOptions{ContentLength: 3}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := f.eng.DeleteObject(ctx, src.ID, "gone.txt"); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}

	snap, err := f.eng.SnapshotBucket(ctx, src.ID, true)
	if err != nil {
		t.Fatalf("SnapshotBucket: %v", err)
	}
	if !snap.Locked {
		t.Error("snapshot not locked")
	}
	if snap.Size != 5 {
		t.Errorf("snapshot size = %d, want 5", snap.Size)
	}

	// Only the live head came over, sharing the source's content.
	heads, err := f.eng.ListObjects(ctx, snap.ID, listAll())
	if err != nil {
		t.Fatalf("ListObjects: %v", err)
	}
	if len(heads) != 1 || heads[0].Key != "keep.txt" {
		t.Fatalf("snapshot heads = %+v, want just keep.txt", heads)
	}
	srcHead, err := f.eng.StatObject(ctx, src.ID, "keep.txt", "")
	if err != nil {
		t.Fatalf("StatObject: %v", err)
	}
	if *heads[0].FileID != *srcHead.FileID {
		t.Error("snapshot head does not share the source file instance")
	}

	dl, err := f.eng.DownloadObject(ctx, snap.ID, "keep.txt", "")
	if err != nil {
		t.Fatalf("DownloadObject from snapshot: %v", err)
	}
	if got := readAll(t, dl); got != "hello" {
		t.Errorf("snapshot content = %q, want hello", got)
	}

	// The lock took effect.
	if _, err := f.eng.UploadObject(ctx, snap.ID, "x", strings.NewReader("x"), UploadOptions{ContentLength: 1}); !errors.Is(err, models.ErrBucketLocked) {
		t.Fatalf("upload to locked snapshot: got %v, want ErrBucketLocked", err)
	}

	if err := f.eng.DeleteBucket(ctx, src.ID); err != nil {
		t.Fatalf("DeleteBucket: %v", err)
	}
	if _, err := f.eng.SnapshotBucket(ctx, src.ID, false); !errors.Is(err, models.ErrBucketDeleted) {
		t.Fatalf("snapshot of deleted bucket: got %v, want ErrBucketDeleted", err)
	}
}

func TestBucketStats(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	bucket := f.newBucket(t, "")

	if _, err := f.eng.UploadObject(ctx, bucket.ID, "a", strings.NewReader("one"), UploadOptions{ContentLength: 3}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := f.eng.UploadObject(ctx, bucket.ID, "a", strings.NewReader("two"), UploadOptions{ContentLength: 3}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := f.eng.UploadObject(ctx, bucket.ID, "b", strings.NewReader("three"), UploadOptions{ContentLength: 5}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := f.eng.DeleteObject(ctx, bucket.ID, "b"); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}

	objects, versions, err := f.eng.BucketStats(ctx, bucket.ID)
	if err != nil {
		t.Fatalf("BucketStats: %v", err)
	}
	// "a" is live; "b" sits behind a delete marker. Versions count every
	// row: two for "a", one for "b" plus its marker.
	if objects != 1 {
		t.Errorf("objects = %d, want 1", objects)
	}
	if versions != 4 {
		t.Errorf("versions = %d, want 4", versions)
	}
}

func TestBucketTags(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	bucket := f.newBucket(t, "")

	if err := f.eng.SetBucketTags(ctx, bucket.ID, map[string]string{"env": "prod", "team": "infra"}); err != nil {
		t.Fatalf("SetBucketTags: %v", err)
	}
	if err := f.eng.SetBucketTags(ctx, bucket.ID, map[string]string{"env": "staging"}); err != nil {
		t.Fatalf("SetBucketTags merge: %v", err)
	}

	tags, err := f.eng.GetBucketTags(ctx, bucket.ID)
	if err != nil {
		t.Fatalf("GetBucketTags: %v", err)
	}
	if len(tags) != 2 || tags[0].Key != "env" || tags[0].Value != "staging" {
		t.Fatalf("tags = %+v, want merged env=staging first", tags)
	}

	if err := f.eng.DeleteBucketTags(ctx, bucket.ID, []string{"env"}); err != nil {
		t.Fatalf("DeleteBucketTags: %v", err)
	}
	tags, err = f.eng.GetBucketTags(ctx, bucket.ID)
	if err != nil {
		t.Fatalf("GetBucketTags: %v", err)
	}
	if len(tags) != 1 || tags[0].Key != "team" {
		t.Fatalf("tags after delete = %+v, want just team", tags)
	}

	if err := f.eng.DeleteBucket(ctx, bucket.ID); err != nil {
		t.Fatalf("DeleteBucket: %v", err)
	}
	if _, err := f.eng.GetBucketTags(ctx, bucket.ID); !errors.Is(err, models.ErrBucketDeleted) {
		t.Fatalf("tags of deleted bucket: got %v, want ErrBucketDeleted", err)
	}
}
