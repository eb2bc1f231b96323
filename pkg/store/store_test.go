//go:build integration

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arcafs/arca/pkg/models"
)

// createTestStore creates an in-memory SQLite store for testing.
func createTestStore(t *testing.T) *GORMStore {
	t.Helper()
	store, err := New(&Config{
		Type: DatabaseTypeSQLite,
		SQLite: SQLiteConfig{
			Path: ":memory:",
		},
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	return store
}

func createTestLocation(t *testing.T, s *GORMStore, name string, isDefault bool) *models.Location {
	t.Helper()
	loc := &models.Location{
		Name:           name,
		URI:            "/srv/arca/" + name,
		IsDefault:      isDefault,
		StorageBackend: "fs",
	}
	if err := s.CreateLocation(context.Background(), loc); err != nil {
		t.Fatalf("failed to create location %q: %v", name, err)
	}
	return loc
}

func createTestBucket(t *testing.T, s *GORMStore, loc *models.Location) *models.Bucket {
	t.Helper()
	bucket := &models.Bucket{
		DefaultLocationID:   loc.ID,
		DefaultStorageClass: "S",
	}
	if _, err := s.CreateBucket(context.Background(), bucket); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}
	return bucket
}

func int64Ptr(v int64) *int64 { return &v }

func boolPtr(v bool) *bool { return &v }

func TestNew(t *testing.T) {
	t.Run("default config uses sqlite", func(t *testing.T) {
		config := &Config{}
		config.ApplyDefaults()

		if config.Type != DatabaseTypeSQLite {
			t.Errorf("expected SQLite, got %s", config.Type)
		}
	})

	t.Run("invalid config returns error", func(t *testing.T) {
		_, err := New(&Config{Type: "invalid"})
		if err == nil {
			t.Error("expected error for invalid config")
		}
	})

	t.Run("creates in-memory store", func(t *testing.T) {
		store := createTestStore(t)
		defer store.Close()

		if err := store.Healthcheck(context.Background()); err != nil {
			t.Errorf("healthcheck failed: %v", err)
		}
	})
}

func TestLocationOperations(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	t.Run("create location", func(t *testing.T) {
		loc := createTestLocation(t, store, "eu-west", true)
		if loc.ID == 0 {
			t.Error("expected non-zero location ID")
		}
	})

	t.Run("duplicate name fails", func(t *testing.T) {
		err := store.CreateLocation(ctx, &models.Location{
			Name:           "eu-west",
			URI:            "/elsewhere",
			StorageBackend: "fs",
		})
		if !errors.Is(err, models.ErrDuplicateLocation) {
			t.Errorf("expected ErrDuplicateLocation, got %v", err)
		}
	})

	t.Run("invalid name fails", func(t *testing.T) {
		err := store.CreateLocation(ctx, &models.Location{
			Name:           "Bad_Name",
			URI:            "/x",
			StorageBackend: "fs",
		})
		if !errors.Is(err, models.ErrInvalidLocation) {
			t.Errorf("expected ErrInvalidLocation, got %v", err)
		}
	})

	t.Run("get location", func(t *testing.T) {
		loc, err := store.GetLocation(ctx, "eu-west")
		if err != nil {
			t.Fatalf("failed to get location: %v", err)
		}
		if !loc.IsDefault {
			t.Error("expected eu-west to be the default")
		}
	})

	t.Run("get location not found", func(t *testing.T) {
		_, err := store.GetLocation(ctx, "nowhere")
		if !errors.Is(err, models.ErrLocationNotFound) {
			t.Errorf("expected ErrLocationNotFound, got %v", err)
		}
	})

	t.Run("creating a second default swaps the flag", func(t *testing.T) {
		createTestLocation(t, store, "us-east", true)

		old, _ := store.GetLocation(ctx, "eu-west")
		if old.IsDefault {
			t.Error("expected eu-west to lose the default flag")
		}
		def, err := store.GetDefaultLocation(ctx)
		if err != nil {
			t.Fatalf("failed to get default location: %v", err)
		}
		if def.Name != "us-east" {
			t.Errorf("expected default us-east, got %q", def.Name)
		}
	})

	t.Run("set default location", func(t *testing.T) {
		if err := store.SetDefaultLocation(ctx, "eu-west"); err != nil {
			t.Fatalf("failed to set default: %v", err)
		}
		def, _ := store.GetDefaultLocation(ctx)
		if def.Name != "eu-west" {
			t.Errorf("expected default eu-west, got %q", def.Name)
		}
	})

	t.Run("list locations ordered by name", func(t *testing.T) {
		locs, err := store.ListLocations(ctx)
		if err != nil {
			t.Fatalf("failed to list locations: %v", err)
		}
		if len(locs) != 2 {
			t.Fatalf("expected 2 locations, got %d", len(locs))
		}
		if locs[0].Name != "eu-west" || locs[1].Name != "us-east" {
			t.Errorf("unexpected order: %q, %q", locs[0].Name, locs[1].Name)
		}
	})
}

func TestBucketOperations(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	loc := createTestLocation(t, store, "local", true)
	bucket := createTestBucket(t, store, loc)

	t.Run("get bucket preloads location", func(t *testing.T) {
		got, err := store.GetBucket(ctx, bucket.ID)
		if err != nil {
			t.Fatalf("failed to get bucket: %v", err)
		}
		if got.DefaultLocation.Name != "local" {
			t.Errorf("expected preloaded location, got %q", got.DefaultLocation.Name)
		}
		if got.Size != 0 {
			t.Errorf("expected zero size, got %d", got.Size)
		}
	})

	t.Run("get bucket not found", func(t *testing.T) {
		_, err := store.GetBucket(ctx, "00000000-0000-0000-0000-000000000000")
		if !errors.Is(err, models.ErrBucketNotFound) {
			t.Errorf("expected ErrBucketNotFound, got %v", err)
		}
	})

	t.Run("update limits", func(t *testing.T) {
		err := store.UpdateBucketLimits(ctx, bucket.ID, int64Ptr(100), int64Ptr(50))
		if err != nil {
			t.Fatalf("failed to update limits: %v", err)
		}
		got, _ := store.GetBucket(ctx, bucket.ID)
		if got.QuotaSize == nil || *got.QuotaSize != 100 {
			t.Errorf("quota = %v, want 100", got.QuotaSize)
		}
		if got.MaxFileSize == nil || *got.MaxFileSize != 50 {
			t.Errorf("max file size = %v, want 50", got.MaxFileSize)
		}
	})

	t.Run("reserve space within quota", func(t *testing.T) {
		if err := store.ReserveBucketSpace(ctx, bucket.ID, 40, int64Ptr(100)); err != nil {
			t.Fatalf("reserve failed: %v", err)
		}
		got, _ := store.GetBucket(ctx, bucket.ID)
		if got.Size != 40 {
			t.Errorf("size = %d, want 40", got.Size)
		}
	})

	t.Run("reserve exact fit", func(t *testing.T) {
		if err := store.ReserveBucketSpace(ctx, bucket.ID, 60, int64Ptr(100)); err != nil {
			t.Fatalf("exact fit rejected: %v", err)
		}
	})

	t.Run("reserve over quota", func(t *testing.T) {
		err := store.ReserveBucketSpace(ctx, bucket.ID, 1, int64Ptr(100))
		if !errors.Is(err, models.ErrFileSize) {
			t.Errorf("expected ErrFileSize, got %v", err)
		}
		got, _ := store.GetBucket(ctx, bucket.ID)
		if got.Size != 100 {
			t.Errorf("size changed on rejected reserve: %d", got.Size)
		}
	})

	t.Run("adjust size clamps at zero", func(t *testing.T) {
		if err := store.AdjustBucketSize(ctx, bucket.ID, -500); err != nil {
			t.Fatalf("adjust failed: %v", err)
		}
		got, _ := store.GetBucket(ctx, bucket.ID)
		if got.Size != 0 {
			t.Errorf("size = %d, want 0", got.Size)
		}
	})

	t.Run("reserve on locked bucket", func(t *testing.T) {
		if err := store.SetBucketLock(ctx, bucket.ID, true); err != nil {
			t.Fatalf("failed to lock: %v", err)
		}
		err := store.ReserveBucketSpace(ctx, bucket.ID, 1, nil)
		if !errors.Is(err, models.ErrBucketLocked) {
			t.Errorf("expected ErrBucketLocked, got %v", err)
		}
		if err := store.SetBucketLock(ctx, bucket.ID, false); err != nil {
			t.Fatalf("failed to unlock: %v", err)
		}
	})

	t.Run("bucket tags", func(t *testing.T) {
		err := store.SetBucketTags(ctx, bucket.ID, map[string]string{"env": "prod", "team": "data"})
		if err != nil {
			t.Fatalf("failed to set tags: %v", err)
		}

		// merge replaces existing keys and adds new ones
		err = store.SetBucketTags(ctx, bucket.ID, map[string]string{"env": "staging", "tier": "hot"})
		if err != nil {
			t.Fatalf("failed to merge tags: %v", err)
		}

		tags, err := store.GetBucketTags(ctx, bucket.ID)
		if err != nil {
			t.Fatalf("failed to get tags: %v", err)
		}
		if len(tags) != 3 {
			t.Fatalf("expected 3 tags, got %d", len(tags))
		}
		if tags[0].Key != "env" || tags[0].Value != "staging" {
			t.Errorf("tags[0] = %s=%s, want env=staging", tags[0].Key, tags[0].Value)
		}

		err = store.DeleteBucketTags(ctx, bucket.ID, []string{"team", "missing"})
		if err != nil {
			t.Fatalf("failed to delete tags: %v", err)
		}
		tags, _ = store.GetBucketTags(ctx, bucket.ID)
		if len(tags) != 2 {
			t.Errorf("expected 2 tags after delete, got %d", len(tags))
		}
	})

	t.Run("tags on missing bucket", func(t *testing.T) {
		err := store.SetBucketTags(ctx, "00000000-0000-0000-0000-000000000000", map[string]string{"a": "b"})
		if !errors.Is(err, models.ErrBucketNotFound) {
			t.Errorf("expected ErrBucketNotFound, got %v", err)
		}
	})

	t.Run("mark deleted", func(t *testing.T) {
		if err := store.MarkBucketDeleted(ctx, bucket.ID); err != nil {
			t.Fatalf("failed to mark deleted: %v", err)
		}

		err := store.ReserveBucketSpace(ctx, bucket.ID, 1, nil)
		if !errors.Is(err, models.ErrBucketDeleted) {
			t.Errorf("expected ErrBucketDeleted, got %v", err)
		}

		buckets, _ := store.ListBuckets(ctx)
		for _, b := range buckets {
			if b.ID == bucket.ID {
				t.Error("deleted bucket still listed")
			}
		}
	})
}

func TestObjectVersionOperations(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	loc := createTestLocation(t, store, "local", true)
	bucket := createTestBucket(t, store, loc)

	newStoredFile := func(t *testing.T, uri string, size int64) *models.FileInstance {
		t.Helper()
		file := &models.FileInstance{Writable: true}
		if _, err := store.CreateFileInstance(ctx, file); err != nil {
			t.Fatalf("failed to create file: %v", err)
		}
		if err := file.MarkStored(uri, size, "md5:aa"); err != nil {
			t.Fatalf("failed to mark stored: %v", err)
		}
		if err := store.MarkFileStored(ctx, file); err != nil {
			t.Fatalf("failed to persist stored file: %v", err)
		}
		return file
	}

	fileV1 := newStoredFile(t, "fs:///data/v1", 6)

	t.Run("first head", func(t *testing.T) {
		v := &models.ObjectVersion{
			BucketID: bucket.ID,
			Key:      "docs/hello.txt",
			FileID:   &fileV1.ID,
			Mimetype: "text/plain",
		}
		if err := store.SetHeadVersion(ctx, v); err != nil {
			t.Fatalf("failed to set head: %v", err)
		}
		if v.VersionID == "" {
			t.Error("expected generated version ID")
		}

		head, err := store.GetHeadVersion(ctx, bucket.ID, "docs/hello.txt")
		if err != nil {
			t.Fatalf("failed to get head: %v", err)
		}
		if head.File == nil || head.File.Size != 6 {
			t.Error("expected preloaded file instance")
		}
	})

	var v1ID string

	t.Run("new head demotes old", func(t *testing.T) {
		old, _ := store.GetHeadVersion(ctx, bucket.ID, "docs/hello.txt")
		v1ID = old.VersionID

		time.Sleep(2 * time.Millisecond)
		fileV2 := newStoredFile(t, "fs:///data/v2", 9)
		v2 := &models.ObjectVersion{
			BucketID: bucket.ID,
			Key:      "docs/hello.txt",
			FileID:   &fileV2.ID,
		}
		if err := store.SetHeadVersion(ctx, v2); err != nil {
			t.Fatalf("failed to set second head: %v", err)
		}

		head, _ := store.GetHeadVersion(ctx, bucket.ID, "docs/hello.txt")
		if head.VersionID != v2.VersionID {
			t.Errorf("head = %s, want %s", head.VersionID, v2.VersionID)
		}

		demoted, err := store.GetVersion(ctx, bucket.ID, "docs/hello.txt", v1ID)
		if err != nil {
			t.Fatalf("failed to get demoted version: %v", err)
		}
		if demoted.IsHead {
			t.Error("old head was not demoted")
		}
	})

	t.Run("delete marker becomes head", func(t *testing.T) {
		time.Sleep(2 * time.Millisecond)
		marker := &models.ObjectVersion{
			BucketID: bucket.ID,
			Key:      "docs/hello.txt",
		}
		if err := store.SetHeadVersion(ctx, marker); err != nil {
			t.Fatalf("failed to set delete marker: %v", err)
		}

		head, _ := store.GetHeadVersion(ctx, bucket.ID, "docs/hello.txt")
		if !head.IsDeleteMarker() {
			t.Error("expected head to be a delete marker")
		}
	})

	t.Run("list heads skips delete markers", func(t *testing.T) {
		fileOther := newStoredFile(t, "fs:///data/other", 3)
		other := &models.ObjectVersion{
			BucketID: bucket.ID,
			Key:      "img/logo.png",
			FileID:   &fileOther.ID,
		}
		if err := store.SetHeadVersion(ctx, other); err != nil {
			t.Fatalf("failed to set head: %v", err)
		}

		heads, err := store.ListHeads(ctx, bucket.ID, ListObjectsOptions{})
		if err != nil {
			t.Fatalf("failed to list heads: %v", err)
		}
		if len(heads) != 1 || heads[0].Key != "img/logo.png" {
			t.Errorf("expected only img/logo.png, got %d heads", len(heads))
		}

		withMarkers, _ := store.ListHeads(ctx, bucket.ID, ListObjectsOptions{WithDeleteMarkers: true})
		if len(withMarkers) != 2 {
			t.Errorf("expected 2 heads including marker, got %d", len(withMarkers))
		}
	})

	t.Run("list heads with prefix and limit", func(t *testing.T) {
		heads, err := store.ListHeads(ctx, bucket.ID, ListObjectsOptions{Prefix: "img/"})
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(heads) != 1 {
			t.Errorf("expected 1 head under img/, got %d", len(heads))
		}

		heads, _ = store.ListHeads(ctx, bucket.ID, ListObjectsOptions{Prefix: "docs/"})
		if len(heads) != 0 {
			t.Errorf("expected no live heads under docs/, got %d", len(heads))
		}
	})

	t.Run("list all versions", func(t *testing.T) {
		versions, err := store.ListVersions(ctx, bucket.ID, ListObjectsOptions{})
		if err != nil {
			t.Fatalf("failed to list versions: %v", err)
		}
		// 3 versions of hello.txt (two content, one marker) + 1 logo.png
		if len(versions) != 4 {
			t.Errorf("expected 4 versions, got %d", len(versions))
		}
	})

	t.Run("key versions newest first", func(t *testing.T) {
		versions, err := store.ListKeyVersions(ctx, bucket.ID, "docs/hello.txt")
		if err != nil {
			t.Fatalf("failed to list key versions: %v", err)
		}
		if len(versions) != 3 {
			t.Fatalf("expected 3 versions, got %d", len(versions))
		}
		if !versions[0].IsDeleteMarker() {
			t.Error("expected newest version to be the marker")
		}
		if versions[2].VersionID != v1ID {
			t.Error("expected oldest version last")
		}
	})

	t.Run("version tags", func(t *testing.T) {
		head, _ := store.GetHeadVersion(ctx, bucket.ID, "img/logo.png")

		err := store.SetVersionTags(ctx, head.VersionID, map[string]string{"origin": "upload"})
		if err != nil {
			t.Fatalf("failed to set version tags: %v", err)
		}
		tags, err := store.GetVersionTags(ctx, head.VersionID)
		if err != nil {
			t.Fatalf("failed to get version tags: %v", err)
		}
		if len(tags) != 1 || tags[0].Value != "upload" {
			t.Errorf("unexpected tags: %+v", tags)
		}

		err = store.SetVersionTags(ctx, "00000000-0000-0000-0000-000000000000", map[string]string{"a": "b"})
		if !errors.Is(err, models.ErrVersionNotFound) {
			t.Errorf("expected ErrVersionNotFound, got %v", err)
		}
	})

	t.Run("deleting head promotes previous version", func(t *testing.T) {
		head, _ := store.GetHeadVersion(ctx, bucket.ID, "docs/hello.txt")

		deleted, err := store.DeleteVersion(ctx, bucket.ID, "docs/hello.txt", head.VersionID)
		if err != nil {
			t.Fatalf("failed to delete head version: %v", err)
		}
		if !deleted.IsDeleteMarker() {
			t.Error("expected deleted version to be the marker")
		}

		newHead, err := store.GetHeadVersion(ctx, bucket.ID, "docs/hello.txt")
		if err != nil {
			t.Fatalf("no head after promotion: %v", err)
		}
		if newHead.IsDeleteMarker() {
			t.Error("promoted head should be the v2 content version")
		}
		if newHead.File == nil || newHead.File.Size != 9 {
			t.Error("expected promoted head to carry v2 file")
		}
	})

	t.Run("deleting non-head leaves head alone", func(t *testing.T) {
		deleted, err := store.DeleteVersion(ctx, bucket.ID, "docs/hello.txt", v1ID)
		if err != nil {
			t.Fatalf("failed to delete old version: %v", err)
		}
		if deleted.File == nil || deleted.File.Size != 6 {
			t.Error("expected deleted version file for size accounting")
		}

		head, err := store.GetHeadVersion(ctx, bucket.ID, "docs/hello.txt")
		if err != nil {
			t.Fatalf("head disappeared: %v", err)
		}
		if head.Size() != 9 {
			t.Errorf("head size = %d, want 9", head.Size())
		}
	})

	t.Run("delete missing version", func(t *testing.T) {
		_, err := store.DeleteVersion(ctx, bucket.ID, "docs/hello.txt", "no-such-version")
		if !errors.Is(err, models.ErrVersionNotFound) {
			t.Errorf("expected ErrVersionNotFound, got %v", err)
		}
	})

	t.Run("snapshot copies live heads", func(t *testing.T) {
		dest := createTestBucket(t, store, loc)

		count, total, err := store.SnapshotBucket(ctx, bucket.ID, dest.ID)
		if err != nil {
			t.Fatalf("snapshot failed: %v", err)
		}
		// hello.txt head (9 bytes) + logo.png head (3 bytes)
		if count != 2 || total != 12 {
			t.Errorf("snapshot = (%d, %d), want (2, 12)", count, total)
		}

		got, _ := store.GetBucket(ctx, dest.ID)
		if got.Size != 12 {
			t.Errorf("dest size = %d, want 12", got.Size)
		}

		head, err := store.GetHeadVersion(ctx, dest.ID, "docs/hello.txt")
		if err != nil {
			t.Fatalf("snapshot head missing: %v", err)
		}
		src, _ := store.GetHeadVersion(ctx, bucket.ID, "docs/hello.txt")
		if head.FileID == nil || src.FileID == nil || *head.FileID != *src.FileID {
			t.Error("snapshot should share file instances with the source")
		}
		if head.VersionID == src.VersionID {
			t.Error("snapshot versions must have fresh version IDs")
		}
	})
}

func TestFileInstanceOperations(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	loc := createTestLocation(t, store, "local", true)
	bucket := createTestBucket(t, store, loc)

	t.Run("create and get", func(t *testing.T) {
		file := &models.FileInstance{Writable: true}
		id, err := store.CreateFileInstance(ctx, file)
		if err != nil {
			t.Fatalf("failed to create file: %v", err)
		}
		got, err := store.GetFileInstance(ctx, id)
		if err != nil {
			t.Fatalf("failed to get file: %v", err)
		}
		if !got.Writable || got.Readable {
			t.Errorf("fresh instance writable=%v readable=%v", got.Writable, got.Readable)
		}
	})

	t.Run("mark stored persists once", func(t *testing.T) {
		file := &models.FileInstance{Writable: true}
		if _, err := store.CreateFileInstance(ctx, file); err != nil {
			t.Fatalf("failed to create file: %v", err)
		}

		if err := file.MarkStored("fs:///data/f1", 6, "md5:b1946ac92492d2347c6235b4d2611184"); err != nil {
			t.Fatalf("MarkStored failed: %v", err)
		}
		if err := store.MarkFileStored(ctx, file); err != nil {
			t.Fatalf("failed to persist: %v", err)
		}

		got, _ := store.GetFileInstance(ctx, file.ID)
		if !got.Readable || got.Writable {
			t.Error("stored instance should be readable and not writable")
		}
		if got.Checksum != "md5:b1946ac92492d2347c6235b4d2611184" {
			t.Errorf("checksum = %q", got.Checksum)
		}

		err := store.MarkFileStored(ctx, file)
		if !errors.Is(err, models.ErrFileInstanceAlreadySet) {
			t.Errorf("expected ErrFileInstanceAlreadySet, got %v", err)
		}

		byURI, err := store.GetFileInstanceByURI(ctx, "fs:///data/f1")
		if err != nil || byURI.ID != file.ID {
			t.Errorf("lookup by URI failed: %v", err)
		}
	})

	t.Run("check result", func(t *testing.T) {
		file := &models.FileInstance{Writable: true}
		store.CreateFileInstance(ctx, file)

		at := time.Now()
		if err := store.SetFileCheckResult(ctx, file.ID, boolPtr(true), at); err != nil {
			t.Fatalf("failed to set check result: %v", err)
		}
		got, _ := store.GetFileInstance(ctx, file.ID)
		if got.LastCheck == nil || !*got.LastCheck {
			t.Error("expected last_check true")
		}
		if got.LastCheckAt == nil {
			t.Error("expected last_check_at set")
		}

		// A nil result records that the content went missing.
		if err := store.SetFileCheckResult(ctx, file.ID, nil, time.Now()); err != nil {
			t.Fatalf("failed to clear check result: %v", err)
		}
		got, _ = store.GetFileInstance(ctx, file.ID)
		if got.LastCheck != nil {
			t.Error("expected last_check cleared")
		}
	})

	t.Run("delete refuses while referenced", func(t *testing.T) {
		file := &models.FileInstance{Writable: true}
		store.CreateFileInstance(ctx, file)

		v := &models.ObjectVersion{BucketID: bucket.ID, Key: "ref.txt", FileID: &file.ID}
		if err := store.SetHeadVersion(ctx, v); err != nil {
			t.Fatalf("failed to set head: %v", err)
		}

		err := store.DeleteFileInstance(ctx, file.ID)
		if !errors.Is(err, models.ErrFileInUse) {
			t.Errorf("expected ErrFileInUse, got %v", err)
		}

		if _, err := store.DeleteVersion(ctx, bucket.ID, "ref.txt", v.VersionID); err != nil {
			t.Fatalf("failed to delete version: %v", err)
		}
		if err := store.DeleteFileInstance(ctx, file.ID); err != nil {
			t.Errorf("delete after unref failed: %v", err)
		}
		if _, err := store.GetFileInstance(ctx, file.ID); !errors.Is(err, models.ErrFileNotFound) {
			t.Errorf("expected ErrFileNotFound, got %v", err)
		}
	})

	t.Run("orphan listing excludes referenced and recent files", func(t *testing.T) {
		orphan := &models.FileInstance{Writable: true}
		store.CreateFileInstance(ctx, orphan)

		referenced := &models.FileInstance{Writable: true}
		store.CreateFileInstance(ctx, referenced)
		v := &models.ObjectVersion{BucketID: bucket.ID, Key: "kept.txt", FileID: &referenced.ID}
		if err := store.SetHeadVersion(ctx, v); err != nil {
			t.Fatalf("failed to set head: %v", err)
		}

		cutoff := time.Now().Add(time.Minute)
		orphans, err := store.ListOrphanedFiles(ctx, cutoff, 100)
		if err != nil {
			t.Fatalf("failed to list orphans: %v", err)
		}
		ids := make(map[string]bool)
		for _, f := range orphans {
			ids[f.ID] = true
		}
		if !ids[orphan.ID] {
			t.Error("expected orphan in listing")
		}
		if ids[referenced.ID] {
			t.Error("referenced file must not be listed as orphan")
		}

		none, _ := store.ListOrphanedFiles(ctx, time.Now().Add(-time.Hour), 100)
		if len(none) != 0 {
			t.Errorf("expected no orphans before old cutoff, got %d", len(none))
		}
	})

	t.Run("verification ordering", func(t *testing.T) {
		never := &models.FileInstance{Writable: true}
		store.CreateFileInstance(ctx, never)
		never.MarkStored("fs:///data/never", 1, "md5:01")
		store.MarkFileStored(ctx, never)

		old := &models.FileInstance{Writable: true}
		store.CreateFileInstance(ctx, old)
		old.MarkStored("fs:///data/old", 1, "md5:02")
		store.MarkFileStored(ctx, old)
		store.SetFileCheckResult(ctx, old.ID, boolPtr(true), time.Now().Add(-48*time.Hour))

		fresh := &models.FileInstance{Writable: true}
		store.CreateFileInstance(ctx, fresh)
		fresh.MarkStored("fs:///data/fresh", 1, "md5:03")
		store.MarkFileStored(ctx, fresh)
		store.SetFileCheckResult(ctx, fresh.ID, boolPtr(true), time.Now())

		due, err := store.ListFilesForVerification(ctx, time.Now().Add(-time.Hour), 10)
		if err != nil {
			t.Fatalf("failed to list files for verification: %v", err)
		}

		var dueIDs []string
		for _, f := range due {
			dueIDs = append(dueIDs, f.ID)
		}
		if len(dueIDs) < 2 {
			t.Fatalf("expected at least never+old due, got %d", len(dueIDs))
		}
		// never-checked instances come before previously checked ones
		var neverPos, oldPos, freshSeen = -1, -1, false
		for i, id := range dueIDs {
			switch id {
			case never.ID:
				neverPos = i
			case old.ID:
				oldPos = i
			case fresh.ID:
				freshSeen = true
			}
		}
		if freshSeen {
			t.Error("recently checked file should not be due")
		}
		if neverPos == -1 || oldPos == -1 || neverPos > oldPos {
			t.Errorf("ordering wrong: never=%d old=%d", neverPos, oldPos)
		}
	})

	t.Run("count readable files", func(t *testing.T) {
		count, totalSize, err := store.CountReadableFiles(ctx)
		if err != nil {
			t.Fatalf("failed to count readable files: %v", err)
		}
		// the three instances stored by the verification ordering subtest
		if count < 3 {
			t.Errorf("count = %d, want >= 3", count)
		}
		if totalSize < 3 {
			t.Errorf("totalSize = %d, want >= 3", totalSize)
		}
	})

	t.Run("relink versions to a new instance", func(t *testing.T) {
		old := &models.FileInstance{Writable: true}
		store.CreateFileInstance(ctx, old)
		v1 := &models.ObjectVersion{BucketID: bucket.ID, Key: "move-a.txt", FileID: &old.ID}
		v2 := &models.ObjectVersion{BucketID: bucket.ID, Key: "move-b.txt", FileID: &old.ID}
		if err := store.SetHeadVersion(ctx, v1); err != nil {
			t.Fatalf("failed to set head: %v", err)
		}
		if err := store.SetHeadVersion(ctx, v2); err != nil {
			t.Fatalf("failed to set head: %v", err)
		}

		repl := &models.FileInstance{Writable: true}
		store.CreateFileInstance(ctx, repl)

		moved, err := store.RelinkFile(ctx, old.ID, repl.ID)
		if err != nil {
			t.Fatalf("failed to relink: %v", err)
		}
		if moved != 2 {
			t.Errorf("moved = %d, want 2", moved)
		}

		got, _ := store.GetHeadVersion(ctx, bucket.ID, "move-a.txt")
		if got.FileID == nil || *got.FileID != repl.ID {
			t.Error("version still points at the old instance")
		}

		// the old instance is now unreferenced and deletable
		if err := store.DeleteFileInstance(ctx, old.ID); err != nil {
			t.Errorf("delete of unreferenced instance failed: %v", err)
		}
	})
}

func TestMultipartOperations(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	loc := createTestLocation(t, store, "local", true)
	bucket := createTestBucket(t, store, loc)

	upload, err := models.NewMultipartObject("", bucket.ID, "video.mp4", "", 11, 6)
	if err != nil {
		t.Fatalf("failed to build upload: %v", err)
	}
	upload.UploadID = "11111111-1111-1111-1111-111111111111"
	file := &models.FileInstance{Writable: true, Size: 11}

	t.Run("create upload with file instance", func(t *testing.T) {
		if err := store.CreateMultipartUpload(ctx, upload, file); err != nil {
			t.Fatalf("failed to create upload: %v", err)
		}
		if upload.FileID == "" {
			t.Fatal("expected file ID assigned")
		}

		got, err := store.GetMultipartUpload(ctx, upload.UploadID)
		if err != nil {
			t.Fatalf("failed to get upload: %v", err)
		}
		if got.File.ID != upload.FileID {
			t.Error("expected preloaded file instance")
		}
		if got.LastPartNumber != 1 || got.LastPartSize != 5 {
			t.Errorf("layout = (%d, %d), want (1, 5)", got.LastPartNumber, got.LastPartSize)
		}
	})

	t.Run("upsert part replaces previous record", func(t *testing.T) {
		part := &models.Part{UploadID: upload.UploadID, PartNumber: 0, Checksum: "md5:aa", StartByte: 0, EndByte: 6}
		if err := store.UpsertPart(ctx, part); err != nil {
			t.Fatalf("failed to upsert part: %v", err)
		}

		part.Checksum = "md5:bb"
		if err := store.UpsertPart(ctx, part); err != nil {
			t.Fatalf("failed to re-upsert part: %v", err)
		}

		parts, err := store.ListParts(ctx, upload.UploadID, 0, -1)
		if err != nil {
			t.Fatalf("failed to list parts: %v", err)
		}
		if len(parts) != 1 || parts[0].Checksum != "md5:bb" {
			t.Errorf("unexpected parts: %+v", parts)
		}
	})

	t.Run("delete part clears the record", func(t *testing.T) {
		if err := store.DeletePart(ctx, upload.UploadID, 0); err != nil {
			t.Fatalf("failed to delete part: %v", err)
		}
		if err := store.DeletePart(ctx, upload.UploadID, 0); err != nil {
			t.Errorf("repeated delete should be a no-op, got %v", err)
		}
		n, err := store.CountParts(ctx, upload.UploadID)
		if err != nil || n != 0 {
			t.Fatalf("CountParts = (%d, %v), want 0", n, err)
		}

		part := &models.Part{UploadID: upload.UploadID, PartNumber: 0, Checksum: "md5:bb", StartByte: 0, EndByte: 6}
		if err := store.UpsertPart(ctx, part); err != nil {
			t.Fatalf("failed to restore part: %v", err)
		}
	})

	t.Run("list parts pages by marker", func(t *testing.T) {
		last := &models.Part{UploadID: upload.UploadID, PartNumber: 1, Checksum: "md5:cc", StartByte: 6, EndByte: 11}
		if err := store.UpsertPart(ctx, last); err != nil {
			t.Fatalf("failed to upsert part: %v", err)
		}

		n, err := store.CountParts(ctx, upload.UploadID)
		if err != nil || n != 2 {
			t.Fatalf("CountParts = (%d, %v), want 2", n, err)
		}

		page, err := store.ListParts(ctx, upload.UploadID, 1, -1)
		if err != nil || len(page) != 1 || page[0].PartNumber != 0 {
			t.Fatalf("first page wrong: %+v, %v", page, err)
		}
		page, err = store.ListParts(ctx, upload.UploadID, 1, page[0].PartNumber)
		if err != nil || len(page) != 1 || page[0].PartNumber != 1 {
			t.Fatalf("second page wrong: %+v, %v", page, err)
		}
	})

	t.Run("complete is one-shot", func(t *testing.T) {
		if err := store.CompleteMultipartUpload(ctx, upload.UploadID); err != nil {
			t.Fatalf("failed to complete: %v", err)
		}
		err := store.CompleteMultipartUpload(ctx, upload.UploadID)
		if !errors.Is(err, models.ErrMultipartAlreadyCompleted) {
			t.Errorf("expected ErrMultipartAlreadyCompleted, got %v", err)
		}
	})

	t.Run("completed uploads are not listed or expired", func(t *testing.T) {
		uploads, err := store.ListMultipartUploads(ctx, bucket.ID)
		if err != nil {
			t.Fatalf("failed to list uploads: %v", err)
		}
		if len(uploads) != 0 {
			t.Errorf("completed upload still listed: %d", len(uploads))
		}

		expired, err := store.ListExpiredUploads(ctx, time.Now().Add(time.Hour), 10)
		if err != nil {
			t.Fatalf("failed to list expired: %v", err)
		}
		if len(expired) != 0 {
			t.Errorf("completed upload listed as expired: %d", len(expired))
		}
	})

	t.Run("expired listing", func(t *testing.T) {
		stale, err := models.NewMultipartObject("22222222-2222-2222-2222-222222222222", bucket.ID, "stale.bin", "", 12, 6)
		if err != nil {
			t.Fatalf("failed to build upload: %v", err)
		}
		staleFile := &models.FileInstance{Writable: true, Size: 12}
		if err := store.CreateMultipartUpload(ctx, stale, staleFile); err != nil {
			t.Fatalf("failed to create upload: %v", err)
		}

		expired, err := store.ListExpiredUploads(ctx, time.Now().Add(time.Minute), 10)
		if err != nil {
			t.Fatalf("failed to list expired: %v", err)
		}
		if len(expired) != 1 || expired[0].UploadID != stale.UploadID {
			t.Errorf("unexpected expired set: %+v", expired)
		}
	})

	t.Run("delete upload removes parts", func(t *testing.T) {
		if err := store.DeleteMultipartUpload(ctx, upload.UploadID); err != nil {
			t.Fatalf("failed to delete upload: %v", err)
		}
		if _, err := store.GetMultipartUpload(ctx, upload.UploadID); !errors.Is(err, models.ErrUploadNotFound) {
			t.Errorf("expected ErrUploadNotFound, got %v", err)
		}
		n, _ := store.CountParts(ctx, upload.UploadID)
		if n != 0 {
			t.Errorf("parts survived upload deletion: %d", n)
		}

		err := store.DeleteMultipartUpload(ctx, upload.UploadID)
		if !errors.Is(err, models.ErrUploadNotFound) {
			t.Errorf("expected ErrUploadNotFound on second delete, got %v", err)
		}
	})
}
