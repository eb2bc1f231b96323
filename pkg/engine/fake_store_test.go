package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcafs/arca/pkg/models"
	"github.com/arcafs/arca/pkg/store"
)

// fakeStore is an in-memory catalog with the semantics engine tests lean on:
// head swaps demote the previous head, reservations enforce the quota,
// deleting a head promotes the next newest version. No SQL, no persistence.
type fakeStore struct {
	mu          sync.Mutex
	locations   map[string]*models.Location
	buckets     map[string]*models.Bucket
	bucketTags  map[string]map[string]string
	versions    []*models.ObjectVersion
	versionTags map[string]map[string]string
	files       map[string]*models.FileInstance
	uploads     map[string]*models.MultipartObject
	parts       map[string]map[int64]models.Part

	// staleSwaps fails that many head swaps with ErrStaleUpdate before
	// letting one through.
	staleSwaps int
	// markStoredErr, when set, fails MarkFileStored.
	markStoredErr error
}

var _ store.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		locations:   make(map[string]*models.Location),
		buckets:     make(map[string]*models.Bucket),
		bucketTags:  make(map[string]map[string]string),
		versionTags: make(map[string]map[string]string),
		files:       make(map[string]*models.FileInstance),
		uploads:     make(map[string]*models.MultipartObject),
		parts:       make(map[string]map[int64]models.Part),
	}
}

func (s *fakeStore) addLocation(loc *models.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *loc
	s.locations[loc.Name] = &cp
}

func (s *fakeStore) addBucket(b *models.Bucket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.buckets[b.ID] = &cp
}

func (s *fakeStore) bucketSize(id string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.buckets[id]; ok {
		return b.Size
	}
	return -1
}

func (s *fakeStore) fileCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// ============================================
// LOCATION OPERATIONS
// ============================================

func (s *fakeStore) GetLocation(ctx context.Context, name string) (*models.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.locations[name]
	if !ok {
		return nil, models.ErrLocationNotFound
	}
	cp := *loc
	return &cp, nil
}

func (s *fakeStore) GetLocationByID(ctx context.Context, id uint) (*models.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, loc := range s.locations {
		if loc.ID == id {
			cp := *loc
			return &cp, nil
		}
	}
	return nil, models.ErrLocationNotFound
}

func (s *fakeStore) GetDefaultLocation(ctx context.Context) (*models.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, loc := range s.locations {
		if loc.IsDefault {
			cp := *loc
			return &cp, nil
		}
	}
	return nil, models.ErrNoDefaultLocation
}

func (s *fakeStore) ListLocations(ctx context.Context) ([]*models.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Location, 0, len(s.locations))
	for _, loc := range s.locations {
		cp := *loc
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fakeStore) CreateLocation(ctx context.Context, loc *models.Location) error {
	if err := models.ValidateLocationName(loc.Name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locations[loc.Name]; ok {
		return models.ErrDuplicateLocation
	}
	if loc.ID == 0 {
		loc.ID = uint(len(s.locations) + 1)
	}
	if loc.IsDefault {
		for _, other := range s.locations {
			other.IsDefault = false
		}
	}
	cp := *loc
	s.locations[loc.Name] = &cp
	return nil
}

func (s *fakeStore) SetDefaultLocation(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.locations[name]
	if !ok {
		return models.ErrLocationNotFound
	}
	for _, other := range s.locations {
		other.IsDefault = false
	}
	loc.IsDefault = true
	return nil
}

// ============================================
// BUCKET OPERATIONS
// ============================================

func (s *fakeStore) GetBucket(ctx context.Context, id string) (*models.Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[id]
	if !ok {
		return nil, models.ErrBucketNotFound
	}
	cp := *b
	for _, loc := range s.locations {
		if loc.ID == b.DefaultLocationID {
			cp.DefaultLocation = *loc
			break
		}
	}
	return &cp, nil
}

func (s *fakeStore) ListBuckets(ctx context.Context) ([]*models.Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Bucket
	for _, b := range s.buckets {
		if b.Deleted {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) CreateBucket(ctx context.Context, bucket *models.Bucket) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bucket.ID == "" {
		bucket.ID = uuid.New().String()
	}
	cp := *bucket
	s.buckets[bucket.ID] = &cp
	return bucket.ID, nil
}

func (s *fakeStore) UpdateBucketLimits(ctx context.Context, id string, quotaSize, maxFileSize *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[id]
	if !ok || b.Deleted {
		return models.ErrBucketNotFound
	}
	b.QuotaSize = quotaSize
	b.MaxFileSize = maxFileSize
	return nil
}

func (s *fakeStore) SetBucketLock(ctx context.Context, id string, locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[id]
	if !ok || b.Deleted {
		return models.ErrBucketNotFound
	}
	b.Locked = locked
	return nil
}

func (s *fakeStore) MarkBucketDeleted(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[id]
	if !ok || b.Deleted {
		return models.ErrBucketNotFound
	}
	b.Deleted = true
	return nil
}

func (s *fakeStore) ReserveBucketSpace(ctx context.Context, id string, delta int64, quota *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[id]
	if !ok {
		return models.ErrBucketNotFound
	}
	if b.Deleted {
		return models.ErrBucketDeleted
	}
	if b.Locked {
		return models.ErrBucketLocked
	}
	if quota != nil && b.Size+delta > *quota {
		return fmt.Errorf("%w: %d bytes requested, %d of %d byte quota available",
			models.ErrFileSize, delta, *quota-b.Size, *quota)
	}
	b.Size += delta
	return nil
}

func (s *fakeStore) AdjustBucketSize(ctx context.Context, id string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[id]
	if !ok {
		return models.ErrBucketNotFound
	}
	b.Size += delta
	if b.Size < 0 {
		b.Size = 0
	}
	return nil
}

func (s *fakeStore) GetBucketStats(ctx context.Context, id string) (objects, versions int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[id]; !ok {
		return 0, 0, models.ErrBucketNotFound
	}
	for _, v := range s.versions {
		if v.BucketID != id {
			continue
		}
		versions++
		if v.IsHead && v.FileID != nil {
			objects++
		}
	}
	return objects, versions, nil
}

// ============================================
// BUCKET TAG OPERATIONS
// ============================================

func (s *fakeStore) GetBucketTags(ctx context.Context, bucketID string) ([]models.BucketTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tagList(s.bucketTags[bucketID], func(k, v string) models.BucketTag {
		return models.BucketTag{BucketID: bucketID, Key: k, Value: v}
	}), nil
}

func (s *fakeStore) SetBucketTags(ctx context.Context, bucketID string, tags map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bucketTags[bucketID] == nil {
		s.bucketTags[bucketID] = make(map[string]string)
	}
	for k, v := range tags {
		s.bucketTags[bucketID][k] = v
	}
	return nil
}

func (s *fakeStore) DeleteBucketTags(ctx context.Context, bucketID string, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.bucketTags[bucketID], k)
	}
	return nil
}

// ============================================
// OBJECT VERSION OPERATIONS
// ============================================

func (s *fakeStore) GetHeadVersion(ctx context.Context, bucketID, key string) (*models.ObjectVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.versions {
		if v.BucketID == bucketID && v.Key == key && v.IsHead {
			return s.loadVersion(v), nil
		}
	}
	return nil, models.ErrObjectNotFound
}

func (s *fakeStore) GetVersion(ctx context.Context, bucketID, key, versionID string) (*models.ObjectVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.versions {
		if v.BucketID == bucketID && v.Key == key && v.VersionID == versionID {
			return s.loadVersion(v), nil
		}
	}
	return nil, models.ErrVersionNotFound
}

func (s *fakeStore) ListHeads(ctx context.Context, bucketID string, opts store.ListObjectsOptions) ([]*models.ObjectVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ObjectVersion
	for _, v := range s.versions {
		if v.BucketID != bucketID || !v.IsHead {
			continue
		}
		if v.FileID == nil && !opts.WithDeleteMarkers {
			continue
		}
		if !strings.HasPrefix(v.Key, opts.Prefix) {
			continue
		}
		if opts.Marker != "" && v.Key <= opts.Marker {
			continue
		}
		out = append(out, s.loadVersion(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *fakeStore) ListVersions(ctx context.Context, bucketID string, opts store.ListObjectsOptions) ([]*models.ObjectVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ObjectVersion
	// Walk backwards so each key's versions come out newest first.
	for i := len(s.versions) - 1; i >= 0; i-- {
		v := s.versions[i]
		if v.BucketID != bucketID {
			continue
		}
		if !strings.HasPrefix(v.Key, opts.Prefix) {
			continue
		}
		if opts.Marker != "" && v.Key <= opts.Marker {
			continue
		}
		out = append(out, s.loadVersion(v))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *fakeStore) ListKeyVersions(ctx context.Context, bucketID, key string) ([]*models.ObjectVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ObjectVersion
	for i := len(s.versions) - 1; i >= 0; i-- {
		v := s.versions[i]
		if v.BucketID == bucketID && v.Key == key {
			out = append(out, s.loadVersion(v))
		}
	}
	return out, nil
}

func (s *fakeStore) SetHeadVersion(ctx context.Context, version *models.ObjectVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staleSwaps > 0 {
		s.staleSwaps--
		return models.ErrStaleUpdate
	}
	if version.VersionID == "" {
		version.VersionID = uuid.New().String()
	}
	version.IsHead = true
	for _, v := range s.versions {
		if v.BucketID == version.BucketID && v.Key == version.Key {
			v.IsHead = false
		}
	}
	cp := *version
	cp.File = nil
	s.versions = append(s.versions, &cp)
	return nil
}

func (s *fakeStore) DeleteVersion(ctx context.Context, bucketID, key, versionID string) (*models.ObjectVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, v := range s.versions {
		if v.BucketID == bucketID && v.Key == key && v.VersionID == versionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, models.ErrVersionNotFound
	}
	deleted := s.versions[idx]
	s.versions = append(s.versions[:idx], s.versions[idx+1:]...)
	if deleted.IsHead {
		for i := len(s.versions) - 1; i >= 0; i-- {
			v := s.versions[i]
			if v.BucketID == bucketID && v.Key == key {
				v.IsHead = true
				break
			}
		}
	}
	return s.loadVersion(deleted), nil
}

func (s *fakeStore) SnapshotBucket(ctx context.Context, srcBucketID, destBucketID string) (count, totalSize int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	heads := make([]*models.ObjectVersion, 0)
	for _, v := range s.versions {
		if v.BucketID == srcBucketID && v.IsHead && v.FileID != nil {
			heads = append(heads, v)
		}
	}
	for _, v := range heads {
		cp := *v
		cp.BucketID = destBucketID
		cp.VersionID = uuid.New().String()
		cp.File = nil
		s.versions = append(s.versions, &cp)
		count++
		if f, ok := s.files[*v.FileID]; ok {
			totalSize += f.Size
		}
	}
	if b, ok := s.buckets[destBucketID]; ok {
		b.Size += totalSize
	}
	return count, totalSize, nil
}

func (s *fakeStore) RelinkFile(ctx context.Context, oldFileID, newFileID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var moved int64
	for _, v := range s.versions {
		if v.FileID != nil && *v.FileID == oldFileID {
			id := newFileID
			v.FileID = &id
			moved++
		}
	}
	return moved, nil
}

// loadVersion copies a version with its file instance attached. Callers hold
// the mutex.
func (s *fakeStore) loadVersion(v *models.ObjectVersion) *models.ObjectVersion {
	cp := *v
	if v.FileID != nil {
		if f, ok := s.files[*v.FileID]; ok {
			fcp := *f
			cp.File = &fcp
		}
	}
	return &cp
}

// ============================================
// OBJECT VERSION TAG OPERATIONS
// ============================================

func (s *fakeStore) GetVersionTags(ctx context.Context, versionID string) ([]models.ObjectVersionTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tagList(s.versionTags[versionID], func(k, v string) models.ObjectVersionTag {
		return models.ObjectVersionTag{VersionID: versionID, Key: k, Value: v}
	}), nil
}

func (s *fakeStore) SetVersionTags(ctx context.Context, versionID string, tags map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for _, v := range s.versions {
		if v.VersionID == versionID {
			found = true
			break
		}
	}
	if !found {
		return models.ErrVersionNotFound
	}
	if s.versionTags[versionID] == nil {
		s.versionTags[versionID] = make(map[string]string)
	}
	for k, v := range tags {
		s.versionTags[versionID][k] = v
	}
	return nil
}

func (s *fakeStore) DeleteVersionTags(ctx context.Context, versionID string, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.versionTags[versionID], k)
	}
	return nil
}

// ============================================
// FILE INSTANCE OPERATIONS
// ============================================

func (s *fakeStore) CreateFileInstance(ctx context.Context, file *models.FileInstance) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if file.ID == "" {
		file.ID = uuid.New().String()
	}
	cp := *file
	cp.CreatedAt = time.Now()
	s.files[file.ID] = &cp
	return file.ID, nil
}

func (s *fakeStore) GetFileInstance(ctx context.Context, id string) (*models.FileInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, models.ErrFileNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *fakeStore) GetFileInstanceByURI(ctx context.Context, uri string) (*models.FileInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		if f.URI != nil && *f.URI == uri {
			cp := *f
			return &cp, nil
		}
	}
	return nil, models.ErrFileNotFound
}

func (s *fakeStore) MarkFileStored(ctx context.Context, file *models.FileInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markStoredErr != nil {
		return s.markStoredErr
	}
	existing, ok := s.files[file.ID]
	if !ok {
		return models.ErrFileNotFound
	}
	if existing.Checksum != "" {
		return models.ErrFileInstanceAlreadySet
	}
	existing.URI = file.URI
	existing.Size = file.Size
	existing.Checksum = file.Checksum
	existing.Readable = file.Readable
	existing.Writable = file.Writable
	return nil
}

func (s *fakeStore) SetFileCheckResult(ctx context.Context, id string, ok *bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, found := s.files[id]
	if !found {
		return models.ErrFileNotFound
	}
	f.LastCheck = ok
	f.LastCheckAt = &at
	return nil
}

func (s *fakeStore) UpdateFileLocation(ctx context.Context, id, uri, storageBackend, storageClass string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return models.ErrFileNotFound
	}
	f.URI = &uri
	f.StorageBackend = storageBackend
	f.StorageClass = storageClass
	return nil
}

func (s *fakeStore) DeleteFileInstance(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[id]; !ok {
		return models.ErrFileNotFound
	}
	delete(s.files, id)
	return nil
}

func (s *fakeStore) ListOrphanedFiles(ctx context.Context, before time.Time, limit int) ([]*models.FileInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	referenced := make(map[string]bool)
	for _, v := range s.versions {
		if v.FileID != nil {
			referenced[*v.FileID] = true
		}
	}
	for _, up := range s.uploads {
		referenced[up.FileID] = true
	}
	var out []*models.FileInstance
	for _, f := range s.files {
		if referenced[f.ID] || !f.CreatedAt.Before(before) {
			continue
		}
		cp := *f
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) ListFilesForVerification(ctx context.Context, checkedBefore time.Time, limit int) ([]*models.FileInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.FileInstance
	for _, f := range s.files {
		if !f.Readable {
			continue
		}
		if f.LastCheckAt != nil && !f.LastCheckAt.Before(checkedBefore) {
			continue
		}
		cp := *f
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) CountReadableFiles(ctx context.Context) (count, totalSize int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		if f.Readable {
			count++
			totalSize += f.Size
		}
	}
	return count, totalSize, nil
}

// ============================================
// MULTIPART UPLOAD OPERATIONS
// ============================================

func (s *fakeStore) CreateMultipartUpload(ctx context.Context, upload *models.MultipartObject, file *models.FileInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fcp := *file
	fcp.CreatedAt = time.Now()
	s.files[file.ID] = &fcp
	ucp := *upload
	ucp.CreatedAt = time.Now()
	s.uploads[upload.UploadID] = &ucp
	s.parts[upload.UploadID] = make(map[int64]models.Part)
	return nil
}

func (s *fakeStore) GetMultipartUpload(ctx context.Context, uploadID string) (*models.MultipartObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	up, ok := s.uploads[uploadID]
	if !ok {
		return nil, models.ErrUploadNotFound
	}
	cp := *up
	if f, found := s.files[up.FileID]; found {
		cp.File = *f
	}
	return &cp, nil
}

func (s *fakeStore) ListMultipartUploads(ctx context.Context, bucketID string) ([]*models.MultipartObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.MultipartObject
	for _, up := range s.uploads {
		if up.BucketID != bucketID || up.Completed {
			continue
		}
		cp := *up
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadID < out[j].UploadID })
	return out, nil
}

func (s *fakeStore) ListExpiredUploads(ctx context.Context, before time.Time, limit int) ([]*models.MultipartObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.MultipartObject
	for _, up := range s.uploads {
		if up.Completed || !up.CreatedAt.Before(before) {
			continue
		}
		cp := *up
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertPart(ctx context.Context, part *models.Part) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.parts[part.UploadID] == nil {
		s.parts[part.UploadID] = make(map[int64]models.Part)
	}
	s.parts[part.UploadID][part.PartNumber] = *part
	return nil
}

func (s *fakeStore) DeletePart(ctx context.Context, uploadID string, partNumber int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.parts[uploadID], partNumber)
	return nil
}

func (s *fakeStore) ListParts(ctx context.Context, uploadID string, limit int, marker int64) ([]models.Part, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Part
	for _, p := range s.parts[uploadID] {
		if p.PartNumber > marker {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartNumber < out[j].PartNumber })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) CountParts(ctx context.Context, uploadID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.parts[uploadID])), nil
}

func (s *fakeStore) CompleteMultipartUpload(ctx context.Context, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	up, ok := s.uploads[uploadID]
	if !ok {
		return models.ErrUploadNotFound
	}
	if up.Completed {
		return models.ErrMultipartAlreadyCompleted
	}
	up.Completed = true
	return nil
}

func (s *fakeStore) DeleteMultipartUpload(ctx context.Context, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.uploads[uploadID]; !ok {
		return models.ErrUploadNotFound
	}
	delete(s.uploads, uploadID)
	delete(s.parts, uploadID)
	return nil
}

// ============================================
// HEALTH & LIFECYCLE
// ============================================

func (s *fakeStore) Healthcheck(ctx context.Context) error { return nil }

func (s *fakeStore) Close() error { return nil }

func tagList[T any](tags map[string]string, build func(k, v string) T) []T {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, build(k, tags[k]))
	}
	return out
}
