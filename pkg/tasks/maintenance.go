package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/arcafs/arca/internal/logger"
	"github.com/arcafs/arca/pkg/models"
	"github.com/arcafs/arca/pkg/storage"
	"github.com/arcafs/arca/pkg/store"
)

// Catalog is the slice of the catalog store the maintenance tasks use.
type Catalog interface {
	GetLocation(ctx context.Context, name string) (*models.Location, error)

	GetFileInstance(ctx context.Context, id string) (*models.FileInstance, error)
	CreateFileInstance(ctx context.Context, file *models.FileInstance) (string, error)
	MarkFileStored(ctx context.Context, file *models.FileInstance) error
	SetFileCheckResult(ctx context.Context, id string, ok *bool, at time.Time) error
	DeleteFileInstance(ctx context.Context, id string) error
	ListOrphanedFiles(ctx context.Context, before time.Time, limit int) ([]*models.FileInstance, error)
	ListFilesForVerification(ctx context.Context, checkedBefore time.Time, limit int) ([]*models.FileInstance, error)
	CountReadableFiles(ctx context.Context) (count, totalSize int64, err error)

	GetHeadVersion(ctx context.Context, bucketID, key string) (*models.ObjectVersion, error)
	SetHeadVersion(ctx context.Context, version *models.ObjectVersion) error
	RelinkFile(ctx context.Context, oldFileID, newFileID string) (int64, error)

	GetMultipartUpload(ctx context.Context, uploadID string) (*models.MultipartObject, error)
	CountParts(ctx context.Context, uploadID string) (int64, error)
	ListParts(ctx context.Context, uploadID string, limit int, marker int64) ([]models.Part, error)
	ListExpiredUploads(ctx context.Context, before time.Time, limit int) ([]*models.MultipartObject, error)
	DeleteMultipartUpload(ctx context.Context, uploadID string) error
}

var _ Catalog = (store.Store)(nil)

// MaintenanceMetrics provides observability for the maintenance handlers.
// Pass nil to disable metrics collection with zero overhead.
type MaintenanceMetrics interface {
	// RecordFixityCheck records a settled fixity verification. Outcomes
	// are "ok", "mismatch" and "missing"; transient verification errors
	// are retried, not recorded.
	RecordFixityCheck(outcome string)
}

// MaintenanceConfig tunes the periodic maintenance behavior.
type MaintenanceConfig struct {
	// FixityEnabled gates the recurring verification sweep. Handlers stay
	// registered either way, so manually scheduled checks still run.
	FixityEnabled bool `mapstructure:"fixity_enabled" json:"fixity_enabled" yaml:"fixity_enabled"`

	// FixityFrequency is how often every readable instance should be
	// re-hashed; FixityBatchInterval is the spacing between scheduling
	// passes. Together they size the fair batch per pass.
	FixityFrequency     time.Duration `mapstructure:"fixity_frequency" json:"fixity_frequency" yaml:"fixity_frequency"`
	FixityBatchInterval time.Duration `mapstructure:"fixity_batch_interval" json:"fixity_batch_interval" yaml:"fixity_batch_interval"`

	// FixityMaxCount and FixityMaxSize cap one scheduling pass by file
	// count or total bytes. Zero disables the cap.
	FixityMaxCount int   `mapstructure:"fixity_max_count" json:"fixity_max_count" yaml:"fixity_max_count"`
	FixityMaxSize  int64 `mapstructure:"fixity_max_size" json:"fixity_max_size" yaml:"fixity_max_size"`

	// MultipartExpires is how long an uncompleted upload may live.
	MultipartExpires time.Duration `mapstructure:"multipart_expires" json:"multipart_expires" yaml:"multipart_expires"`

	// OrphanAge is the minimum age before an unreferenced instance is
	// reaped. It must comfortably exceed the longest plausible upload, or
	// the sweep would eat instances whose object version is still being
	// written.
	OrphanAge time.Duration `mapstructure:"orphan_age" json:"orphan_age" yaml:"orphan_age"`

	// OrphanSweepInterval and ExpirySweepInterval space the recurring
	// orphan and expired-upload sweeps.
	OrphanSweepInterval time.Duration `mapstructure:"orphan_sweep_interval" json:"orphan_sweep_interval" yaml:"orphan_sweep_interval"`
	ExpirySweepInterval time.Duration `mapstructure:"expiry_sweep_interval" json:"expiry_sweep_interval" yaml:"expiry_sweep_interval"`

	// BatchLimit bounds the rows one sweep pass loads.
	BatchLimit int `mapstructure:"batch_limit" json:"batch_limit" yaml:"batch_limit"`

	// PathDimensions and PathSplitLength control the directory fan-out of
	// blob paths created during migration.
	PathDimensions  int `mapstructure:"path_dimensions" json:"path_dimensions" yaml:"path_dimensions"`
	PathSplitLength int `mapstructure:"path_split_length" json:"path_split_length" yaml:"path_split_length"`
}

// DefaultMaintenanceConfig returns the maintenance defaults.
func DefaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		FixityEnabled:       true,
		FixityFrequency:     30 * 24 * time.Hour,
		FixityBatchInterval: time.Hour,
		MultipartExpires:    4 * 24 * time.Hour,
		OrphanAge:           24 * time.Hour,
		OrphanSweepInterval: time.Hour,
		ExpirySweepInterval: time.Hour,
		BatchLimit:          1000,
		PathDimensions:      storage.DefaultPathDimensions,
		PathSplitLength:     storage.DefaultPathSplitLength,
	}
}

// Maintenance implements the background task handlers: fixity verification
// and scheduling, content migration, orphan cleanup, multipart expiry and
// multipart merge.
type Maintenance struct {
	catalog  Catalog
	backends *storage.Factory
	queue    *Queue
	cfg      MaintenanceConfig
	metrics  MaintenanceMetrics
}

// NewMaintenance wires the maintenance handlers to a catalog, the configured
// storage backends and the queue used for follow-up tasks. metrics may be
// nil.
func NewMaintenance(catalog Catalog, backends *storage.Factory, queue *Queue, cfg MaintenanceConfig, metrics MaintenanceMetrics) *Maintenance {
	def := DefaultMaintenanceConfig()
	if cfg.FixityFrequency <= 0 {
		cfg.FixityFrequency = def.FixityFrequency
	}
	if cfg.FixityBatchInterval <= 0 {
		cfg.FixityBatchInterval = def.FixityBatchInterval
	}
	if cfg.MultipartExpires <= 0 {
		cfg.MultipartExpires = def.MultipartExpires
	}
	if cfg.OrphanAge <= 0 {
		cfg.OrphanAge = def.OrphanAge
	}
	if cfg.OrphanSweepInterval <= 0 {
		cfg.OrphanSweepInterval = def.OrphanSweepInterval
	}
	if cfg.ExpirySweepInterval <= 0 {
		cfg.ExpirySweepInterval = def.ExpirySweepInterval
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = def.BatchLimit
	}
	if cfg.PathDimensions <= 0 {
		cfg.PathDimensions = def.PathDimensions
	}
	if cfg.PathSplitLength <= 0 {
		cfg.PathSplitLength = def.PathSplitLength
	}
	return &Maintenance{catalog: catalog, backends: backends, queue: queue, cfg: cfg, metrics: metrics}
}

// Register binds every maintenance handler to its task kind.
func (m *Maintenance) Register(p *Pool) {
	p.Register(KindVerifyChecksum, m.handleVerifyChecksum)
	p.Register(KindScheduleVerification, m.handleScheduleVerification)
	p.Register(KindMigrateFile, m.handleMigrateFile)
	p.Register(KindRemoveFileData, m.handleRemoveFileData)
	p.Register(KindClearOrphanedFiles, m.handleClearOrphanedFiles)
	p.Register(KindRemoveExpiredUploads, m.handleRemoveExpiredUploads)
	p.Register(KindMergeMultipart, m.handleMergeMultipart)
}

// Schedule registers the recurring sweeps on the given scheduler: fixity
// scheduling every batch interval when enabled, orphan and expiry sweeps
// on their own intervals.
func (m *Maintenance) Schedule(s *Scheduler) {
	if m.cfg.FixityEnabled {
		s.Add(KindScheduleVerification, m.cfg.FixityBatchInterval, nil)
	}
	s.Add(KindClearOrphanedFiles, m.cfg.OrphanSweepInterval, nil)
	s.Add(KindRemoveExpiredUploads, m.cfg.ExpirySweepInterval, nil)
}

// ============================================================================
// Fixity
// ============================================================================

func (m *Maintenance) handleVerifyChecksum(ctx context.Context, payload json.RawMessage) error {
	var p VerifyChecksumPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("bad verify_checksum payload: %w", err)
	}

	file, err := m.catalog.GetFileInstance(ctx, p.FileID)
	if errors.Is(err, models.ErrFileNotFound) {
		logger.Debug("fixity: instance gone, skipping", "file", p.FileID)
		return nil
	}
	if err != nil {
		return err
	}
	if !file.Readable || file.URI == nil {
		logger.Debug("fixity: instance not readable, skipping", "file", file.ID)
		return nil
	}

	backend, err := m.backends.Get(file.StorageBackend)
	if err != nil {
		return err
	}

	computed, err := backend.Checksum(ctx, *file.URI, file.ChecksumAlgorithm())
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			logger.Error("fixity: content missing", "file", file.ID, "uri", *file.URI)
			if serr := m.catalog.SetFileCheckResult(ctx, file.ID, nil, time.Now()); serr != nil {
				return serr
			}
			m.recordFixity("missing")
			if p.Pessimistic || p.Throws {
				return fmt.Errorf("content of file %s missing: %w", file.ID, err)
			}
			return nil
		}
		if p.Throws {
			return err
		}
		logger.Error("fixity: verification failed", "file", file.ID, "error", err)
		return nil
	}

	ok := computed == file.Checksum
	if !ok {
		logger.Error("fixity: checksum mismatch",
			"file", file.ID,
			"uri", *file.URI,
			"stored", file.Checksum,
			"computed", computed)
	}
	if err := m.catalog.SetFileCheckResult(ctx, file.ID, &ok, time.Now()); err != nil {
		return err
	}
	if ok {
		m.recordFixity("ok")
	} else {
		m.recordFixity("mismatch")
	}
	return nil
}

func (m *Maintenance) recordFixity(outcome string) {
	if m.metrics != nil {
		m.metrics.RecordFixityCheck(outcome)
	}
}

func (m *Maintenance) handleScheduleVerification(ctx context.Context, payload json.RawMessage) error {
	var p ScheduleVerificationPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("bad schedule_checksum_verification payload: %w", err)
		}
	}
	frequency := p.Frequency
	if frequency <= 0 {
		frequency = m.cfg.FixityFrequency
	}
	interval := p.BatchInterval
	if interval <= 0 {
		interval = m.cfg.FixityBatchInterval
	}
	maxCount := p.MaxCount
	if maxCount <= 0 {
		maxCount = m.cfg.FixityMaxCount
	}
	maxSize := p.MaxSize
	if maxSize <= 0 {
		maxSize = m.cfg.FixityMaxSize
	}

	total, totalSize, err := m.catalog.CountReadableFiles(ctx)
	if err != nil {
		return err
	}
	if total == 0 {
		return nil
	}

	// A fair slice visits every instance once per frequency: one pass every
	// interval covers ceil(total * interval / frequency) files.
	batch := int(ceilDiv(total*int64(interval), int64(frequency)))
	if batch < 1 {
		batch = 1
	}
	if maxCount > 0 && batch > maxCount {
		batch = maxCount
	}
	var byteBudget int64
	if maxSize > 0 {
		byteBudget = ceilDiv(totalSize*int64(interval), int64(frequency))
		if byteBudget > maxSize {
			byteBudget = maxSize
		}
	}

	files, err := m.catalog.ListFilesForVerification(ctx, time.Now().Add(-frequency), batch)
	if err != nil {
		return err
	}

	var scheduled int
	var bytes int64
	for _, f := range files {
		if byteBudget > 0 && scheduled > 0 && bytes+f.Size > byteBudget {
			break
		}
		task, err := NewTask(KindVerifyChecksum, VerifyChecksumPayload{FileID: f.ID})
		if err != nil {
			return err
		}
		if err := m.queue.Enqueue(ctx, task); err != nil {
			return err
		}
		scheduled++
		bytes += f.Size
	}

	if scheduled > 0 {
		logger.Info("fixity: scheduled verifications",
			"scheduled", scheduled,
			"bytes", bytes,
			"due", len(files),
			"total", total)
	}
	return nil
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

// ============================================================================
// Migration
// ============================================================================

func (m *Maintenance) handleMigrateFile(ctx context.Context, payload json.RawMessage) error {
	var p MigrateFilePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("bad migrate_file payload: %w", err)
	}

	src, err := m.catalog.GetFileInstance(ctx, p.SrcID)
	if err != nil {
		return err
	}
	if !src.Readable || src.URI == nil {
		return fmt.Errorf("%w: source instance %s is not readable", models.ErrInvalidOperation, src.ID)
	}
	loc, err := m.catalog.GetLocation(ctx, p.LocationName)
	if err != nil {
		return err
	}
	srcBackend, err := m.backends.Get(src.StorageBackend)
	if err != nil {
		return err
	}
	destBackend, err := m.backends.Get(loc.StorageBackend)
	if err != nil {
		return err
	}

	dest := &models.FileInstance{
		ID:             uuid.New().String(),
		StorageBackend: loc.StorageBackend,
		StorageClass:   src.StorageClass,
		Writable:       true,
	}
	destURI, err := storage.MakePath(loc.URI, dest.ID, "data", m.cfg.PathDimensions, m.cfg.PathSplitLength)
	if err != nil {
		return err
	}
	if _, err := m.catalog.CreateFileInstance(ctx, dest); err != nil {
		return err
	}

	if err := m.copyContents(ctx, srcBackend, destBackend, src, dest, destURI); err != nil {
		m.discardCopy(ctx, destBackend, dest, destURI)
		return err
	}

	moved, err := m.catalog.RelinkFile(ctx, src.ID, dest.ID)
	if err != nil {
		m.discardCopy(ctx, destBackend, dest, destURI)
		return err
	}

	logger.Info("migrated file instance",
		"src", src.ID,
		"dest", dest.ID,
		"location", loc.Name,
		"size", dest.Size,
		"versions", moved)

	// The source row is now unreferenced; the orphan sweep reaps it.

	if p.PostFixityCheck {
		task, err := NewTask(KindVerifyChecksum, VerifyChecksumPayload{FileID: dest.ID})
		if err == nil {
			err = m.queue.Enqueue(ctx, task)
		}
		if err != nil {
			// The migration itself succeeded; the periodic scheduler will
			// get to the copy eventually.
			logger.Warn("failed to enqueue post-migration check", "file", dest.ID, "error", err)
		}
	}
	return nil
}

// copyContents streams the source blob into the destination and freezes the
// destination instance. The copied bytes must hash to the source checksum.
func (m *Maintenance) copyContents(ctx context.Context, srcBackend, destBackend storage.Backend, src, dest *models.FileInstance, destURI string) error {
	reader, err := srcBackend.Open(ctx, *src.URI)
	if err != nil {
		return err
	}
	defer reader.Close()

	result, err := destBackend.Save(ctx, destURI, reader, storage.SaveOptions{
		Algorithm:    src.ChecksumAlgorithm(),
		ExpectedSize: src.Size,
	})
	if err != nil {
		return err
	}
	if result.Checksum != src.Checksum {
		return fmt.Errorf("%w: copy of %s hashed to %s, want %s",
			models.ErrChecksumMismatch, src.ID, result.Checksum, src.Checksum)
	}

	if err := dest.MarkStored(destURI, result.Size, result.Checksum); err != nil {
		return err
	}
	return m.catalog.MarkFileStored(ctx, dest)
}

// discardCopy removes a half-built destination instance. Best effort: what
// it misses, the orphan sweep repairs.
func (m *Maintenance) discardCopy(ctx context.Context, backend storage.Backend, dest *models.FileInstance, destURI string) {
	ctx = context.WithoutCancel(ctx)
	if err := backend.Delete(ctx, destURI); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
		logger.Warn("failed to remove half-built copy", "uri", destURI, "error", err)
	}
	if err := m.catalog.DeleteFileInstance(ctx, dest.ID); err != nil && !errors.Is(err, models.ErrFileNotFound) {
		logger.Warn("failed to remove half-built instance", "file", dest.ID, "error", err)
	}
}

// ============================================================================
// Cleanup
// ============================================================================

func (m *Maintenance) handleRemoveFileData(ctx context.Context, payload json.RawMessage) error {
	var p RemoveFileDataPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("bad remove_file_data payload: %w", err)
	}

	file, err := m.catalog.GetFileInstance(ctx, p.FileID)
	if errors.Is(err, models.ErrFileNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !file.Deletable(p.Force) {
		logger.Debug("keeping readable instance", "file", file.ID)
		return nil
	}

	// Row first. A lost blob removal leaves disk garbage, never a catalog
	// entry pointing at nothing.
	if err := m.catalog.DeleteFileInstance(ctx, file.ID); err != nil {
		if errors.Is(err, models.ErrFileInUse) {
			logger.Debug("instance regained references, keeping", "file", file.ID)
			return nil
		}
		return err
	}

	if file.URI == nil {
		return nil
	}
	backend, err := m.backends.Get(file.StorageBackend)
	if err != nil {
		logger.Warn("cannot remove content of deleted instance", "file", file.ID, "error", err)
		return nil
	}
	if err := backend.Delete(ctx, *file.URI); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
		logger.Warn("content removal failed, blob left dangling",
			"file", file.ID,
			"uri", *file.URI,
			"error", err)
	}

	logger.Debug("removed file instance", "file", file.ID, "size", file.Size)
	return nil
}

func (m *Maintenance) handleClearOrphanedFiles(ctx context.Context, payload json.RawMessage) error {
	var p ClearOrphanedFilesPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("bad clear_orphaned_files payload: %w", err)
		}
	}

	cutoff := time.Now().Add(-m.cfg.OrphanAge)
	files, err := m.catalog.ListOrphanedFiles(ctx, cutoff, m.cfg.BatchLimit)
	if err != nil {
		return err
	}

	for _, f := range files {
		task, err := NewTask(KindRemoveFileData, RemoveFileDataPayload{FileID: f.ID, Force: p.Force})
		if err != nil {
			return err
		}
		if err := m.queue.Enqueue(ctx, task); err != nil {
			return err
		}
	}

	if len(files) > 0 {
		logger.Info("orphan sweep scheduled removals", "count", len(files))
	}
	return nil
}

func (m *Maintenance) handleRemoveExpiredUploads(ctx context.Context, payload json.RawMessage) error {
	cutoff := time.Now().Add(-m.cfg.MultipartExpires)
	uploads, err := m.catalog.ListExpiredUploads(ctx, cutoff, m.cfg.BatchLimit)
	if err != nil {
		return err
	}

	var expired int
	for _, up := range uploads {
		if err := m.expireUpload(ctx, up); err != nil {
			// Keep going; the next sweep retries whatever is left.
			logger.Error("failed to expire upload", "upload", up.UploadID, "error", err)
			continue
		}
		expired++
	}

	if expired > 0 {
		logger.Info("expired multipart uploads", "count", expired)
	}
	return nil
}

func (m *Maintenance) expireUpload(ctx context.Context, up *models.MultipartObject) error {
	// Staged parts must go while the part rows still name them.
	m.removeStagedParts(ctx, up)

	if err := m.catalog.DeleteMultipartUpload(ctx, up.UploadID); err != nil {
		return err
	}

	task, err := NewTask(KindRemoveFileData, RemoveFileDataPayload{FileID: up.FileID})
	if err != nil {
		return err
	}
	return m.queue.Enqueue(ctx, task)
}

// removeStagedParts deletes the staged part blobs of an upload. Backends
// with in-place range writes never stage, so there is nothing to do for
// them; the preallocated blob itself goes with remove_file_data.
func (m *Maintenance) removeStagedParts(ctx context.Context, up *models.MultipartObject) {
	if up.File.URI == nil {
		return
	}
	backend, err := m.backends.Get(up.File.StorageBackend)
	if err != nil {
		logger.Warn("cannot clean staged parts", "upload", up.UploadID, "error", err)
		return
	}
	if _, ok := backend.(storage.RangeWriter); ok {
		return
	}

	parts, err := m.catalog.ListParts(ctx, up.UploadID, 0, -1)
	if err != nil {
		logger.Warn("cannot list parts for staged cleanup", "upload", up.UploadID, "error", err)
		return
	}
	for _, part := range parts {
		uri := storage.StagedPartURI(*up.File.URI, part.PartNumber)
		if err := backend.Delete(ctx, uri); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
			logger.Warn("failed to remove staged part", "uri", uri, "error", err)
		}
	}
}

// ============================================================================
// Multipart merge
// ============================================================================

func (m *Maintenance) handleMergeMultipart(ctx context.Context, payload json.RawMessage) error {
	var p MergeMultipartPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("bad merge_multipartobject payload: %w", err)
	}

	up, err := m.catalog.GetMultipartUpload(ctx, p.UploadID)
	if errors.Is(err, models.ErrUploadNotFound) {
		// An earlier merge attempt finished and removed the upload.
		return nil
	}
	if err != nil {
		return err
	}
	if !up.Completed {
		return fmt.Errorf("%w: upload %s", models.ErrMultipartNotCompleted, up.UploadID)
	}
	if up.File.URI == nil {
		return fmt.Errorf("upload %s has no destination uri", up.UploadID)
	}

	have, err := m.catalog.CountParts(ctx, up.UploadID)
	if err != nil {
		return err
	}
	if have != up.PartCount() {
		return fmt.Errorf("%w: upload %s has %d of %d parts",
			models.ErrMultipartMissingParts, up.UploadID, have, up.PartCount())
	}

	backend, err := m.backends.Get(up.File.StorageBackend)
	if err != nil {
		return err
	}
	uri := *up.File.URI

	file := &up.File
	if !file.Readable || file.Checksum == "" {
		var size int64
		var checksum string
		if _, ok := backend.(storage.RangeWriter); ok {
			// Parts were written straight into the preallocated blob as
			// they arrived; only the digest is left to compute.
			checksum, err = backend.Checksum(ctx, uri, storage.DefaultAlgorithm)
			if err != nil {
				return err
			}
			size = up.Size
		} else {
			size, checksum, err = m.assembleStagedParts(ctx, backend, up, uri)
			if err != nil {
				return err
			}
		}

		if err := file.MarkStored(uri, size, checksum); err == nil {
			err = m.catalog.MarkFileStored(ctx, file)
		}
		if err != nil && !errors.Is(err, models.ErrFileInstanceAlreadySet) {
			// Already-set means an earlier merge attempt got this far.
			return err
		}
	}

	if err := m.publishVersion(ctx, up); err != nil {
		return err
	}

	m.removeStagedParts(ctx, up)
	if err := m.catalog.DeleteMultipartUpload(ctx, up.UploadID); err != nil {
		return err
	}

	logger.Info("merged multipart upload",
		"upload", up.UploadID,
		"bucket", up.BucketID,
		"key", up.Key,
		"size", up.Size,
		"parts", up.PartCount())
	return nil
}

// mergeProgressStep is how many bytes a merge must advance before the next
// progress line is logged.
const mergeProgressStep int64 = 256 << 20

// assembleStagedParts streams the staged parts in order through Save,
// producing the final blob and its digest.
func (m *Maintenance) assembleStagedParts(ctx context.Context, backend storage.Backend, up *models.MultipartObject, uri string) (int64, string, error) {
	reader := &stagedReader{
		ctx:     ctx,
		backend: backend,
		baseURI: uri,
		last:    up.LastPartNumber,
	}
	defer reader.Close()

	var logged int64
	result, err := backend.Save(ctx, uri, reader, storage.SaveOptions{
		ExpectedSize: up.Size,
		Progress: func(n int64) {
			if n-logged < mergeProgressStep {
				return
			}
			logged = n
			logger.Debug("merge progress",
				"upload", up.UploadID, "bytes", n, "total", up.Size)
		},
	})
	if err != nil {
		return 0, "", err
	}
	return result.Size, result.Checksum, nil
}

// publishVersion makes the merged upload visible as the head version of its
// key. Safe to rerun: if the head already points at the upload's file the
// work is done.
func (m *Maintenance) publishVersion(ctx context.Context, up *models.MultipartObject) error {
	head, err := m.catalog.GetHeadVersion(ctx, up.BucketID, up.Key)
	if err == nil && head.FileID != nil && *head.FileID == up.FileID {
		return nil
	}
	if err != nil && !errors.Is(err, models.ErrObjectNotFound) {
		return err
	}

	version := &models.ObjectVersion{
		BucketID: up.BucketID,
		Key:      up.Key,
		FileID:   &up.FileID,
		Mimetype: mime.TypeByExtension(path.Ext(up.Key)),
		IsHead:   true,
	}
	for attempt := 0; ; attempt++ {
		err = m.catalog.SetHeadVersion(ctx, version)
		if err == nil || !errors.Is(err, models.ErrStaleUpdate) || attempt >= 3 {
			return err
		}
		logger.Debug("head swap raced, retrying", "bucket", up.BucketID, "key", up.Key)
	}
}

// stagedReader concatenates staged part blobs, opening each lazily so an
// upload with thousands of parts holds one handle at a time.
type stagedReader struct {
	ctx     context.Context
	backend storage.Backend
	baseURI string
	next    int64
	last    int64
	cur     io.ReadCloser
}

func (r *stagedReader) Read(p []byte) (int, error) {
	for {
		if r.cur == nil {
			if r.next > r.last {
				return 0, io.EOF
			}
			rc, err := r.backend.Open(r.ctx, storage.StagedPartURI(r.baseURI, r.next))
			if err != nil {
				return 0, fmt.Errorf("failed to open staged part %d: %w", r.next, err)
			}
			r.cur = rc
			r.next++
		}
		n, err := r.cur.Read(p)
		if err == io.EOF {
			closeErr := r.cur.Close()
			r.cur = nil
			if closeErr != nil {
				return n, closeErr
			}
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (r *stagedReader) Close() error {
	if r.cur != nil {
		err := r.cur.Close()
		r.cur = nil
		return err
	}
	return nil
}
