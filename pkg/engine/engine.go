// Package engine orchestrates the object store: it ties the catalog, the
// blob backends, the task queue and the signal hub together and implements
// the operations the REST surface and the CLI expose.
//
// The engine owns ordering and accounting. Content is written before the
// version that names it is published, bucket sizes are reserved up front
// under a row lock and released when a write fails, and everything the
// engine cannot finish synchronously (merge, blob cleanup) is handed to the
// task queue. HTTP concerns stay out: operations speak models values and
// domain errors, the API layer maps them.
package engine

import (
	"context"
	"fmt"

	"github.com/arcafs/arca/internal/bytesize"
	"github.com/arcafs/arca/internal/logger"
	"github.com/arcafs/arca/pkg/auth"
	"github.com/arcafs/arca/pkg/models"
	"github.com/arcafs/arca/pkg/signals"
	"github.com/arcafs/arca/pkg/storage"
	"github.com/arcafs/arca/pkg/store"
	"github.com/arcafs/arca/pkg/tasks"
)

// Config bundles the enforcement limits of one deployment. The zero value is
// normalized to the documented defaults, except for the three size limits:
// zero quota, max-file-size and min-file-size mean "no limit".
type Config struct {
	// StorageClasses maps class codes to display labels. Buckets and file
	// instances record the code.
	StorageClasses map[string]string `mapstructure:"storage_classes" json:"storage_classes" yaml:"storage_classes"`

	// DefaultStorageClass is applied when a bucket is created without one.
	DefaultStorageClass string `mapstructure:"default_storage_class" json:"default_storage_class" yaml:"default_storage_class"`

	// DefaultQuotaSize and DefaultMaxFileSize are stamped on new buckets.
	// Zero leaves the bucket unlimited.
	DefaultQuotaSize   int64 `mapstructure:"default_quota_size" json:"default_quota_size" yaml:"default_quota_size"`
	DefaultMaxFileSize int64 `mapstructure:"default_max_file_size" json:"default_max_file_size" yaml:"default_max_file_size"`

	// MinFileSize rejects uploads below this many bytes. Zero admits empty
	// objects.
	MinFileSize int64 `mapstructure:"min_file_size" json:"min_file_size" yaml:"min_file_size"`

	// KeyMaxLen and URIMaxLen bound object keys and generated blob URIs to
	// their column widths.
	KeyMaxLen int `mapstructure:"key_max_len" json:"key_max_len" yaml:"key_max_len"`
	URIMaxLen int `mapstructure:"uri_max_len" json:"uri_max_len" yaml:"uri_max_len"`

	// PathDimensions and PathSplitLength control the directory fan-out of
	// new blob URIs.
	PathDimensions  int `mapstructure:"path_dimensions" json:"path_dimensions" yaml:"path_dimensions"`
	PathSplitLength int `mapstructure:"path_split_length" json:"path_split_length" yaml:"path_split_length"`

	// ChunkSizeMin and ChunkSizeMax bound the part size of multipart
	// uploads; MaxParts caps how many parts one upload may declare.
	ChunkSizeMin int64 `mapstructure:"chunk_size_min" json:"chunk_size_min" yaml:"chunk_size_min"`
	ChunkSizeMax int64 `mapstructure:"chunk_size_max" json:"chunk_size_max" yaml:"chunk_size_max"`
	MaxParts     int64 `mapstructure:"max_parts" json:"max_parts" yaml:"max_parts"`

	// ChecksumAlgorithm is the fixity digest computed for new content.
	ChecksumAlgorithm string `mapstructure:"checksum_algorithm" json:"checksum_algorithm" yaml:"checksum_algorithm"`
}

// DefaultConfig returns the documented limit defaults: classes S (Standard)
// and A (Archive), no quota, minimum file size 1, parts between 5 MiB and
// 5 GiB, at most 10000 parts.
func DefaultConfig() Config {
	return Config{
		StorageClasses:      map[string]string{"S": "Standard", "A": "Archive"},
		DefaultStorageClass: "S",
		MinFileSize:         1,
		KeyMaxLen:           255,
		URIMaxLen:           255,
		PathDimensions:      storage.DefaultPathDimensions,
		PathSplitLength:     storage.DefaultPathSplitLength,
		ChunkSizeMin:        (5 * bytesize.MiB).Int64(),
		ChunkSizeMax:        (5 * bytesize.GiB).Int64(),
		MaxParts:            10000,
		ChecksumAlgorithm:   storage.DefaultAlgorithm,
	}
}

// normalize fills structurally required fields from the defaults. Size
// limits are left alone: their zero values are meaningful.
func (c Config) normalize() Config {
	def := DefaultConfig()
	if len(c.StorageClasses) == 0 {
		c.StorageClasses = def.StorageClasses
	}
	if c.DefaultStorageClass == "" {
		c.DefaultStorageClass = def.DefaultStorageClass
	}
	if c.KeyMaxLen <= 0 {
		c.KeyMaxLen = def.KeyMaxLen
	}
	if c.URIMaxLen <= 0 {
		c.URIMaxLen = def.URIMaxLen
	}
	if c.PathDimensions <= 0 {
		c.PathDimensions = def.PathDimensions
	}
	if c.PathSplitLength <= 0 {
		c.PathSplitLength = def.PathSplitLength
	}
	if c.ChunkSizeMin <= 0 {
		c.ChunkSizeMin = def.ChunkSizeMin
	}
	if c.ChunkSizeMax <= 0 {
		c.ChunkSizeMax = def.ChunkSizeMax
	}
	if c.MaxParts <= 0 {
		c.MaxParts = def.MaxParts
	}
	if c.ChecksumAlgorithm == "" {
		c.ChecksumAlgorithm = def.ChecksumAlgorithm
	}
	return c
}

// Services are the engine's constructor-injected collaborators. Store and
// Backends are required. A nil Oracle allows everything, a nil Signals hub
// drops events, and a nil Queue skips cleanup enqueues (the periodic orphan
// sweep of a running server repairs what that leaves behind).
type Services struct {
	Store    store.Store
	Backends *storage.Factory
	Queue    *tasks.Queue
	Oracle   auth.Oracle
	Signals  *signals.Hub
}

// Engine implements the object store operations over the injected services.
// All methods are safe for concurrent use.
type Engine struct {
	store    store.Store
	backends *storage.Factory
	queue    *tasks.Queue
	oracle   auth.Oracle
	signals  *signals.Hub
	cfg      Config

	uploadLocks *keyedLocks
}

// New builds an engine from its services and limits.
func New(svc Services, cfg Config) (*Engine, error) {
	if svc.Store == nil {
		return nil, fmt.Errorf("engine needs a catalog store")
	}
	if svc.Backends == nil {
		return nil, fmt.Errorf("engine needs a storage factory")
	}
	oracle := svc.Oracle
	if oracle == nil {
		oracle = auth.AllowAll{}
	}

	cfg = cfg.normalize()
	if _, ok := cfg.StorageClasses[cfg.DefaultStorageClass]; !ok {
		return nil, fmt.Errorf("default storage class %q is not in the class list", cfg.DefaultStorageClass)
	}
	if cfg.ChunkSizeMin > cfg.ChunkSizeMax {
		return nil, fmt.Errorf("multipart chunk bounds are inverted: min %d > max %d", cfg.ChunkSizeMin, cfg.ChunkSizeMax)
	}

	return &Engine{
		store:       svc.Store,
		backends:    svc.Backends,
		queue:       svc.Queue,
		oracle:      oracle,
		signals:     svc.Signals,
		cfg:         cfg,
		uploadLocks: newKeyedLocks(),
	}, nil
}

// Store returns the catalog store.
func (e *Engine) Store() store.Store { return e.store }

// Backends returns the storage backend factory.
func (e *Engine) Backends() *storage.Factory { return e.backends }

// Queue returns the task queue, or nil when none was wired.
func (e *Engine) Queue() *tasks.Queue { return e.queue }

// Oracle returns the authorization oracle.
func (e *Engine) Oracle() auth.Oracle { return e.oracle }

// Signals returns the signal hub, or nil when none was wired.
func (e *Engine) Signals() *signals.Hub { return e.signals }

// Config returns the effective limits after normalization.
func (e *Engine) Config() Config { return e.cfg }

// Healthcheck pings the catalog, every storage backend and the task queue.
func (e *Engine) Healthcheck(ctx context.Context) error {
	if err := e.store.Healthcheck(ctx); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	if err := e.backends.HealthCheck(ctx); err != nil {
		return err
	}
	if e.queue != nil {
		if err := e.queue.Healthcheck(ctx); err != nil {
			return fmt.Errorf("task queue: %w", err)
		}
	}
	return nil
}

// enqueue hands follow-up work to the task queue. Without a queue the task
// is dropped with a warning; the periodic sweeps cover for it.
func (e *Engine) enqueue(ctx context.Context, kind string, payload any) {
	if e.queue == nil {
		logger.WarnCtx(ctx, "no task queue wired, dropping task", "kind", kind)
		return
	}
	task, err := tasks.NewTask(kind, payload)
	if err == nil {
		err = e.queue.Enqueue(ctx, task)
	}
	if err != nil {
		logger.ErrorCtx(ctx, "failed to enqueue task", "kind", kind, "error", err)
	}
}

// effectiveQuota resolves the quota to enforce for a bucket: the bucket's
// own quota when set, else the configured default.
func (e *Engine) effectiveQuota(b *models.Bucket) *int64 {
	if b.QuotaSize != nil {
		return b.QuotaSize
	}
	if e.cfg.DefaultQuotaSize > 0 {
		q := e.cfg.DefaultQuotaSize
		return &q
	}
	return nil
}

// effectiveFileLimit resolves the per-file size limit for a bucket, or zero
// when none applies.
func (e *Engine) effectiveFileLimit(b *models.Bucket) int64 {
	if b.MaxFileSize != nil {
		return *b.MaxFileSize
	}
	return e.cfg.DefaultMaxFileSize
}
