package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/arcafs/arca/internal/bytesize"
	"github.com/arcafs/arca/pkg/api"
	"github.com/arcafs/arca/pkg/engine"
	"github.com/arcafs/arca/pkg/storage"
	"github.com/arcafs/arca/pkg/store"
	"github.com/arcafs/arca/pkg/tasks"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Fields whose zero value is meaningful (bucket quotas, file size
//     bounds) use pointers or are left alone
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyDatabaseDefaults(&cfg.Database)
	applyStorageDefaults(&cfg.Storage)
	applyLimitsDefaults(&cfg.Limits)
	applyMultipartDefaults(&cfg.Multipart)
	applyAuthDefaults(&cfg.Auth)
	applyQueueDefaults(&cfg.Queue)
	applyFixityDefaults(&cfg.Fixity)
	applyCleanupDefaults(&cfg.Cleanup)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets API server defaults.
func applyServerDefaults(cfg *api.Config) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.BasePath == "" {
		cfg.BasePath = "/files"
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	// ReadTimeout and WriteTimeout stay zero: object transfers stream at
	// the client's pace.
}

// applyDatabaseDefaults sets catalog database defaults.
func applyDatabaseDefaults(cfg *store.Config) {
	cfg.ApplyDefaults()
}

// applyStorageDefaults sets blob storage defaults. An empty backend map
// becomes a single filesystem backend under the data directory, so a fresh
// install works without any storage configuration.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.ChecksumAlgorithm == "" {
		cfg.ChecksumAlgorithm = storage.DefaultAlgorithm
	}
	if cfg.PathDimensions <= 0 {
		cfg.PathDimensions = storage.DefaultPathDimensions
	}
	if cfg.PathSplitLength <= 0 {
		cfg.PathSplitLength = storage.DefaultPathSplitLength
	}
	if len(cfg.Backends) == 0 {
		cfg.Backends = map[string]BackendConfig{
			"fs": {
				Type: "fs",
				Params: map[string]any{
					"root":       filepath.Join(defaultDataDir(), "blobs"),
					"create_dir": true,
				},
			},
		}
	}
}

// applyLimitsDefaults sets enforcement limit defaults. Quota and
// max-file-size keep their zero values: zero means unlimited.
func applyLimitsDefaults(cfg *LimitsConfig) {
	def := engine.DefaultConfig()

	if len(cfg.StorageClasses) == 0 {
		cfg.StorageClasses = def.StorageClasses
	}
	if cfg.DefaultStorageClass == "" {
		cfg.DefaultStorageClass = def.DefaultStorageClass
	}
	if cfg.MinFileSize == nil {
		minSize := bytesize.ByteSize(def.MinFileSize)
		cfg.MinFileSize = &minSize
	}
	if cfg.KeyMaxLen <= 0 {
		cfg.KeyMaxLen = def.KeyMaxLen
	}
	if cfg.URIMaxLen <= 0 {
		cfg.URIMaxLen = def.URIMaxLen
	}
}

// applyMultipartDefaults sets multipart upload defaults.
func applyMultipartDefaults(cfg *MultipartConfig) {
	def := engine.DefaultConfig()

	if cfg.ChunkSizeMin == 0 {
		cfg.ChunkSizeMin = bytesize.ByteSize(def.ChunkSizeMin)
	}
	if cfg.ChunkSizeMax == 0 {
		cfg.ChunkSizeMax = bytesize.ByteSize(def.ChunkSizeMax)
	}
	if cfg.MaxParts <= 0 {
		cfg.MaxParts = def.MaxParts
	}
	if cfg.Expires == 0 {
		cfg.Expires = tasks.DefaultMaintenanceConfig().MultipartExpires
	}
}

// applyAuthDefaults sets authentication defaults. The JWT settings get
// defaults even when auth is disabled so enabling it later is a one-line
// change.
func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "arca"
	}
	if cfg.JWT.AccessTokenDuration == 0 {
		cfg.JWT.AccessTokenDuration = 15 * time.Minute
	}
	if cfg.JWT.RefreshTokenDuration == 0 {
		cfg.JWT.RefreshTokenDuration = 7 * 24 * time.Hour
	}
}

// applyQueueDefaults sets task queue and worker pool defaults.
func applyQueueDefaults(cfg *QueueConfig) {
	qdef := tasks.DefaultQueueConfig()
	pdef := tasks.DefaultPoolConfig()

	if cfg.Path == "" && !cfg.InMemory {
		cfg.Path = filepath.Join(defaultDataDir(), "queue")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = qdef.MaxAttempts
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = qdef.RetryBackoff
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = qdef.MaxBackoff
	}
	if cfg.ClaimTimeout == 0 {
		cfg.ClaimTimeout = qdef.ClaimTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = pdef.Workers
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = pdef.PollInterval
	}
	if cfg.TaskTimeout == 0 {
		cfg.TaskTimeout = pdef.TaskTimeout
	}
}

// applyFixityDefaults sets fixity sweep defaults.
func applyFixityDefaults(cfg *FixityConfig) {
	def := tasks.DefaultMaintenanceConfig()

	if cfg.Frequency == 0 {
		cfg.Frequency = def.FixityFrequency
	}
	if cfg.BatchInterval == 0 {
		cfg.BatchInterval = def.FixityBatchInterval
	}
	// MaxCount and MaxSize keep their zero values: zero disables the cap.
}

// applyCleanupDefaults sets cleanup sweep defaults.
func applyCleanupDefaults(cfg *CleanupConfig) {
	def := tasks.DefaultMaintenanceConfig()

	if cfg.OrphanAge == 0 {
		cfg.OrphanAge = def.OrphanAge
	}
	if cfg.OrphanSweepInterval == 0 {
		cfg.OrphanSweepInterval = def.OrphanSweepInterval
	}
	if cfg.ExpirySweepInterval == 0 {
		cfg.ExpirySweepInterval = def.ExpirySweepInterval
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = def.BatchLimit
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in for telemetry)

	// Default endpoint is localhost:4317 (standard OTLP gRPC port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	// Default sample rate is 1.0 (sample all traces)
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	// Apply profiling defaults
	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	// Enabled defaults to false (opt-in for profiling)

	// Default endpoint is localhost:4040 (standard Pyroscope port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	// Default profile types include CPU, memory allocation, and goroutines
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// defaultDataDir returns the directory for databases and blobs created
// without explicit paths.
//
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share, or falls back to
// the current directory (.) if home directory cannot be determined.
func defaultDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "arca")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".local", "share", "arca")
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Running without a configuration file
//   - Testing
func GetDefaultConfig() *Config {
	cfg := &Config{
		Database: store.Config{
			Type: store.DatabaseTypeSQLite, // Default to SQLite for single-node
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
