package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/arcafs/arca/internal/bytesize"
	"github.com/arcafs/arca/pkg/api"
	"github.com/arcafs/arca/pkg/auth"
	"github.com/arcafs/arca/pkg/store"
	"github.com/arcafs/arca/pkg/tasks"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the Arca configuration.
//
// This structure captures the static configuration of the Arca server:
//   - Logging configuration
//   - API server settings (host, port, timeouts)
//   - Catalog database connection (SQLite or PostgreSQL)
//   - Storage backends and blob path layout
//   - Enforcement limits (storage classes, quotas, size bounds)
//   - Multipart upload bounds and expiry
//   - Authentication (JWT, static users, denial hiding)
//   - Task queue and maintenance sweeps (fixity, cleanup)
//   - Metrics, telemetry and profiling
//
// Dynamic state (locations, buckets, objects, tags) lives in the catalog
// database and is managed through the REST API and the CLI.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (ARCA_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains the REST API server configuration
	Server api.Config `mapstructure:"server" yaml:"server"`

	// Database configures the catalog database (SQLite or PostgreSQL).
	// This is the persistent store for locations, buckets, objects and
	// file instances.
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Storage configures the blob backends and the path layout of newly
	// minted blob URIs.
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Limits contains the enforcement limits stamped on buckets and
	// checked on uploads.
	Limits LimitsConfig `mapstructure:"limits" yaml:"limits"`

	// Multipart bounds multipart uploads.
	Multipart MultipartConfig `mapstructure:"multipart" yaml:"multipart"`

	// Auth configures authentication and authorization.
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// Queue configures the durable task queue and its worker pool.
	Queue QueueConfig `mapstructure:"queue" yaml:"queue"`

	// Fixity configures the recurring checksum verification sweep.
	Fixity FixityConfig `mapstructure:"fixity" yaml:"fixity"`

	// Cleanup configures the orphan and expired-upload sweeps.
	Cleanup CleanupConfig `mapstructure:"cleanup" yaml:"cleanup"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// StorageConfig configures the blob backends and the shape of blob URIs.
type StorageConfig struct {
	// Backends maps backend names to their driver configuration. Every
	// location row in the catalog references one of these names. At
	// least one backend is required; an unconfigured section defaults to
	// a single filesystem backend under the data directory.
	Backends map[string]BackendConfig `mapstructure:"backends" validate:"required,dive" yaml:"backends"`

	// ChecksumAlgorithm is the fixity digest computed for new uploads.
	// Valid values: md5, sha1, sha256, sha512
	// Default: md5
	ChecksumAlgorithm string `mapstructure:"checksum_algorithm" validate:"omitempty,oneof=md5 sha1 sha256 sha512" yaml:"checksum_algorithm"`

	// PathDimensions and PathSplitLength control the directory fan-out
	// of newly minted blob URIs. With dimensions 2 and split length 3 a
	// file identifier abcdef… lands under abc/def/.
	// Defaults: 1 and 2
	PathDimensions  int `mapstructure:"path_dimensions" validate:"omitempty,min=1" yaml:"path_dimensions"`
	PathSplitLength int `mapstructure:"path_split_length" validate:"omitempty,min=1" yaml:"path_split_length"`
}

// BackendConfig selects a storage driver and carries its parameters.
//
// The parameter keys are driver-specific: the filesystem driver reads
// root and create_dir, the s3 driver endpoint, region, bucket and
// credentials, the memory driver nothing.
type BackendConfig struct {
	// Type is the driver name.
	// Valid values: fs, s3, memory
	Type string `mapstructure:"type" validate:"required,oneof=fs s3 memory" yaml:"type"`

	// Params holds the driver parameters, passed through verbatim.
	Params map[string]any `mapstructure:"params" yaml:"params,omitempty"`
}

// LimitsConfig contains the enforcement limits stamped on new buckets and
// checked on every upload.
type LimitsConfig struct {
	// StorageClasses maps class codes to display labels.
	// Default: {S: Standard, A: Archive}
	StorageClasses map[string]string `mapstructure:"storage_classes" yaml:"storage_classes,omitempty"`

	// DefaultStorageClass is applied when a bucket is created without
	// one. Must be a key of StorageClasses.
	// Default: S
	DefaultStorageClass string `mapstructure:"default_storage_class" yaml:"default_storage_class"`

	// DefaultQuotaSize and DefaultMaxFileSize are stamped on new
	// buckets. Zero leaves buckets unlimited.
	// Supports human-readable sizes: "10GiB", "500MB"
	DefaultQuotaSize   bytesize.ByteSize `mapstructure:"default_quota_size" yaml:"default_quota_size,omitempty"`
	DefaultMaxFileSize bytesize.ByteSize `mapstructure:"default_max_file_size" yaml:"default_max_file_size,omitempty"`

	// MinFileSize rejects uploads below this many bytes. An explicit
	// zero admits empty objects; leaving it unset defaults to 1.
	MinFileSize *bytesize.ByteSize `mapstructure:"min_file_size" yaml:"min_file_size,omitempty"`

	// KeyMaxLen and URIMaxLen bound object keys and generated blob URIs.
	// Both are capped at 255, the catalog column width.
	KeyMaxLen int `mapstructure:"key_max_len" validate:"omitempty,min=1,max=255" yaml:"key_max_len"`
	URIMaxLen int `mapstructure:"uri_max_len" validate:"omitempty,min=1,max=255" yaml:"uri_max_len"`
}

// MultipartConfig bounds multipart uploads.
type MultipartConfig struct {
	// ChunkSizeMin and ChunkSizeMax bound the declared part size.
	// Defaults: 5MiB and 5GiB
	ChunkSizeMin bytesize.ByteSize `mapstructure:"chunk_size_min" yaml:"chunk_size_min"`
	ChunkSizeMax bytesize.ByteSize `mapstructure:"chunk_size_max" yaml:"chunk_size_max"`

	// MaxParts caps how many parts one upload may declare.
	// Default: 10000
	MaxParts int64 `mapstructure:"max_parts" validate:"omitempty,min=1" yaml:"max_parts"`

	// Expires is how long an uncompleted upload may live before the
	// expiry sweep aborts it.
	// Default: 96h
	Expires time.Duration `mapstructure:"expires" yaml:"expires"`
}

// AuthConfig configures authentication and authorization.
//
// With Enabled false every request runs as an anonymous admin and the
// login endpoint is absent. With Enabled true, requests present a JWT
// bearer token obtained from POST /auth/login against the static user
// list.
type AuthConfig struct {
	// Enabled turns authentication on.
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Hidden controls how denied requests are answered: true maps
	// denials to 404 so probing cannot distinguish "absent" from
	// "forbidden", false uses plain 401/403.
	// Default: true
	// Use a pointer to distinguish "not set" from "explicitly false"
	Hidden *bool `mapstructure:"hidden" yaml:"hidden,omitempty"`

	// JWT configures token issuing and verification.
	JWT JWTConfig `mapstructure:"jwt" yaml:"jwt"`

	// Users is the static account list. Password hashes are bcrypt;
	// generate one with "arca config hash" or htpasswd -nbB.
	Users []auth.User `mapstructure:"users" yaml:"users,omitempty"`
}

// HideDenied reports whether denials are masked as 404.
// Defaults to true if not explicitly set.
func (c *AuthConfig) HideDenied() bool {
	if c.Hidden == nil {
		return true
	}
	return *c.Hidden
}

// JWTConfig holds the token settings of the auth section.
type JWTConfig struct {
	// Secret is the HMAC signing key. Must be at least 32 characters
	// when auth is enabled.
	Secret string `mapstructure:"secret" yaml:"secret,omitempty"`

	// Issuer is the token issuer claim.
	// Default: arca
	Issuer string `mapstructure:"issuer" yaml:"issuer,omitempty"`

	// AccessTokenDuration is the lifetime of access tokens.
	// Default: 15m
	AccessTokenDuration time.Duration `mapstructure:"access_token_duration" yaml:"access_token_duration,omitempty"`

	// RefreshTokenDuration is the lifetime of refresh tokens.
	// Default: 168h (7 days)
	RefreshTokenDuration time.Duration `mapstructure:"refresh_token_duration" yaml:"refresh_token_duration,omitempty"`
}

// QueueConfig combines the durable queue settings with the worker pool
// settings into one configuration section.
type QueueConfig struct {
	tasks.QueueConfig `mapstructure:",squash" yaml:",inline"`
	tasks.PoolConfig  `mapstructure:",squash" yaml:",inline"`
}

// FixityConfig configures the recurring checksum verification sweep.
type FixityConfig struct {
	// Enabled gates the recurring sweep. Manually scheduled checks run
	// either way.
	// Default: true
	// Use a pointer to distinguish "not set" from "explicitly false"
	Enabled *bool `mapstructure:"enabled" yaml:"enabled,omitempty"`

	// Frequency is how often every readable instance should be
	// re-hashed.
	// Default: 720h (30 days)
	Frequency time.Duration `mapstructure:"frequency" yaml:"frequency"`

	// BatchInterval is the spacing between scheduling passes. Together
	// with Frequency it sizes the fair batch per pass.
	// Default: 1h
	BatchInterval time.Duration `mapstructure:"batch_interval" yaml:"batch_interval"`

	// MaxCount and MaxSize cap one scheduling pass by file count or
	// total bytes. Zero disables the cap.
	MaxCount int               `mapstructure:"max_count" yaml:"max_count,omitempty"`
	MaxSize  bytesize.ByteSize `mapstructure:"max_size" yaml:"max_size,omitempty"`
}

// IsEnabled returns whether the fixity sweep is enabled.
// Defaults to true if not explicitly set.
func (c *FixityConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// CleanupConfig configures the orphan and expired-upload sweeps.
type CleanupConfig struct {
	// OrphanAge is the minimum age before an unreferenced file instance
	// is reaped. Must comfortably exceed the longest plausible upload.
	// Default: 24h
	OrphanAge time.Duration `mapstructure:"orphan_age" yaml:"orphan_age"`

	// OrphanSweepInterval and ExpirySweepInterval space the recurring
	// sweeps.
	// Default: 1h each
	OrphanSweepInterval time.Duration `mapstructure:"orphan_sweep_interval" yaml:"orphan_sweep_interval"`
	ExpirySweepInterval time.Duration `mapstructure:"expiry_sweep_interval" yaml:"expiry_sweep_interval"`

	// BatchLimit bounds the rows one sweep pass loads.
	// Default: 1000
	BatchLimit int `mapstructure:"batch_limit" validate:"omitempty,min=1" yaml:"batch_limit"`
}

// MetricsConfig configures Prometheus metrics.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port optionally serves the metrics endpoint on its own listener.
	// Zero mounts /metrics on the API router instead.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port,omitempty"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector
// (e.g., Jaeger, Tempo, or any OTLP receiver).
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	// Use a pointer to distinguish "not set" from "explicitly false"
	Insecure *bool `mapstructure:"insecure" yaml:"insecure,omitempty"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// 1.0 = sample all traces, 0.5 = sample 50%, 0.0 = no sampling
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// IsInsecure returns whether the OTLP connection skips TLS.
// Defaults to true if not explicitly set.
func (c *TelemetryConfig) IsInsecure() bool {
	if c.Insecure == nil {
		return true
	}
	return *c.Insecure
}

// ProfilingConfig controls Pyroscope continuous profiling.
// When enabled, CPU and memory profiles are continuously sent to a
// Pyroscope server for flame graph visualization.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040" (standard Pyroscope port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	//               goroutines, mutex_count, mutex_duration, block_count, block_duration
	// Default: ["cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"]
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (ARCA_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Configure viper
	setupViper(v, configPath)

	// Read configuration file if it exists
	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// If no config file was found, use defaults
	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	// Unmarshal into config struct with custom decode hooks
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: User-friendly error with instructions if config not found
func MustLoad(configPath string) (*Config, error) {
	// Determine config path
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  arca config init\n\n"+
				"Or specify a custom config file:\n"+
				"  arca <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  arca config init --config %s",
				configPath, configPath)
		}
	}

	// Load configuration
	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Use yaml.Marshal directly to respect yaml tags
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write with restricted permissions (0600 = owner read/write only):
	// the file may contain the JWT secret and S3 credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Set up environment variable support
	// Environment variables use ARCA_ prefix and underscores
	// Example: ARCA_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("ARCA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Configure config file search
	if configPath != "" {
		// Use explicitly specified config file
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/arca/config.{yaml,toml}
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml") // Primary format
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		// Check if error is "config file not found"
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return false, nil
		}
		// Also check for os.PathError when explicit config file doesn't exist
		if os.IsNotExist(err) {
			// Config file not found is acceptable - use defaults
			return false, nil
		}
		// Other errors are problems
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
// This includes ByteSize and time.Duration parsing.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook returns a mapstructure decode hook that converts strings
// and integers to bytesize.ByteSize. This enables config files to use
// human-readable sizes like "5MiB", "1Gi" or plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		// Only handle conversion to ByteSize
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			// Parse human-readable string like "1Gi", "500Mi", "100MB"
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		// Only handle conversion to time.Duration
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			// Parse duration string like "30s", "5m", "1h"
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	// Check XDG_CONFIG_HOME
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "arca")
	}

	// Fall back to ~/.config
	home, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, use current directory as last resort
		return "."
	}

	return filepath.Join(home, ".config", "arca")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// config init command).
func GetConfigDir() string {
	return getConfigDir()
}
