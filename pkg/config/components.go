package config

import (
	"github.com/arcafs/arca/internal/logger"
	"github.com/arcafs/arca/internal/telemetry"
	"github.com/arcafs/arca/pkg/engine"
	"github.com/arcafs/arca/pkg/tasks"
)

// The configuration file groups settings by operator concern (limits,
// multipart, fixity, cleanup), while the components group them by owner
// (engine, maintenance). The methods below translate between the two.

// LoggerConfig returns the logger settings of the logging section.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Output: c.Logging.Output,
	}
}

// EngineConfig assembles the engine limits from the limits, multipart and
// storage sections.
func (c *Config) EngineConfig() engine.Config {
	cfg := engine.Config{
		StorageClasses:      c.Limits.StorageClasses,
		DefaultStorageClass: c.Limits.DefaultStorageClass,
		DefaultQuotaSize:    c.Limits.DefaultQuotaSize.Int64(),
		DefaultMaxFileSize:  c.Limits.DefaultMaxFileSize.Int64(),
		KeyMaxLen:           c.Limits.KeyMaxLen,
		URIMaxLen:           c.Limits.URIMaxLen,
		PathDimensions:      c.Storage.PathDimensions,
		PathSplitLength:     c.Storage.PathSplitLength,
		ChunkSizeMin:        c.Multipart.ChunkSizeMin.Int64(),
		ChunkSizeMax:        c.Multipart.ChunkSizeMax.Int64(),
		MaxParts:            c.Multipart.MaxParts,
		ChecksumAlgorithm:   c.Storage.ChecksumAlgorithm,
	}
	if c.Limits.MinFileSize != nil {
		cfg.MinFileSize = c.Limits.MinFileSize.Int64()
	}
	return cfg
}

// MaintenanceConfig assembles the maintenance settings from the fixity,
// cleanup, multipart and storage sections.
func (c *Config) MaintenanceConfig() tasks.MaintenanceConfig {
	return tasks.MaintenanceConfig{
		FixityEnabled:       c.Fixity.IsEnabled(),
		FixityFrequency:     c.Fixity.Frequency,
		FixityBatchInterval: c.Fixity.BatchInterval,
		FixityMaxCount:      c.Fixity.MaxCount,
		FixityMaxSize:       c.Fixity.MaxSize.Int64(),
		MultipartExpires:    c.Multipart.Expires,
		OrphanAge:           c.Cleanup.OrphanAge,
		OrphanSweepInterval: c.Cleanup.OrphanSweepInterval,
		ExpirySweepInterval: c.Cleanup.ExpirySweepInterval,
		BatchLimit:          c.Cleanup.BatchLimit,
		PathDimensions:      c.Storage.PathDimensions,
		PathSplitLength:     c.Storage.PathSplitLength,
	}
}

// TracingConfig returns the OTLP exporter settings with the service
// identity filled in by the caller.
func (c *Config) TracingConfig(serviceName, serviceVersion string) telemetry.Config {
	return telemetry.Config{
		Enabled:        c.Telemetry.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Endpoint:       c.Telemetry.Endpoint,
		Insecure:       c.Telemetry.IsInsecure(),
		SampleRate:     c.Telemetry.SampleRate,
	}
}

// PyroscopeConfig returns the continuous profiling settings with the
// service identity filled in by the caller.
func (c *Config) PyroscopeConfig(serviceName, serviceVersion string) telemetry.ProfilingConfig {
	return telemetry.ProfilingConfig{
		Enabled:        c.Telemetry.Profiling.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Endpoint:       c.Telemetry.Profiling.Endpoint,
		ProfileTypes:   c.Telemetry.Profiling.ProfileTypes,
	}
}
