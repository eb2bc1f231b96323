package config

import (
	"context"
	"fmt"

	"github.com/arcafs/arca/internal/logger"
	"github.com/arcafs/arca/pkg/storage"

	// Register the built-in storage drivers.
	_ "github.com/arcafs/arca/pkg/storage/fs"
	_ "github.com/arcafs/arca/pkg/storage/memory"
	_ "github.com/arcafs/arca/pkg/storage/s3"
)

// BackendWrapper decorates a freshly created backend, typically with
// metrics or tracing instrumentation. It must preserve the optional
// capability interfaces of the wrapped backend.
type BackendWrapper func(name string, backend storage.Backend) storage.Backend

// InitializeBackends creates a fully configured storage factory from the
// provided configuration.
//
// Every entry in cfg.Storage.Backends is instantiated through its driver
// and registered under its configured name. A non-nil wrap function is
// applied to each backend before registration; pass nil for no
// instrumentation.
//
// On any creation error the backends created so far are closed.
//
// Example:
//
//	cfg, _ := config.Load("config.yaml")
//	backends, err := config.InitializeBackends(ctx, cfg, nil)
//	if err != nil {
//	    log.Fatalf("Failed to initialize storage: %v", err)
//	}
//	defer backends.Close()
func InitializeBackends(ctx context.Context, cfg *Config, wrap BackendWrapper) (*storage.Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}
	if len(cfg.Storage.Backends) == 0 {
		return nil, fmt.Errorf("no storage backends configured: at least one backend is required")
	}

	factory := storage.NewFactory()

	for name, backendCfg := range cfg.Storage.Backends {
		logger.Debug("Creating storage backend", "name", name, "type", backendCfg.Type)

		backend, err := storage.Create(ctx, backendCfg.Type, backendCfg.Params)
		if err != nil {
			_ = factory.Close()
			return nil, fmt.Errorf("failed to create storage backend %q: %w", name, err)
		}

		if wrap != nil {
			backend = wrap(name, backend)
		}
		factory.Add(name, backend)

		logger.Debug("Storage backend registered successfully", "name", name)
	}

	logger.Info("Registered storage backends", "count", len(cfg.Storage.Backends))

	return factory, nil
}
