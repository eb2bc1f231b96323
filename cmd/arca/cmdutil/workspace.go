// Package cmdutil provides shared workspace assembly for arca management
// commands.
//
// Management commands operate on the catalog and queue directly instead of
// going through a running server: locations and buckets are catalog rows,
// fixity requests are queued tasks. The catalog tolerates a concurrently
// running server (sqlite WAL, postgres anyway); the embedded task queue
// does not, it takes an exclusive directory lock.
package cmdutil

import (
	"context"
	"fmt"

	"github.com/arcafs/arca/internal/logger"
	"github.com/arcafs/arca/pkg/config"
	"github.com/arcafs/arca/pkg/engine"
	"github.com/arcafs/arca/pkg/storage"
	"github.com/arcafs/arca/pkg/store"
	"github.com/arcafs/arca/pkg/tasks"
)

// Workspace bundles the opened catalog, backends and engine a management
// command works with.
type Workspace struct {
	Config   *config.Config
	Catalog  *store.GORMStore
	Backends *storage.Factory
	Engine   *engine.Engine
}

// Open loads the configuration, initializes the logger and opens catalog,
// backends and engine. The engine runs without a queue: commands that
// need one open it explicitly with OpenQueue.
func Open(ctx context.Context, configFile string) (*Workspace, error) {
	cfg, err := config.MustLoad(configFile)
	if err != nil {
		return nil, err
	}

	loggerCfg := cfg.LoggerConfig()
	if loggerCfg.Output == "stdout" {
		// Keep command output parseable; logs go to stderr.
		loggerCfg.Output = "stderr"
	}
	if err := logger.Init(loggerCfg); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	catalog, err := store.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	backends, err := config.InitializeBackends(ctx, cfg, nil)
	if err != nil {
		_ = catalog.Close()
		return nil, fmt.Errorf("failed to initialize storage backends: %w", err)
	}

	eng, err := engine.New(engine.Services{
		Store:    catalog,
		Backends: backends,
	}, cfg.EngineConfig())
	if err != nil {
		_ = backends.Close()
		_ = catalog.Close()
		return nil, err
	}

	return &Workspace{
		Config:   cfg,
		Catalog:  catalog,
		Backends: backends,
		Engine:   eng,
	}, nil
}

// Close releases the catalog and backends.
func (w *Workspace) Close() {
	if err := w.Backends.Close(); err != nil {
		logger.Warn("backends close error", "error", err)
	}
	if err := w.Catalog.Close(); err != nil {
		logger.Warn("catalog close error", "error", err)
	}
}

// OpenQueue opens the embedded task queue. Fails when the server is
// running, which holds the queue's directory lock; stop it first.
func (w *Workspace) OpenQueue() (*tasks.Queue, error) {
	q, err := tasks.OpenQueue(w.Config.Queue.QueueConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open task queue (is the server running? stop it first): %w", err)
	}
	return q, nil
}
