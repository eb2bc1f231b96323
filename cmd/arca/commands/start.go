package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arcafs/arca/internal/logger"
	"github.com/arcafs/arca/internal/telemetry"
	"github.com/arcafs/arca/pkg/api"
	"github.com/arcafs/arca/pkg/auth"
	"github.com/arcafs/arca/pkg/config"
	"github.com/arcafs/arca/pkg/engine"
	"github.com/arcafs/arca/pkg/metrics"
	metricsprom "github.com/arcafs/arca/pkg/metrics/prometheus"
	"github.com/arcafs/arca/pkg/signals"
	"github.com/arcafs/arca/pkg/storage"
	"github.com/arcafs/arca/pkg/store"
	"github.com/arcafs/arca/pkg/tasks"
)

var startPidFile string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the object store server",
	Long: `Start the arca server with the specified configuration.

The server runs in the foreground: the REST API, the background worker
pool and the maintenance scheduler all live in this one process. Use a
process supervisor (systemd, runit, a container runtime) for daemonizing.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/arca/config.yaml.

Examples:
  # Start with the default config
  arca start

  # Start with custom config file
  arca start --config /etc/arca/config.yaml

  # Start with environment variable overrides
  ARCA_LOGGING_LEVEL=DEBUG arca start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startPidFile, "pid-file", "", "Path to PID file (default: none)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryShutdown, err := telemetry.Init(ctx, cfg.TracingConfig("arca", Version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingShutdown, err := telemetry.InitProfiling(cfg.PyroscopeConfig("arca", Version))
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("Starting arca", "version", Version, "commit", Commit)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	// Initialize metrics first so every later component can register its
	// collectors.
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	}
	httpMetrics := metricsprom.NewHTTPMetrics()
	storageMetrics := metricsprom.NewStorageMetrics()
	var (
		poolMetrics  tasks.PoolMetrics
		maintMetrics tasks.MaintenanceMetrics
	)
	if tm := metricsprom.NewTaskMetrics(); tm != nil {
		poolMetrics = tm
		maintMetrics = tm
	}

	// Catalog store. Opening migrates the schema: sqlite auto-migrates,
	// postgres applies the embedded versioned migrations under an
	// advisory lock.
	catalog, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer func() {
		if err := catalog.Close(); err != nil {
			logger.Error("catalog close error", "error", err)
		}
	}()
	logger.Info("Catalog ready", "type", cfg.Database.Type)

	// Blob backends, instrumented and traced per call.
	backends, err := config.InitializeBackends(ctx, cfg, func(name string, b storage.Backend) storage.Backend {
		return telemetry.TraceBackend(name, metrics.InstrumentBackend(name, b, storageMetrics))
	})
	if err != nil {
		return fmt.Errorf("failed to initialize storage backends: %w", err)
	}
	defer func() {
		if err := backends.Close(); err != nil {
			logger.Error("backends close error", "error", err)
		}
	}()

	// Durable task queue.
	queue, err := tasks.OpenQueue(cfg.Queue.QueueConfig)
	if err != nil {
		return fmt.Errorf("failed to open task queue: %w", err)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Error("queue close error", "error", err)
		}
	}()

	// Domain signal hub; logging and metrics subscribe to object traffic
	// events.
	hub := signals.NewHub()
	hub.On(signals.FileDownloaded, func(e signals.Event) {
		logger.Debug("object downloaded", "bucket", e.Bucket, "key", e.Key, "version", e.VersionID, "bytes", e.Size)
	})
	hub.On(signals.FileDeleted, func(e signals.Event) {
		logger.Debug("object deleted", "bucket", e.Bucket, "key", e.Key, "version", e.VersionID)
	})
	metricsprom.ObserveSignals(hub)
	metricsprom.RegisterQueueDepthCollector(queue)
	metricsprom.RegisterCapacityCollector(backends, catalog.ListLocations)

	eng, err := engine.New(engine.Services{
		Store:    catalog,
		Backends: backends,
		Queue:    queue,
		Oracle:   cfg.CreateOracle(),
		Signals:  hub,
	}, cfg.EngineConfig())
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	// Background maintenance: worker pool plus recurring sweeps.
	maint := tasks.NewMaintenance(catalog, backends, queue, cfg.MaintenanceConfig(), maintMetrics)
	pool := tasks.NewPool(queue, cfg.Queue.PoolConfig, poolMetrics)
	maint.Register(pool)
	scheduler := tasks.NewScheduler(queue)
	maint.Schedule(scheduler)

	pool.Start(ctx)
	defer pool.Stop(cfg.ShutdownTimeout)
	scheduler.Start()
	defer scheduler.Stop()
	logger.Info("Maintenance running", "workers", cfg.Queue.Workers, "fixity", cfg.Fixity.IsEnabled())

	// Authentication. Disabled means anonymous access with an allow-all
	// oracle; the API then drops its /auth routes.
	var (
		users      *auth.Users
		jwtService *auth.JWTService
	)
	if cfg.Auth.Enabled {
		users, err = cfg.CreateUsers()
		if err != nil {
			return fmt.Errorf("failed to load users: %w", err)
		}
		jwtService, err = cfg.CreateJWTService()
		if err != nil {
			return fmt.Errorf("failed to create token service: %w", err)
		}
		logger.Info("Authentication enabled", "users", users.Len(), "hidden", cfg.Auth.HideDenied())
	} else {
		logger.Info("Authentication disabled, anonymous access")
	}

	// Metrics endpoint: own listener when a port is configured, mounted
	// on the API router otherwise.
	var metricsHandler http.Handler
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port > 0 {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			metricsServer = &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				logger.Info("Metrics server listening", "addr", metricsServer.Addr)
				if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("Metrics server error", "error", err)
				}
			}()
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := metricsServer.Shutdown(shutdownCtx); err != nil {
					logger.Error("Metrics server shutdown error", "error", err)
				}
			}()
		} else {
			metricsHandler = metrics.Handler()
		}
	}

	// Write PID file if specified
	if startPidFile != "" {
		if err := os.WriteFile(startPidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(startPidFile) }()
	}

	// API server. A disabled server leaves a worker-only node: the pool
	// and scheduler keep draining the queue.
	serverDone := make(chan error, 1)
	if cfg.Server.IsEnabled() {
		server := api.NewServer(cfg.Server, api.Options{
			Engine:         eng,
			Users:          users,
			JWTService:     jwtService,
			HideDenied:     cfg.Auth.HideDenied(),
			Restricted:     cfg.Auth.Enabled,
			Version:        Version,
			HTTPMetrics:    httpMetrics,
			MetricsHandler: metricsHandler,
		})
		go func() {
			serverDone <- server.Start(ctx)
		}()
	} else {
		logger.Info("API server disabled, running maintenance only")
		go func() {
			<-ctx.Done()
			serverDone <- nil
		}()
	}

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		// Wait for server to shut down gracefully
		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}
