package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/driftbox/driftbox/internal/logger"
	"github.com/driftbox/driftbox/internal/telemetry"
	"github.com/driftbox/driftbox/pkg/api"
	"github.com/driftbox/driftbox/pkg/config"
	"github.com/driftbox/driftbox/pkg/content"
	"github.com/driftbox/driftbox/pkg/content/dedup"
	contentmeta "github.com/driftbox/driftbox/pkg/content/meta"
	"github.com/driftbox/driftbox/pkg/content/thumbnail"
	"github.com/driftbox/driftbox/pkg/filecore"
	"github.com/driftbox/driftbox/pkg/fileservice"
	"github.com/driftbox/driftbox/pkg/metrics"
	"github.com/driftbox/driftbox/pkg/mount"
	"github.com/driftbox/driftbox/pkg/namespace"
	"github.com/driftbox/driftbox/pkg/sharing"
	"github.com/driftbox/driftbox/pkg/store/metadata"
	"github.com/driftbox/driftbox/pkg/worker"
	"github.com/driftbox/driftbox/pkg/worker/badgerq"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the DriftBox server",
	Long: `Start the DriftBox server with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/driftbox/config.yaml.

Examples:
  # Start with default config
  driftbox serve

  # Start with custom config file
  driftbox serve --config /etc/driftbox/config.yaml

  # Start with environment variable overrides
  DRIFTBOX_LOGGING_LEVEL=DEBUG driftbox serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Cancelled on SIGINT/SIGTERM; everything below shuts down on it.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "driftbox",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics enabled", "endpoint", "/metrics")
	}

	store, err := metadata.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize metadata store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("metadata store close error", "error", err)
		}
	}()
	logger.Info("Metadata store ready", "type", cfg.Database.Type)

	objects, err := config.CreateObjectStore(ctx, cfg.Objects)
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}
	logger.Info("Object store ready", "type", cfg.Objects.Type)

	cacheStore, err := config.CreateCache(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	logger.Info("Cache ready", "type", cfg.Cache.Type)

	queue, err := badgerq.New(cfg.Worker)
	if err != nil {
		return fmt.Errorf("failed to initialize job queue: %w", err)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Error("job queue close error", "error", err)
		}
	}()
	queue.SetMetrics(metrics.NewJobMetrics())

	core := filecore.New(store, objects)
	mounts := mount.NewService(store)
	files := fileservice.New(core, mounts)

	thumbs := thumbnail.NewService(core, cacheStore, cfg.Thumbnails)
	thumbs.SetMetrics(metrics.NewThumbnailMetrics())
	pipeline := content.NewService(core, thumbs, dedup.NewService(store), contentmeta.NewService(store), queue)

	namespaces := namespace.NewService(files, pipeline, queue, cfg.Namespace)
	shares := sharing.NewService(core, mounts)

	worker.RegisterCoreJobs(queue, pipeline, namespaces)

	server := api.NewServer(cfg.API, api.Services{
		Store:      store,
		Namespaces: namespaces,
		Sharing:    shares,
		Content:    pipeline,
		Worker:     queue,
	})
	server.SetShutdownTimeout(cfg.ShutdownTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return queue.Run(gctx) })
	g.Go(func() error { return server.Start(gctx) })

	logger.Info("Server is running. Press Ctrl+C to stop.", "port", server.Port())

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error", "error", err)
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
