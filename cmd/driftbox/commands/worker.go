package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/driftbox/driftbox/internal/logger"
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
	"github.com/driftbox/driftbox/pkg/store/metadata"
	"github.com/driftbox/driftbox/pkg/worker"
	"github.com/driftbox/driftbox/pkg/worker/badgerq"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background job worker without the API server",
	Long: `Run only the background job worker.

The worker claims jobs from the durable queue (content processing,
thumbnail generation, deferred blob deletion, batch moves) and executes
them until interrupted. The queue directory is held by a single process
at a time, so use this to drain queued jobs while the server is stopped,
for example after a crash or before a backup.

Examples:
  driftbox worker

  driftbox worker --config /etc/driftbox/config.yaml`,
	RunE: runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
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

	objects, err := config.CreateObjectStore(ctx, cfg.Objects)
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}
	cacheStore, err := config.CreateCache(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}

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

	worker.RegisterCoreJobs(queue, pipeline, namespaces)

	logger.Info("Worker is running. Press Ctrl+C to stop.", "queue", cfg.Worker.Path)
	if err := queue.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Worker stopped gracefully")
	return nil
}
