package commands

import (
	"context"
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
	"github.com/driftbox/driftbox/pkg/mount"
	"github.com/driftbox/driftbox/pkg/namespace"
	"github.com/driftbox/driftbox/pkg/store/metadata"
)

var reindexContents bool

var reindexCmd = &cobra.Command{
	Use:   "reindex <namespace>",
	Short: "Rebuild the metadata index of a namespace from the blob store",
	Long: `Rebuild the metadata rows of a namespace by walking its blobs.

Use this after restoring a blob store from backup or after writing to it
out of band. Rows for missing blobs are removed, unknown blobs get fresh
rows, and folder entries are recreated.

With --contents the content pipeline (hashing, fingerprints, image
descriptors) also re-runs over every file. This downloads each blob and
can take a while on large namespaces.

Examples:
  # Rebuild the metadata index of the "alice" namespace
  driftbox reindex alice

  # Also re-run the content pipeline
  driftbox reindex alice --contents`,
	Args: cobra.ExactArgs(1),
	RunE: runReindex,
}

func init() {
	reindexCmd.Flags().BoolVar(&reindexContents, "contents", false, "Also re-run the content pipeline over every file")
}

func runReindex(cmd *cobra.Command, args []string) error {
	ns := args[0]

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	core := filecore.New(store, objects)
	mounts := mount.NewService(store)
	files := fileservice.New(core, mounts)
	thumbs := thumbnail.NewService(core, cacheStore, cfg.Thumbnails)

	// No scheduler: everything runs inline in this process.
	pipeline := content.NewService(core, thumbs, dedup.NewService(store), contentmeta.NewService(store), nil)
	namespaces := namespace.NewService(files, pipeline, nil, cfg.Namespace)

	fmt.Printf("Reindexing namespace %q...\n", ns)
	if err := namespaces.Reindex(ctx, ns); err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	if reindexContents {
		fmt.Println("Re-running content pipeline...")
		if err := pipeline.ReindexContents(ctx, ns); err != nil {
			return fmt.Errorf("content reindex failed: %w", err)
		}
	}
	fmt.Println("Done.")
	return nil
}
