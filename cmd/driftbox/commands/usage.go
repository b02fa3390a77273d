package commands

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/driftbox/driftbox/internal/logger"
	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/config"
	"github.com/driftbox/driftbox/pkg/store/metadata"
	"github.com/driftbox/driftbox/pkg/vpath"
)

var usageCmd = &cobra.Command{
	Use:   "usage <namespace>",
	Short: "Show storage usage of a namespace",
	Long: `Show how much storage a namespace uses, how many entries it holds,
and the owner's quota when one is set.

Examples:
  driftbox usage alice`,
	Args: cobra.ExactArgs(1),
	RunE: runUsage,
}

func runUsage(cmd *cobra.Command, args []string) error {
	ns := args[0]

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx := context.Background()

	store, err := metadata.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize metadata store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("metadata store close error", "error", err)
		}
	}()

	nsRow, err := store.Namespaces.GetByPath(ctx, ns)
	if err != nil {
		return err
	}

	used := int64(0)
	root, err := store.Files.GetByPath(ctx, ns, vpath.New("."))
	if err == nil {
		used = root.Size
	} else if !apperror.IsCode(err, apperror.CodeNotFound) {
		return err
	}

	count, err := store.Files.CountFiles(ctx, ns)
	if err != nil {
		return err
	}

	fmt.Printf("Namespace: %s\n", ns)
	fmt.Printf("  entries: %s\n", humanize.Comma(count))
	fmt.Printf("  used:    %s\n", humanize.IBytes(uint64(used)))

	account, err := store.Accounts.GetByUserID(ctx, nsRow.OwnerID)
	switch {
	case apperror.IsCode(err, apperror.CodeNotFound):
		fmt.Println("  quota:   unlimited")
	case err != nil:
		return err
	case account.StorageQuota == nil:
		fmt.Println("  quota:   unlimited")
	default:
		fmt.Printf("  quota:   %s\n", humanize.IBytes(uint64(*account.StorageQuota)))
	}

	return nil
}
