package config

import (
	"context"
	"fmt"

	"github.com/driftbox/driftbox/pkg/cache"
	"github.com/driftbox/driftbox/pkg/cache/memory"
	cacheredis "github.com/driftbox/driftbox/pkg/cache/redis"
	"github.com/driftbox/driftbox/pkg/store/object"
	"github.com/driftbox/driftbox/pkg/store/object/local"
	objects3 "github.com/driftbox/driftbox/pkg/store/object/s3"
)

// CreateObjectStore creates the configured blob store backend.
func CreateObjectStore(ctx context.Context, cfg ObjectsConfig) (object.Store, error) {
	switch cfg.Type {
	case "local", "":
		store, err := local.New(cfg.Local.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open local object store: %w", err)
		}
		return store, nil
	case "s3":
		client, err := objects3.NewClient(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		return objects3.New(ctx, client, cfg.S3.Bucket, cfg.S3.KeyPrefix)
	default:
		return nil, fmt.Errorf("unknown object store type: %q", cfg.Type)
	}
}

// CreateCache creates the configured cache backend.
func CreateCache(ctx context.Context, cfg CacheConfig) (cache.Cache, error) {
	switch cfg.Type {
	case "memory", "":
		return memory.New(), nil
	case "redis":
		c, err := cacheredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache type: %q", cfg.Type)
	}
}
