package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for invalid or inconsistent values.
// Struct tags carry the field-level rules; cross-field rules that tags
// cannot express are checked explicitly.
func Validate(cfg *Config) error {
	validate := validator.New()

	if err := validate.Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range errs {
				return fmt.Errorf("invalid value for %s: failed %q constraint", fe.Namespace(), fe.Tag())
			}
		}
		return err
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	switch cfg.Objects.Type {
	case "local":
		if cfg.Objects.Local.Path == "" {
			return fmt.Errorf("objects: local store requires a path")
		}
	case "s3":
		if cfg.Objects.S3.Bucket == "" {
			return fmt.Errorf("objects: s3 store requires a bucket")
		}
	}

	if cfg.Cache.Type == "redis" && cfg.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache: redis requires an address")
	}

	if !cfg.Worker.InMemory && cfg.Worker.Path == "" {
		return fmt.Errorf("worker: a queue path is required")
	}

	return nil
}
