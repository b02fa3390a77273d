package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftbox/driftbox/internal/bytesize"
	"github.com/driftbox/driftbox/pkg/store/metadata"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, metadata.DatabaseTypeSQLite, cfg.Database.Type)
	assert.Equal(t, "local", cfg.Objects.Type)
	assert.NotEmpty(t, cfg.Objects.Local.Path)
	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, 10*bytesize.GiB, cfg.API.MaxBodySize)
	assert.NotEmpty(t, cfg.Thumbnails.Sizes)
	assert.NotZero(t, cfg.Namespace.MaxUploadSize)
	assert.NotEmpty(t, cfg.Worker.Path)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
logging:
  level: debug
  format: json
shutdown_timeout: 5s
database:
  type: sqlite
  sqlite:
    path: /tmp/driftbox-test.db
objects:
  type: s3
  s3:
    bucket: drift-test
    region: eu-west-1
api:
  port: 9999
  max_body_size: 512Mi
worker:
  path: /tmp/driftbox-jobs
  poll_interval: 250ms
`)
	require.NoError(t, os.WriteFile(path, content, 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	// Level is normalized to uppercase
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "s3", cfg.Objects.Type)
	assert.Equal(t, "drift-test", cfg.Objects.S3.Bucket)
	assert.Equal(t, "eu-west-1", cfg.Objects.S3.Region)
	assert.Equal(t, 9999, cfg.API.Port)
	assert.Equal(t, 512*bytesize.MiB, cfg.API.MaxBodySize)
	assert.Equal(t, 250*time.Millisecond, cfg.Worker.PollInterval)

	// Unset sections still get defaults
	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.NotEmpty(t, cfg.Thumbnails.Sizes)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "local", cfg.Objects.Type)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "BadLogLevel",
			content: `
logging:
  level: loud
`,
		},
		{
			name: "S3WithoutBucket",
			content: `
objects:
  type: s3
`,
		},
		{
			name: "UnknownObjectStore",
			content: `
objects:
  type: tape
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0600))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Logging.Level = "DEBUG"
	cfg.API.Port = 18080
	cfg.Objects.Local.Path = filepath.Join(dir, "objects")
	require.NoError(t, SaveConfig(cfg, path))

	// Saved with restricted permissions
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", loaded.Logging.Level)
	assert.Equal(t, 18080, loaded.API.Port)
	assert.Equal(t, cfg.Objects.Local.Path, loaded.Objects.Local.Path)
}

func TestMustLoadMissingExplicitFile(t *testing.T) {
	_, err := MustLoad(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "driftbox init")
}
