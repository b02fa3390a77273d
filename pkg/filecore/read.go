package filecore

import (
	"context"
	"io"

	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/store/metadata"
	"github.com/driftbox/driftbox/pkg/vpath"
)

// GetAtPath returns the row at (ns, path).
func (c *Core) GetAtPath(ctx context.Context, ns string, path vpath.Path) (*metadata.File, error) {
	return c.meta.Files.GetByPath(ctx, ns, path)
}

// GetByID returns the row with the given ID.
func (c *Core) GetByID(ctx context.Context, id string) (*metadata.File, error) {
	return c.meta.Files.GetByID(ctx, id)
}

// GetByIDBatch returns the rows with the given IDs; missing IDs are
// skipped.
func (c *Core) GetByIDBatch(ctx context.Context, ids []string) ([]metadata.File, error) {
	return c.meta.Files.GetByIDBatch(ctx, ids)
}

// ExistsAtPath reports whether a row exists at (ns, path).
func (c *Core) ExistsAtPath(ctx context.Context, ns string, path vpath.Path) (bool, error) {
	return c.meta.Files.ExistsAtPath(ctx, ns, path)
}

// ListFolder returns the direct children of the folder at (ns, path),
// folders first, then names ascending case-insensitively.
func (c *Core) ListFolder(ctx context.Context, ns string, path vpath.Path) ([]metadata.File, error) {
	if !path.IsRoot() {
		row, err := c.meta.Files.GetByPath(ctx, ns, path)
		if err != nil {
			return nil, err
		}
		if !row.IsFolder() {
			return nil, apperror.NotADirectory(row.Path)
		}
		path = row.VPath()
	}
	return c.meta.Files.ListWithPrefix(ctx, ns, path)
}

// Download opens the content at (ns, path): the blob for a regular file,
// a zip stream for a folder.
func (c *Core) Download(ctx context.Context, ns string, path vpath.Path) (io.ReadCloser, *metadata.File, error) {
	file, err := c.meta.Files.GetByPath(ctx, ns, path)
	if err != nil {
		return nil, nil, err
	}
	return c.download(ctx, file)
}

// DownloadByID is Download addressed by file ID.
func (c *Core) DownloadByID(ctx context.Context, id string) (io.ReadCloser, *metadata.File, error) {
	file, err := c.meta.Files.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return c.download(ctx, file)
}

func (c *Core) download(ctx context.Context, file *metadata.File) (io.ReadCloser, *metadata.File, error) {
	var rc io.ReadCloser
	var err error
	if file.IsFolder() {
		rc, err = c.objects.DownloadDir(ctx, file.NSPath, file.VPath())
	} else {
		rc, err = c.objects.Download(ctx, file.NSPath, file.VPath())
	}
	if err != nil {
		return nil, nil, err
	}
	return rc, file, nil
}
