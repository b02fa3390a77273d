// Package filecore is the transactional heart of the namespace tree: it
// reconciles File rows in the metadata store with blobs in the object
// store. Every mutation runs in a retryable atomic block; aggregate
// folder sizes are maintained explicitly on each mutation so reindex can
// rebuild them from storage ground truth.
package filecore

import (
	"bufio"
	"context"
	"io"

	"github.com/driftbox/driftbox/internal/logger"
	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/mediatype"
	"github.com/driftbox/driftbox/pkg/store/metadata"
	"github.com/driftbox/driftbox/pkg/store/object"
	"github.com/driftbox/driftbox/pkg/vpath"
)

const (
	// createFileAttempts bounds the name-resolution retries of CreateFile
	// when concurrent creates race for the same free name.
	createFileAttempts = 10

	// sniffLen is how many leading bytes feed magic-number detection.
	sniffLen = 3072
)

// Core couples the metadata store with the object store.
type Core struct {
	meta    *metadata.Store
	objects object.Store
}

// New returns a Core over the given stores.
func New(meta *metadata.Store, objects object.Store) *Core {
	return &Core{meta: meta, objects: objects}
}

// Meta exposes the metadata store for collaborating services.
func (c *Core) Meta() *metadata.Store { return c.meta }

// Objects exposes the object store for collaborating services.
func (c *Core) Objects() object.Store { return c.objects }

// CreateFile stores content at (ns, path). The parent folder is created
// when missing; an occupied path is resolved to the next free
// "stem (N).suffix" name. The media type is guessed from the content head
// with an extension fallback.
func (c *Core) CreateFile(ctx context.Context, ns string, path vpath.Path, content io.Reader) (*metadata.File, error) {
	if path.IsRoot() {
		return nil, apperror.MalformedPath("Can't create a file at the namespace root.")
	}

	parent, err := c.ensureFolder(ctx, ns, path.Parent())
	if err != nil {
		return nil, err
	}
	if !parent.VPath().IsRoot() {
		path = parent.VPath().Join(path.Name())
	}

	br := bufio.NewReaderSize(content, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, apperror.Internal("failed to read content head", err)
	}
	mt := mediatype.Guess(path.Name(), head)

	// The blob is uploaded once; when a concurrent create steals the
	// resolved name before our row commits, the blob is renamed to the
	// next free name and the insert retried.
	var blobPath vpath.Path
	var size int64
	uploaded := false

	for attempt := 0; attempt < createFileAttempts; attempt++ {
		resolved, err := c.GetAvailablePath(ctx, ns, path)
		if err != nil {
			return nil, err
		}

		if !uploaded {
			res, err := c.objects.Save(ctx, ns, resolved, br)
			if err != nil {
				return nil, err
			}
			size = res.Size
			blobPath = resolved
			uploaded = true
		} else if !blobPath.EqualStrict(resolved) {
			if err := c.objects.Move(ctx, ns, blobPath, ns, resolved); err != nil {
				return nil, err
			}
			blobPath = resolved
		}

		var file *metadata.File
		err = c.meta.AtomicN(ctx, createFileAttempts, func(ctx context.Context) error {
			f, err := c.meta.Files.Save(ctx, &metadata.File{
				NSPath:    ns,
				Path:      resolved.String(),
				Size:      size,
				MediaType: mt,
			})
			if err != nil {
				return err
			}
			file = f
			return c.meta.Files.IncrSizeBatch(ctx, ns, resolved.Parents(), size)
		})
		if apperror.IsCode(err, apperror.CodeAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		logger.DebugCtx(ctx, "file created",
			"namespace", ns, "path", file.Path, "size", file.Size, "media_type", file.MediaType)
		return file, nil
	}
	return nil, apperror.AlreadyExists(path.String())
}

// CreateFolder creates the folder at (ns, path) along with any missing
// ancestors, adopting the casing of the deepest existing prefix for the
// created segments. Creating an existing folder fails with AlreadyExists.
func (c *Core) CreateFolder(ctx context.Context, ns string, path vpath.Path) (*metadata.File, error) {
	if path.IsRoot() {
		return nil, apperror.AlreadyExists(path.String())
	}

	// Deepest first: the requested path, then its ancestors up to root.
	chain := append([]vpath.Path{path}, path.Parents()...)
	anchorIdx := len(chain)
	var anchor *metadata.File
	for i, p := range chain {
		row, err := c.meta.Files.GetByPath(ctx, ns, p)
		if apperror.IsCode(err, apperror.CodeNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		anchorIdx = i
		anchor = row
		break
	}

	if anchorIdx == 0 {
		return nil, apperror.AlreadyExists(anchor.Path)
	}
	if anchor != nil && !anchor.IsFolder() {
		return nil, apperror.NotADirectory(anchor.Path)
	}

	resolved := path
	if anchor != nil && !anchor.VPath().IsRoot() {
		resolved = path.WithRestoredCasing(anchor.VPath())
	}

	if err := c.objects.MakeDirs(ctx, ns, resolved); err != nil {
		return nil, err
	}

	// Shallowest first so parent containment holds row by row.
	rows := make([]*metadata.File, 0, anchorIdx)
	for i := anchorIdx - 1; i >= 0; i-- {
		p := chain[i]
		if anchor != nil && !anchor.VPath().IsRoot() {
			p = p.WithRestoredCasing(anchor.VPath())
		}
		rows = append(rows, &metadata.File{
			NSPath:    ns,
			Path:      p.String(),
			MediaType: mediatype.Folder,
		})
	}
	if err := c.meta.Files.SaveBatch(ctx, rows); err != nil {
		return nil, err
	}
	return c.meta.Files.GetByPath(ctx, ns, resolved)
}

// ensureFolder returns the folder row at (ns, path), creating the folder
// when missing and tolerating a concurrent create.
func (c *Core) ensureFolder(ctx context.Context, ns string, path vpath.Path) (*metadata.File, error) {
	row, err := c.meta.Files.GetByPath(ctx, ns, path)
	if err == nil {
		if !row.IsFolder() {
			return nil, apperror.NotADirectory(row.Path)
		}
		return row, nil
	}
	if !apperror.IsCode(err, apperror.CodeNotFound) {
		return nil, err
	}

	if path.IsRoot() {
		_, err := c.meta.Files.Save(ctx, &metadata.File{
			NSPath:    ns,
			Path:      vpath.Root,
			MediaType: mediatype.Folder,
		})
		if err != nil && !apperror.IsCode(err, apperror.CodeAlreadyExists) {
			return nil, err
		}
	} else {
		_, err := c.CreateFolder(ctx, ns, path)
		if err != nil && !apperror.IsCode(err, apperror.CodeAlreadyExists) {
			return nil, err
		}
	}
	return c.meta.Files.GetByPath(ctx, ns, path)
}
