package filecore

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/driftbox/driftbox/internal/logger"
	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/mediatype"
	"github.com/driftbox/driftbox/pkg/store/metadata"
	"github.com/driftbox/driftbox/pkg/store/object"
	"github.com/driftbox/driftbox/pkg/vpath"
)

const (
	// reindexChunk is the row count per SaveBatch during reindex.
	reindexChunk = 500

	// reindexWriters bounds the concurrent SaveBatch calls.
	reindexWriters = 4
)

// Reindex rebuilds the metadata subtree at (ns, path) from object-store
// ground truth: descendants are dropped and re-created from a storage
// walk, folder sizes accumulate bottom-up, and the anchor's size is set
// to the walked total. Media types come from the extension only, so
// callers needing accuracy run content reindexing afterwards. Ancestor
// sizes are not re-propagated.
func (c *Core) Reindex(ctx context.Context, ns string, path vpath.Path) (*metadata.File, error) {
	anchor, err := c.meta.Files.GetByPath(ctx, ns, path)
	if err != nil && !apperror.IsCode(err, apperror.CodeNotFound) {
		return nil, err
	}
	if anchor != nil && !anchor.IsFolder() {
		return nil, apperror.NotADirectory(anchor.Path)
	}
	resolved := path
	if anchor != nil {
		resolved = anchor.VPath()
	}

	if err := c.meta.Files.DeleteAllWithPrefix(ctx, ns, resolved); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reindexWriters)
	sink := func(rows []*metadata.File) {
		g.Go(func() error {
			return c.meta.Files.SaveBatch(gctx, rows)
		})
	}

	walker := &reindexWalker{core: c, ns: ns, sink: sink}
	total, err := walker.walk(gctx, resolved)
	if err != nil {
		_ = g.Wait()
		return nil, err
	}
	walker.flush()
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if anchor == nil {
		anchor, err = c.meta.Files.Save(ctx, &metadata.File{
			NSPath:    ns,
			Path:      resolved.String(),
			Size:      total,
			MediaType: mediatype.Folder,
		})
		if err != nil {
			return nil, err
		}
	} else {
		anchor.Size = total
		if err := c.meta.Files.Update(ctx, anchor); err != nil {
			return nil, err
		}
	}

	logger.InfoCtx(ctx, "subtree reindexed",
		"namespace", ns, "path", resolved.String(), "size", total)
	return anchor, nil
}

// reindexWalker batches rows produced by the storage walk and hands full
// chunks to the sink.
type reindexWalker struct {
	core *Core
	ns   string
	sink func([]*metadata.File)
	rows []*metadata.File
}

func (w *reindexWalker) add(f *metadata.File) {
	w.rows = append(w.rows, f)
	if len(w.rows) >= reindexChunk {
		w.flush()
	}
}

func (w *reindexWalker) flush() {
	if len(w.rows) == 0 {
		return
	}
	w.sink(w.rows)
	w.rows = nil
}

// walk recurses into dir and returns the accumulated size of its
// contents. Rows for descendants are emitted as they are discovered; the
// anchor itself is not emitted.
func (w *reindexWalker) walk(ctx context.Context, dir vpath.Path) (int64, error) {
	var total int64
	var subdirs []vpath.Path
	err := w.core.objects.IterDir(ctx, w.ns, dir, func(e object.DirEntry) error {
		if e.IsDir {
			subdirs = append(subdirs, e.Path)
			return nil
		}
		total += e.Size
		w.add(&metadata.File{
			NSPath:     w.ns,
			Path:       e.Path.String(),
			Size:       e.Size,
			MediaType:  mediatype.GuessUnsafe(e.Name),
			ModifiedAt: e.ModTime,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, sub := range subdirs {
		size, err := w.walk(ctx, sub)
		if err != nil {
			return 0, err
		}
		total += size
		w.add(&metadata.File{
			NSPath:    w.ns,
			Path:      sub.String(),
			Size:      size,
			MediaType: mediatype.Folder,
		})
	}
	return total, nil
}
