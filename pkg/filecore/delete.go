package filecore

import (
	"context"

	"github.com/driftbox/driftbox/internal/logger"
	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/mediatype"
	"github.com/driftbox/driftbox/pkg/store/metadata"
	"github.com/driftbox/driftbox/pkg/store/object"
	"github.com/driftbox/driftbox/pkg/vpath"
)

// RemovedItem describes one physically purged entry. ContentHash is empty
// for folder children, whose rows were already gone when the blobs were
// walked.
type RemovedItem struct {
	NSPath      string
	Path        vpath.Path
	ContentHash string
	MediaType   string
}

// Delete removes the entry at (ns, path) and, for folders, its whole
// subtree, decrementing ancestor sizes. The blob is deleted after the
// metadata commit.
func (c *Core) Delete(ctx context.Context, ns string, path vpath.Path) (*metadata.File, error) {
	var file *metadata.File
	err := c.meta.Atomic(ctx, func(ctx context.Context) error {
		f, err := c.meta.Files.GetByPath(ctx, ns, path)
		if err != nil {
			return err
		}
		file = f
		if err := c.meta.Files.Delete(ctx, ns, f.VPath()); err != nil {
			return err
		}
		if f.IsFolder() {
			if err := c.meta.Files.DeleteAllWithPrefix(ctx, ns, f.VPath()); err != nil {
				return err
			}
		}
		return c.meta.Files.IncrSizeBatch(ctx, ns, f.VPath().Parents(), -f.Size)
	})
	if err != nil {
		return nil, err
	}

	if file.IsFolder() {
		err = c.objects.DeleteDir(ctx, ns, file.VPath())
	} else {
		err = c.objects.Delete(ctx, ns, file.VPath())
	}
	if err != nil && !apperror.IsCode(err, apperror.CodeNotFound) {
		return nil, err
	}
	return file, nil
}

// DeleteBatch removes the entries at the given paths from the metadata
// tree and records a FilePendingDeletion per subtree root; the blobs are
// purged later by ProcessFilePendingDeletion so large deletions return
// fast. Returns the deleted roots and the pending record IDs.
func (c *Core) DeleteBatch(ctx context.Context, ns string, paths []vpath.Path) ([]metadata.File, []string, error) {
	var files []metadata.File
	var pendingIDs []string
	err := c.meta.Atomic(ctx, func(ctx context.Context) error {
		rows, err := c.meta.Files.GetByPathBatch(ctx, ns, paths)
		if err != nil {
			return err
		}
		files = rows

		roots := make([]vpath.Path, 0, len(rows))
		var folderPrefixes []metadata.NSPrefix
		pending := make([]*metadata.FilePendingDeletion, 0, len(rows))
		for i := range rows {
			row := &rows[i]
			roots = append(roots, row.VPath())
			if row.IsFolder() {
				folderPrefixes = append(folderPrefixes, metadata.NSPrefix{NSPath: ns, Prefix: row.VPath()})
			}
			if err := c.meta.Files.IncrSizeBatch(ctx, ns, row.VPath().Parents(), -row.Size); err != nil {
				return err
			}
			pending = append(pending, &metadata.FilePendingDeletion{
				NSPath:      ns,
				Path:        row.Path,
				ContentHash: row.ContentHash,
				MediaType:   row.MediaType,
			})
		}
		if err := c.meta.Files.DeleteBatch(ctx, ns, roots); err != nil {
			return err
		}
		if err := c.meta.Files.DeleteAllWithPrefixBatch(ctx, folderPrefixes); err != nil {
			return err
		}
		if err := c.meta.PendingDeletions.SaveBatch(ctx, pending); err != nil {
			return err
		}
		pendingIDs = pendingIDs[:0]
		for _, p := range pending {
			pendingIDs = append(pendingIDs, p.ID)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return files, pendingIDs, nil
}

// EmptyFolder deletes every descendant of the folder at (ns, path) and
// zeroes its size. A folder of size zero is a no-op.
func (c *Core) EmptyFolder(ctx context.Context, ns string, path vpath.Path) error {
	row, err := c.meta.Files.GetByPath(ctx, ns, path)
	if err != nil {
		return err
	}
	if !row.IsFolder() {
		return apperror.NotADirectory(row.Path)
	}
	if row.Size == 0 {
		return nil
	}

	err = c.meta.Atomic(ctx, func(ctx context.Context) error {
		if err := c.meta.Files.DeleteAllWithPrefix(ctx, ns, row.VPath()); err != nil {
			return err
		}
		if err := c.meta.Files.IncrSizeBatch(ctx, ns, row.VPath().Parents(), -row.Size); err != nil {
			return err
		}
		row.Size = 0
		return c.meta.Files.Update(ctx, row)
	})
	if err != nil {
		return err
	}
	return c.objects.EmptyDir(ctx, ns, row.VPath())
}

// ProcessFilePendingDeletion consumes pending-deletion records: every
// blob named by a record is deleted (directories recursively), and the
// returned items describe everything physically removed so the caller can
// clean up orphan thumbnails by content hash. Consumed and already-gone
// records are skipped, making the operation idempotent under retry.
func (c *Core) ProcessFilePendingDeletion(ctx context.Context, ids []string) ([]RemovedItem, error) {
	var removed []RemovedItem
	for _, id := range ids {
		rec, err := c.meta.PendingDeletions.GetByID(ctx, id)
		if apperror.IsCode(err, apperror.CodeNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		path := vpath.New(rec.Path)
		if mediatype.IsFolder(rec.MediaType) {
			children, err := c.collectDescendants(ctx, rec.NSPath, path)
			if err != nil && !apperror.IsCode(err, apperror.CodeNotFound) {
				return nil, err
			}
			removed = append(removed, children...)
			if err := c.objects.DeleteDir(ctx, rec.NSPath, path); err != nil &&
				!apperror.IsCode(err, apperror.CodeNotFound) {
				return nil, err
			}
		} else {
			if err := c.objects.Delete(ctx, rec.NSPath, path); err != nil &&
				!apperror.IsCode(err, apperror.CodeNotFound) {
				return nil, err
			}
		}
		removed = append(removed, RemovedItem{
			NSPath:      rec.NSPath,
			Path:        path,
			ContentHash: rec.ContentHash,
			MediaType:   rec.MediaType,
		})

		if err := c.meta.PendingDeletions.Delete(ctx, id); err != nil {
			return nil, err
		}
		logger.DebugCtx(ctx, "pending deletion purged",
			"namespace", rec.NSPath, "path", rec.Path)
	}
	return removed, nil
}

// collectDescendants lists every entry under dir in the object store,
// recursively. Media types come from the extension only.
func (c *Core) collectDescendants(ctx context.Context, ns string, dir vpath.Path) ([]RemovedItem, error) {
	var items []RemovedItem
	var subdirs []vpath.Path
	err := c.objects.IterDir(ctx, ns, dir, func(e object.DirEntry) error {
		if e.IsDir {
			subdirs = append(subdirs, e.Path)
			items = append(items, RemovedItem{NSPath: ns, Path: e.Path, MediaType: mediatype.Folder})
			return nil
		}
		items = append(items, RemovedItem{
			NSPath:    ns,
			Path:      e.Path,
			MediaType: mediatype.GuessUnsafe(e.Name),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, sub := range subdirs {
		children, err := c.collectDescendants(ctx, ns, sub)
		if err != nil {
			return nil, err
		}
		items = append(items, children...)
	}
	return items, nil
}
