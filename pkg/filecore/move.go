package filecore

import (
	"context"
	"time"

	"github.com/driftbox/driftbox/internal/logger"
	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/store/metadata"
	"github.com/driftbox/driftbox/pkg/vpath"
)

// Move relocates the file or folder at (fromNS, from) to (toNS, to).
// The destination adopts its parent's stored casing. A case-only rename
// of the same entry is allowed; moving a folder into its own subtree is
// not. The blob moves before the metadata commits, so a failure between
// the two is repaired by Reindex rather than surfacing as silent
// inconsistency.
func (c *Core) Move(ctx context.Context, fromNS string, from vpath.Path, toNS string, to vpath.Path) (*metadata.File, error) {
	caseOnly := fromNS == toNS && from.Equal(to)
	if fromNS == toNS && to.IsRelativeTo(from) && !caseOnly {
		return nil, apperror.MalformedPath("Can't move to itself.")
	}

	src, err := c.meta.Files.GetByPath(ctx, fromNS, from)
	if err != nil {
		return nil, err
	}
	srcPath := src.VPath()

	resolvedTo := to
	if parent := to.Parent(); !parent.IsRoot() {
		parentRow, err := c.meta.Files.GetByPath(ctx, toNS, parent)
		if apperror.IsCode(err, apperror.CodeNotFound) {
			return nil, apperror.MissingParent(to.String())
		}
		if err != nil {
			return nil, err
		}
		if !parentRow.IsFolder() {
			return nil, apperror.NotADirectory(parentRow.Path)
		}
		resolvedTo = parentRow.VPath().Join(to.Name())
	}

	if !caseOnly {
		taken, err := c.meta.Files.ExistsAtPath(ctx, toNS, resolvedTo)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperror.AlreadyExists(resolvedTo.String())
		}
	}

	if src.IsFolder() {
		err = c.objects.MoveDir(ctx, fromNS, srcPath, toNS, resolvedTo)
	} else {
		err = c.objects.Move(ctx, fromNS, srcPath, toNS, resolvedTo)
	}
	if err != nil {
		return nil, err
	}

	err = c.meta.Atomic(ctx, func(ctx context.Context) error {
		src.NSPath = toNS
		src.Path = resolvedTo.String()
		src.ModifiedAt = time.Now().UTC()
		if err := c.meta.Files.Update(ctx, src); err != nil {
			return err
		}
		if src.IsFolder() {
			if err := c.meta.Files.ReplacePathPrefix(ctx, fromNS, srcPath, toNS, resolvedTo); err != nil {
				return err
			}
		}

		dec, inc := splitParentSets(fromNS, srcPath, toNS, resolvedTo)
		if err := c.meta.Files.IncrSizeBatch(ctx, fromNS, dec, -src.Size); err != nil {
			return err
		}
		return c.meta.Files.IncrSizeBatch(ctx, toNS, inc, src.Size)
	})
	if err != nil {
		return nil, err
	}

	logger.DebugCtx(ctx, "file moved",
		"from_namespace", fromNS, "from", srcPath.String(),
		"to_namespace", toNS, "to", resolvedTo.String())
	return src, nil
}

// splitParentSets returns the ancestors the path leaves and the ancestors
// it joins. Within one namespace, ancestors shared by both sides are
// excluded from both sets so their sizes stay untouched.
func splitParentSets(fromNS string, from vpath.Path, toNS string, to vpath.Path) (dec, inc []vpath.Path) {
	oldParents := from.Parents()
	newParents := to.Parents()
	if fromNS != toNS {
		return oldParents, newParents
	}

	oldKeys := make(map[string]bool, len(oldParents))
	for _, p := range oldParents {
		oldKeys[p.Key()] = true
	}
	newKeys := make(map[string]bool, len(newParents))
	for _, p := range newParents {
		newKeys[p.Key()] = true
	}
	for _, p := range oldParents {
		if !newKeys[p.Key()] {
			dec = append(dec, p)
		}
	}
	for _, p := range newParents {
		if !oldKeys[p.Key()] {
			inc = append(inc, p)
		}
	}
	return dec, inc
}
