// Package mount translates display paths to real paths across namespace
// boundaries. A mount point exposes the subtree at source.(ns, path)
// inside another namespace, as a child of a chosen folder under a chosen
// display name; resolution substitutes the source location and rewrites
// the path suffix.
package mount

import (
	"context"

	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/store/metadata"
	"github.com/driftbox/driftbox/pkg/vpath"
)

// Location addresses an entry by namespace and path.
type Location struct {
	NSPath string
	Path   vpath.Path
}

// FQ is a fully qualified location: the real namespace and path of an
// entry, plus the mount point crossed to reach it, if any.
type FQ struct {
	NSPath string
	Path   vpath.Path
	Mount  *metadata.MountPoint
}

// Resolver rewrites paths across mount points.
type Resolver struct {
	meta *metadata.Store
}

// NewResolver returns a Resolver over the metadata store.
func NewResolver(meta *metadata.Store) *Resolver {
	return &Resolver{meta: meta}
}

// ResolvePath returns the true location of (ns, path). When the deepest
// matching mount covers the path, the source namespace is substituted and
// the suffix below the display path is rewritten onto the source path;
// otherwise the location is returned unchanged with a nil mount.
func (r *Resolver) ResolvePath(ctx context.Context, ns string, path vpath.Path) (FQ, error) {
	m, err := r.meta.Mounts.GetClosest(ctx, ns, path)
	if apperror.IsCode(err, apperror.CodeMountNotFound) {
		return FQ{NSPath: ns, Path: path}, nil
	}
	if err != nil {
		return FQ{}, err
	}

	real := m.Source()
	if rel := path.RelativeTo(m.DisplayPath()); rel != "" {
		real = real.Join(rel)
	}
	return FQ{NSPath: m.SourceNSPath, Path: real, Mount: m}, nil
}

// ReversePathBatch maps real source locations back to the display paths
// seen from targetNS. Sources not covered by any mount into targetNS are
// returned unchanged.
func (r *Resolver) ReversePathBatch(ctx context.Context, targetNS string, sources []Location) ([]Location, error) {
	out := make([]Location, len(sources))
	for i, src := range sources {
		m, err := r.meta.Mounts.GetClosestBySource(ctx, src.NSPath, src.Path, targetNS)
		if apperror.IsCode(err, apperror.CodeMountNotFound) {
			out[i] = src
			continue
		}
		if err != nil {
			return nil, err
		}

		display := m.DisplayPath()
		if rel := src.Path.RelativeTo(m.Source()); rel != "" {
			display = display.Join(rel)
		}
		out[i] = Location{NSPath: targetNS, Path: display}
	}
	return out, nil
}
