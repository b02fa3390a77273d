// Package fileservice is the mount-aware facade over the file core: it
// resolves display paths through mount points, checks the crossing
// mount's permissions, delegates to the core at the real location, and
// rewrites results back into the caller's namespace view.
package fileservice

import (
	"context"
	"io"
	"sort"
	"strings"

	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/filecore"
	"github.com/driftbox/driftbox/pkg/mount"
	"github.com/driftbox/driftbox/pkg/store/metadata"
	"github.com/driftbox/driftbox/pkg/vpath"
)

// File is a file as seen from a namespace. MountPoint is nil for regular
// entries and set for entries reached through (or representing) a mount;
// the embedded row then carries display coordinates, not real ones.
type File struct {
	metadata.File
	MountPoint *metadata.MountPoint `json:"mount_point,omitempty"`
}

// IsMounted reports whether the entry crosses a mount.
func (f *File) IsMounted() bool { return f.MountPoint != nil }

// Service wires the core with mount resolution.
type Service struct {
	core   *filecore.Core
	mounts *mount.Service
}

// New returns a Service over the core and the mount service.
func New(core *filecore.Core, mounts *mount.Service) *Service {
	return &Service{core: core, mounts: mounts}
}

// Core exposes the underlying file core.
func (s *Service) Core() *filecore.Core { return s.core }

// Mounts exposes the underlying mount service.
func (s *Service) Mounts() *mount.Service { return s.mounts }

// displayOf maps a real path inside fq's mount back to its display path.
func displayOf(fq mount.FQ, real vpath.Path) vpath.Path {
	base := fq.Mount.DisplayPath()
	if rel := real.RelativeTo(fq.Mount.Source()); rel != "" {
		base = base.Join(rel)
	}
	return base
}

// asView rewrites a core row into the caller's namespace view.
func asView(fq mount.FQ, ns string, row *metadata.File) File {
	if fq.Mount == nil {
		return File{File: *row}
	}
	view := *row
	view.NSPath = ns
	view.Path = displayOf(fq, row.VPath()).String()
	view.Normalize()
	return File{File: view, MountPoint: fq.Mount}
}

func (s *Service) resolve(ctx context.Context, ns string, path vpath.Path) (mount.FQ, error) {
	return s.mounts.Resolver().ResolvePath(ctx, ns, path)
}

// GetAtPath returns the entry at (ns, path), crossing mounts.
func (s *Service) GetAtPath(ctx context.Context, ns string, path vpath.Path) (*File, error) {
	fq, err := s.resolve(ctx, ns, path)
	if err != nil {
		return nil, err
	}
	if fq.Mount != nil && !fq.Mount.CanView() {
		return nil, apperror.ActionNotAllowed("Missing view permission.")
	}
	row, err := s.core.GetAtPath(ctx, fq.NSPath, fq.Path)
	if err != nil {
		return nil, err
	}
	view := asView(fq, ns, row)
	return &view, nil
}

// GetByID returns the entry with the given ID in its owning namespace.
func (s *Service) GetByID(ctx context.Context, id string) (*File, error) {
	row, err := s.core.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &File{File: *row}, nil
}

// ListFolder lists the folder at (ns, path): real children, rewritten to
// display coordinates when the folder lives behind a mount, interleaved
// with the mount points anchored at the folder. Folders sort first, then
// names ascending case-insensitively.
func (s *Service) ListFolder(ctx context.Context, ns string, path vpath.Path) ([]File, error) {
	fq, err := s.resolve(ctx, ns, path)
	if err != nil {
		return nil, err
	}
	if fq.Mount != nil && !fq.Mount.CanView() {
		return nil, apperror.ActionNotAllowed("Missing view permission.")
	}

	children, err := s.core.ListFolder(ctx, fq.NSPath, fq.Path)
	if err != nil {
		return nil, err
	}
	out := make([]File, 0, len(children))
	for i := range children {
		out = append(out, asView(fq, ns, &children[i]))
	}

	entries, mounts, err := s.mounts.EntriesInFolder(ctx, ns, path)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		out = append(out, File{File: entries[i], MountPoint: &mounts[i]})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsFolder() != out[j].IsFolder() {
			return out[i].IsFolder()
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// CreateFile stores content at (ns, path), crossing mounts with upload
// permission.
func (s *Service) CreateFile(ctx context.Context, ns string, path vpath.Path, content io.Reader) (*File, error) {
	fq, err := s.resolve(ctx, ns, path)
	if err != nil {
		return nil, err
	}
	if fq.Mount != nil && !fq.Mount.CanUpload() {
		return nil, apperror.ActionNotAllowed("Missing upload permission.")
	}
	row, err := s.core.CreateFile(ctx, fq.NSPath, fq.Path, content)
	if err != nil {
		return nil, err
	}
	view := asView(fq, ns, row)
	return &view, nil
}

// CreateFolder creates a folder at (ns, path), crossing mounts with
// upload permission.
func (s *Service) CreateFolder(ctx context.Context, ns string, path vpath.Path) (*File, error) {
	fq, err := s.resolve(ctx, ns, path)
	if err != nil {
		return nil, err
	}
	if fq.Mount != nil && !fq.Mount.CanUpload() {
		return nil, apperror.ActionNotAllowed("Missing upload permission.")
	}
	row, err := s.core.CreateFolder(ctx, fq.NSPath, fq.Path)
	if err != nil {
		return nil, err
	}
	view := asView(fq, ns, row)
	return &view, nil
}

// Move relocates (ns, from) to (ns, to), either side possibly behind a
// mount with move permission.
func (s *Service) Move(ctx context.Context, ns string, from, to vpath.Path) (*File, error) {
	fqFrom, err := s.resolve(ctx, ns, from)
	if err != nil {
		return nil, err
	}
	fqTo, err := s.resolve(ctx, ns, to)
	if err != nil {
		return nil, err
	}
	if fqFrom.Mount != nil && !fqFrom.Mount.CanMove() {
		return nil, apperror.ActionNotAllowed("Missing move permission.")
	}
	if fqTo.Mount != nil && !fqTo.Mount.CanUpload() {
		return nil, apperror.ActionNotAllowed("Missing upload permission.")
	}
	row, err := s.core.Move(ctx, fqFrom.NSPath, fqFrom.Path, fqTo.NSPath, fqTo.Path)
	if err != nil {
		return nil, err
	}
	view := asView(fqTo, ns, row)
	return &view, nil
}

// Delete removes the entry at (ns, path), crossing mounts with delete
// permission.
func (s *Service) Delete(ctx context.Context, ns string, path vpath.Path) (*File, error) {
	fq, err := s.resolve(ctx, ns, path)
	if err != nil {
		return nil, err
	}
	if fq.Mount != nil && !fq.Mount.CanDelete() {
		return nil, apperror.ActionNotAllowed("Missing delete permission.")
	}
	row, err := s.core.Delete(ctx, fq.NSPath, fq.Path)
	if err != nil {
		return nil, err
	}
	view := asView(fq, ns, row)
	return &view, nil
}

// DeleteBatch removes several entries with deferred blob purge; every
// entry behind a mount needs delete permission.
func (s *Service) DeleteBatch(ctx context.Context, ns string, paths []vpath.Path) ([]File, []string, error) {
	// Group the real paths per namespace; each group deletes as a batch.
	byNS := map[string][]vpath.Path{}
	views := map[string]mount.FQ{}
	for _, p := range paths {
		fq, err := s.resolve(ctx, ns, p)
		if err != nil {
			return nil, nil, err
		}
		if fq.Mount != nil && !fq.Mount.CanDelete() {
			return nil, nil, apperror.ActionNotAllowed("Missing delete permission.")
		}
		byNS[fq.NSPath] = append(byNS[fq.NSPath], fq.Path)
		views[fq.NSPath+"\x00"+fq.Path.Key()] = fq
	}

	var out []File
	var pendingIDs []string
	for realNS, realPaths := range byNS {
		files, ids, err := s.core.DeleteBatch(ctx, realNS, realPaths)
		if err != nil {
			return nil, nil, err
		}
		for i := range files {
			fq := views[realNS+"\x00"+files[i].VPath().Key()]
			out = append(out, asView(fq, ns, &files[i]))
		}
		pendingIDs = append(pendingIDs, ids...)
	}
	return out, pendingIDs, nil
}

// EmptyFolder deletes the contents of the folder at (ns, path).
func (s *Service) EmptyFolder(ctx context.Context, ns string, path vpath.Path) error {
	fq, err := s.resolve(ctx, ns, path)
	if err != nil {
		return err
	}
	if fq.Mount != nil && !fq.Mount.CanDelete() {
		return apperror.ActionNotAllowed("Missing delete permission.")
	}
	return s.core.EmptyFolder(ctx, fq.NSPath, fq.Path)
}

// Download opens the content at (ns, path), crossing mounts with
// download permission. Folders stream as zip archives.
func (s *Service) Download(ctx context.Context, ns string, path vpath.Path) (io.ReadCloser, *File, error) {
	fq, err := s.resolve(ctx, ns, path)
	if err != nil {
		return nil, nil, err
	}
	if fq.Mount != nil && !fq.Mount.CanDownload() {
		return nil, nil, apperror.ActionNotAllowed("Missing download permission.")
	}
	rc, row, err := s.core.Download(ctx, fq.NSPath, fq.Path)
	if err != nil {
		return nil, nil, err
	}
	view := asView(fq, ns, row)
	return rc, &view, nil
}

// Mount exposes the subtree at (ns, path) inside another namespace. The
// source location is resolved first so re-sharing a mounted subtree
// points at the real owner, and resharing requires that permission on the
// crossed mount.
func (s *Service) Mount(ctx context.Context, ns string, path vpath.Path, folder mount.Location, displayName, permissions string) (*metadata.MountPoint, error) {
	fq, err := s.resolve(ctx, ns, path)
	if err != nil {
		return nil, err
	}
	if fq.Mount != nil && !fq.Mount.CanReshare() {
		return nil, apperror.ActionNotAllowed("Missing reshare permission.")
	}
	return s.mounts.Create(ctx,
		mount.Location{NSPath: fq.NSPath, Path: fq.Path},
		folder, displayName, permissions)
}
