// Package local implements the object store on the local filesystem.
//
// Blobs live under root/<namespace>/<path> with the metadata tree's
// original casing. Used for development, tests and single-node setups.
package local

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/store/object"
	"github.com/driftbox/driftbox/pkg/vpath"
)

// LocalStore stores blobs on the local filesystem.
type LocalStore struct {
	root string
}

// New creates a local store rooted at root, creating it if missing.
func New(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperror.Internal("failed to create object store root", err)
	}
	return &LocalStore{root: root}, nil
}

// fullPath maps (ns, path) to the on-disk location.
func (s *LocalStore) fullPath(ns string, path vpath.Path) string {
	if path.IsRoot() {
		return filepath.Join(s.root, ns)
	}
	return filepath.Join(s.root, ns, filepath.FromSlash(path.String()))
}

func mapOSError(err error, path string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return apperror.NotFound(path)
	case errors.Is(err, syscall.ENOTDIR):
		return apperror.NotADirectory(path)
	default:
		return apperror.Internal("object store failure", err)
	}
}

// Save writes the content to disk, creating parent directories.
func (s *LocalStore) Save(ctx context.Context, ns string, path vpath.Path, r io.Reader) (object.SaveResult, error) {
	dst := s.fullPath(ns, path)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return object.SaveResult{}, apperror.Internal("failed to create parent directory", err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return object.SaveResult{}, mapOSError(err, path.String())
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return object.SaveResult{}, apperror.Internal("failed to write blob", err)
	}
	return object.SaveResult{Size: n}, nil
}

// Download opens the blob for reading.
func (s *LocalStore) Download(ctx context.Context, ns string, path vpath.Path) (io.ReadCloser, error) {
	f, err := os.Open(s.fullPath(ns, path))
	if err != nil {
		return nil, mapOSError(err, path.String())
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, apperror.Internal("failed to stat blob", err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, apperror.IsADirectory(path.String())
	}
	return f, nil
}

// DownloadDir streams a zip of the directory through a pipe so the
// consumer can cancel by closing the reader.
func (s *LocalStore) DownloadDir(ctx context.Context, ns string, path vpath.Path) (io.ReadCloser, error) {
	dir := s.fullPath(ns, path)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, mapOSError(err, path.String())
	}
	if !info.IsDir() {
		return nil, apperror.NotADirectory(path.String())
	}

	pr, pw := io.Pipe()
	go func() {
		zw := zip.NewWriter(pw)
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			w, err := zw.Create(filepath.ToSlash(rel))
			if err != nil {
				return err
			}
			f, err := os.Open(p)
			if err != nil {
				return err
			}
			_, err = io.Copy(w, f)
			_ = f.Close()
			return err
		})
		if cerr := zw.Close(); err == nil {
			err = cerr
		}
		_ = pw.CloseWithError(err)
	}()
	return pr, nil
}

// Move renames a single blob, replacing any existing destination.
func (s *LocalStore) Move(ctx context.Context, fromNS string, from vpath.Path, toNS string, to vpath.Path) error {
	src := s.fullPath(fromNS, from)
	dst := s.fullPath(toNS, to)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return apperror.Internal("failed to create parent directory", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return mapOSError(err, from.String())
	}
	return nil
}

// MoveDir renames a directory subtree.
func (s *LocalStore) MoveDir(ctx context.Context, fromNS string, from vpath.Path, toNS string, to vpath.Path) error {
	return s.Move(ctx, fromNS, from, toNS, to)
}

// Delete removes a single blob.
func (s *LocalStore) Delete(ctx context.Context, ns string, path vpath.Path) error {
	p := s.fullPath(ns, path)
	info, err := os.Stat(p)
	if err != nil {
		return mapOSError(err, path.String())
	}
	if info.IsDir() {
		return apperror.IsADirectory(path.String())
	}
	if err := os.Remove(p); err != nil {
		return mapOSError(err, path.String())
	}
	return nil
}

// DeleteDir removes a directory subtree recursively.
func (s *LocalStore) DeleteDir(ctx context.Context, ns string, path vpath.Path) error {
	p := s.fullPath(ns, path)
	if _, err := os.Stat(p); err != nil {
		return mapOSError(err, path.String())
	}
	if err := os.RemoveAll(p); err != nil {
		return apperror.Internal("failed to delete directory", err)
	}
	return nil
}

// EmptyDir removes every child of the directory, keeping the directory.
func (s *LocalStore) EmptyDir(ctx context.Context, ns string, path vpath.Path) error {
	p := s.fullPath(ns, path)
	entries, err := os.ReadDir(p)
	if err != nil {
		return mapOSError(err, path.String())
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(p, e.Name())); err != nil {
			return apperror.Internal("failed to empty directory", err)
		}
	}
	return nil
}

// MakeDirs creates the directory and any missing ancestors.
func (s *LocalStore) MakeDirs(ctx context.Context, ns string, path vpath.Path) error {
	if err := os.MkdirAll(s.fullPath(ns, path), 0o755); err != nil {
		return mapOSError(err, path.String())
	}
	return nil
}

// Exists reports whether a blob or directory exists at (ns, path).
func (s *LocalStore) Exists(ctx context.Context, ns string, path vpath.Path) (bool, error) {
	_, err := os.Stat(s.fullPath(ns, path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, apperror.Internal("failed to stat path", err)
}

// IterDir calls fn for every immediate child, directories first, then
// files, each group sorted by name.
func (s *LocalStore) IterDir(ctx context.Context, ns string, path vpath.Path, fn object.IterFunc) error {
	p := s.fullPath(ns, path)
	info, err := os.Stat(p)
	if err != nil {
		return mapOSError(err, path.String())
	}
	if !info.IsDir() {
		return apperror.NotADirectory(path.String())
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		return mapOSError(err, path.String())
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})
	for _, e := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fi, err := e.Info()
		if err != nil {
			return apperror.Internal("failed to stat entry", err)
		}
		size := fi.Size()
		if e.IsDir() {
			size = 0
		}
		entry := object.DirEntry{
			Name:    e.Name(),
			Path:    path.Join(e.Name()),
			Size:    size,
			ModTime: fi.ModTime(),
			IsDir:   e.IsDir(),
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}
