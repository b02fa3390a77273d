// Package object defines blob storage for namespace content.
//
// A Store persists opaque blobs addressed by (namespace, path). The
// per-namespace subtree mirrors the metadata tree verbatim, preserving
// original path casing. Two implementations exist: a local filesystem
// store and an S3 store that treats key prefixes as directories.
package object

import (
	"context"
	"io"
	"time"

	"github.com/driftbox/driftbox/pkg/vpath"
)

// DirEntry describes one child of a directory.
type DirEntry struct {
	// Name is the entry's final path segment.
	Name string

	// Path is the entry's full path within the namespace.
	Path vpath.Path

	// Size is the blob size in bytes; zero for directories.
	Size int64

	// ModTime is the last modification time reported by the backend.
	ModTime time.Time

	// IsDir reports whether the entry is a directory.
	IsDir bool
}

// SaveResult reports the outcome of a Save.
type SaveResult struct {
	// Size is the number of bytes stored.
	Size int64
}

// IterFunc receives directory entries one at a time. Returning an error
// stops the iteration and propagates the error to the caller; this is the
// cancellation point for long listings.
type IterFunc func(DirEntry) error

// Store is the blob storage contract.
//
// Failure modes are reported through the domain error taxonomy: missing
// blobs as NotFound, non-directories in directory operations as
// NotADirectory; all other failures as Internal.
type Store interface {
	// Save stores the content read from r under (ns, path), creating
	// parent directories as needed, and reports the stored size.
	Save(ctx context.Context, ns string, path vpath.Path, r io.Reader) (SaveResult, error)

	// Download opens the blob at (ns, path) for reading.
	Download(ctx context.Context, ns string, path vpath.Path) (io.ReadCloser, error)

	// DownloadDir streams a zip archive of the directory at (ns, path).
	// Entries inside the archive are named relative to path.
	DownloadDir(ctx context.Context, ns string, path vpath.Path) (io.ReadCloser, error)

	// Move relocates a single blob, replacing any existing destination.
	Move(ctx context.Context, fromNS string, from vpath.Path, toNS string, to vpath.Path) error

	// MoveDir relocates a directory subtree.
	MoveDir(ctx context.Context, fromNS string, from vpath.Path, toNS string, to vpath.Path) error

	// Delete removes a single blob.
	Delete(ctx context.Context, ns string, path vpath.Path) error

	// DeleteDir removes a directory subtree recursively.
	DeleteDir(ctx context.Context, ns string, path vpath.Path) error

	// EmptyDir removes every child of the directory, keeping the
	// directory itself.
	EmptyDir(ctx context.Context, ns string, path vpath.Path) error

	// MakeDirs creates the directory at (ns, path) and any missing
	// ancestors. Existing directories are left untouched.
	MakeDirs(ctx context.Context, ns string, path vpath.Path) error

	// Exists reports whether a blob or directory exists at (ns, path).
	Exists(ctx context.Context, ns string, path vpath.Path) (bool, error)

	// IterDir calls fn for every immediate child of the directory.
	IterDir(ctx context.Context, ns string, path vpath.Path, fn IterFunc) error
}
