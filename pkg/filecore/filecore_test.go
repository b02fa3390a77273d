package filecore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/mediatype"
	"github.com/driftbox/driftbox/pkg/store/metadata"
	"github.com/driftbox/driftbox/pkg/store/object/local"
	"github.com/driftbox/driftbox/pkg/vpath"
)

func newTestCore(t *testing.T) *Core {
	t.Helper()
	meta, err := metadata.New(&metadata.Config{
		Type:   metadata.DatabaseTypeSQLite,
		SQLite: metadata.SQLiteConfig{Path: ":memory:"},
	})
	if err != nil {
		t.Fatalf("failed to open metadata store: %v", err)
	}
	t.Cleanup(func() { _ = meta.Close() })

	objects, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create object store: %v", err)
	}
	return New(meta, objects)
}

func createFile(t *testing.T, c *Core, ns, path, content string) *metadata.File {
	t.Helper()
	f, err := c.CreateFile(context.Background(), ns, vpath.New(path), strings.NewReader(content))
	if err != nil {
		t.Fatalf("CreateFile(%s): %v", path, err)
	}
	return f
}

func sizeAt(t *testing.T, c *Core, ns, path string) int64 {
	t.Helper()
	f, err := c.GetAtPath(context.Background(), ns, vpath.New(path))
	if err != nil {
		t.Fatalf("GetAtPath(%s): %v", path, err)
	}
	return f.Size
}

func TestCreateFileCreatesAncestors(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	f := createFile(t, c, "u", "a/b/f.txt", "Dummy file")
	if f.Size != 10 {
		t.Errorf("size = %d, want 10", f.Size)
	}
	if f.MediaType != "text/plain" {
		t.Errorf("media type = %q", f.MediaType)
	}

	for _, p := range []string{"a", "a/b"} {
		row, err := c.GetAtPath(ctx, "u", vpath.New(p))
		if err != nil {
			t.Fatalf("missing ancestor %s: %v", p, err)
		}
		if !row.IsFolder() {
			t.Errorf("%s is not a folder", p)
		}
		if row.Size != 10 {
			t.Errorf("size(%s) = %d, want 10", p, row.Size)
		}
	}
	if got := sizeAt(t, c, "u", "."); got != 10 {
		t.Errorf("root size = %d, want 10", got)
	}

	rc, _, err := c.Download(ctx, "u", vpath.New("A/B/F.TXT"))
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "Dummy file" {
		t.Errorf("downloaded %q", data)
	}
}

func TestCreateFileDuplicateGetsSuffixedName(t *testing.T) {
	c := newTestCore(t)

	first := createFile(t, c, "u", "f.txt", "x")
	second := createFile(t, c, "u", "f.txt", "y")

	if first.Path != "f.txt" {
		t.Errorf("first path = %q", first.Path)
	}
	if second.Path != "f (1).txt" {
		t.Errorf("second path = %q", second.Path)
	}

	third := createFile(t, c, "u", "F.txt", "z")
	if third.Path != "F (2).txt" {
		t.Errorf("third path = %q, suffix probing should be case-insensitive", third.Path)
	}
}

func TestCreateFilePreservesParentCasing(t *testing.T) {
	c := newTestCore(t)

	createFile(t, c, "u", "Photos/one.jpg", "x")
	f := createFile(t, c, "u", "photos/two.jpg", "y")
	if f.Path != "Photos/two.jpg" {
		t.Errorf("path = %q, want parent casing restored", f.Path)
	}
}

func TestCreateFolder(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	f, err := c.CreateFolder(ctx, "u", vpath.New("Docs/Work"))
	if err != nil {
		t.Fatal(err)
	}
	if f.Path != "Docs/Work" || !f.IsFolder() || f.Size != 0 {
		t.Errorf("folder = %+v", f)
	}

	t.Run("existing folder is AlreadyExists and mutates nothing", func(t *testing.T) {
		_, err := c.CreateFolder(ctx, "u", vpath.New("docs/work"))
		if !apperror.IsCode(err, apperror.CodeAlreadyExists) {
			t.Errorf("expected AlreadyExists, got %v", err)
		}
	})

	t.Run("new sibling adopts existing prefix casing", func(t *testing.T) {
		g, err := c.CreateFolder(ctx, "u", vpath.New("docs/Archive"))
		if err != nil {
			t.Fatal(err)
		}
		if g.Path != "Docs/Archive" {
			t.Errorf("path = %q", g.Path)
		}
	})

	t.Run("file in the prefix is NotADirectory", func(t *testing.T) {
		createFile(t, c, "u", "blob.bin", "\x00\x01")
		_, err := c.CreateFolder(ctx, "u", vpath.New("blob.bin/sub"))
		if !apperror.IsCode(err, apperror.CodeNotADirectory) {
			t.Errorf("expected NotADirectory, got %v", err)
		}
	})
}

func TestMoveSubtreeAcrossFolders(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	createFile(t, c, "u", "a/b/f.txt", "ten bytes.")
	createFile(t, c, "u", "a/b/c/x.txt", "ten bytes.")
	createFile(t, c, "u", "a/b/c/y.txt", "ten bytes.")
	createFile(t, c, "u", "a/g/z.txt", "ten bytes.")

	if _, err := c.Move(ctx, "u", vpath.New("a/b/c"), "u", vpath.New("a/g/c")); err != nil {
		t.Fatal(err)
	}

	for path, want := range map[string]int64{".": 40, "a": 40, "a/b": 10, "a/g": 30} {
		if got := sizeAt(t, c, "u", path); got != want {
			t.Errorf("size(%s) = %d, want %d", path, got, want)
		}
	}

	// Descendants follow.
	if _, err := c.GetAtPath(ctx, "u", vpath.New("a/g/c/x.txt")); err != nil {
		t.Errorf("descendant did not move: %v", err)
	}
	if _, err := c.GetAtPath(ctx, "u", vpath.New("a/b/c/x.txt")); !apperror.IsCode(err, apperror.CodeNotFound) {
		t.Errorf("old descendant still present: %v", err)
	}
}

func TestMovePreconditions(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	createFile(t, c, "u", "dir/f.txt", "x")

	t.Run("into own subtree", func(t *testing.T) {
		_, err := c.Move(ctx, "u", vpath.New("dir"), "u", vpath.New("dir/inner"))
		if !apperror.IsCode(err, apperror.CodeMalformedPath) {
			t.Errorf("expected MalformedPath, got %v", err)
		}
	})

	t.Run("missing source", func(t *testing.T) {
		_, err := c.Move(ctx, "u", vpath.New("ghost"), "u", vpath.New("elsewhere"))
		if !apperror.IsCode(err, apperror.CodeNotFound) {
			t.Errorf("expected NotFound, got %v", err)
		}
	})

	t.Run("missing destination parent", func(t *testing.T) {
		_, err := c.Move(ctx, "u", vpath.New("dir/f.txt"), "u", vpath.New("nowhere/f.txt"))
		if !apperror.IsCode(err, apperror.CodeMissingParent) {
			t.Errorf("expected MissingParent, got %v", err)
		}
	})

	t.Run("occupied destination", func(t *testing.T) {
		createFile(t, c, "u", "dir/g.txt", "y")
		_, err := c.Move(ctx, "u", vpath.New("dir/f.txt"), "u", vpath.New("dir/g.txt"))
		if !apperror.IsCode(err, apperror.CodeAlreadyExists) {
			t.Errorf("expected AlreadyExists, got %v", err)
		}
	})

	t.Run("case-only rename is allowed", func(t *testing.T) {
		f, err := c.Move(ctx, "u", vpath.New("dir/f.txt"), "u", vpath.New("dir/F.TXT"))
		if err != nil {
			t.Fatal(err)
		}
		if f.Name != "F.TXT" {
			t.Errorf("name = %q", f.Name)
		}
	})
}

func TestMoveBackRestoresState(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	createFile(t, c, "u", "a/f.txt", "ten bytes.")
	if _, err := c.CreateFolder(ctx, "u", vpath.New("b")); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Move(ctx, "u", vpath.New("a/f.txt"), "u", vpath.New("b/f.txt")); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Move(ctx, "u", vpath.New("b/f.txt"), "u", vpath.New("a/f.txt")); err != nil {
		t.Fatal(err)
	}

	if got := sizeAt(t, c, "u", "a"); got != 10 {
		t.Errorf("size(a) = %d, want 10", got)
	}
	if got := sizeAt(t, c, "u", "b"); got != 0 {
		t.Errorf("size(b) = %d, want 0", got)
	}
	rc, _, err := c.Download(ctx, "u", vpath.New("a/f.txt"))
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "ten bytes." {
		t.Errorf("content = %q", data)
	}
}

func TestDeleteSubtree(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	createFile(t, c, "u", "a/b/f.txt", "Dummy file")
	createFile(t, c, "u", "a/keep.txt", "Dummy file")

	deleted, err := c.Delete(ctx, "u", vpath.New("a/b"))
	if err != nil {
		t.Fatal(err)
	}
	if deleted.Size != 10 {
		t.Errorf("deleted size = %d", deleted.Size)
	}

	if _, err := c.GetAtPath(ctx, "u", vpath.New("a/b/f.txt")); !apperror.IsCode(err, apperror.CodeNotFound) {
		t.Errorf("descendant row survived: %v", err)
	}
	if got := sizeAt(t, c, "u", "a"); got != 10 {
		t.Errorf("size(a) = %d, want 10", got)
	}
	if got := sizeAt(t, c, "u", "."); got != 10 {
		t.Errorf("root size = %d, want 10", got)
	}
	if ok, _ := c.objects.Exists(ctx, "u", vpath.New("a/b")); ok {
		t.Error("blob directory survived")
	}
}

func TestDeleteBatchDefersBlobPurge(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	createFile(t, c, "u", "big/one.txt", "1111111111")
	createFile(t, c, "u", "big/two.txt", "2222222222")
	solo := createFile(t, c, "u", "solo.txt", "3333333333")

	tracker := c.CHashBatch()
	tracker.Submit(solo.ID, strings.NewReader("3333333333"))
	if err := tracker.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	files, pendingIDs, err := c.DeleteBatch(ctx, "u", []vpath.Path{vpath.New("big"), vpath.New("solo.txt")})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || len(pendingIDs) != 2 {
		t.Fatalf("files=%d pending=%d", len(files), len(pendingIDs))
	}

	// Rows gone, root size zeroed, blobs still on disk.
	if got := sizeAt(t, c, "u", "."); got != 0 {
		t.Errorf("root size = %d, want 0", got)
	}
	if ok, _ := c.objects.Exists(ctx, "u", vpath.New("big/one.txt")); !ok {
		t.Error("blob purged before the worker ran")
	}

	removed, err := c.ProcessFilePendingDeletion(ctx, pendingIDs)
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := c.objects.Exists(ctx, "u", vpath.New("big")); ok {
		t.Error("directory blob survived processing")
	}
	var sawSolo bool
	for _, item := range removed {
		if item.Path.Equal(vpath.New("solo.txt")) && item.ContentHash != "" {
			sawSolo = true
		}
	}
	if !sawSolo {
		t.Errorf("removed items = %+v", removed)
	}

	// Re-processing consumed records is a no-op.
	again, err := c.ProcessFilePendingDeletion(ctx, pendingIDs)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Errorf("second run removed %d items", len(again))
	}
}

func TestEmptyFolder(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	createFile(t, c, "u", "a/b/f.txt", "Dummy file")

	if err := c.EmptyFolder(ctx, "u", vpath.New("a")); err != nil {
		t.Fatal(err)
	}
	if got := sizeAt(t, c, "u", "a"); got != 0 {
		t.Errorf("size(a) = %d, want 0", got)
	}
	if got := sizeAt(t, c, "u", "."); got != 0 {
		t.Errorf("root size = %d, want 0", got)
	}
	if ok, _ := c.objects.Exists(ctx, "u", vpath.New("a")); !ok {
		t.Error("folder blob removed by EmptyFolder")
	}

	// Empty again: no-op.
	if err := c.EmptyFolder(ctx, "u", vpath.New("a")); err != nil {
		t.Fatal(err)
	}
}

func TestReindexRebuildsFromStorage(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	createFile(t, c, "u", "tree/sub/a.txt", "12345")
	createFile(t, c, "u", "tree/b.jpg", "1234567890")

	// Corrupt the metadata: drop a descendant row and skew sizes.
	if err := c.meta.Files.Delete(ctx, "u", vpath.New("tree/sub/a.txt")); err != nil {
		t.Fatal(err)
	}

	anchor, err := c.Reindex(ctx, "u", vpath.New("tree"))
	if err != nil {
		t.Fatal(err)
	}
	if anchor.Size != 15 {
		t.Errorf("anchor size = %d, want 15", anchor.Size)
	}

	row, err := c.GetAtPath(ctx, "u", vpath.New("tree/sub/a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if row.MediaType != "text/plain" {
		t.Errorf("media type = %q", row.MediaType)
	}
	if got := sizeAt(t, c, "u", "tree/sub"); got != 5 {
		t.Errorf("size(tree/sub) = %d, want 5", got)
	}
}

func TestReindexOnFileFails(t *testing.T) {
	c := newTestCore(t)
	createFile(t, c, "u", "f.txt", "x")
	_, err := c.Reindex(context.Background(), "u", vpath.New("f.txt"))
	if !apperror.IsCode(err, apperror.CodeNotADirectory) {
		t.Errorf("expected NotADirectory, got %v", err)
	}
}

func TestGetAvailablePathLaw(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	createFile(t, c, "u", "a/f.txt", "x")
	createFile(t, c, "u", "a/f.txt", "x")
	createFile(t, c, "u", "a/f.txt", "x")

	got, err := c.GetAvailablePath(ctx, "u", vpath.New("a/f.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != "a/f (3).txt" {
		t.Errorf("available path = %q, want a/f (3).txt", got)
	}

	free, err := c.GetAvailablePath(ctx, "u", vpath.New("a/other.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if free.String() != "a/other.txt" {
		t.Errorf("free path rewritten to %q", free)
	}
}

func TestCHashTracker(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	f := createFile(t, c, "u", "doc.txt", "hash me")

	tracker := c.CHashBatch()
	tracker.Submit(f.ID, strings.NewReader("hash me"))
	if err := tracker.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	got, err := c.GetByID(ctx, f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ContentHash == "" {
		t.Error("content hash not recorded")
	}

	// Same bytes, same hash.
	other := createFile(t, c, "u", "copy.txt", "hash me")
	tracker = c.CHashBatch()
	tracker.Submit(other.ID, strings.NewReader("hash me"))
	if err := tracker.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	gotOther, _ := c.GetByID(ctx, other.ID)
	if gotOther.ContentHash != got.ContentHash {
		t.Error("identical content produced different hashes")
	}
}

func TestListFolderOrdering(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	createFile(t, c, "u", "d/zz.txt", "x")
	createFile(t, c, "u", "d/Aa.txt", "x")
	if _, err := c.CreateFolder(ctx, "u", vpath.New("d/mid")); err != nil {
		t.Fatal(err)
	}

	children, err := c.ListFolder(ctx, "u", vpath.New("D"))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range children {
		names = append(names, f.Name)
	}
	want := []string{"mid", "Aa.txt", "zz.txt"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("children = %v, want %v", names, want)
		}
	}

	_, err = c.ListFolder(ctx, "u", vpath.New("d/zz.txt"))
	if !apperror.IsCode(err, apperror.CodeNotADirectory) {
		t.Errorf("expected NotADirectory, got %v", err)
	}

	if f := children[1]; f.MediaType != mediatype.GuessUnsafe(f.Name) {
		t.Errorf("media type drifted: %q", f.MediaType)
	}
}
