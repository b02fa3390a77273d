package local

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/store/object"
	"github.com/driftbox/driftbox/pkg/vpath"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func save(t *testing.T, s *LocalStore, ns, path, content string) {
	t.Helper()
	res, err := s.Save(context.Background(), ns, vpath.New(path), strings.NewReader(content))
	if err != nil {
		t.Fatalf("Save(%s): %v", path, err)
	}
	if res.Size != int64(len(content)) {
		t.Fatalf("Save(%s) size = %d, want %d", path, res.Size, len(content))
	}
}

func TestSaveDownloadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	save(t, s, "u", "a/b/f.txt", "Dummy file")

	rc, err := s.Download(ctx, "u", vpath.New("a/b/f.txt"))
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "Dummy file" {
		t.Errorf("downloaded %q", data)
	}
}

func TestDownloadMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Download(context.Background(), "u", vpath.New("nope.txt"))
	if !apperror.IsCode(err, apperror.CodeNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestMoveRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	save(t, s, "u", "f.txt", "x")

	if err := s.Move(ctx, "u", vpath.New("f.txt"), "u", vpath.New("g/h.txt")); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists(ctx, "u", vpath.New("f.txt")); ok {
		t.Error("source still exists")
	}
	if err := s.Move(ctx, "u", vpath.New("g/h.txt"), "u", vpath.New("f.txt")); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists(ctx, "u", vpath.New("f.txt")); !ok {
		t.Error("move back failed")
	}
}

func TestMoveAcrossNamespaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	save(t, s, "u", "doc.txt", "x")

	if err := s.Move(ctx, "u", vpath.New("doc.txt"), "v", vpath.New("doc.txt")); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists(ctx, "v", vpath.New("doc.txt")); !ok {
		t.Error("destination missing")
	}
}

func TestDeleteDirAndEmptyDir(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	save(t, s, "u", "a/x.txt", "1")
	save(t, s, "u", "a/b/y.txt", "2")

	t.Run("EmptyDir keeps the folder", func(t *testing.T) {
		if err := s.EmptyDir(ctx, "u", vpath.New("a")); err != nil {
			t.Fatal(err)
		}
		if ok, _ := s.Exists(ctx, "u", vpath.New("a")); !ok {
			t.Error("folder removed by EmptyDir")
		}
		if ok, _ := s.Exists(ctx, "u", vpath.New("a/x.txt")); ok {
			t.Error("child survived EmptyDir")
		}
	})

	t.Run("DeleteDir removes the folder", func(t *testing.T) {
		save(t, s, "u", "a/z.txt", "3")
		if err := s.DeleteDir(ctx, "u", vpath.New("a")); err != nil {
			t.Fatal(err)
		}
		if ok, _ := s.Exists(ctx, "u", vpath.New("a")); ok {
			t.Error("folder still exists")
		}
	})
}

func TestIterDir(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	save(t, s, "u", "dir/file2.txt", "22")
	save(t, s, "u", "dir/file1.txt", "1")
	save(t, s, "u", "dir/sub/leaf.txt", "333")

	var names []string
	var dirs []bool
	err := s.IterDir(ctx, "u", vpath.New("dir"), func(e object.DirEntry) error {
		names = append(names, e.Name)
		dirs = append(dirs, e.IsDir)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"sub", "file1.txt", "file2.txt"}
	if len(names) != len(want) {
		t.Fatalf("got %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
	if !dirs[0] || dirs[1] || dirs[2] {
		t.Errorf("dir flags = %v", dirs)
	}
}

func TestIterDirOnFile(t *testing.T) {
	s := newTestStore(t)
	save(t, s, "u", "f.txt", "x")
	err := s.IterDir(context.Background(), "u", vpath.New("f.txt"), func(object.DirEntry) error { return nil })
	if !apperror.IsCode(err, apperror.CodeNotADirectory) {
		t.Errorf("expected NotADirectory, got %v", err)
	}
}

func TestDownloadDir(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	save(t, s, "u", "docs/a.txt", "alpha")
	save(t, s, "u", "docs/sub/b.txt", "beta")

	rc, err := s.DownloadDir(ctx, "u", vpath.New("docs"))
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		t.Fatal(err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	found := map[string]string{}
	for _, f := range zr.File {
		r, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		b, _ := io.ReadAll(r)
		_ = r.Close()
		found[f.Name] = string(b)
	}
	if found["a.txt"] != "alpha" || found["sub/b.txt"] != "beta" {
		t.Errorf("zip contents = %v", found)
	}
}

func TestMakeDirsAndExists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.MakeDirs(ctx, "u", vpath.New("A/B/C")); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"A", "A/B", "A/B/C"} {
		if ok, _ := s.Exists(ctx, "u", vpath.New(p)); !ok {
			t.Errorf("%s should exist", p)
		}
	}
	if ok, _ := s.Exists(ctx, "u", vpath.New("A/B/D")); ok {
		t.Error("A/B/D should not exist")
	}
}
