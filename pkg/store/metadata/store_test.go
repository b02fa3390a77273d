package metadata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/vpath"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(&Config{
		Type:   DatabaseTypeSQLite,
		SQLite: SQLiteConfig{Path: ":memory:"},
	})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustSaveFile(t *testing.T, s *Store, ns, path, mediaType string, size int64) *File {
	t.Helper()
	f, err := s.Files.Save(context.Background(), &File{
		NSPath:    ns,
		Path:      path,
		Size:      size,
		MediaType: mediaType,
	})
	if err != nil {
		t.Fatalf("Save(%s): %v", path, err)
	}
	return f
}

func TestFileSaveAndGetCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved := mustSaveFile(t, s, "u", "Docs/Report.PDF", "application/pdf", 10)
	if saved.ID == "" {
		t.Fatal("expected generated ID")
	}
	if saved.Name != "Report.PDF" {
		t.Errorf("name = %q", saved.Name)
	}

	got, err := s.Files.GetByPath(ctx, "u", vpath.New("docs/report.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	if got.Path != "Docs/Report.PDF" {
		t.Errorf("stored casing lost: %q", got.Path)
	}

	// Conflicting casing is still a duplicate.
	_, err = s.Files.Save(ctx, &File{NSPath: "u", Path: "DOCS/REPORT.pdf", MediaType: "application/pdf"})
	if !apperror.IsCode(err, apperror.CodeAlreadyExists) {
		t.Errorf("expected AlreadyExists, got %v", err)
	}

	// Same path in another namespace is fine.
	mustSaveFile(t, s, "v", "Docs/Report.PDF", "application/pdf", 10)
}

func TestFileSaveBatchSkipsConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustSaveFile(t, s, "u", "a.txt", "text/plain", 1)
	err := s.Files.SaveBatch(ctx, []*File{
		{NSPath: "u", Path: "A.TXT", MediaType: "text/plain"},
		{NSPath: "u", Path: "b.txt", MediaType: "text/plain"},
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Files.GetByPath(ctx, "u", vpath.New("a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if got.Path != "a.txt" {
		t.Errorf("conflict should keep existing row, got %q", got.Path)
	}
	if ok, _ := s.Files.ExistsAtPath(ctx, "u", vpath.New("b.txt")); !ok {
		t.Error("b.txt missing")
	}
}

func TestListWithPrefixOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustSaveFile(t, s, "u", "dir", "application/directory", 0)
	mustSaveFile(t, s, "u", "dir/zeta.txt", "text/plain", 1)
	mustSaveFile(t, s, "u", "dir/Alpha.txt", "text/plain", 1)
	mustSaveFile(t, s, "u", "dir/beta", "application/directory", 0)
	mustSaveFile(t, s, "u", "dir/beta/nested.txt", "text/plain", 1)

	files, err := s.Files.ListWithPrefix(ctx, "u", vpath.New("dir"))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	want := []string{"beta", "Alpha.txt", "zeta.txt"}
	if len(names) != len(want) {
		t.Fatalf("children = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestReplacePathPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustSaveFile(t, s, "u", "Old", "application/directory", 0)
	mustSaveFile(t, s, "u", "Old/Sub", "application/directory", 0)
	mustSaveFile(t, s, "u", "Old/Sub/File.txt", "text/plain", 5)

	err := s.Files.ReplacePathPrefix(ctx, "u", vpath.New("old"), "u", vpath.New("New Home"))
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Files.GetByPath(ctx, "u", vpath.New("new home/sub/file.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if got.Path != "New Home/Sub/File.txt" {
		t.Errorf("descendant casing = %q", got.Path)
	}
}

func TestIncrSizeBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustSaveFile(t, s, "u", "a", "application/directory", 10)
	mustSaveFile(t, s, "u", "a/b", "application/directory", 10)

	paths := []vpath.Path{vpath.New("a"), vpath.New("A/B")}
	if err := s.Files.IncrSizeBatch(ctx, "u", paths, 7); err != nil {
		t.Fatal(err)
	}
	if err := s.Files.IncrSizeBatch(ctx, "u", paths, -2); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Files.GetByPath(ctx, "u", vpath.New("a/b"))
	if got.Size != 15 {
		t.Errorf("size = %d, want 15", got.Size)
	}
}

func TestDeleteAllWithPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustSaveFile(t, s, "u", "keep.txt", "text/plain", 1)
	mustSaveFile(t, s, "u", "Gone", "application/directory", 0)
	mustSaveFile(t, s, "u", "Gone/a.txt", "text/plain", 1)
	mustSaveFile(t, s, "u", "Gone/deep/b.txt", "text/plain", 1)

	if err := s.Files.DeleteAllWithPrefix(ctx, "u", vpath.New("gone")); err != nil {
		t.Fatal(err)
	}

	// The anchor itself stays.
	if ok, _ := s.Files.ExistsAtPath(ctx, "u", vpath.New("gone")); !ok {
		t.Error("anchor removed")
	}
	if ok, _ := s.Files.ExistsAtPath(ctx, "u", vpath.New("gone/a.txt")); ok {
		t.Error("descendant survived")
	}
	if ok, _ := s.Files.ExistsAtPath(ctx, "u", vpath.New("keep.txt")); !ok {
		t.Error("unrelated row removed")
	}
}

func TestMountGetClosestPicksDeepest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Mounts.Save(ctx, &MountPoint{
		SourceNSPath: "alice", SourcePath: "Shared",
		FolderNSPath: "bob", FolderPath: ".", DisplayName: "FromAlice",
	})
	if err != nil {
		t.Fatal(err)
	}
	deeper, err := s.Mounts.Save(ctx, &MountPoint{
		SourceNSPath: "carol", SourcePath: "Pics",
		FolderNSPath: "bob", FolderPath: "FromAlice/Inner", DisplayName: "CarolPics",
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Mounts.GetClosest(ctx, "bob", vpath.New("fromalice/inner/carolpics/x.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != deeper.ID {
		t.Errorf("expected deepest mount, got %s", got.DisplayName)
	}

	_, err = s.Mounts.GetClosest(ctx, "bob", vpath.New("elsewhere/x.jpg"))
	if !apperror.IsCode(err, apperror.CodeMountNotFound) {
		t.Errorf("expected MountNotFound, got %v", err)
	}
}

func TestFingerprintIntersectAllWithPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := mustSaveFile(t, s, "u", "Photos/a.jpg", "image/jpeg", 1)
	out := mustSaveFile(t, s, "u", "Elsewhere/b.jpg", "image/jpeg", 1)

	fpIn := &Fingerprint{FileID: in.ID}
	fpIn.SetValue(0xDEADBEEFCAFE1234)
	if err := s.Fingerprints.Save(ctx, fpIn); err != nil {
		t.Fatal(err)
	}
	fpOut := &Fingerprint{FileID: out.ID}
	fpOut.SetValue(42)
	if err := s.Fingerprints.Save(ctx, fpOut); err != nil {
		t.Fatal(err)
	}

	if err := s.Fingerprints.Save(ctx, fpIn); !apperror.IsCode(err, apperror.CodeFingerprintAlreadyExists) {
		t.Errorf("expected FingerprintAlreadyExists, got %v", err)
	}

	fps, err := s.Fingerprints.IntersectAllWithPrefix(ctx, "u", vpath.New("photos"))
	if err != nil {
		t.Fatal(err)
	}
	if len(fps) != 1 || fps[0].FileID != in.ID {
		t.Fatalf("fingerprints = %+v", fps)
	}
	if fps[0].Value() != 0xDEADBEEFCAFE1234 {
		t.Errorf("value = %x", fps[0].Value())
	}
}

func TestSharedLinkUniquePerFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f := mustSaveFile(t, s, "u", "doc.txt", "text/plain", 1)
	_, err := s.SharedLinks.Save(ctx, &SharedLink{FileID: f.ID, Token: "tok1"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.SharedLinks.Save(ctx, &SharedLink{FileID: f.ID, Token: "tok2"})
	if !apperror.IsCode(err, apperror.CodeAlreadyExists) {
		t.Errorf("expected AlreadyExists, got %v", err)
	}

	link, err := s.SharedLinks.GetByToken(ctx, "tok1")
	if err != nil {
		t.Fatal(err)
	}
	if link.FileID != f.ID {
		t.Errorf("file id = %s", link.FileID)
	}

	_, err = s.SharedLinks.GetByToken(ctx, "missing")
	if !apperror.IsCode(err, apperror.CodeSharedLinkNotFound) {
		t.Errorf("expected SharedLinkNotFound, got %v", err)
	}
}

func TestPendingDeletionOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &FilePendingDeletion{NSPath: "u", Path: "old.bin", ContentHash: "h1", MediaType: "application/octet-stream", CreatedAt: time.Now().Add(-time.Hour)}
	second := &FilePendingDeletion{NSPath: "u", Path: "new.bin", ContentHash: "h2", MediaType: "application/octet-stream", CreatedAt: time.Now()}
	if err := s.PendingDeletions.SaveBatch(ctx, []*FilePendingDeletion{second, first}); err != nil {
		t.Fatal(err)
	}

	recs, err := s.PendingDeletions.List(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].Path != "old.bin" {
		t.Fatalf("order wrong: %+v", recs)
	}

	if err := s.PendingDeletions.Delete(ctx, recs[0].ID); err != nil {
		t.Fatal(err)
	}
	recs, _ = s.PendingDeletions.List(ctx, 10)
	if len(recs) != 1 {
		t.Errorf("expected one record left, got %d", len(recs))
	}
}

func TestAtomicRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(ctx context.Context) error {
		if _, err := s.Files.Save(ctx, &File{NSPath: "u", Path: "x.txt", MediaType: "text/plain"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if ok, _ := s.Files.ExistsAtPath(ctx, "u", vpath.New("x.txt")); ok {
		t.Error("insert survived rollback")
	}
}

func TestAtomicNestedBlocksAbsorbed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Atomic(ctx, func(ctx context.Context) error {
		return s.Atomic(ctx, func(ctx context.Context) error {
			_, err := s.Files.Save(ctx, &File{NSPath: "u", Path: "y.txt", MediaType: "text/plain"})
			return err
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Files.ExistsAtPath(ctx, "u", vpath.New("y.txt")); !ok {
		t.Error("nested insert missing")
	}
}
