package fileservice

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/filecore"
	"github.com/driftbox/driftbox/pkg/mount"
	"github.com/driftbox/driftbox/pkg/store/metadata"
	"github.com/driftbox/driftbox/pkg/store/object/local"
	"github.com/driftbox/driftbox/pkg/vpath"
)

func newTestService(t *testing.T) *Service {
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
	return New(filecore.New(meta, objects), mount.NewService(meta))
}

func seedShare(t *testing.T, s *Service, permissions string) *metadata.MountPoint {
	t.Helper()
	ctx := context.Background()
	if _, err := s.CreateFile(ctx, "alice", vpath.New("Shared/doc.txt"), strings.NewReader("hello")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateFolder(ctx, "bob", vpath.New("Inbox")); err != nil {
		t.Fatal(err)
	}
	mp, err := s.Mounts().Create(ctx,
		mount.Location{NSPath: "alice", Path: vpath.New("Shared")},
		mount.Location{NSPath: "bob", Path: vpath.New("Inbox")},
		"Public", permissions)
	if err != nil {
		t.Fatal(err)
	}
	return mp
}

func TestGetAtPathThroughMount(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedShare(t, s, "")

	f, err := s.GetAtPath(ctx, "bob", vpath.New("inbox/public/doc.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if f.NSPath != "bob" {
		t.Errorf("namespace = %s", f.NSPath)
	}
	if f.Path != "Inbox/Public/doc.txt" {
		t.Errorf("path = %q", f.Path)
	}
	if !f.IsMounted() {
		t.Error("mount not reported")
	}
	if f.Size != 5 {
		t.Errorf("size = %d", f.Size)
	}
}

func TestListFolderMergesMountEntries(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedShare(t, s, "")
	if _, err := s.CreateFile(ctx, "bob", vpath.New("Inbox/zzz.txt"), strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}

	children, err := s.ListFolder(ctx, "bob", vpath.New("Inbox"))
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 2 {
		t.Fatalf("children = %d", len(children))
	}
	// The mount entry is a folder, so it sorts first.
	if children[0].Name != "Public" || !children[0].IsMounted() || !children[0].IsFolder() {
		t.Errorf("children[0] = %+v", children[0])
	}
	if children[1].Name != "zzz.txt" || children[1].IsMounted() {
		t.Errorf("children[1] = %+v", children[1])
	}
}

func TestListFolderInsideMount(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedShare(t, s, "")

	children, err := s.ListFolder(ctx, "bob", vpath.New("Inbox/Public"))
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 1 {
		t.Fatalf("children = %+v", children)
	}
	if children[0].Path != "Inbox/Public/doc.txt" || children[0].NSPath != "bob" {
		t.Errorf("child = %+v", children[0])
	}
}

func TestUploadThroughMountWritesToSource(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedShare(t, s, "")

	f, err := s.CreateFile(ctx, "bob", vpath.New("Inbox/Public/note.txt"), strings.NewReader("shared note"))
	if err != nil {
		t.Fatal(err)
	}
	if f.Path != "Inbox/Public/note.txt" {
		t.Errorf("display path = %q", f.Path)
	}

	// The blob and row live in the owner's namespace.
	real, err := s.Core().GetAtPath(ctx, "alice", vpath.New("Shared/note.txt"))
	if err != nil {
		t.Fatal(err)
	}
	rc, _, err := s.Core().Download(ctx, "alice", real.VPath())
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "shared note" {
		t.Errorf("content = %q", data)
	}
}

func TestMountPermissionsEnforced(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedShare(t, s, "view,download")

	if _, err := s.CreateFile(ctx, "bob", vpath.New("Inbox/Public/no.txt"), strings.NewReader("x")); !apperror.IsCode(err, apperror.CodeActionNotAllowed) {
		t.Errorf("upload: expected ActionNotAllowed, got %v", err)
	}
	if _, err := s.Delete(ctx, "bob", vpath.New("Inbox/Public/doc.txt")); !apperror.IsCode(err, apperror.CodeActionNotAllowed) {
		t.Errorf("delete: expected ActionNotAllowed, got %v", err)
	}

	rc, f, err := s.Download(ctx, "bob", vpath.New("Inbox/Public/doc.txt"))
	if err != nil {
		t.Fatalf("download should be allowed: %v", err)
	}
	_ = rc.Close()
	if f.Path != "Inbox/Public/doc.txt" {
		t.Errorf("download view path = %q", f.Path)
	}
}

func TestMoveOutOfMount(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedShare(t, s, "")

	f, err := s.Move(ctx, "bob", vpath.New("Inbox/Public/doc.txt"), vpath.New("Inbox/mine.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if f.NSPath != "bob" || f.Path != "Inbox/mine.txt" || f.IsMounted() {
		t.Errorf("moved view = %+v", f)
	}

	if _, err := s.Core().GetAtPath(ctx, "alice", vpath.New("Shared/doc.txt")); !apperror.IsCode(err, apperror.CodeNotFound) {
		t.Errorf("source row should be gone, got %v", err)
	}
	if _, err := s.Core().GetAtPath(ctx, "bob", vpath.New("Inbox/mine.txt")); err != nil {
		t.Errorf("destination row missing: %v", err)
	}
}

func TestReshareRequiresPermission(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	seedShare(t, s, "view,download")
	if _, err := s.Core().CreateFolder(ctx, "carol", vpath.New("From Bob")); err != nil {
		t.Fatal(err)
	}

	_, err := s.Mount(ctx, "bob", vpath.New("Inbox/Public"),
		mount.Location{NSPath: "carol", Path: vpath.New("From Bob")}, "Indirect", "")
	if !apperror.IsCode(err, apperror.CodeActionNotAllowed) {
		t.Errorf("expected ActionNotAllowed, got %v", err)
	}
}
