package namespace

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/cache/memory"
	"github.com/driftbox/driftbox/pkg/content"
	"github.com/driftbox/driftbox/pkg/content/dedup"
	"github.com/driftbox/driftbox/pkg/content/meta"
	"github.com/driftbox/driftbox/pkg/content/thumbnail"
	"github.com/driftbox/driftbox/pkg/filecore"
	"github.com/driftbox/driftbox/pkg/fileservice"
	"github.com/driftbox/driftbox/pkg/mount"
	"github.com/driftbox/driftbox/pkg/store/metadata"
	"github.com/driftbox/driftbox/pkg/store/object/local"
	"github.com/driftbox/driftbox/pkg/vpath"
)

type fixture struct {
	svc   *Service
	core  *filecore.Core
	meta  *metadata.Store
	owner *metadata.User
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	store, err := metadata.New(&metadata.Config{
		Type:   metadata.DatabaseTypeSQLite,
		SQLite: metadata.SQLiteConfig{Path: ":memory:"},
	})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	objects, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create object store: %v", err)
	}
	core := filecore.New(store, objects)
	files := fileservice.New(core, mount.NewService(store))

	c := memory.New()
	t.Cleanup(func() { _ = c.Close() })
	thumbs := thumbnail.NewService(core, c, thumbnail.Config{Sizes: []int{64}})
	pipeline := content.NewService(core, thumbs, dedup.NewService(store), meta.NewService(store), nil)

	svc := NewService(files, pipeline, nil, cfg)

	ctx := context.Background()
	owner, err := store.Users.Save(ctx, &metadata.User{Username: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Create(ctx, "alice", owner.ID); err != nil {
		t.Fatal(err)
	}
	return &fixture{svc: svc, core: core, meta: store, owner: owner}
}

func pngBytes(t *testing.T, seed uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x*4) + seed, G: uint8(y * 4), B: seed, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func addFile(t *testing.T, fx *fixture, path, contents string) *fileservice.File {
	t.Helper()
	f, err := fx.svc.AddFile(context.Background(), "alice", vpath.New(path),
		strings.NewReader(contents), int64(len(contents)))
	if err != nil {
		t.Fatalf("AddFile(%s): %v", path, err)
	}
	return f
}

func TestCreateBootstrapsTrash(t *testing.T) {
	fx := newFixture(t, Config{})
	ctx := context.Background()

	trash, err := fx.core.GetAtPath(ctx, "alice", vpath.New("trash"))
	if err != nil {
		t.Fatal(err)
	}
	if !trash.IsFolder() || trash.Path != TrashFolder {
		t.Errorf("trash row = %+v", trash)
	}
}

func TestAddFileRunsPipeline(t *testing.T) {
	fx := newFixture(t, Config{})
	ctx := context.Background()

	f := addFile(t, fx, "docs/readme.txt", "hello world")

	got, err := fx.core.GetByID(ctx, f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ContentHash == "" {
		t.Error("pipeline did not record the content hash")
	}
}

func TestAddFilePolicyRejections(t *testing.T) {
	fx := newFixture(t, Config{MaxUploadSize: 8})
	ctx := context.Background()

	_, err := fx.svc.AddFile(ctx, "alice", vpath.New("Trash/x.txt"), strings.NewReader("x"), 1)
	if !apperror.IsCode(err, apperror.CodeMalformedPath) {
		t.Errorf("trash upload err = %v", err)
	}

	_, err = fx.svc.AddFile(ctx, "alice", vpath.New("big.bin"), strings.NewReader("123456789"), 9)
	if !apperror.IsCode(err, apperror.CodeTooLarge) {
		t.Errorf("oversize upload err = %v", err)
	}
}

func TestAddFileQuota(t *testing.T) {
	fx := newFixture(t, Config{})
	ctx := context.Background()

	quota := int64(10)
	if err := fx.meta.Accounts.Save(ctx, &metadata.Account{UserID: fx.owner.ID, StorageQuota: &quota}); err != nil {
		t.Fatal(err)
	}

	addFile(t, fx, "a.txt", "12345678")

	_, err := fx.svc.AddFile(ctx, "alice", vpath.New("b.txt"), strings.NewReader("12345"), 5)
	if !apperror.IsCode(err, apperror.CodeStorageQuotaExceeded) {
		t.Errorf("over-quota upload err = %v", err)
	}

	// Still room for two more bytes.
	addFile(t, fx, "c.txt", "12")
}

func TestMoveItemToTrash(t *testing.T) {
	fx := newFixture(t, Config{})
	ctx := context.Background()

	addFile(t, fx, "doc.txt", "one")
	moved, err := fx.svc.MoveItemToTrash(ctx, "alice", vpath.New("doc.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if moved.Path != "Trash/doc.txt" {
		t.Errorf("trashed path = %q", moved.Path)
	}

	// A second doc.txt lands beside it under a stamped name.
	addFile(t, fx, "doc.txt", "two")
	moved, err = fx.svc.MoveItemToTrash(ctx, "alice", vpath.New("doc.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if moved.Path == "Trash/doc.txt" ||
		!strings.HasPrefix(moved.Path, "Trash/doc ") ||
		!strings.HasSuffix(moved.Path, ".txt") {
		t.Errorf("stamped path = %q", moved.Path)
	}
}

func TestDeleteItemGuards(t *testing.T) {
	fx := newFixture(t, Config{})
	ctx := context.Background()

	if err := fx.svc.DeleteItem(ctx, "alice", vpath.New(".")); !apperror.IsCode(err, apperror.CodeActionNotAllowed) {
		t.Errorf("root delete err = %v", err)
	}
	if err := fx.svc.DeleteItem(ctx, "alice", vpath.New("trash")); !apperror.IsCode(err, apperror.CodeActionNotAllowed) {
		t.Errorf("trash delete err = %v", err)
	}
}

func TestDeleteItemPurgesInline(t *testing.T) {
	fx := newFixture(t, Config{})
	ctx := context.Background()

	f := addFile(t, fx, "gone.txt", "bye")
	if err := fx.svc.DeleteItem(ctx, "alice", vpath.New("gone.txt")); err != nil {
		t.Fatal(err)
	}

	if _, err := fx.core.GetByID(ctx, f.ID); !apperror.IsCode(err, apperror.CodeNotFound) {
		t.Errorf("row still present: %v", err)
	}
	// With no scheduler the blob purge ran inline.
	if ok, _ := fx.core.Objects().Exists(ctx, "alice", vpath.New("gone.txt")); ok {
		t.Error("blob still present after inline purge")
	}
}

func TestEmptyTrash(t *testing.T) {
	fx := newFixture(t, Config{})
	ctx := context.Background()

	addFile(t, fx, "junk.txt", "junk")
	if _, err := fx.svc.MoveItemToTrash(ctx, "alice", vpath.New("junk.txt")); err != nil {
		t.Fatal(err)
	}
	if err := fx.svc.EmptyTrash(ctx, "alice"); err != nil {
		t.Fatal(err)
	}

	trash, err := fx.core.GetAtPath(ctx, "alice", vpath.New("trash"))
	if err != nil {
		t.Fatal(err)
	}
	if trash.Size != 0 {
		t.Errorf("trash size = %d after emptying", trash.Size)
	}
	if ok, _ := fx.core.ExistsAtPath(ctx, "alice", vpath.New("Trash/junk.txt")); ok {
		t.Error("trashed item survived")
	}
}

func TestFindDuplicates(t *testing.T) {
	fx := newFixture(t, Config{})
	ctx := context.Background()

	img := pngBytes(t, 0)
	for _, name := range []string{"Photos/a.png", "Photos/b.png"} {
		if _, err := fx.svc.AddFile(ctx, "alice", vpath.New(name),
			bytes.NewReader(img), int64(len(img))); err != nil {
			t.Fatal(err)
		}
	}

	groups, err := fx.svc.FindDuplicates(ctx, "alice", vpath.New("Photos"))
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || len(groups[0]) != 2 {
		t.Fatalf("groups = %+v", groups)
	}
}

func TestReindexRestoresTrash(t *testing.T) {
	fx := newFixture(t, Config{})
	ctx := context.Background()

	addFile(t, fx, "keep.txt", "keep")
	if err := fx.svc.Reindex(ctx, "alice"); err != nil {
		t.Fatal(err)
	}

	if ok, _ := fx.core.ExistsAtPath(ctx, "alice", vpath.New("keep.txt")); !ok {
		t.Error("file lost by reindex")
	}
	trash, err := fx.core.GetAtPath(ctx, "alice", vpath.New("trash"))
	if err != nil {
		t.Fatalf("trash missing after reindex: %v", err)
	}
	if !trash.IsFolder() {
		t.Errorf("trash row = %+v", trash)
	}
}

func TestActivity(t *testing.T) {
	fx := newFixture(t, Config{})
	ctx := context.Background()

	addFile(t, fx, "x.txt", "x")
	if err := fx.svc.DeleteItem(ctx, "alice", vpath.New("x.txt")); err != nil {
		t.Fatal(err)
	}

	entries, err := fx.svc.Activity(ctx, "alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) < 2 {
		t.Fatalf("entries = %+v", entries)
	}
	// Newest first.
	if entries[0].Action != "item_deleted" {
		t.Errorf("latest action = %q", entries[0].Action)
	}
}
