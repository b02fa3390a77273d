package sharing

import (
	"context"
	"strings"
	"testing"

	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/filecore"
	"github.com/driftbox/driftbox/pkg/mount"
	"github.com/driftbox/driftbox/pkg/store/metadata"
	"github.com/driftbox/driftbox/pkg/store/object/local"
	"github.com/driftbox/driftbox/pkg/vpath"
)

type fixture struct {
	svc    *Service
	core   *filecore.Core
	meta   *metadata.Store
	mounts *mount.Service
}

func newFixture(t *testing.T) *fixture {
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
	mounts := mount.NewService(store)

	ctx := context.Background()
	for _, u := range []struct{ name, ns string }{
		{"alice", "alice"}, {"bob", "bob"},
	} {
		user, err := store.Users.Save(ctx, &metadata.User{Username: u.name})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := store.Namespaces.Save(ctx, &metadata.Namespace{Path: u.ns, OwnerID: user.ID}); err != nil {
			t.Fatal(err)
		}
		// Materialize the namespace root.
		if _, err := core.CreateFile(ctx, u.ns, vpath.New("seed.txt"), strings.NewReader("x")); err != nil {
			t.Fatal(err)
		}
	}
	return &fixture{svc: NewService(core, mounts), core: core, meta: store, mounts: mounts}
}

func TestCreateLinkIdempotent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	first, err := fx.svc.CreateLink(ctx, "alice", vpath.New("seed.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if first.Token == "" {
		t.Fatal("empty token")
	}
	second, err := fx.svc.CreateLink(ctx, "alice", vpath.New("seed.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if second.Token != first.Token {
		t.Errorf("second link token %q differs from first %q", second.Token, first.Token)
	}
}

func TestResolveToken(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	link, err := fx.svc.CreateLink(ctx, "alice", vpath.New("seed.txt"))
	if err != nil {
		t.Fatal(err)
	}

	_, file, err := fx.svc.ResolveToken(ctx, link.Token)
	if err != nil {
		t.Fatal(err)
	}
	if file.Path != "seed.txt" || file.NSPath != "alice" {
		t.Errorf("resolved file = %s:%s", file.NSPath, file.Path)
	}

	if _, _, err := fx.svc.ResolveToken(ctx, "bogus"); !apperror.IsCode(err, apperror.CodeSharedLinkNotFound) {
		t.Errorf("unknown token err = %v", err)
	}
}

func TestRevokeLink(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	link, err := fx.svc.CreateLink(ctx, "alice", vpath.New("seed.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if err := fx.svc.RevokeLink(ctx, "alice", vpath.New("seed.txt")); err != nil {
		t.Fatal(err)
	}
	if _, _, err := fx.svc.ResolveToken(ctx, link.Token); !apperror.IsCode(err, apperror.CodeSharedLinkNotFound) {
		t.Errorf("revoked token err = %v", err)
	}
	if err := fx.svc.RevokeLink(ctx, "alice", vpath.New("seed.txt")); !apperror.IsCode(err, apperror.CodeSharedLinkNotFound) {
		t.Errorf("second revoke err = %v", err)
	}
}

func TestAddMemberMountsUnderMemberRoot(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.core.CreateFolder(ctx, "alice", vpath.New("Photos")); err != nil {
		t.Fatal(err)
	}

	member, mp, err := fx.svc.AddMember(ctx, "alice", vpath.New("Photos"), "bob")
	if err != nil {
		t.Fatal(err)
	}
	if member.Permissions != metadata.EditorPermissions {
		t.Errorf("permissions = %q", member.Permissions)
	}
	if mp.FolderNSPath != "bob" || mp.DisplayName != "Photos" {
		t.Errorf("mount = %+v", mp)
	}

	// The member sees the shared folder in their own tree.
	mps, err := fx.meta.Mounts.ListInFolder(ctx, "bob", vpath.New("."))
	if err != nil {
		t.Fatal(err)
	}
	if len(mps) != 1 || mps[0].SourceNSPath != "alice" {
		t.Fatalf("mounts in bob root = %+v", mps)
	}

	// The owner holds an implicit full grant.
	members, err := fx.svc.ListMembers(ctx, "alice", vpath.New("Photos"))
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 {
		t.Errorf("members = %+v", members)
	}

	if _, _, err := fx.svc.AddMember(ctx, "alice", vpath.New("Photos"), "bob"); !apperror.IsCode(err, apperror.CodeAlreadyExists) {
		t.Errorf("re-share err = %v", err)
	}
}

func TestAddMemberPicksFreeDisplayName(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.core.CreateFolder(ctx, "alice", vpath.New("Photos")); err != nil {
		t.Fatal(err)
	}
	// Bob already has a folder by that name.
	if _, err := fx.core.CreateFolder(ctx, "bob", vpath.New("Photos")); err != nil {
		t.Fatal(err)
	}

	_, mp, err := fx.svc.AddMember(ctx, "alice", vpath.New("Photos"), "bob")
	if err != nil {
		t.Fatal(err)
	}
	if mp.DisplayName != "Photos (1)" {
		t.Errorf("display name = %q, want \"Photos (1)\"", mp.DisplayName)
	}
}

func TestAddMemberRejections(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, _, err := fx.svc.AddMember(ctx, "alice", vpath.New("seed.txt"), "bob"); !apperror.IsCode(err, apperror.CodeNotADirectory) {
		t.Errorf("file share err = %v", err)
	}

	if _, err := fx.core.CreateFolder(ctx, "alice", vpath.New("Docs")); err != nil {
		t.Fatal(err)
	}
	if _, _, err := fx.svc.AddMember(ctx, "alice", vpath.New("Docs"), "alice"); !apperror.IsCode(err, apperror.CodeActionNotAllowed) {
		t.Errorf("self share err = %v", err)
	}
	if _, _, err := fx.svc.AddMember(ctx, "alice", vpath.New("Docs"), "nobody"); !apperror.IsCode(err, apperror.CodeUserNotFound) {
		t.Errorf("unknown user err = %v", err)
	}
}

func TestRemoveMember(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.core.CreateFolder(ctx, "alice", vpath.New("Photos")); err != nil {
		t.Fatal(err)
	}
	if _, _, err := fx.svc.AddMember(ctx, "alice", vpath.New("Photos"), "bob"); err != nil {
		t.Fatal(err)
	}

	if err := fx.svc.RemoveMember(ctx, "alice", vpath.New("Photos"), "bob"); err != nil {
		t.Fatal(err)
	}
	mps, err := fx.meta.Mounts.ListInFolder(ctx, "bob", vpath.New("."))
	if err != nil {
		t.Fatal(err)
	}
	if len(mps) != 0 {
		t.Errorf("mount survived removal: %+v", mps)
	}
	if err := fx.svc.RemoveMember(ctx, "alice", vpath.New("Photos"), "bob"); !apperror.IsCode(err, apperror.CodeNotFound) {
		t.Errorf("second removal err = %v", err)
	}
}
