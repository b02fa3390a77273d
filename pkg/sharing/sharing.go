// Package sharing implements public link tokens and per-user membership
// grants. Sharing a folder with a member mounts it under the member's
// namespace root, so the shared subtree shows up in their own tree with
// the granted permissions enforced at the mount crossing.
package sharing

import (
	"context"
	"crypto/rand"
	"encoding/base64"

	"github.com/driftbox/driftbox/internal/logger"
	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/filecore"
	"github.com/driftbox/driftbox/pkg/mount"
	"github.com/driftbox/driftbox/pkg/store/metadata"
	"github.com/driftbox/driftbox/pkg/vpath"
)

// tokenBytes sizes the random part of a link token (256 bits).
const tokenBytes = 32

// Service owns shared links and file memberships.
type Service struct {
	core   *filecore.Core
	mounts *mount.Service
	meta   *metadata.Store
}

// NewService returns a Service over the core and the mount layer.
func NewService(core *filecore.Core, mounts *mount.Service) *Service {
	return &Service{core: core, mounts: mounts, meta: core.Meta()}
}

// CreateLink issues a public token for the file at (ns, path). At most
// one live link exists per file; repeat calls return the existing one.
func (s *Service) CreateLink(ctx context.Context, ns string, path vpath.Path) (*metadata.SharedLink, error) {
	file, err := s.core.GetAtPath(ctx, ns, path)
	if err != nil {
		return nil, err
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}
	link, err := s.meta.SharedLinks.Save(ctx, &metadata.SharedLink{FileID: file.ID, Token: token})
	if apperror.IsCode(err, apperror.CodeAlreadyExists) {
		return s.meta.SharedLinks.GetByFileID(ctx, file.ID)
	}
	if err != nil {
		return nil, err
	}
	logger.InfoCtx(ctx, "shared link created", "ns", ns, "path", file.Path)
	return link, nil
}

// GetLinkByFileID returns the live link of a file.
func (s *Service) GetLinkByFileID(ctx context.Context, fileID string) (*metadata.SharedLink, error) {
	return s.meta.SharedLinks.GetByFileID(ctx, fileID)
}

// ResolveToken maps a public token to its link and file.
func (s *Service) ResolveToken(ctx context.Context, token string) (*metadata.SharedLink, *metadata.File, error) {
	link, err := s.meta.SharedLinks.GetByToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	file, err := s.core.GetByID(ctx, link.FileID)
	if apperror.IsCode(err, apperror.CodeNotFound) {
		// The file is gone; the dangling link is as good as revoked.
		return nil, nil, apperror.SharedLinkNotFound()
	}
	if err != nil {
		return nil, nil, err
	}
	return link, file, nil
}

// RevokeLink removes the live link of the file at (ns, path).
func (s *Service) RevokeLink(ctx context.Context, ns string, path vpath.Path) error {
	file, err := s.core.GetAtPath(ctx, ns, path)
	if err != nil {
		return err
	}
	if _, err := s.meta.SharedLinks.GetByFileID(ctx, file.ID); err != nil {
		return err
	}
	return s.meta.SharedLinks.DeleteByFileIDBatch(ctx, []string{file.ID})
}

// AddMember shares the folder at (ns, path) with the named user: it
// records the membership grant and mounts the folder under the member's
// namespace root. The folder's owner gets an implicit full-permission
// grant the first time the folder is shared.
func (s *Service) AddMember(ctx context.Context, ns string, path vpath.Path, username string) (*metadata.FileMember, *metadata.MountPoint, error) {
	folder, err := s.core.GetAtPath(ctx, ns, path)
	if err != nil {
		return nil, nil, err
	}
	if !folder.IsFolder() {
		return nil, nil, apperror.NotADirectory(path.String())
	}

	user, err := s.meta.Users.GetByUsername(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	memberNS, err := s.namespaceOf(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	if memberNS == ns {
		return nil, nil, apperror.ActionNotAllowed("Can't share a folder with its owner.")
	}

	if err := s.ensureOwnerGrant(ctx, ns, folder.ID); err != nil {
		return nil, nil, err
	}

	member, err := s.meta.FileMembers.Save(ctx, &metadata.FileMember{
		FileID:      folder.ID,
		UserID:      user.ID,
		Permissions: metadata.EditorPermissions,
	})
	if err != nil {
		return nil, nil, err
	}

	root := mount.Location{NSPath: memberNS, Path: vpath.New(".")}
	name, err := s.mounts.GetAvailableDisplayName(ctx, root, folder.Name)
	if err != nil {
		return nil, nil, err
	}
	mp, err := s.mounts.Create(ctx,
		mount.Location{NSPath: ns, Path: folder.VPath()},
		root, name, member.Permissions)
	if err != nil {
		return nil, nil, err
	}
	logger.InfoCtx(ctx, "folder shared",
		"ns", ns, "path", folder.Path, "member", username)
	return member, mp, nil
}

// RemoveMember revokes the named user's grant on the folder at (ns,
// path) and unmounts it from their namespace.
func (s *Service) RemoveMember(ctx context.Context, ns string, path vpath.Path, username string) error {
	folder, err := s.core.GetAtPath(ctx, ns, path)
	if err != nil {
		return err
	}
	user, err := s.meta.Users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if err := s.meta.FileMembers.Delete(ctx, folder.ID, user.ID); err != nil {
		return err
	}

	mps, err := s.meta.Mounts.ListAllBySource(ctx, ns, folder.VPath())
	if err != nil {
		return err
	}
	for _, mp := range mps {
		nsRow, err := s.meta.Namespaces.GetByPath(ctx, mp.FolderNSPath)
		if err != nil {
			continue
		}
		if nsRow.OwnerID != user.ID {
			continue
		}
		if err := s.mounts.Remove(ctx, mp.ID); err != nil {
			return err
		}
	}
	return nil
}

// ListMembers returns every grant on the file at (ns, path).
func (s *Service) ListMembers(ctx context.Context, ns string, path vpath.Path) ([]metadata.FileMember, error) {
	file, err := s.core.GetAtPath(ctx, ns, path)
	if err != nil {
		return nil, err
	}
	return s.meta.FileMembers.ListByFileID(ctx, file.ID)
}

// ensureOwnerGrant records the owner's implicit full-permission
// membership, tolerating the row already existing.
func (s *Service) ensureOwnerGrant(ctx context.Context, ns, fileID string) error {
	nsRow, err := s.meta.Namespaces.GetByPath(ctx, ns)
	if err != nil {
		return err
	}
	_, err = s.meta.FileMembers.Save(ctx, &metadata.FileMember{
		FileID:      fileID,
		UserID:      nsRow.OwnerID,
		Permissions: metadata.FullPermissions,
	})
	if apperror.IsCode(err, apperror.CodeAlreadyExists) {
		return nil
	}
	return err
}

// namespaceOf picks the user's home namespace.
func (s *Service) namespaceOf(ctx context.Context, userID string) (string, error) {
	nss, err := s.meta.Namespaces.ListByOwner(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(nss) == 0 {
		return "", apperror.NotFound(userID)
	}
	return nss[0].Path, nil
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", apperror.Internal("failed to generate token", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
