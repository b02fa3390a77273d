package mount

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/driftbox/driftbox/internal/logger"
	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/store/metadata"
	"github.com/driftbox/driftbox/pkg/vpath"
)

// Service owns mount point lifecycle.
type Service struct {
	meta     *metadata.Store
	resolver *Resolver
}

// NewService returns a Service over the metadata store.
func NewService(meta *metadata.Store) *Service {
	return &Service{meta: meta, resolver: NewResolver(meta)}
}

// Resolver returns the path resolver sharing this service's store.
func (s *Service) Resolver() *Resolver { return s.resolver }

// Create mounts the subtree at source inside folder under displayName.
// The source must exist, the anchor must be a folder in a different
// namespace, the display name must be free, and the mount must not close
// a cycle through existing mounts.
func (s *Service) Create(ctx context.Context, source, folder Location, displayName, permissions string) (*metadata.MountPoint, error) {
	if source.NSPath == folder.NSPath {
		return nil, apperror.ActionNotAllowed("Can't mount a namespace into itself.")
	}

	srcRow, err := s.meta.Files.GetByPath(ctx, source.NSPath, source.Path)
	if err != nil {
		return nil, err
	}
	if !folder.Path.IsRoot() {
		folderRow, err := s.meta.Files.GetByPath(ctx, folder.NSPath, folder.Path)
		if err != nil {
			return nil, err
		}
		if !folderRow.IsFolder() {
			return nil, apperror.NotADirectory(folderRow.Path)
		}
		folder.Path = folderRow.VPath()
	}

	// A mount whose source, resolved through existing mounts, contains
	// the anchor folder would make resolution loop forever.
	realSrc, err := s.resolver.ResolvePath(ctx, source.NSPath, srcRow.VPath())
	if err != nil {
		return nil, err
	}
	realFolder, err := s.resolver.ResolvePath(ctx, folder.NSPath, folder.Path)
	if err != nil {
		return nil, err
	}
	if realFolder.NSPath == realSrc.NSPath && realFolder.Path.IsRelativeTo(realSrc.Path) {
		return nil, apperror.ActionNotAllowed("Mount would create a cycle.")
	}

	taken, err := s.displayNameTaken(ctx, folder, displayName)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperror.AlreadyExists(folder.Path.Join(displayName).String())
	}

	mp, err := s.meta.Mounts.Save(ctx, &metadata.MountPoint{
		SourceNSPath: source.NSPath,
		SourcePath:   srcRow.Path,
		FolderNSPath: folder.NSPath,
		FolderPath:   folder.Path.String(),
		DisplayName:  displayName,
		Permissions:  permissions,
	})
	if err != nil {
		return nil, err
	}
	logger.InfoCtx(ctx, "mount point created",
		"source_namespace", source.NSPath, "source", srcRow.Path,
		"namespace", folder.NSPath, "display", mp.DisplayPath().String())
	return mp, nil
}

// Move re-anchors a mount point to a new folder or display name within
// its consumer namespace.
func (s *Service) Move(ctx context.Context, id string, folder vpath.Path, displayName string) (*metadata.MountPoint, error) {
	mp, err := s.meta.Mounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	sameAnchor := folder.Equal(vpath.New(mp.FolderPath)) &&
		vpath.Fold(displayName) == mp.DisplayNameKey
	if !sameAnchor {
		taken, err := s.displayNameTaken(ctx, Location{NSPath: mp.FolderNSPath, Path: folder}, displayName)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperror.AlreadyExists(folder.Join(displayName).String())
		}
	}

	mp.FolderPath = folder.String()
	mp.DisplayName = displayName
	if err := s.meta.Mounts.Update(ctx, mp); err != nil {
		return nil, err
	}
	return mp, nil
}

// Remove deletes a mount point. The mounted content is untouched.
func (s *Service) Remove(ctx context.Context, id string) error {
	return s.meta.Mounts.Delete(ctx, id)
}

// GetAvailableDisplayName returns name when free inside folder, else the
// smallest free "stem (N).suffix" variant, checked against both mounts
// and real children case-insensitively.
func (s *Service) GetAvailableDisplayName(ctx context.Context, folder Location, name string) (string, error) {
	taken, err := s.displayNameTaken(ctx, folder, name)
	if err != nil {
		return "", err
	}
	if !taken {
		return name, nil
	}

	np := vpath.New(name)
	stem, suffix := np.Stem(), np.Suffix()
	re := regexp.MustCompile(
		"^" + regexp.QuoteMeta(strings.ToLower(stem)) + ` \(\d+\)` + regexp.QuoteMeta(strings.ToLower(suffix)) + "$")
	count, err := s.meta.Mounts.CountByNamePattern(ctx, folder.NSPath, folder.Path, re)
	if err != nil {
		return "", err
	}

	for n := count + 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, suffix)
		taken, err := s.displayNameTaken(ctx, folder, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
}

// displayNameTaken reports whether name collides with a mount or a real
// child of the folder.
func (s *Service) displayNameTaken(ctx context.Context, folder Location, name string) (bool, error) {
	taken, err := s.meta.Mounts.ExistsAtDisplayPath(ctx, folder.NSPath, folder.Path, name)
	if err != nil || taken {
		return taken, err
	}
	return s.meta.Files.ExistsAtPath(ctx, folder.NSPath, folder.Path.Join(name))
}

// EntriesInFolder returns the mount points anchored in folder as file
// views so listings can interleave them with real children: each entry
// reports the display path, the source folder media type, and the size of
// the mounted subtree root.
func (s *Service) EntriesInFolder(ctx context.Context, ns string, folder vpath.Path) ([]metadata.File, []metadata.MountPoint, error) {
	mounts, err := s.meta.Mounts.ListInFolder(ctx, ns, folder)
	if err != nil {
		return nil, nil, err
	}
	entries := make([]metadata.File, 0, len(mounts))
	kept := make([]metadata.MountPoint, 0, len(mounts))
	for _, m := range mounts {
		src, err := s.meta.Files.GetByPath(ctx, m.SourceNSPath, m.Source())
		if apperror.IsCode(err, apperror.CodeNotFound) {
			// Stale mount, the shared subtree is gone.
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		entry := *src
		entry.NSPath = ns
		entry.Path = m.DisplayPath().String()
		entry.Name = m.DisplayName
		entry.Normalize()
		entries = append(entries, entry)
		kept = append(kept, m)
	}
	return entries, kept, nil
}
