package metadata

import (
	"context"
	"regexp"

	"github.com/google/uuid"

	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/vpath"
)

// MountRepository persists mount points. Closest-match resolution runs
// in the application over namespace-filtered candidates so both database
// backends behave identically.
type MountRepository struct {
	store *Store
}

// Save inserts a mount point.
func (r *MountRepository) Save(ctx context.Context, mount *MountPoint) (*MountPoint, error) {
	if mount.ID == "" {
		mount.ID = uuid.NewString()
	}
	mount.Normalize()
	if err := r.store.conn(ctx).Create(mount).Error; err != nil {
		return nil, apperror.Internal("failed to save mount point", err)
	}
	return mount, nil
}

// GetByID returns the mount point with the given ID.
func (r *MountRepository) GetByID(ctx context.Context, id string) (*MountPoint, error) {
	var mount MountPoint
	err := r.store.conn(ctx).Where("id = ?", id).First(&mount).Error
	if err != nil {
		return nil, convertNotFound(err, apperror.MountNotFound(id))
	}
	return &mount, nil
}

// GetClosest returns the deepest mount point whose display path covers
// path in namespace ns, or MountNotFound when no mount applies.
func (r *MountRepository) GetClosest(ctx context.Context, ns string, path vpath.Path) (*MountPoint, error) {
	var mounts []MountPoint
	err := r.store.conn(ctx).Where("folder_ns_path = ?", ns).Find(&mounts).Error
	if err != nil {
		return nil, apperror.Internal("failed to load mount points", err)
	}

	var best *MountPoint
	bestDepth := -1
	for i := range mounts {
		display := mounts[i].DisplayPath()
		if !path.Equal(display) && !path.IsRelativeTo(display) {
			continue
		}
		if depth := pathDepth(display); depth > bestDepth {
			best = &mounts[i]
			bestDepth = depth
		}
	}
	if best == nil {
		return nil, apperror.MountNotFound(path.String())
	}
	return best, nil
}

// GetClosestBySource returns the deepest mount point whose source subtree
// covers path in the source namespace ns and whose anchor lives in
// targetNS, the consumer namespace.
func (r *MountRepository) GetClosestBySource(ctx context.Context, ns string, path vpath.Path, targetNS string) (*MountPoint, error) {
	var mounts []MountPoint
	err := r.store.conn(ctx).
		Where("source_ns_path = ? AND folder_ns_path = ?", ns, targetNS).
		Find(&mounts).Error
	if err != nil {
		return nil, apperror.Internal("failed to load mount points", err)
	}

	var best *MountPoint
	bestDepth := -1
	for i := range mounts {
		source := mounts[i].Source()
		if !path.Equal(source) && !path.IsRelativeTo(source) {
			continue
		}
		if depth := pathDepth(source); depth > bestDepth {
			best = &mounts[i]
			bestDepth = depth
		}
	}
	if best == nil {
		return nil, apperror.MountNotFound(path.String())
	}
	return best, nil
}

// ListAllBySource returns every mount point exposing the subtree rooted
// at exactly (ns, path).
func (r *MountRepository) ListAllBySource(ctx context.Context, ns string, path vpath.Path) ([]MountPoint, error) {
	var mounts []MountPoint
	err := r.store.conn(ctx).
		Where("source_ns_path = ? AND source_path_key = ?", ns, path.Key()).
		Find(&mounts).Error
	if err != nil {
		return nil, apperror.Internal("failed to load mount points", err)
	}
	return mounts, nil
}

// ListInFolder returns the mount points anchored directly in the folder
// at (ns, folder), ordered by display name case-insensitively.
func (r *MountRepository) ListInFolder(ctx context.Context, ns string, folder vpath.Path) ([]MountPoint, error) {
	var mounts []MountPoint
	err := r.store.conn(ctx).
		Where("folder_ns_path = ? AND folder_path_key = ?", ns, folder.Key()).
		Order("display_name_key").
		Find(&mounts).Error
	if err != nil {
		return nil, apperror.Internal("failed to load mount points", err)
	}
	return mounts, nil
}

// ListUnderFolderPrefix returns the mount points whose anchor folder is
// prefix or any descendant of it. Used when a subtree move or delete has
// to carry its mounts along.
func (r *MountRepository) ListUnderFolderPrefix(ctx context.Context, ns string, prefix vpath.Path) ([]MountPoint, error) {
	var mounts []MountPoint
	q := r.store.conn(ctx).Where("folder_ns_path = ?", ns)
	if !prefix.IsRoot() {
		base := escapeLike(prefix.Key())
		q = q.Where("(folder_path_key = ? OR folder_path_key LIKE ? ESCAPE '\\')", prefix.Key(), base+"/%")
	}
	if err := q.Find(&mounts).Error; err != nil {
		return nil, apperror.Internal("failed to load mount points", err)
	}
	return mounts, nil
}

// ListUnderSourcePrefix returns the mount points whose source root is
// prefix or any descendant of it.
func (r *MountRepository) ListUnderSourcePrefix(ctx context.Context, ns string, prefix vpath.Path) ([]MountPoint, error) {
	var mounts []MountPoint
	q := r.store.conn(ctx).Where("source_ns_path = ?", ns)
	if !prefix.IsRoot() {
		base := escapeLike(prefix.Key())
		q = q.Where("(source_path_key = ? OR source_path_key LIKE ? ESCAPE '\\')", prefix.Key(), base+"/%")
	}
	if err := q.Find(&mounts).Error; err != nil {
		return nil, apperror.Internal("failed to load mount points", err)
	}
	return mounts, nil
}

// ExistsAtDisplayPath reports whether a mount already occupies the name
// display inside the folder at (ns, folder).
func (r *MountRepository) ExistsAtDisplayPath(ctx context.Context, ns string, folder vpath.Path, display string) (bool, error) {
	var count int64
	err := r.store.conn(ctx).Model(&MountPoint{}).
		Where("folder_ns_path = ? AND folder_path_key = ? AND display_name_key = ?",
			ns, folder.Key(), vpath.Fold(display)).
		Count(&count).Error
	if err != nil {
		return false, apperror.Internal("failed to check mount existence", err)
	}
	return count > 0, nil
}

// CountByNamePattern counts the mounts in a folder whose case-folded
// display name matches re.
func (r *MountRepository) CountByNamePattern(ctx context.Context, ns string, folder vpath.Path, re *regexp.Regexp) (int64, error) {
	var names []string
	err := r.store.conn(ctx).Model(&MountPoint{}).
		Where("folder_ns_path = ? AND folder_path_key = ?", ns, folder.Key()).
		Pluck("display_name_key", &names).Error
	if err != nil {
		return 0, apperror.Internal("failed to list mount names", err)
	}
	var count int64
	for _, name := range names {
		if re.MatchString(name) {
			count++
		}
	}
	return count, nil
}

// Update persists the anchor and display columns of mount from the
// struct's current state.
func (r *MountRepository) Update(ctx context.Context, mount *MountPoint) error {
	mount.Normalize()
	err := r.store.conn(ctx).Model(&MountPoint{}).
		Where("id = ?", mount.ID).
		Updates(map[string]any{
			"source_ns_path":   mount.SourceNSPath,
			"source_path":      mount.SourcePath,
			"source_path_key":  mount.SourcePathKey,
			"folder_ns_path":   mount.FolderNSPath,
			"folder_path":      mount.FolderPath,
			"folder_path_key":  mount.FolderPathKey,
			"display_name":     mount.DisplayName,
			"display_name_key": mount.DisplayNameKey,
			"permissions":      mount.Permissions,
		}).Error
	if err != nil {
		return apperror.Internal("failed to update mount point", err)
	}
	return nil
}

// Delete removes the mount point with the given ID.
func (r *MountRepository) Delete(ctx context.Context, id string) error {
	res := r.store.conn(ctx).Where("id = ?", id).Delete(&MountPoint{})
	if res.Error != nil {
		return apperror.Internal("failed to delete mount point", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.MountNotFound(id)
	}
	return nil
}

// DeleteBatch removes several mount points by ID. Missing IDs are
// ignored.
func (r *MountRepository) DeleteBatch(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.store.conn(ctx).Where("id IN ?", ids).Delete(&MountPoint{}).Error
	if err != nil {
		return apperror.Internal("failed to delete mount points", err)
	}
	return nil
}

// pathDepth counts the segments of a path; the root has depth zero.
func pathDepth(p vpath.Path) int {
	if p.IsRoot() {
		return 0
	}
	depth := 1
	for _, c := range p.String() {
		if c == '/' {
			depth++
		}
	}
	return depth
}
