package metadata

import (
	"context"

	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/vpath"
)

// FingerprintRepository persists perceptual fingerprints keyed by file ID.
type FingerprintRepository struct {
	store *Store
}

// Save inserts a fingerprint. A second insert for the same file reports
// FingerprintAlreadyExists.
func (r *FingerprintRepository) Save(ctx context.Context, fp *Fingerprint) error {
	if err := r.store.conn(ctx).Create(fp).Error; err != nil {
		if isUniqueConstraintError(err) {
			return apperror.FingerprintAlreadyExists()
		}
		return apperror.Internal("failed to save fingerprint", err)
	}
	return nil
}

// GetByFileID returns the fingerprint of the given file.
func (r *FingerprintRepository) GetByFileID(ctx context.Context, fileID string) (*Fingerprint, error) {
	var fp Fingerprint
	err := r.store.conn(ctx).Where("file_id = ?", fileID).First(&fp).Error
	if err != nil {
		return nil, convertNotFound(err, apperror.NotFound(fileID))
	}
	return &fp, nil
}

// IntersectAllWithPrefix returns the fingerprints of every file in the
// subtree rooted at prefix (the anchor included), joined against the
// files table on the case-folded path.
func (r *FingerprintRepository) IntersectAllWithPrefix(ctx context.Context, ns string, prefix vpath.Path) ([]Fingerprint, error) {
	q := r.store.conn(ctx).Model(&Fingerprint{}).
		Joins("JOIN files ON files.id = fingerprints.file_id").
		Where("files.ns_path = ?", ns)
	if !prefix.IsRoot() {
		base := escapeLike(prefix.Key())
		q = q.Where("(files.path_key = ? OR files.path_key LIKE ? ESCAPE '\\')", prefix.Key(), base+"/%")
	}
	var fps []Fingerprint
	if err := q.Find(&fps).Error; err != nil {
		return nil, apperror.Internal("failed to load fingerprints", err)
	}
	return fps, nil
}

// DeleteByFileIDBatch removes the fingerprints of the given files.
// Missing rows are ignored.
func (r *FingerprintRepository) DeleteByFileIDBatch(ctx context.Context, fileIDs []string) error {
	if len(fileIDs) == 0 {
		return nil
	}
	err := r.store.conn(ctx).Where("file_id IN ?", fileIDs).Delete(&Fingerprint{}).Error
	if err != nil {
		return apperror.Internal("failed to delete fingerprints", err)
	}
	return nil
}
