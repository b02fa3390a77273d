package metadata

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/driftbox/driftbox/pkg/apperror"
)

// ContentMetadataRepository persists extracted content descriptors keyed
// by file ID.
type ContentMetadataRepository struct {
	store *Store
}

// Save upserts the descriptor of a file. Re-processing overwrites the
// previous extraction.
func (r *ContentMetadataRepository) Save(ctx context.Context, cm *ContentMetadata) error {
	err := r.store.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "file_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data"}),
		}).
		Create(cm).Error
	if err != nil {
		return apperror.Internal("failed to save content metadata", err)
	}
	return nil
}

// GetByFileID returns the descriptor of the given file.
func (r *ContentMetadataRepository) GetByFileID(ctx context.Context, fileID string) (*ContentMetadata, error) {
	var cm ContentMetadata
	err := r.store.conn(ctx).Where("file_id = ?", fileID).First(&cm).Error
	if err != nil {
		return nil, convertNotFound(err, apperror.ContentMetadataNotFound())
	}
	return &cm, nil
}

// GetByFileIDBatch returns the descriptors present for the given files;
// files without a descriptor are skipped.
func (r *ContentMetadataRepository) GetByFileIDBatch(ctx context.Context, fileIDs []string) ([]ContentMetadata, error) {
	if len(fileIDs) == 0 {
		return nil, nil
	}
	var cms []ContentMetadata
	err := r.store.conn(ctx).Where("file_id IN ?", fileIDs).Find(&cms).Error
	if err != nil {
		return nil, apperror.Internal("failed to load content metadata", err)
	}
	return cms, nil
}

// DeleteByFileIDBatch removes the descriptors of the given files.
// Missing rows are ignored.
func (r *ContentMetadataRepository) DeleteByFileIDBatch(ctx context.Context, fileIDs []string) error {
	if len(fileIDs) == 0 {
		return nil
	}
	err := r.store.conn(ctx).Where("file_id IN ?", fileIDs).Delete(&ContentMetadata{}).Error
	if err != nil {
		return apperror.Internal("failed to delete content metadata", err)
	}
	return nil
}
