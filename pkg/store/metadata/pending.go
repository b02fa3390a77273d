package metadata

import (
	"context"

	"github.com/google/uuid"

	"github.com/driftbox/driftbox/pkg/apperror"
)

// PendingDeletionRepository persists the queue of blobs awaiting purge.
type PendingDeletionRepository struct {
	store *Store
}

// SaveBatch inserts pending-deletion records in chunks.
func (r *PendingDeletionRepository) SaveBatch(ctx context.Context, records []*FilePendingDeletion) error {
	if len(records) == 0 {
		return nil
	}
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
	}
	err := r.store.conn(ctx).CreateInBatches(records, saveBatchChunk).Error
	if err != nil {
		return apperror.Internal("failed to save pending deletions", err)
	}
	return nil
}

// GetByID returns the pending-deletion record with the given ID.
func (r *PendingDeletionRepository) GetByID(ctx context.Context, id string) (*FilePendingDeletion, error) {
	var rec FilePendingDeletion
	err := r.store.conn(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		return nil, convertNotFound(err, apperror.NotFound(id))
	}
	return &rec, nil
}

// List returns the oldest pending-deletion records, up to limit.
func (r *PendingDeletionRepository) List(ctx context.Context, limit int) ([]FilePendingDeletion, error) {
	q := r.store.conn(ctx).Order("created_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []FilePendingDeletion
	if err := q.Find(&recs).Error; err != nil {
		return nil, apperror.Internal("failed to list pending deletions", err)
	}
	return recs, nil
}

// Delete removes a consumed record. Deleting a record twice is harmless.
func (r *PendingDeletionRepository) Delete(ctx context.Context, id string) error {
	err := r.store.conn(ctx).Where("id = ?", id).Delete(&FilePendingDeletion{}).Error
	if err != nil {
		return apperror.Internal("failed to delete pending deletion", err)
	}
	return nil
}
