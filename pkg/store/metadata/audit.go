package metadata

import (
	"context"

	"github.com/google/uuid"

	"github.com/driftbox/driftbox/pkg/apperror"
)

// AuditTrailRepository persists the activity feed.
type AuditTrailRepository struct {
	store *Store
}

// Save appends an entry to the trail.
func (r *AuditTrailRepository) Save(ctx context.Context, entry *AuditTrail) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if err := r.store.conn(ctx).Create(entry).Error; err != nil {
		return apperror.Internal("failed to save audit entry", err)
	}
	return nil
}

// ListByUser returns the newest entries for a user, up to limit.
func (r *AuditTrailRepository) ListByUser(ctx context.Context, userID string, limit int) ([]AuditTrail, error) {
	q := r.store.conn(ctx).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []AuditTrail
	if err := q.Find(&entries).Error; err != nil {
		return nil, apperror.Internal("failed to list audit entries", err)
	}
	return entries, nil
}
