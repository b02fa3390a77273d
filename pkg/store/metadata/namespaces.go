package metadata

import (
	"context"

	"github.com/google/uuid"

	"github.com/driftbox/driftbox/pkg/apperror"
)

// NamespaceRepository persists namespace roots.
type NamespaceRepository struct {
	store *Store
}

// Save inserts a namespace.
func (r *NamespaceRepository) Save(ctx context.Context, ns *Namespace) (*Namespace, error) {
	if ns.ID == "" {
		ns.ID = uuid.NewString()
	}
	if err := r.store.conn(ctx).Create(ns).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperror.AlreadyExists(ns.Path)
		}
		return nil, apperror.Internal("failed to save namespace", err)
	}
	return ns, nil
}

// GetByPath returns the namespace with the given path.
func (r *NamespaceRepository) GetByPath(ctx context.Context, path string) (*Namespace, error) {
	var ns Namespace
	err := r.store.conn(ctx).Where("path = ?", path).First(&ns).Error
	if err != nil {
		return nil, convertNotFound(err, apperror.NotFound(path))
	}
	return &ns, nil
}

// ListByOwner returns the namespaces owned by the given user.
func (r *NamespaceRepository) ListByOwner(ctx context.Context, ownerID string) ([]Namespace, error) {
	var nss []Namespace
	err := r.store.conn(ctx).Where("owner_id = ?", ownerID).Order("path").Find(&nss).Error
	if err != nil {
		return nil, apperror.Internal("failed to list namespaces", err)
	}
	return nss, nil
}

// ExistsAtPath reports whether the namespace exists.
func (r *NamespaceRepository) ExistsAtPath(ctx context.Context, path string) (bool, error) {
	var count int64
	err := r.store.conn(ctx).Model(&Namespace{}).Where("path = ?", path).Count(&count).Error
	if err != nil {
		return false, apperror.Internal("failed to check namespace existence", err)
	}
	return count > 0, nil
}
