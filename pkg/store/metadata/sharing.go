package metadata

import (
	"context"

	"github.com/google/uuid"

	"github.com/driftbox/driftbox/pkg/apperror"
)

// SharedLinkRepository persists public file links.
type SharedLinkRepository struct {
	store *Store
}

// Save inserts a shared link. The unique file constraint surfaces as
// AlreadyExists so the service can fall back to the existing link.
func (r *SharedLinkRepository) Save(ctx context.Context, link *SharedLink) (*SharedLink, error) {
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	if err := r.store.conn(ctx).Create(link).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperror.AlreadyExists(link.FileID)
		}
		return nil, apperror.Internal("failed to save shared link", err)
	}
	return link, nil
}

// GetByFileID returns the live link of the given file.
func (r *SharedLinkRepository) GetByFileID(ctx context.Context, fileID string) (*SharedLink, error) {
	var link SharedLink
	err := r.store.conn(ctx).Where("file_id = ?", fileID).First(&link).Error
	if err != nil {
		return nil, convertNotFound(err, apperror.SharedLinkNotFound())
	}
	return &link, nil
}

// GetByToken resolves a public token to its link.
func (r *SharedLinkRepository) GetByToken(ctx context.Context, token string) (*SharedLink, error) {
	var link SharedLink
	err := r.store.conn(ctx).Where("token = ?", token).First(&link).Error
	if err != nil {
		return nil, convertNotFound(err, apperror.SharedLinkNotFound())
	}
	return &link, nil
}

// DeleteByFileIDBatch revokes the links of the given files. Missing rows
// are ignored.
func (r *SharedLinkRepository) DeleteByFileIDBatch(ctx context.Context, fileIDs []string) error {
	if len(fileIDs) == 0 {
		return nil
	}
	err := r.store.conn(ctx).Where("file_id IN ?", fileIDs).Delete(&SharedLink{}).Error
	if err != nil {
		return apperror.Internal("failed to delete shared links", err)
	}
	return nil
}

// FileMemberRepository persists per-file membership grants.
type FileMemberRepository struct {
	store *Store
}

// Save inserts a membership grant. Granting the same user twice reports
// AlreadyExists.
func (r *FileMemberRepository) Save(ctx context.Context, member *FileMember) (*FileMember, error) {
	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	if err := r.store.conn(ctx).Create(member).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperror.AlreadyExists(member.FileID)
		}
		return nil, apperror.Internal("failed to save file member", err)
	}
	return member, nil
}

// Get returns the grant of user on file.
func (r *FileMemberRepository) Get(ctx context.Context, fileID, userID string) (*FileMember, error) {
	var member FileMember
	err := r.store.conn(ctx).
		Where("file_id = ? AND user_id = ?", fileID, userID).
		First(&member).Error
	if err != nil {
		return nil, convertNotFound(err, apperror.NotFound(fileID))
	}
	return &member, nil
}

// ListByFileID returns every grant on a file.
func (r *FileMemberRepository) ListByFileID(ctx context.Context, fileID string) ([]FileMember, error) {
	var members []FileMember
	err := r.store.conn(ctx).Where("file_id = ?", fileID).Find(&members).Error
	if err != nil {
		return nil, apperror.Internal("failed to list file members", err)
	}
	return members, nil
}

// ListByUserID returns every grant held by a user.
func (r *FileMemberRepository) ListByUserID(ctx context.Context, userID string) ([]FileMember, error) {
	var members []FileMember
	err := r.store.conn(ctx).Where("user_id = ?", userID).Find(&members).Error
	if err != nil {
		return nil, apperror.Internal("failed to list file members", err)
	}
	return members, nil
}

// Delete revokes the grant of user on file.
func (r *FileMemberRepository) Delete(ctx context.Context, fileID, userID string) error {
	res := r.store.conn(ctx).
		Where("file_id = ? AND user_id = ?", fileID, userID).
		Delete(&FileMember{})
	if res.Error != nil {
		return apperror.Internal("failed to delete file member", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound(fileID)
	}
	return nil
}
