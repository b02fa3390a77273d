package metadata

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/driftbox/driftbox/pkg/apperror"
)

// UserRepository persists account holders.
type UserRepository struct {
	store *Store
}

// Save inserts a user.
func (r *UserRepository) Save(ctx context.Context, user *User) (*User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if err := r.store.conn(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperror.UserAlreadyExists()
		}
		return nil, apperror.Internal("failed to save user", err)
	}
	return user, nil
}

// GetByID returns the user with the given ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	var user User
	err := r.store.conn(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, convertNotFound(err, apperror.UserNotFound())
	}
	return &user, nil
}

// GetByUsername returns the user with the given username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := r.store.conn(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, convertNotFound(err, apperror.UserNotFound())
	}
	return &user, nil
}

// AccountRepository persists per-user limits.
type AccountRepository struct {
	store *Store
}

// Save upserts the account row of a user.
func (r *AccountRepository) Save(ctx context.Context, account *Account) error {
	err := r.store.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"storage_quota"}),
		}).
		Create(account).Error
	if err != nil {
		return apperror.Internal("failed to save account", err)
	}
	return nil
}

// GetByUserID returns the account of the given user. Users without an
// account row have no limits; callers treat NotFound as unlimited.
func (r *AccountRepository) GetByUserID(ctx context.Context, userID string) (*Account, error) {
	var account Account
	err := r.store.conn(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		return nil, convertNotFound(err, apperror.NotFound(userID))
	}
	return &account, nil
}
