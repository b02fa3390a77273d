package metadata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/driftbox/driftbox/pkg/apperror"
)

// DefaultTxAttempts is the default number of attempts for an atomic block.
const DefaultTxAttempts = 3

// retryBackoff is the pause between attempts after a serialization
// conflict.
const retryBackoff = 10 * time.Millisecond

// Store owns the metadata database connection and exposes the
// repositories. All repositories share one gorm handle and observe the
// ambient transaction carried in the context by Atomic.
type Store struct {
	db *gorm.DB

	Files            *FileRepository
	Mounts           *MountRepository
	Fingerprints     *FingerprintRepository
	ContentMeta      *ContentMetadataRepository
	PendingDeletions *PendingDeletionRepository
	Namespaces       *NamespaceRepository
	Users            *UserRepository
	Accounts         *AccountRepository
	SharedLinks      *SharedLinkRepository
	FileMembers      *FileMemberRepository
	Audit            *AuditTrailRepository
}

// New opens the metadata database and migrates the schema.
func New(config *Config) (*Store, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	db, err := open(config)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}
	return newStore(db), nil
}

func newStore(db *gorm.DB) *Store {
	s := &Store{db: db}
	s.Files = &FileRepository{store: s}
	s.Mounts = &MountRepository{store: s}
	s.Fingerprints = &FingerprintRepository{store: s}
	s.ContentMeta = &ContentMetadataRepository{store: s}
	s.PendingDeletions = &PendingDeletionRepository{store: s}
	s.Namespaces = &NamespaceRepository{store: s}
	s.Users = &UserRepository{store: s}
	s.Accounts = &AccountRepository{store: s}
	s.SharedLinks = &SharedLinkRepository{store: s}
	s.FileMembers = &FileMemberRepository{store: s}
	s.Audit = &AuditTrailRepository{store: s}
	return s
}

// DB returns the underlying gorm handle; used by the readiness probe
// and tests.
func (s *Store) DB() *gorm.DB { return s.db }

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// txKey carries the ambient transaction through a context.
type txKey struct{}

// conn returns the ambient transaction when inside an atomic block, and
// the base connection otherwise.
func (s *Store) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

// Atomic runs fn inside a retryable transaction with the default number
// of attempts.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.AtomicN(ctx, DefaultTxAttempts, fn)
}

// AtomicN runs fn inside a transaction, retrying up to attempts times on
// serialization conflicts. Nested atomic blocks are absorbed by the outer
// one: when the context already carries a transaction, fn runs in it
// directly and the outer block owns commit, rollback and retries.
func (s *Store) AtomicN(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff):
			}
		}
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(context.WithValue(ctx, txKey{}, tx))
		})
		if err == nil || !isSerializationError(err) {
			return err
		}
	}
	return apperror.Internal("transaction failed after retries", err)
}

// isSerializationError reports whether err is a transient conflict worth
// retrying: PostgreSQL serialization/deadlock failures or SQLite busy and
// locked states.
func isSerializationError(err error) bool {
	if err == nil {
		return false
	}
	// Domain errors are never retried, whatever their cause chain holds.
	var appErr *apperror.Error
	if errors.As(err, &appErr) && appErr.Code != apperror.CodeInternal {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 40001") || // serialization_failure
		strings.Contains(msg, "SQLSTATE 40P01") || // deadlock_detected
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

// isUniqueConstraintError checks if the error is a unique constraint
// violation on either backend.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}

// convertNotFound converts gorm.ErrRecordNotFound to the given domain
// error.
func convertNotFound(err error, notFoundErr error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFoundErr
	}
	return err
}
