// Package namespace implements the user-facing policy layer over the
// file service: namespace bootstrap, upload limits and quotas, trash
// semantics, duplicate search and the audit trail.
package namespace

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/driftbox/driftbox/internal/logger"
	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/content"
	"github.com/driftbox/driftbox/pkg/content/dedup"
	"github.com/driftbox/driftbox/pkg/fileservice"
	"github.com/driftbox/driftbox/pkg/store/metadata"
	"github.com/driftbox/driftbox/pkg/vpath"
)

// TrashFolder is the per-namespace folder holding soft-deleted items.
const TrashFolder = "Trash"

// JobProcessPendingDeletion is the worker job purging deferred blobs.
const JobProcessPendingDeletion = "process_file_pending_deletion"

// DefaultMaxUploadSize caps a single upload.
const DefaultMaxUploadSize = 10 * 1024 * 1024 * 1024

// Config tunes the policy layer.
type Config struct {
	// MaxUploadSize rejects single uploads above this many bytes.
	MaxUploadSize int64 `mapstructure:"max_upload_size" yaml:"max_upload_size"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.MaxUploadSize == 0 {
		c.MaxUploadSize = DefaultMaxUploadSize
	}
}

// Service is the policy layer.
type Service struct {
	files     *fileservice.Service
	pipeline  *content.Service
	meta      *metadata.Store
	scheduler content.Scheduler
	cfg       Config
}

// NewService wires the policy layer. scheduler may be nil, in which case
// deferred work runs inline.
func NewService(files *fileservice.Service, pipeline *content.Service, scheduler content.Scheduler, cfg Config) *Service {
	cfg.ApplyDefaults()
	return &Service{
		files:     files,
		pipeline:  pipeline,
		meta:      files.Core().Meta(),
		scheduler: scheduler,
		cfg:       cfg,
	}
}

// Files exposes the underlying file service.
func (s *Service) Files() *fileservice.Service { return s.files }

// Create provisions a namespace for a user: the row, the root folder and
// the trash folder.
func (s *Service) Create(ctx context.Context, path, ownerID string) (*metadata.Namespace, error) {
	ns, err := s.meta.Namespaces.Save(ctx, &metadata.Namespace{Path: path, OwnerID: ownerID})
	if err != nil {
		return nil, err
	}
	if _, err := s.files.Core().CreateFolder(ctx, path, vpath.New(TrashFolder)); err != nil {
		return nil, err
	}
	logger.InfoCtx(ctx, "namespace created", "ns", path, "owner", ownerID)
	return ns, nil
}

// AddFile uploads content at (ns, path) after the policy checks: the
// path must not target the trash, size must fit the upload limit and the
// account quota. The content pipeline runs asynchronously afterwards.
func (s *Service) AddFile(ctx context.Context, ns string, path vpath.Path, contents io.Reader, size int64) (*fileservice.File, error) {
	if s.inTrash(path) {
		return nil, apperror.MalformedPath("Can't upload into the trash.")
	}
	if size > s.cfg.MaxUploadSize {
		return nil, apperror.TooLarge(fmt.Sprintf("Upload exceeds the %d byte limit.", s.cfg.MaxUploadSize))
	}
	if err := s.checkQuota(ctx, ns, size); err != nil {
		return nil, err
	}

	file, err := s.files.CreateFile(ctx, ns, path, contents)
	if err != nil {
		return nil, err
	}
	if err := s.pipeline.ProcessAsync(ctx, file.ID); err != nil {
		return nil, err
	}
	s.audit(ctx, ns, "file_uploaded", file.Path)
	return file, nil
}

// DeleteItem removes the item at (ns, path) permanently, deferring the
// blob purge to the worker. The namespace root and the trash folder
// itself cannot be deleted.
func (s *Service) DeleteItem(ctx context.Context, ns string, path vpath.Path) error {
	if err := s.assertDeletable(path); err != nil {
		return err
	}
	_, pending, err := s.files.DeleteBatch(ctx, ns, []vpath.Path{path})
	if err != nil {
		return err
	}
	if err := s.schedulePurge(ctx, pending); err != nil {
		return err
	}
	s.audit(ctx, ns, "item_deleted", path.String())
	return nil
}

// DeleteBatch removes several items at once, sharing one purge job.
func (s *Service) DeleteBatch(ctx context.Context, ns string, paths []vpath.Path) error {
	for _, p := range paths {
		if err := s.assertDeletable(p); err != nil {
			return err
		}
	}
	_, pending, err := s.files.DeleteBatch(ctx, ns, paths)
	if err != nil {
		return err
	}
	if err := s.schedulePurge(ctx, pending); err != nil {
		return err
	}
	for _, p := range paths {
		s.audit(ctx, ns, "item_deleted", p.String())
	}
	return nil
}

// MoveItem renames or moves an item. The namespace root and the trash
// folder are immovable.
func (s *Service) MoveItem(ctx context.Context, ns string, from, to vpath.Path) (*fileservice.File, error) {
	if from.IsRoot() || s.isTrashRoot(from) {
		return nil, apperror.ActionNotAllowed("Can't move this folder.")
	}
	if s.isTrashRoot(to) {
		return nil, apperror.AlreadyExists(to.String())
	}
	file, err := s.files.Move(ctx, ns, from, to)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, ns, "item_moved", file.Path)
	return file, nil
}

// MoveItemToTrash soft-deletes by moving the item under the trash
// folder. Name collisions get a microsecond timestamp suffix.
func (s *Service) MoveItemToTrash(ctx context.Context, ns string, path vpath.Path) (*fileservice.File, error) {
	if err := s.assertDeletable(path); err != nil {
		return nil, err
	}

	dest := vpath.New(TrashFolder).Join(path.Name())
	exists, err := s.files.Core().ExistsAtPath(ctx, ns, dest)
	if err != nil {
		return nil, err
	}
	if exists {
		stamped := fmt.Sprintf("%s %d", dest.Stem(), time.Now().UnixMicro())
		dest = dest.WithStem(stamped)
	}

	file, err := s.files.Move(ctx, ns, path, dest)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, ns, "item_trashed", path.String())
	return file, nil
}

// EmptyTrash drops everything under the trash folder.
func (s *Service) EmptyTrash(ctx context.Context, ns string) error {
	if err := s.files.EmptyFolder(ctx, ns, vpath.New(TrashFolder)); err != nil {
		return err
	}
	s.audit(ctx, ns, "trash_emptied", TrashFolder)
	return nil
}

// FindDuplicates returns groups of near-duplicate images under (ns,
// folder), hydrated to file rows.
func (s *Service) FindDuplicates(ctx context.Context, ns string, folder vpath.Path) ([][]metadata.File, error) {
	groups, err := s.pipeline.Dedup().FindInFolder(ctx, ns, folder, dedup.DefaultMaxDistance)
	if err != nil {
		return nil, err
	}
	var out [][]metadata.File
	for _, ids := range groups {
		files, err := s.meta.Files.GetByIDBatch(ctx, ids)
		if err != nil {
			return nil, err
		}
		if len(files) >= 2 {
			out = append(out, files)
		}
	}
	return out, nil
}

// Reindex rebuilds the namespace metadata from the object store and
// restores the structural folders the rebuild may have dropped.
func (s *Service) Reindex(ctx context.Context, ns string) error {
	if _, err := s.files.Core().Reindex(ctx, ns, vpath.New(".")); err != nil {
		return err
	}
	_, err := s.files.Core().CreateFolder(ctx, ns, vpath.New(TrashFolder))
	if err != nil && !apperror.IsCode(err, apperror.CodeAlreadyExists) {
		return err
	}
	s.audit(ctx, ns, "namespace_reindexed", ".")
	return nil
}

// Activity returns the latest audit entries of the namespace owner.
func (s *Service) Activity(ctx context.Context, ns string, limit int) ([]metadata.AuditTrail, error) {
	nsRow, err := s.meta.Namespaces.GetByPath(ctx, ns)
	if err != nil {
		return nil, err
	}
	return s.meta.Audit.ListByUser(ctx, nsRow.OwnerID, limit)
}

func (s *Service) assertDeletable(path vpath.Path) error {
	if path.IsRoot() {
		return apperror.ActionNotAllowed("Can't delete the namespace root.")
	}
	if s.isTrashRoot(path) {
		return apperror.ActionNotAllowed("Can't delete the trash folder.")
	}
	return nil
}

func (s *Service) isTrashRoot(path vpath.Path) bool {
	return path.Key() == vpath.Fold(TrashFolder)
}

func (s *Service) inTrash(path vpath.Path) bool {
	return path.IsRelativeTo(vpath.New(TrashFolder))
}

// checkQuota verifies used + size fits the owner's storage quota. Users
// without an account row are unlimited.
func (s *Service) checkQuota(ctx context.Context, ns string, size int64) error {
	nsRow, err := s.meta.Namespaces.GetByPath(ctx, ns)
	if apperror.IsCode(err, apperror.CodeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	account, err := s.meta.Accounts.GetByUserID(ctx, nsRow.OwnerID)
	if apperror.IsCode(err, apperror.CodeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if account.StorageQuota == nil {
		return nil
	}

	root, err := s.meta.Files.GetByPath(ctx, ns, vpath.New("."))
	used := int64(0)
	if err == nil {
		used = root.Size
	} else if !apperror.IsCode(err, apperror.CodeNotFound) {
		return err
	}
	if used+size > *account.StorageQuota {
		return apperror.StorageQuotaExceeded()
	}
	return nil
}

func (s *Service) schedulePurge(ctx context.Context, pending []string) error {
	if len(pending) == 0 {
		return nil
	}
	if s.scheduler == nil {
		_, err := s.files.Core().ProcessFilePendingDeletion(ctx, pending)
		return err
	}
	ids := make([]any, len(pending))
	for i, id := range pending {
		ids[i] = id
	}
	_, err := s.scheduler.Enqueue(ctx, JobProcessPendingDeletion, map[string]any{"ids": ids})
	return err
}

func (s *Service) audit(ctx context.Context, ns, action, path string) {
	nsRow, err := s.meta.Namespaces.GetByPath(ctx, ns)
	if err != nil {
		return
	}
	err = s.meta.Audit.Save(ctx, &metadata.AuditTrail{
		UserID: nsRow.OwnerID,
		Action: action,
		NSPath: ns,
		Path:   path,
	})
	if err != nil {
		logger.WarnCtx(ctx, "audit write failed", "ns", ns, "action", action, "error", err)
	}
}
