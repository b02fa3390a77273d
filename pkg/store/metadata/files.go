package metadata

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/vpath"
)

// saveBatchChunk bounds the row count per INSERT in batch operations.
const saveBatchChunk = 500

// FileRepository is the metadata CRUD surface for File rows. Every path
// comparison is case-insensitive via the path_key column.
type FileRepository struct {
	store *Store
}

// SizeDelta names a path and a signed size adjustment.
type SizeDelta struct {
	Path  vpath.Path
	Delta int64
}

// CHashPair associates a file ID with its computed content hash.
type CHashPair struct {
	FileID string
	CHash  string
}

// NSPrefix names a namespace-scoped path prefix.
type NSPrefix struct {
	NSPath string
	Prefix vpath.Path
}

// ListFilter narrows ListFiles results by media type.
type ListFilter struct {
	// Included keeps only these media types when non-empty.
	Included []string

	// Excluded drops these media types.
	Excluded []string

	Offset int
	Limit  int
}

// escapeLike escapes LIKE wildcards so stored paths can be used as
// literal prefixes. Patterns built here always use ESCAPE '\'.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

// descendantPattern matches every strict descendant of prefix.
func descendantPattern(prefix vpath.Path) string {
	if prefix.IsRoot() {
		return "%"
	}
	return escapeLike(prefix.Key()) + "/%"
}

// Save inserts a File row, reporting AlreadyExists on a unique-path
// violation.
func (r *FileRepository) Save(ctx context.Context, file *File) (*File, error) {
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	if file.ModifiedAt.IsZero() {
		file.ModifiedAt = time.Now().UTC()
	}
	file.Normalize()
	if err := r.store.conn(ctx).Create(file).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperror.AlreadyExists(file.Path)
		}
		return nil, apperror.Internal("failed to save file", err)
	}
	return file, nil
}

// SaveBatch inserts rows in chunks, skipping rows that conflict on the
// unique path. Needed by reindex, which races concurrent creates.
func (r *FileRepository) SaveBatch(ctx context.Context, files []*File) error {
	if len(files) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, f := range files {
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		if f.ModifiedAt.IsZero() {
			f.ModifiedAt = now
		}
		f.Normalize()
	}
	err := r.store.conn(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(files, saveBatchChunk).Error
	if err != nil {
		return apperror.Internal("failed to save file batch", err)
	}
	return nil
}

// GetByPath returns the row at (ns, path).
func (r *FileRepository) GetByPath(ctx context.Context, ns string, path vpath.Path) (*File, error) {
	var file File
	err := r.store.conn(ctx).
		Where("ns_path = ? AND path_key = ?", ns, path.Key()).
		First(&file).Error
	if err != nil {
		return nil, convertNotFound(err, apperror.NotFound(path.String()))
	}
	return &file, nil
}

// GetByPathBatch returns the rows present at the given paths; missing
// paths are skipped.
func (r *FileRepository) GetByPathBatch(ctx context.Context, ns string, paths []vpath.Path) ([]File, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	keys := make([]string, len(paths))
	for i, p := range paths {
		keys[i] = p.Key()
	}
	var files []File
	err := r.store.conn(ctx).
		Where("ns_path = ? AND path_key IN ?", ns, keys).
		Find(&files).Error
	if err != nil {
		return nil, apperror.Internal("failed to load files", err)
	}
	return files, nil
}

// GetByID returns the row with the given ID.
func (r *FileRepository) GetByID(ctx context.Context, id string) (*File, error) {
	var file File
	err := r.store.conn(ctx).Where("id = ?", id).First(&file).Error
	if err != nil {
		return nil, convertNotFound(err, apperror.NotFound(id))
	}
	return &file, nil
}

// GetByIDBatch returns the rows with the given IDs; missing IDs are
// skipped.
func (r *FileRepository) GetByIDBatch(ctx context.Context, ids []string) ([]File, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var files []File
	err := r.store.conn(ctx).Where("id IN ?", ids).Find(&files).Error
	if err != nil {
		return nil, apperror.Internal("failed to load files", err)
	}
	return files, nil
}

// GetByCHashBatch returns every row whose content hash is in chashes,
// across namespaces. Used to find surviving references before orphan
// thumbnail cleanup.
func (r *FileRepository) GetByCHashBatch(ctx context.Context, chashes []string) ([]File, error) {
	if len(chashes) == 0 {
		return nil, nil
	}
	var files []File
	err := r.store.conn(ctx).Where("content_hash IN ?", chashes).Find(&files).Error
	if err != nil {
		return nil, apperror.Internal("failed to load files", err)
	}
	return files, nil
}

// ExistsAtPath reports whether a row exists at (ns, path).
func (r *FileRepository) ExistsAtPath(ctx context.Context, ns string, path vpath.Path) (bool, error) {
	var count int64
	err := r.store.conn(ctx).Model(&File{}).
		Where("ns_path = ? AND path_key = ?", ns, path.Key()).
		Count(&count).Error
	if err != nil {
		return false, apperror.Internal("failed to check existence", err)
	}
	return count > 0, nil
}

// ExistsWithID reports whether a row with the given ID exists.
func (r *FileRepository) ExistsWithID(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.store.conn(ctx).Model(&File{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return false, apperror.Internal("failed to check existence", err)
	}
	return count > 0, nil
}

// IncrSize atomically adds each signed delta to the size of the named
// file. Zero deltas are skipped.
func (r *FileRepository) IncrSize(ctx context.Context, ns string, deltas []SizeDelta) error {
	for _, d := range deltas {
		if d.Delta == 0 {
			continue
		}
		err := r.store.conn(ctx).Model(&File{}).
			Where("ns_path = ? AND path_key = ?", ns, d.Path.Key()).
			UpdateColumn("size", clause.Expr{SQL: "size + ?", Vars: []any{d.Delta}}).Error
		if err != nil {
			return apperror.Internal("failed to update sizes", err)
		}
	}
	return nil
}

// IncrSizeBatch adds the same signed delta to every named file in one
// statement. A zero delta is a no-op.
func (r *FileRepository) IncrSizeBatch(ctx context.Context, ns string, paths []vpath.Path, delta int64) error {
	if delta == 0 || len(paths) == 0 {
		return nil
	}
	keys := make([]string, len(paths))
	for i, p := range paths {
		keys[i] = p.Key()
	}
	err := r.store.conn(ctx).Model(&File{}).
		Where("ns_path = ? AND path_key IN ?", ns, keys).
		UpdateColumn("size", clause.Expr{SQL: "size + ?", Vars: []any{delta}}).Error
	if err != nil {
		return apperror.Internal("failed to update sizes", err)
	}
	return nil
}

// CountFiles returns the number of rows in a namespace, folders
// included.
func (r *FileRepository) CountFiles(ctx context.Context, ns string) (int64, error) {
	var count int64
	err := r.store.conn(ctx).Model(&File{}).Where("ns_path = ?", ns).Count(&count).Error
	if err != nil {
		return 0, apperror.Internal("failed to count files", err)
	}
	return count, nil
}

// CountByPathPattern counts rows under prefix whose case-folded path
// matches re. The regular expression is evaluated in the application so
// both backends behave identically.
func (r *FileRepository) CountByPathPattern(ctx context.Context, ns string, prefix vpath.Path, re *regexp.Regexp) (int64, error) {
	rows, err := r.keysWithPrefix(ctx, ns, prefix)
	if err != nil {
		return 0, err
	}
	var count int64
	for _, key := range rows {
		if re.MatchString(key) {
			count++
		}
	}
	return count, nil
}

// keysWithPrefix returns the path_key of the prefix row itself plus all
// direct children. Suffixed-name probing only needs siblings.
func (r *FileRepository) keysWithPrefix(ctx context.Context, ns string, prefix vpath.Path) ([]string, error) {
	parent := prefix.Parent()
	var keys []string
	q := r.store.conn(ctx).Model(&File{}).Where("ns_path = ?", ns)
	if parent.IsRoot() {
		q = q.Where("path_key NOT LIKE ?", "%/%")
	} else {
		q = q.Where("path_key LIKE ? ESCAPE '\\' AND path_key NOT LIKE ? ESCAPE '\\'",
			escapeLike(parent.Key())+"/%", escapeLike(parent.Key())+"/%/%")
	}
	if err := q.Pluck("path_key", &keys).Error; err != nil {
		return nil, apperror.Internal("failed to list sibling paths", err)
	}
	return keys, nil
}

// Delete removes the row at (ns, path). Missing rows are reported as
// NotFound.
func (r *FileRepository) Delete(ctx context.Context, ns string, path vpath.Path) error {
	res := r.store.conn(ctx).
		Where("ns_path = ? AND path_key = ?", ns, path.Key()).
		Delete(&File{})
	if res.Error != nil {
		return apperror.Internal("failed to delete file", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound(path.String())
	}
	return nil
}

// DeleteBatch removes the rows at the given paths. Missing paths are
// ignored.
func (r *FileRepository) DeleteBatch(ctx context.Context, ns string, paths []vpath.Path) error {
	if len(paths) == 0 {
		return nil
	}
	keys := make([]string, len(paths))
	for i, p := range paths {
		keys[i] = p.Key()
	}
	err := r.store.conn(ctx).
		Where("ns_path = ? AND path_key IN ?", ns, keys).
		Delete(&File{}).Error
	if err != nil {
		return apperror.Internal("failed to delete files", err)
	}
	return nil
}

// DeleteAllWithPrefix removes every strict descendant of prefix.
func (r *FileRepository) DeleteAllWithPrefix(ctx context.Context, ns string, prefix vpath.Path) error {
	err := r.store.conn(ctx).
		Where("ns_path = ? AND path_key LIKE ? ESCAPE '\\'", ns, descendantPattern(prefix)).
		Delete(&File{}).Error
	if err != nil {
		return apperror.Internal("failed to delete descendants", err)
	}
	return nil
}

// DeleteAllWithPrefixBatch removes the descendants of several prefixes,
// possibly across namespaces.
func (r *FileRepository) DeleteAllWithPrefixBatch(ctx context.Context, prefixes []NSPrefix) error {
	for _, p := range prefixes {
		if err := r.DeleteAllWithPrefix(ctx, p.NSPath, p.Prefix); err != nil {
			return err
		}
	}
	return nil
}

// ReplacePathPrefix rewrites every strict descendant of (fromNS, from) to
// live under (toNS, to), preserving each descendant's own casing below
// the moved prefix.
func (r *FileRepository) ReplacePathPrefix(ctx context.Context, fromNS string, from vpath.Path, toNS string, to vpath.Path) error {
	var rows []File
	err := r.store.conn(ctx).
		Where("ns_path = ? AND path_key LIKE ? ESCAPE '\\'", fromNS, descendantPattern(from)).
		Find(&rows).Error
	if err != nil {
		return apperror.Internal("failed to load descendants", err)
	}
	for i := range rows {
		row := &rows[i]
		rel := vpath.New(row.Path).RelativeTo(from)
		newPath := to.Join(rel)
		err := r.store.conn(ctx).Model(&File{}).
			Where("id = ?", row.ID).
			Updates(map[string]any{
				"ns_path":  toNS,
				"path":     newPath.String(),
				"path_key": newPath.Key(),
				"name":     newPath.Name(),
			}).Error
		if err != nil {
			return apperror.Internal("failed to rewrite descendant path", err)
		}
	}
	return nil
}

// Update persists the mutable columns of file (namespace, path, name,
// size, content hash, modified time) from the struct's current state.
func (r *FileRepository) Update(ctx context.Context, file *File) error {
	file.Normalize()
	err := r.store.conn(ctx).Model(&File{}).
		Where("id = ?", file.ID).
		Updates(map[string]any{
			"ns_path":      file.NSPath,
			"path":         file.Path,
			"path_key":     file.PathKey,
			"name":         file.Name,
			"size":         file.Size,
			"content_hash": file.ContentHash,
			"modified_at":  file.ModifiedAt,
		}).Error
	if err != nil {
		if isUniqueConstraintError(err) {
			return apperror.AlreadyExists(file.Path)
		}
		return apperror.Internal("failed to update file", err)
	}
	return nil
}

// ListFiles pages through the rows of a namespace with optional media
// type filters, ordered by path.
func (r *FileRepository) ListFiles(ctx context.Context, ns string, filter ListFilter) ([]File, error) {
	q := r.store.conn(ctx).Where("ns_path = ?", ns)
	if len(filter.Included) > 0 {
		q = q.Where("media_type IN ?", filter.Included)
	}
	if len(filter.Excluded) > 0 {
		q = q.Where("media_type NOT IN ?", filter.Excluded)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var files []File
	if err := q.Order("path_key").Find(&files).Error; err != nil {
		return nil, apperror.Internal("failed to list files", err)
	}
	return files, nil
}

// ListWithPrefix returns the direct children of the folder at prefix,
// folders first, then names ascending case-insensitively. Mount points
// anchored at the folder are merged in by the caller, which also owns
// the display-name ordering across both kinds.
func (r *FileRepository) ListWithPrefix(ctx context.Context, ns string, prefix vpath.Path) ([]File, error) {
	q := r.store.conn(ctx).Where("ns_path = ?", ns)
	if prefix.IsRoot() {
		q = q.Where("path_key NOT LIKE ? AND path_key != ?", "%/%", vpath.Root)
	} else {
		base := escapeLike(prefix.Key())
		q = q.Where("path_key LIKE ? ESCAPE '\\' AND path_key NOT LIKE ? ESCAPE '\\'",
			base+"/%", base+"/%/%")
	}
	var files []File
	err := q.Order("media_type = 'application/directory' DESC").
		Order("LOWER(name)").
		Find(&files).Error
	if err != nil {
		return nil, apperror.Internal("failed to list folder", err)
	}
	return files, nil
}

// SetCHashBatch records computed content hashes by file ID.
func (r *FileRepository) SetCHashBatch(ctx context.Context, pairs []CHashPair) error {
	if len(pairs) == 0 {
		return nil
	}
	conn := r.store.conn(ctx)
	for _, p := range pairs {
		err := conn.Model(&File{}).
			Where("id = ?", p.FileID).
			UpdateColumn("content_hash", p.CHash).Error
		if err != nil {
			return apperror.Internal("failed to set content hash", err)
		}
	}
	return nil
}
