// Package metadata implements the authoritative metadata database of the
// Driftbox core on GORM, supporting SQLite and PostgreSQL backends.
//
// Paths are stored twice: with their original casing for display and the
// object-store layout, and case-folded (the *_key columns) for every
// comparison, join and uniqueness constraint.
package metadata

import (
	"strings"
	"time"

	"github.com/driftbox/driftbox/pkg/vpath"
)

// File is one row of the namespace tree: a regular file or a folder.
type File struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	NSPath      string    `gorm:"column:ns_path;size:255;not null;uniqueIndex:ux_files_ns_path,priority:1;index:ix_files_ns_chash,priority:1" json:"ns_path"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Path        string    `gorm:"not null" json:"path"`
	PathKey     string    `gorm:"column:path_key;not null;uniqueIndex:ux_files_ns_path,priority:2" json:"-"`
	Size        int64     `gorm:"not null;default:0" json:"size"`
	ContentHash string    `gorm:"column:content_hash;index:ix_files_ns_chash,priority:2" json:"content_hash"`
	MediaType   string    `gorm:"size:255;not null" json:"media_type"`
	ModifiedAt  time.Time `gorm:"not null" json:"modified_at"`
}

// TableName returns the table name for File.
func (File) TableName() string { return "files" }

// VPath returns the file path as a value type.
func (f *File) VPath() vpath.Path { return vpath.New(f.Path) }

// IsFolder reports whether the row is a folder.
func (f *File) IsFolder() bool { return f.MediaType == "application/directory" }

// Normalize recomputes the derived columns before persisting.
func (f *File) Normalize() {
	p := vpath.New(f.Path)
	f.Path = p.String()
	f.PathKey = p.Key()
	f.Name = p.Name()
}

// Namespace is a rooted per-user tree of files.
type Namespace struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Path      string    `gorm:"uniqueIndex;size:255;not null" json:"path"`
	OwnerID   string    `gorm:"size:36;not null;index" json:"owner_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for Namespace.
func (Namespace) TableName() string { return "namespaces" }

// MountPoint exposes the subtree at (SourceNSPath, SourcePath) inside
// FolderNSPath as a child of FolderPath named DisplayName.
type MountPoint struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	SourceNSPath   string    `gorm:"column:source_ns_path;size:255;not null;index:ix_mounts_source,priority:1" json:"source_ns_path"`
	SourcePath     string    `gorm:"not null" json:"source_path"`
	SourcePathKey  string    `gorm:"column:source_path_key;not null;index:ix_mounts_source,priority:2" json:"-"`
	FolderNSPath   string    `gorm:"column:folder_ns_path;size:255;not null;index:ix_mounts_folder,priority:1" json:"folder_ns_path"`
	FolderPath     string    `gorm:"not null" json:"folder_path"`
	FolderPathKey  string    `gorm:"column:folder_path_key;not null;index:ix_mounts_folder,priority:2" json:"-"`
	DisplayName    string    `gorm:"size:255;not null" json:"display_name"`
	DisplayNameKey string    `gorm:"column:display_name_key;size:255;not null" json:"-"`
	Permissions    string    `gorm:"size:255;not null" json:"permissions"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for MountPoint.
func (MountPoint) TableName() string { return "mount_points" }

// Normalize recomputes the derived columns before persisting.
func (m *MountPoint) Normalize() {
	sp := vpath.New(m.SourcePath)
	m.SourcePath = sp.String()
	m.SourcePathKey = sp.Key()
	fp := vpath.New(m.FolderPath)
	m.FolderPath = fp.String()
	m.FolderPathKey = fp.Key()
	m.DisplayNameKey = strings.ToLower(m.DisplayName)
}

// DisplayPath is the path where the mount appears in the target namespace.
func (m *MountPoint) DisplayPath() vpath.Path {
	return vpath.New(m.FolderPath).Join(m.DisplayName)
}

// Source returns the mounted subtree root as a path value.
func (m *MountPoint) Source() vpath.Path { return vpath.New(m.SourcePath) }

// CanView and friends interpret the permission list. An empty list means
// full permissions (owner mounts).
func (m *MountPoint) CanView() bool     { return m.hasPermission("view") }
func (m *MountPoint) CanDownload() bool { return m.hasPermission("download") }
func (m *MountPoint) CanUpload() bool   { return m.hasPermission("upload") }
func (m *MountPoint) CanMove() bool     { return m.hasPermission("move") }
func (m *MountPoint) CanDelete() bool   { return m.hasPermission("delete") }
func (m *MountPoint) CanReshare() bool  { return m.hasPermission("reshare") }

func (m *MountPoint) hasPermission(name string) bool {
	if m.Permissions == "" {
		return true
	}
	for _, p := range strings.Split(m.Permissions, ",") {
		if strings.TrimSpace(p) == name {
			return true
		}
	}
	return false
}

// Fingerprint is a 64-bit perceptual hash stored as four 16-bit parts so
// near-duplicate candidate search can use equality joins on any part.
type Fingerprint struct {
	FileID string `gorm:"primaryKey;size:36" json:"file_id"`
	Part1  uint16 `gorm:"not null;index" json:"-"`
	Part2  uint16 `gorm:"not null;index" json:"-"`
	Part3  uint16 `gorm:"not null;index" json:"-"`
	Part4  uint16 `gorm:"not null;index" json:"-"`
}

// TableName returns the table name for Fingerprint.
func (Fingerprint) TableName() string { return "fingerprints" }

// Value reassembles the 64-bit hash from its parts.
func (f *Fingerprint) Value() uint64 {
	return uint64(f.Part1)<<48 | uint64(f.Part2)<<32 | uint64(f.Part3)<<16 | uint64(f.Part4)
}

// SetValue splits the 64-bit hash into its four parts.
func (f *Fingerprint) SetValue(v uint64) {
	f.Part1 = uint16(v >> 48)
	f.Part2 = uint16(v >> 32)
	f.Part3 = uint16(v >> 16)
	f.Part4 = uint16(v)
}

// ContentMetadata holds the EXIF-style descriptor extracted from a file.
type ContentMetadata struct {
	FileID string `gorm:"primaryKey;size:36" json:"file_id"`
	Data   string `gorm:"type:text;not null" json:"data"`
}

// TableName returns the table name for ContentMetadata.
func (ContentMetadata) TableName() string { return "content_metadata" }

// FilePendingDeletion is the durable record of a subtree whose blobs
// still need to be purged by the background worker.
type FilePendingDeletion struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	NSPath      string    `gorm:"column:ns_path;size:255;not null" json:"ns_path"`
	Path        string    `gorm:"not null" json:"path"`
	ContentHash string    `gorm:"column:content_hash" json:"content_hash"`
	MediaType   string    `gorm:"size:255;not null" json:"media_type"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for FilePendingDeletion.
func (FilePendingDeletion) TableName() string { return "files_pending_deletion" }

// User is an account holder. Authentication itself lives outside the core.
type User struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Username  string    `gorm:"uniqueIndex;size:255;not null" json:"username"`
	Email     string    `gorm:"size:255" json:"email,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for User.
func (User) TableName() string { return "users" }

// Account carries per-user limits. A nil StorageQuota means unlimited.
type Account struct {
	UserID       string `gorm:"primaryKey;size:36" json:"user_id"`
	StorageQuota *int64 `json:"storage_quota,omitempty"`
}

// TableName returns the table name for Account.
func (Account) TableName() string { return "accounts" }

// SharedLink is a public token granting access to one file. At most one
// live link exists per file.
type SharedLink struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	FileID    string    `gorm:"uniqueIndex;size:36;not null" json:"file_id"`
	Token     string    `gorm:"uniqueIndex;size:255;not null" json:"token"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for SharedLink.
func (SharedLink) TableName() string { return "shared_links" }

// FileMember grants a user permissions on a shared file.
type FileMember struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	FileID      string    `gorm:"size:36;not null;uniqueIndex:ux_members_file_user,priority:1" json:"file_id"`
	UserID      string    `gorm:"size:36;not null;uniqueIndex:ux_members_file_user,priority:2" json:"user_id"`
	Permissions string    `gorm:"size:255;not null" json:"permissions"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for FileMember.
func (FileMember) TableName() string { return "file_members" }

// Member permission names.
const (
	PermissionView     = "view"
	PermissionDownload = "download"
	PermissionUpload   = "upload"
	PermissionMove     = "move"
	PermissionDelete   = "delete"
	PermissionReshare  = "reshare"
)

// FullPermissions is the owner permission set.
const FullPermissions = "view,download,upload,move,delete,reshare"

// EditorPermissions is the default set granted to added members.
const EditorPermissions = "view,download,upload,move,delete,reshare"

// Has reports whether the member holds the named permission.
func (fm *FileMember) Has(name string) bool {
	for _, p := range strings.Split(fm.Permissions, ",") {
		if strings.TrimSpace(p) == name {
			return true
		}
	}
	return false
}

// AuditTrail records a user-visible action for the activity feed.
type AuditTrail struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"size:36;index" json:"user_id"`
	Action    string    `gorm:"size:64;not null" json:"action"`
	NSPath    string    `gorm:"column:ns_path;size:255" json:"ns_path"`
	Path      string    `json:"path"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for AuditTrail.
func (AuditTrail) TableName() string { return "audit_trail" }

// AllModels returns every model for AutoMigrate.
func AllModels() []any {
	return []any{
		&Namespace{},
		&File{},
		&MountPoint{},
		&Fingerprint{},
		&ContentMetadata{},
		&FilePendingDeletion{},
		&User{},
		&Account{},
		&SharedLink{},
		&FileMember{},
		&AuditTrail{},
	}
}
