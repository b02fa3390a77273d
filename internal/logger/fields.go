package logger

import (
	"log/slog"
)

// Standard field keys for structured logging. Use these keys
// consistently across all log statements for log aggregation and
// querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Operation
	// ========================================================================
	KeyOperation = "op"         // Operation name: create_file, move, delete, reindex, etc.
	KeyNamespace = "ns"         // Namespace the operation targets
	KeyStatus    = "status"     // Operation status code
	KeyStatusMsg = "status_msg" // Human-readable status message

	// ========================================================================
	// File System Operations
	// ========================================================================
	KeyPath       = "path"        // Full file/folder path within the namespace
	KeyFilename   = "filename"    // File or folder name (basename)
	KeyParentPath = "parent_path" // Parent folder path
	KeyOldPath    = "old_path"    // Source path for move operations
	KeyNewPath    = "new_path"    // Destination path for move operations
	KeyMediaType  = "media_type"  // Detected media type
	KeySize       = "size"        // File size in bytes
	KeyCHash      = "chash"       // Content hash

	// ========================================================================
	// I/O
	// ========================================================================
	KeyBytesRead    = "bytes_read"    // Actual bytes read
	KeyBytesWritten = "bytes_written" // Actual bytes written

	// ========================================================================
	// Client Identification
	// ========================================================================
	KeyClientIP = "client_ip" // Client IP address
	KeyUserID   = "user_id"   // Acting user ID
	KeyUsername = "username"  // Acting username

	// ========================================================================
	// Requests & Jobs
	// ========================================================================
	KeyRequestID = "request_id" // HTTP request ID
	KeyJobID     = "job_id"     // Background job ID
	KeyJob       = "job"        // Background job name

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Error code name
	KeyAttempt    = "attempt"     // Retry attempt number

	// ========================================================================
	// Storage Backend
	// ========================================================================
	KeyStoreType = "store_type" // Object store type: local, s3
	KeyBucket    = "bucket"     // S3 bucket name
	KeyKey       = "key"        // Object key
	KeyRegion    = "region"     // Cloud region

	// ========================================================================
	// Cache Layer
	// ========================================================================
	KeyCacheHit = "cache_hit" // Cache hit indicator

	// ========================================================================
	// Listings & Batches
	// ========================================================================
	KeyEntries = "entries" // Number of entries in a listing or batch
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Operation returns a slog.Attr for the operation name
func Operation(name string) slog.Attr {
	return slog.String(KeyOperation, name)
}

// Namespace returns a slog.Attr for the target namespace
func Namespace(ns string) slog.Attr {
	return slog.String(KeyNamespace, ns)
}

// Status returns a slog.Attr for operation status code
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// StatusMsg returns a slog.Attr for human-readable status message
func StatusMsg(msg string) slog.Attr {
	return slog.String(KeyStatusMsg, msg)
}

// Path returns a slog.Attr for file/folder path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Filename returns a slog.Attr for filename (basename)
func Filename(name string) slog.Attr {
	return slog.String(KeyFilename, name)
}

// ParentPath returns a slog.Attr for parent folder path
func ParentPath(p string) slog.Attr {
	return slog.String(KeyParentPath, p)
}

// OldPath returns a slog.Attr for source path in move operations
func OldPath(p string) slog.Attr {
	return slog.String(KeyOldPath, p)
}

// NewPath returns a slog.Attr for destination path in move operations
func NewPath(p string) slog.Attr {
	return slog.String(KeyNewPath, p)
}

// MediaType returns a slog.Attr for the detected media type
func MediaType(mt string) slog.Attr {
	return slog.String(KeyMediaType, mt)
}

// Size returns a slog.Attr for file size
func Size(s int64) slog.Attr {
	return slog.Int64(KeySize, s)
}

// CHash returns a slog.Attr for a content hash
func CHash(h string) slog.Attr {
	return slog.String(KeyCHash, h)
}

// BytesRead returns a slog.Attr for actual bytes read
func BytesRead(n int) slog.Attr {
	return slog.Int(KeyBytesRead, n)
}

// BytesWritten returns a slog.Attr for actual bytes written
func BytesWritten(n int) slog.Attr {
	return slog.Int(KeyBytesWritten, n)
}

// ClientIP returns a slog.Attr for client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// UserID returns a slog.Attr for the acting user ID
func UserID(id string) slog.Attr {
	return slog.String(KeyUserID, id)
}

// Username returns a slog.Attr for username
func Username(name string) slog.Attr {
	return slog.String(KeyUsername, name)
}

// RequestID returns a slog.Attr for HTTP request ID
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// JobID returns a slog.Attr for background job ID
func JobID(id string) slog.Attr {
	return slog.String(KeyJobID, id)
}

// Job returns a slog.Attr for background job name
func Job(name string) slog.Attr {
	return slog.String(KeyJob, name)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for an error code name
func ErrorCode(code string) slog.Attr {
	return slog.String(KeyErrorCode, code)
}

// Attempt returns a slog.Attr for retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// StoreType returns a slog.Attr for object store type
func StoreType(t string) slog.Attr {
	return slog.String(KeyStoreType, t)
}

// Bucket returns a slog.Attr for S3 bucket name
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}

// Key returns a slog.Attr for object key
func Key(k string) slog.Attr {
	return slog.String(KeyKey, k)
}

// Region returns a slog.Attr for cloud region
func Region(r string) slog.Attr {
	return slog.String(KeyRegion, r)
}

// CacheHit returns a slog.Attr for cache hit indicator
func CacheHit(hit bool) slog.Attr {
	return slog.Bool(KeyCacheHit, hit)
}

// Entries returns a slog.Attr for number of entries
func Entries(n int) slog.Attr {
	return slog.Int(KeyEntries, n)
}
