package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for spans. The keys mirror the logger field set so
// traces and logs correlate on the same names, with dots instead of
// underscores per OpenTelemetry convention.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// ========================================================================
	// Filesystem attributes
	// ========================================================================
	AttrOperation = "fs.operation" // create_file, move, delete, reindex, etc.
	AttrNamespace = "fs.namespace" // Namespace the operation targets
	AttrPath      = "fs.path"      // Full path within the namespace
	AttrFilename  = "fs.filename"  // File or folder name (basename)
	AttrOldPath   = "fs.old_path"  // Source path for move operations
	AttrNewPath   = "fs.new_path"  // Destination path for move operations
	AttrSize      = "fs.size"      // File size in bytes
	AttrMediaType = "fs.media_type"
	AttrCHash     = "fs.chash"   // Content hash
	AttrEntries   = "fs.entries" // Number of entries in a listing or batch

	// ========================================================================
	// HTTP attributes
	// ========================================================================
	AttrHTTPMethod = "http.method"
	AttrHTTPPath   = "http.path"
	AttrHTTPStatus = "http.status_code"

	// ========================================================================
	// User attributes
	// ========================================================================
	AttrUserID   = "user.id"
	AttrUsername = "user.name"

	// ========================================================================
	// Background job attributes
	// ========================================================================
	AttrJobID   = "job.id"
	AttrJobName = "job.name"
	AttrAttempt = "job.attempt"

	// ========================================================================
	// Cache attributes
	// ========================================================================
	AttrCacheHit = "cache.hit"

	// ========================================================================
	// Object storage attributes
	// ========================================================================
	AttrStoreType = "store.type" // local, s3
	AttrBucket    = "storage.bucket"
	AttrKey       = "storage.key"
	AttrRegion    = "storage.region"
)

// Span names for operations.
// Format: <component>.<operation>
const (
	// Root span for API request processing
	SpanAPIRequest = "api.request"

	// Namespace operations
	SpanUpload     = "fs.upload"
	SpanDownload   = "fs.download"
	SpanMove       = "fs.move"
	SpanDelete     = "fs.delete"
	SpanTrash      = "fs.trash"
	SpanEmptyTrash = "fs.empty_trash"
	SpanReindex    = "fs.reindex"
	SpanList       = "fs.list"

	// Content pipeline
	SpanContentProcess = "content.process"
	SpanThumbnail      = "content.thumbnail"
	SpanFingerprint    = "content.fingerprint"

	// Background jobs
	SpanJobRun = "job.run"

	// Internal storage operations
	SpanCacheLookup = "cache.lookup"
	SpanCacheWrite  = "cache.write"
	SpanObjectRead  = "object.read"
	SpanObjectWrite = "object.write"
	SpanMetaLookup  = "metadata.lookup"
	SpanMetaUpdate  = "metadata.update"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// Operation returns an attribute for the filesystem operation name
func Operation(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// Namespace returns an attribute for the target namespace
func Namespace(ns string) attribute.KeyValue {
	return attribute.String(AttrNamespace, ns)
}

// Path returns an attribute for a path within the namespace
func Path(path string) attribute.KeyValue {
	return attribute.String(AttrPath, path)
}

// Filename returns an attribute for a file or folder name
func Filename(name string) attribute.KeyValue {
	return attribute.String(AttrFilename, name)
}

// OldPath returns an attribute for the source path of a move
func OldPath(path string) attribute.KeyValue {
	return attribute.String(AttrOldPath, path)
}

// NewPath returns an attribute for the destination path of a move
func NewPath(path string) attribute.KeyValue {
	return attribute.String(AttrNewPath, path)
}

// Size returns an attribute for a file size in bytes
func Size(size int64) attribute.KeyValue {
	return attribute.Int64(AttrSize, size)
}

// MediaType returns an attribute for a detected media type
func MediaType(mt string) attribute.KeyValue {
	return attribute.String(AttrMediaType, mt)
}

// CHash returns an attribute for a content hash
func CHash(hash string) attribute.KeyValue {
	return attribute.String(AttrCHash, hash)
}

// Entries returns an attribute for the entry count of a listing or batch
func Entries(n int) attribute.KeyValue {
	return attribute.Int(AttrEntries, n)
}

// HTTPMethod returns an attribute for the HTTP request method
func HTTPMethod(method string) attribute.KeyValue {
	return attribute.String(AttrHTTPMethod, method)
}

// HTTPPath returns an attribute for the HTTP request path
func HTTPPath(path string) attribute.KeyValue {
	return attribute.String(AttrHTTPPath, path)
}

// HTTPStatus returns an attribute for the HTTP response status code
func HTTPStatus(status int) attribute.KeyValue {
	return attribute.Int(AttrHTTPStatus, status)
}

// UserID returns an attribute for the acting user ID
func UserID(id string) attribute.KeyValue {
	return attribute.String(AttrUserID, id)
}

// Username returns an attribute for the acting username
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// JobID returns an attribute for a background job ID
func JobID(id string) attribute.KeyValue {
	return attribute.String(AttrJobID, id)
}

// JobName returns an attribute for a background job name
func JobName(name string) attribute.KeyValue {
	return attribute.String(AttrJobName, name)
}

// Attempt returns an attribute for a retry attempt number
func Attempt(n int) attribute.KeyValue {
	return attribute.Int(AttrAttempt, n)
}

// CacheHit returns an attribute for cache hit indicator
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// StoreType returns an attribute for the object store type
func StoreType(t string) attribute.KeyValue {
	return attribute.String(AttrStoreType, t)
}

// Bucket returns an attribute for S3 bucket name
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// StorageKey returns an attribute for S3 object key
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// Region returns an attribute for cloud region
func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// StartAPISpan starts the root span for an API request.
func StartAPISpan(ctx context.Context, method, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		HTTPMethod(method),
		HTTPPath(path),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanAPIRequest, trace.WithAttributes(allAttrs...))
}

// StartFSSpan starts a span for a filesystem operation in a namespace.
// This is a convenience function that sets common attributes.
func StartFSSpan(ctx context.Context, operation, ns, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Operation(operation),
		Namespace(ns),
	}
	if path != "" {
		allAttrs = append(allAttrs, Path(path))
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "fs."+operation, trace.WithAttributes(allAttrs...))
}

// StartJobSpan starts a span for a background job run.
func StartJobSpan(ctx context.Context, job, id string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		JobName(job),
	}
	if id != "" {
		allAttrs = append(allAttrs, JobID(id))
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanJobRun, trace.WithAttributes(allAttrs...))
}

// StartObjectSpan starts a span for a blob store operation.
func StartObjectSpan(ctx context.Context, operation, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		StorageKey(key),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "object."+operation, trace.WithAttributes(allAttrs...))
}

// StartCacheSpan starts a span for a cache operation.
func StartCacheSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "cache."+operation, trace.WithAttributes(attrs...))
}

// StartMetadataSpan starts a span for a metadata store operation.
func StartMetadataSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "metadata."+operation, trace.WithAttributes(attrs...))
}
