// Package apperror provides the domain error types and error codes shared
// across the Driftbox core. This is a leaf package with no internal
// dependencies, designed to be imported by repositories, the file core and
// the service layers without causing circular imports.
//
// Import graph: apperror <- store implementations <- filecore <- services
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Code represents the type of domain error that occurred.
type Code int

const (
	// CodeAlreadyExists indicates the file, folder, mount or user already exists.
	CodeAlreadyExists Code = iota + 1

	// CodeNotFound indicates the requested entity does not exist.
	CodeNotFound

	// CodeIsADirectory indicates a file operation was attempted on a folder.
	CodeIsADirectory

	// CodeNotADirectory indicates a folder operation was attempted on a regular file.
	CodeNotADirectory

	// CodeMissingParent indicates the destination parent folder does not exist.
	CodeMissingParent

	// CodeMalformedPath indicates the path is syntactically or semantically invalid.
	CodeMalformedPath

	// CodeTooLarge indicates the uploaded content exceeds the configured limit.
	CodeTooLarge

	// CodeThumbnailUnavailable indicates no thumbnail can be produced for the content.
	CodeThumbnailUnavailable

	// CodeActionNotAllowed indicates the caller lacks permission for the operation.
	CodeActionNotAllowed

	// CodeStorageQuotaExceeded indicates the account storage quota would be exceeded.
	CodeStorageQuotaExceeded

	// CodeFingerprintAlreadyExists indicates a fingerprint is already stored for the file.
	CodeFingerprintAlreadyExists

	// CodeContentMetadataNotFound indicates no content metadata is stored for the file.
	CodeContentMetadataNotFound

	// CodeMountNotFound indicates no mount point matches the query.
	CodeMountNotFound

	// CodeSharedLinkNotFound indicates the shared link does not exist or was revoked.
	CodeSharedLinkNotFound

	// CodeUserNotFound indicates the user does not exist.
	CodeUserNotFound

	// CodeUserAlreadyExists indicates the username or email is taken.
	CodeUserAlreadyExists

	// CodeInvalidCredentials indicates authentication failed.
	CodeInvalidCredentials

	// CodeEmailAlreadyVerified indicates the email was verified before.
	CodeEmailAlreadyVerified

	// CodeOTPAlreadySent indicates an OTP was already issued within its window.
	CodeOTPAlreadySent

	// CodeEmailUpdateAlreadyStarted indicates an email change is in flight.
	CodeEmailUpdateAlreadyStarted

	// CodeEmailUpdateNotStarted indicates no email change is in flight.
	CodeEmailUpdateNotStarted

	// CodeRateLimited indicates the per-user rate limit was hit.
	CodeRateLimited

	// CodeInternal indicates an unexpected internal failure.
	CodeInternal
)

// String returns a human-readable name for the error code.
func (c Code) String() string {
	switch c {
	case CodeAlreadyExists:
		return "AlreadyExists"
	case CodeNotFound:
		return "NotFound"
	case CodeIsADirectory:
		return "IsADirectory"
	case CodeNotADirectory:
		return "NotADirectory"
	case CodeMissingParent:
		return "MissingParent"
	case CodeMalformedPath:
		return "MalformedPath"
	case CodeTooLarge:
		return "TooLarge"
	case CodeThumbnailUnavailable:
		return "ThumbnailUnavailable"
	case CodeActionNotAllowed:
		return "ActionNotAllowed"
	case CodeStorageQuotaExceeded:
		return "StorageQuotaExceeded"
	case CodeFingerprintAlreadyExists:
		return "FingerprintAlreadyExists"
	case CodeContentMetadataNotFound:
		return "ContentMetadataNotFound"
	case CodeMountNotFound:
		return "MountNotFound"
	case CodeSharedLinkNotFound:
		return "SharedLinkNotFound"
	case CodeUserNotFound:
		return "UserNotFound"
	case CodeUserAlreadyExists:
		return "UserAlreadyExists"
	case CodeInvalidCredentials:
		return "InvalidCredentials"
	case CodeEmailAlreadyVerified:
		return "EmailAlreadyVerified"
	case CodeOTPAlreadySent:
		return "OTPAlreadySent"
	case CodeEmailUpdateAlreadyStarted:
		return "EmailUpdateAlreadyStarted"
	case CodeEmailUpdateNotStarted:
		return "EmailUpdateNotStarted"
	case CodeRateLimited:
		return "RateLimited"
	case CodeInternal:
		return "Internal"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// APICode returns the stable wire-level code exposed to API clients.
func (c Code) APICode() string {
	switch c {
	case CodeAlreadyExists:
		return "FILE_ALREADY_EXISTS"
	case CodeNotFound:
		return "FILE_NOT_FOUND"
	case CodeIsADirectory:
		return "IS_A_DIRECTORY"
	case CodeNotADirectory:
		return "NOT_A_DIRECTORY"
	case CodeMissingParent:
		return "MISSING_PARENT"
	case CodeMalformedPath:
		return "MALFORMED_PATH"
	case CodeTooLarge:
		return "UPLOAD_TOO_LARGE"
	case CodeThumbnailUnavailable:
		return "THUMBNAIL_UNAVAILABLE"
	case CodeActionNotAllowed:
		return "ACTION_NOT_ALLOWED"
	case CodeStorageQuotaExceeded:
		return "STORAGE_QUOTA_EXCEEDED"
	case CodeFingerprintAlreadyExists:
		return "FINGERPRINT_ALREADY_EXISTS"
	case CodeContentMetadataNotFound:
		return "CONTENT_METADATA_NOT_FOUND"
	case CodeMountNotFound:
		return "MOUNT_NOT_FOUND"
	case CodeSharedLinkNotFound:
		return "SHARED_LINK_NOT_FOUND"
	case CodeUserNotFound:
		return "USER_NOT_FOUND"
	case CodeUserAlreadyExists:
		return "USER_ALREADY_EXISTS"
	case CodeInvalidCredentials:
		return "INVALID_CREDENTIALS"
	case CodeEmailAlreadyVerified:
		return "EMAIL_ALREADY_VERIFIED"
	case CodeOTPAlreadySent:
		return "OTP_ALREADY_SENT"
	case CodeEmailUpdateAlreadyStarted:
		return "EMAIL_UPDATE_ALREADY_STARTED"
	case CodeEmailUpdateNotStarted:
		return "EMAIL_UPDATE_NOT_STARTED"
	case CodeRateLimited:
		return "RATE_LIMITED"
	default:
		return "INTERNAL"
	}
}

// HTTPStatus maps the code to the HTTP status the outer API layer uses.
// 400 for client malformed input, 403 for denied actions, 404 for missing
// entities, 429 for rate limits, 500 only for internal failures.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeAlreadyExists, CodeIsADirectory, CodeNotADirectory, CodeMissingParent,
		CodeMalformedPath, CodeTooLarge, CodeStorageQuotaExceeded,
		CodeFingerprintAlreadyExists, CodeUserAlreadyExists,
		CodeEmailAlreadyVerified, CodeOTPAlreadySent,
		CodeEmailUpdateAlreadyStarted, CodeEmailUpdateNotStarted:
		return http.StatusBadRequest
	case CodeInvalidCredentials:
		return http.StatusUnauthorized
	case CodeActionNotAllowed:
		return http.StatusForbidden
	case CodeNotFound, CodeThumbnailUnavailable, CodeContentMetadataNotFound,
		CodeMountNotFound, CodeSharedLinkNotFound, CodeUserNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, a human-readable message and an
// optional path describing the entity the operation touched.
type Error struct {
	Code    Code
	Message string
	Path    string

	// Cause is the underlying error, if any. Preserved for logging;
	// never shown to API clients.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (path: %s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches two domain errors by code so sentinel comparisons work.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// CodeOf extracts the domain code from err, or CodeInternal when err is
// not a domain error.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given domain code.
func IsCode(err error, code Code) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}

// New creates a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AlreadyExists creates an AlreadyExists error for the given path.
func AlreadyExists(path string) *Error {
	return &Error{Code: CodeAlreadyExists, Message: "Already exists.", Path: path}
}

// NotFound creates a NotFound error for the given path.
func NotFound(path string) *Error {
	return &Error{Code: CodeNotFound, Message: "Not found.", Path: path}
}

// IsADirectory creates an IsADirectory error for the given path.
func IsADirectory(path string) *Error {
	return &Error{Code: CodeIsADirectory, Message: "Is a directory.", Path: path}
}

// NotADirectory creates a NotADirectory error for the given path.
func NotADirectory(path string) *Error {
	return &Error{Code: CodeNotADirectory, Message: "Not a directory.", Path: path}
}

// MissingParent creates a MissingParent error for the given path.
func MissingParent(path string) *Error {
	return &Error{Code: CodeMissingParent, Message: "Missing parent folder.", Path: path}
}

// MalformedPath creates a MalformedPath error with the given message.
func MalformedPath(message string) *Error {
	return &Error{Code: CodeMalformedPath, Message: message}
}

// TooLarge creates a TooLarge error with the given message.
func TooLarge(message string) *Error {
	return &Error{Code: CodeTooLarge, Message: message}
}

// ThumbnailUnavailable creates a ThumbnailUnavailable error.
func ThumbnailUnavailable(message string) *Error {
	return &Error{Code: CodeThumbnailUnavailable, Message: message}
}

// ActionNotAllowed creates an ActionNotAllowed error.
func ActionNotAllowed(message string) *Error {
	return &Error{Code: CodeActionNotAllowed, Message: message}
}

// MountNotFound creates a MountNotFound error for the given path or ID.
func MountNotFound(path string) *Error {
	return &Error{Code: CodeMountNotFound, Message: "Mount point not found.", Path: path}
}

// SharedLinkNotFound creates a SharedLinkNotFound error.
func SharedLinkNotFound() *Error {
	return &Error{Code: CodeSharedLinkNotFound, Message: "Shared link not found."}
}

// UserNotFound creates a UserNotFound error.
func UserNotFound() *Error {
	return &Error{Code: CodeUserNotFound, Message: "User not found."}
}

// UserAlreadyExists creates a UserAlreadyExists error.
func UserAlreadyExists() *Error {
	return &Error{Code: CodeUserAlreadyExists, Message: "User already exists."}
}

// FingerprintAlreadyExists creates a FingerprintAlreadyExists error.
func FingerprintAlreadyExists() *Error {
	return &Error{Code: CodeFingerprintAlreadyExists, Message: "Fingerprint already exists."}
}

// ContentMetadataNotFound creates a ContentMetadataNotFound error.
func ContentMetadataNotFound() *Error {
	return &Error{Code: CodeContentMetadataNotFound, Message: "Content metadata not found."}
}

// StorageQuotaExceeded creates a StorageQuotaExceeded error.
func StorageQuotaExceeded() *Error {
	return &Error{Code: CodeStorageQuotaExceeded, Message: "Storage quota exceeded."}
}

// Internal wraps an unexpected failure, preserving the cause.
func Internal(message string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: message, Cause: cause}
}

// Internalf wraps an unexpected failure with a formatted message.
func Internalf(cause error, format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...), Cause: cause}
}
