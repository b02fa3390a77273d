// Package mediatype detects media types for uploaded content.
//
// Detection is magic-number first, using the signature of the content head.
// When the signature is not recognized, detection falls back to the file
// extension, except for extensions in the strict magic set (images and
// other known binary formats): there a failed signature check means the
// content is not what its name claims and the result is octet-stream.
package mediatype

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// Folder is the media type of directory entries.
	Folder = "application/directory"

	// OctetStream is the fallback for unrecognized content.
	OctetStream = "application/octet-stream"

	// PDF is the media type of PDF documents.
	PDF = "application/pdf"
)

// strictMagic lists extensions whose media type is only trusted when the
// magic number confirms it. These are binary formats with unambiguous
// signatures; a mismatch means the extension lies.
var strictMagic = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {},
	".bmp": {}, ".tif": {}, ".tiff": {}, ".heic": {}, ".heif": {},
	".ico": {}, ".avif": {},
	".zip": {}, ".gz": {}, ".bz2": {}, ".xz": {}, ".7z": {}, ".rar": {},
	".tar": {}, ".zst": {},
	".pdf": {}, ".exe": {}, ".dll": {}, ".so": {}, ".class": {},
	".mp3": {}, ".mp4": {}, ".m4a": {}, ".mkv": {}, ".avi": {}, ".mov": {},
	".flac": {}, ".ogg": {}, ".wav": {}, ".webm": {},
}

// byExtension maps extensions to media types for content whose signature
// is not recognized (mostly text formats without magic numbers).
var byExtension = map[string]string{
	".txt":      "text/plain",
	".md":       "text/markdown",
	".csv":      "text/csv",
	".html":     "text/html",
	".htm":      "text/html",
	".css":      "text/css",
	".js":       "text/javascript",
	".json":     "application/json",
	".xml":      "application/xml",
	".yaml":     "application/yaml",
	".yml":      "application/yaml",
	".toml":     "application/toml",
	".go":       "text/x-go",
	".py":       "text/x-python",
	".sh":       "application/x-sh",
	".svg":      "image/svg+xml",
	".ics":      "text/calendar",
	".vcf":      "text/vcard",
	".eml":      "message/rfc822",
	".log":      "text/plain",
	".srt":      "application/x-subrip",
	".jpg":      "image/jpeg",
	".jpeg":     "image/jpeg",
	".png":      "image/png",
	".gif":      "image/gif",
	".webp":     "image/webp",
	".bmp":      "image/bmp",
	".tif":      "image/tiff",
	".tiff":     "image/tiff",
	".heic":     "image/heic",
	".heif":     "image/heif",
	".avif":     "image/avif",
	".ico":      "image/x-icon",
	".pdf":      PDF,
	".zip":      "application/zip",
	".gz":       "application/gzip",
	".bz2":      "application/x-bzip2",
	".xz":       "application/x-xz",
	".7z":       "application/x-7z-compressed",
	".rar":      "application/vnd.rar",
	".tar":      "application/x-tar",
	".zst":      "application/zstd",
	".mp3":      "audio/mpeg",
	".m4a":      "audio/mp4",
	".flac":     "audio/flac",
	".ogg":      "audio/ogg",
	".wav":      "audio/wav",
	".mp4":      "video/mp4",
	".mkv":      "video/x-matroska",
	".avi":      "video/x-msvideo",
	".mov":      "video/quicktime",
	".webm":     "video/webm",
	".doc":      "application/msword",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":      "application/vnd.ms-excel",
	".xlsx":     "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":      "application/vnd.ms-powerpoint",
	".pptx":     "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".odt":      "application/vnd.oasis.opendocument.text",
	".epub":     "application/epub+zip",
	".apk":      "application/vnd.android.package-archive",
	".torrent":  "application/x-bittorrent",
	".sqlite":   "application/vnd.sqlite3",
	".parquet":  "application/vnd.apache.parquet",
	".markdown": "text/markdown",
}

// ext returns the lower-cased extension of name including the dot.
func ext(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i:])
}

// normalize strips parameters like "; charset=utf-8" from a detected type.
func normalize(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.TrimSpace(mt)
}

// Guess detects the media type from the content head, falling back to the
// extension. Extensions in the strict magic set never fall back: when the
// signature check fails for them the result is octet-stream.
func Guess(name string, head []byte) string {
	if len(head) > 0 {
		detected := normalize(mimetype.Detect(head).String())
		if detected != OctetStream && detected != "" {
			return detected
		}
	}
	e := ext(name)
	if _, strict := strictMagic[e]; strict {
		return OctetStream
	}
	if mt, ok := byExtension[e]; ok {
		return mt
	}
	return OctetStream
}

// GuessUnsafe detects the media type from the name alone. Used by reindex,
// which never re-reads blob contents.
func GuessUnsafe(name string) string {
	if mt, ok := byExtension[ext(name)]; ok {
		return mt
	}
	return OctetStream
}

// IsFolder reports whether mt is the directory media type.
func IsFolder(mt string) bool {
	return mt == Folder
}

// IsImage reports whether mt is any image type.
func IsImage(mt string) bool {
	return strings.HasPrefix(mt, "image/")
}

// supportedImages are the types the thumbnail and fingerprint pipeline can
// decode to pixel buffers.
var supportedImages = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
	"image/bmp":  {},
	"image/tiff": {},
}

// IsSupportedImage reports whether the content pipeline can decode mt.
func IsSupportedImage(mt string) bool {
	_, ok := supportedImages[mt]
	return ok
}

// IsProcessable reports whether the content pipeline handles mt at all
// (decodable images plus PDFs).
func IsProcessable(mt string) bool {
	return IsSupportedImage(mt) || mt == PDF
}
