// Package thumbnail renders and caches resized previews keyed by content
// hash, so identical blobs shared across namespaces render once. Cached
// thumbnails live in an isolated namespace under a three-level fan-out
// derived from the hash.
package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"io"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"

	"github.com/driftbox/driftbox/internal/logger"
	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/cache"
	"github.com/driftbox/driftbox/pkg/filecore"
	"github.com/driftbox/driftbox/pkg/mediatype"
	"github.com/driftbox/driftbox/pkg/metrics"
	"github.com/driftbox/driftbox/pkg/vpath"
)

// Namespace is the object-store namespace holding cached thumbnails.
const Namespace = "thumbs"

// lockExpire bounds how long one node may hold a per-(chash, size)
// render lock.
const lockExpire = 30 * time.Second

// Large previews trade quality for speed; small ones the other way.
const (
	largeSizeThreshold = 1920
	largeQuality       = 65
	smallQuality       = 80
)

// DefaultMaxSourceSize caps the original blob size eligible for
// thumbnailing.
const DefaultMaxSourceSize = 128 * 1024 * 1024

// DefaultSizes are the pre-generated bounding-box sizes.
var DefaultSizes = []int{256, 1024, 1920}

// Config tunes the thumbnail service.
type Config struct {
	// MaxSourceSize rejects originals above this many bytes.
	MaxSourceSize int64 `mapstructure:"max_source_size" yaml:"max_source_size"`

	// Sizes are the bounding-box sizes generated ahead of demand.
	Sizes []int `mapstructure:"sizes" yaml:"sizes"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.MaxSourceSize == 0 {
		c.MaxSourceSize = DefaultMaxSourceSize
	}
	if len(c.Sizes) == 0 {
		c.Sizes = append([]int(nil), DefaultSizes...)
	}
}

// Service renders and caches thumbnails.
type Service struct {
	core    *filecore.Core
	cache   cache.Cache
	cfg     Config
	metrics *metrics.ThumbnailMetrics
}

// NewService returns a Service over the core's stores. The cache
// serializes rendering of the same (chash, size) across nodes.
func NewService(core *filecore.Core, c cache.Cache, cfg Config) *Service {
	cfg.ApplyDefaults()
	return &Service{core: core, cache: c, cfg: cfg}
}

// SetMetrics attaches thumbnail metrics. A nil set disables
// instrumentation.
func (s *Service) SetMetrics(m *metrics.ThumbnailMetrics) {
	s.metrics = m
}

// Sizes returns the configured pre-generated sizes.
func (s *Service) Sizes() []int { return s.cfg.Sizes }

// CachePath is the thumbnail location for one (chash, size): a
// three-level fan-out over the hash prefix. ext includes the dot.
func CachePath(chash string, size int, ext string) vpath.Path {
	return vpath.New(fmt.Sprintf("%s/%s/%s/%s_%d%s",
		chash[0:2], chash[2:4], chash[4:6], chash, size, ext))
}

// Thumbnail returns the preview of the file bounded by size, rendering
// and caching it on first use. Unsupported media types, decode failures
// and oversize originals report ThumbnailUnavailable.
func (s *Service) Thumbnail(ctx context.Context, fileID string, size int) ([]byte, error) {
	file, err := s.core.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.ContentHash == "" {
		return nil, apperror.ThumbnailUnavailable("Content hash not computed yet.")
	}

	if data, ok, err := s.cached(ctx, file.ContentHash, size); err != nil {
		return nil, err
	} else if ok {
		s.metrics.RecordCacheLookup(true)
		return data, nil
	}
	s.metrics.RecordCacheLookup(false)

	if !mediatype.IsProcessable(file.MediaType) {
		return nil, apperror.ThumbnailUnavailable("Unsupported media type.")
	}
	if file.Size > s.cfg.MaxSourceSize {
		return nil, apperror.ThumbnailUnavailable("File too large for thumbnailing.")
	}

	rc, _, err := s.core.Download(ctx, file.NSPath, file.VPath())
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return nil, apperror.Internal("failed to read original", err)
	}

	start := time.Now()
	rendered, ext, err := render(data, file.MediaType, size)
	s.metrics.RecordRender(renderKind(file.MediaType), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	path := CachePath(file.ContentHash, size, ext)
	if _, err := s.core.Objects().Save(ctx, Namespace, path, bytes.NewReader(rendered)); err != nil {
		return nil, err
	}
	logger.DebugCtx(ctx, "thumbnail rendered",
		"chash", file.ContentHash, "size", size, "bytes", len(rendered))
	return rendered, nil
}

// GenerateThumbnails renders the given sizes ahead of demand, one
// (chash, size) at a time under a shared lock so concurrent nodes never
// duplicate the work.
func (s *Service) GenerateThumbnails(ctx context.Context, fileID string, sizes []int) error {
	if len(sizes) == 0 {
		sizes = s.cfg.Sizes
	}
	file, err := s.core.GetByID(ctx, fileID)
	if err != nil {
		return err
	}
	if file.ContentHash == "" || !mediatype.IsProcessable(file.MediaType) {
		return nil
	}

	for _, size := range sizes {
		key := fmt.Sprintf("thumbnail:%s:%d", file.ContentHash, size)
		unlock, err := s.cache.Lock(ctx, key, lockExpire, true)
		if err != nil {
			return err
		}
		_, err = s.Thumbnail(ctx, fileID, size)
		_ = unlock(ctx)
		if err != nil && !apperror.IsCode(err, apperror.CodeThumbnailUnavailable) {
			return err
		}
	}
	return nil
}

// DeleteForCHash drops every cached size of a content hash. Used by the
// orphan cleanup after the last referencing file is purged.
func (s *Service) DeleteForCHash(ctx context.Context, chash string, sizes []int) error {
	if len(chash) < 6 {
		return nil
	}
	if len(sizes) == 0 {
		sizes = s.cfg.Sizes
	}
	for _, size := range sizes {
		for _, ext := range []string{".webp", ".gif"} {
			err := s.core.Objects().Delete(ctx, Namespace, CachePath(chash, size, ext))
			if err != nil && !apperror.IsCode(err, apperror.CodeNotFound) {
				return err
			}
		}
	}
	return nil
}

// cached streams a previously rendered thumbnail, probing both encodings.
func (s *Service) cached(ctx context.Context, chash string, size int) ([]byte, bool, error) {
	for _, ext := range []string{".webp", ".gif"} {
		rc, err := s.core.Objects().Download(ctx, Namespace, CachePath(chash, size, ext))
		if apperror.IsCode(err, apperror.CodeNotFound) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, false, apperror.Internal("failed to read cached thumbnail", err)
		}
		return data, true, nil
	}
	return nil, false, nil
}

// renderKind buckets a media type for instrumentation.
func renderKind(mt string) string {
	switch {
	case mt == mediatype.PDF:
		return "document"
	case mt == "image/gif":
		return "animation"
	default:
		return "image"
	}
}

// render decodes data and produces the encoded thumbnail plus its
// extension. Animated GIFs keep their animation; everything else encodes
// as webp. Images are never upscaled.
func render(data []byte, mt string, size int) ([]byte, string, error) {
	if mt == mediatype.PDF {
		img, err := renderPDF(data)
		if err != nil {
			return nil, "", apperror.ThumbnailUnavailable("Failed to render document.")
		}
		out, err := encodeWebP(fit(img, size), size)
		return out, ".webp", err
	}

	if mt == "image/gif" {
		anim, err := gif.DecodeAll(bytes.NewReader(data))
		if err == nil && len(anim.Image) > 1 {
			out, err := renderAnimation(anim, size)
			return out, ".gif", err
		}
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", apperror.ThumbnailUnavailable("Failed to decode image.")
	}
	out, err := encodeWebP(fit(img, size), size)
	return out, ".webp", err
}

// fit bounds img to size on its longer edge, preserving aspect ratio and
// never upscaling.
func fit(img image.Image, size int) image.Image {
	b := img.Bounds()
	if b.Dx() <= size && b.Dy() <= size {
		return img
	}
	return imaging.Fit(img, size, size, imaging.Lanczos)
}

// encodeWebP writes img as lossy WebP. The webp package exposes no
// encoder speed/method setting, so only the quality varies with size.
func encodeWebP(img image.Image, size int) ([]byte, error) {
	quality := float32(smallQuality)
	if size >= largeSizeThreshold {
		quality = largeQuality
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: quality}); err != nil {
		return nil, apperror.ThumbnailUnavailable("Failed to encode thumbnail.")
	}
	return buf.Bytes(), nil
}

// renderPDF rasterizes page 0.
func renderPDF(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	return doc.Image(0)
}

// renderAnimation resizes every frame, re-quantizing against the frame's
// own palette.
func renderAnimation(anim *gif.GIF, size int) ([]byte, error) {
	w, h := anim.Config.Width, anim.Config.Height
	if w <= size && h <= size {
		var buf bytes.Buffer
		if err := gif.EncodeAll(&buf, anim); err != nil {
			return nil, apperror.ThumbnailUnavailable("Failed to encode animation.")
		}
		return buf.Bytes(), nil
	}

	scale := float64(size) / float64(w)
	if h > w {
		scale = float64(size) / float64(h)
	}
	nw, nh := int(float64(w)*scale), int(float64(h)*scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	out := &gif.GIF{
		Delay:     anim.Delay,
		LoopCount: anim.LoopCount,
		Config: image.Config{
			ColorModel: anim.Config.ColorModel,
			Width:      nw,
			Height:     nh,
		},
	}
	rect := image.Rect(0, 0, nw, nh)
	for _, frame := range anim.Image {
		resized := imaging.Resize(frame, nw, nh, imaging.Box)
		paletted := image.NewPaletted(rect, frame.Palette)
		draw.FloydSteinberg.Draw(paletted, rect, resized, image.Point{})
		out.Image = append(out.Image, paletted)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, out); err != nil {
		return nil, apperror.ThumbnailUnavailable("Failed to encode animation.")
	}
	return buf.Bytes(), nil
}
