// Package content orchestrates the processing pipeline run over uploaded
// blobs: content hashing, thumbnail pre-generation, perceptual
// fingerprinting and descriptor extraction.
package content

import (
	"bytes"
	"context"
	"io"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/driftbox/driftbox/internal/logger"
	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/content/chash"
	"github.com/driftbox/driftbox/pkg/content/dedup"
	"github.com/driftbox/driftbox/pkg/content/meta"
	"github.com/driftbox/driftbox/pkg/content/thumbnail"
	"github.com/driftbox/driftbox/pkg/filecore"
	"github.com/driftbox/driftbox/pkg/mediatype"
	"github.com/driftbox/driftbox/pkg/store/metadata"
)

// Job names understood by the worker for deferred pipeline stages.
const (
	JobProcessFileContent = "process_file_content"
	JobGenerateThumbnails = "generate_file_thumbnails"
)

// reindexBatch is how many files one reindex pass loads and processes at
// a time.
const reindexBatch = 500

// reindexWorkers bounds the concurrent downloads of one reindex batch.
const reindexWorkers = 4

// Scheduler enqueues deferred jobs. The worker package provides the
// durable implementation; a nil scheduler runs everything inline.
type Scheduler interface {
	Enqueue(ctx context.Context, name string, args map[string]any) (string, error)
}

// Service runs the content pipeline.
type Service struct {
	core      *filecore.Core
	thumbs    *thumbnail.Service
	dedup     *dedup.Service
	meta      *meta.Service
	scheduler Scheduler
}

// NewService wires the pipeline stages together. scheduler may be nil,
// in which case thumbnail generation runs inline.
func NewService(core *filecore.Core, thumbs *thumbnail.Service, dd *dedup.Service, cm *meta.Service, scheduler Scheduler) *Service {
	return &Service{core: core, thumbs: thumbs, dedup: dd, meta: cm, scheduler: scheduler}
}

// Thumbnails exposes the thumbnail stage for read paths.
func (s *Service) Thumbnails() *thumbnail.Service { return s.thumbs }

// Dedup exposes the fingerprint stage for duplicate queries.
func (s *Service) Dedup() *dedup.Service { return s.dedup }

// Meta exposes the descriptor stage for read paths.
func (s *Service) Meta() *meta.Service { return s.meta }

// Process runs the full pipeline over one file: record the content hash
// when missing, fingerprint and describe decodable images, and generate
// thumbnails. Folders and missing files are a no-op so re-deliveries of
// stale jobs succeed.
func (s *Service) Process(ctx context.Context, fileID string) error {
	file, err := s.core.GetByID(ctx, fileID)
	if apperror.IsCode(err, apperror.CodeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if file.IsFolder() {
		return nil
	}

	rc, _, err := s.core.DownloadByID(ctx, fileID)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return apperror.Internal("failed to read blob", err)
	}

	if file.ContentHash == "" {
		file.ContentHash = chash.SumBytes(data)
		err := s.core.Meta().Files.SetCHashBatch(ctx, []metadata.CHashPair{
			{FileID: fileID, CHash: file.ContentHash},
		})
		if err != nil {
			return err
		}
	}

	if mediatype.IsSupportedImage(file.MediaType) {
		if img, err := imaging.Decode(bytes.NewReader(data)); err == nil {
			tr := s.dedup.Begin()
			tr.Submit(fileID, img)
			if err := tr.Commit(ctx); err != nil {
				return err
			}
		} else {
			logger.WarnCtx(ctx, "undecodable image skipped",
				"file_id", fileID, "media_type", file.MediaType, "error", err)
		}

		mt := s.meta.Begin()
		mt.Submit(fileID, data)
		if err := mt.Commit(ctx); err != nil {
			return err
		}
	}

	if mediatype.IsProcessable(file.MediaType) {
		return s.scheduleThumbnails(ctx, fileID)
	}
	return nil
}

// ProcessAsync defers Process to the worker, or runs it inline without
// one.
func (s *Service) ProcessAsync(ctx context.Context, fileID string) error {
	if s.scheduler == nil {
		return s.Process(ctx, fileID)
	}
	_, err := s.scheduler.Enqueue(ctx, JobProcessFileContent, map[string]any{"file_id": fileID})
	return err
}

// GenerateThumbnails renders the given sizes for one file.
func (s *Service) GenerateThumbnails(ctx context.Context, fileID string, sizes []int) error {
	return s.thumbs.GenerateThumbnails(ctx, fileID, sizes)
}

func (s *Service) scheduleThumbnails(ctx context.Context, fileID string) error {
	if s.scheduler == nil {
		return s.thumbs.GenerateThumbnails(ctx, fileID, nil)
	}
	_, err := s.scheduler.Enqueue(ctx, JobGenerateThumbnails, map[string]any{"file_id": fileID})
	return err
}

// ReindexContents re-runs the pipeline over every file of a namespace in
// batches, sharing one tracker scope per batch so hashing and
// fingerprinting fan out across workers. Blobs missing from the object
// store are skipped.
func (s *Service) ReindexContents(ctx context.Context, ns string) error {
	for offset := 0; ; offset += reindexBatch {
		files, err := s.core.Meta().Files.ListFiles(ctx, ns, metadata.ListFilter{
			Excluded: []string{mediatype.Folder},
			Offset:   offset,
			Limit:    reindexBatch,
		})
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return nil
		}

		hashes := s.core.CHashBatch()
		fingerprints := s.dedup.Begin()
		descriptors := s.meta.Begin()

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(reindexWorkers)
		for i := range files {
			file := files[i]
			g.Go(func() error {
				rc, _, err := s.core.DownloadByID(gctx, file.ID)
				if apperror.IsCode(err, apperror.CodeNotFound) {
					logger.WarnCtx(gctx, "blob missing during content reindex",
						"ns", ns, "path", file.Path)
					return nil
				}
				if err != nil {
					return err
				}
				data, err := io.ReadAll(rc)
				_ = rc.Close()
				if err != nil {
					return apperror.Internal("failed to read blob", err)
				}

				hashes.Submit(file.ID, bytes.NewReader(data))
				if mediatype.IsSupportedImage(file.MediaType) {
					if img, err := imaging.Decode(bytes.NewReader(data)); err == nil {
						fingerprints.Submit(file.ID, img)
					}
					descriptors.Submit(file.ID, data)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		if err := hashes.Commit(ctx); err != nil {
			return err
		}
		if err := fingerprints.Commit(ctx); err != nil {
			return err
		}
		if err := descriptors.Commit(ctx); err != nil {
			return err
		}

		logger.InfoCtx(ctx, "content reindex batch complete",
			"ns", ns, "offset", offset, "files", len(files))
		if len(files) < reindexBatch {
			return nil
		}
	}
}
