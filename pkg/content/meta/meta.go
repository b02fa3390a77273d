// Package meta extracts structured content descriptors (EXIF fields,
// pixel dimensions) from image blobs and persists them as JSON per file.
package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"sync"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/sync/errgroup"

	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/store/metadata"
)

// extractWorkers bounds the concurrent extractions of one tracker.
const extractWorkers = 4

// Fields is the descriptor persisted per file. Absent values marshal
// away so the stored JSON only carries what the blob actually declared.
type Fields struct {
	Make        string     `json:"make,omitempty"`
	Model       string     `json:"model,omitempty"`
	FocalLength float64    `json:"focal_length,omitempty"`
	ISO         int        `json:"iso,omitempty"`
	TakenAt     *time.Time `json:"taken_at,omitempty"`
	Width       int        `json:"width,omitempty"`
	Height      int        `json:"height,omitempty"`
}

// Extract reads the descriptor out of an image blob. Blobs without EXIF
// still yield their pixel dimensions; non-images yield an empty
// descriptor.
func Extract(data []byte) *Fields {
	f := &Fields{}

	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		f.Width = cfg.Width
		f.Height = cfg.Height
	}

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return f
	}
	if tag, err := x.Get(exif.Make); err == nil {
		f.Make, _ = tag.StringVal()
	}
	if tag, err := x.Get(exif.Model); err == nil {
		f.Model, _ = tag.StringVal()
	}
	if tag, err := x.Get(exif.FocalLength); err == nil {
		if num, den, err := tag.Rat2(0); err == nil && den != 0 {
			f.FocalLength = float64(num) / float64(den)
		}
	}
	if tag, err := x.Get(exif.ISOSpeedRatings); err == nil {
		if v, err := tag.Int(0); err == nil {
			f.ISO = v
		}
	}
	if dt, err := x.DateTime(); err == nil {
		f.TakenAt = &dt
	}
	return f
}

// Service owns content-descriptor persistence.
type Service struct {
	meta *metadata.Store
}

// NewService returns a Service over the metadata store.
func NewService(meta *metadata.Store) *Service {
	return &Service{meta: meta}
}

// GetByFileID returns the stored descriptor of a file.
func (s *Service) GetByFileID(ctx context.Context, fileID string) (*Fields, error) {
	cm, err := s.meta.ContentMeta.GetByFileID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	var f Fields
	if err := json.Unmarshal([]byte(cm.Data), &f); err != nil {
		return nil, apperror.Internal("corrupt content metadata", err)
	}
	return &f, nil
}

// Tracker is a scoped batch builder: submitted blobs are extracted off
// the caller's path and persisted when the scope commits.
type Tracker struct {
	svc *Service
	g   *errgroup.Group

	mu   sync.Mutex
	rows []*metadata.ContentMetadata
}

// Begin opens a tracker scope. Close it with Commit.
func (s *Service) Begin() *Tracker {
	g := &errgroup.Group{}
	g.SetLimit(extractWorkers)
	return &Tracker{svc: s, g: g}
}

// Submit schedules the extraction of data for fileID.
func (t *Tracker) Submit(fileID string, data []byte) {
	t.g.Go(func() error {
		fields := Extract(data)
		payload, err := json.Marshal(fields)
		if err != nil {
			return apperror.Internal("failed to encode content metadata", err)
		}
		t.mu.Lock()
		t.rows = append(t.rows, &metadata.ContentMetadata{FileID: fileID, Data: string(payload)})
		t.mu.Unlock()
		return nil
	})
}

// Commit waits for the in-flight extractions and persists the batch.
// Re-processing a file overwrites its previous descriptor.
func (t *Tracker) Commit(ctx context.Context) error {
	if err := t.g.Wait(); err != nil {
		return err
	}
	t.mu.Lock()
	rows := t.rows
	t.rows = nil
	t.mu.Unlock()

	for _, row := range rows {
		if err := t.svc.meta.ContentMeta.Save(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
