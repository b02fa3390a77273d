package meta

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/store/metadata"
)

func newTestMeta(t *testing.T) *metadata.Store {
	t.Helper()
	s, err := metadata.New(&metadata.Config{
		Type:   metadata.DatabaseTypeSQLite,
		SQLite: metadata.SQLiteConfig{Path: ":memory:"},
	})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: uint8(x), A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractDimensionsWithoutExif(t *testing.T) {
	f := Extract(pngBytes(t, 48, 32))

	if f.Width != 48 || f.Height != 32 {
		t.Errorf("dimensions = %dx%d, want 48x32", f.Width, f.Height)
	}
	if f.Make != "" || f.Model != "" || f.TakenAt != nil {
		t.Errorf("unexpected camera fields: %+v", f)
	}
}

func TestExtractNonImage(t *testing.T) {
	f := Extract([]byte("not an image at all"))

	if *f != (Fields{}) {
		t.Errorf("descriptor for junk bytes = %+v, want empty", f)
	}
}

func TestTrackerPersistsAndOverwrites(t *testing.T) {
	store := newTestMeta(t)
	svc := NewService(store)
	ctx := context.Background()

	file, err := store.Files.Save(ctx, &metadata.File{
		NSPath: "u", Path: "pic.png", MediaType: "image/png",
	})
	if err != nil {
		t.Fatal(err)
	}

	tr := svc.Begin()
	tr.Submit(file.ID, pngBytes(t, 10, 20))
	if err := tr.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	got, err := svc.GetByFileID(ctx, file.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Width != 10 || got.Height != 20 {
		t.Errorf("stored dimensions = %dx%d, want 10x20", got.Width, got.Height)
	}

	// Re-processing replaces the stored descriptor.
	tr = svc.Begin()
	tr.Submit(file.ID, pngBytes(t, 30, 40))
	if err := tr.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	got, err = svc.GetByFileID(ctx, file.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Width != 30 || got.Height != 40 {
		t.Errorf("descriptor after reprocess = %dx%d, want 30x40", got.Width, got.Height)
	}
}

func TestGetByFileIDMissing(t *testing.T) {
	svc := NewService(newTestMeta(t))

	_, err := svc.GetByFileID(context.Background(), "no-such-file")
	if !apperror.IsCode(err, apperror.CodeContentMetadataNotFound) {
		t.Errorf("err = %v, want ContentMetadataNotFound", err)
	}
}
