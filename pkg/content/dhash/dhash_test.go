package dhash

import (
	"image"
	"image/color"
	"testing"
)

// gradient draws a horizontal ramp; its difference hash is all ones or
// all zeros depending on direction.
func gradient(w, h int, reversed bool) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(x * 255 / (w - 1))
			if reversed {
				v = 255 - v
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestSumDeterministic(t *testing.T) {
	img := gradient(64, 64, false)
	if Sum(img) != Sum(img) {
		t.Error("hash not deterministic")
	}
}

func TestSumDirectionality(t *testing.T) {
	up := Sum(gradient(64, 64, false))
	down := Sum(gradient(64, 64, true))

	if up != 0 {
		t.Errorf("ascending ramp hash = %064b, want all zeros", up)
	}
	if down != ^uint64(0) {
		t.Errorf("descending ramp hash = %064b, want all ones", down)
	}
}

func TestDistance(t *testing.T) {
	if d := Distance(0xE6C0_1272_F884_CDF8, 0xE6C0_1272_F884_CDF9); d != 1 {
		t.Errorf("distance = %d, want 1", d)
	}
	if d := Distance(42, 42); d != 0 {
		t.Errorf("identical hashes distance = %d", d)
	}
	if d := Distance(0, ^uint64(0)); d != 64 {
		t.Errorf("inverse hashes distance = %d", d)
	}
}

func TestSimilarImagesAreClose(t *testing.T) {
	base := gradient(64, 64, false)
	// The same ramp at a different resolution.
	resized := gradient(128, 96, false)
	if d := Distance(Sum(base), Sum(resized)); d > 5 {
		t.Errorf("scaled copy distance = %d, want <= 5", d)
	}
}
