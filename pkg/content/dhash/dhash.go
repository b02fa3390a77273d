// Package dhash computes 64-bit difference hashes of images: greyscale,
// resize to (size+1, size), then compare each pixel against its right
// neighbor. Visually similar images land within a small Hamming distance
// of each other.
package dhash

import (
	"image"
	"math/bits"

	"github.com/disintegration/imaging"
)

// Size is the hash grid dimension; 8 yields a 64-bit hash.
const Size = 8

// Sum computes the difference hash of img.
func Sum(img image.Image) uint64 {
	grey := imaging.Grayscale(img)
	// One extra column so every grid cell has a right neighbor.
	small := imaging.Resize(grey, Size+1, Size, imaging.Box)

	var hash uint64
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			left := small.NRGBAAt(x, y).R
			right := small.NRGBAAt(x+1, y).R
			hash <<= 1
			if left > right {
				hash |= 1
			}
		}
	}
	return hash
}

// Distance is the Hamming distance between two hashes.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
