// Package chash computes the content hash used to key deduplicated
// processing: the SHA-256 of the concatenated SHA-256 digests of
// successive 4 MiB chunks. Identical blobs always hash identically, so
// fingerprinting and thumbnailing never repeat work per copy.
package chash

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// ChunkSize is the block size the content is digested in.
const ChunkSize = 4 * 1024 * 1024

// Sum computes the content hash of r. Empty content hashes to the empty
// string.
func Sum(r io.Reader) (string, error) {
	outer := sha256.New()
	buf := make([]byte, ChunkSize)
	empty := true

	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			empty = false
			digest := sha256.Sum256(buf[:n])
			outer.Write(digest[:])
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	if empty {
		return "", nil
	}
	return hex.EncodeToString(outer.Sum(nil)), nil
}

// SumBytes computes the content hash of an in-memory blob.
func SumBytes(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	outer := sha256.New()
	for off := 0; off < len(data); off += ChunkSize {
		end := off + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		digest := sha256.Sum256(data[off:end])
		outer.Write(digest[:])
	}
	return hex.EncodeToString(outer.Sum(nil))
}
