package chash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
)

func TestSumEmpty(t *testing.T) {
	got, err := Sum(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("empty content should hash to empty string, got %q", got)
	}
	if SumBytes(nil) != "" {
		t.Error("SumBytes(nil) should be empty")
	}
}

func TestSumSingleChunk(t *testing.T) {
	data := []byte("Dummy file")
	inner := sha256.Sum256(data)
	outer := sha256.Sum256(inner[:])
	want := hex.EncodeToString(outer[:])

	got, err := Sum(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("Sum = %s, want %s", got, want)
	}
	if SumBytes(data) != want {
		t.Error("SumBytes disagrees with Sum")
	}
}

func TestSumMultiChunk(t *testing.T) {
	// Spans two chunks: the second one partial.
	data := bytes.Repeat([]byte{0xAB}, ChunkSize+100)
	first := sha256.Sum256(data[:ChunkSize])
	second := sha256.Sum256(data[ChunkSize:])
	outer := sha256.New()
	outer.Write(first[:])
	outer.Write(second[:])
	want := hex.EncodeToString(outer.Sum(nil))

	got, err := Sum(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("Sum = %s, want %s", got, want)
	}
	if SumBytes(data) != want {
		t.Error("SumBytes disagrees with Sum")
	}
}

func TestSumStable(t *testing.T) {
	data := []byte("same bytes")
	a, _ := Sum(bytes.NewReader(data))
	b, _ := Sum(bytes.NewReader(data))
	if a != b {
		t.Error("hash not deterministic")
	}
}
