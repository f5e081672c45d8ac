package web_ingest

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestContentHashDeterministic(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog."
	if ContentHash(text) != ContentHash(text) {
		t.Fatal("hash should be deterministic")
	}
	if ContentHash(text) == ContentHash(text+"!") {
		t.Fatal("one character difference should change the hash")
	}
	if len(ContentHash("")) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(ContentHash("")))
	}
}

func TestMakeChunks(t *testing.T) {
	text := "abcdefghij"
	chunks := MakeChunks(text, 4, 2)
	want := []string{"abcd", "cdef", "efgh", "ghij"}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d: %v", len(want), len(chunks), chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d: got %q want %q", i, chunks[i], want[i])
		}
	}
}

func TestMakeChunksBoundsAndReconstruction(t *testing.T) {
	text := strings.Repeat("évidence gathering ", 300)
	text = strings.TrimSpace(text)
	for _, tc := range []struct {
		size, overlap int
	}{
		{100, 20},
		{1000, 200},
		{7, 3},
		{50, 0},
	} {
		chunks := MakeChunks(text, tc.size, tc.overlap)
		if len(chunks) == 0 {
			t.Fatalf("expected chunks for size=%d", tc.size)
		}
		for i, c := range chunks {
			if i < len(chunks)-1 && utf8.RuneCountInString(c) != tc.size {
				t.Fatalf("chunk %d has %d runes, want %d", i, utf8.RuneCountInString(c), tc.size)
			}
			if utf8.RuneCountInString(c) > tc.size {
				t.Fatalf("chunk %d exceeds max size", i)
			}
			if i > 0 {
				prev := []rune(chunks[i-1])
				cur := []rune(c)
				if string(prev[len(prev)-tc.overlap:]) != string(cur[:tc.overlap]) {
					t.Fatalf("chunks %d and %d do not share %d runes", i-1, i, tc.overlap)
				}
			}
		}
		if got := JoinChunks(chunks, tc.overlap); got != text {
			t.Fatalf("reconstruction mismatch for size=%d overlap=%d", tc.size, tc.overlap)
		}
	}
}

func TestMakeChunksShortAndEmpty(t *testing.T) {
	if chunks := MakeChunks("  short text  ", 100, 10); len(chunks) != 1 || chunks[0] != "short text" {
		t.Fatalf("unexpected chunks %v", chunks)
	}
	if chunks := MakeChunks("   ", 100, 10); chunks != nil {
		t.Fatalf("expected no chunks for blank text, got %v", chunks)
	}
}

func TestNewChunker(t *testing.T) {
	if _, err := NewChunker(100, 100); !errors.Is(err, ErrInvalidChunking) {
		t.Fatalf("expected ErrInvalidChunking, got %v", err)
	}
	c, err := NewChunker(0, -1)
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}
	if c.MaxSize != DefaultMaxChunkSize || c.Overlap != 0 {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if got := len(c.Split(strings.Repeat("a", 2500))); got != 3 {
		t.Fatalf("expected 3 chunks, got %d", got)
	}
}
