package web_ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMaxChunkSize = 1000
	DefaultChunkOverlap = 200
)

var ErrInvalidChunking = errors.New("chunk overlap must be smaller than chunk size")

// ContentHash returns the sha256 hex digest of the cleaned text. It depends on
// nothing but the text itself.
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Chunker splits text into fixed-size windows measured in runes where adjacent
// windows share Overlap runes.
type Chunker struct {
	MaxSize int
	Overlap int
}

// NewChunker validates the chunk geometry.
func NewChunker(maxSize, overlap int) (Chunker, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxSize {
		return Chunker{}, ErrInvalidChunking
	}
	return Chunker{MaxSize: maxSize, Overlap: overlap}, nil
}

// Split is MakeChunks with the chunker's geometry.
func (c Chunker) Split(text string) []string {
	return MakeChunks(text, c.MaxSize, c.Overlap)
}

// MakeChunks splits text into chunks of at most approx runes. Every chunk
// after the first starts overlap runes before the end of the previous one.
// Text that fits in one chunk is returned as-is; empty text yields no chunks.
func MakeChunks(text string, approx, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if approx <= 0 {
		approx = DefaultMaxChunkSize
	}
	if overlap < 0 || overlap >= approx {
		overlap = 0
	}
	if utf8.RuneCountInString(text) <= approx {
		return []string{text}
	}

	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); {
		end := start + approx
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
		start = end - overlap
	}
	return chunks
}

// JoinChunks reverses MakeChunks for chunks produced with the given overlap.
func JoinChunks(chunks []string, overlap int) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(chunks[0])
	for _, chunk := range chunks[1:] {
		runes := []rune(chunk)
		if overlap > len(runes) {
			continue
		}
		b.WriteString(string(runes[overlap:]))
	}
	return b.String()
}
