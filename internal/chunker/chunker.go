// Package chunker splits extracted text into overlapping fixed-size
// segments, preserving character order.
package chunker

import (
	"unicode"

	"docuquery-go/internal/model"
)

// Default splitting parameters.
const (
	DefaultMaxChunkSize = 1000
	DefaultOverlap      = 200
)

// Splitter produces a deterministic chunk sequence for a given
// (text, maxChunkSize, overlap) input. Deterministic output is what
// makes re-ingestion idempotent.
type Splitter struct {
	maxChunkSize int
	overlap      int
}

// New validates the configuration and returns a Splitter. Zero or
// negative values fall back to the defaults; overlap >= maxChunkSize is
// rejected before any processing.
func New(maxChunkSize, overlap int) (*Splitter, error) {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= maxChunkSize {
		return nil, model.ErrInvalidChunkConfig
	}
	return &Splitter{maxChunkSize: maxChunkSize, overlap: overlap}, nil
}

// Split cuts text into ordered chunks of at most maxChunkSize runes.
// Consecutive chunks share exactly overlap runes: chunk i+1 starts
// overlap runes before the end of chunk i, so the suffix of one chunk
// is the prefix of the next. Cuts snap to a sentence or whitespace
// boundary within a bounded lookback window; with no natural boundary
// the cut is hard at maxChunkSize.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.maxChunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + s.maxChunkSize
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		cut := s.snapBoundary(runes, start, end)
		chunks = append(chunks, string(runes[start:cut]))
		start = cut - s.overlap
	}
	return chunks
}

// snapBoundary looks backwards from end for a natural break, scanning
// at most the overlap-sized lookback window. It never returns a cut
// that would stall the sliding window.
func (s *Splitter) snapBoundary(runes []rune, start, end int) int {
	lookback := s.overlap
	minCut := start + s.overlap + 1 // guarantee forward progress
	limit := end - lookback
	if limit < minCut {
		limit = minCut
	}

	// Prefer a sentence end, then any whitespace.
	for i := end; i > limit; i-- {
		if isSentenceEnd(runes[i-1]) {
			return i
		}
	}
	for i := end; i > limit; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '\n', '。', '！', '？':
		return true
	}
	return false
}
