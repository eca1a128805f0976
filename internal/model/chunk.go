package model

import (
	"fmt"
	"time"
)

// ContentPreviewLen bounds the chunk-text prefix stored for result
// display.
const ContentPreviewLen = 500

// Chunk is one bounded slice of a document's extracted text. Chunks are
// ephemeral: produced by the chunker, consumed by the embedding provider
// and never persisted on their own.
type Chunk struct {
	DocumentID  string
	Index       int
	Text        string
	TotalChunks int
}

// ChunkDocument is the record stored in the Elasticsearch vector index.
// The metadata schema is fixed on purpose: filter-by-owner stays
// type-checked instead of stringly-typed.
type ChunkDocument struct {
	VectorID       string    `json:"vector_id"`
	Namespace      string    `json:"namespace"`
	OwnerID        string    `json:"owner_id"`
	DocumentID     string    `json:"document_id"`
	FileName       string    `json:"filename"`
	ChunkIndex     int       `json:"chunk_index"`
	TotalChunks    int       `json:"total_chunks"`
	UploadedAt     time.Time `json:"upload_timestamp"`
	TextContent    string    `json:"text_content"`
	ContentPreview string    `json:"content_preview"`
	Vector         []float32 `json:"vector"`
	Backend        string    `json:"backend"`
}

// VectorRecordID derives the deterministic record id for a chunk so that
// re-ingestion overwrites instead of duplicating.
func VectorRecordID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s_%d", documentID, chunkIndex)
}

// Preview returns the bounded display prefix of s.
func Preview(s string) string {
	runes := []rune(s)
	if len(runes) <= ContentPreviewLen {
		return s
	}
	return string(runes[:ContentPreviewLen])
}

// SourcePassage is one retrieved chunk returned to the caller of ask.
type SourcePassage struct {
	DocumentID string  `json:"document_id"`
	FileName   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// QuestionAnswer is the per-question result of an ask request. Error is
// set when this question failed; sibling questions are unaffected.
type QuestionAnswer struct {
	Question       string          `json:"question"`
	Answer         string          `json:"answer"`
	SourcePassages []SourcePassage `json:"source_passages"`
	Error          string          `json:"error,omitempty"`
}
