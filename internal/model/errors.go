// Package model defines the shared data structures and the error
// taxonomy of the document pipeline.
package model

import "errors"

// Pipeline error taxonomy. Ingestion-stage errors are fatal for the job
// unless noted; query-time errors are surfaced per request.
var (
	// ErrUnsupportedFileType is returned when a document's detected type
	// has no extraction strategy. Never retried.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrEmptyDocument is returned when extraction produces no text.
	ErrEmptyDocument = errors.New("document contains no extractable text")

	// ErrExtractionFailed wraps decoding errors from a corrupted input.
	// Non-transient, never retried.
	ErrExtractionFailed = errors.New("text extraction failed")

	// ErrInvalidChunkConfig is returned at configuration time when
	// overlap >= max chunk size.
	ErrInvalidChunkConfig = errors.New("invalid chunking config: overlap must be smaller than max chunk size")

	// ErrEmbeddingUnavailable is returned once every embedding backend in
	// the fallback chain has failed for a batch.
	ErrEmbeddingUnavailable = errors.New("no embedding backend available")

	// ErrBackendMismatch is returned when a namespace populated by one
	// embedding backend is used with a different one.
	ErrBackendMismatch = errors.New("embedding backend does not match namespace")

	// ErrVectorStoreUnavailable is returned when the vector store cannot
	// be reached after the retry budget is exhausted.
	ErrVectorStoreUnavailable = errors.New("vector store unavailable")

	// ErrRetrievalUnavailable is returned when a similarity query fails
	// after retries. Distinct from an empty (successful) result set.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrAnswerGenerationFailed is returned when the language model fails
	// after retries; retrieved passages are still returned to the caller.
	ErrAnswerGenerationFailed = errors.New("answer generation failed")

	// ErrJobNotFound is returned by status lookups for unknown documents.
	ErrJobNotFound = errors.New("ingestion job not found")

	// ErrJobAlreadyActive is returned when a document already has a
	// non-terminal ingestion job.
	ErrJobAlreadyActive = errors.New("document already has an active ingestion job")
)

// IsFatalIngestionError reports whether err terminates the job
// immediately, without any redelivery attempt.
func IsFatalIngestionError(err error) bool {
	return errors.Is(err, ErrUnsupportedFileType) ||
		errors.Is(err, ErrEmptyDocument) ||
		errors.Is(err, ErrExtractionFailed) ||
		errors.Is(err, ErrInvalidChunkConfig) ||
		errors.Is(err, ErrEmbeddingUnavailable) ||
		errors.Is(err, ErrBackendMismatch)
}
