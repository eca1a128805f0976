// Package vectorstore persists chunk vectors and serves similarity
// queries over them.
package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"docuquery-go/internal/model"
)

// Filter scopes a similarity query. Namespace and OwnerID are
// mandatory; DocumentID optionally narrows the search to one document.
type Filter struct {
	Namespace  string
	OwnerID    string
	DocumentID string
}

// Hit is one retrieved chunk with its similarity score.
type Hit struct {
	DocumentID  string
	FileName    string
	ChunkIndex  int
	TotalChunks int
	Text        string
	Score       float64
}

// Store is the vector persistence contract. Writes are idempotent per
// record id, so re-ingesting a document overwrites rather than
// duplicates.
type Store interface {
	EnsureIndex(ctx context.Context) error
	Upsert(ctx context.Context, docs []model.ChunkDocument) error
	Query(ctx context.Context, vector []float32, filter Filter, k int) ([]Hit, error)
	DeleteByDocument(ctx context.Context, namespace, documentID string) error
}

// BatchError reports the record ids that a partially-failed bulk write
// did not persist.
type BatchError struct {
	FailedIDs []string
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("bulk write failed for %d records: %s", len(e.FailedIDs), strings.Join(e.FailedIDs, ", "))
}
