package vectorstore

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"docuquery-go/internal/config"
	"docuquery-go/internal/model"
	"docuquery-go/internal/retry"
	"docuquery-go/pkg/log"
)

// ElasticStore implements Store on an Elasticsearch dense_vector index
// with cosine similarity.
type ElasticStore struct {
	client    *elasticsearch.Client
	indexName string
	dims      int
	policy    retry.Policy
}

// NewElasticStore creates the Elasticsearch-backed vector store. dims
// is the index-wide vector dimension; every upserted vector must
// already be fitted to it.
func NewElasticStore(cfg config.ElasticsearchConfig, dims int) (*ElasticStore, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	policy := retry.DefaultPolicy
	if cfg.MaxRetries > 0 {
		policy.MaxAttempts = cfg.MaxRetries
	}
	return &ElasticStore{
		client:    client,
		indexName: cfg.IndexName,
		dims:      dims,
		policy:    policy,
	}, nil
}

// EnsureIndex creates the index with the chunk mapping if it does not
// exist yet.
func (s *ElasticStore) EnsureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.indexName}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: check index: %w", model.ErrVectorStoreUnavailable, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("[VectorStore] index '%s' already exists", s.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("%w: unexpected status %d checking index '%s'", model.ErrVectorStoreUnavailable, res.StatusCode, s.indexName)
	}

	mapping := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"vector_id":        map[string]any{"type": "keyword"},
				"namespace":        map[string]any{"type": "keyword"},
				"owner_id":         map[string]any{"type": "keyword"},
				"document_id":      map[string]any{"type": "keyword"},
				"filename":         map[string]any{"type": "keyword"},
				"chunk_index":      map[string]any{"type": "integer"},
				"total_chunks":     map[string]any{"type": "integer"},
				"upload_timestamp": map[string]any{"type": "date"},
				"text_content":     map[string]any{"type": "text"},
				"content_preview":  map[string]any{"type": "text", "index": false},
				"backend":          map[string]any{"type": "keyword"},
				"vector": map[string]any{
					"type":       "dense_vector",
					"dims":       s.dims,
					"index":      true,
					"similarity": "cosine",
				},
			},
		},
	}

	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("marshal index mapping: %w", err)
	}

	createRes, err := s.client.Indices.Create(
		s.indexName,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("%w: create index: %w", model.ErrVectorStoreUnavailable, err)
	}
	defer createRes.Body.Close()
	if createRes.IsError() {
		return fmt.Errorf("%w: create index '%s': %s", model.ErrVectorStoreUnavailable, s.indexName, createRes.String())
	}

	log.Infof("[VectorStore] index '%s' created, dims: %d", s.indexName, s.dims)
	return nil
}

// Upsert writes docs through the bulk API. Each record is indexed under
// its deterministic vector_id, so retries and re-ingestion overwrite in
// place. Transport failures are retried with backoff; per-item mapping
// rejections are returned as a BatchError without retrying.
func (s *ElasticStore) Upsert(ctx context.Context, docs []model.ChunkDocument) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, doc := range docs {
		action := map[string]any{
			"index": map[string]any{"_index": s.indexName, "_id": doc.VectorID},
		}
		if err := json.NewEncoder(&buf).Encode(action); err != nil {
			return fmt.Errorf("encode bulk action: %w", err)
		}
		if err := json.NewEncoder(&buf).Encode(doc); err != nil {
			return fmt.Errorf("encode bulk document: %w", err)
		}
	}
	payload := buf.Bytes()

	var bulkRes bulkResponse
	err := retry.Do(ctx, s.policy, transientBulkError, func() error {
		req := esapi.BulkRequest{
			Body:    bytes.NewReader(payload),
			Refresh: "true",
		}
		res, err := req.Do(ctx, s.client)
		if err != nil {
			return fmt.Errorf("%w: bulk request: %w", model.ErrVectorStoreUnavailable, err)
		}
		defer res.Body.Close()

		if res.IsError() {
			return fmt.Errorf("%w: bulk request returned %s", model.ErrVectorStoreUnavailable, res.Status())
		}
		bulkRes = bulkResponse{}
		if err := json.NewDecoder(res.Body).Decode(&bulkRes); err != nil {
			return fmt.Errorf("%w: decode bulk response: %w", model.ErrVectorStoreUnavailable, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if !bulkRes.Errors {
		return nil
	}
	var failed []string
	for _, item := range bulkRes.Items {
		if item.Index.Error != nil {
			failed = append(failed, item.Index.ID)
			log.Errorf("[VectorStore] bulk item %s rejected: %s: %s", item.Index.ID, item.Index.Error.Type, item.Index.Error.Reason)
		}
	}
	return &BatchError{FailedIDs: failed}
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID    string `json:"_id"`
			Error *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

// transientBulkError retries transport-level failures only. A
// BatchError means the cluster answered and rejected specific records,
// which a retry will not fix.
func transientBulkError(err error) bool {
	var be *BatchError
	return !errors.As(err, &be)
}

// Query runs an owner-scoped knn search and returns hits ordered by
// score descending, ties broken by ascending chunk index.
func (s *ElasticStore) Query(ctx context.Context, vector []float32, filter Filter, k int) ([]Hit, error) {
	if filter.Namespace == "" || filter.OwnerID == "" {
		return nil, fmt.Errorf("%w: namespace and owner filters are required", model.ErrRetrievalUnavailable)
	}
	if k <= 0 {
		return nil, nil
	}

	terms := []map[string]any{
		{"term": map[string]any{"namespace": filter.Namespace}},
		{"term": map[string]any{"owner_id": filter.OwnerID}},
	}
	if filter.DocumentID != "" {
		terms = append(terms, map[string]any{"term": map[string]any{"document_id": filter.DocumentID}})
	}

	esQuery := map[string]any{
		"knn": map[string]any{
			"field":          "vector",
			"query_vector":   vector,
			"k":              k,
			"num_candidates": k * 10,
			"filter":         map[string]any{"bool": map[string]any{"must": terms}},
		},
		"size": k,
		"sort": []any{
			map[string]any{"_score": map[string]any{"order": "desc"}},
			map[string]any{"chunk_index": map[string]any{"order": "asc"}},
		},
		"_source": []string{"document_id", "filename", "chunk_index", "total_chunks", "text_content"},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("encode search query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.indexName),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: search request: %w", model.ErrRetrievalUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: search returned %s", model.ErrRetrievalUnavailable, res.Status())
	}

	var searchRes struct {
		Hits struct {
			Hits []struct {
				Score  float64 `json:"_score"`
				Source struct {
					DocumentID  string `json:"document_id"`
					FileName    string `json:"filename"`
					ChunkIndex  int    `json:"chunk_index"`
					TotalChunks int    `json:"total_chunks"`
					TextContent string `json:"text_content"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchRes); err != nil {
		return nil, fmt.Errorf("%w: decode search response: %w", model.ErrRetrievalUnavailable, err)
	}

	hits := make([]Hit, 0, len(searchRes.Hits.Hits))
	for _, h := range searchRes.Hits.Hits {
		hits = append(hits, Hit{
			DocumentID:  h.Source.DocumentID,
			FileName:    h.Source.FileName,
			ChunkIndex:  h.Source.ChunkIndex,
			TotalChunks: h.Source.TotalChunks,
			Text:        h.Source.TextContent,
			Score:       h.Score,
		})
	}
	log.Infof("[VectorStore] search returned %d hits, namespace: %s", len(hits), filter.Namespace)
	return hits, nil
}

// DeleteByDocument removes every record of one document from the
// namespace. Used both for failure cleanup and for document removal, so
// it must succeed when nothing matches.
func (s *ElasticStore) DeleteByDocument(ctx context.Context, namespace, documentID string) error {
	query := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": []map[string]any{
					{"term": map[string]any{"namespace": namespace}},
					{"term": map[string]any{"document_id": documentID}},
				},
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return fmt.Errorf("encode delete query: %w", err)
	}

	res, err := s.client.DeleteByQuery(
		[]string{s.indexName},
		&buf,
		s.client.DeleteByQuery.WithContext(ctx),
		s.client.DeleteByQuery.WithConflicts("proceed"),
		s.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("%w: delete by document: %w", model.ErrVectorStoreUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("%w: delete by document returned %s", model.ErrVectorStoreUnavailable, res.Status())
	}
	log.Infof("[VectorStore] deleted records, namespace: %s, document: %s", namespace, documentID)
	return nil
}
