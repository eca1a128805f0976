package vectorstore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuquery-go/internal/config"
	"docuquery-go/internal/model"
)

func newTestStore(t *testing.T, handler http.HandlerFunc) (*ElasticStore, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	store, err := NewElasticStore(config.ElasticsearchConfig{
		Addresses: []string{srv.URL},
		IndexName: "chunks",
	}, 4)
	require.NoError(t, err)
	return store, srv
}

func TestEnsureIndexAlreadyExists(t *testing.T) {
	var created bool
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		created = true
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, store.EnsureIndex(context.Background()))
	assert.False(t, created, "an existing index must not be recreated")
}

func TestEnsureIndexCreatesMapping(t *testing.T) {
	var mapping map[string]any
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&mapping))
			w.Write([]byte(`{"acknowledged":true}`))
		}
	})

	require.NoError(t, store.EnsureIndex(context.Background()))

	props := mapping["mappings"].(map[string]any)["properties"].(map[string]any)
	vector := props["vector"].(map[string]any)
	assert.Equal(t, "dense_vector", vector["type"])
	assert.Equal(t, float64(4), vector["dims"])
	assert.Equal(t, "cosine", vector["similarity"])
	assert.Equal(t, "keyword", props["namespace"].(map[string]any)["type"])
	assert.Equal(t, "keyword", props["owner_id"].(map[string]any)["type"])
}

func TestUpsertBulkPayload(t *testing.T) {
	var body string
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		body = string(raw)
		w.Write([]byte(`{"errors":false,"items":[]}`))
	})

	docs := []model.ChunkDocument{
		{
			VectorID:   model.VectorRecordID("doc-1", 0),
			Namespace:  "ns-abc",
			OwnerID:    "user-1",
			DocumentID: "doc-1",
			ChunkIndex: 0,
			UploadedAt: time.Now(),
			Vector:     []float32{1, 0, 0, 0},
		},
	}
	require.NoError(t, store.Upsert(context.Background(), docs))

	assert.Contains(t, body, `"_id":"doc-1_0"`)
	assert.Contains(t, body, `"namespace":"ns-abc"`)
}

func TestUpsertReportsRejectedItems(t *testing.T) {
	store, _ := newTestStore(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{
			"errors": true,
			"items": [
				{"index": {"_id": "doc-1_0"}},
				{"index": {"_id": "doc-1_1", "error": {"type": "mapper_parsing_exception", "reason": "bad vector"}}}
			]
		}`))
	})

	err := store.Upsert(context.Background(), []model.ChunkDocument{
		{VectorID: "doc-1_0"},
		{VectorID: "doc-1_1"},
	})
	require.Error(t, err)

	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, []string{"doc-1_1"}, be.FailedIDs)
}

func TestQueryBuildsScopedKnn(t *testing.T) {
	var query map[string]any
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&query))
		w.Write([]byte(`{
			"hits": {"hits": [
				{"_score": 0.9, "_source": {"document_id": "doc-1", "filename": "p.pdf", "chunk_index": 2, "total_chunks": 5, "text_content": "grace period"}},
				{"_score": 0.7, "_source": {"document_id": "doc-1", "filename": "p.pdf", "chunk_index": 0, "total_chunks": 5, "text_content": "premium"}}
			]}
		}`))
	})

	hits, err := store.Query(context.Background(), []float32{1, 0, 0, 0}, Filter{Namespace: "ns-abc", OwnerID: "user-1"}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 0.9, hits[0].Score)
	assert.Equal(t, 2, hits[0].ChunkIndex)
	assert.Equal(t, "grace period", hits[0].Text)

	knn := query["knn"].(map[string]any)
	assert.Equal(t, "vector", knn["field"])
	assert.Equal(t, float64(5), knn["k"])

	must := knn["filter"].(map[string]any)["bool"].(map[string]any)["must"].([]any)
	require.Len(t, must, 2)
	assert.Equal(t, "ns-abc", must[0].(map[string]any)["term"].(map[string]any)["namespace"])
	assert.Equal(t, "user-1", must[1].(map[string]any)["term"].(map[string]any)["owner_id"])
}

func TestQueryRequiresScope(t *testing.T) {
	store, _ := newTestStore(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`))
	})

	_, err := store.Query(context.Background(), []float32{1}, Filter{OwnerID: "user-1"}, 5)
	require.ErrorIs(t, err, model.ErrRetrievalUnavailable)

	_, err = store.Query(context.Background(), []float32{1}, Filter{Namespace: "ns"}, 5)
	require.ErrorIs(t, err, model.ErrRetrievalUnavailable)
}

func TestDeleteByDocument(t *testing.T) {
	var query map[string]any
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "_delete_by_query")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&query))
		w.Write([]byte(`{"deleted": 3}`))
	})

	require.NoError(t, store.DeleteByDocument(context.Background(), "ns-abc", "doc-1"))

	must := query["query"].(map[string]any)["bool"].(map[string]any)["must"].([]any)
	require.Len(t, must, 2)
	assert.Equal(t, "ns-abc", must[0].(map[string]any)["term"].(map[string]any)["namespace"])
	assert.Equal(t, "doc-1", must[1].(map[string]any)["term"].(map[string]any)["document_id"])
}
