package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuquery-go/internal/config"
)

func TestOpenAIEmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		require.Len(t, req.Input, 2)

		// Respond out of order; the client must place vectors by index.
		resp := map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{2, 2, 2}},
				{"index": 0, "embedding": []float32{1, 1, 1}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(config.HostedEmbeddingConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "text-embedding-3-small",
	})

	vectors, err := p.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{1, 1, 1}, vectors[0])
	assert.Equal(t, []float32{2, 2, 2}, vectors[1])
}

func TestOpenAIEmbedBatchQuotaError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(config.HostedEmbeddingConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"})

	_, err := p.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)

	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusTooManyRequests, be.StatusCode)
	assert.True(t, be.Transient())
}

func TestOpenAIEmbedBatchCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 0, "embedding": []float32{1}},
			},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(config.HostedEmbeddingConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"})

	_, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)

	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusOK, be.StatusCode)
	assert.False(t, be.Transient(), "a malformed 200 response is not worth retrying elsewhere")
}

func TestOpenAIEmbedBatchNetworkError(t *testing.T) {
	p := NewOpenAIProvider(config.HostedEmbeddingConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1", Model: "m"})

	_, err := p.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)

	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Zero(t, be.StatusCode)
	assert.True(t, be.Transient())
}
