package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"docuquery-go/internal/config"
)

// BackendOllama names the local Ollama fallback backend.
const BackendOllama = "ollama"

type ollamaClient struct {
	cfg    config.LocalEmbeddingConfig
	client *http.Client
}

// NewOllamaProvider creates the locally-served Ollama embedding client
// used as the fallback backend.
func NewOllamaProvider(cfg config.LocalEmbeddingConfig) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	return &ollamaClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *ollamaClient) Name() string {
	return BackendOllama
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// EmbedBatch embeds each text in order. Ollama has no batch endpoint;
// requests stay sequential so the order guarantee is trivial and a
// large document does not fan out into hundreds of local calls.
func (c *ollamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.embedOne(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (c *ollamaClient) embedOne(ctx context.Context, text string) ([]float32, error) {
	reqBytes, err := json.Marshal(ollamaEmbedRequest{Model: c.cfg.Model, Prompt: text})
	if err != nil {
		return nil, &BackendError{Backend: c.Name(), Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, &BackendError{Backend: c.Name(), Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &BackendError{Backend: c.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &BackendError{
			Backend:    c.Name(),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("ollama returned %s: %s", resp.Status, string(body)),
		}
	}

	var embResp ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, &BackendError{Backend: c.Name(), StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(embResp.Embedding) == 0 {
		return nil, &BackendError{Backend: c.Name(), StatusCode: resp.StatusCode, Err: fmt.Errorf("ollama returned an empty embedding")}
	}

	vec := make([]float32, len(embResp.Embedding))
	for i, v := range embResp.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
