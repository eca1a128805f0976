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
	"docuquery-go/pkg/log"
)

// BackendOpenAI names the hosted OpenAI-compatible backend.
const BackendOpenAI = "openai"

type openAIClient struct {
	cfg    config.HostedEmbeddingConfig
	client *http.Client
}

// NewOpenAIProvider creates the hosted OpenAI-compatible embedding
// client.
func NewOpenAIProvider(cfg config.HostedEmbeddingConfig) Provider {
	return &openAIClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *openAIClient) Name() string {
	return BackendOpenAI
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedBatch calls the OpenAI-compatible /embeddings endpoint for the
// whole batch in one request.
func (c *openAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	log.Infof("[EmbeddingClient] calling hosted embedding API, model: %s, batch: %d", c.cfg.Model, len(texts))
	reqBody := embeddingRequest{
		Model: c.cfg.Model,
		Input: texts,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &BackendError{Backend: c.Name(), Err: fmt.Errorf("marshal embedding request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, &BackendError{Backend: c.Name(), Err: fmt.Errorf("create embedding request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingClient] hosted embedding call failed: %v", err)
		return nil, &BackendError{Backend: c.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Errorf("[EmbeddingClient] hosted embedding API returned %s: %s", resp.Status, string(body))
		return nil, &BackendError{
			Backend:    c.Name(),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("embedding api returned %s", resp.Status),
		}
	}

	var embResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, &BackendError{Backend: c.Name(), StatusCode: resp.StatusCode, Err: fmt.Errorf("decode embedding response: %w", err)}
	}
	if len(embResp.Data) != len(texts) {
		return nil, &BackendError{
			Backend:    c.Name(),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("embedding api returned %d vectors for %d inputs", len(embResp.Data), len(texts)),
		}
	}

	// The API tags each vector with its input index; place by index so
	// the batch stays order-preserving regardless of response order.
	vectors := make([][]float32, len(texts))
	for _, d := range embResp.Data {
		if d.Index < 0 || d.Index >= len(texts) || len(d.Embedding) == 0 {
			return nil, &BackendError{
				Backend:    c.Name(),
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("embedding api returned invalid vector at index %d", d.Index),
			}
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, &BackendError{
				Backend:    c.Name(),
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("embedding api returned no vector for input %d", i),
			}
		}
	}

	log.Infof("[EmbeddingClient] hosted embedding succeeded, dims: %d", len(vectors[0]))
	return vectors, nil
}
