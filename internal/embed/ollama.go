package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/semidex/semidex/internal/ragerr"
)

// DefaultOllamaModel is the embedding model requested when none is
// configured.
const DefaultOllamaModel = "nomic-embed-text"

// OllamaConfig configures the local runtime provider.
type OllamaConfig struct {
	// BaseURL is the Ollama HTTP endpoint, e.g. http://localhost:11434.
	BaseURL string

	// Model is the embedding model identifier.
	Model string

	// Dimensions is the declared vector width. Zero means "discover on
	// first call".
	Dimensions int

	// HTTPClient allows custom client configuration.
	HTTPClient *http.Client
}

// OllamaEmbedder generates embeddings via a local Ollama runtime. The error
// taxonomy matches the hosted provider minus Unauthorized: a local runtime
// has no credentials to reject.
type OllamaEmbedder struct {
	client  *http.Client
	baseURL string
	model   string

	mu   sync.RWMutex
	dims int
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllama creates the local runtime provider.
func NewOllama(cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, ragerr.Config("Ollama base URL is required", nil)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	return &OllamaEmbedder{
		client:  client,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		dims:    cfg.Dimensions,
	}, nil
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// Embed generates the embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ragerr.Transport("failed to reach local embedding runtime", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ragerr.Transport("failed to read embedding response", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, ragerr.RateLimited(fmt.Sprintf("runtime overloaded: %s", respBody), nil)
		}
		if resp.StatusCode >= 500 {
			return nil, ragerr.Transport(fmt.Sprintf("runtime error %d: %s", resp.StatusCode, respBody), nil)
		}
		return nil, fmt.Errorf("embedding failed with status %d: %s", resp.StatusCode, respBody)
	}

	var result ollamaEmbedResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, ragerr.Transport("failed to decode embedding response", err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0]) == 0 {
		return nil, ragerr.Transport("empty embedding returned", nil)
	}

	vector := make([]float32, len(result.Embeddings[0]))
	for i, v := range result.Embeddings[0] {
		vector[i] = float32(v)
	}

	e.mu.Lock()
	if e.dims != len(vector) {
		if e.dims != 0 {
			slog.Warn("embedding dimension differs from configuration",
				slog.String("model", e.model),
				slog.Int("configured", e.dims),
				slog.Int("observed", len(vector)))
		}
		e.dims = len(vector)
	}
	e.mu.Unlock()

	return vector, nil
}

// Dimensions returns the advertised embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the model identifier.
func (e *OllamaEmbedder) ModelName() string {
	return e.model
}

// Close releases resources.
func (e *OllamaEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
