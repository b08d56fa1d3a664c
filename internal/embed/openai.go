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

const (
	// DefaultOpenAIModel balances quality and cost for document retrieval.
	DefaultOpenAIModel = "text-embedding-3-small"

	defaultOpenAIBaseURL = "https://api.openai.com/v1"
)

// openAIModelDimensions maps known hosted models to their vector widths.
var openAIModelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIConfig configures the hosted (or compatible) provider.
type OpenAIConfig struct {
	// APIKey authenticates requests. Required for the hosted provider;
	// optional for compatible endpoints that skip auth.
	APIKey string

	// BaseURL overrides the hosted endpoint. Used by the
	// compatible-endpoint provider.
	BaseURL string

	// Model is the embedding model identifier.
	Model string

	// Dimensions is the declared vector width. Zero means "use the known
	// width for the model, or discover on first call".
	Dimensions int

	// HTTPClient allows custom client configuration.
	HTTPClient *http.Client
}

// OpenAIEmbedder calls an OpenAI-style /embeddings endpoint.
type OpenAIEmbedder struct {
	client  *http.Client
	apiKey  string
	baseURL string
	model   string

	mu   sync.RWMutex
	dims int
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAI creates the hosted provider. The API key is required.
func NewOpenAI(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, ragerr.Config("OpenAI API key is required", nil)
	}
	return newOpenAIStyle(cfg)
}

// NewCompatible creates a provider for an endpoint that mimics the hosted
// wire format at a custom base URL.
func NewCompatible(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, ragerr.Config("compatible provider base URL is required", nil)
	}
	return newOpenAIStyle(cfg)
}

func newOpenAIStyle(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = openAIModelDimensions[cfg.Model]
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	return &OpenAIEmbedder{
		client:  client,
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		dims:    cfg.Dimensions,
	}, nil
}

type openAIRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Embed generates the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(openAIRequest{Model: e.model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ragerr.Transport("embedding request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ragerr.Transport("failed to read embedding response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, respBody)
	}

	var result openAIResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, ragerr.Transport("failed to decode embedding response", err)
	}
	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, ragerr.Transport("empty embedding returned", nil)
	}

	vector := make([]float32, len(result.Data[0].Embedding))
	for i, v := range result.Data[0].Embedding {
		vector[i] = float32(v)
	}

	e.observeDimensions(len(vector))
	return vector, nil
}

// observeDimensions updates the advertised dimension when the provider
// returns a different width than configured. The caller is responsible for
// rejecting the mismatch against the schema before writing rows.
func (e *OpenAIEmbedder) observeDimensions(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dims != n {
		if e.dims != 0 {
			slog.Warn("embedding dimension differs from configuration",
				slog.String("model", e.model),
				slog.Int("configured", e.dims),
				slog.Int("observed", n))
		}
		e.dims = n
	}
}

// Dimensions returns the advertised embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// Close releases resources.
func (e *OpenAIEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// classifyStatus maps provider HTTP failures onto the error taxonomy.
func classifyStatus(status int, body []byte) error {
	message := string(body)
	var errResp openAIErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ragerr.Unauthorized(fmt.Sprintf("provider rejected credentials: %s", message), nil)
	case status == http.StatusTooManyRequests:
		return ragerr.RateLimited(fmt.Sprintf("provider rate limit: %s", message), nil)
	case status >= 500:
		return ragerr.Transport(fmt.Sprintf("provider error %d: %s", status, message), nil)
	default:
		return fmt.Errorf("embedding failed with status %d: %s", status, message)
	}
}
