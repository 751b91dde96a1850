// Package embedclient builds a capability.Embedder backed by an
// OpenAI-compatible embeddings endpoint. Grounded on pkg/memory's
// OpenRouterClient: same request/response shaping and error wrapping, but
// over a real net/http.Client instead of a browser fetch shim, since this
// module runs server-side rather than in WASM.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cludeai/cortex/internal/capability"
)

const defaultTimeout = 30 * time.Second

// Config configures an embeddings client against any OpenAI-compatible
// /embeddings endpoint (OpenAI itself, OpenRouter, a local server, ...).
type Config struct {
	BaseURL string // e.g. "https://api.openai.com/v1"
	APIKey  string
	Model   string
	Dim     int
	HTTP    *http.Client
}

// Client calls an OpenAI-compatible embeddings endpoint over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	dim     int
	http    *http.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embedclient: base url required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedclient: api key required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedclient: model required")
	}
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("embedclient: dim must be positive")
	}
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		dim:     cfg.Dim,
		http:    httpClient,
	}, nil
}

// Embedder returns a capability.Embedder bound to this client's Embed
// method, ready for injection into ingest/linker/recall components.
func (c *Client) Embedder() capability.Embedder {
	return capability.Embedder{Dim: c.dim, Fn: c.Embed}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed requests a single embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("embedclient: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("embedclient: decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("embedclient: api error: %s", parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedclient: unexpected status %d", resp.StatusCode)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embedclient: empty embedding data")
	}

	vec := parsed.Data[0].Embedding
	if len(vec) != c.dim {
		return nil, fmt.Errorf("embedclient: embedding dim %d does not match configured dim %d", len(vec), c.dim)
	}
	return vec, nil
}
