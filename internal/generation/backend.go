package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// BackendRequest is the single-shot call contract with the generative
// service: one prompt in, one response out, no streaming.
type BackendRequest struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
	Model       string
}

// BackendResponse carries generated text, or a base64 image payload
// for image-producing endpoints.
type BackendResponse struct {
	Text  string
	Image string
}

// Backend is an opaque generative service.
type Backend interface {
	Generate(ctx context.Context, req BackendRequest) (BackendResponse, error)
}

// HTTPBackendConfig configures an OpenAI-compatible HTTP backend.
type HTTPBackendConfig struct {
	APIURL   string
	APIKey   string
	Endpoint string // defaults to /chat/completions
}

// HTTPBackend talks to any OpenAI-compatible completion endpoint.
type HTTPBackend struct {
	config     HTTPBackendConfig
	httpClient *http.Client
}

// NewHTTPBackend creates an HTTP backend with a bounded request timeout.
func NewHTTPBackend(cfg HTTPBackendConfig) *HTTPBackend {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "/chat/completions"
	}
	return &HTTPBackend{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Generate performs one completion call.
func (b *HTTPBackend) Generate(ctx context.Context, req BackendRequest) (BackendResponse, error) {
	reqBody := map[string]any{
		"model": req.Model,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
		"temperature": req.Temperature,
		"max_tokens":  req.MaxTokens,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return BackendResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", b.config.APIURL+b.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return BackendResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.config.APIKey)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return BackendResponse{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return BackendResponse{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return BackendResponse{}, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Data []struct {
			B64JSON string `json:"b64_json"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return BackendResponse{}, fmt.Errorf("parse response: %w", err)
	}

	if len(result.Choices) > 0 && result.Choices[0].Message.Content != "" {
		return BackendResponse{Text: result.Choices[0].Message.Content}, nil
	}
	if len(result.Data) > 0 && result.Data[0].B64JSON != "" {
		return BackendResponse{Image: result.Data[0].B64JSON}, nil
	}
	return BackendResponse{}, fmt.Errorf("empty response from backend")
}
