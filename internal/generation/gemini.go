package generation

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiBackend adapts the Gemini SDK to the Backend contract.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiBackend creates a Gemini-backed generator. The model is the
// default used when a request does not name one.
func NewGeminiBackend(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiBackend{client: client, model: model}, nil
}

// Generate performs one content generation call.
func (g *GeminiBackend) Generate(ctx context.Context, req BackendRequest) (BackendResponse, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}

	genConfig := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		genConfig.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(req.MaxTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, model,
		[]*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)},
		genConfig)
	if err != nil {
		return BackendResponse{}, fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return BackendResponse{}, fmt.Errorf("empty response from gemini")
	}
	return BackendResponse{Text: text}, nil
}
