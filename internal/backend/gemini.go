package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiBackend generates text through Google's Gemini API. The
// best-multilingual backend in the pool.
type GeminiBackend struct {
	client  *genai.Client
	modelID string
}

func NewGeminiBackend(ctx context.Context, apiKey, modelID string) (*GeminiBackend, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("backend: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-1.5-pro"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("backend: failed to create gemini client: %w", err)
	}
	return &GeminiBackend{client: client, modelID: modelID}, nil
}

func (b *GeminiBackend) Name() string { return "gemini" }

func (b *GeminiBackend) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("backend: prompt is required")
	}

	model := b.client.GenerativeModel(b.modelID)
	model.SetTemperature(0.7)
	model.SetMaxOutputTokens(500)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("backend: gemini completion failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("backend: gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", errors.New("backend: gemini returned empty content")
	}

	var builder strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			builder.WriteString(string(text))
		}
	}
	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", errors.New("backend: gemini returned empty response")
	}
	return text, nil
}

// Close releases resources held by the Gemini client.
func (b *GeminiBackend) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}
