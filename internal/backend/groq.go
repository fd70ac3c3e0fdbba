package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const groqDefaultBaseURL = "https://api.groq.com/openai/v1"

// GroqConfig controls the Groq backend.
type GroqConfig struct {
	APIKey     string
	ModelID    string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// GroqBackend generates text through Groq's OpenAI-compatible chat API.
// The cheapest and fastest backend in the pool.
type GroqBackend struct {
	apiKey     string
	modelID    string
	baseURL    string
	httpClient *http.Client
}

func NewGroqBackend(cfg GroqConfig) (*GroqBackend, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("backend: groq api key is required")
	}
	modelID := strings.TrimSpace(cfg.ModelID)
	if modelID == "" {
		modelID = "mixtral-8x7b-32768"
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = groqDefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &GroqBackend{
		apiKey:     cfg.APIKey,
		modelID:    modelID,
		baseURL:    baseURL,
		httpClient: httpClient,
	}, nil
}

func (b *GroqBackend) Name() string { return "groq" }

func (b *GroqBackend) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("backend: prompt is required")
	}

	body, err := json.Marshal(map[string]any{
		"model": b.modelID,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.7,
		"max_tokens":  500,
	})
	if err != nil {
		return "", fmt.Errorf("backend: marshal groq request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("backend: build groq request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("backend: groq request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("backend: read groq response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("backend: groq status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("backend: decode groq response: %w", err)
	}
	if len(payload.Choices) == 0 {
		return "", errors.New("backend: groq returned no choices")
	}
	text := strings.TrimSpace(payload.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("backend: groq returned empty response")
	}
	return text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
