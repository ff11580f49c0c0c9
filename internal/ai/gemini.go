package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// GeminiCompleter uses the Gemini API through google.golang.org/genai.
type GeminiCompleter struct {
	client      *genai.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewGeminiCompleter creates a Gemini client. An empty baseURL means the
// public endpoint.
func NewGeminiCompleter(ctx context.Context, baseURL, apiKey, model string, temperature float64, maxTokens int, hc *http.Client) (*GeminiCompleter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini requires llm.api_key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  hc,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiCompleter{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

func (c *GeminiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(c.temperature)),
	}
	if c.maxTokens > 0 {
		cfg.MaxOutputTokens = int32(c.maxTokens)
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		perr := &ProviderError{Provider: "gemini", Detail: truncateText(err.Error(), 500), Err: err}
		var apiErr genai.APIError
		var apiErrPtr *genai.APIError
		switch {
		case errors.As(err, &apiErr):
			perr.Status = apiErr.Code
		case errors.As(err, &apiErrPtr):
			perr.Status = apiErrPtr.Code
		}
		return "", perr
	}

	if result == nil || len(result.Candidates) == 0 {
		return "", &ProviderError{Provider: "gemini", Detail: "response has no candidates"}
	}
	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", &ProviderError{Provider: "gemini", Detail: "response has no completion text"}
	}
	return text, nil
}
