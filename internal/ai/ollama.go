package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// OllamaCompleter generates completions with a local Ollama server.
type OllamaCompleter struct {
	client      *api.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewOllamaCompleter creates a completer for the Ollama server at baseURL.
func NewOllamaCompleter(baseURL, model string, temperature float64, maxTokens int, hc *http.Client) (*OllamaCompleter, error) {
	client, err := newOllamaClient(baseURL, hc)
	if err != nil {
		return nil, err
	}
	return &OllamaCompleter{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

func newOllamaClient(baseURL string, hc *http.Client) (*api.Client, error) {
	if baseURL == "" {
		return api.ClientFromEnvironment()
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return api.NewClient(parsedURL, hc), nil
}

func (c *OllamaCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	options := map[string]interface{}{
		"temperature": c.temperature,
	}
	if c.maxTokens > 0 {
		options["num_predict"] = c.maxTokens
	}
	req := &api.GenerateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  new(bool), // false
		Options: options,
	}

	var fullResponse strings.Builder
	err := c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		fullResponse.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		perr := &ProviderError{Provider: "ollama", Detail: err.Error(), Err: err}
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			perr.Status = statusErr.StatusCode
			if statusErr.ErrorMessage != "" {
				perr.Detail = statusErr.ErrorMessage
			}
		}
		return "", perr
	}

	text := strings.TrimSpace(fullResponse.String())
	if text == "" {
		return "", &ProviderError{Provider: "ollama", Detail: "response has no completion text"}
	}
	return text, nil
}

// OllamaEmbedder implements embedding.Embedder with Ollama's embed endpoint.
type OllamaEmbedder struct {
	client *api.Client
	model  string
}

func NewOllamaEmbedder(baseURL, model string, hc *http.Client) (*OllamaEmbedder, error) {
	client, err := newOllamaClient(baseURL, hc)
	if err != nil {
		return nil, err
	}
	return &OllamaEmbedder{client: client, model: model}, nil
}

func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed failed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed returned %d vectors for %d inputs", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

func (e *OllamaEmbedder) Model() string { return e.model }
