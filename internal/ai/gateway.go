package ai

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/matthewjhunter/quill/internal/config"
)

// Completer sends one prompt to a text-completion provider and returns the
// raw completion text. Implementations make exactly one upstream call and
// report every failure, including a response without completion text, as a
// *ProviderError.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ProviderError is a failed or malformed completion call.
type ProviderError struct {
	Provider string
	Status   int // upstream HTTP status, 0 when unknown
	Detail   string
	Err      error
}

func (e *ProviderError) Error() string {
	msg := e.Provider + " completion failed"
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewCompleter builds the Completer selected by cfg.Provider.
func NewCompleter(ctx context.Context, cfg config.LLMConfig) (Completer, error) {
	hc := httpClient(cfg)
	switch cfg.Provider {
	case "ollama":
		return NewOllamaCompleter(cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.MaxTokens, hc)
	case "openai", "http":
		return NewOpenAICompleter(hostedBaseURL(cfg), cfg.APIKey, cfg.Model, cfg.Temperature, cfg.MaxTokens, hc), nil
	case "anthropic":
		return NewAnthropicCompleter(hostedBaseURL(cfg), cfg.APIKey, cfg.Model, cfg.Temperature, cfg.MaxTokens, hc), nil
	case "gemini":
		return NewGeminiCompleter(ctx, hostedBaseURL(cfg), cfg.APIKey, cfg.Model, cfg.Temperature, cfg.MaxTokens, hc)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// NewSimilarity builds the near-duplicate checker, or nil when no embedding
// model is configured. Embeddings always come from an Ollama endpoint.
func NewSimilarity(cfg config.LLMConfig) (*SimilarityChecker, error) {
	if cfg.EmbeddingModel == "" {
		return nil, nil
	}
	url := cfg.EmbeddingURL
	if url == "" && cfg.Provider == "ollama" {
		url = cfg.BaseURL
	}
	if url == "" {
		url = "http://localhost:11434"
	}
	embedder, err := NewOllamaEmbedder(url, cfg.EmbeddingModel, httpClient(cfg))
	if err != nil {
		return nil, err
	}
	return NewSimilarityChecker(embedder, cfg.SimilarityThreshold), nil
}

// hostedBaseURL returns the configured base URL for a hosted provider, or ""
// (the SDK default) when base_url still holds the Ollama default. The http
// provider always uses base_url as given.
func hostedBaseURL(cfg config.LLMConfig) string {
	if cfg.Provider != "http" && cfg.BaseURL == config.Default().LLM.BaseURL {
		return ""
	}
	return cfg.BaseURL
}

func httpClient(cfg config.LLMConfig) *http.Client {
	hc := &http.Client{}
	if cfg.TimeoutSeconds > 0 {
		hc.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if cfg.InsecureSkipVerify {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // self-signed provider endpoints
		hc.Transport = tr
	}
	return hc
}

func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
