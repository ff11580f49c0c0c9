package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/matthewjhunter/quill/internal/config"
)

func TestOllamaCompleter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "llama3" || req.Prompt != "hello" {
			t.Errorf("unexpected request %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"llama3","response":"1. Idea\n- Style","done":true}` + "\n"))
	}))
	defer srv.Close()

	c, err := NewOllamaCompleter(srv.URL, "llama3", 0.7, 0, srv.Client())
	if err != nil {
		t.Fatalf("NewOllamaCompleter failed: %v", err)
	}
	out, err := c.Complete(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != "1. Idea\n- Style" {
		t.Errorf("Complete = %q", out)
	}
}

func TestOllamaCompleter_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	c, _ := NewOllamaCompleter(srv.URL, "missing", 0.7, 0, srv.Client())
	_, err := c.Complete(context.Background(), "hello")
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.Provider != "ollama" || !strings.Contains(perr.Detail, "model not found") {
		t.Errorf("unexpected error %+v", perr)
	}
}

func TestOllamaCompleter_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model":"llama3","response":"","done":true}` + "\n"))
	}))
	defer srv.Close()

	c, _ := NewOllamaCompleter(srv.URL, "llama3", 0.7, 0, srv.Client())
	_, err := c.Complete(context.Background(), "hello")
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError for empty completion, got %v", err)
	}
}

func openAIServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAICompleter(t *testing.T) {
	srv := openAIServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1,
		"model": "gpt-4o-mini",
		"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": " Draft text "}}]
	}`)

	c := NewOpenAICompleter(srv.URL+"/", "sk-test", "gpt-4o-mini", 0.7, 256, srv.Client())
	out, err := c.Complete(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != "Draft text" {
		t.Errorf("Complete = %q", out)
	}
}

func TestOpenAICompleter_NoChoices(t *testing.T) {
	srv := openAIServer(t, http.StatusOK, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`)

	c := NewOpenAICompleter(srv.URL+"/", "sk-test", "m", 0.7, 0, srv.Client())
	_, err := c.Complete(context.Background(), "hello")
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.Status != 0 {
		t.Errorf("status = %d, want 0 for malformed response", perr.Status)
	}
}

func TestOpenAICompleter_HTTPError(t *testing.T) {
	srv := openAIServer(t, http.StatusUnauthorized, `{"error":{"message":"invalid api key","type":"invalid_request_error"}}`)

	c := NewOpenAICompleter(srv.URL+"/", "sk-test", "m", 0.7, 0, srv.Client())
	_, err := c.Complete(context.Background(), "hello")
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.Status != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", perr.Status)
	}
}

func TestNewCompleter(t *testing.T) {
	cfg := config.Default().LLM

	for _, provider := range []string{"ollama", "openai", "http", "anthropic"} {
		cfg.Provider = provider
		if _, err := NewCompleter(context.Background(), cfg); err != nil {
			t.Errorf("NewCompleter(%s) failed: %v", provider, err)
		}
	}

	cfg.Provider = "gemini"
	cfg.APIKey = ""
	if _, err := NewCompleter(context.Background(), cfg); err == nil {
		t.Error("expected gemini without api key to fail")
	}

	cfg.Provider = "carrier-pigeon"
	if _, err := NewCompleter(context.Background(), cfg); err == nil {
		t.Error("expected unknown provider to fail")
	}
}

func TestProviderErrorMessage(t *testing.T) {
	err := &ProviderError{Provider: "openai", Status: 429, Detail: "rate limited"}
	if got := err.Error(); got != "openai completion failed (status 429): rate limited" {
		t.Errorf("Error() = %q", got)
	}
	inner := errors.New("dial tcp: refused")
	wrapped := &ProviderError{Provider: "ollama", Err: inner}
	if !errors.Is(wrapped, inner) {
		t.Error("ProviderError should unwrap to its cause")
	}
}

// fakeProvider serves body with status on every request whose path ends in
// suffix.
func fakeProvider(t *testing.T, suffix string, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, suffix) {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnthropicCompleter(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		want       string
		wantStatus int
		wantErr    bool
	}{
		{
			name:   "text block",
			status: http.StatusOK,
			body: `{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
				"content":[{"type":"text","text":" Draft text "}],
				"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":2}}`,
			want: "Draft text",
		},
		{
			name:   "no text block",
			status: http.StatusOK,
			body: `{"id":"msg_2","type":"message","role":"assistant","model":"claude-test",
				"content":[],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":0}}`,
			wantErr: true,
		},
		{
			name:       "http error",
			status:     http.StatusUnauthorized,
			body:       `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`,
			wantStatus: http.StatusUnauthorized,
			wantErr:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeProvider(t, "/v1/messages", tt.status, tt.body)
			c := NewAnthropicCompleter(srv.URL+"/", "sk-test", "claude-test", 0.7, 256, srv.Client())
			out, err := c.Complete(context.Background(), "hello")
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Complete failed: %v", err)
				}
				if out != tt.want {
					t.Errorf("Complete = %q, want %q", out, tt.want)
				}
				return
			}
			var perr *ProviderError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ProviderError, got %v", err)
			}
			if perr.Provider != "anthropic" || perr.Status != tt.wantStatus {
				t.Errorf("error = %+v, want anthropic with status %d", perr, tt.wantStatus)
			}
		})
	}
}

func TestGeminiCompleter(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		want       string
		wantStatus int
		wantErr    bool
	}{
		{
			name:   "candidate text",
			status: http.StatusOK,
			body:   `{"candidates":[{"content":{"role":"model","parts":[{"text":" Draft text "}]}}]}`,
			want:   "Draft text",
		},
		{
			name:    "no candidates",
			status:  http.StatusOK,
			body:    `{"candidates":[]}`,
			wantErr: true,
		},
		{
			name:    "empty text",
			status:  http.StatusOK,
			body:    `{"candidates":[{"content":{"role":"model","parts":[{"text":""}]}}]}`,
			wantErr: true,
		},
		{
			name:       "http error",
			status:     http.StatusBadRequest,
			body:       `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`,
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeProvider(t, ":generateContent", tt.status, tt.body)
			c, err := NewGeminiCompleter(context.Background(), srv.URL+"/", "key-test", "gemini-test", 0.7, 256, srv.Client())
			if err != nil {
				t.Fatalf("NewGeminiCompleter failed: %v", err)
			}
			out, err := c.Complete(context.Background(), "hello")
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Complete failed: %v", err)
				}
				if out != tt.want {
					t.Errorf("Complete = %q, want %q", out, tt.want)
				}
				return
			}
			var perr *ProviderError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ProviderError, got %v", err)
			}
			if perr.Provider != "gemini" || perr.Status != tt.wantStatus {
				t.Errorf("error = %+v, want gemini with status %d", perr, tt.wantStatus)
			}
		})
	}
}

func TestHostedBaseURL(t *testing.T) {
	cfg := config.Default().LLM
	cfg.Provider = "anthropic"
	if got := hostedBaseURL(cfg); got != "" {
		t.Errorf("anthropic with the ollama default = %q, want SDK default", got)
	}
	cfg.Provider = "http"
	if got := hostedBaseURL(cfg); got != cfg.BaseURL {
		t.Errorf("http provider = %q, want %q", got, cfg.BaseURL)
	}
	cfg.Provider = "openai"
	cfg.BaseURL = "https://proxy.example.com/v1"
	if got := hostedBaseURL(cfg); got != cfg.BaseURL {
		t.Errorf("openai with explicit base_url = %q", got)
	}
}
