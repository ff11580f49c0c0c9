package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/matthewjhunter/quill"
	"github.com/matthewjhunter/quill/internal/config"
)

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <link>https://example.com</link>
    <item><title>One</title><guid>1</guid><description>First item body.</description></item>
    <item><title>Two</title><guid>2</guid><description>Second item body.</description></item>
    <item><title>Three</title><guid>3</guid><description>Third item body.</description></item>
  </channel>
</rss>`

type stubCompleter struct {
	response string
}

func (s *stubCompleter) Complete(context.Context, string) (string, error) {
	return s.response, nil
}

// connect starts the server on in-memory transports and returns a client
// session talking to it.
func connect(t *testing.T, llm *stubCompleter) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "test.db")
	engine, err := quill.NewEngine(ctx, quill.EngineConfig{Config: cfg, Completer: llm})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	srv := newServer(engine, 42, nil).mcpServer()
	clientT, serverT := mcp.NewInMemoryTransports()
	ss, err := srv.Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

// call invokes a tool and returns its first text content and error flag.
func call(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(res.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): content is %T, want text", name, res.Content[0])
	}
	return text.Text, res.IsError
}

func mustCall(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) string {
	t.Helper()
	text, isErr := call(t, cs, name, args)
	if isErr {
		t.Fatalf("%s returned tool error: %s", name, text)
	}
	return text
}

func TestToolsList(t *testing.T) {
	cs := connect(t, &stubCompleter{})
	res, err := cs.ListTools(context.Background(), &mcp.ListToolsParams{})
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	names := make(map[string]bool)
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{
		"channels_list", "channel_create", "channel_delete", "posts_recent",
		"post_add", "feed_import", "ideas_generate", "draft_generate",
	} {
		if !names[want] {
			t.Errorf("tool %s not registered", want)
		}
	}
}

func TestChannelTools(t *testing.T) {
	cs := connect(t, &stubCompleter{})

	mustCall(t, cs, "channel_create", map[string]any{"name": "Travel"})
	text := mustCall(t, cs, "channels_list", map[string]any{})
	var channels []quill.Channel
	if err := json.Unmarshal([]byte(text), &channels); err != nil {
		t.Fatalf("unmarshal channels: %v", err)
	}
	if len(channels) != 1 || channels[0].Name != "Travel" {
		t.Fatalf("channels = %+v", channels)
	}

	// another user sees nothing of the default user's channel
	if text, isErr := call(t, cs, "posts_recent", map[string]any{"channel": "Travel", "user": 7}); !isErr {
		t.Errorf("posts_recent as another user succeeded: %s", text)
	}

	mustCall(t, cs, "channel_delete", map[string]any{"channel": "Travel"})
	text = mustCall(t, cs, "channels_list", map[string]any{})
	if strings.TrimSpace(text) != "[]" {
		t.Errorf("channels after delete = %s, want []", text)
	}
}

func TestPostTools(t *testing.T) {
	cs := connect(t, &stubCompleter{})
	mustCall(t, cs, "channel_create", map[string]any{"name": "Food"})

	mustCall(t, cs, "post_add", map[string]any{"channel": "Food", "text": "Ramen night"})
	mustCall(t, cs, "post_add", map[string]any{"channel": "Food", "text": "Taco Tuesday", "style": "Upbeat"})

	text := mustCall(t, cs, "posts_recent", map[string]any{"channel": "Food", "limit": 1})
	var posts []quill.Post
	if err := json.Unmarshal([]byte(text), &posts); err != nil {
		t.Fatalf("unmarshal posts: %v", err)
	}
	if len(posts) != 1 || posts[0].Text != "Taco Tuesday" || posts[0].Style != "Upbeat" {
		t.Errorf("posts = %+v", posts)
	}

	if _, isErr := call(t, cs, "post_add", map[string]any{"channel": "Food", "text": "  "}); !isErr {
		t.Error("empty post text should be a tool error")
	}
}

func TestPostLimit(t *testing.T) {
	n := func(v int) *int { return &v }
	tests := []struct {
		in   *int
		want int
	}{
		{nil, 0},
		{n(-3), 0},
		{n(0), 0},
		{n(20), 20},
		{n(100), 100},
		{n(1_000_000), 100},
	}
	for i, tt := range tests {
		if got := postLimit(tt.in); got != tt.want {
			t.Errorf("case %d: postLimit = %d, want %d", i, got, tt.want)
		}
	}
}

func TestFeedImport(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, testRSS)
	}))
	defer ts.Close()

	cs := connect(t, &stubCompleter{})
	mustCall(t, cs, "channel_create", map[string]any{"name": "News"})

	text := mustCall(t, cs, "feed_import", map[string]any{"channel": "News", "url": ts.URL})
	var result quill.ImportResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Imported != 3 {
		t.Errorf("imported = %d, want 3 (%+v)", result.Imported, result)
	}
}

func TestGenerateTools(t *testing.T) {
	llm := &stubCompleter{response: "1. Sleeper trains\n- Calm\n- Nostalgic\n2. Street food\n- Humorous"}
	cs := connect(t, llm)
	mustCall(t, cs, "channel_create", map[string]any{"name": "Travel"})

	text, isErr := call(t, cs, "ideas_generate", map[string]any{"channel": "Travel"})
	if !isErr || !strings.Contains(text, "not enough example posts") {
		t.Errorf("ideas_generate on empty channel = %q (error=%v)", text, isErr)
	}

	for _, p := range []string{"one", "two", "three"} {
		mustCall(t, cs, "post_add", map[string]any{"channel": "Travel", "text": p})
	}

	text = mustCall(t, cs, "ideas_generate", map[string]any{"channel": "Travel"})
	var ideas []quill.Idea
	if err := json.Unmarshal([]byte(text), &ideas); err != nil {
		t.Fatalf("unmarshal ideas: %v", err)
	}
	if len(ideas) != 2 || ideas[0].Title != "Sleeper trains" || len(ideas[0].Styles) != 2 {
		t.Errorf("ideas = %+v", ideas)
	}

	llm.response = "Night trains are back."
	text = mustCall(t, cs, "draft_generate", map[string]any{
		"channel": "Travel", "idea": "Sleeper trains", "style": "Calm", "save": true,
	})
	var draft quill.Draft
	if err := json.Unmarshal([]byte(text), &draft); err != nil {
		t.Fatalf("unmarshal draft: %v", err)
	}
	if draft.Text != "Night trains are back." {
		t.Errorf("draft = %+v", draft)
	}

	text = mustCall(t, cs, "posts_recent", map[string]any{"channel": "Travel", "limit": 1})
	if !strings.Contains(text, "Night trains are back.") {
		t.Errorf("saved draft not stored: %s", text)
	}
}
