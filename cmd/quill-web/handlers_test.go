package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/matthewjhunter/quill"
	"github.com/matthewjhunter/quill/internal/auth"
	"github.com/matthewjhunter/quill/internal/config"
)

const testSecret = "test-secret-test-secret-test-secret"

// testFixtures holds a router over a read-only engine seeded with one user
// owning one channel with two posts, plus a second user's private channel.
type testFixtures struct {
	router    http.Handler
	engine    *quill.Engine
	issuer    *auth.Issuer
	channelID int64
	otherID   int64
}

func newTestFixtures(t *testing.T) *testFixtures {
	t.Helper()
	ctx := context.Background()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "test.db")

	engine, err := quill.NewEngine(ctx, quill.EngineConfig{Config: cfg, ReadOnly: true})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	if _, err := engine.EnsureUser(ctx, 100, "tester"); err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	ch, err := engine.CreateChannel(ctx, 100, "Travel")
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	for _, text := range []string{"first post", "second post"} {
		if _, err := engine.AddPost(ctx, 100, "Travel", "", "", text); err != nil {
			t.Fatalf("AddPost: %v", err)
		}
	}
	other, err := engine.CreateChannel(ctx, 200, "Secret")
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	issuer, err := auth.NewIssuer(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	return &testFixtures{
		router:    newRouter(engine, issuer, zap.NewNop()),
		engine:    engine,
		issuer:    issuer,
		channelID: ch.ID,
		otherID:   other.ID,
	}
}

func (f *testFixtures) get(t *testing.T, path string, externalID int64) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if externalID != 0 {
		token, err := f.issuer.Issue(externalID)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	f := newTestFixtures(t)
	w := f.get(t, "/healthz", 0)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	f := newTestFixtures(t)

	w := f.get(t, "/api/channels", 0)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/channels", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", rec.Code)
	}

	stranger, err := auth.NewIssuer("a-completely-different-secret-value", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	token, _ := stranger.Issue(100)
	req = httptest.NewRequest(http.MethodGet, "/api/channels", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("foreign token: status = %d, want 401", rec.Code)
	}
}

func TestMe(t *testing.T) {
	f := newTestFixtures(t)

	w := f.get(t, "/api/me", 100)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var user quill.User
	if err := json.NewDecoder(w.Body).Decode(&user); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if user.ExternalID != 100 || user.DisplayName != "tester" {
		t.Errorf("user = %+v", user)
	}

	if w := f.get(t, "/api/me", 999); w.Code != http.StatusNotFound {
		t.Errorf("unknown user: status = %d, want 404", w.Code)
	}
}

func TestChannels(t *testing.T) {
	f := newTestFixtures(t)

	w := f.get(t, "/api/channels", 100)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var channels []quill.Channel
	if err := json.NewDecoder(w.Body).Decode(&channels); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(channels) != 1 || channels[0].Name != "Travel" || channels[0].PostCount != 2 {
		t.Errorf("channels = %+v", channels)
	}
}

func TestChannelOwnership(t *testing.T) {
	f := newTestFixtures(t)

	if w := f.get(t, "/api/channels/"+strconv.FormatInt(f.channelID, 10), 100); w.Code != http.StatusOK {
		t.Errorf("own channel: status = %d", w.Code)
	}
	if w := f.get(t, "/api/channels/"+strconv.FormatInt(f.otherID, 10), 100); w.Code != http.StatusNotFound {
		t.Errorf("other user's channel: status = %d, want 404", w.Code)
	}
	if w := f.get(t, "/api/channels/"+strconv.FormatInt(f.otherID, 10)+"/posts", 100); w.Code != http.StatusNotFound {
		t.Errorf("other user's posts: status = %d, want 404", w.Code)
	}
}

func TestPosts(t *testing.T) {
	f := newTestFixtures(t)
	base := "/api/channels/" + strconv.FormatInt(f.channelID, 10) + "/posts"

	w := f.get(t, base, 100)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var posts []quill.Post
	if err := json.NewDecoder(w.Body).Decode(&posts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(posts) != 2 || posts[0].Text != "second post" {
		t.Errorf("posts = %+v, want newest first", posts)
	}

	w = f.get(t, base+"?limit=1", 100)
	posts = nil
	if err := json.NewDecoder(w.Body).Decode(&posts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(posts) != 1 {
		t.Errorf("limit=1 returned %d posts", len(posts))
	}

	if w := f.get(t, base+"?limit=abc", 100); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d, want 400", w.Code)
	}
}

func TestPost(t *testing.T) {
	f := newTestFixtures(t)
	ctx := context.Background()

	posts, err := f.engine.RecentPosts(ctx, 100, "Travel", 1)
	if err != nil || len(posts) != 1 {
		t.Fatalf("RecentPosts: %v, %d posts", err, len(posts))
	}
	secret, err := f.engine.AddPost(ctx, 200, "Secret", "", "", "not yours")
	if err != nil {
		t.Fatalf("AddPost: %v", err)
	}

	w := f.get(t, "/api/posts/"+strconv.FormatInt(posts[0].ID, 10), 100)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var got quill.Post
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Text != "second post" || got.ChannelID != f.channelID {
		t.Errorf("post = %+v", got)
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/posts/" + strconv.FormatInt(secret.ID, 10), http.StatusNotFound},
		{"/api/posts/999999", http.StatusNotFound},
		{"/api/posts/abc", http.StatusBadRequest},
		{"/api/posts/0", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if w := f.get(t, tt.path, 100); w.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.path, w.Code, tt.want)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	w := httptest.NewRecorder()
	recovery(zap.NewNop(), panicky).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
