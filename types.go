package quill

import (
	"time"

	"go.uber.org/zap"

	"github.com/matthewjhunter/quill/internal/ai"
	"github.com/matthewjhunter/quill/internal/config"
	"github.com/matthewjhunter/quill/internal/storage"
)

// EngineConfig configures the quill engine.
type EngineConfig struct {
	Config *config.Config
	Logger *zap.Logger
	// Completer replaces the provider built from Config.LLM, mainly for tests.
	Completer ai.Completer
	// ReadOnly skips the completion provider; generation calls fail.
	ReadOnly bool
}

// User is a person known to the bot, keyed by their platform account id.
type User struct {
	ID          int64     `json:"id"`
	ExternalID  int64     `json:"external_id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	LastActive  time.Time `json:"last_active"`
}

// Channel is a named bucket of posts owned by one user.
type Channel struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	PostCount int       `json:"post_count"`
	CreatedAt time.Time `json:"created_at"`
}

// Post is one stored channel post.
type Post struct {
	ID        int64     `json:"id"`
	ChannelID int64     `json:"channel_id"`
	Idea      string    `json:"idea"`
	Style     string    `json:"style"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Idea is a suggested topic with candidate styles.
type Idea struct {
	Title  string   `json:"title"`
	Styles []string `json:"styles"`
}

// Draft is a generated, unsaved post.
type Draft struct {
	Idea          string  `json:"idea"`
	Style         string  `json:"style"`
	Text          string  `json:"text"`
	Similarity    float64 `json:"similarity,omitempty"`
	NearDuplicate bool    `json:"near_duplicate,omitempty"`
}

// ImportResult summarizes a bulk import.
type ImportResult struct {
	Channel  string   `json:"channel"`
	Parsed   int      `json:"parsed"`
	Imported int      `json:"imported"`
	Errors   []string `json:"errors,omitempty"`
}

func userFromInternal(u *storage.User) *User {
	return &User{
		ID:          u.ID,
		ExternalID:  u.ExternalID,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
		LastActive:  u.LastActive,
	}
}

func channelFromInternal(c storage.Channel, posts int) Channel {
	return Channel{ID: c.ID, Name: c.Name, PostCount: posts, CreatedAt: c.CreatedAt}
}

func postFromInternal(p storage.Post) Post {
	return Post{
		ID:        p.ID,
		ChannelID: p.ChannelID,
		Idea:      p.Idea,
		Style:     p.Style,
		Text:      p.Text,
		CreatedAt: p.CreatedAt,
	}
}

func postsFromInternal(posts []storage.Post) []Post {
	out := make([]Post, len(posts))
	for i, p := range posts {
		out[i] = postFromInternal(p)
	}
	return out
}

func ideasFromInternal(ideas []ai.Idea) []Idea {
	out := make([]Idea, len(ideas))
	for i, idea := range ideas {
		out[i] = Idea{Title: idea.Title, Styles: append([]string(nil), idea.Styles...)}
	}
	return out
}
