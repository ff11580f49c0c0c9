// Package ingest turns user-supplied example posts (typed messages, CSV and
// text files, RSS/Atom feeds) into entries ready to be stored.
package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/matthewjhunter/quill/internal/storage"
)

// Entry is one parsed example post.
type Entry struct {
	Idea  string
	Style string
	Text  string
}

// Options carries the labels used when an input does not name an idea or
// style itself.
type Options struct {
	DefaultStyle string
	DefaultIdea  string
}

func (o Options) style(s string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return o.DefaultStyle
}

func (o Options) idea(s string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return o.DefaultIdea
}

// UnsupportedInputError is returned for uploads whose extension is not one
// of SupportedExtensions.
type UnsupportedInputError struct {
	Name string
	Ext  string
}

func (e *UnsupportedInputError) Error() string {
	if e.Ext == "" {
		return fmt.Sprintf("unsupported file %q: no extension", e.Name)
	}
	return fmt.Sprintf("unsupported file type %q (%s)", e.Ext, e.Name)
}

// SupportedExtensions lists the upload formats Parse understands.
var SupportedExtensions = []string{".csv", ".txt", ".xml", ".rss", ".atom"}

// Parse dispatches on the file extension of name.
func Parse(name string, data []byte, opts Options) ([]Entry, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".csv":
		return ParseCSV(strings.NewReader(string(data)), opts)
	case ".txt":
		return ParseText(string(data), opts), nil
	case ".xml", ".rss", ".atom":
		return ParseFeed(data, opts)
	default:
		return nil, &UnsupportedInputError{Name: name, Ext: ext}
	}
}

// PostAdder is the slice of storage.Store that Save needs.
type PostAdder interface {
	AddPost(ctx context.Context, channelID int64, ideaTitle, styleName, text string) (*storage.Post, error)
}

// Save persists every entry with non-empty text and returns how many were
// stored. It stops at the first store error; the count covers the posts
// saved before it.
func Save(ctx context.Context, store PostAdder, channelID int64, entries []Entry, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	saved := 0
	for _, e := range entries {
		text := strings.TrimSpace(e.Text)
		if text == "" {
			continue
		}
		if _, err := store.AddPost(ctx, channelID, e.Idea, e.Style, text); err != nil {
			return saved, fmt.Errorf("save post %d: %w", saved+1, err)
		}
		saved++
	}
	logger.Debug("saved example posts",
		zap.Int64("channel_id", channelID),
		zap.Int("saved", saved),
		zap.Int("parsed", len(entries)))
	return saved, nil
}
