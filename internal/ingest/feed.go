package ingest

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
)

const userAgent = "quill/1.0"

var feedPolicy = bluemonday.StrictPolicy()

// ParseFeed turns the items of an RSS, Atom or JSON feed into entries. The
// item title becomes the idea; content (or description) becomes the text with
// markup stripped.
func ParseFeed(data []byte, opts Options) ([]Entry, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return feedEntries(parsed, opts), nil
}

func feedEntries(feed *gofeed.Feed, opts Options) []Entry {
	var entries []Entry
	for _, item := range feed.Items {
		body := item.Content
		if body == "" {
			body = item.Description
		}
		text := plainText(body)
		if text == "" {
			text = plainText(item.Title)
		}
		if text == "" {
			continue
		}
		var style string
		if len(item.Categories) > 0 {
			style = item.Categories[0]
		}
		entries = append(entries, Entry{
			Idea:  opts.idea(plainText(item.Title)),
			Style: opts.style(style),
			Text:  text,
		})
	}
	return entries
}

func plainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(feedPolicy.Sanitize(s)))
}

// Fetcher downloads feeds over HTTP.
type Fetcher struct {
	parser   *gofeed.Parser
	client   *http.Client
	maxBytes int64
}

// NewFetcher creates a fetcher that refuses bodies larger than maxBytes
// (0 means unlimited).
func NewFetcher(client *http.Client, maxBytes int64) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	return &Fetcher{parser: parser, client: client, maxBytes: maxBytes}
}

// FetchFeed fetches and parses the feed at url.
func (f *Fetcher) FetchFeed(ctx context.Context, url string, opts Options) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned status %d", url, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed %s: %w", url, err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("feed %s exceeds %d bytes", url, f.maxBytes)
	}

	parsed, err := f.parser.ParseString(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", url, err)
	}
	return feedEntries(parsed, opts), nil
}
