// Package quill is the public API of the quill post-writing assistant: it
// wires storage, the completion provider, sessions and the conversation
// flow, and exposes channel and generation operations to the front ends.
package quill

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matthewjhunter/quill/internal/ai"
	"github.com/matthewjhunter/quill/internal/config"
	"github.com/matthewjhunter/quill/internal/flow"
	"github.com/matthewjhunter/quill/internal/ingest"
	"github.com/matthewjhunter/quill/internal/storage"
)

// ErrReadOnly is returned by generation calls on a read-only engine.
var ErrReadOnly = errors.New("engine is read-only")

// Engine is the public API for quill's channels, posts and generation.
type Engine struct {
	cfg      *config.Config
	store    storage.Store
	sessions flow.SessionStore
	gen      *ai.Generator
	fetcher  *ingest.Fetcher
	flow     *flow.Controller
	logger   *zap.Logger
}

// NewEngine opens storage and sessions and, unless ReadOnly, builds the
// completion provider and conversation controller.
func NewEngine(ctx context.Context, ec EngineConfig) (*Engine, error) {
	cfg := ec.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := ec.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		store:   store,
		fetcher: ingest.NewFetcher(&http.Client{Timeout: 30 * time.Second}, cfg.Telegram.MaxUploadBytes),
		logger:  logger,
	}
	if ec.ReadOnly {
		return e, nil
	}

	completer := ec.Completer
	if completer == nil {
		completer, err = ai.NewCompleter(ctx, cfg.LLM)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("create completer: %w", err)
		}
	}
	prompts := ai.NewPromptLoader(cfg.Prompts.Ideas, cfg.Prompts.Draft)
	if err := prompts.Validate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("invalid prompt templates: %w", err)
	}
	e.gen = ai.NewGenerator(completer, prompts, logger.Named("ai"))

	sim, err := ai.NewSimilarity(cfg.LLM)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create similarity checker: %w", err)
	}
	if sim != nil {
		e.gen.WithSimilarity(sim)
	}

	e.sessions, err = flow.NewSessionStore(ctx, cfg.Sessions)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open session store: %w", err)
	}
	e.flow = flow.NewController(store, e.sessions, e.gen, e.fetcher, flow.Options{
		MinExamplePosts: cfg.Ingest.MinExamplePosts,
		ContextPosts:    cfg.Ingest.ContextPosts,
		Ingest:          e.ingestOptions(),
	}, logger.Named("flow"))
	return e, nil
}

// Close releases the database and session store.
func (e *Engine) Close() error {
	var errs []error
	if c, ok := e.sessions.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, e.store.Close())
	return errors.Join(errs...)
}

func (e *Engine) Config() *config.Config { return e.cfg }

// Controller returns the conversation controller, nil on a read-only engine.
func (e *Engine) Controller() *flow.Controller { return e.flow }

// ExpireSessions drops conversations idle longer than sessions.idle_minutes.
func (e *Engine) ExpireSessions(ctx context.Context) (int, error) {
	if e.flow == nil {
		return 0, ErrReadOnly
	}
	return e.flow.ExpireIdle(ctx, time.Duration(e.cfg.Sessions.IdleMinutes)*time.Minute)
}

func (e *Engine) ingestOptions() ingest.Options {
	return ingest.Options{
		DefaultStyle: e.cfg.Ingest.DefaultStyle,
		DefaultIdea:  e.cfg.Ingest.DefaultIdea,
	}
}

// EnsureUser returns the user for externalID, creating it on first contact.
func (e *Engine) EnsureUser(ctx context.Context, externalID int64, displayName string) (*User, error) {
	u, err := e.store.FindOrCreateUser(ctx, externalID, displayName)
	if err != nil {
		return nil, err
	}
	return userFromInternal(u), nil
}

// GetUser returns an existing user.
func (e *Engine) GetUser(ctx context.Context, externalID int64) (*User, error) {
	u, err := e.user(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return userFromInternal(u), nil
}

func (e *Engine) user(ctx context.Context, externalID int64) (*storage.User, error) {
	u, err := e.store.GetUserByExternalID(ctx, externalID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &flow.NotFoundError{What: "user", Name: strconv.FormatInt(externalID, 10)}
	}
	return u, err
}

// ListUsers returns every known user.
func (e *Engine) ListUsers(ctx context.Context) ([]User, error) {
	users, err := e.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]User, len(users))
	for i := range users {
		out[i] = *userFromInternal(&users[i])
	}
	return out, nil
}

// ListChannels returns the user's active channels with post counts.
func (e *Engine) ListChannels(ctx context.Context, externalID int64) ([]Channel, error) {
	u, err := e.user(ctx, externalID)
	if err != nil {
		return nil, err
	}
	channels, err := e.store.ListChannels(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	out := make([]Channel, len(channels))
	for i, ch := range channels {
		n, err := e.store.CountPosts(ctx, ch.ID)
		if err != nil {
			return nil, err
		}
		out[i] = channelFromInternal(ch, n)
	}
	return out, nil
}

// CreateChannel creates a channel, registering the user if needed.
func (e *Engine) CreateChannel(ctx context.Context, externalID int64, name string) (*Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("channel name is empty")
	}
	u, err := e.store.FindOrCreateUser(ctx, externalID, "")
	if err != nil {
		return nil, err
	}
	ch, err := e.store.CreateChannel(ctx, u.ID, name)
	if err != nil {
		return nil, err
	}
	e.event(ctx, u.ID, nil, storage.EventChannelCreated)
	out := channelFromInternal(*ch, 0)
	return &out, nil
}

// ResolveChannel finds one of the user's channels by numeric id or by name.
func (e *Engine) ResolveChannel(ctx context.Context, externalID int64, ref string) (*Channel, error) {
	_, ch, err := e.owned(ctx, externalID, ref)
	if err != nil {
		return nil, err
	}
	n, err := e.store.CountPosts(ctx, ch.ID)
	if err != nil {
		return nil, err
	}
	out := channelFromInternal(*ch, n)
	return &out, nil
}

// owned resolves ref among externalID's channels.
func (e *Engine) owned(ctx context.Context, externalID int64, ref string) (*storage.User, *storage.Channel, error) {
	u, err := e.user(ctx, externalID)
	if err != nil {
		return nil, nil, err
	}
	ref = strings.TrimSpace(ref)
	if id, convErr := strconv.ParseInt(ref, 10, 64); convErr == nil {
		ch, err := e.store.GetChannel(ctx, id)
		if err == nil && ch.UserID == u.ID {
			return u, ch, nil
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, nil, err
		}
	}
	matches, err := e.store.FindChannelsByName(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	for _, ch := range matches {
		if ch.UserID == u.ID {
			return u, &ch, nil
		}
	}
	return nil, nil, &flow.NotFoundError{What: "channel", Name: ref}
}

// DeleteChannel removes a channel and its posts.
func (e *Engine) DeleteChannel(ctx context.Context, externalID int64, ref string) error {
	u, ch, err := e.owned(ctx, externalID, ref)
	if err != nil {
		return err
	}
	if err := e.store.DeleteChannel(ctx, ch.ID); err != nil {
		return err
	}
	e.event(ctx, u.ID, nil, storage.EventChannelDeleted)
	return nil
}

// RecentPosts returns up to limit posts, newest first. A non-positive limit
// uses the configured context size.
func (e *Engine) RecentPosts(ctx context.Context, externalID int64, ref string, limit int) ([]Post, error) {
	_, ch, err := e.owned(ctx, externalID, ref)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = e.cfg.Ingest.ContextPosts
	}
	posts, err := e.store.ListRecentPosts(ctx, ch.ID, limit)
	if err != nil {
		return nil, err
	}
	return postsFromInternal(posts), nil
}

// GetPost returns one of the user's posts by id.
func (e *Engine) GetPost(ctx context.Context, externalID, postID int64) (*Post, error) {
	u, err := e.user(ctx, externalID)
	if err != nil {
		return nil, err
	}
	notFound := &flow.NotFoundError{What: "post", Name: strconv.FormatInt(postID, 10)}
	p, err := e.store.GetPost(ctx, postID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, err
	}
	ch, err := e.store.GetChannel(ctx, p.ChannelID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && ch.UserID != u.ID) {
		return nil, notFound
	}
	if err != nil {
		return nil, err
	}
	out := postFromInternal(*p)
	return &out, nil
}

// AddPost stores a post. Empty idea or style fall back to the import
// defaults.
func (e *Engine) AddPost(ctx context.Context, externalID int64, ref, idea, style, text string) (*Post, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("post text is empty")
	}
	u, ch, err := e.owned(ctx, externalID, ref)
	if err != nil {
		return nil, err
	}
	opts := e.ingestOptions()
	if strings.TrimSpace(idea) == "" {
		idea = opts.DefaultIdea
	}
	if strings.TrimSpace(style) == "" {
		style = opts.DefaultStyle
	}
	p, err := e.store.AddPost(ctx, ch.ID, strings.TrimSpace(idea), strings.TrimSpace(style), text)
	if err != nil {
		return nil, err
	}
	e.event(ctx, u.ID, &p.ID, storage.EventPostSaved)
	out := postFromInternal(*p)
	return &out, nil
}

// ImportFile parses an uploaded .csv, .txt or RSS/Atom file into posts.
func (e *Engine) ImportFile(ctx context.Context, externalID int64, ref, name string, data []byte) (*ImportResult, error) {
	u, ch, err := e.owned(ctx, externalID, ref)
	if err != nil {
		return nil, err
	}
	entries, err := ingest.Parse(name, data, e.ingestOptions())
	if err != nil {
		return nil, err
	}
	return e.save(ctx, u, ch, entries), nil
}

// ImportFeed fetches an RSS/Atom feed and stores its items as posts.
func (e *Engine) ImportFeed(ctx context.Context, externalID int64, ref, url string) (*ImportResult, error) {
	u, ch, err := e.owned(ctx, externalID, ref)
	if err != nil {
		return nil, err
	}
	entries, err := e.fetcher.FetchFeed(ctx, url, e.ingestOptions())
	if err != nil {
		return nil, err
	}
	return e.save(ctx, u, ch, entries), nil
}

func (e *Engine) save(ctx context.Context, u *storage.User, ch *storage.Channel, entries []ingest.Entry) *ImportResult {
	result := &ImportResult{Channel: ch.Name, Parsed: len(entries)}
	saved, err := ingest.Save(ctx, e.store, ch.ID, entries, e.logger)
	result.Imported = saved
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	if saved > 0 {
		e.event(ctx, u.ID, nil, storage.EventPostsImported)
	}
	return result
}

// contextPosts checks the example-post minimum and returns the posts used
// as generation context.
func (e *Engine) contextPosts(ctx context.Context, ch *storage.Channel) ([]storage.Post, error) {
	n, err := e.store.CountPosts(ctx, ch.ID)
	if err != nil {
		return nil, err
	}
	if n < e.cfg.Ingest.MinExamplePosts {
		return nil, &flow.PreconditionError{Reason: "not enough example posts", Have: n, Need: e.cfg.Ingest.MinExamplePosts}
	}
	return e.store.ListRecentPosts(ctx, ch.ID, e.cfg.Ingest.ContextPosts)
}

// GenerateIdeas suggests post ideas for a channel.
func (e *Engine) GenerateIdeas(ctx context.Context, externalID int64, ref string) ([]Idea, error) {
	if e.gen == nil {
		return nil, ErrReadOnly
	}
	_, ch, err := e.owned(ctx, externalID, ref)
	if err != nil {
		return nil, err
	}
	posts, err := e.contextPosts(ctx, ch)
	if err != nil {
		return nil, err
	}
	ideas, err := e.gen.GenerateIdeas(ctx, ch.Name, posts)
	if err != nil {
		return nil, err
	}
	return ideasFromInternal(ideas), nil
}

// GenerateDraft writes a post for idea in style. The draft is not stored;
// save it with AddPost.
func (e *Engine) GenerateDraft(ctx context.Context, externalID int64, ref, idea, style string) (*Draft, error) {
	if e.gen == nil {
		return nil, ErrReadOnly
	}
	idea, style = strings.TrimSpace(idea), strings.TrimSpace(style)
	if idea == "" || style == "" {
		return nil, errors.New("idea and style are required")
	}
	u, ch, err := e.owned(ctx, externalID, ref)
	if err != nil {
		return nil, err
	}
	posts, err := e.contextPosts(ctx, ch)
	if err != nil {
		return nil, err
	}
	d, err := e.gen.GenerateDraft(ctx, ch.Name, posts, idea, style)
	if err != nil {
		return nil, err
	}
	e.event(ctx, u.ID, nil, storage.EventPostGenerated)
	return &Draft{
		Idea:          idea,
		Style:         style,
		Text:          d.Text,
		Similarity:    d.Similarity,
		NearDuplicate: d.NearDuplicate,
	}, nil
}

func (e *Engine) event(ctx context.Context, userID int64, postID *int64, eventType string) {
	if err := e.store.AddEvent(ctx, userID, postID, eventType); err != nil {
		e.logger.Warn("failed to record event", zap.String("type", eventType), zap.Error(err))
	}
}
