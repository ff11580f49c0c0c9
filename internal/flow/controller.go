// Package flow implements the per-user conversation: channel management,
// example-post ingestion, and the idea -> style -> draft -> confirm wizard.
package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matthewjhunter/quill/internal/ai"
	"github.com/matthewjhunter/quill/internal/ingest"
	"github.com/matthewjhunter/quill/internal/storage"
)

// Options tunes the business rules of the controller.
type Options struct {
	MinExamplePosts int
	ContextPosts    int
	Ingest          ingest.Options
}

// Controller runs user actions against their session. Actions of one user
// are serialized; different users proceed independently.
type Controller struct {
	store    storage.Store
	sessions SessionStore
	gen      *ai.Generator
	fetcher  *ingest.Fetcher
	opts     Options
	logger   *zap.Logger

	locksMu sync.Mutex
	locks   map[int64]*userLock
}

// userLock serializes one user's actions. refs counts holders and waiters so
// the entry can be dropped once nobody needs it.
type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewController wires a controller. fetcher and logger may be nil; without a
// fetcher feed-URL import is unavailable.
func NewController(store storage.Store, sessions SessionStore, gen *ai.Generator, fetcher *ingest.Fetcher, opts Options, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ContextPosts <= 0 {
		opts.ContextPosts = 5
	}
	return &Controller{
		store:    store,
		sessions: sessions,
		gen:      gen,
		fetcher:  fetcher,
		opts:     opts,
		logger:   logger,
		locks:    make(map[int64]*userLock),
	}
}

func (c *Controller) lock(externalID int64) *userLock {
	c.locksMu.Lock()
	l, ok := c.locks[externalID]
	if !ok {
		l = &userLock{}
		c.locks[externalID] = l
	}
	l.refs++
	c.locksMu.Unlock()

	l.mu.Lock()
	return l
}

func (c *Controller) unlock(externalID int64, l *userLock) {
	l.mu.Unlock()

	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(c.locks, externalID)
	}
}

// Session returns a copy of the user's current session, or nil.
func (c *Controller) Session(ctx context.Context, externalID int64) (*Session, error) {
	return c.sessions.Get(ctx, externalID)
}

// Handle applies one action. Domain failures come back as errors
// (*PreconditionError, *NotFoundError, *ai.ProviderError,
// *ingest.UnsupportedInputError) and leave the session exactly as it was,
// except that a selected channel deleted elsewhere is dropped.
func (c *Controller) Handle(ctx context.Context, in Input) (*Reply, error) {
	l := c.lock(in.ExternalID)
	defer c.unlock(in.ExternalID, l)

	sess, err := c.loadSession(ctx, in)
	if err != nil {
		return nil, err
	}

	reply, err := c.dispatch(ctx, sess, in)
	if err != nil {
		var gone *channelGone
		if errors.As(err, &gone) {
			if perr := c.sessions.Put(ctx, sess); perr != nil {
				c.logger.Warn("failed to reset session", zap.Int64("user", in.ExternalID), zap.Error(perr))
			}
		}
		c.logger.Debug("action rejected",
			zap.Int64("user", in.ExternalID),
			zap.String("action", string(in.Action)),
			zap.String("state", sess.State.String()),
			zap.Error(err))
		return nil, err
	}

	if err := c.sessions.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	reply.State = sess.State
	return reply, nil
}

// loadSession returns a working copy of the session, creating the user and
// session on first contact. /start always begins a fresh session.
func (c *Controller) loadSession(ctx context.Context, in Input) (*Session, error) {
	if in.Action == ActionStart {
		if err := c.sessions.Delete(ctx, in.ExternalID); err != nil {
			return nil, fmt.Errorf("reset session: %w", err)
		}
	}
	sess, err := c.sessions.Get(ctx, in.ExternalID)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return sess, nil
	}
	user, err := c.store.FindOrCreateUser(ctx, in.ExternalID, in.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	if sess == nil {
		sess = &Session{ExternalID: in.ExternalID}
	}
	sess.UserID = user.ID
	return sess, nil
}

func (c *Controller) dispatch(ctx context.Context, s *Session, in Input) (*Reply, error) {
	switch in.Action {
	case ActionStart:
		return c.start(ctx, s)
	case ActionHelp:
		return helpReply(), nil
	case ActionBack:
		s.enter(s.rest())
		return c.menu(s, "↩️ Back to the main menu."), nil
	case ActionAddChannel:
		s.enter(StateAwaitingChannelName)
		return &Reply{Text: "✍️ Send the name of the new channel."}, nil
	case ActionChooseChannel:
		return c.listChannels(ctx, s, StateChoosingChannel)
	case ActionDeleteChannel:
		return c.listChannels(ctx, s, StateChoosingChannelToDelete)
	case ActionSelectChannel:
		return c.selectChannelByID(ctx, s, in.ID)
	case ActionDeleteChannelID:
		return c.deleteChannelByID(ctx, s, in.ID)
	case ActionText:
		return c.text(ctx, s, in.Text)
	case ActionNewPost:
		return c.newPost(ctx, s)
	case ActionPickIdea:
		return c.pickIdea(s, in.Index)
	case ActionCustomIdea:
		if s.State != StateChoosingIdea {
			return staleReply(), nil
		}
		s.enter(StateAwaitingCustomIdea)
		return &Reply{Text: "✍️ Type your idea for the post.", Options: []Option{optBackToIdeas}}, nil
	case ActionPickStyle:
		if s.State != StateChoosingStyle || in.Index < 0 || in.Index >= len(s.Compose.Styles) {
			return staleReply(), nil
		}
		return c.chooseStyle(ctx, s, s.Compose.Styles[in.Index])
	case ActionBackToIdeas:
		return c.backToIdeas(s), nil
	case ActionBackToStyles:
		return c.backToStyles(s), nil
	case ActionConfirmDraft:
		return c.confirmDraft(ctx, s)
	case ActionAddPosts:
		return c.addPosts(ctx, s)
	case ActionIngestManual:
		return c.ingestMethod(ctx, s, StateIngestManual)
	case ActionIngestFile:
		return c.ingestMethod(ctx, s, StateIngestFile)
	case ActionIngestFeed:
		return c.ingestMethod(ctx, s, StateIngestFeedURL)
	case ActionIngestDone:
		return c.ingestDone(ctx, s)
	case ActionUpload:
		return c.upload(ctx, s, in.FileName, in.Data)
	default:
		return nil, fmt.Errorf("unknown action %q", in.Action)
	}
}

func (c *Controller) start(ctx context.Context, s *Session) (*Reply, error) {
	s.Channel = nil
	s.enter(StateIdle)

	channels, err := c.store.ListChannels(ctx, s.UserID)
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return &Reply{
			Text: "👋 Hi! I help you write posts for your channels.\n\n" +
				"You have no channels yet. Create one with /add_channel.",
			Menu: []string{"/add_channel", "/help"},
		}, nil
	}
	reply := &Reply{
		Text: fmt.Sprintf("👋 Welcome back! You have %d channel(s). Pick one to work with:", len(channels)),
		Menu: []string{"/add_channel", "/choose_channel", "/delete_channel", "/help"},
	}
	for _, ch := range channels {
		reply.Options = append(reply.Options, channelOption(ch.ID, ch.Name))
	}
	return reply, nil
}

func helpReply() *Reply {
	return &Reply{Text: "ℹ️ Commands:\n" +
		"/add_channel: create a channel\n" +
		"/choose_channel: select a channel\n" +
		"/delete_channel: delete a channel\n" +
		"/addposts: add example posts to the selected channel\n" +
		"/newpost: generate a new post\n" +
		"/done: finish adding posts\n" +
		"/back: return to the main menu"}
}

func staleReply() *Reply {
	return &Reply{Text: "⌛ That option is no longer available."}
}

func (c *Controller) menu(s *Session, text string) *Reply {
	if s.Channel == nil {
		return &Reply{Text: text, Menu: []string{"/add_channel", "/choose_channel", "/help"}}
	}
	return &Reply{
		Text: text + fmt.Sprintf("\nSelected channel: %s", s.Channel.Name),
		Menu: []string{"/newpost", "/addposts", "/choose_channel", "/back"},
	}
}

func (c *Controller) listChannels(ctx context.Context, s *Session, next State) (*Reply, error) {
	channels, err := c.store.ListChannels(ctx, s.UserID)
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		s.enter(s.rest())
		return &Reply{Text: "You have no channels yet. Create one with /add_channel.", Menu: []string{"/add_channel"}}, nil
	}

	s.enter(next)
	reply := &Reply{}
	if next == StateChoosingChannelToDelete {
		reply.Text = "🗑 Which channel should be deleted?"
		for _, ch := range channels {
			reply.Options = append(reply.Options, deleteOption(ch.ID, ch.Name))
		}
	} else {
		reply.Text = "📋 Pick a channel or type its name:"
		for _, ch := range channels {
			reply.Options = append(reply.Options, channelOption(ch.ID, ch.Name))
		}
	}
	return reply, nil
}

// ownedChannel loads a channel and checks it belongs to the session's user.
func (c *Controller) ownedChannel(ctx context.Context, s *Session, id int64) (*storage.Channel, error) {
	ch, err := c.store.GetChannel(ctx, id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && ch.UserID != s.UserID) {
		return nil, &NotFoundError{What: "channel"}
	}
	return ch, err
}

// channelByName resolves a typed name among the user's own channels.
func (c *Controller) channelByName(ctx context.Context, s *Session, name string) (*storage.Channel, error) {
	name = strings.TrimSpace(name)
	matches, err := c.store.FindChannelsByName(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, ch := range matches {
		if ch.UserID == s.UserID {
			return &ch, nil
		}
	}
	return nil, &NotFoundError{What: "channel", Name: name}
}

func (c *Controller) selectChannel(s *Session, ch *storage.Channel) *Reply {
	s.Channel = &ChannelRef{ID: ch.ID, Name: ch.Name}
	s.enter(StateChannelSelected)
	return &Reply{
		Text: fmt.Sprintf("✅ Channel %q selected.\nGenerate a post with /newpost or add examples with /addposts.", ch.Name),
		Menu: []string{"/newpost", "/addposts", "/back"},
	}
}

func (c *Controller) selectChannelByID(ctx context.Context, s *Session, id int64) (*Reply, error) {
	ch, err := c.ownedChannel(ctx, s, id)
	if err != nil {
		return nil, err
	}
	return c.selectChannel(s, ch), nil
}

func (c *Controller) deleteChannel(ctx context.Context, s *Session, ch *storage.Channel) (*Reply, error) {
	if err := c.store.DeleteChannel(ctx, ch.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &NotFoundError{What: "channel"}
		}
		return nil, err
	}
	c.event(ctx, s, nil, storage.EventChannelDeleted)
	if s.Channel != nil && s.Channel.ID == ch.ID {
		s.Channel = nil
	}
	s.enter(s.rest())
	return c.menu(s, fmt.Sprintf("🗑 Channel %q deleted.", ch.Name)), nil
}

func (c *Controller) deleteChannelByID(ctx context.Context, s *Session, id int64) (*Reply, error) {
	ch, err := c.ownedChannel(ctx, s, id)
	if err != nil {
		return nil, err
	}
	return c.deleteChannel(ctx, s, ch)
}

// text routes free text by state.
func (c *Controller) text(ctx context.Context, s *Session, text string) (*Reply, error) {
	text = strings.TrimSpace(text)
	switch s.State {
	case StateAwaitingChannelName:
		if text == "" {
			return &Reply{Text: "✍️ The name cannot be empty. Send the channel name."}, nil
		}
		ch, err := c.store.CreateChannel(ctx, s.UserID, text)
		if err != nil {
			return nil, err
		}
		c.event(ctx, s, nil, storage.EventChannelCreated)
		reply := c.selectChannel(s, ch)
		reply.Text = fmt.Sprintf("✅ Channel %q created and selected.\n"+
			"Add at least %d example posts with /addposts, then generate with /newpost.",
			ch.Name, c.opts.MinExamplePosts)
		return reply, nil

	case StateChoosingChannel:
		ch, err := c.channelByName(ctx, s, text)
		if err != nil {
			return nil, err
		}
		return c.selectChannel(s, ch), nil

	case StateChoosingChannelToDelete:
		ch, err := c.channelByName(ctx, s, text)
		if err != nil {
			return nil, err
		}
		return c.deleteChannel(ctx, s, ch)

	case StateChoosingIdea, StateAwaitingCustomIdea:
		if text == "" {
			return &Reply{Text: "✍️ Type your idea for the post."}, nil
		}
		return c.chooseIdea(s, text, nil), nil

	case StateChoosingStyle:
		if text == "" {
			return c.styleReply(s), nil
		}
		return c.chooseStyle(ctx, s, text)

	case StateIngestManual:
		return c.saveManual(ctx, s, text)

	case StateIngestFeedURL:
		return c.importFeed(ctx, s, text)

	case StateIngestFile:
		return &Reply{Text: "📂 Send the file as a document, or /back to cancel."}, nil
	}
	return c.menu(s, "🤔 I did not understand that. Use the menu or /help."), nil
}

// channelGone is the NotFoundError for the session's selected channel, which
// was deleted from another front end. Handle saves the session it reset.
type channelGone struct {
	*NotFoundError
}

func (g *channelGone) Unwrap() error { return g.NotFoundError }

// requireChannel checks that a channel is selected and still exists. A
// vanished channel is dropped from the session, which returns to Idle.
func (c *Controller) requireChannel(ctx context.Context, s *Session) error {
	if s.Channel == nil {
		return &PreconditionError{Reason: "no channel selected, use /choose_channel first"}
	}
	ch, err := c.ownedChannel(ctx, s, s.Channel.ID)
	var nf *NotFoundError
	if errors.As(err, &nf) {
		c.logger.Info("selected channel is gone",
			zap.Int64("user", s.ExternalID),
			zap.Int64("channel_id", s.Channel.ID))
		s.Channel = nil
		s.enter(StateIdle)
		return &channelGone{nf}
	}
	if err != nil {
		return err
	}
	s.Channel.Name = ch.Name
	return nil
}

func (c *Controller) recentPosts(ctx context.Context, s *Session) ([]storage.Post, error) {
	return c.store.ListRecentPosts(ctx, s.Channel.ID, c.opts.ContextPosts)
}

func (c *Controller) newPost(ctx context.Context, s *Session) (*Reply, error) {
	if err := c.requireChannel(ctx, s); err != nil {
		return nil, err
	}
	count, err := c.store.CountPosts(ctx, s.Channel.ID)
	if err != nil {
		return nil, err
	}
	if count < c.opts.MinExamplePosts {
		return nil, &PreconditionError{Reason: "not enough example posts", Have: count, Need: c.opts.MinExamplePosts}
	}

	posts, err := c.recentPosts(ctx, s)
	if err != nil {
		return nil, err
	}
	ideas, err := c.gen.GenerateIdeas(ctx, s.Channel.Name, posts)
	if err != nil {
		return nil, err
	}

	s.enter(StateChoosingIdea)
	s.Compose = &Compose{Ideas: ideas}
	return c.ideasReply(s), nil
}

func (c *Controller) ideasReply(s *Session) *Reply {
	var b strings.Builder
	b.WriteString("💡 Ideas for the next post:\n")
	reply := &Reply{}
	for i, idea := range s.Compose.Ideas {
		fmt.Fprintf(&b, "%d. %s\n", i+1, idea.Title)
		reply.Options = append(reply.Options, ideaOption(i, idea.Title))
	}
	b.WriteString("\nPick one or type your own.")
	reply.Text = b.String()
	reply.Options = append(reply.Options, optCustomIdea)
	return reply
}

func (c *Controller) pickIdea(s *Session, i int) (*Reply, error) {
	if s.State != StateChoosingIdea || i < 0 || i >= len(s.Compose.Ideas) {
		return staleReply(), nil
	}
	idea := s.Compose.Ideas[i]
	return c.chooseIdea(s, idea.Title, idea.Styles), nil
}

// chooseIdea moves to style choice. Ideas without styles get the default set.
func (c *Controller) chooseIdea(s *Session, title string, styles []string) *Reply {
	if len(styles) == 0 {
		styles = ai.DefaultStyles
	}
	ideas := s.Compose.Ideas
	s.enter(StateChoosingStyle)
	s.Compose = &Compose{
		Ideas:  ideas,
		Idea:   title,
		Styles: append([]string(nil), styles...),
	}
	return c.styleReply(s)
}

func (c *Controller) styleReply(s *Session) *Reply {
	reply := &Reply{Text: fmt.Sprintf("🎨 Idea: %s\nPick a style or type your own:", s.Compose.Idea)}
	for i, style := range s.Compose.Styles {
		reply.Options = append(reply.Options, styleOption(i, style))
	}
	reply.Options = append(reply.Options, optBackToIdeas)
	return reply
}

func (c *Controller) chooseStyle(ctx context.Context, s *Session, style string) (*Reply, error) {
	if err := c.requireChannel(ctx, s); err != nil {
		return nil, err
	}
	posts, err := c.recentPosts(ctx, s)
	if err != nil {
		return nil, err
	}
	draft, err := c.gen.GenerateDraft(ctx, s.Channel.Name, posts, s.Compose.Idea, style)
	if err != nil {
		return nil, err
	}
	c.event(ctx, s, nil, storage.EventPostGenerated)

	s.enter(StateReviewDraft)
	s.Compose.Style = style
	s.Compose.Draft = draft.Text

	text := fmt.Sprintf("📝 Draft (%s / %s):\n\n%s", s.Compose.Idea, style, draft.Text)
	if draft.NearDuplicate {
		text += fmt.Sprintf("\n\n⚠️ This draft is %s similar to a recent post.", ai.FormatSimilarity(draft.Similarity))
	}
	return &Reply{Text: text, Options: []Option{optConfirm, optBackToStyles, optBackToIdeas}}, nil
}

func (c *Controller) backToIdeas(s *Session) *Reply {
	switch s.State {
	case StateChoosingStyle, StateReviewDraft, StateAwaitingCustomIdea:
	default:
		return staleReply()
	}
	ideas := s.Compose.Ideas
	if len(ideas) == 0 {
		s.enter(s.rest())
		return c.menu(s, "No ideas to go back to. Use /newpost.")
	}
	s.enter(StateChoosingIdea)
	s.Compose = &Compose{Ideas: ideas}
	return c.ideasReply(s)
}

func (c *Controller) backToStyles(s *Session) *Reply {
	if s.State != StateReviewDraft {
		return staleReply()
	}
	s.enter(StateChoosingStyle)
	s.Compose.Style = ""
	s.Compose.Draft = ""
	return c.styleReply(s)
}

func (c *Controller) confirmDraft(ctx context.Context, s *Session) (*Reply, error) {
	if s.State != StateReviewDraft || s.Compose.Draft == "" {
		return staleReply(), nil
	}
	if err := c.requireChannel(ctx, s); err != nil {
		return nil, err
	}
	post, err := c.store.AddPost(ctx, s.Channel.ID, s.Compose.Idea, s.Compose.Style, s.Compose.Draft)
	if err != nil {
		return nil, err
	}
	c.event(ctx, s, &post.ID, storage.EventPostSaved)

	s.enter(StateIdle)
	return &Reply{
		Text: fmt.Sprintf("✅ Post saved to %q.", s.Channel.Name),
		Menu: []string{"/newpost", "/addposts", "/back"},
	}, nil
}

func (c *Controller) addPosts(ctx context.Context, s *Session) (*Reply, error) {
	if err := c.requireChannel(ctx, s); err != nil {
		return nil, err
	}
	s.enter(StateChoosingIngestMethod)
	opts := []Option{optManual, optFile}
	if c.fetcher != nil {
		opts = append(opts, optFeed)
	}
	return &Reply{
		Text:    fmt.Sprintf("➕ Adding example posts to %q. How would you like to add them?", s.Channel.Name),
		Options: opts,
	}, nil
}

func (c *Controller) ingestMethod(ctx context.Context, s *Session, next State) (*Reply, error) {
	if !s.State.ingesting() {
		return staleReply(), nil
	}
	if err := c.requireChannel(ctx, s); err != nil {
		return nil, err
	}
	switch next {
	case StateIngestManual:
		s.enter(next)
		return &Reply{
			Text: "✍️ Send posts one message at a time.\n" +
				"End a message with a line \"Style: <name>\" to set its style.\n" +
				"Press Done or send /done when finished.",
			Options: []Option{optDone},
		}, nil
	case StateIngestFile:
		s.enter(next)
		return &Reply{Text: "📂 Send a .csv, .txt or RSS/Atom file.\n\n" +
			"• .csv: first column is the text, the optional second column the style.\n" +
			"• .txt: blocks of \"Post:\" followed by the text, optionally \"Style:\" and the style."}, nil
	case StateIngestFeedURL:
		if c.fetcher == nil {
			return staleReply(), nil
		}
		s.enter(next)
		return &Reply{Text: "🌐 Send the URL of an RSS or Atom feed."}, nil
	}
	return staleReply(), nil
}

func (c *Controller) saveManual(ctx context.Context, s *Session, text string) (*Reply, error) {
	entry := ingest.ParseManual(text, c.opts.Ingest)
	if entry.Text == "" {
		return &Reply{Text: "✍️ The post is empty. Send the post text.", Options: []Option{optDone}}, nil
	}
	if err := c.requireChannel(ctx, s); err != nil {
		return nil, err
	}
	if _, err := c.store.AddPost(ctx, s.Channel.ID, entry.Idea, entry.Style, entry.Text); err != nil {
		return nil, err
	}
	s.Ingest.Saved++
	return &Reply{
		Text: fmt.Sprintf("✅ Post saved to %q with style %q.\nSend the next one or press Done.",
			s.Channel.Name, entry.Style),
		Options: []Option{optDone},
	}, nil
}

func (c *Controller) ingestDone(ctx context.Context, s *Session) (*Reply, error) {
	if !s.State.ingesting() {
		return staleReply(), nil
	}
	saved := s.Ingest.Saved
	if saved > 0 {
		c.event(ctx, s, nil, storage.EventPostsImported)
	}
	s.enter(StateIdle)
	return c.ingestFinished(s, saved), nil
}

func (c *Controller) ingestFinished(s *Session, saved int) *Reply {
	return &Reply{
		Text: fmt.Sprintf("✅ Added %d post(s) to %q.\nCreate a new post with /newpost or return to the menu with /back.",
			saved, s.Channel.Name),
		Menu: []string{"/newpost", "/addposts", "/back"},
	}
}

func (c *Controller) upload(ctx context.Context, s *Session, name string, data []byte) (*Reply, error) {
	if s.State != StateIngestFile && s.State != StateChoosingIngestMethod {
		return &Reply{Text: "📂 To import posts from a file, use /addposts first."}, nil
	}
	if err := c.requireChannel(ctx, s); err != nil {
		return nil, err
	}
	entries, err := ingest.Parse(name, data, c.opts.Ingest)
	if err != nil {
		return nil, err
	}
	return c.saveBatch(ctx, s, entries)
}

func (c *Controller) importFeed(ctx context.Context, s *Session, url string) (*Reply, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return &Reply{Text: "🌐 That does not look like a URL. Send an http(s) feed address."}, nil
	}
	if err := c.requireChannel(ctx, s); err != nil {
		return nil, err
	}
	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	entries, err := c.fetcher.FetchFeed(fetchCtx, url, c.opts.Ingest)
	if err != nil {
		c.logger.Info("feed import failed", zap.String("url", url), zap.Error(err))
		return &Reply{Text: "❌ Could not read that feed. Check the URL and try again, or /back to cancel."}, nil
	}
	return c.saveBatch(ctx, s, entries)
}

func (c *Controller) saveBatch(ctx context.Context, s *Session, entries []ingest.Entry) (*Reply, error) {
	saved, err := ingest.Save(ctx, c.store, s.Channel.ID, entries, c.logger)
	if err != nil {
		if saved == 0 {
			return nil, err
		}
		// Rows already committed stay; report what made it.
		c.logger.Warn("batch import stopped early", zap.Int("saved", saved), zap.Error(err))
	}
	if saved > 0 {
		c.event(ctx, s, nil, storage.EventPostsImported)
	}
	s.enter(StateIdle)
	return c.ingestFinished(s, saved), nil
}

// event records activity; failures are logged, never surfaced.
func (c *Controller) event(ctx context.Context, s *Session, postID *int64, eventType string) {
	if err := c.store.AddEvent(ctx, s.UserID, postID, eventType); err != nil {
		c.logger.Warn("failed to record event",
			zap.String("type", eventType),
			zap.Int64("user_id", s.UserID),
			zap.Error(err))
	}
}

// ExpireIdle drops sessions idle for longer than idle.
func (c *Controller) ExpireIdle(ctx context.Context, idle time.Duration) (int, error) {
	n, err := c.sessions.Expire(ctx, idle)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.logger.Info("expired idle sessions", zap.Int("count", n))
	}
	return n, nil
}
