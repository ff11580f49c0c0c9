package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/matthewjhunter/quill"
)

const (
	feedTimeout  = 30 * time.Second
	maxPostLimit = 100
)

// server exposes the quill engine as MCP tools.
type server struct {
	engine *quill.Engine
	userID int64
	logger *zap.Logger
}

func newServer(engine *quill.Engine, userID int64, logger *zap.Logger) *server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &server{engine: engine, userID: userID, logger: logger}
}

// resolveUser returns the requested user, or the default one.
func (s *server) resolveUser(user *int64) int64 {
	if user == nil || *user == 0 {
		return s.userID
	}
	return *user
}

// mcpServer builds the SDK server with every tool registered.
func (s *server) mcpServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "quill", Version: "0.1.0"}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "channels_list",
		Description: "List the user's channels with their post counts.",
	}, s.channelsList)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "channel_create",
		Description: "Create a channel. Channels hold the example posts that steer generation.",
	}, s.channelCreate)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "channel_delete",
		Description: "Delete a channel and all of its posts.",
	}, s.channelDelete)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "posts_recent",
		Description: "Get a channel's most recent posts, newest first.",
	}, s.postsRecent)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "post_add",
		Description: "Store one example post in a channel.",
	}, s.postAdd)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "feed_import",
		Description: "Fetch an RSS/Atom feed and store its items as example posts.",
	}, s.feedImport)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "ideas_generate",
		Description: "Suggest ideas for the next post, each with candidate styles, based on the channel's recent posts.",
	}, s.ideasGenerate)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "draft_generate",
		Description: "Write a post for an idea in a style, imitating the channel's recent posts. Set save to store it.",
	}, s.draftGenerate)

	return srv
}

// run serves MCP over stdin/stdout until ctx is done or the client hangs up.
func (s *server) run(ctx context.Context) error {
	s.logger.Info("quill-mcp starting", zap.Int64("user", s.userID))
	return s.mcpServer().Run(ctx, &mcp.StdioTransport{})
}

func (s *server) channelsList(ctx context.Context, _ *mcp.CallToolRequest, in userOnlyInput) (*mcp.CallToolResult, any, error) {
	channels, err := s.engine.ListChannels(ctx, s.resolveUser(in.User))
	if err != nil {
		return s.errorResult("channels_list", err), nil, nil
	}
	if channels == nil {
		channels = []quill.Channel{}
	}
	return jsonResult(channels), nil, nil
}

func (s *server) channelCreate(ctx context.Context, _ *mcp.CallToolRequest, in channelCreateInput) (*mcp.CallToolResult, any, error) {
	ch, err := s.engine.CreateChannel(ctx, s.resolveUser(in.User), in.Name)
	if err != nil {
		return s.errorResult("channel_create", err), nil, nil
	}
	return jsonResult(ch), nil, nil
}

func (s *server) channelDelete(ctx context.Context, _ *mcp.CallToolRequest, in channelInput) (*mcp.CallToolResult, any, error) {
	if err := s.engine.DeleteChannel(ctx, s.resolveUser(in.User), in.Channel); err != nil {
		return s.errorResult("channel_delete", err), nil, nil
	}
	return textResult("Channel deleted."), nil, nil
}

func (s *server) postsRecent(ctx context.Context, _ *mcp.CallToolRequest, in postsRecentInput) (*mcp.CallToolResult, any, error) {
	posts, err := s.engine.RecentPosts(ctx, s.resolveUser(in.User), in.Channel, postLimit(in.Limit))
	if err != nil {
		return s.errorResult("posts_recent", err), nil, nil
	}
	if posts == nil {
		posts = []quill.Post{}
	}
	return jsonResult(posts), nil, nil
}

// postLimit clamps a requested limit to maxPostLimit. Zero selects the
// configured default.
func postLimit(limit *int) int {
	switch {
	case limit == nil || *limit <= 0:
		return 0
	case *limit > maxPostLimit:
		return maxPostLimit
	}
	return *limit
}

func (s *server) postAdd(ctx context.Context, _ *mcp.CallToolRequest, in postAddInput) (*mcp.CallToolResult, any, error) {
	var idea, style string
	if in.Idea != nil {
		idea = *in.Idea
	}
	if in.Style != nil {
		style = *in.Style
	}
	p, err := s.engine.AddPost(ctx, s.resolveUser(in.User), in.Channel, idea, style, in.Text)
	if err != nil {
		return s.errorResult("post_add", err), nil, nil
	}
	return jsonResult(p), nil, nil
}

func (s *server) feedImport(ctx context.Context, _ *mcp.CallToolRequest, in feedImportInput) (*mcp.CallToolResult, any, error) {
	ctx, cancel := context.WithTimeout(ctx, feedTimeout)
	defer cancel()
	result, err := s.engine.ImportFeed(ctx, s.resolveUser(in.User), in.Channel, in.URL)
	if err != nil {
		return s.errorResult("feed_import", err), nil, nil
	}
	return jsonResult(result), nil, nil
}

func (s *server) ideasGenerate(ctx context.Context, _ *mcp.CallToolRequest, in channelInput) (*mcp.CallToolResult, any, error) {
	ideas, err := s.engine.GenerateIdeas(ctx, s.resolveUser(in.User), in.Channel)
	if err != nil {
		return s.errorResult("ideas_generate", err), nil, nil
	}
	return jsonResult(ideas), nil, nil
}

func (s *server) draftGenerate(ctx context.Context, _ *mcp.CallToolRequest, in draftGenerateInput) (*mcp.CallToolResult, any, error) {
	uid := s.resolveUser(in.User)
	draft, err := s.engine.GenerateDraft(ctx, uid, in.Channel, in.Idea, in.Style)
	if err != nil {
		return s.errorResult("draft_generate", err), nil, nil
	}
	if in.Save != nil && *in.Save {
		if _, err := s.engine.AddPost(ctx, uid, in.Channel, draft.Idea, draft.Style, draft.Text); err != nil {
			return s.errorResult("draft_generate", err), nil, nil
		}
	}
	return jsonResult(draft), nil, nil
}

// errorResult reports a failed call to the client as a tool error rather
// than a protocol error, so the model can read and react to it.
func (s *server) errorResult(tool string, err error) *mcp.CallToolResult {
	s.logger.Warn("tool failed", zap.String("tool", tool), zap.Error(err))
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func jsonResult(v any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: "marshal result: " + err.Error()}},
		}
	}
	return textResult(string(b))
}
