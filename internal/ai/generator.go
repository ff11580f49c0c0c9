package ai

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/matthewjhunter/quill/internal/storage"
)

// PromptPost is one example post as seen by the prompt templates.
type PromptPost struct {
	Idea  string
	Style string
	Text  string
}

// PromptData is the template context for both prompt types.
type PromptData struct {
	Channel string
	Posts   []PromptPost
	Idea    string
	Style   string
}

// Generator turns channel context into ideas and drafts.
type Generator struct {
	completer  Completer
	prompts    *PromptLoader
	similarity *SimilarityChecker
	logger     *zap.Logger
}

// NewGenerator creates a generator. prompts and logger may be nil.
func NewGenerator(completer Completer, prompts *PromptLoader, logger *zap.Logger) *Generator {
	if prompts == nil {
		prompts = NewPromptLoader("", "")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{completer: completer, prompts: prompts, logger: logger}
}

// WithSimilarity enables the near-duplicate check on drafts.
func (g *Generator) WithSimilarity(s *SimilarityChecker) *Generator {
	g.similarity = s
	return g
}

// GenerateIdeas asks the provider for post ideas based on the channel's
// recent posts. Provider failures come back as *ProviderError; a completion
// that does not parse yields the fallback ideas.
func (g *Generator) GenerateIdeas(ctx context.Context, channel string, posts []storage.Post) ([]Idea, error) {
	prompt, err := g.prompts.Render(PromptTypeIdeas, PromptData{
		Channel: channel,
		Posts:   toPromptPosts(posts),
	})
	if err != nil {
		return nil, err
	}

	raw, err := g.complete(ctx, PromptTypeIdeas, prompt)
	if err != nil {
		return nil, err
	}
	ideas := ParseIdeas(CleanCompletion(raw))
	g.logger.Debug("generated ideas",
		zap.String("channel", channel),
		zap.Int("ideas", len(ideas)))
	return ideas, nil
}

// Draft is a generated post awaiting confirmation.
type Draft struct {
	Text string
	// Similarity is the highest cosine similarity to a recent post, 0 when
	// the check is disabled or failed.
	Similarity float64
	// NearDuplicate is set when Similarity reaches the configured threshold.
	NearDuplicate bool
}

// GenerateDraft writes a post for idea in style, using posts as context.
func (g *Generator) GenerateDraft(ctx context.Context, channel string, posts []storage.Post, idea, style string) (*Draft, error) {
	prompt, err := g.prompts.Render(PromptTypeDraft, PromptData{
		Channel: channel,
		Posts:   toPromptPosts(posts),
		Idea:    idea,
		Style:   style,
	})
	if err != nil {
		return nil, err
	}

	raw, err := g.complete(ctx, PromptTypeDraft, prompt)
	if err != nil {
		return nil, err
	}
	text := CleanCompletion(raw)
	if text == "" {
		return nil, &ProviderError{Provider: "completion", Detail: "draft is empty after cleanup"}
	}

	draft := &Draft{Text: text}
	if g.similarity != nil && len(posts) > 0 {
		sim, err := g.similarity.MaxSimilarity(ctx, text, posts)
		if err != nil {
			g.logger.Warn("draft similarity check failed", zap.Error(err))
		} else {
			draft.Similarity = sim
			draft.NearDuplicate = sim >= g.similarity.Threshold()
		}
	}
	return draft, nil
}

// complete calls the provider, tagging the log lines of one exchange with a
// request id.
func (g *Generator) complete(ctx context.Context, kind PromptType, prompt string) (string, error) {
	log := g.logger.With(zap.String("request_id", uuid.NewString()), zap.String("prompt", string(kind)))
	start := time.Now()
	raw, err := g.completer.Complete(ctx, prompt)
	if err != nil {
		log.Warn("completion failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return "", err
	}
	log.Debug("completion done",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("prompt_chars", len(prompt)),
		zap.Int("completion_chars", len(raw)))
	return raw, nil
}

func toPromptPosts(posts []storage.Post) []PromptPost {
	out := make([]PromptPost, len(posts))
	for i, p := range posts {
		out[i] = PromptPost{Idea: p.Idea, Style: p.Style, Text: p.Text}
	}
	return out
}

var strictPolicy = bluemonday.StrictPolicy()

// CleanCompletion strips markup from model output and normalizes whitespace
// at the edges. Entities escaped by the sanitizer are decoded again so the
// text reads as plain text.
func CleanCompletion(raw string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(raw)))
}

// FormatSimilarity renders a similarity score for display.
func FormatSimilarity(sim float64) string {
	return fmt.Sprintf("%.0f%%", sim*100)
}
