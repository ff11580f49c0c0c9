package ai

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// Embedded default prompts
//
//go:embed prompts/ideas.txt
var defaultIdeasPrompt string

//go:embed prompts/draft.txt
var defaultDraftPrompt string

// PromptType represents the type of AI prompt
type PromptType string

const (
	PromptTypeIdeas PromptType = "ideas"
	PromptTypeDraft PromptType = "draft"
)

// PromptLoader resolves prompt templates: config override first, then the
// embedded default. Parsed templates are cached.
type PromptLoader struct {
	overrides map[PromptType]string

	mu    sync.Mutex
	cache map[PromptType]*template.Template
}

// NewPromptLoader creates a loader. Empty overrides are ignored.
func NewPromptLoader(ideas, draft string) *PromptLoader {
	return &PromptLoader{
		overrides: map[PromptType]string{
			PromptTypeIdeas: ideas,
			PromptTypeDraft: draft,
		},
		cache: make(map[PromptType]*template.Template),
	}
}

// GetPrompt returns the raw template text for promptType.
func (pl *PromptLoader) GetPrompt(promptType PromptType) (string, error) {
	if pl != nil {
		if override := pl.overrides[promptType]; override != "" {
			return override, nil
		}
	}
	switch promptType {
	case PromptTypeIdeas:
		return defaultIdeasPrompt, nil
	case PromptTypeDraft:
		return defaultDraftPrompt, nil
	default:
		return "", fmt.Errorf("unknown prompt type: %s", promptType)
	}
}

// Render executes the template for promptType with data.
func (pl *PromptLoader) Render(promptType PromptType, data interface{}) (string, error) {
	pl.mu.Lock()
	tmpl, ok := pl.cache[promptType]
	pl.mu.Unlock()

	if !ok {
		text, err := pl.GetPrompt(promptType)
		if err != nil {
			return "", err
		}
		tmpl, err = template.New(string(promptType)).Parse(text)
		if err != nil {
			return "", fmt.Errorf("failed to parse %s prompt template: %w", promptType, err)
		}
		pl.mu.Lock()
		pl.cache[promptType] = tmpl
		pl.mu.Unlock()
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute %s prompt template: %w", promptType, err)
	}
	return buf.String(), nil
}

// Validate renders every prompt against sample data so a broken override
// fails at startup instead of on the first user request.
func (pl *PromptLoader) Validate() error {
	sample := PromptData{
		Channel: "sample",
		Posts:   []PromptPost{{Idea: "idea", Style: "style", Text: "text"}},
		Idea:    "idea",
		Style:   "style",
	}
	for _, pt := range []PromptType{PromptTypeIdeas, PromptTypeDraft} {
		text, err := pl.GetPrompt(pt)
		if err != nil {
			return err
		}
		if _, err := ExecutePrompt(text, sample); err != nil {
			return fmt.Errorf("%s prompt: %w", pt, err)
		}
	}
	return nil
}

// ExecutePrompt renders a prompt template with the given data
func ExecutePrompt(promptTemplate string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Parse(promptTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse prompt template: %w", err)
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}

	return buf.String(), nil
}
