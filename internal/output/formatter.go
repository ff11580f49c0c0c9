package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/matthewjhunter/quill"
	"github.com/matthewjhunter/quill/internal/ai"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatHuman Format = "human"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatText, FormatHuman:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want json, text or human)", s)
}

type Formatter struct {
	format Format
	out    io.Writer
	err    io.Writer
}

// NewFormatter creates a new output formatter
func NewFormatter(format Format) *Formatter {
	return &Formatter{
		format: format,
		out:    os.Stdout,
		err:    os.Stderr,
	}
}

// NewFormatterWithWriters creates a formatter with custom output writers for testability
func NewFormatterWithWriters(format Format, out, errW io.Writer) *Formatter {
	return &Formatter{
		format: format,
		out:    out,
		err:    errW,
	}
}

// OutputImportResult outputs the import result in the configured format
func (f *Formatter) OutputImportResult(result *quill.ImportResult) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(result)
	case FormatText:
		fmt.Fprintf(f.out, "channel=%s\n", result.Channel)
		fmt.Fprintf(f.out, "parsed=%d\n", result.Parsed)
		fmt.Fprintf(f.out, "imported=%d\n", result.Imported)
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "Imported %d of %d posts into %q\n", result.Imported, result.Parsed, result.Channel)
		for _, e := range result.Errors {
			fmt.Fprintf(f.out, "  ⚠️  %s\n", e)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputUserList outputs known users
func (f *Formatter) OutputUserList(users []quill.User) error {
	switch f.format {
	case FormatJSON:
		if users == nil {
			users = []quill.User{}
		}
		return json.NewEncoder(f.out).Encode(users)
	case FormatText:
		for _, u := range users {
			fmt.Fprintf(f.out, "id=%d\texternal_id=%d\tname=%s\tlast_active=%s\n",
				u.ID, u.ExternalID, u.DisplayName, formatTime(u.LastActive))
		}
		return nil
	case FormatHuman:
		if len(users) == 0 {
			fmt.Fprintln(f.out, "No users")
			return nil
		}
		fmt.Fprintf(f.out, "Users (%d):\n\n", len(users))
		for _, u := range users {
			name := u.DisplayName
			if name == "" {
				name = "(no name)"
			}
			fmt.Fprintf(f.out, "  %d  %s  last active %s\n", u.ExternalID, name, formatTime(u.LastActive))
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputChannelList outputs a user's channels with their post counts
func (f *Formatter) OutputChannelList(channels []quill.Channel) error {
	switch f.format {
	case FormatJSON:
		if channels == nil {
			channels = []quill.Channel{}
		}
		return json.NewEncoder(f.out).Encode(channels)
	case FormatText:
		for _, ch := range channels {
			fmt.Fprintf(f.out, "id=%d\tname=%s\tposts=%d\tcreated=%s\n",
				ch.ID, ch.Name, ch.PostCount, formatTime(ch.CreatedAt))
		}
		return nil
	case FormatHuman:
		if len(channels) == 0 {
			fmt.Fprintln(f.out, "No channels")
			return nil
		}
		fmt.Fprintf(f.out, "Channels (%d):\n\n", len(channels))
		for _, ch := range channels {
			fmt.Fprintf(f.out, "  [%d] %s (%d posts)\n", ch.ID, ch.Name, ch.PostCount)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputPostList outputs posts, newest first
func (f *Formatter) OutputPostList(posts []quill.Post) error {
	switch f.format {
	case FormatJSON:
		if posts == nil {
			posts = []quill.Post{}
		}
		return json.NewEncoder(f.out).Encode(posts)
	case FormatText:
		for _, p := range posts {
			fmt.Fprintf(f.out, "id=%d\tidea=%s\tstyle=%s\tcreated=%s\ttext=%s\n",
				p.ID, p.Idea, p.Style, formatTime(p.CreatedAt), oneLine(p.Text))
		}
		return nil
	case FormatHuman:
		if len(posts) == 0 {
			fmt.Fprintln(f.out, "No posts")
			return nil
		}
		for _, p := range posts {
			fmt.Fprintf(f.out, "ID: %d  (%s)\n", p.ID, p.CreatedAt.Format("2006-01-02 15:04"))
			fmt.Fprintf(f.out, "Idea: %s\n", p.Idea)
			fmt.Fprintf(f.out, "Style: %s\n", p.Style)
			fmt.Fprintf(f.out, "\n%s\n", truncate(p.Text, 500))
			fmt.Fprintln(f.out, "---")
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputIdeas outputs generated ideas with their suggested styles
func (f *Formatter) OutputIdeas(ideas []quill.Idea) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(ideas)
	case FormatText:
		for i, idea := range ideas {
			fmt.Fprintf(f.out, "index=%d\tidea=%s\tstyles=%s\n", i, idea.Title, strings.Join(idea.Styles, ","))
		}
		return nil
	case FormatHuman:
		for i, idea := range ideas {
			fmt.Fprintf(f.out, "💡 %d. %s\n", i+1, idea.Title)
			for _, s := range idea.Styles {
				fmt.Fprintf(f.out, "     - %s\n", s)
			}
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputDraft outputs a generated draft
func (f *Formatter) OutputDraft(draft *quill.Draft) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(draft)
	case FormatText:
		fmt.Fprintf(f.out, "idea=%s\tstyle=%s\tsimilarity=%.2f\n", draft.Idea, draft.Style, draft.Similarity)
		fmt.Fprintln(f.out, draft.Text)
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "📝 %s / %s\n", draft.Idea, draft.Style)
		fmt.Fprintln(f.out, strings.Repeat("=", 70))
		fmt.Fprintln(f.out, draft.Text)
		if draft.NearDuplicate {
			fmt.Fprintf(f.out, "\n⚠️  %s similar to a recent post\n", ai.FormatSimilarity(draft.Similarity))
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputToken outputs an issued API token
func (f *Formatter) OutputToken(externalID int64, token string, expires time.Time) error {
	switch f.format {
	case FormatJSON:
		out := map[string]interface{}{"external_id": externalID, "token": token}
		if !expires.IsZero() {
			out["expires_at"] = expires.Format(time.RFC3339)
		}
		return json.NewEncoder(f.out).Encode(out)
	case FormatText, FormatHuman:
		fmt.Fprintln(f.out, token)
		if f.format == FormatHuman && !expires.IsZero() {
			fmt.Fprintf(f.err, "Token for user %d expires %s\n", externalID, expires.Format("2006-01-02 15:04"))
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// Error outputs an error message to stderr
func (f *Formatter) Error(format string, args ...interface{}) {
	fmt.Fprintf(f.err, format+"\n", args...)
}

// Warning outputs a warning message to stderr
func (f *Formatter) Warning(format string, args ...interface{}) {
	fmt.Fprintf(f.err, "Warning: "+format+"\n", args...)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate truncates a string to maxLen runes
func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
