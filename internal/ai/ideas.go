package ai

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxIdeas bounds the number of ideas offered to the user.
const MaxIdeas = 3

// Idea is a suggested topic with the styles the model proposed for it.
type Idea struct {
	Title  string   `json:"title"`
	Styles []string `json:"styles"`
}

// DefaultStyles are offered when an idea arrives without styles, e.g. one
// the user typed in.
var DefaultStyles = []string{"Humorous", "Serious", "Informative"}

var (
	ideaLine  = regexp.MustCompile(`^\d+[.)]\s*`)
	styleLine = regexp.MustCompile(`^[-•–*]\s*`)
)

// ParseIdeas extracts numbered ideas and their bulleted styles from a
// completion. It never fails: when nothing parses it returns FallbackIdeas,
// and the result is truncated to MaxIdeas.
func ParseIdeas(raw string) []Idea {
	var ideas []Idea
	var current *Idea

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if loc := ideaLine.FindStringIndex(line); loc != nil {
			if current != nil {
				ideas = append(ideas, *current)
			}
			current = &Idea{Title: stripEmphasis(line[loc[1]:])}
			continue
		}
		if loc := styleLine.FindStringIndex(line); loc != nil && current != nil {
			if style := stripEmphasis(line[loc[1]:]); style != "" {
				current.Styles = append(current.Styles, style)
			}
		}
	}
	if current != nil {
		ideas = append(ideas, *current)
	}

	if len(ideas) == 0 {
		return FallbackIdeas()
	}
	if len(ideas) > MaxIdeas {
		ideas = ideas[:MaxIdeas]
	}
	return ideas
}

// FallbackIdeas is the fixed list used when a completion has no numbered lines.
func FallbackIdeas() []Idea {
	ideas := make([]Idea, MaxIdeas)
	for i := range ideas {
		ideas[i] = Idea{
			Title:  fmt.Sprintf("New idea %d", i+1),
			Styles: []string{"Informative", "Humorous", "Serious"},
		}
	}
	return ideas
}

// stripEmphasis unwraps labels a model put in balanced markdown bold
// (**x** or __x__). Lone or unbalanced markers are part of the label.
func stripEmphasis(s string) string {
	s = strings.TrimSpace(s)
	for _, marker := range []string{"**", "__"} {
		if len(s) > 2*len(marker) && strings.HasPrefix(s, marker) && strings.HasSuffix(s, marker) {
			s = strings.TrimSpace(s[len(marker) : len(s)-len(marker)])
		}
	}
	return s
}
