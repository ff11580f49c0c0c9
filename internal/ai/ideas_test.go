package ai

import (
	"reflect"
	"testing"
)

func TestParseIdeas_WellFormed(t *testing.T) {
	raw := `Here are some ideas:

1. Hidden beaches
   - Dreamy
   - Practical
2) Budget hacks
   • Humorous
   – Serious
   * Listicle
3. Night trains
   - Nostalgic`

	got := ParseIdeas(raw)
	want := []Idea{
		{Title: "Hidden beaches", Styles: []string{"Dreamy", "Practical"}},
		{Title: "Budget hacks", Styles: []string{"Humorous", "Serious", "Listicle"}},
		{Title: "Night trains", Styles: []string{"Nostalgic"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseIdeas mismatch:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestParseIdeas_FewerThanThree(t *testing.T) {
	got := ParseIdeas("1. Only one\n- Calm\n- Loud\n")
	if len(got) != 1 {
		t.Fatalf("expected 1 idea, got %d", len(got))
	}
	if got[0].Title != "Only one" {
		t.Errorf("title = %q", got[0].Title)
	}
	if !reflect.DeepEqual(got[0].Styles, []string{"Calm", "Loud"}) {
		t.Errorf("styles = %v", got[0].Styles)
	}
}

func TestParseIdeas_Fallback(t *testing.T) {
	for name, raw := range map[string]string{
		"empty":        "",
		"whitespace":   "  \n\n\t\n",
		"no numbering": "Just some prose.\n- a stray bullet\nMore prose.",
	} {
		t.Run(name, func(t *testing.T) {
			got := ParseIdeas(raw)
			if !reflect.DeepEqual(got, FallbackIdeas()) {
				t.Errorf("expected fallback, got %+v", got)
			}
			if len(got) != 3 {
				t.Errorf("fallback has %d ideas", len(got))
			}
			for _, idea := range got {
				if len(idea.Styles) != 3 {
					t.Errorf("fallback idea %q has %d styles", idea.Title, len(idea.Styles))
				}
			}
		})
	}
}

func TestParseIdeas_TruncatesToThree(t *testing.T) {
	raw := "1. A\n- s\n2. B\n3. C\n4. D\n- s\n5. E\n"
	got := ParseIdeas(raw)
	if len(got) != 3 {
		t.Fatalf("expected 3 ideas, got %d", len(got))
	}
	for i, title := range []string{"A", "B", "C"} {
		if got[i].Title != title {
			t.Errorf("idea %d = %q, want %q", i, got[i].Title, title)
		}
	}
}

func TestParseIdeas_StylesNotTruncated(t *testing.T) {
	got := ParseIdeas("1. Many\n- a\n- b\n- c\n- d\n- e\n")
	if len(got[0].Styles) != 5 {
		t.Errorf("expected 5 styles, got %v", got[0].Styles)
	}
}

func TestParseIdeas_StylesBeforeIdeaDropped(t *testing.T) {
	got := ParseIdeas("- orphan\n1. First\n- kept\n")
	want := []Idea{{Title: "First", Styles: []string{"kept"}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestParseIdeas_IdeaWithoutStyles(t *testing.T) {
	got := ParseIdeas("1. **Bold idea**\n2. Plain\n- x")
	if got[0].Title != "Bold idea" {
		t.Errorf("emphasis not stripped: %q", got[0].Title)
	}
	if got[0].Styles != nil {
		t.Errorf("expected no styles, got %v", got[0].Styles)
	}
	if len(got[1].Styles) != 1 {
		t.Errorf("second idea styles = %v", got[1].Styles)
	}
}

func TestStripEmphasis(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"**Calm**", "Calm"},
		{"__Calm__", "Calm"},
		{"** Calm **", "Calm"},
		{"snake_case_", "snake_case_"},
		{"*starred", "*starred"},
		{"**half bold", "**half bold"},
		{"_x_", "_x_"},
		{"****", "****"},
	}
	for _, tt := range tests {
		if got := stripEmphasis(tt.in); got != tt.want {
			t.Errorf("stripEmphasis(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseIdeas_KeepsUnbalancedMarkers(t *testing.T) {
	// a bare bullet has no label to offer and is skipped
	got := ParseIdeas("1. Naming in snake_case_\n- **Deadpan**\n-\n- Calm")
	if got[0].Title != "Naming in snake_case_" {
		t.Errorf("title = %q", got[0].Title)
	}
	want := []string{"Deadpan", "Calm"}
	if !reflect.DeepEqual(got[0].Styles, want) {
		t.Errorf("styles = %v, want %v", got[0].Styles, want)
	}
}
