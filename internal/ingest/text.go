package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	postMarker  = "Post:"
	styleMarker = "Style:"
)

// ParseManual reads one typed post. A trailing line starting with "Style:"
// names the style; the last such line wins.
func ParseManual(text string, opts Options) Entry {
	style := ""
	if i := strings.LastIndex(text, "\n"+styleMarker); i >= 0 {
		style = text[i+len("\n"+styleMarker):]
		text = text[:i]
	}
	return Entry{
		Idea:  opts.idea(""),
		Style: opts.style(style),
		Text:  strings.TrimSpace(text),
	}
}

// ParseText reads the structured text format:
//
//	Post:
//	"first post"
//	Style:
//	"its style"
//	Post:
//	...
//
// Text before the first marker counts as a post. Quotes around text and
// style are trimmed.
func ParseText(content string, opts Options) []Entry {
	var entries []Entry
	for _, block := range strings.Split(content, postMarker) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		text, style := block, ""
		if before, after, ok := strings.Cut(block, styleMarker); ok {
			text, style = before, after
		}
		text = trimQuotes(text)
		if text == "" {
			continue
		}
		entries = append(entries, Entry{
			Idea:  opts.idea(""),
			Style: opts.style(trimQuotes(style)),
			Text:  text,
		})
	}
	return entries
}

// ParseCSV reads rows of (text, optional style). Single-column rows may carry
// an inline "Style:" suffix. Extra columns are ignored.
func ParseCSV(r io.Reader, opts Options) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var entries []Entry
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return entries, fmt.Errorf("parse csv: %w", err)
		}
		if len(row) == 0 {
			continue
		}

		var text, style string
		if len(row) == 1 {
			text, style = splitInlineStyle(row[0])
		} else {
			text, style = row[0], row[1]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		entries = append(entries, Entry{
			Idea:  opts.idea(""),
			Style: opts.style(style),
			Text:  text,
		})
	}
	return entries, nil
}

func splitInlineStyle(line string) (text, style string) {
	if i := strings.LastIndex(line, styleMarker); i >= 0 {
		return line[:i], line[i+len(styleMarker):]
	}
	return line, ""
}

func trimQuotes(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"`))
}
