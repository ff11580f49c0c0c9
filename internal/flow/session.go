package flow

import (
	"fmt"
	"time"

	"github.com/matthewjhunter/quill/internal/ai"
)

// State is the step a user's conversation is at.
type State int

const (
	StateIdle State = iota
	StateAwaitingChannelName
	StateChoosingChannel
	StateChoosingChannelToDelete
	StateChannelSelected
	StateChoosingIngestMethod
	StateIngestManual
	StateIngestFile
	StateIngestFeedURL
	StateChoosingIdea
	StateAwaitingCustomIdea
	StateChoosingStyle
	StateReviewDraft
)

var stateNames = map[State]string{
	StateIdle:                    "idle",
	StateAwaitingChannelName:     "awaiting_channel_name",
	StateChoosingChannel:         "choosing_channel",
	StateChoosingChannelToDelete: "choosing_channel_to_delete",
	StateChannelSelected:         "channel_selected",
	StateChoosingIngestMethod:    "choosing_ingest_method",
	StateIngestManual:            "ingest_manual",
	StateIngestFile:              "ingest_file",
	StateIngestFeedURL:           "ingest_feed_url",
	StateChoosingIdea:            "choosing_idea",
	StateAwaitingCustomIdea:      "awaiting_custom_idea",
	StateChoosingStyle:           "choosing_style",
	StateReviewDraft:             "review_draft",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// composing reports whether s carries a Compose payload.
func (s State) composing() bool {
	switch s {
	case StateChoosingIdea, StateAwaitingCustomIdea, StateChoosingStyle, StateReviewDraft:
		return true
	}
	return false
}

func (s State) ingesting() bool {
	switch s {
	case StateChoosingIngestMethod, StateIngestManual, StateIngestFile, StateIngestFeedURL:
		return true
	}
	return false
}

// ChannelRef is a channel already resolved to its id.
type ChannelRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Compose holds the post being composed. It exists only in compose states.
type Compose struct {
	Ideas  []ai.Idea `json:"ideas,omitempty"`
	Idea   string    `json:"idea,omitempty"`
	Styles []string  `json:"styles,omitempty"`
	Style  string    `json:"style,omitempty"`
	Draft  string    `json:"draft,omitempty"`
}

// IngestProgress counts posts added during one manual ingest run.
type IngestProgress struct {
	Saved int `json:"saved"`
}

// Session is the per-user conversation record, keyed by external id.
type Session struct {
	ExternalID int64           `json:"external_id"`
	UserID     int64           `json:"user_id"`
	State      State           `json:"state"`
	Channel    *ChannelRef     `json:"channel,omitempty"`
	Compose    *Compose        `json:"compose,omitempty"`
	Ingest     *IngestProgress `json:"ingest,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// enter moves to state and drops payload that does not belong to it.
func (s *Session) enter(state State) {
	s.State = state
	if !state.composing() {
		s.Compose = nil
	} else if s.Compose == nil {
		s.Compose = &Compose{}
	}
	if !state.ingesting() {
		s.Ingest = nil
	} else if s.Ingest == nil {
		s.Ingest = &IngestProgress{}
	}
}

// rest is the state to return to when a flow ends.
func (s *Session) rest() State {
	if s.Channel != nil {
		return StateChannelSelected
	}
	return StateIdle
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Channel != nil {
		ch := *s.Channel
		c.Channel = &ch
	}
	if s.Compose != nil {
		comp := *s.Compose
		comp.Ideas = make([]ai.Idea, len(s.Compose.Ideas))
		for i, idea := range s.Compose.Ideas {
			comp.Ideas[i] = ai.Idea{Title: idea.Title, Styles: append([]string(nil), idea.Styles...)}
		}
		comp.Styles = append([]string(nil), s.Compose.Styles...)
		c.Compose = &comp
	}
	if s.Ingest != nil {
		in := *s.Ingest
		c.Ingest = &in
	}
	return &c
}
