package flow

import (
	"strconv"
	"strings"
)

// Action is a transport-neutral user action.
type Action string

const (
	ActionStart           Action = "start"
	ActionHelp            Action = "help"
	ActionBack            Action = "back"
	ActionAddChannel      Action = "add_channel"
	ActionChooseChannel   Action = "choose_channel"
	ActionDeleteChannel   Action = "delete_channel"
	ActionSelectChannel   Action = "select_channel"    // ID
	ActionDeleteChannelID Action = "delete_channel_id" // ID
	ActionText            Action = "text"              // Text
	ActionNewPost         Action = "new_post"
	ActionPickIdea        Action = "pick_idea" // Index
	ActionCustomIdea      Action = "custom_idea"
	ActionPickStyle       Action = "pick_style" // Index
	ActionBackToIdeas     Action = "back_to_ideas"
	ActionBackToStyles    Action = "back_to_styles"
	ActionConfirmDraft    Action = "confirm_draft"
	ActionAddPosts        Action = "add_posts"
	ActionIngestManual    Action = "ingest_manual"
	ActionIngestFile      Action = "ingest_file"
	ActionIngestFeed      Action = "ingest_feed"
	ActionIngestDone      Action = "ingest_done"
	ActionUpload          Action = "upload" // FileName, Data
)

// Input is one user action with its arguments.
type Input struct {
	ExternalID  int64
	DisplayName string
	Action      Action
	Text        string
	Index       int
	ID          int64
	FileName    string
	Data        []byte
}

// Option is a selectable choice attached to a reply. Data round-trips
// through ParseCallback.
type Option struct {
	Label string
	Data  string
}

// Reply is what the transport shows after an action.
type Reply struct {
	Text    string
	Options []Option
	// Menu lists commands worth offering as shortcuts, e.g. "/newpost".
	Menu  []string
	State State
}

// Commands maps slash commands to actions.
var Commands = map[string]Action{
	"start":          ActionStart,
	"help":           ActionHelp,
	"back":           ActionBack,
	"add_channel":    ActionAddChannel,
	"choose_channel": ActionChooseChannel,
	"delete_channel": ActionDeleteChannel,
	"newpost":        ActionNewPost,
	"addposts":       ActionAddPosts,
	"done":           ActionIngestDone,
}

func ideaOption(i int, label string) Option {
	return Option{Label: label, Data: "idea:" + strconv.Itoa(i)}
}

func styleOption(i int, label string) Option {
	return Option{Label: label, Data: "style:" + strconv.Itoa(i)}
}

func channelOption(id int64, name string) Option {
	return Option{Label: name, Data: "channel:" + strconv.FormatInt(id, 10)}
}

func deleteOption(id int64, name string) Option {
	return Option{Label: "🗑 " + name, Data: "delete:" + strconv.FormatInt(id, 10)}
}

var (
	optCustomIdea   = Option{Label: "✍️ My own idea", Data: "idea:custom"}
	optBackToIdeas  = Option{Label: "⬅️ Back to ideas", Data: "back:ideas"}
	optBackToStyles = Option{Label: "⬅️ Back to styles", Data: "back:styles"}
	optConfirm      = Option{Label: "✅ Save post", Data: "draft:confirm"}
	optManual       = Option{Label: "✍️ Type posts", Data: "ingest:manual"}
	optFile         = Option{Label: "📂 Upload file (.csv / .txt / RSS)", Data: "ingest:file"}
	optFeed         = Option{Label: "🌐 Import feed URL", Data: "ingest:feed"}
	optDone         = Option{Label: "✅ Done", Data: "ingest:done"}
)

// ParseCallback decodes Option.Data into an Input (without user fields).
func ParseCallback(data string) (Input, bool) {
	kind, arg, ok := strings.Cut(data, ":")
	if !ok {
		return Input{}, false
	}
	switch kind {
	case "idea":
		if arg == "custom" {
			return Input{Action: ActionCustomIdea}, true
		}
		i, err := strconv.Atoi(arg)
		if err != nil {
			return Input{}, false
		}
		return Input{Action: ActionPickIdea, Index: i}, true
	case "style":
		i, err := strconv.Atoi(arg)
		if err != nil {
			return Input{}, false
		}
		return Input{Action: ActionPickStyle, Index: i}, true
	case "back":
		switch arg {
		case "ideas":
			return Input{Action: ActionBackToIdeas}, true
		case "styles":
			return Input{Action: ActionBackToStyles}, true
		}
	case "draft":
		if arg == "confirm" {
			return Input{Action: ActionConfirmDraft}, true
		}
	case "ingest":
		switch arg {
		case "manual":
			return Input{Action: ActionIngestManual}, true
		case "file":
			return Input{Action: ActionIngestFile}, true
		case "feed":
			return Input{Action: ActionIngestFeed}, true
		case "done":
			return Input{Action: ActionIngestDone}, true
		}
	case "channel", "delete":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return Input{}, false
		}
		if kind == "channel" {
			return Input{Action: ActionSelectChannel, ID: id}, true
		}
		return Input{Action: ActionDeleteChannelID, ID: id}, true
	}
	return Input{}, false
}
