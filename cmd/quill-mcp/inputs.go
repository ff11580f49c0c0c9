package main

// Input types for MCP tools. The SDK infers JSON Schema from these structs.
// Pointer types are optional; value types are required.

type userOnlyInput struct {
	User *int64 `json:"user,omitempty" jsonschema:"Telegram user id to act as. If omitted uses the default user."`
}

type channelCreateInput struct {
	Name string `json:"name"           jsonschema:"Name of the new channel"`
	User *int64 `json:"user,omitempty" jsonschema:"Telegram user id to act as. If omitted uses the default user."`
}

type channelInput struct {
	Channel string `json:"channel"        jsonschema:"Channel id or name"`
	User    *int64 `json:"user,omitempty" jsonschema:"Telegram user id to act as. If omitted uses the default user."`
}

type postsRecentInput struct {
	Channel string `json:"channel"         jsonschema:"Channel id or name"`
	Limit   *int   `json:"limit,omitempty" jsonschema:"Maximum number of posts to return, at most 100 (default: the configured context size)"`
	User    *int64 `json:"user,omitempty"  jsonschema:"Telegram user id to act as. If omitted uses the default user."`
}

type postAddInput struct {
	Channel string  `json:"channel"         jsonschema:"Channel id or name"`
	Text    string  `json:"text"            jsonschema:"Post text"`
	Idea    *string `json:"idea,omitempty"  jsonschema:"Idea the post is about (default: user-supplied post)"`
	Style   *string `json:"style,omitempty" jsonschema:"Style the post is written in (default: manual entry)"`
	User    *int64  `json:"user,omitempty"  jsonschema:"Telegram user id to act as. If omitted uses the default user."`
}

type feedImportInput struct {
	Channel string `json:"channel"        jsonschema:"Channel id or name"`
	URL     string `json:"url"            jsonschema:"RSS/Atom feed URL whose items become example posts"`
	User    *int64 `json:"user,omitempty" jsonschema:"Telegram user id to act as. If omitted uses the default user."`
}

type draftGenerateInput struct {
	Channel string `json:"channel"        jsonschema:"Channel id or name"`
	Idea    string `json:"idea"           jsonschema:"Idea to write about"`
	Style   string `json:"style"          jsonschema:"Style to write in"`
	Save    *bool  `json:"save,omitempty" jsonschema:"Store the draft as a channel post (default false)"`
	User    *int64 `json:"user,omitempty" jsonschema:"Telegram user id to act as. If omitted uses the default user."`
}
