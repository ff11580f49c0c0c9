package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewjhunter/quill/internal/ai"
	"github.com/matthewjhunter/quill/internal/flow"
)

type fakeAPI struct {
	mu       sync.Mutex
	updates  chan tgbotapi.Update
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	fileURL  string
	stopped  bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 10)}
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stopped {
		f.stopped = true
		close(f.updates)
	}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetFileDirectURL(string) (string, error) {
	return f.fileURL, nil
}

func (f *fakeAPI) sentMessages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m)
		}
	}
	return out
}

type fakeHandler struct {
	mu     sync.Mutex
	inputs []flow.Input
	reply  *flow.Reply
	err    error
}

func (h *fakeHandler) Handle(_ context.Context, in flow.Input) (*flow.Reply, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inputs = append(h.inputs, in)
	if h.err != nil {
		return nil, h.err
	}
	if h.reply != nil {
		return h.reply, nil
	}
	return &flow.Reply{Text: "ok"}, nil
}

func (h *fakeHandler) last() flow.Input {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inputs[len(h.inputs)-1]
}

func textMessage(text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: 42, UserName: "alice"},
		Chat: &tgbotapi.Chat{ID: 4242},
		Text: text,
	}
	if strings.HasPrefix(text, "/") {
		cmd, _, _ := strings.Cut(text, " ")
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return tgbotapi.Update{Message: msg}
}

func TestToInput(t *testing.T) {
	in, chat, ok := ToInput(textMessage("/newpost"))
	require.True(t, ok)
	assert.Equal(t, flow.ActionNewPost, in.Action)
	assert.Equal(t, int64(42), in.ExternalID)
	assert.Equal(t, int64(4242), chat)
	assert.Equal(t, "alice", in.DisplayName)

	in, _, ok = ToInput(textMessage("/unknown"))
	require.True(t, ok)
	assert.Equal(t, flow.ActionHelp, in.Action)

	in, _, ok = ToInput(textMessage("Travel"))
	require.True(t, ok)
	assert.Equal(t, flow.ActionText, in.Action)
	assert.Equal(t, "Travel", in.Text)

	// keyboard taps without entities
	u := textMessage("x")
	u.Message.Text = "/add_channel"
	in, _, ok = ToInput(u)
	require.True(t, ok)
	assert.Equal(t, flow.ActionAddChannel, in.Action)

	u = textMessage("")
	u.Message.Document = &tgbotapi.Document{FileID: "f1", FileName: "posts.csv"}
	in, _, ok = ToInput(u)
	require.True(t, ok)
	assert.Equal(t, flow.ActionUpload, in.Action)
	assert.Equal(t, "posts.csv", in.FileName)

	cb := tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: 7, FirstName: "Bob", LastName: "Lee"},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 70}},
		Data:    "style:2",
	}}
	in, chat, ok = ToInput(cb)
	require.True(t, ok)
	assert.Equal(t, flow.ActionPickStyle, in.Action)
	assert.Equal(t, 2, in.Index)
	assert.Equal(t, "Bob Lee", in.DisplayName)
	assert.Equal(t, int64(70), chat)

	cb.CallbackQuery.Data = "garbage"
	_, _, ok = ToInput(cb)
	assert.False(t, ok)

	_, _, ok = ToInput(tgbotapi.Update{})
	assert.False(t, ok)
}

func TestRender(t *testing.T) {
	msg := Render(1, &flow.Reply{
		Text:    "pick",
		Options: []flow.Option{{Label: "A", Data: "idea:0"}, {Label: "B", Data: "idea:1"}},
		Menu:    []string{"/back"},
	})
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok, "options win over the menu")
	require.Len(t, kb.InlineKeyboard, 2)
	require.NotNil(t, kb.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, "idea:1", *kb.InlineKeyboard[1][0].CallbackData)

	msg = Render(1, &flow.Reply{Text: "menu", Menu: []string{"/a", "/b", "/c"}})
	rk, ok := msg.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	assert.True(t, rk.ResizeKeyboard)
	require.Len(t, rk.Keyboard, 2)
	assert.Len(t, rk.Keyboard[0], 2)
	assert.Len(t, rk.Keyboard[1], 1)

	msg = Render(1, &flow.Reply{Text: strings.Repeat("é", maxMessageRunes+10)})
	assert.Len(t, []rune(msg.Text), maxMessageRunes)
	assert.Nil(t, msg.ReplyMarkup)
}

func TestHandleUpdateErrors(t *testing.T) {
	api := newFakeAPI()
	h := &fakeHandler{err: &flow.PreconditionError{Reason: "not enough example posts", Have: 1, Need: 3}}
	bot := New(api, h, nil, Options{}, nil)

	bot.HandleUpdate(context.Background(), textMessage("/newpost"))
	msgs := api.sentMessages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "at least 3")

	h.err = &ai.ProviderError{Provider: "ollama", Detail: "model not found"}
	bot.HandleUpdate(context.Background(), textMessage("/newpost"))
	assert.Contains(t, api.sentMessages()[1].Text, "model not found")

	h.err = assert.AnError
	bot.HandleUpdate(context.Background(), textMessage("/newpost"))
	assert.Equal(t, flow.GenericFailure, api.sentMessages()[2].Text)
}

func TestCallbackIsAcknowledged(t *testing.T) {
	api := newFakeAPI()
	h := &fakeHandler{}
	bot := New(api, h, nil, Options{}, nil)

	bot.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: 5},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 50}},
		Data:    "draft:confirm",
	}})
	require.Len(t, api.requests, 1)
	ack, ok := api.requests[0].(tgbotapi.CallbackConfig)
	require.True(t, ok)
	assert.Equal(t, "cb1", ack.CallbackQueryID)
	assert.Equal(t, flow.ActionConfirmDraft, h.last().Action)
}

func TestDocumentDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Hello world,Funny\n"))
	}))
	defer srv.Close()

	api := newFakeAPI()
	api.fileURL = srv.URL + "/file/posts.csv"
	h := &fakeHandler{}
	bot := New(api, h, srv.Client(), Options{MaxUploadBytes: 1024}, nil)

	u := textMessage("")
	u.Message.Document = &tgbotapi.Document{FileID: "f1", FileName: "posts.csv", FileSize: 18}
	bot.HandleUpdate(context.Background(), u)

	in := h.last()
	assert.Equal(t, flow.ActionUpload, in.Action)
	assert.Equal(t, "Hello world,Funny\n", string(in.Data))

	u.Message.Document.FileSize = 4096
	bot.HandleUpdate(context.Background(), u)
	assert.Len(t, h.inputs, 1, "oversized file never reaches the flow")
	msgs := api.sentMessages()
	assert.Contains(t, msgs[len(msgs)-1].Text, "too large")
}

func TestRunStopsOnCancel(t *testing.T) {
	api := newFakeAPI()
	h := &fakeHandler{}
	bot := New(api, h, nil, Options{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx) }()

	api.updates <- textMessage("/start")
	require.Eventually(t, func() bool { return len(api.sentMessages()) == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, flow.ActionStart, h.last().Action)
}
