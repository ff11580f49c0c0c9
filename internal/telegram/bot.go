// Package telegram connects the conversation flow to a Telegram bot using
// long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/matthewjhunter/quill/internal/flow"
)

// maxMessageRunes is Telegram's limit on message text.
const maxMessageRunes = 4096

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Handler runs one user action. *flow.Controller implements it.
type Handler interface {
	Handle(ctx context.Context, in flow.Input) (*flow.Reply, error)
}

// Options tunes the transport.
type Options struct {
	PollTimeout    int   // seconds
	MaxUploadBytes int64 // larger documents are refused before download
	HandleTimeout  time.Duration
}

// Bot translates updates into flow inputs and replies into messages.
type Bot struct {
	api     API
	handler Handler
	client  *http.Client
	opts    Options
	logger  *zap.Logger
}

// Connect logs in with token and returns the API client.
func Connect(token string, debug bool) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, errors.New("telegram token is not configured")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	api.Debug = debug
	return api, nil
}

func New(api API, handler Handler, client *http.Client, opts Options, logger *zap.Logger) *Bot {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 60
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 5 << 20
	}
	if opts.HandleTimeout <= 0 {
		opts.HandleTimeout = 3 * time.Minute
	}
	return &Bot{api: api, handler: handler, client: client, opts: opts, logger: logger}
}

// Run polls for updates until ctx is cancelled. Each update is handled in
// its own goroutine; Run waits for them before returning.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.opts.PollTimeout
	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("telegram polling started", zap.Int("timeout", u.Timeout))

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("telegram polling stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				// In-flight actions finish even when shutdown starts.
				hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.opts.HandleTimeout)
				defer cancel()
				b.HandleUpdate(hctx, update)
			}()
		}
	}
}

// HandleUpdate processes a single update and sends the reply.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if cb := update.CallbackQuery; cb != nil {
		// Stop the client's loading spinner regardless of outcome.
		if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
			b.logger.Debug("callback ack failed", zap.Error(err))
		}
	}

	in, chatID, ok := ToInput(update)
	if !ok {
		return
	}

	if doc := documentOf(update); doc != nil {
		data, err := b.download(ctx, doc)
		if err != nil {
			var tooLarge *tooLargeError
			if errors.As(err, &tooLarge) {
				b.send(chatID, &flow.Reply{Text: fmt.Sprintf("⚠️ The file is too large (limit %d KB).", b.opts.MaxUploadBytes/1024)})
				return
			}
			b.logger.Warn("document download failed", zap.Int64("user", in.ExternalID), zap.Error(err))
			b.send(chatID, &flow.Reply{Text: "❌ Could not download the file. Please send it again."})
			return
		}
		in.Data = data
	}

	reply, err := b.handler.Handle(ctx, in)
	if err != nil {
		msg, known := flow.UserMessage(err)
		if !known {
			b.logger.Error("action failed",
				zap.Int64("user", in.ExternalID),
				zap.String("action", string(in.Action)),
				zap.Error(err))
			msg = flow.GenericFailure
		}
		b.send(chatID, &flow.Reply{Text: msg})
		return
	}
	b.send(chatID, reply)
}

func (b *Bot) send(chatID int64, reply *flow.Reply) {
	if _, err := b.api.Send(Render(chatID, reply)); err != nil {
		b.logger.Warn("send failed", zap.Int64("chat", chatID), zap.Error(err))
	}
}

// ToInput maps an update to a flow action. ok is false for updates the bot
// ignores (edits, unknown callbacks, service messages).
func ToInput(update tgbotapi.Update) (in flow.Input, chatID int64, ok bool) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
			return flow.Input{}, 0, false
		}
		in, ok = flow.ParseCallback(cb.Data)
		if !ok {
			return flow.Input{}, 0, false
		}
		in.ExternalID = cb.From.ID
		in.DisplayName = displayName(cb.From)
		return in, cb.Message.Chat.ID, true
	}

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return flow.Input{}, 0, false
	}
	in = flow.Input{ExternalID: msg.From.ID, DisplayName: displayName(msg.From)}
	chatID = msg.Chat.ID

	switch {
	case msg.Document != nil:
		in.Action = flow.ActionUpload
		in.FileName = msg.Document.FileName
	case msg.IsCommand():
		in.Action = commandAction(msg.Command())
		in.Text = msg.CommandArguments()
	case strings.HasPrefix(msg.Text, "/"):
		// Reply-keyboard taps arrive without command entities.
		name, args, _ := strings.Cut(strings.TrimPrefix(msg.Text, "/"), " ")
		name, _, _ = strings.Cut(name, "@")
		in.Action = commandAction(name)
		in.Text = args
	case msg.Text != "":
		in.Action = flow.ActionText
		in.Text = msg.Text
	default:
		return flow.Input{}, 0, false
	}
	return in, chatID, true
}

func commandAction(name string) flow.Action {
	if a, ok := flow.Commands[strings.ToLower(name)]; ok {
		return a
	}
	return flow.ActionHelp
}

func documentOf(update tgbotapi.Update) *tgbotapi.Document {
	if update.Message == nil {
		return nil
	}
	return update.Message.Document
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type tooLargeError struct {
	size, limit int64
}

func (e *tooLargeError) Error() string {
	return fmt.Sprintf("file is %d bytes, limit %d", e.size, e.limit)
}

func (b *Bot) download(ctx context.Context, doc *tgbotapi.Document) ([]byte, error) {
	limit := b.opts.MaxUploadBytes
	if int64(doc.FileSize) > limit {
		return nil, &tooLargeError{size: int64(doc.FileSize), limit: limit}
	}
	url, err := b.api.GetFileDirectURL(doc.FileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, &tooLargeError{size: int64(len(data)), limit: limit}
	}
	return data, nil
}

// Render builds the outgoing message: options become an inline keyboard,
// otherwise the menu becomes a reply keyboard.
func Render(chatID int64, reply *flow.Reply) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, truncate(reply.Text, maxMessageRunes))
	switch {
	case len(reply.Options) > 0:
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(reply.Options))
		for _, opt := range reply.Options {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(truncate(opt.Label, 64), opt.Data)))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	case len(reply.Menu) > 0:
		var rows [][]tgbotapi.KeyboardButton
		for i := 0; i < len(reply.Menu); i += 2 {
			row := []tgbotapi.KeyboardButton{tgbotapi.NewKeyboardButton(reply.Menu[i])}
			if i+1 < len(reply.Menu) {
				row = append(row, tgbotapi.NewKeyboardButton(reply.Menu[i+1]))
			}
			rows = append(rows, row)
		}
		kb := tgbotapi.NewReplyKeyboard(rows...)
		kb.ResizeKeyboard = true
		msg.ReplyMarkup = kb
	}
	return msg
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
