// Package telegrambot is the chat transport port: a Telegram polling
// adapter filtered to a single allowed handle, exposing /status, /task,
// /plan, /cost, and /evolve, with free text treated as a task submission.
package telegrambot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const maxMessageChunk = 4000

// AsyncFunc is a long-running operation triggered by a chat command; its
// result (or error) is sent back to the chat once it completes.
type AsyncFunc func(ctx context.Context) (string, error)

// TaskFunc submits free text (a command argument or a plain message) as a
// task and returns the eventual result.
type TaskFunc func(ctx context.Context, text string) (string, error)

// Handlers wires the bot's commands to the orchestrator. A nil field
// disables that command: OnStatus, OnCost and OnEvolve reply "not
// configured", a nil OnTask replies that the task engine is not ready.
type Handlers struct {
	OnTask   TaskFunc
	OnStatus AsyncFunc
	OnCost   AsyncFunc
	OnEvolve AsyncFunc
}

// sender is the slice of *tgbotapi.BotAPI the adapter needs: sending
// messages and one-off Bot API requests (e.g. setMyCommands). Narrowed to
// an interface so tests can substitute a fake instead of hitting Telegram.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(u tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot is a single-user Telegram polling adapter.
type Bot struct {
	api           sender
	allowedHandle string
	handlers      Handlers
	logger        *zap.Logger

	mu     sync.Mutex
	chatID int64
	cancel context.CancelFunc
}

// New authenticates against the Telegram Bot API and returns a Bot ready
// to Start. allowedHandle may include a leading "@"; it is stripped.
func New(token, allowedHandle string, handlers Handlers, logger *zap.Logger) (*Bot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("authenticate telegram bot: %w", err)
	}
	logger.Info("telegram bot authorized", zap.String("username", api.Self.UserName))
	return newWithSender(api, allowedHandle, handlers, logger), nil
}

func newWithSender(api sender, allowedHandle string, handlers Handlers, logger *zap.Logger) *Bot {
	return &Bot{
		api:           api,
		allowedHandle: strings.TrimPrefix(allowedHandle, "@"),
		handlers:      handlers,
		logger:        logger.With(zap.String("component", "telegrambot")),
	}
}

// Start begins long-polling in a background goroutine and returns
// immediately. Polling stops when ctx is cancelled or Stop is called.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.setCommands(); err != nil {
		b.logger.Warn("failed to set command menu", zap.Error(err))
	}

	innerCtx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("telegram polling started", zap.String("allowed_handle", b.allowedHandle))

	go func() {
		for {
			select {
			case <-innerCtx.Done():
				b.api.StopReceivingUpdates()
				b.logger.Info("telegram polling stopped")
				return
			case update := <-updates:
				go b.handleUpdate(innerCtx, update)
			}
		}
	}()
	return nil
}

// SetHandlers replaces the bot's command handlers. Safe to call before or
// after Start, since handleUpdate always reads the current value.
func (b *Bot) SetHandlers(handlers Handlers) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = handlers
}

// Stop ends the polling loop started by Start.
func (b *Bot) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (b *Bot) setCommands() error {
	commands := []tgbotapi.BotCommand{
		{Command: "start", Description: "Show available commands"},
		{Command: "status", Description: "Current system status"},
		{Command: "task", Description: "Submit a new task"},
		{Command: "plan", Description: "Show current task tree"},
		{Command: "cost", Description: "Show LLM usage stats"},
		{Command: "evolve", Description: "Trigger a self-evolution cycle"},
	}
	_, err := b.api.Request(tgbotapi.NewSetMyCommands(commands...))
	return err
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	msg := update.Message

	if !b.isAuthorized(msg.From.UserName) {
		b.logger.Warn("rejected message from unauthorized user", zap.String("username", msg.From.UserName))
		return
	}

	b.mu.Lock()
	b.chatID = msg.Chat.ID
	b.mu.Unlock()

	if name, args, ok := parseCommand(msg.Text); ok {
		b.handleCommand(ctx, msg.Chat.ID, name, args)
		return
	}

	b.handleFreeText(ctx, msg)
}

func (b *Bot) isAuthorized(username string) bool {
	return b.allowedHandle != "" && username == b.allowedHandle
}

// parseCommand recognizes a leading "/command rest of text" without
// relying on Telegram's message-entity metadata, so it works the same
// whether the message came from polling or was built in a test.
func parseCommand(text string) (name, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	fields := strings.SplitN(text, " ", 2)
	name = strings.TrimPrefix(fields[0], "/")
	if idx := strings.Index(name, "@"); idx >= 0 {
		name = name[:idx] // strip "@botname" suffix from group-chat commands
	}
	if len(fields) == 2 {
		args = strings.TrimSpace(fields[1])
	}
	return name, args, true
}

// handlersSnapshot returns the current handlers under lock, so a
// concurrent SetHandlers call (e.g. wiring in the orchestrator after
// Start has already begun polling) never races with a dispatch in
// progress.
func (b *Bot) handlersSnapshot() Handlers {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handlers
}

func (b *Bot) handleCommand(ctx context.Context, chatID int64, name, args string) {
	handlers := b.handlersSnapshot()
	switch name {
	case "start":
		b.reply(chatID, "Cradle agent online.\n\n"+
			"Commands:\n"+
			"/status — system status\n"+
			"/task <description> — submit a task\n"+
			"/plan — current task tree\n"+
			"/cost — LLM usage stats\n"+
			"/evolve — trigger self-evolution\n\n"+
			"Or just send a message with a task.")

	case "status", "plan":
		b.runAsync(ctx, chatID, handlers.OnStatus, "Status callback not configured.")

	case "cost":
		b.runAsync(ctx, chatID, handlers.OnCost, "Cost tracking not configured.")

	case "evolve":
		if handlers.OnEvolve == nil {
			b.reply(chatID, "Evolution engine not configured.")
			return
		}
		b.reply(chatID, "Starting self-evolution cycle...")
		b.runAsync(ctx, chatID, handlers.OnEvolve, "Evolution engine not configured.")

	case "task":
		if args == "" {
			b.reply(chatID, "Usage: /task <description>")
			return
		}
		b.submitTask(ctx, chatID, args)

	default:
		b.reply(chatID, "Unknown command. Send /start for the command list.")
	}
}

func (b *Bot) handleFreeText(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	b.submitTask(ctx, msg.Chat.ID, text)
}

func (b *Bot) submitTask(ctx context.Context, chatID int64, text string) {
	onTask := b.handlersSnapshot().OnTask
	if onTask == nil {
		b.reply(chatID, "I'm online but the task engine isn't ready yet.")
		return
	}
	b.reply(chatID, "Task received: "+truncate(text, 100))
	go func() {
		result, err := onTask(ctx, text)
		if err != nil {
			b.reply(chatID, "Task failed: "+err.Error())
			return
		}
		b.reply(chatID, result)
	}()
}

func (b *Bot) runAsync(ctx context.Context, chatID int64, fn AsyncFunc, unconfigured string) {
	if fn == nil {
		b.reply(chatID, unconfigured)
		return
	}
	go func() {
		result, err := fn(ctx)
		if err != nil {
			b.reply(chatID, "Error: "+err.Error())
			return
		}
		b.reply(chatID, result)
	}()
}

// reply sends text to chatID, splitting it into Telegram-sized chunks.
func (b *Bot) reply(chatID int64, text string) {
	for _, chunk := range chunks(text, maxMessageChunk) {
		if _, err := b.api.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			b.logger.Error("failed to send telegram message", zap.Error(err))
		}
	}
}

// Notify implements heartbeat.ChatNotifier: it pushes message to the last
// chat this bot has seen, or does nothing if no chat has been observed
// yet (e.g. the operator has never messaged the bot since process start).
func (b *Bot) Notify(ctx context.Context, message string) error {
	b.mu.Lock()
	chatID := b.chatID
	b.mu.Unlock()
	if chatID == 0 {
		b.logger.Debug("notify skipped, no chat observed yet")
		return nil
	}
	b.reply(chatID, message)
	return nil
}

func chunks(s string, size int) []string {
	if s == "" {
		return []string{""}
	}
	var out []string
	for len(s) > 0 {
		if len(s) <= size {
			out = append(out, s)
			break
		}
		out = append(out, s[:size])
		s = s[size:]
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
