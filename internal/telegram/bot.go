// Package telegram is the transport layer: it receives Telegram updates,
// enforces the allowlist, and drives the dispatch loop for each user turn.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/halim/evo/internal/metrics"
)

// Sender delivers text to a chat. The Bot implements it; tests substitute a
// recorder.
type Sender interface {
	Send(chatID int64, text string) error
	Typing(chatID int64)
}

// ProgressSender is the optional edit-in-place surface for tool activity
// status lines. The handler falls back to the typing indicator when the
// sender does not implement it.
type ProgressSender interface {
	SendProgress(chatID int64, text string) (int, error)
	EditProgress(chatID int64, messageID int, text string) error
	DeleteProgress(chatID int64, messageID int)
}

// Config holds transport configuration.
type Config struct {
	Token     string
	Allowlist []int64
	// PollTimeout is the long-poll timeout in seconds. Defaults to 60.
	PollTimeout int
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
}

// Bot wraps the Telegram API and routes updates to the handler and the
// command processor.
type Bot struct {
	api       *tgbotapi.BotAPI
	allowlist map[int64]struct{}
	timeout   int
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	handler  *Handler
	commands *Commands
	voice    *VoiceHandler
	photo    *PhotoHandler

	cancel context.CancelFunc
	done   chan struct{}
}

// New authenticates against the Telegram API.
func New(cfg Config) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 60
	}

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("authenticate bot: %w", err)
	}

	allowlist := make(map[int64]struct{}, len(cfg.Allowlist))
	for _, id := range cfg.Allowlist {
		allowlist[id] = struct{}{}
	}

	b := &Bot{
		api:       api,
		allowlist: allowlist,
		timeout:   cfg.PollTimeout,
		logger:    cfg.Logger.With().Str("component", "telegram").Logger(),
		metrics:   cfg.Metrics,
	}

	b.logger.Info().
		Str("username", api.Self.UserName).
		Int64("id", api.Self.ID).
		Int("allowlist", len(allowlist)).
		Msg("Telegram bot authenticated")

	return b, nil
}

// SetHandler attaches the message handler.
func (b *Bot) SetHandler(h *Handler) { b.handler = h }

// SetCommands attaches the command processor.
func (b *Bot) SetCommands(c *Commands) { b.commands = c }

// SetVoiceHandler attaches the voice transcription handler.
func (b *Bot) SetVoiceHandler(v *VoiceHandler) { b.voice = v }

// SetPhotoHandler attaches the photo handler.
func (b *Bot) SetPhotoHandler(p *PhotoHandler) { b.photo = p }

// Start begins long-polling and processes updates until Stop or context
// cancellation.
func (b *Bot) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.timeout
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info().Msg("Telegram bot started")

	go func() {
		defer close(b.done)
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				b.handleUpdate(ctx, update)
			}
		}
	}()
}

// Stop halts update processing and waits for the poll loop to drain.
func (b *Bot) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.api.StopReceivingUpdates()
	if b.done != nil {
		<-b.done
	}
	b.logger.Info().Msg("Telegram bot stopped")
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	if b.metrics != nil {
		b.metrics.MessagesReceivedTotal.Inc()
	}

	if !b.Allowed(msg.From.ID) {
		b.logger.Warn().
			Int64("user_id", msg.From.ID).
			Str("username", msg.From.UserName).
			Msg("Message from user outside allowlist ignored")
		return
	}

	var err error
	switch {
	case msg.IsCommand():
		if b.commands != nil {
			err = b.commands.Handle(ctx, msg)
		}
	case msg.Voice != nil:
		if b.voice != nil {
			err = b.voice.Handle(ctx, msg)
		} else {
			err = b.Send(msg.Chat.ID, "Voice messages are not enabled on this instance.")
		}
	case len(msg.Photo) > 0:
		if b.photo != nil {
			err = b.photo.Handle(ctx, msg)
		} else {
			err = b.Send(msg.Chat.ID, "I cannot process photos on this instance.")
		}
	case msg.Text != "":
		if b.handler != nil {
			err = b.handler.HandleText(ctx, msg.Chat.ID, msg.Text)
		}
	}

	if err != nil {
		if b.metrics != nil {
			b.metrics.TransportErrorsTotal.Inc()
		}
		b.logger.Error().
			Err(err).
			Int64("chat_id", msg.Chat.ID).
			Int("update_id", update.UpdateID).
			Msg("Failed to handle update")
	}
}

// Allowed reports whether a user may talk to the bot. An empty allowlist
// admits everyone.
func (b *Bot) Allowed(userID int64) bool {
	if len(b.allowlist) == 0 {
		return true
	}
	_, ok := b.allowlist[userID]
	return ok
}

// Send delivers text to a chat, splitting it into Telegram-sized chunks.
func (b *Bot) Send(chatID int64, text string) error {
	for _, chunk := range ChunkMessage(text, MessageLimit) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		if _, err := b.api.Send(msg); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
		if b.metrics != nil {
			b.metrics.MessagesSentTotal.Inc()
		}
	}
	return nil
}

// Typing shows the typing indicator. Failures are ignored; the indicator is
// cosmetic.
func (b *Bot) Typing(chatID int64) {
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	b.api.Send(action)
}

// SendProgress posts a transient status message and returns its ID for later
// edits.
func (b *Bot) SendProgress(chatID int64, text string) (int, error) {
	sent, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0, fmt.Errorf("send progress message: %w", err)
	}
	return sent.MessageID, nil
}

// EditProgress updates a previously posted status message in place.
func (b *Bot) EditProgress(chatID int64, messageID int, text string) error {
	_, err := b.api.Send(tgbotapi.NewEditMessageText(chatID, messageID, text))
	if err != nil {
		return fmt.Errorf("edit progress message: %w", err)
	}
	return nil
}

// DeleteProgress removes a status message once the turn has an answer.
// Failures are ignored; a stale status line is harmless.
func (b *Bot) DeleteProgress(chatID int64, messageID int) {
	b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
}
