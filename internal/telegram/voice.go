package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// maxVoiceBytes bounds how much audio is downloaded for transcription.
const maxVoiceBytes = 20 << 20

// Transcriber converts speech audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader) (string, error)
}

// VoiceHandler downloads voice notes, transcribes them, and feeds the text
// through the regular message handler.
type VoiceHandler struct {
	api         *tgbotapi.BotAPI
	transcriber Transcriber
	handler     *Handler
	sender      Sender
	client      *http.Client
	logger      zerolog.Logger
}

// NewVoiceHandler creates a voice handler.
func NewVoiceHandler(bot *Bot, transcriber Transcriber, handler *Handler) *VoiceHandler {
	return &VoiceHandler{
		api:         bot.api,
		transcriber: transcriber,
		handler:     handler,
		sender:      bot,
		client:      &http.Client{Timeout: 60 * time.Second},
		logger:      bot.logger.With().Str("component", "voice").Logger(),
	}
}

// Handle transcribes one voice message and processes the text as a turn.
func (v *VoiceHandler) Handle(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.Voice == nil {
		return nil
	}
	chatID := msg.Chat.ID
	v.sender.Typing(chatID)

	text, err := v.transcribe(ctx, msg.Voice.FileID)
	if err != nil {
		v.sender.Send(chatID, "I could not transcribe that voice message.")
		return fmt.Errorf("transcribe voice: %w", err)
	}

	v.logger.Info().
		Int64("chat_id", chatID).
		Int("duration_s", msg.Voice.Duration).
		Int("chars", len(text)).
		Msg("Voice message transcribed")

	return v.handler.HandleText(ctx, chatID, text)
}

func (v *VoiceHandler) transcribe(ctx context.Context, fileID string) (string, error) {
	url, err := v.api.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("resolve file URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download voice file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("voice download returned HTTP %d", resp.StatusCode)
	}

	return v.transcriber.Transcribe(ctx, io.LimitReader(resp.Body, maxVoiceBytes))
}
