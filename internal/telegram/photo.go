package telegram

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// maxPhotoBytes bounds how much image data is downloaded and forwarded to
// the planner.
const maxPhotoBytes = 10 << 20

// PhotoHandler downloads photos and feeds them through the message handler
// as image attachments on the user turn.
type PhotoHandler struct {
	api     *tgbotapi.BotAPI
	handler *Handler
	sender  Sender
	client  *http.Client
	logger  zerolog.Logger
}

// NewPhotoHandler creates a photo handler.
func NewPhotoHandler(bot *Bot, handler *Handler) *PhotoHandler {
	return &PhotoHandler{
		api:     bot.api,
		handler: handler,
		sender:  bot,
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  bot.logger.With().Str("component", "photo").Logger(),
	}
}

// Handle downloads one photo message and processes it as a turn. Telegram
// serves photos as JPEG; the largest available size is used.
func (p *PhotoHandler) Handle(ctx context.Context, msg *tgbotapi.Message) error {
	if len(msg.Photo) == 0 {
		return nil
	}
	chatID := msg.Chat.ID
	p.sender.Typing(chatID)

	photo := msg.Photo[len(msg.Photo)-1]
	imageData, err := p.download(ctx, photo.FileID)
	if err != nil {
		p.sender.Send(chatID, "I could not download that photo.")
		return fmt.Errorf("download photo: %w", err)
	}

	caption := msg.Caption
	if caption == "" {
		caption = "Please take a look at this image."
	}

	p.logger.Info().
		Int64("chat_id", chatID).
		Int("width", photo.Width).
		Int("height", photo.Height).
		Int("bytes", len(imageData)).
		Msg("Photo received")

	encoded := base64.StdEncoding.EncodeToString(imageData)
	return p.handler.HandleImage(ctx, chatID, caption, encoded, "image/jpeg")
}

func (p *PhotoHandler) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := p.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download photo file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("photo download returned HTTP %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes))
}
