package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/halim/evo/pkg/cron"
	"github.com/halim/evo/pkg/dispatch"
	"github.com/halim/evo/pkg/memory"
	"github.com/halim/evo/pkg/session"
)

const basePrompt = `You are evo, a personal assistant that can extend itself.

You reach for tools whenever they help: search the web for current
information, run JavaScript for calculations, remember facts the user shares,
and schedule reminders. When a task would benefit from a capability you do not
have, create a new tool with create_tool and then use it.

Keep replies concise. This is a chat, not a document.`

// HandlerConfig wires the message handler.
type HandlerConfig struct {
	Loop     *dispatch.Loop
	Sessions *session.Manager
	Memory   *memory.Store
	Sender   Sender
	// ExtraPrompt is operator-supplied text appended to the system prompt.
	ExtraPrompt string
	// HistoryLimit bounds how many stored messages seed each turn.
	HistoryLimit int
	// DigestFacts bounds how many remembered facts join the system prompt.
	DigestFacts int
	Logger      zerolog.Logger
}

// Handler turns one incoming text into one dispatched turn: load history,
// run the loop, persist the new exchange, deliver the reply.
type Handler struct {
	loop         *dispatch.Loop
	sessions     *session.Manager
	memory       *memory.Store
	sender       Sender
	extraPrompt  string
	historyLimit int
	digestFacts  int
	logger       zerolog.Logger
}

// NewHandler creates a handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Loop == nil {
		return nil, fmt.Errorf("dispatch loop is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if cfg.Sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 40
	}
	if cfg.DigestFacts <= 0 {
		cfg.DigestFacts = 20
	}

	return &Handler{
		loop:         cfg.Loop,
		sessions:     cfg.Sessions,
		memory:       cfg.Memory,
		sender:       cfg.Sender,
		extraPrompt:  cfg.ExtraPrompt,
		historyLimit: cfg.HistoryLimit,
		digestFacts:  cfg.DigestFacts,
		logger:       cfg.Logger.With().Str("component", "handler").Logger(),
	}, nil
}

// HandleText processes one user message end to end.
func (h *Handler) HandleText(ctx context.Context, chatID int64, text string) error {
	return h.handleUserMessage(ctx, chatID, dispatch.Message{Role: "user", Content: text})
}

// HandleImage processes a photo with its caption. The image travels to the
// planner as a base64 attachment on the user message.
func (h *Handler) HandleImage(ctx context.Context, chatID int64, caption, imageData, mediaType string) error {
	return h.handleUserMessage(ctx, chatID, dispatch.Message{
		Role:           "user",
		Content:        caption,
		ImageData:      imageData,
		ImageMediaType: mediaType,
	})
}

func (h *Handler) handleUserMessage(ctx context.Context, chatID int64, userMsg dispatch.Message) error {
	reply, err := h.runTurn(ctx, chatID, userMsg)
	if err != nil {
		h.sender.Send(chatID, "Something went wrong processing that. Please try again.")
		return err
	}
	return h.sender.Send(chatID, reply)
}

// HandleScheduled runs a scheduled prompt as a turn in the chat's session and
// delivers the result there. It satisfies the scheduler's run callback.
func (h *Handler) HandleScheduled(ctx context.Context, task cron.Task) error {
	prompt := fmt.Sprintf("[Scheduled task firing now] %s", task.Prompt)
	reply, err := h.runTurn(ctx, task.ChatID, dispatch.Message{Role: "user", Content: prompt})
	if err != nil {
		return err
	}
	return h.sender.Send(task.ChatID, reply)
}

func (h *Handler) runTurn(ctx context.Context, chatID int64, userMsg dispatch.Message) (string, error) {
	start := time.Now()
	key := SessionKey(chatID)
	h.sender.Typing(chatID)

	history, err := h.sessions.Load(key, h.historyLimit)
	if err != nil {
		return "", fmt.Errorf("load session %s: %w", key, err)
	}

	transcript := append(history, userMsg)

	// Scheduling tools deliver to the chat they were created from.
	ctx = cron.WithChatID(ctx, chatID)

	// When the sender can edit messages, tool activity is shown as a single
	// status line that updates per call and disappears with the answer.
	progress, hasProgress := h.sender.(ProgressSender)
	progressID := 0

	result, err := h.loop.Run(ctx, dispatch.RunParams{
		System:     h.systemPrompt(ctx),
		Transcript: transcript,
		SessionKey: key,
		OnToolStart: func(name string, args map[string]interface{}) {
			h.sender.Typing(chatID)
			if !hasProgress {
				return
			}
			status := "🔧 " + name + "…"
			if progressID == 0 {
				id, err := progress.SendProgress(chatID, status)
				if err != nil {
					return
				}
				progressID = id
			} else {
				progress.EditProgress(chatID, progressID, status)
			}
		},
	})
	if progressID != 0 {
		progress.DeleteProgress(chatID, progressID)
	}
	if err != nil {
		return "", fmt.Errorf("dispatch turn: %w", err)
	}

	// Persist only the user message and the final reply. Intermediate tool
	// transcripts are rebuilt each turn and would bloat the history.
	if err := h.sessions.Append(key, userMsg); err != nil {
		h.logger.Error().Err(err).Str("session_key", key).Msg("Failed to persist user message")
	}
	if err := h.sessions.Append(key, dispatch.Message{Role: "assistant", Content: result.Reply}); err != nil {
		h.logger.Error().Err(err).Str("session_key", key).Msg("Failed to persist reply")
	}

	h.logger.Info().
		Str("session_key", key).
		Int("cycles", result.Cycles).
		Int("tool_calls", result.ToolCalls).
		Bool("aborted", result.Aborted).
		Dur("duration", time.Since(start)).
		Msg("Turn completed")

	return result.Reply, nil
}

// systemPrompt assembles the prompt from the base, the memory digest, the
// operator's extra text, and the current date.
func (h *Handler) systemPrompt(ctx context.Context) string {
	prompt := basePrompt
	if h.extraPrompt != "" {
		prompt += "\n\n" + h.extraPrompt
	}
	if h.memory != nil {
		digest, err := h.memory.Digest(ctx, h.digestFacts)
		if err != nil {
			h.logger.Warn().Err(err).Msg("Memory digest unavailable")
		} else if digest != "" {
			prompt += "\n\n" + digest
		}
	}
	prompt += "\n\nToday is " + time.Now().Format("Monday, 2 January 2006") + "."
	return prompt
}

// SessionKey derives the session file name for a chat.
func SessionKey(chatID int64) string {
	return "chat-" + strconv.FormatInt(chatID, 10)
}
