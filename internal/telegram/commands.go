package telegram

import (
	"context"
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/halim/evo/pkg/cron"
	"github.com/halim/evo/pkg/session"
	"github.com/halim/evo/pkg/tools"
)

// ModelSwitcher exposes the active planner and lets /model change it.
type ModelSwitcher interface {
	Provider() string
	Model() string
	Switch(model string) error
}

// CommandsConfig wires the command processor.
type CommandsConfig struct {
	Registry  *tools.Registry
	Sessions  *session.Manager
	Scheduler *cron.Service
	Sender    Sender
	Planner   ModelSwitcher
	// Aliases maps short names to model identifiers for /model.
	Aliases map[string]string
	Logger  zerolog.Logger
}

// Commands processes slash commands.
type Commands struct {
	registry  *tools.Registry
	sessions  *session.Manager
	scheduler *cron.Service
	sender    Sender
	planner   ModelSwitcher
	aliases   map[string]string
	logger    zerolog.Logger
}

// NewCommands creates the command processor.
func NewCommands(cfg CommandsConfig) *Commands {
	return &Commands{
		registry:  cfg.Registry,
		sessions:  cfg.Sessions,
		scheduler: cfg.Scheduler,
		sender:    cfg.Sender,
		planner:   cfg.Planner,
		aliases:   cfg.Aliases,
		logger:    cfg.Logger.With().Str("component", "commands").Logger(),
	}
}

// Handle dispatches a slash command.
func (c *Commands) Handle(ctx context.Context, msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID
	command := msg.Command()

	c.logger.Info().
		Int64("chat_id", chatID).
		Str("command", command).
		Msg("Command received")

	var reply string
	switch command {
	case "start":
		reply = startText()
	case "help":
		reply = helpText()
	case "reset":
		reply = c.reset(chatID)
	case "tools":
		reply = c.toolsText()
	case "tasks":
		reply = c.tasksText(chatID)
	case "model":
		reply = c.model(strings.TrimSpace(msg.CommandArguments()))
	case "reload":
		reply = c.reload()
	default:
		reply = fmt.Sprintf("Unknown command /%s. Try /help.", command)
	}

	return c.sender.Send(chatID, reply)
}

func (c *Commands) reset(chatID int64) string {
	if err := c.sessions.Reset(SessionKey(chatID)); err != nil {
		c.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Session reset failed")
		return "Could not reset the conversation. Check the logs."
	}
	return "Conversation history cleared. Starting fresh."
}

func (c *Commands) toolsText() string {
	snapshot := c.registry.Snapshot()
	return formatToolList(snapshot.Schemas(), snapshot.IsBuiltin)
}

func (c *Commands) tasksText(chatID int64) string {
	if c.scheduler == nil {
		return "Scheduling is not enabled on this instance."
	}
	return formatTaskList(c.scheduler.List(chatID))
}

func (c *Commands) reload() string {
	if err := c.registry.Reload(); err != nil {
		c.logger.Error().Err(err).Msg("Registry reload failed")
		return fmt.Sprintf("Reload failed: %v. The previous tool set is still active.", err)
	}
	snapshot := c.registry.Snapshot()
	return fmt.Sprintf("Tool registry reloaded: %d tools available.", len(snapshot.Names()))
}

func startText() string {
	return "Hi! I am evo. Ask me anything; I can search the web, run code, " +
		"remember facts, schedule reminders, and build new tools for myself " +
		"when I need them. Try /help for commands."
}

func helpText() string {
	return strings.Join([]string{
		"/start - introduction",
		"/help - this message",
		"/reset - clear conversation history",
		"/tools - list available tools",
		"/tasks - list your scheduled tasks",
		"/model [alias] - show or switch the active model",
		"/reload - reload tools from disk",
	}, "\n")
}

// model shows the active planner, or switches it when called with a
// configured alias.
func (c *Commands) model(alias string) string {
	if c.planner == nil {
		return "No planner is configured."
	}
	if alias == "" {
		return modelText(c.planner.Provider(), c.planner.Model(), c.aliases)
	}

	target, ok := c.aliases[alias]
	if !ok {
		return fmt.Sprintf("Unknown model alias %q.\n\n%s",
			alias, modelText(c.planner.Provider(), c.planner.Model(), c.aliases))
	}
	if err := c.planner.Switch(target); err != nil {
		c.logger.Error().Err(err).Str("model", target).Msg("Model switch failed")
		return fmt.Sprintf("Could not switch to %s: %v", target, err)
	}

	c.logger.Info().Str("model", target).Msg("Model switched")
	return fmt.Sprintf("Switched to %s.", target)
}

func modelText(provider, model string, aliases map[string]string) string {
	out := fmt.Sprintf("Planner: %s (%s)", model, provider)
	if len(aliases) == 0 {
		return out
	}

	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	sort.Strings(names)

	out += "\n\nSwitch with /model <alias>:"
	for _, name := range names {
		out += fmt.Sprintf("\n• %s → %s", name, aliases[name])
	}
	return out
}

// formatToolList renders the catalogue grouped into built-ins and custom
// tools, each with its first description line.
func formatToolList(schemas []tools.Schema, isBuiltin func(string) bool) string {
	var builtins, custom []string
	for _, schema := range schemas {
		line := fmt.Sprintf("• %s — %s", schema.Name, firstSentence(schema.Description))
		if isBuiltin(schema.Name) {
			builtins = append(builtins, line)
		} else {
			custom = append(custom, line)
		}
	}
	sort.Strings(builtins)
	sort.Strings(custom)

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Built-in tools (%d):\n", len(builtins)))
	b.WriteString(strings.Join(builtins, "\n"))
	if len(custom) > 0 {
		b.WriteString(fmt.Sprintf("\n\nCustom tools (%d):\n", len(custom)))
		b.WriteString(strings.Join(custom, "\n"))
	} else {
		b.WriteString("\n\nNo custom tools yet. Ask me to build one.")
	}
	return b.String()
}

// formatTaskList renders the chat's scheduled tasks.
func formatTaskList(tasks []cron.Task) string {
	if len(tasks) == 0 {
		return "No scheduled tasks. Ask me to remind you about something."
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Scheduled tasks (%d):\n", len(tasks)))
	for _, task := range tasks {
		state := "enabled"
		if !task.Enabled {
			state = "done"
		}
		b.WriteString(fmt.Sprintf("• %s [%s] %q — next %s (%s)\n",
			task.ID, task.Expr, firstSentence(task.Prompt),
			task.NextRunAt.Format("Jan 2 15:04"), state))
	}
	return strings.TrimRight(b.String(), "\n")
}

func firstSentence(s string) string {
	if i := strings.IndexAny(s, "\n"); i >= 0 {
		s = s[:i]
	}
	if len(s) > 80 {
		s = s[:77] + "..."
	}
	return s
}
