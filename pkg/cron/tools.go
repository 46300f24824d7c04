package cron

import (
	"context"
	"fmt"
	"strings"

	"github.com/halim/evo/pkg/tools"
)

// chatIDKey carries the originating chat through tool invocations, so a
// scheduled reminder is delivered back to the chat that asked for it.
type chatIDKey struct{}

// WithChatID tags a context with the chat a turn belongs to.
func WithChatID(ctx context.Context, chatID int64) context.Context {
	return context.WithValue(ctx, chatIDKey{}, chatID)
}

// ChatIDFromContext extracts the chat tag, zero when absent.
func ChatIDFromContext(ctx context.Context) int64 {
	if id, ok := ctx.Value(chatIDKey{}).(int64); ok {
		return id
	}
	return 0
}

// Tools returns the built-ins through which the planner manages scheduled
// prompts: schedule_task, list_scheduled_tasks and cancel_task.
func Tools(service *Service) []tools.Tool {
	return []tools.Tool{
		tools.NewFunc("schedule_task",
			"Schedule a prompt to be dispatched on a cron schedule, e.g. a daily "+
				"reminder or a one-off follow-up. The prompt is processed as if the "+
				"user had sent it at that time. Cron format: minute hour day-of-month "+
				"month day-of-week, e.g. '0 9 * * *' for every day at 09:00.",
			[]tools.Parameter{
				{Name: "cron", Type: "string", Description: "5-field cron expression", Required: true},
				{Name: "prompt", Type: "string", Description: "The prompt to dispatch when due", Required: true},
				{Name: "max_runs", Type: "integer", Description: "Disable after this many runs; 0 for unlimited, 1 for a one-shot reminder", Default: float64(0)},
			},
			func(ctx context.Context, args map[string]interface{}) (string, error) {
				expr, err := tools.StringArg(args, "cron")
				if err != nil {
					return "", err
				}
				prompt, err := tools.StringArg(args, "prompt")
				if err != nil {
					return "", err
				}
				maxRuns := 0
				if v, ok := args["max_runs"].(float64); ok {
					maxRuns = int(v)
				}

				task, err := service.Add(ChatIDFromContext(ctx), expr, prompt, maxRuns)
				if err != nil {
					return "", &tools.FailureError{Kind: tools.FailInvalidArguments, Message: err.Error()}
				}
				return fmt.Sprintf("Task %s scheduled; next run %s.",
					task.ID, task.NextRunAt.Format("2006-01-02 15:04 MST")), nil
			}),

		tools.NewFunc("list_scheduled_tasks",
			"List the scheduled tasks for this chat.",
			nil,
			func(ctx context.Context, args map[string]interface{}) (string, error) {
				tasks := service.List(ChatIDFromContext(ctx))
				if len(tasks) == 0 {
					return "No scheduled tasks.", nil
				}
				var b strings.Builder
				for _, task := range tasks {
					state := "enabled"
					if !task.Enabled {
						state = "disabled"
					}
					fmt.Fprintf(&b, "- %s [%s] %q (%s, runs %d", task.ID, task.Expr, task.Prompt, state, task.Runs)
					if task.MaxRuns > 0 {
						fmt.Fprintf(&b, "/%d", task.MaxRuns)
					}
					fmt.Fprintf(&b, ", next %s)\n", task.NextRunAt.Format("2006-01-02 15:04"))
				}
				return strings.TrimRight(b.String(), "\n"), nil
			}),

		tools.NewFunc("cancel_task",
			"Cancel a scheduled task by its ID.",
			[]tools.Parameter{
				{Name: "id", Type: "string", Description: "Task ID as shown by list_scheduled_tasks", Required: true},
			},
			func(ctx context.Context, args map[string]interface{}) (string, error) {
				id, err := tools.StringArg(args, "id")
				if err != nil {
					return "", err
				}
				// A chat may only cancel its own tasks. A foreign ID reads as
				// not found so the tool does not leak other chats' task IDs.
				chatID := ChatIDFromContext(ctx)
				task, ok := service.Get(id)
				if !ok || (chatID != 0 && task.ChatID != chatID) {
					return "", &tools.FailureError{
						Kind:    tools.FailToolError,
						Message: fmt.Sprintf("no task with id %s", id),
					}
				}
				if err := service.Delete(id); err != nil {
					return "", &tools.FailureError{Kind: tools.FailToolError, Message: err.Error()}
				}
				return fmt.Sprintf("Task %s cancelled.", id), nil
			}),
	}
}
