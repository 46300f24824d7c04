package dispatch

import (
	"context"
	"time"

	"github.com/halim/evo/pkg/tools"
)

// Message is one turn of the conversation transcript threaded through every
// dispatch cycle. The transport layer owns the transcript; the loop only
// appends to it.
type Message struct {
	Role       string                 `json:"role"` // system, user, assistant, tool
	Content    string                 `json:"content"`
	ToolCalls  []ToolCall             `json:"tool_calls,omitempty"`
	ToolCallID string                 `json:"tool_call_id,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`

	// ImageData carries an optional base64-encoded image attachment on a
	// user message, shown to the planner alongside Content.
	ImageData      string `json:"image_data,omitempty"`
	ImageMediaType string `json:"image_media_type,omitempty"`
}

// ToolCall is one structured tool request emitted by the planner.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Plan is a planner response: either final text or one or more tool calls.
type Plan struct {
	Text  string     `json:"text,omitempty"`
	Calls []ToolCall `json:"calls,omitempty"`
}

// Planner is the language-model boundary. Given the transcript and the
// registry's schemas it returns either final natural-language text or a list
// of tool calls. The loop does not care how the prompt is built; scripted
// fakes satisfy this in tests.
type Planner interface {
	Plan(ctx context.Context, system string, transcript []Message, schemas []tools.Schema) (Plan, error)
}

// PlannerFunc adapts a function to the Planner interface.
type PlannerFunc func(ctx context.Context, system string, transcript []Message, schemas []tools.Schema) (Plan, error)

// Plan implements Planner.
func (f PlannerFunc) Plan(ctx context.Context, system string, transcript []Message, schemas []tools.Schema) (Plan, error) {
	return f(ctx, system, transcript, schemas)
}

// ToolObserver is notified when a tool call starts, so the transport can show
// progress to the user.
type ToolObserver func(name string, args map[string]interface{})

// MetricsSink receives per-invocation and per-turn observations. A nil sink
// is valid and discards everything.
type MetricsSink interface {
	RecordToolExecution(tool string, outcome string, duration time.Duration)
	RecordDispatchTurn(outcome string, cycles int)
}

// Result is the outcome of one user turn driven to completion.
type Result struct {
	// Reply is the final text to deliver to the user.
	Reply string
	// Transcript is the input transcript plus everything this turn
	// appended: assistant tool-call turns, tool results, and the final
	// assistant reply.
	Transcript []Message
	// Aborted is set when the iteration budget was exhausted before the
	// planner produced final text.
	Aborted bool
	// Cycles counts the plan/execute cycles used.
	Cycles int
	// ToolCalls counts the tool invocations across all cycles.
	ToolCalls int
}
