package dispatch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halim/evo/pkg/sandbox"
	"github.com/halim/evo/pkg/tools"
)

// echoTool is a native tool that replays its single argument.
type echoTool struct{}

func (echoTool) Schema() tools.Schema {
	return tools.Schema{
		Name:        "echo",
		Description: "Echoes the input text",
		Parameters:  []tools.Parameter{{Name: "text", Type: "string", Required: true}},
	}
}

func (echoTool) Invoke(_ context.Context, args map[string]interface{}) (string, error) {
	text, _ := args["text"].(string)
	return text, nil
}

// panicTool blows up on invocation.
type panicTool struct{}

func (panicTool) Schema() tools.Schema {
	return tools.Schema{Name: "panicker", Description: "always panics"}
}

func (panicTool) Invoke(context.Context, map[string]interface{}) (string, error) {
	panic("handler bug")
}

func newTestRegistry(t *testing.T) *tools.Registry {
	t.Helper()

	store, err := tools.NewStore(t.TempDir(), []string{"echo", "panicker"})
	require.NoError(t, err)

	registry, err := tools.NewRegistry(tools.RegistryConfig{
		Store:     store,
		Validator: tools.NewValidator(),
		Runtime:   sandbox.New(sandbox.DefaultConfig()),
	})
	require.NoError(t, err)
	require.NoError(t, registry.RegisterBuiltin(echoTool{}))
	require.NoError(t, registry.RegisterBuiltin(panicTool{}))
	require.NoError(t, registry.Load())
	return registry
}

// scriptedPlanner returns canned plans in sequence, recording what it saw.
// When the script runs out it answers with either the last tool result or a
// fixed marker.
type scriptedPlanner struct {
	plans             []Plan
	calls             int
	transcripts       [][]Message
	schemaSets        [][]tools.Schema
	finalFromLastTool bool
}

func (s *scriptedPlanner) Plan(_ context.Context, _ string, transcript []Message, schemas []tools.Schema) (Plan, error) {
	s.transcripts = append(s.transcripts, append([]Message(nil), transcript...))
	s.schemaSets = append(s.schemaSets, schemas)
	if s.calls >= len(s.plans) {
		if s.finalFromLastTool {
			for i := len(transcript) - 1; i >= 0; i-- {
				if transcript[i].Role == "tool" {
					return Plan{Text: "Result: " + transcript[i].Content}, nil
				}
			}
		}
		return Plan{Text: "out of script"}, nil
	}
	plan := s.plans[s.calls]
	s.calls++
	return plan, nil
}

func newTestLoop(t *testing.T, registry *tools.Registry, planner Planner) *Loop {
	t.Helper()
	loop, err := NewLoop(Config{
		Registry:    registry,
		Planner:     planner,
		CallTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return loop
}

func userTurn(text string) []Message {
	return []Message{{Role: "user", Content: text}}
}

func TestRun_DirectAnswerWithoutTools(t *testing.T) {
	registry := newTestRegistry(t)
	planner := &scriptedPlanner{plans: []Plan{{Text: "The capital of Norway is Oslo."}}}
	loop := newTestLoop(t, registry, planner)

	result, err := loop.Run(context.Background(), RunParams{
		Transcript: userTurn("What is the capital of Norway?"),
	})
	require.NoError(t, err)
	assert.Equal(t, "The capital of Norway is Oslo.", result.Reply)
	assert.False(t, result.Aborted)
	assert.Equal(t, 1, result.Cycles)
	assert.Equal(t, 0, result.ToolCalls)

	require.Len(t, result.Transcript, 2)
	assert.Equal(t, "assistant", result.Transcript[1].Role)
}

func TestRun_SingleToolCallThenAnswer(t *testing.T) {
	registry := newTestRegistry(t)
	planner := &scriptedPlanner{plans: []Plan{
		{Calls: []ToolCall{{ID: "c1", Name: "echo", Arguments: map[string]interface{}{"text": "hello"}}}},
		{Text: "The tool said: hello"},
	}}
	loop := newTestLoop(t, registry, planner)

	result, err := loop.Run(context.Background(), RunParams{Transcript: userTurn("say hello")})
	require.NoError(t, err)
	assert.Equal(t, "The tool said: hello", result.Reply)
	assert.Equal(t, 2, result.Cycles)
	assert.Equal(t, 1, result.ToolCalls)

	// user, assistant(tool call), tool result, assistant answer.
	require.Len(t, result.Transcript, 4)
	toolMsg := result.Transcript[2]
	assert.Equal(t, "tool", toolMsg.Role)
	assert.Equal(t, "c1", toolMsg.ToolCallID)
	assert.Equal(t, "hello", toolMsg.Content)

	// The planner's second call saw the tool result in the transcript.
	require.Len(t, planner.transcripts, 2)
	assert.Len(t, planner.transcripts[1], 3)
}

func TestRun_CreatedToolCallableNextCycle(t *testing.T) {
	registry := newTestRegistry(t)
	for _, tool := range registry.MutationTools() {
		require.NoError(t, registry.RegisterBuiltin(tool))
	}
	require.NoError(t, registry.Reload())

	// Cycle 1 authors a tool through create_tool; cycle 2 calls it; cycle 3
	// answers with its output.
	planner := &scriptedPlanner{plans: []Plan{
		{Calls: []ToolCall{{ID: "c1", Name: "create_tool", Arguments: map[string]interface{}{
			"name":        "shout",
			"description": "Upper-cases text",
			"parameters": []interface{}{
				map[string]interface{}{"name": "text", "type": "string", "required": true},
			},
			"source": `function run(args) { return args.text.toUpperCase(); }`,
		}}}},
		{Calls: []ToolCall{{ID: "c2", Name: "shout",
			Arguments: map[string]interface{}{"text": "quiet"}}}},
	}}
	planner.finalFromLastTool = true

	loop := newTestLoop(t, registry, planner)
	result, err := loop.Run(context.Background(), RunParams{Transcript: userTurn("shout quiet")})
	require.NoError(t, err)
	assert.Equal(t, "Result: QUIET", result.Reply)
	assert.Equal(t, 3, result.Cycles)

	// Cycle 1 planned against a catalogue without shout; cycle 2 saw it.
	assert.NotContains(t, schemaNames(planner.schemaSets[0]), "shout")
	assert.Contains(t, schemaNames(planner.schemaSets[1]), "shout")
}

func schemaNames(schemas []tools.Schema) []string {
	names := make([]string, 0, len(schemas))
	for _, s := range schemas {
		names = append(names, s.Name)
	}
	return names
}

func TestRun_UnknownToolFeedsBackAsFailureText(t *testing.T) {
	registry := newTestRegistry(t)
	planner := &scriptedPlanner{plans: []Plan{
		{Calls: []ToolCall{{ID: "c1", Name: "nonexistent", Arguments: nil}}},
		{Text: "recovered"},
	}}
	loop := newTestLoop(t, registry, planner)

	result, err := loop.Run(context.Background(), RunParams{Transcript: userTurn("go")})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Reply)

	toolMsg := result.Transcript[2]
	assert.Equal(t, "tool", toolMsg.Role)
	assert.Contains(t, toolMsg.Content, "[unknown_tool]")
	assert.Contains(t, toolMsg.Content, "nonexistent")
}

func TestRun_ToolFailureDoesNotAbortTurn(t *testing.T) {
	registry := newTestRegistry(t)
	_, err := registry.Create("fails", "always throws", nil,
		`function run(args) { throw new Error("nope"); }`)
	require.NoError(t, err)

	planner := &scriptedPlanner{plans: []Plan{
		{Calls: []ToolCall{{ID: "c1", Name: "fails"}}},
		{Text: "I could not complete that."},
	}}
	loop := newTestLoop(t, registry, planner)

	result, err := loop.Run(context.Background(), RunParams{Transcript: userTurn("go")})
	require.NoError(t, err)
	assert.Equal(t, "I could not complete that.", result.Reply)
	assert.Contains(t, result.Transcript[2].Content, "[tool_error]")
	assert.Contains(t, result.Transcript[2].Content, "nope")
}

func TestRun_PanickingToolIsContained(t *testing.T) {
	registry := newTestRegistry(t)
	planner := &scriptedPlanner{plans: []Plan{
		{Calls: []ToolCall{{ID: "c1", Name: "panicker"}}},
		{Text: "survived"},
	}}
	loop := newTestLoop(t, registry, planner)

	result, err := loop.Run(context.Background(), RunParams{Transcript: userTurn("go")})
	require.NoError(t, err)
	assert.Equal(t, "survived", result.Reply)
	assert.Contains(t, result.Transcript[2].Content, "[tool_error]")
	assert.Contains(t, result.Transcript[2].Content, "panicked")
}

func TestRun_MultipleCallsExecuteInOrder(t *testing.T) {
	registry := newTestRegistry(t)
	planner := &scriptedPlanner{plans: []Plan{
		{Calls: []ToolCall{
			{ID: "c1", Name: "echo", Arguments: map[string]interface{}{"text": "first"}},
			{ID: "c2", Name: "missing"},
			{ID: "c3", Name: "echo", Arguments: map[string]interface{}{"text": "third"}},
		}},
		{Text: "done"},
	}}
	loop := newTestLoop(t, registry, planner)

	result, err := loop.Run(context.Background(), RunParams{Transcript: userTurn("go")})
	require.NoError(t, err)
	assert.Equal(t, 3, result.ToolCalls)

	// user, assistant, three tool results, assistant answer.
	require.Len(t, result.Transcript, 6)
	assert.Equal(t, "first", result.Transcript[2].Content)
	assert.Contains(t, result.Transcript[3].Content, "[unknown_tool]")
	assert.Equal(t, "third", result.Transcript[4].Content)
	assert.Equal(t, "c2", result.Transcript[3].ToolCallID)
}

func TestRun_IterationBudgetAborts(t *testing.T) {
	registry := newTestRegistry(t)

	// A planner that never stops calling tools.
	planner := PlannerFunc(func(context.Context, string, []Message, []tools.Schema) (Plan, error) {
		return Plan{Calls: []ToolCall{{ID: "x", Name: "echo",
			Arguments: map[string]interface{}{"text": "again"}}}}, nil
	})

	loop, err := NewLoop(Config{
		Registry:      registry,
		Planner:       planner,
		MaxIterations: 3,
	})
	require.NoError(t, err)

	result, err := loop.Run(context.Background(), RunParams{Transcript: userTurn("go")})
	require.NoError(t, err)
	assert.True(t, result.Aborted)
	assert.Equal(t, 3, result.Cycles)
	assert.Equal(t, 3, result.ToolCalls)
	assert.Contains(t, result.Reply, "Stopped after 3 tool-use cycles")
}

func TestRun_PlannerErrorReturned(t *testing.T) {
	registry := newTestRegistry(t)
	planner := PlannerFunc(func(context.Context, string, []Message, []tools.Schema) (Plan, error) {
		return Plan{}, fmt.Errorf("upstream is down")
	})
	loop := newTestLoop(t, registry, planner)

	_, err := loop.Run(context.Background(), RunParams{Transcript: userTurn("go")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream is down")
}

func TestRun_ContextCancelledBetweenCycles(t *testing.T) {
	registry := newTestRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	planner := &scriptedPlanner{plans: []Plan{{Text: "never delivered"}}}
	loop := newTestLoop(t, registry, planner)

	_, err := loop.Run(ctx, RunParams{Transcript: userTurn("go")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, planner.calls)
}

func TestRun_ObserverSeesToolStarts(t *testing.T) {
	registry := newTestRegistry(t)
	planner := &scriptedPlanner{plans: []Plan{
		{Calls: []ToolCall{{ID: "c1", Name: "echo", Arguments: map[string]interface{}{"text": "x"}}}},
		{Text: "done"},
	}}
	loop := newTestLoop(t, registry, planner)

	var observed []string
	_, err := loop.Run(context.Background(), RunParams{
		Transcript: userTurn("go"),
		OnToolStart: func(name string, _ map[string]interface{}) {
			observed = append(observed, name)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"echo"}, observed)
}

func TestRun_SchemasPresentedToPlanner(t *testing.T) {
	registry := newTestRegistry(t)
	planner := &scriptedPlanner{plans: []Plan{{Text: "ok"}}}
	loop := newTestLoop(t, registry, planner)

	_, err := loop.Run(context.Background(), RunParams{Transcript: userTurn("go")})
	require.NoError(t, err)

	require.Len(t, planner.schemaSets, 1)
	names := make([]string, 0, len(planner.schemaSets[0]))
	for _, schema := range planner.schemaSets[0] {
		names = append(names, schema.Name)
	}
	assert.Contains(t, names, "echo")
	assert.Contains(t, names, "panicker")
}
