// Package dispatch drives one planner-response cycle to completion: planner
// decision, tool resolution through the registry, sandboxed execution, and
// result feedback, repeated until the planner emits a final answer or the
// iteration budget is exhausted.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/halim/evo/pkg/tools"
)

// DefaultMaxIterations bounds plan/execute cycles per user turn.
const DefaultMaxIterations = 20

// Config holds loop configuration.
type Config struct {
	Registry *tools.Registry
	Planner  Planner
	// MaxIterations is the hard maximum number of plan/execute cycles per
	// user turn. Defaults to DefaultMaxIterations.
	MaxIterations int
	// CallTimeout bounds each individual tool invocation.
	CallTimeout time.Duration
	Logger      zerolog.Logger
	Metrics     MetricsSink
}

// Loop executes user turns. One Loop is shared across sessions; it holds no
// per-session state, so concurrent Run calls are safe as long as each call
// owns its transcript.
type Loop struct {
	registry      *tools.Registry
	planner       Planner
	maxIterations int
	callTimeout   time.Duration
	logger        zerolog.Logger
	metrics       MetricsSink
}

// NewLoop creates a dispatch loop.
func NewLoop(cfg Config) (*Loop, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Planner == nil {
		return nil, fmt.Errorf("planner is required")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}

	return &Loop{
		registry:      cfg.Registry,
		planner:       cfg.Planner,
		maxIterations: cfg.MaxIterations,
		callTimeout:   cfg.CallTimeout,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}, nil
}

// RunParams are the inputs for one user turn.
type RunParams struct {
	// System is the system prompt presented to the planner.
	System string
	// Transcript is the conversation so far, ending with the new user
	// message.
	Transcript []Message
	// SessionKey identifies the session for audit logging.
	SessionKey string
	// OnToolStart, when set, is called before each tool invocation.
	OnToolStart ToolObserver
}

// Run drives the state machine for one user turn: AwaitingPlan → Executing →
// AwaitingPlan → … → Done, or Aborted when the iteration budget runs out.
// Planner errors are returned to the caller; every tool-level failure is fed
// back into the transcript as text so the planner can self-correct.
func (l *Loop) Run(ctx context.Context, params RunParams) (Result, error) {
	transcript := append([]Message(nil), params.Transcript...)
	logger := l.logger.With().Str("session_key", params.SessionKey).Logger()

	totalCalls := 0
	for cycle := 1; cycle <= l.maxIterations; cycle++ {
		select {
		case <-ctx.Done():
			return Result{Transcript: transcript, Cycles: cycle - 1, ToolCalls: totalCalls}, ctx.Err()
		default:
		}

		// Each cycle resolves against a single snapshot, so one cycle
		// never observes a half-updated catalogue. A fresh snapshot is
		// captured per cycle so a tool the planner just created is
		// callable on its very next plan.
		snapshot := l.registry.Snapshot()
		schemas := snapshot.Schemas()

		plan, err := l.planner.Plan(ctx, params.System, transcript, schemas)
		if err != nil {
			l.recordTurn("planner_error", cycle)
			return Result{Transcript: transcript, Cycles: cycle, ToolCalls: totalCalls},
				fmt.Errorf("planner failed: %w", err)
		}

		if len(plan.Calls) == 0 {
			transcript = append(transcript, Message{Role: "assistant", Content: plan.Text})
			l.recordTurn("done", cycle)
			return Result{
				Reply:      plan.Text,
				Transcript: transcript,
				Cycles:     cycle,
				ToolCalls:  totalCalls,
			}, nil
		}

		transcript = append(transcript, Message{
			Role:      "assistant",
			Content:   plan.Text,
			ToolCalls: plan.Calls,
		})

		// Results are appended in the planner's requested order before
		// the next plan, regardless of individual failures.
		for _, call := range plan.Calls {
			totalCalls++
			if params.OnToolStart != nil {
				params.OnToolStart(call.Name, call.Arguments)
			}
			result := l.executeCall(ctx, snapshot, call, logger)
			transcript = append(transcript, Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	l.recordTurn("aborted", l.maxIterations)
	logger.Warn().
		Int("max_iterations", l.maxIterations).
		Int("tool_calls", totalCalls).
		Msg("Iteration budget exhausted, aborting turn")

	notice := fmt.Sprintf(
		"Stopped after %d tool-use cycles without reaching a final answer. "+
			"The task may be too complex for one turn; try breaking it into smaller steps.",
		l.maxIterations)
	return Result{
		Reply:      notice,
		Transcript: transcript,
		Aborted:    true,
		Cycles:     l.maxIterations,
		ToolCalls:  totalCalls,
	}, nil
}

// executeCall resolves and invokes a single tool call, converting every
// failure into feedback text. The planner's choices are non-deterministic, so
// each invocation is logged with its outcome and duration for later
// reconstruction.
func (l *Loop) executeCall(ctx context.Context, snapshot *tools.Snapshot, call ToolCall, logger zerolog.Logger) string {
	start := time.Now()

	tool, ok := snapshot.Resolve(call.Name)
	if !ok {
		l.audit(logger, call, tools.FailUnknownTool, time.Since(start))
		return failureText(tools.FailUnknownTool, fmt.Sprintf("unknown tool: %s", call.Name))
	}

	callCtx, cancel := context.WithTimeout(ctx, l.callTimeout)
	defer cancel()

	output, err := invokeGuarded(callCtx, tool, call.Arguments)
	duration := time.Since(start)

	if err != nil {
		kind, message := classify(err)
		l.audit(logger, call, kind, duration)
		return failureText(kind, message)
	}

	l.audit(logger, call, "", duration)
	return output
}

// invokeGuarded calls the tool and converts a panic in a native handler into
// an error, so one faulty built-in cannot take down the host process.
func invokeGuarded(ctx context.Context, tool tools.Tool, args map[string]interface{}) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &tools.FailureError{
				Kind:    tools.FailToolError,
				Message: fmt.Sprintf("tool panicked: %v", r),
			}
		}
	}()
	return tool.Invoke(ctx, args)
}

// classify maps an invocation error to a failure kind for feedback.
func classify(err error) (tools.FailureKind, string) {
	var fe *tools.FailureError
	if errors.As(err, &fe) {
		return fe.Kind, fe.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return tools.FailTimeout, "tool execution timed out"
	}
	return tools.FailToolError, err.Error()
}

// failureText renders a failure as plain text the planner can read and act
// on: retry with different arguments, pick another tool, or apologize.
func failureText(kind tools.FailureKind, message string) string {
	return fmt.Sprintf("[%s] %s", kind, message)
}

func (l *Loop) audit(logger zerolog.Logger, call ToolCall, kind tools.FailureKind, duration time.Duration) {
	outcome := "success"
	if kind != "" {
		outcome = string(kind)
	}

	logger.Info().
		Str("tool", call.Name).
		Int("args", len(call.Arguments)).
		Str("outcome", outcome).
		Dur("duration", duration).
		Msg("Tool invocation")

	if l.metrics != nil {
		l.metrics.RecordToolExecution(call.Name, outcome, duration)
	}
}

func (l *Loop) recordTurn(outcome string, cycles int) {
	if l.metrics != nil {
		l.metrics.RecordDispatchTurn(outcome, cycles)
	}
}
