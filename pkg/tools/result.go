package tools

import "time"

// FailureKind classifies why a tool invocation did not produce a result.
// Every kind is representable as plain text fed back into the planner's
// context, so a capable planner can self-correct.
type FailureKind string

const (
	// FailValidation marks source rejected by the Validator.
	FailValidation FailureKind = "validation_error"
	// FailStorage marks an I/O failure in the Manifest Store.
	FailStorage FailureKind = "storage_error"
	// FailUnknownTool marks a call to a name the Registry cannot resolve.
	FailUnknownTool FailureKind = "unknown_tool"
	// FailInvalidArguments marks arguments that do not satisfy the manifest's
	// parameter schema.
	FailInvalidArguments FailureKind = "invalid_arguments"
	// FailTimeout marks an execution that exceeded its wall-clock bound.
	FailTimeout FailureKind = "timeout"
	// FailToolError marks a runtime fault raised by the tool body itself.
	FailToolError FailureKind = "tool_error"
)

// ExecutionResult is the outcome of one sandboxed invocation. It is either a
// success carrying Text or a failure carrying Kind and Message; it is
// constructed per dispatch and never persisted.
type ExecutionResult struct {
	OK        bool          `json:"ok"`
	Text      string        `json:"text,omitempty"`
	Kind      FailureKind   `json:"kind,omitempty"`
	Message   string        `json:"message,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Success builds a successful result.
func Success(text string) ExecutionResult {
	return ExecutionResult{OK: true, Text: text}
}

// Failure builds a failed result.
func Failure(kind FailureKind, message string) ExecutionResult {
	return ExecutionResult{Kind: kind, Message: message}
}

// FailureError carries a FailureKind across the Tool.Invoke error boundary so
// the dispatch loop can classify what it feeds back to the planner.
type FailureError struct {
	Kind    FailureKind
	Message string
}

// Error implements the error interface.
func (e *FailureError) Error() string {
	return string(e.Kind) + ": " + e.Message
}
