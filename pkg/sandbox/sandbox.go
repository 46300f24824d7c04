// Package sandbox runs custom tool source in an embedded JavaScript
// interpreter with a wall-clock bound and a restricted capability surface.
//
// This is best-effort, in-process isolation: the VM exposes only an
// allow-listed set of host bindings (bounded HTTP helpers and console
// capture), there is no filesystem, module loading, or process access, and a
// runaway script is stopped through the interpreter's interrupt mechanism.
// It is not OS-level isolation; operators who need that should front tool
// execution with a container or a restricted process.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog/log"

	"github.com/halim/evo/pkg/tools"
)

const (
	interruptTimeout   = "timeout"
	interruptCancelled = "cancelled"
)

// Config holds sandbox configuration.
type Config struct {
	// DefaultTimeout bounds an invocation when the caller does not supply
	// a timeout.
	DefaultTimeout time.Duration
	// MaxResultLen bounds the text fed back into the planner's context.
	// Longer results are cut and marked as truncated.
	MaxResultLen int
	// HTTPTimeout bounds each httpGet/httpPost call made by tool code.
	HTTPTimeout time.Duration
	// MaxHTTPBody bounds the response body size read by the HTTP helpers.
	MaxHTTPBody int64
}

// DefaultConfig returns a sandbox configuration with conservative bounds.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: 30 * time.Second,
		MaxResultLen:   10000,
		HTTPTimeout:    20 * time.Second,
		MaxHTTPBody:    1 << 20,
	}
}

// Sandbox executes custom tool manifests. It is stateless across invocations:
// every Execute builds a fresh VM, so one tool's globals never leak into the
// next call.
type Sandbox struct {
	cfg Config
}

// New creates a sandbox.
func New(cfg Config) *Sandbox {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.MaxResultLen <= 0 {
		cfg.MaxResultLen = 10000
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 20 * time.Second
	}
	if cfg.MaxHTTPBody <= 0 {
		cfg.MaxHTTPBody = 1 << 20
	}
	return &Sandbox{cfg: cfg}
}

// Execute binds args against the manifest's declared parameters and runs the
// manifest's run(args) entry point. It is single-attempt: retry policy, if
// any, belongs to the caller.
func (s *Sandbox) Execute(ctx context.Context, m tools.Manifest, args map[string]interface{}, timeout time.Duration) (result tools.ExecutionResult) {
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
	}()

	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}

	bound, err := bindArguments(m.Parameters, args)
	if err != nil {
		return tools.Failure(tools.FailInvalidArguments, err.Error())
	}

	vm := goja.New()
	console := installBindings(vm, s.cfg)

	// Interrupt the VM when the wall clock expires or the caller goes
	// away. The budget is armed before any tool code runs, so a loop in the
	// source's top-level statements is bounded the same way as one inside
	// run(args). The running script observes this as an uncatchable
	// interrupt.
	execDone := make(chan struct{})
	defer close(execDone)
	timer := time.AfterFunc(timeout, func() { vm.Interrupt(interruptTimeout) })
	defer timer.Stop()
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(interruptCancelled)
		case <-execDone:
		}
	}()

	if _, err := vm.RunScript(m.Name+".js", m.Source); err != nil {
		return failureFromVMError(err, timeout)
	}

	runFn, ok := goja.AssertFunction(vm.Get("run"))
	if !ok {
		return tools.Failure(tools.FailToolError, "tool source does not define a callable run(args) function")
	}

	value, err := runFn(goja.Undefined(), vm.ToValue(bound))
	if err != nil {
		log.Debug().Str("tool", m.Name).Err(err).Msg("Tool execution faulted")
		return failureFromVMError(err, timeout)
	}

	text := renderResult(value, console.String())
	text, truncated := s.truncate(text)

	res := tools.Success(text)
	res.Truncated = truncated
	return res
}

// failureFromVMError classifies a goja error as Timeout or ToolError.
func failureFromVMError(err error, timeout time.Duration) tools.ExecutionResult {
	if interrupted, ok := err.(*goja.InterruptedError); ok {
		if fmt.Sprintf("%v", interrupted.Value()) == interruptCancelled {
			return tools.Failure(tools.FailTimeout, "execution cancelled")
		}
		return tools.Failure(tools.FailTimeout,
			fmt.Sprintf("execution exceeded the %s time limit", timeout))
	}

	if exception, ok := err.(*goja.Exception); ok {
		return tools.Failure(tools.FailToolError, exception.Error())
	}
	return tools.Failure(tools.FailToolError, err.Error())
}

// renderResult converts the tool's return value plus captured console output
// into the text fed back to the planner.
func renderResult(value goja.Value, consoleOut string) string {
	returned := stringify(value)
	switch {
	case returned == "" && consoleOut == "":
		return "(tool completed with no output)"
	case returned == "":
		return consoleOut
	case consoleOut == "":
		return returned
	default:
		return consoleOut + "\n" + returned
	}
}

func (s *Sandbox) truncate(text string) (string, bool) {
	if len(text) <= s.cfg.MaxResultLen {
		return text, false
	}
	return text[:s.cfg.MaxResultLen] + "\n... [result truncated]", true
}
