package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halim/evo/pkg/tools"
)

func TestRunTool_ReturnValue(t *testing.T) {
	tool := RunTool(testSandbox(), tools.NewValidator(), 5*time.Second)
	assert.Equal(t, "run_js", tool.Schema().Name)

	out, err := tool.Invoke(context.Background(), map[string]interface{}{
		"code": `return [1, 2, 3].map(function(n) { return n * n; }).join(",");`,
	})
	require.NoError(t, err)
	assert.Equal(t, "1,4,9", out)
}

func TestRunTool_ConsoleOutput(t *testing.T) {
	tool := RunTool(testSandbox(), tools.NewValidator(), 5*time.Second)

	out, err := tool.Invoke(context.Background(), map[string]interface{}{
		"code": `console.log("hello from snippet");`,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello from snippet", out)
}

func TestRunTool_DeniedConstructRejected(t *testing.T) {
	tool := RunTool(testSandbox(), tools.NewValidator(), 5*time.Second)

	_, err := tool.Invoke(context.Background(), map[string]interface{}{
		"code": `return eval("1+1");`,
	})
	var fe *tools.FailureError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, tools.FailValidation, fe.Kind)
}

func TestRunTool_RuntimeErrorIsToolError(t *testing.T) {
	tool := RunTool(testSandbox(), tools.NewValidator(), 5*time.Second)

	_, err := tool.Invoke(context.Background(), map[string]interface{}{
		"code": `throw new Error("snippet failed");`,
	})
	var fe *tools.FailureError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, tools.FailToolError, fe.Kind)
	assert.Contains(t, fe.Message, "snippet failed")
}

func TestRunTool_TimeoutBounded(t *testing.T) {
	tool := RunTool(testSandbox(), tools.NewValidator(), 200*time.Millisecond)

	_, err := tool.Invoke(context.Background(), map[string]interface{}{
		"code": `while (true) {}`,
	})
	var fe *tools.FailureError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, tools.FailTimeout, fe.Kind)
}
