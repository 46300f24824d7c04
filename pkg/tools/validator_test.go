package tools

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_AcceptsWellFormedTool(t *testing.T) {
	v := NewValidator()

	result := v.Validate(`
function run(args) {
  var total = 0;
  for (var i = 0; i < args.n; i++) { total += i; }
  return String(total);
}
`)
	assert.True(t, result.Accepted)
	assert.Empty(t, result.Reasons)
}

func TestValidator_AcceptsFunctionExpressionEntryPoint(t *testing.T) {
	v := NewValidator()

	for _, source := range []string{
		`var run = function(args) { return "ok"; };`,
		`const run = (args) => "ok";`,
	} {
		result := v.Validate(source)
		assert.True(t, result.Accepted, "source %q should be accepted", source)
	}
}

func TestValidator_RejectsEmptySource(t *testing.T) {
	v := NewValidator()

	result := v.Validate("")
	assert.False(t, result.Accepted)
	require.Len(t, result.Reasons, 1)
	assert.Contains(t, result.Reasons[0], "empty")
}

func TestValidator_RejectsSyntaxError(t *testing.T) {
	v := NewValidator()

	result := v.Validate(`function run(args { return 1; }`)
	assert.False(t, result.Accepted)
	require.NotEmpty(t, result.Reasons)
	assert.Contains(t, result.Reasons[0], "does not parse")
}

func TestValidator_RejectsMissingEntryPoint(t *testing.T) {
	v := NewValidator()

	result := v.Validate(`function main(args) { return "ok"; }`)
	assert.False(t, result.Accepted)
	require.NotEmpty(t, result.Reasons)
	assert.Contains(t, result.Reasons[0], "run(args)")
}

func TestValidator_RejectsDeniedConstructs(t *testing.T) {
	v := NewValidator()

	cases := []struct {
		source string
		reason string
	}{
		{`function run(a) { return eval(a.code); }`, "eval()"},
		{`function run(a) { var f = new Function(a.code); return f(); }`, "Function constructor"},
		{`function run(a) { var fs = require("fs"); return "x"; }`, "require()"},
		{`function run(a) { return process.env.HOME; }`, "process"},
		{`function run(a) { var ws = new WebSocket("ws://x"); return "x"; }`, "sockets"},
		{`function run(a) { return globalThis["eva" + "l"](a.c); }`, "computed global"},
	}

	for _, tc := range cases {
		result := v.Validate(tc.source)
		assert.False(t, result.Accepted, "source %q should be rejected", tc.source)
		found := false
		for _, r := range result.Reasons {
			if strings.Contains(strings.ToLower(r), strings.ToLower(tc.reason)) {
				found = true
			}
		}
		assert.True(t, found, "expected a reason mentioning %q, got %v", tc.reason, result.Reasons)
	}
}

func TestValidator_CollectsAllViolations(t *testing.T) {
	v := NewValidator()

	result := v.Validate(`
function helper(code) { return eval(code); }
var x = process.env.PATH;
`)
	assert.False(t, result.Accepted)
	// Missing entry point plus two denylist hits.
	assert.GreaterOrEqual(t, len(result.Reasons), 3)
}

func TestValidator_NeverExecutes(t *testing.T) {
	v := NewValidator()

	// An infinite loop validates instantly because validation is static.
	result := v.Validate(`function run(args) { while (true) {} }`)
	assert.True(t, result.Accepted)
}
