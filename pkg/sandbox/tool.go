package sandbox

import (
	"context"
	"strings"
	"time"

	"github.com/halim/evo/pkg/tools"
)

// RunTool wraps the sandbox as the run_js built-in: one-off code execution
// for calculations and transformations that do not deserve a persistent tool.
// The snippet runs as the body of a run() function, so both return values and
// console.log output come back as the result.
func RunTool(sb *Sandbox, validator *tools.Validator, timeout time.Duration) tools.Tool {
	return tools.NewFunc("run_js",
		"Execute a one-off JavaScript snippet and return its output. "+
			"Use console.log or a return statement to produce output. "+
			"httpGet(url, headers) and httpPost(url, body, headers) are available. "+
			"For anything reusable, create a proper tool with create_tool instead.",
		[]tools.Parameter{
			{Name: "code", Type: "string", Description: "JavaScript code to run", Required: true},
		},
		func(ctx context.Context, args map[string]interface{}) (string, error) {
			code, err := tools.StringArg(args, "code")
			if err != nil {
				return "", err
			}

			source := wrapSnippet(code)
			if result := validator.Validate(source); !result.Accepted {
				return "", &tools.FailureError{Kind: tools.FailValidation,
					Message: "code rejected: " + strings.Join(result.Reasons, "; ")}
			}

			result := sb.Execute(ctx, tools.Manifest{Name: "run_js", Source: source}, nil, timeout)
			if !result.OK {
				return "", &tools.FailureError{Kind: result.Kind, Message: result.Message}
			}
			return result.Text, nil
		})
}

func wrapSnippet(code string) string {
	return "function run(args) {\n" + code + "\n}"
}
