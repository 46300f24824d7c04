package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// HandlerFunc is the native Go implementation behind a built-in tool.
type HandlerFunc func(ctx context.Context, args map[string]interface{}) (string, error)

// Func adapts a native Go function to the Tool interface. All built-in tools
// are Funcs; custom tools reach the same interface through the sandbox.
type Func struct {
	name        string
	description string
	params      []Parameter
	handler     HandlerFunc
}

// NewFunc creates a built-in tool from a handler.
func NewFunc(name, description string, params []Parameter, handler HandlerFunc) *Func {
	return &Func{name: name, description: description, params: params, handler: handler}
}

// Schema implements Tool.
func (f *Func) Schema() Schema {
	return Schema{Name: f.name, Description: f.description, Parameters: f.params}
}

// Invoke implements Tool.
func (f *Func) Invoke(ctx context.Context, args map[string]interface{}) (string, error) {
	return f.handler(ctx, args)
}

// StringArg extracts a required string argument.
func StringArg(args map[string]interface{}, name string) (string, error) {
	v, ok := args[name]
	if !ok {
		return "", &FailureError{Kind: FailInvalidArguments, Message: fmt.Sprintf("missing required parameter: %s", name)}
	}
	s, ok := v.(string)
	if !ok {
		return "", &FailureError{Kind: FailInvalidArguments, Message: fmt.Sprintf("parameter %s must be a string", name)}
	}
	return s, nil
}

// OptionalStringArg extracts a string argument, returning "" when absent.
func OptionalStringArg(args map[string]interface{}, name string) (string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &FailureError{Kind: FailInvalidArguments, Message: fmt.Sprintf("parameter %s must be a string", name)}
	}
	return s, nil
}

// MutationTools returns the built-in tools through which the planner manages
// the registry itself: create_tool, update_tool, delete_tool, list_tools and
// view_tool_code. They close over the registry, so a tool created in one
// dispatch cycle is resolvable in the next.
func (r *Registry) MutationTools() []Tool {
	parameterListParam := Parameter{
		Name: "parameters",
		Type: "array",
		Description: "Parameter declarations: array of objects with " +
			"name, type (string/number/boolean/object/array/integer), " +
			"description, required (bool) and optional default",
	}

	return []Tool{
		NewFunc("create_tool",
			"Create a new reusable tool to extend your own capabilities. "+
				"The source must be JavaScript declaring a run(args) function that "+
				"returns a string. The tool is persisted and immediately callable. "+
				"Only create tools that are reusable, never one-off scripts.",
			[]Parameter{
				{Name: "name", Type: "string", Description: "Tool name: lowercase letters, digits and underscores, e.g. get_btc_price", Required: true},
				{Name: "description", Type: "string", Description: "What the tool does, shown to the planner", Required: true},
				parameterListParam,
				{Name: "source", Type: "string", Description: "JavaScript source declaring run(args)", Required: true},
			},
			r.createToolHandler),

		NewFunc("update_tool",
			"Update an existing custom tool's description, parameters or source. "+
				"Built-in tools cannot be updated. Omitted fields keep their stored values.",
			[]Parameter{
				{Name: "name", Type: "string", Description: "Name of the tool to update", Required: true},
				{Name: "description", Type: "string", Description: "New description"},
				parameterListParam,
				{Name: "source", Type: "string", Description: "New JavaScript source declaring run(args)"},
			},
			r.updateToolHandler),

		NewFunc("delete_tool",
			"Delete a custom tool. Built-in tools cannot be deleted.",
			[]Parameter{
				{Name: "name", Type: "string", Description: "Name of the tool to delete", Required: true},
			},
			r.deleteToolHandler),

		NewFunc("list_tools",
			"List every available tool, built-in and custom.",
			nil,
			r.listToolsHandler),

		NewFunc("view_tool_code",
			"View a custom tool's source code and metadata.",
			[]Parameter{
				{Name: "name", Type: "string", Description: "Tool name", Required: true},
			},
			r.viewToolCodeHandler),
	}
}

func (r *Registry) createToolHandler(ctx context.Context, args map[string]interface{}) (string, error) {
	name, err := StringArg(args, "name")
	if err != nil {
		return "", err
	}
	description, err := StringArg(args, "description")
	if err != nil {
		return "", err
	}
	source, err := StringArg(args, "source")
	if err != nil {
		return "", err
	}
	params, err := decodeParameters(args["parameters"])
	if err != nil {
		return "", err
	}

	if snap := r.Snapshot(); snap != nil {
		if _, exists := snap.Resolve(name); exists {
			return "", &FailureError{Kind: FailValidation,
				Message: fmt.Sprintf("tool %s already exists; use update_tool to change it", name)}
		}
	}

	result, err := r.Create(name, description, params, source)
	if err != nil {
		return "", mutationError(err)
	}
	if !result.Accepted {
		return "", &FailureError{Kind: FailValidation,
			Message: "tool rejected: " + strings.Join(result.Reasons, "; ")}
	}
	return fmt.Sprintf("Tool %q created and ready to use.", name), nil
}

func (r *Registry) updateToolHandler(ctx context.Context, args map[string]interface{}) (string, error) {
	name, err := StringArg(args, "name")
	if err != nil {
		return "", err
	}
	description, err := OptionalStringArg(args, "description")
	if err != nil {
		return "", err
	}
	source, err := OptionalStringArg(args, "source")
	if err != nil {
		return "", err
	}

	var params []Parameter
	if raw, ok := args["parameters"]; ok && raw != nil {
		params, err = decodeParameters(raw)
		if err != nil {
			return "", err
		}
	}

	if description == "" && source == "" && params == nil {
		return "", &FailureError{Kind: FailInvalidArguments,
			Message: "provide at least one of description, parameters or source"}
	}

	result, err := r.Update(name, description, params, source)
	if err != nil {
		return "", mutationError(err)
	}
	if !result.Accepted {
		return "", &FailureError{Kind: FailValidation,
			Message: "update rejected: " + strings.Join(result.Reasons, "; ")}
	}
	return fmt.Sprintf("Tool %q updated.", name), nil
}

func (r *Registry) deleteToolHandler(ctx context.Context, args map[string]interface{}) (string, error) {
	name, err := StringArg(args, "name")
	if err != nil {
		return "", err
	}
	if err := r.Delete(name); err != nil {
		return "", mutationError(err)
	}
	return fmt.Sprintf("Tool %q deleted.", name), nil
}

func (r *Registry) listToolsHandler(ctx context.Context, args map[string]interface{}) (string, error) {
	snap := r.Snapshot()
	if snap == nil {
		return "No tools loaded.", nil
	}

	var builtins, customs []string
	for _, schema := range snap.Schemas() {
		line := fmt.Sprintf("  - %s: %s", schema.Name, firstLine(schema.Description))
		if snap.IsBuiltin(schema.Name) {
			builtins = append(builtins, line)
		} else {
			customs = append(customs, line)
		}
	}

	var b strings.Builder
	b.WriteString("Built-in tools:\n")
	b.WriteString(strings.Join(builtins, "\n"))
	b.WriteString("\n\nCustom tools:")
	if len(customs) == 0 {
		b.WriteString(" none")
	} else {
		b.WriteString("\n")
		b.WriteString(strings.Join(customs, "\n"))
	}
	return b.String(), nil
}

func (r *Registry) viewToolCodeHandler(ctx context.Context, args map[string]interface{}) (string, error) {
	name, err := StringArg(args, "name")
	if err != nil {
		return "", err
	}
	m, err := r.Source(name)
	if err != nil {
		return "", mutationError(err)
	}
	return fmt.Sprintf("Tool %s (version %d, updated %s):\n\n```javascript\n%s\n```",
		m.Name, m.Version, m.UpdatedAt.Format("2006-01-02 15:04:05"), m.Source), nil
}

// mutationError maps store errors to failure kinds the planner can act on.
func mutationError(err error) error {
	var fe *FailureError
	if errors.As(err, &fe) {
		return fe
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return &FailureError{Kind: FailUnknownTool, Message: err.Error()}
	case errors.Is(err, ErrReserved):
		return &FailureError{Kind: FailValidation, Message: err.Error()}
	default:
		return &FailureError{Kind: FailStorage, Message: err.Error()}
	}
}

// decodeParameters converts the planner-supplied parameter declarations into
// typed Parameters via a JSON round trip.
func decodeParameters(raw interface{}) ([]Parameter, error) {
	if raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, &FailureError{Kind: FailInvalidArguments, Message: "parameters must be a JSON array"}
	}
	var params []Parameter
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, &FailureError{Kind: FailInvalidArguments,
			Message: "parameters must be an array of {name, type, description, required, default} objects"}
	}
	return params, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 80 {
		s = s[:77] + "..."
	}
	return s
}
