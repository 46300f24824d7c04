package tools

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Parameter describes one declared tool parameter.
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// Manifest is the durable record describing one custom tool: its identity,
// parameter schema, and executable source. The Manifest Store owns these
// records; the Registry holds a derived, read-only view.
type Manifest struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Source      string      `json:"-"`
	Version     int         `json:"version"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Schema is the planner-facing description of a tool. It carries no source
// and no handler, only what the model needs to decide on a call.
type Schema struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
}

// Tool is the capability interface both built-in and custom tools satisfy.
// Built-ins implement it natively; custom tools implement it through the
// sandbox bridge.
type Tool interface {
	Schema() Schema
	Invoke(ctx context.Context, args map[string]interface{}) (string, error)
}

var nameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidateName checks that a tool name is usable as an identifier and as a
// file name in the store.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if len(name) > 64 {
		return fmt.Errorf("tool name too long (max 64 characters)")
	}
	if !nameRe.MatchString(name) {
		return fmt.Errorf("tool name must be lowercase letters, digits and underscores, starting with a letter")
	}
	return nil
}

// ValidateParameters checks declared parameter metadata.
func ValidateParameters(params []Parameter) error {
	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}

	seen := map[string]bool{}
	for _, p := range params {
		if p.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate parameter: %s", p.Name)
		}
		seen[p.Name] = true
		if !validTypes[p.Type] {
			return fmt.Errorf("invalid parameter type %q for %s", p.Type, p.Name)
		}
	}
	return nil
}
