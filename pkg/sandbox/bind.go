package sandbox

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/halim/evo/pkg/tools"
)

// bindArguments checks supplied arguments against the declared parameters,
// applies defaults, coerces scalar types where the declaration allows it, and
// rejects anything that would reach tool code malformed. Unknown argument
// names are rejected so planner typos surface as correctable failures instead
// of silently ignored input.
func bindArguments(params []tools.Parameter, args map[string]interface{}) (map[string]interface{}, error) {
	bound := make(map[string]interface{}, len(params))
	declared := make(map[string]tools.Parameter, len(params))
	for _, p := range params {
		declared[p.Name] = p
	}

	for name := range args {
		if _, ok := declared[name]; !ok {
			return nil, fmt.Errorf("unknown parameter: %s", name)
		}
	}

	for _, p := range params {
		value, supplied := args[p.Name]
		if !supplied || value == nil {
			if p.Default != nil {
				bound[p.Name] = p.Default
				continue
			}
			if p.Required {
				return nil, fmt.Errorf("missing required parameter: %s", p.Name)
			}
			continue
		}

		coerced, err := coerce(value, p.Type)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %v", p.Name, err)
		}
		bound[p.Name] = coerced
	}

	if err := validateAgainstSchema(params, bound); err != nil {
		return nil, err
	}
	return bound, nil
}

// coerce converts scalar values toward the declared type where the conversion
// is lossless; anything else is left for schema validation to reject.
func coerce(value interface{}, declaredType string) (interface{}, error) {
	switch declaredType {
	case "number", "integer":
		switch v := value.(type) {
		case float64, int, int64:
			return v, nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to %s", v, declaredType)
			}
			return f, nil
		}
	case "boolean":
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to boolean", v)
			}
			return b, nil
		}
	case "string":
		if s, ok := value.(string); ok {
			return s, nil
		}
	}
	return value, nil
}

// validateAgainstSchema runs the bound arguments through a JSON Schema built
// from the parameter declarations, catching structural mismatches coercion
// cannot express (wrong object/array shapes, residual type errors).
func validateAgainstSchema(params []tools.Parameter, bound map[string]interface{}) error {
	properties := make(map[string]interface{}, len(params))
	var required []string
	for _, p := range params {
		prop := map[string]interface{}{"type": p.Type}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schemaMap),
		gojsonschema.NewGoLoader(bound),
	)
	if err != nil {
		return fmt.Errorf("argument validation failed: %w", err)
	}
	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			reasons = append(reasons, desc.String())
		}
		return fmt.Errorf("invalid arguments: %s", strings.Join(reasons, "; "))
	}
	return nil
}
