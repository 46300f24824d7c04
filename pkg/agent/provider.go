// Package agent provides the language-model planners behind the dispatch
// loop. Each provider converts the neutral transcript and tool schemas into
// its SDK's wire types and maps the response back to a Plan.
package agent

import (
	"fmt"

	"github.com/halim/evo/pkg/dispatch"
	"github.com/halim/evo/pkg/tools"
)

// Options configure a planner regardless of provider.
type Options struct {
	// Model is the provider-specific model identifier.
	Model string
	// MaxTokens bounds the response length. Defaults to 4096.
	MaxTokens int
	// Temperature, when positive, is passed through to the provider.
	Temperature float64
}

func (o *Options) applyDefaults() {
	if o.MaxTokens <= 0 {
		o.MaxTokens = 4096
	}
}

// Planner is a provider-backed dispatch planner with an identity, so the
// transport layer can report which model is answering.
type Planner interface {
	dispatch.Planner
	Provider() string
	Model() string
}

// New creates a planner for the named provider. Supported providers are
// "anthropic" and "openai".
func New(provider, apiKey string, opts Options) (Planner, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required for provider %s", provider)
	}
	switch provider {
	case "anthropic":
		return NewAnthropicPlanner(apiKey, opts), nil
	case "openai":
		return NewOpenAIPlanner(apiKey, opts), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// schemaObject renders parameter declarations as the JSON Schema object both
// provider APIs expect for tool definitions.
func schemaObject(params []tools.Parameter) (properties map[string]interface{}, required []string) {
	properties = make(map[string]interface{}, len(params))
	for _, p := range params {
		prop := map[string]interface{}{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return properties, required
}
