package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/halim/evo/pkg/dispatch"
	"github.com/halim/evo/pkg/tools"
)

// AnthropicPlanner plans turns through the Anthropic Messages API.
type AnthropicPlanner struct {
	client anthropic.Client
	opts   Options
}

// NewAnthropicPlanner creates an Anthropic-backed planner.
func NewAnthropicPlanner(apiKey string, opts Options) *AnthropicPlanner {
	opts.applyDefaults()
	if opts.Model == "" {
		opts.Model = "claude-sonnet-4-5"
	}
	return &AnthropicPlanner{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		opts:   opts,
	}
}

// Provider implements Planner.
func (p *AnthropicPlanner) Provider() string { return "anthropic" }

// Model implements Planner.
func (p *AnthropicPlanner) Model() string { return p.opts.Model }

// Plan implements dispatch.Planner.
func (p *AnthropicPlanner) Plan(ctx context.Context, system string, transcript []dispatch.Message, schemas []tools.Schema) (dispatch.Plan, error) {
	messages := make([]anthropic.MessageParam, 0, len(transcript))

	for _, msg := range transcript {
		switch {
		case msg.Role == "system":
			// The system prompt arrives separately.
			continue

		case msg.Role == "tool":
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))

		case msg.Role == "assistant" && len(msg.ToolCalls) > 0:
			blocks := []anthropic.ContentBlockParamUnion{}
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			messages = append(messages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})

		case msg.Role == "assistant":
			messages = append(messages, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleAssistant,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(msg.Content),
				},
			})

		default:
			blocks := []anthropic.ContentBlockParamUnion{}
			if msg.ImageData != "" {
				blocks = append(blocks, anthropic.NewImageBlockBase64(msg.ImageMediaType, msg.ImageData))
			}
			blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.opts.Model),
		Messages:  messages,
		MaxTokens: int64(p.opts.MaxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if p.opts.Temperature > 0 {
		params.Temperature = anthropic.Float(p.opts.Temperature)
	}
	params.Tools = anthropicTools(schemas)

	response, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return dispatch.Plan{}, fmt.Errorf("anthropic call failed: %w", err)
	}

	plan := dispatch.Plan{}
	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			plan.Text += b.Text
		case anthropic.ToolUseBlock:
			var args map[string]interface{}
			if err := json.Unmarshal([]byte(b.JSON.Input.Raw()), &args); err != nil {
				return dispatch.Plan{}, fmt.Errorf("failed to parse tool input for %s: %w", b.Name, err)
			}
			plan.Calls = append(plan.Calls, dispatch.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: args,
			})
		}
	}
	return plan, nil
}

func anthropicTools(schemas []tools.Schema) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(schemas))
	for _, schema := range schemas {
		properties, required := schemaObject(schema.Parameters)
		tool := anthropic.ToolParam{
			Name:        schema.Name,
			Description: anthropic.String(schema.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
			},
		}
		if len(required) > 0 {
			tool.InputSchema.Required = required
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return out
}
