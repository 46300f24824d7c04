package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/halim/evo/pkg/dispatch"
	"github.com/halim/evo/pkg/tools"
)

// OpenAIPlanner plans turns through the OpenAI Chat Completions API.
type OpenAIPlanner struct {
	client openai.Client
	opts   Options
}

// NewOpenAIPlanner creates an OpenAI-backed planner.
func NewOpenAIPlanner(apiKey string, opts Options) *OpenAIPlanner {
	opts.applyDefaults()
	if opts.Model == "" {
		opts.Model = "gpt-4o"
	}
	return &OpenAIPlanner{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		opts:   opts,
	}
}

// Provider implements Planner.
func (p *OpenAIPlanner) Provider() string { return "openai" }

// Model implements Planner.
func (p *OpenAIPlanner) Model() string { return p.opts.Model }

// Plan implements dispatch.Planner.
func (p *OpenAIPlanner) Plan(ctx context.Context, system string, transcript []dispatch.Message, schemas []tools.Schema) (dispatch.Plan, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(transcript)+1)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}

	for _, msg := range transcript {
		switch msg.Role {
		case "system":
			continue
		case "user":
			if msg.ImageData != "" {
				messages = append(messages, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
					openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
						URL: "data:" + msg.ImageMediaType + ";base64," + msg.ImageData,
					}),
					openai.TextContentPart(msg.Content),
				}))
				continue
			}
			messages = append(messages, openai.UserMessage(msg.Content))
		case "assistant":
			if len(msg.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(msg.Content))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCall, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				argsJSON, err := json.Marshal(tc.Arguments)
				if err != nil {
					return dispatch.Plan{}, fmt.Errorf("failed to marshal tool arguments: %w", err)
				}
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunction{
						Name:      tc.Name,
						Arguments: string(argsJSON),
					},
				})
			}
			assistantMsg := openai.ChatCompletionMessage{
				Role:      "assistant",
				Content:   msg.Content,
				ToolCalls: toolCalls,
			}
			messages = append(messages, assistantMsg.ToParam())
		case "tool":
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(p.opts.Model),
		Messages:  messages,
		MaxTokens: openai.Int(int64(p.opts.MaxTokens)),
	}
	if p.opts.Temperature > 0 {
		params.Temperature = openai.Float(p.opts.Temperature)
	}
	params.Tools = openaiTools(schemas)

	response, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return dispatch.Plan{}, fmt.Errorf("openai call failed: %w", err)
	}
	if len(response.Choices) == 0 {
		return dispatch.Plan{}, fmt.Errorf("openai returned no choices")
	}

	choice := response.Choices[0]
	plan := dispatch.Plan{Text: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return dispatch.Plan{}, fmt.Errorf("failed to parse tool arguments for %s: %w", tc.Function.Name, err)
		}
		plan.Calls = append(plan.Calls, dispatch.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return plan, nil
}

func openaiTools(schemas []tools.Schema) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(schemas))
	for _, schema := range schemas {
		properties, required := schemaObject(schema.Parameters)
		parameters := openai.FunctionParameters{
			"type":       "object",
			"properties": properties,
		}
		if len(required) > 0 {
			parameters["required"] = required
		}
		out = append(out, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        schema.Name,
				Description: openai.String(schema.Description),
				Parameters:  parameters,
			},
		})
	}
	return out
}
