package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-5-20250929"
	defaultAnthropicMaxTokens = 4096
)

// AnthropicClient adapts the Anthropic Messages API to the Client
// contract.
type AnthropicClient struct {
	api          anthropic.Client
	defaultModel string
}

// AnthropicConfig configures an AnthropicClient.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewAnthropicClient builds a client from config. APIKey is required.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicClient{
		api:          anthropic.NewClient(opts...),
		defaultModel: model,
	}, nil
}

func (c *AnthropicClient) Name() string { return "anthropic" }

// GetResponse performs a blocking message creation.
func (c *AnthropicClient) GetResponse(ctx context.Context, req Request) (*Response, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}
	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic message: %w", err)
	}

	var content strings.Builder
	var calls []ToolCall
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			content.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			calls = append(calls, ToolCall{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: decodeArguments(variant.JSON.Input.Raw(), variant.Name),
			})
		}
	}

	return &Response{
		Content:      content.String(),
		ToolCalls:    calls,
		FinishReason: string(msg.StopReason),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

// StreamResponse streams text deltas through onChunk. Tool-use input
// arrives as partial JSON fragments and is assembled per content block.
func (c *AnthropicClient) StreamResponse(ctx context.Context, req Request, onChunk StreamHandler) (*Response, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}
	stream := c.api.Messages.NewStreaming(ctx, params)

	var content strings.Builder
	var calls []ToolCall
	var current *ToolCall
	var currentInput strings.Builder
	var usage Usage
	var stopReason string

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			start := event.AsMessageStart()
			usage.InputTokens = int(start.Message.Usage.InputTokens)

		case "content_block_start":
			blockStart := event.AsContentBlockStart()
			if blockStart.ContentBlock.Type == "tool_use" {
				toolUse := blockStart.ContentBlock.AsToolUse()
				current = &ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				currentInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					content.WriteString(delta.Text)
					if onChunk != nil {
						onChunk(delta.Text)
					}
				}
			case "input_json_delta":
				currentInput.WriteString(delta.PartialJSON)
			}

		case "content_block_stop":
			if current != nil {
				current.Arguments = decodeArguments(currentInput.String(), current.Name)
				calls = append(calls, *current)
				current = nil
			}

		case "message_delta":
			messageDelta := event.AsMessageDelta()
			usage.OutputTokens = int(messageDelta.Usage.OutputTokens)
			stopReason = string(messageDelta.Delta.StopReason)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic stream: %w", err)
	}

	return &Response{
		Content:      content.String(),
		ToolCalls:    calls,
		FinishReason: stopReason,
		Usage:        usage,
	}, nil
}

func (c *AnthropicClient) buildParams(req Request) (anthropic.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	var system string
	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = m.Content

		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))

		case RoleTool:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))

		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Messages:    messages,
		Temperature: anthropic.Float(float64(req.Temperature)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}

	for _, t := range req.Tools {
		raw, err := json.Marshal(t.Parameters)
		if err != nil {
			return params, fmt.Errorf("marshal tool schema for %s: %w", t.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(raw, &schema); err != nil {
			return params, fmt.Errorf("invalid tool schema for %s: %w", t.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if toolParam.OfTool == nil {
			return params, fmt.Errorf("invalid tool definition for %s", t.Name)
		}
		toolParam.OfTool.Description = anthropic.String(t.Description)
		params.Tools = append(params.Tools, toolParam)
	}
	return params, nil
}
