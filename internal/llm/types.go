// Package llm defines the neutral chat-model contract the agent
// runtime speaks, plus adapters for the supported providers.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a single turn in a model conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDefinition advertises a callable tool to the model.
// Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request is a single chat completion request.
type Request struct {
	Model       string           `json:"model,omitempty"`
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	Temperature float32          `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

// Response is the model's reply.
type Response struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        Usage      `json:"usage"`
}

// Usage reports token consumption for a single request.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// StreamHandler receives incremental text as the model produces it.
type StreamHandler func(text string)

// Client is a chat model client. Implementations must be safe for
// concurrent use.
type Client interface {
	// Name identifies the client in the registry ("openai", "anthropic").
	Name() string

	// GetResponse performs a blocking chat completion.
	GetResponse(ctx context.Context, req Request) (*Response, error)

	// StreamResponse performs a streaming chat completion, invoking
	// onChunk for each text delta, and returns the assembled response.
	StreamResponse(ctx context.Context, req Request, onChunk StreamHandler) (*Response, error)
}
