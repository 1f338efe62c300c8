// Package conversation holds per-conversation state: ordered message
// history, workflow key/value state, and the trail of agent responses.
package conversation

import (
	"sync"
	"time"
)

// Message roles in conversation history.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Message is one entry in a conversation's history.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	AgentName string    `json:"agent_name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ToolExecution records one tool invocation during a turn.
type ToolExecution struct {
	ToolName string        `json:"tool_name"`
	Success  bool          `json:"success"`
	Result   string        `json:"result,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// AgentResponse is the outcome of a single agent turn.
type AgentResponse struct {
	AgentID         string          `json:"agent_id"`
	AgentName       string          `json:"agent_name"`
	Success         bool            `json:"success"`
	Content         string          `json:"content"`
	ToolsExecuted   []ToolExecution `json:"tools_executed,omitempty"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
	RequiresHandoff bool            `json:"requires_handoff,omitempty"`
	HandoffTarget   string          `json:"handoff_target,omitempty"`
	HandoffReason   string          `json:"handoff_reason,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// Context is the mutable state of one conversation. All methods are
// safe for concurrent use.
type Context struct {
	ID     string
	UserID string

	mu        sync.RWMutex
	messages  []Message
	state     map[string]any
	responses []AgentResponse
	createdAt time.Time
	updatedAt time.Time
}

// NewContext creates an empty conversation context.
func NewContext(id string) *Context {
	now := time.Now().UTC()
	return &Context{
		ID:        id,
		state:     make(map[string]any),
		createdAt: now,
		updatedAt: now,
	}
}

// AddUserMessage appends a user message to the history.
func (c *Context) AddUserMessage(content string) {
	c.append(Message{Role: RoleUser, Content: content, Timestamp: time.Now().UTC()})
}

// AddAgentMessage appends an agent message to the history.
func (c *Context) AddAgentMessage(content, agentName string) {
	c.append(Message{Role: RoleAgent, Content: content, AgentName: agentName, Timestamp: time.Now().UTC()})
}

func (c *Context) append(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, m)
	c.updatedAt = time.Now().UTC()
}

// History returns a copy of the full message history in order.
func (c *Context) History() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// RecentHistory returns a copy of the last n messages.
func (c *Context) RecentHistory(n int) []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n <= 0 || n > len(c.messages) {
		n = len(c.messages)
	}
	out := make([]Message, n)
	copy(out, c.messages[len(c.messages)-n:])
	return out
}

// LastUserMessage returns the most recent user-role message.
func (c *Context) LastUserMessage() (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == RoleUser {
			return c.messages[i], true
		}
	}
	return Message{}, false
}

// SetState stores a workflow state value.
func (c *Context) SetState(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state[key] = value
	c.updatedAt = time.Now().UTC()
}

// State reads a workflow state value.
func (c *Context) State(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.state[key]
	return v, ok
}

// StateSnapshot returns a copy of the workflow state map.
func (c *Context) StateSnapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.state))
	for k, v := range c.state {
		out[k] = v
	}
	return out
}

// AddResponse appends an agent response to the trail.
func (c *Context) AddResponse(r AgentResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, r)
	c.updatedAt = time.Now().UTC()
}

// LastResponse returns the most recent agent response.
func (c *Context) LastResponse() (AgentResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.responses) == 0 {
		return AgentResponse{}, false
	}
	return c.responses[len(c.responses)-1], true
}

// Responses returns a copy of the agent response trail in order.
func (c *Context) Responses() []AgentResponse {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]AgentResponse, len(c.responses))
	copy(out, c.responses)
	return out
}

// UpdatedAt reports the last mutation time.
func (c *Context) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}
