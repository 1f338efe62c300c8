package protocol

import (
	"time"

	"github.com/google/uuid"
)

// Message type tags carried in ChannelMessage.Type.
const (
	TypeUserMessage   = "user_message"
	TypeAgentResponse = "agent_response"
	TypeThinking      = "thinking"
	TypeToolExecution = "tool_execution"
	TypeStreamChunk   = "stream_chunk"
	TypeConfirmation  = "confirmation_request"
	TypeError         = "error"
	TypePong          = "pong"
)

// ChannelMessage is the unit of delivery between the runtime and
// connected clients. Both inbound user messages and outbound agent
// traffic use this envelope.
type ChannelMessage struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Type           string         `json:"type"`
	Content        string         `json:"content"`
	AgentName      string         `json:"agent_name,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	IsStreaming    bool           `json:"is_streaming,omitempty"`
	IsFinal        bool           `json:"is_final,omitempty"`
}

// NewMessage builds a ChannelMessage with a fresh id and timestamp.
func NewMessage(conversationID, msgType, content string) ChannelMessage {
	return ChannelMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Type:           msgType,
		Content:        content,
		Timestamp:      time.Now().UTC(),
	}
}
