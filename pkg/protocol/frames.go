package protocol

// Client frame types accepted by the gateway WebSocket endpoint.
const (
	FrameChat  = "chat"
	FrameJoin  = "join"
	FrameLeave = "leave"
	FramePing  = "ping"
)

// ClientFrame is a JSON frame sent by a connected client.
type ClientFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	Stream         bool   `json:"stream,omitempty"`
}
