package protocol

// Shared-memory event types published during a turn.
const (
	EventAgentResponse = "agent_response"
	EventToolExecuted  = "tool_executed"
	EventHandoff       = "handoff"
	EventHeartbeat     = "heartbeat"
)

// WebSocket event names pushed from server to client outside the
// message stream.
const (
	EventHealth   = "health"
	EventPresence = "presence"
	EventShutdown = "shutdown"
)
