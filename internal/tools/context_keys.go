package tools

import "context"

// Tool execution context keys. Per-turn values are injected into the
// context by the agent runtime and read by tools during Execute(),
// keeping tool instances free of mutable per-call state.

type toolContextKey string

const (
	ctxConversationID toolContextKey = "tool_conversation_id"
	ctxAgentID        toolContextKey = "tool_agent_id"
	ctxWorkflowState  toolContextKey = "tool_workflow_state"
)

// WorkflowState is the key/value store tools may read and write during
// a turn. The conversation context satisfies this.
type WorkflowState interface {
	SetState(key string, value any)
	State(key string) (any, bool)
}

func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxConversationID, id)
}

func ConversationIDFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxConversationID).(string)
	return v
}

func WithAgentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxAgentID, id)
}

func AgentIDFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxAgentID).(string)
	return v
}

func WithWorkflowState(ctx context.Context, ws WorkflowState) context.Context {
	return context.WithValue(ctx, ctxWorkflowState, ws)
}

func WorkflowStateFromCtx(ctx context.Context) WorkflowState {
	v, _ := ctx.Value(ctxWorkflowState).(WorkflowState)
	return v
}
