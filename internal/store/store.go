// Package store defines the persistence contracts for conversation
// history and per-agent state, with in-memory, SQLite, and Postgres
// implementations.
package store

import (
	"context"

	"github.com/conductorhq/conductor/internal/conversation"
)

// HistoryStore persists conversation history. The intake pipeline
// calls AddMessage once per inbound user message and once per outbound
// agent response.
type HistoryStore interface {
	AddMessage(ctx context.Context, conversationID string, msg conversation.Message) error
	Messages(ctx context.Context, conversationID string, limit int) ([]conversation.Message, error)
}

// AgentStateStore persists opaque per-agent state scoped by
// conversation and agent. Get returns (nil, nil) when no state exists.
type AgentStateStore interface {
	Get(ctx context.Context, conversationID, agentID string) (map[string]any, error)
	Save(ctx context.Context, conversationID, agentID string, state map[string]any) error
	SetToolResult(ctx context.Context, conversationID, agentID, toolName, result string) error
}
